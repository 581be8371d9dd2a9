package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"

	"quantdb/internal/model"
)

func TestDailyBarRepo_GetRange(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	d1 := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"symbol", "trade_date", "open", "high", "low", "close", "volume",
		"turnover", "amplitude", "pct_change", "change", "turnover_rate", "adjust"}).
		AddRow("600000", d1, "10.0", "10.5", "9.8", "10.2", int64(1000000), "0", "0", "0", "0", "0", "raw").
		AddRow("600000", d2, "10.2", "10.8", "10.1", "10.6", int64(1200000), "0", "0", "0", "0", "0", "raw")

	mock.ExpectQuery("SELECT symbol, trade_date, open, high, low, close, volume, turnover").
		WithArgs("600000", "raw", d1, d2).
		WillReturnRows(rows)

	repo := NewDailyBarRepo(db)
	bars, err := repo.GetRange(context.Background(), "600000", model.AdjustRaw, d1, d2)
	if err != nil {
		t.Fatalf("GetRange: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("GetRange: got %d bars, want 2", len(bars))
	}
	if !bars[0].Close.Equal(decimal.RequireFromString("10.2")) {
		t.Errorf("bars[0].Close = %s, want 10.2", bars[0].Close)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDailyBarRepo_UpsertBatch(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("INSERT INTO daily_bars").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO daily_bars").WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewDailyBarRepo(db)
	bars := []model.DailyBar{
		{Symbol: "600000", TradeDate: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Adjust: model.AdjustRaw,
			Open: decimal.RequireFromString("10.0"), High: decimal.RequireFromString("10.5"),
			Low: decimal.RequireFromString("9.8"), Close: decimal.RequireFromString("10.2"), Volume: 1000000},
		{Symbol: "600000", TradeDate: time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), Adjust: model.AdjustRaw,
			Open: decimal.RequireFromString("10.2"), High: decimal.RequireFromString("10.8"),
			Low: decimal.RequireFromString("10.1"), Close: decimal.RequireFromString("10.6"), Volume: 1200000},
	}

	if err := repo.UpsertBatch(context.Background(), bars); err != nil {
		t.Fatalf("UpsertBatch: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
