package symbol

import (
	"testing"

	"quantdb/internal/errs"
	"quantdb/internal/model"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantCode string
		wantMkt  model.Market
		wantKind model.InstrumentKind
		wantErr  bool
	}{
		{name: "shanghai main board", raw: "600000", wantCode: "600000", wantMkt: model.MarketShanghai, wantKind: model.KindStock},
		{name: "star market override", raw: "688981", wantCode: "688981", wantMkt: model.MarketSTAR, wantKind: model.KindStock},
		{name: "shenzhen main board", raw: "000001", wantCode: "000001", wantMkt: model.MarketShenzhen, wantKind: model.KindStock},
		{name: "chinext override", raw: "300750", wantCode: "300750", wantMkt: model.MarketChiNext, wantKind: model.KindStock},
		{name: "surrounding whitespace", raw: "  600000 ", wantCode: "600000", wantMkt: model.MarketShanghai, wantKind: model.KindStock},
		{name: "hk stock zero padded", raw: "00700", wantCode: "00700", wantMkt: model.MarketHK, wantKind: model.KindStock},
		{name: "hk index alias HSI", raw: "hsi", wantCode: "HSI", wantMkt: model.MarketIndexHK, wantKind: model.KindIndex},
		{name: "hk index alias caret", raw: "^HSI", wantCode: "HSI", wantMkt: model.MarketIndexHK, wantKind: model.KindIndex},
		{name: "hk index alias dotted", raw: "HK.HSI", wantCode: "HSI", wantMkt: model.MarketIndexHK, wantKind: model.KindIndex},
		{name: "hk index alias hang seng", raw: "Hang Seng", wantCode: "HSI", wantMkt: model.MarketIndexHK, wantKind: model.KindIndex},
		{name: "a-share index closed list", raw: "399006", wantCode: "399006", wantMkt: model.MarketIndexA, wantKind: model.KindIndex},
		{name: "unrecognized six digit prefix", raw: "999999", wantErr: true},
		{name: "too many digits", raw: "1234567", wantErr: true},
		{name: "letters", raw: "AAPL", wantErr: true},
		{name: "empty", raw: "   ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Normalize(%q) = %+v, want error", tt.raw, got)
				}
				if !errs.Is(err, errs.InvalidSymbol) {
					t.Fatalf("Normalize(%q) error kind = %v, want InvalidSymbol", tt.raw, errs.KindOf(err))
				}
				return
			}
			if err != nil {
				t.Fatalf("Normalize(%q) unexpected error: %v", tt.raw, err)
			}
			if got.CanonicalSymbol != tt.wantCode || got.Market != tt.wantMkt || got.Kind != tt.wantKind {
				t.Fatalf("Normalize(%q) = %+v, want {%s %s %s}", tt.raw, got, tt.wantCode, tt.wantMkt, tt.wantKind)
			}
		})
	}
}
