package upstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"quantdb/internal/model"
)

func TestHTTPAdapter_FetchDaily_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/stock/daily" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode([]dailyBarDTO{
			{Date: "2024-01-02", Open: "10.0", High: "10.5", Low: "9.8", Close: "10.2", Volume: 1000000},
		})
	}))
	defer srv.Close()

	a := NewHTTPAdapter(srv.URL, 5*time.Second, 1, 100, 10)
	bars, err := a.FetchDaily(context.Background(), "600000", model.MarketShanghai,
		time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), model.AdjustRaw)
	if err != nil {
		t.Fatalf("FetchDaily: %v", err)
	}
	if len(bars) != 1 || bars[0].Symbol != "600000" {
		t.Fatalf("FetchDaily: unexpected result %+v", bars)
	}
}

func TestHTTPAdapter_FetchDaily_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	a := NewHTTPAdapter(srv.URL, 5*time.Second, 0, 100, 10)
	_, err := a.FetchDaily(context.Background(), "999999", model.MarketShanghai,
		time.Now(), time.Now(), model.AdjustRaw)
	if err == nil {
		t.Fatal("expected error")
	}
	if KindOf(err) != NotFound {
		t.Fatalf("KindOf = %v, want NotFound", KindOf(err))
	}
}

func TestHTTPAdapter_FetchDaily_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	a := NewHTTPAdapter(srv.URL, 5*time.Second, 0, 100, 10)
	_, err := a.FetchDaily(context.Background(), "600000", model.MarketShanghai,
		time.Now(), time.Now(), model.AdjustRaw)
	if err == nil {
		t.Fatal("expected error")
	}
	if KindOf(err) != Unauthorized {
		t.Fatalf("KindOf = %v, want Unauthorized", KindOf(err))
	}
}
