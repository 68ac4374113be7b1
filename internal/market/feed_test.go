package market

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func TestStubFeedDeterministic(t *testing.T) {
	a := NewStubFeed([]string{"B", "A", "A", ""}, 100)
	b := NewStubFeed([]string{"A", "B"}, 100)

	for i := 0; i < 5; i++ {
		pa, err := a.Fetch(context.Background())
		if err != nil {
			t.Fatalf("Fetch: %v", err)
		}
		pb, _ := b.Fetch(context.Background())
		if len(pa) != 2 {
			t.Fatalf("expected 2 symbols, got %d", len(pa))
		}
		for sym, px := range pa {
			if px <= 0 {
				t.Fatalf("non-positive stub price for %s", sym)
			}
			if pb[sym] != px {
				t.Fatalf("stub feed must be deterministic: %v vs %v", px, pb[sym])
			}
		}
	}
}

func TestStubFeedCancelled(t *testing.T) {
	f := NewStubFeed([]string{"A"}, 100)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.Fetch(ctx); err == nil {
		t.Fatalf("expected context error")
	}
}

func TestMarketsFeedFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/markets" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"markets":[
			{"pair":"SOL/USDC","price":150.5},
			{"pair":"ETH/USDC","price":3000},
			{"pair":"JUNK","price":-1},
			{"pair":"","price":5}
		]}`))
	}))
	defer server.Close()

	f := NewMarketsFeed(server.URL, []string{"SOL/USDC", "ETH/USDC"}, zerolog.Nop())
	prices, err := f.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(prices) != 2 || prices["SOL/USDC"] != 150.5 {
		t.Fatalf("unexpected prices: %+v", prices)
	}
}

func TestMarketsFeedFiltersPairs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"markets":[{"pair":"SOL/USDC","price":150},{"pair":"DOGE/USDC","price":0.1}]}`))
	}))
	defer server.Close()

	f := NewMarketsFeed(server.URL, []string{"SOL/USDC"}, zerolog.Nop())
	prices, _ := f.Fetch(context.Background())
	if len(prices) != 1 {
		t.Fatalf("expected only the allowed pair, got %+v", prices)
	}
}

func TestMarketsFeedErrorsAreNoUpdate(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()

	f := NewMarketsFeed(bad.URL, nil, zerolog.Nop())
	prices, err := f.Fetch(context.Background())
	if err != nil {
		t.Fatalf("server error must not surface: %v", err)
	}
	if len(prices) != 0 {
		t.Fatalf("expected no update, got %+v", prices)
	}

	malformed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer malformed.Close()

	f = NewMarketsFeed(malformed.URL, nil, zerolog.Nop())
	prices, err = f.Fetch(context.Background())
	if err != nil || len(prices) != 0 {
		t.Fatalf("malformed payload must be no update, got %+v err=%v", prices, err)
	}

	// unreachable host
	f = NewMarketsFeed("http://127.0.0.1:1", nil, zerolog.Nop())
	prices, err = f.Fetch(context.Background())
	if err != nil || len(prices) != 0 {
		t.Fatalf("connection failure must be no update, got %+v err=%v", prices, err)
	}
}

func TestRealizedPnl(t *testing.T) {
	// long: +1% on $10
	if got := RealizedPnl(Long, 100, 101, 10); got != 0.1 {
		t.Fatalf("long pnl: %v", got)
	}
	// short gains when price falls
	if got := RealizedPnl(Short, 100, 99, 10); got != 0.1 {
		t.Fatalf("short pnl: %v", got)
	}
	if got := RealizedPnl(Long, 100, 99, 10); got != -0.1 {
		t.Fatalf("long loss: %v", got)
	}
}

func TestSideOpposite(t *testing.T) {
	if Long.Opposite() != Short || Short.Opposite() != Long {
		t.Fatalf("opposite sides wrong")
	}
}
