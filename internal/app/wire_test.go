package app

import (
	"testing"

	"github.com/halfmoonlabs/crossarb/internal/config"
	"github.com/halfmoonlabs/crossarb/internal/domain"
)

func TestWatchlistMergesTriangularLegs(t *testing.T) {
	cfg := config.Defaults()
	cfg.Scanner.Symbols = []string{"BTC/USDT", "ETH/USDT"}
	cfg.Scanner.TriangularPaths = []string{"BTC/USDT>ETH/BTC>ETH/USDT"}

	watch, paths, err := watchlist(&cfg)
	if err != nil {
		t.Fatalf("watchlist: %v", err)
	}

	want := map[domain.Symbol]bool{"BTC/USDT": true, "ETH/USDT": true, "ETH/BTC": true}
	if len(watch) != len(want) {
		t.Fatalf("watch = %v, want %d symbols", watch, len(want))
	}
	for _, sym := range watch {
		if !want[sym] {
			t.Errorf("unexpected symbol %s", sym)
		}
	}

	if len(paths) != 1 {
		t.Fatalf("paths = %d, want 1", len(paths))
	}
	if paths[0][1] != "ETH/BTC" {
		t.Errorf("middle leg = %s, want ETH/BTC", paths[0][1])
	}
}

func TestWatchlistRejectsMalformedPath(t *testing.T) {
	cfg := config.Defaults()
	cfg.Scanner.TriangularPaths = []string{"BTC/USDT>ETH/BTC"}

	if _, _, err := watchlist(&cfg); err == nil {
		t.Fatal("watchlist: want error for two-leg path")
	}
}

func TestWatchlistRejectsBadSymbol(t *testing.T) {
	cfg := config.Defaults()
	cfg.Scanner.Symbols = []string{"BTCUSDT"}

	if _, _, err := watchlist(&cfg); err == nil {
		t.Fatal("watchlist: want error for symbol without separator")
	}
}
