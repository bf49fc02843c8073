package crypto

import (
	"net/url"
	"strings"
	"testing"
)

func TestSignDocsVector(t *testing.T) {
	// Example request from the Binance signed-endpoint documentation.
	auth := &HMACAuth{
		Key:    "vmPUZE6mv9SD5VNHk4HlWFsOr6aKE2zvsw0MuIgwCIPy6utIco14y7Ju91duEh8A",
		Secret: "NhqPtmdSJYdKjVHjA7PZj4Mge3R5YNiP1e3UZjInClVN65XAbvqqM6A7H5fATj0j",
	}

	payload := "symbol=LTCBTC&side=BUY&type=LIMIT&timeInForce=GTC&quantity=1&price=0.1&recvWindow=5000&timestamp=1499827319559"
	want := "c8db56825ae71d6d79447849e617115f4a920fa2acdcab2b053c4b2838bd6b71"

	if got := auth.Sign(payload); got != want {
		t.Fatalf("Sign = %s, want %s", got, want)
	}
}

func TestSignQueryAt(t *testing.T) {
	auth := &HMACAuth{Key: "key", Secret: "secret"}

	params := url.Values{}
	params.Set("symbol", "BTCUSDT")

	signed := auth.SignQueryAt(params, 1700000000000)

	if !strings.Contains(signed, "timestamp=1700000000000") {
		t.Fatalf("signed query missing timestamp: %s", signed)
	}
	idx := strings.LastIndex(signed, "&signature=")
	if idx < 0 {
		t.Fatalf("signed query missing signature: %s", signed)
	}

	base, sig := signed[:idx], signed[idx+len("&signature="):]
	if want := auth.Sign(base); sig != want {
		t.Fatalf("signature %s does not cover query %s", sig, base)
	}
	if len(sig) != 64 {
		t.Fatalf("signature length = %d, want 64 hex chars", len(sig))
	}
}

func TestStringRedacts(t *testing.T) {
	auth := &HMACAuth{Key: "abcdef123456", Secret: "supersecret"}
	s := auth.String()
	if strings.Contains(s, "123456") || strings.Contains(s, "supersecret") {
		t.Fatalf("String leaked credentials: %s", s)
	}
}
