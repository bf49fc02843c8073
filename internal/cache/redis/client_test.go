package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

// testClient connects the wrapper to an in-process Redis that dies with the
// test.
func testClient(t *testing.T) *Client {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := New(context.Background(), ClientConfig{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestClientPing(t *testing.T) {
	c := testClient(t)
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
}
