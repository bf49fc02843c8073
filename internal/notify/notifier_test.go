package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
)

type fakeSender struct {
	name string
	sent []string
	err  error
}

func (f *fakeSender) Send(_ context.Context, title, _ string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, title)
	return nil
}

func (f *fakeSender) Name() string { return f.name }

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifyFiltersEvents(t *testing.T) {
	s := &fakeSender{name: "fake"}
	n := NewNotifier([]Sender{s}, []string{EventEmergencyExit}, discard())

	if err := n.Notify(context.Background(), EventScanSummary, "scan", "done"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(s.sent) != 0 {
		t.Fatalf("filtered event was delivered: %v", s.sent)
	}

	if err := n.Notify(context.Background(), EventEmergencyExit, "stranded", "BTC held"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(s.sent) != 1 || s.sent[0] != "stranded" {
		t.Fatalf("allowed event not delivered: %v", s.sent)
	}
}

func TestNotifyEmptyFilterAllowsAll(t *testing.T) {
	s := &fakeSender{name: "fake"}
	n := NewNotifier([]Sender{s}, nil, discard())

	if err := n.Notify(context.Background(), "anything", "t", "m"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(s.sent) != 1 {
		t.Fatalf("expected delivery with empty filter, got %v", s.sent)
	}
}

func TestNotifyAllBypassesFilterAndCollectsErrors(t *testing.T) {
	good := &fakeSender{name: "good"}
	bad := &fakeSender{name: "bad", err: errors.New("webhook down")}
	n := NewNotifier([]Sender{bad, good}, []string{EventTradeExecuted}, discard())

	err := n.NotifyAll(context.Background(), "title", "body")
	if err == nil {
		t.Fatal("expected combined error from failing sender")
	}
	if !strings.Contains(err.Error(), "bad: webhook down") {
		t.Fatalf("error missing sender detail: %v", err)
	}
	// The failing sender must not block the healthy one.
	if len(good.sent) != 1 {
		t.Fatalf("healthy sender skipped: %v", good.sent)
	}
}

func TestNotifyNoSenders(t *testing.T) {
	n := NewNotifier(nil, nil, discard())
	if err := n.NotifyAll(context.Background(), "t", "m"); err != nil {
		t.Fatalf("NotifyAll with no senders: %v", err)
	}
}
