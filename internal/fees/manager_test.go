package fees

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/halfmoonlabs/crossarb/internal/domain"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type fakeSchedules struct {
	schedules map[string]domain.FeeSchedule
	calls     int
	err       error
}

func (f *fakeSchedules) GetFeeSchedule(_ context.Context, venue string) (domain.FeeSchedule, error) {
	f.calls++
	if f.err != nil {
		return domain.FeeSchedule{}, f.err
	}
	s, ok := f.schedules[venue]
	if !ok {
		return domain.FeeSchedule{}, domain.ErrNotFound
	}
	return s, nil
}

func TestEffectiveFee(t *testing.T) {
	src := &fakeSchedules{schedules: map[string]domain.FeeSchedule{
		"alpha": {Venue: "alpha", MakerRate: d("0.0002"), TakerRate: d("0.0004")},
	}}
	m := NewManager(Config{}, src, discard())
	ctx := context.Background()

	taker, err := m.GetEffectiveFee(ctx, "alpha", d("1000"), false)
	if err != nil {
		t.Fatalf("taker: %v", err)
	}
	if !taker.Equal(d("0.0004")) {
		t.Fatalf("taker = %s, want 0.0004", taker)
	}

	maker, err := m.GetEffectiveFee(ctx, "alpha", d("1000"), true)
	if err != nil {
		t.Fatalf("maker: %v", err)
	}
	if !maker.Equal(d("0.0002")) {
		t.Fatalf("maker = %s, want 0.0002", maker)
	}
}

func TestEffectiveFeeVenueTokenDiscount(t *testing.T) {
	src := &fakeSchedules{schedules: map[string]domain.FeeSchedule{
		"alpha": {Venue: "alpha", TakerRate: d("0.001"), TokenDiscount: d("0.25")},
	}}
	m := NewManager(Config{UseVenueToken: true}, src, discard())

	fee, err := m.GetEffectiveFee(context.Background(), "alpha", d("1000"), false)
	if err != nil {
		t.Fatalf("fee: %v", err)
	}
	if !fee.Equal(d("0.00075")) {
		t.Fatalf("fee = %s, want 0.00075 after 25%% discount", fee)
	}
}

func TestEffectiveFeeFallback(t *testing.T) {
	src := &fakeSchedules{err: errors.New("venue down")}
	m := NewManager(Config{}, src, discard())

	fee, err := m.GetEffectiveFee(context.Background(), "alpha", d("1000"), false)
	if err != nil {
		t.Fatalf("fallback must not error: %v", err)
	}
	if !fee.Equal(DefaultTakerRate) {
		t.Fatalf("fee = %s, want default %s", fee, DefaultTakerRate)
	}
}

func TestScheduleCaching(t *testing.T) {
	src := &fakeSchedules{schedules: map[string]domain.FeeSchedule{
		"alpha": {Venue: "alpha", TakerRate: d("0.0004")},
	}}
	m := NewManager(Config{RefreshInterval: time.Hour}, src, discard())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := m.GetEffectiveFee(ctx, "alpha", d("1000"), false); err != nil {
			t.Fatalf("fee: %v", err)
		}
	}
	if src.calls != 1 {
		t.Fatalf("schedule fetched %d times inside TTL, want 1", src.calls)
	}
}

func TestStaleScheduleSurvivesFetchFailure(t *testing.T) {
	src := &fakeSchedules{schedules: map[string]domain.FeeSchedule{
		"alpha": {Venue: "alpha", TakerRate: d("0.0004")},
	}}
	m := NewManager(Config{RefreshInterval: time.Nanosecond}, src, discard())
	ctx := context.Background()

	if _, err := m.GetEffectiveFee(ctx, "alpha", d("1000"), false); err != nil {
		t.Fatalf("prime: %v", err)
	}
	src.err = errors.New("venue down")
	time.Sleep(time.Millisecond)

	fee, err := m.GetEffectiveFee(ctx, "alpha", d("1000"), false)
	if err != nil {
		t.Fatalf("stale read: %v", err)
	}
	if !fee.Equal(d("0.0004")) {
		t.Fatalf("fee = %s, want stale cached 0.0004", fee)
	}
}
