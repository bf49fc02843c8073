package venue

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/halfmoonlabs/crossarb/internal/domain"
)

type fakeTarget struct {
	placed []domain.OrderRequest
}

func (f *fakeTarget) PlaceOrder(_ context.Context, req domain.OrderRequest) (string, error) {
	f.placed = append(f.placed, req)
	return "order-1", nil
}

func (f *fakeTarget) GetOrderState(context.Context, string, domain.Symbol, string) (domain.OrderState, error) {
	return domain.OrderState{OrderID: "order-1", Status: domain.OrderStatusFilled}, nil
}

func (f *fakeTarget) CancelOrder(context.Context, string, domain.Symbol, string) error {
	return nil
}

func (f *fakeTarget) GetAvailableBalance(context.Context, string, string) (decimal.Decimal, error) {
	return decimal.NewFromInt(42), nil
}

func (f *fakeTarget) GetFeeSchedule(_ context.Context, venue string) (domain.FeeSchedule, error) {
	return domain.FeeSchedule{Venue: venue, TakerRate: decimal.RequireFromString("0.001")}, nil
}

func TestRouterDispatch(t *testing.T) {
	r := NewRouter()
	a := &fakeTarget{}
	b := &fakeTarget{}
	r.Register("alpha", a)
	r.Register("beta", b)

	ctx := context.Background()

	if _, err := r.PlaceOrder(ctx, domain.OrderRequest{Venue: "beta", Symbol: "BTC/USDT"}); err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if len(a.placed) != 0 || len(b.placed) != 1 {
		t.Fatalf("order routed to wrong venue: alpha=%d beta=%d", len(a.placed), len(b.placed))
	}

	bal, err := r.GetAvailableBalance(ctx, "alpha", "USDT")
	if err != nil || !bal.Equal(decimal.NewFromInt(42)) {
		t.Fatalf("balance = %v, err %v", bal, err)
	}

	fee, err := r.GetFeeSchedule(ctx, "alpha")
	if err != nil || fee.Venue != "alpha" {
		t.Fatalf("fee schedule = %+v, err %v", fee, err)
	}
}

func TestRouterUnknownVenue(t *testing.T) {
	r := NewRouter()

	_, err := r.PlaceOrder(context.Background(), domain.OrderRequest{Venue: "nowhere"})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if err := r.CancelOrder(context.Background(), "nowhere", "BTC/USDT", "x"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("cancel err = %v, want ErrNotFound", err)
	}
}

func TestRouterVenues(t *testing.T) {
	r := NewRouter()
	r.Register("alpha", &fakeTarget{})
	r.Register("beta", &fakeTarget{})

	if got := len(r.Venues()); got != 2 {
		t.Fatalf("venues = %d, want 2", got)
	}
}
