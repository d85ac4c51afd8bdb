package ticket_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sautiplus/backoffice/core"
	"github.com/sautiplus/backoffice/core/testutil"
	"github.com/sautiplus/backoffice/core/ticket"
)

var (
	now      = time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	concert  = now.AddDate(0, 1, 0)
	qtyFive  = 5
	qtyThree = 3
)

func newEvent(t *testing.T, svc *ticket.Service, title string, startsAt time.Time, tiers ...ticket.NewTier) (ticket.Event, []ticket.Tier) {
	t.Helper()
	ctx := context.Background()
	e, err := svc.CreateEvent(ctx, ticket.NewEvent{Title: title, Venue: "Uhuru Gardens", StartsAt: startsAt})
	require.NoError(t, err)
	var created []ticket.Tier
	for _, nt := range tiers {
		tier, err := svc.CreateTier(ctx, e.ID, nt)
		require.NoError(t, err)
		created = append(created, tier)
	}
	return e, created
}

func TestService_EventLifecycle(t *testing.T) {
	env := testutil.NewEnv(t, now)
	svc := env.TicketSvc
	ctx := context.Background()

	_, err := svc.CreateEvent(ctx, ticket.NewEvent{Title: "Sauti Live", StartsAt: concert})
	assert.IsType(t, validator.ValidationErrors{}, err, "venue is required")

	e, _ := newEvent(t, svc, " Sauti Live ", concert)
	assert.Equal(t, "Sauti Live", e.Title)
	assert.Equal(t, ticket.EventDraft, e.Status)

	_, err = svc.Publish(ctx, e.ID)
	assert.Equal(t, ticket.ErrNoTiers, err)

	_, err = svc.CreateTier(ctx, e.ID, ticket.NewTier{Name: "Early bird", Price: 500, Quantity: 10, SalesStart: concert, SalesEnd: now})
	var verr *core.ValidationError
	if assert.ErrorAs(t, err, &verr) {
		assert.Equal(t, "sales_end", verr.Fields[0].Field)
	}
	_, err = svc.CreateTier(ctx, "missing", ticket.NewTier{Name: "Regular", Price: 1_000, Quantity: 10})
	assert.Equal(t, ticket.ErrEventNotFound, err)

	_, err = svc.CreateTier(ctx, e.ID, ticket.NewTier{Name: "Regular", Price: 1_000, Quantity: 10})
	require.NoError(t, err)

	venue := "KICC"
	e, err = svc.UpdateEvent(ctx, e.ID, ticket.UpdateEvent{Venue: &venue})
	require.NoError(t, err)
	assert.Equal(t, "KICC", e.Venue)
	assert.Equal(t, "Sauti Live", e.Title)

	e, err = svc.Publish(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, ticket.EventPublished, e.Status)
	_, err = svc.Publish(ctx, e.ID)
	assert.Equal(t, ticket.ErrEventNotDraft, err)
	assert.Len(t, env.Events.Events(ticket.EvtEventPublished), 1)

	draft, _ := newEvent(t, svc, "Rehearsal", now.AddDate(0, 0, 7))
	events, err := svc.ListEvents(ctx, ticket.EventFilter{}, core.Page{})
	require.NoError(t, err)
	if assert.Len(t, events, 2) {
		assert.Equal(t, draft.ID, events[0].ID, "ordered by start")
	}
	events, err = svc.ListEvents(ctx, ticket.EventFilter{Status: ticket.EventPublished}, core.Page{})
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestService_Purchase(t *testing.T) {
	env := testutil.NewEnv(t, now)
	svc := env.TicketSvc
	ctx := context.Background()

	e, tiers := newEvent(t, svc, "Sauti Live", concert,
		ticket.NewTier{Name: "Regular", Price: 1_000, Quantity: 5},
		ticket.NewTier{Name: "Early bird", Price: 500, Quantity: 5, SalesEnd: now.Add(-time.Hour)},
	)
	regular, early := tiers[0], tiers[1]

	_, err := svc.Purchase(ctx, ticket.NewOrder{TierID: regular.ID, UserID: "user-1", Quantity: 2})
	assert.Equal(t, ticket.ErrEventNotPublished, err)

	_, err = svc.Publish(ctx, e.ID)
	require.NoError(t, err)

	tests := []struct {
		name    string
		order   ticket.NewOrder
		wantErr error
	}{
		{name: "sales ended", order: ticket.NewOrder{TierID: early.ID, UserID: "user-1", Quantity: 1}, wantErr: ticket.ErrSalesClosed},
		{name: "unknown tier", order: ticket.NewOrder{TierID: "missing", UserID: "user-1", Quantity: 1}, wantErr: ticket.ErrTierNotFound},
		{name: "too many", order: ticket.NewOrder{TierID: regular.ID, UserID: "user-1", Quantity: 6}, wantErr: ticket.ErrSoldOut},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Purchase(ctx, tt.order)
			assert.Equal(t, tt.wantErr, err)
		})
	}

	_, err = svc.Purchase(ctx, ticket.NewOrder{TierID: regular.ID, UserID: "user-1", Quantity: 11})
	assert.IsType(t, validator.ValidationErrors{}, err)

	o, err := svc.Purchase(ctx, ticket.NewOrder{TierID: regular.ID, UserID: "user-1", Quantity: 2, IdempotencyKey: "cart-1"})
	require.NoError(t, err)
	assert.Equal(t, int64(2_000), o.Total)
	assert.Equal(t, ticket.OrderConfirmed, o.Status)

	replay, err := svc.Purchase(ctx, ticket.NewOrder{TierID: regular.ID, UserID: "user-1", Quantity: 2, IdempotencyKey: "cart-1"})
	require.NoError(t, err)
	assert.Equal(t, o.ID, replay.ID)
	_, err = svc.Purchase(ctx, ticket.NewOrder{TierID: regular.ID, UserID: "user-1", Quantity: 3, IdempotencyKey: "cart-1"})
	assert.Equal(t, ticket.ErrIdempotencyMismatch, err)
	assert.Len(t, env.Events.Events(ticket.EvtOrderConfirmed), 1)

	avail, err := svc.Availability(ctx, e.ID)
	require.NoError(t, err)
	if assert.Len(t, avail, 2) {
		byName := map[string]ticket.Availability{}
		for _, a := range avail {
			byName[a.Tier.Name] = a
		}
		assert.Equal(t, 3, byName["Regular"].Remaining)
		assert.True(t, byName["Regular"].OnSale)
		assert.False(t, byName["Early bird"].OnSale)
	}

	// quantity cannot drop below what was sold
	one := 1
	_, err = svc.UpdateTier(ctx, regular.ID, ticket.UpdateTier{Quantity: &one})
	var verr *core.ValidationError
	if assert.ErrorAs(t, err, &verr) {
		assert.Equal(t, ticket.ErrQuantityBelowSold, verr.Err)
	}
	tier, err := svc.UpdateTier(ctx, regular.ID, ticket.UpdateTier{Quantity: &qtyThree})
	require.NoError(t, err)
	assert.Equal(t, 1, tier.Remaining())

	_, err = svc.Purchase(ctx, ticket.NewOrder{TierID: regular.ID, UserID: "user-2", Quantity: 2})
	assert.Equal(t, ticket.ErrSoldOut, err)

	cancelled, err := svc.CancelOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, ticket.OrderCancelled, cancelled.Status)
	assert.Equal(t, now, cancelled.CancelledAt)
	_, err = svc.CancelOrder(ctx, o.ID)
	assert.Equal(t, ticket.ErrOrderCancelled, err)

	tier, err = svc.UpdateTier(ctx, regular.ID, ticket.UpdateTier{Quantity: &qtyFive})
	require.NoError(t, err)
	assert.Equal(t, 5, tier.Remaining())
}

func TestService_Cancel(t *testing.T) {
	env := testutil.NewEnv(t, now)
	svc := env.TicketSvc
	ctx := context.Background()

	e, tiers := newEvent(t, svc, "Sauti Live", concert, ticket.NewTier{Name: "Regular", Price: 1_000, Quantity: 50})
	_, err := svc.Publish(ctx, e.ID)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := svc.Purchase(ctx, ticket.NewOrder{TierID: tiers[0].ID, UserID: fmt.Sprintf("user-%d", i), Quantity: 2})
		require.NoError(t, err)
	}
	first, err := svc.ListOrders(ctx, ticket.OrderFilter{UserID: "user-0"}, core.Page{})
	require.NoError(t, err)
	require.Len(t, first, 1)
	_, err = svc.CancelOrder(ctx, first[0].ID)
	require.NoError(t, err)

	e, cancelled, err := svc.Cancel(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, ticket.EventCancelled, e.Status)
	assert.Len(t, cancelled, 2, "only confirmed orders")

	orders, err := svc.ListOrders(ctx, ticket.OrderFilter{EventID: e.ID, Status: ticket.OrderConfirmed}, core.Page{})
	require.NoError(t, err)
	assert.Empty(t, orders)

	_, _, err = svc.Cancel(ctx, e.ID)
	assert.Equal(t, ticket.ErrEventCancelled, err)
	title := "Sauti Live II"
	_, err = svc.UpdateEvent(ctx, e.ID, ticket.UpdateEvent{Title: &title})
	assert.Equal(t, ticket.ErrEventCancelled, err)
	_, err = svc.Purchase(ctx, ticket.NewOrder{TierID: tiers[0].ID, UserID: "user-9", Quantity: 1})
	assert.Equal(t, ticket.ErrEventNotPublished, err)
}

// lockRecorder records the row locks taken through it.
type lockRecorder struct {
	ticket.Repository
	locks []string
}

func (r *lockRecorder) LockEvent(ctx context.Context, id string) (ticket.Event, error) {
	r.locks = append(r.locks, "event")
	return r.Repository.LockEvent(ctx, id)
}

func (r *lockRecorder) ShareLockEvent(ctx context.Context, id string) (ticket.Event, error) {
	r.locks = append(r.locks, "event:share")
	return r.Repository.ShareLockEvent(ctx, id)
}

func (r *lockRecorder) LockTier(ctx context.Context, id string) (ticket.Tier, error) {
	r.locks = append(r.locks, "tier")
	return r.Repository.LockTier(ctx, id)
}

func (r *lockRecorder) LockOrder(ctx context.Context, id string) (ticket.Order, error) {
	r.locks = append(r.locks, "order")
	return r.Repository.LockOrder(ctx, id)
}

func TestService_LockOrder(t *testing.T) {
	env := testutil.NewEnv(t, now)
	ctx := context.Background()

	e, tiers := newEvent(t, env.TicketSvc, "Sauti Live", concert, ticket.NewTier{Name: "Regular", Price: 1_000, Quantity: 50})
	_, err := env.TicketSvc.Publish(ctx, e.ID)
	require.NoError(t, err)

	repo := &lockRecorder{Repository: env.TicketRepo}
	svc := ticket.NewService(repo, env.DB, env.Events, env.Logger, env.Validate)
	svc.NowFunc = func() time.Time { return now }

	_, err = svc.Purchase(ctx, ticket.NewOrder{TierID: tiers[0].ID, UserID: "user-1", Quantity: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"event:share", "tier"}, repo.locks)

	repo.locks = nil
	_, _, err = svc.Cancel(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"event", "order", "tier"}, repo.locks)
}

func TestService_TierPriceCap(t *testing.T) {
	env := testutil.NewEnv(t, now)
	svc := env.TicketSvc
	ctx := context.Background()

	e, _ := newEvent(t, svc, "Sauti Live", concert)
	_, err := svc.CreateTier(ctx, e.ID, ticket.NewTier{Name: "VVIP", Price: ticket.MaxTierPrice, Quantity: 10})
	require.NoError(t, err)
	_, err = svc.CreateTier(ctx, e.ID, ticket.NewTier{Name: "Gold", Price: ticket.MaxTierPrice + 1, Quantity: 10})
	assert.IsType(t, validator.ValidationErrors{}, err)

	tiers, err := svc.ListTiers(ctx, e.ID)
	require.NoError(t, err)
	require.Len(t, tiers, 1)
	price := ticket.MaxTierPrice + 1
	_, err = svc.UpdateTier(ctx, tiers[0].ID, ticket.UpdateTier{Price: &price})
	assert.IsType(t, validator.ValidationErrors{}, err)
}

func TestService_ConcurrentPurchases(t *testing.T) {
	env := testutil.NewEnv(t, now)
	svc := env.TicketSvc
	ctx := context.Background()

	e, tiers := newEvent(t, svc, "Sauti Live", concert, ticket.NewTier{Name: "VIP", Price: 5_000, Quantity: 10})
	_, err := svc.Publish(ctx, e.ID)
	require.NoError(t, err)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		sold int
	)
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			o, err := svc.Purchase(ctx, ticket.NewOrder{TierID: tiers[0].ID, UserID: fmt.Sprintf("user-%d", i), Quantity: 1})
			if err != nil {
				assert.Equal(t, ticket.ErrSoldOut, err)
				return
			}
			mu.Lock()
			sold += o.Quantity
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 10, sold)
	avail, err := svc.Availability(ctx, e.ID)
	require.NoError(t, err)
	assert.Zero(t, avail[0].Remaining)
	assert.False(t, avail[0].OnSale)
}
