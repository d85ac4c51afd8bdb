package ticket

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/sautiplus/backoffice/core"
)

var (
	// errors
	ErrEventNotFound       = core.NewNotFoundError("event not found")
	ErrTierNotFound        = core.NewNotFoundError("ticket tier not found")
	ErrOrderNotFound       = core.NewNotFoundError("order not found")
	ErrEventCancelled      = core.NewStateError("event is cancelled")
	ErrEventNotDraft       = core.NewStateError("event is not a draft")
	ErrEventNotPublished   = core.NewStateError("event is not published")
	ErrNoTiers             = core.NewStateError("an event needs at least one ticket tier to be published")
	ErrSalesClosed         = core.NewStateError("ticket sales are closed for this tier")
	ErrSoldOut             = core.NewStateError("not enough tickets left")
	ErrOrderCancelled      = core.NewStateError("order is already cancelled")
	ErrIdempotencyMismatch = core.NewConflictError("idempotency key already used with a different order")
	ErrQuantityBelowSold   = errors.New("quantity cannot be less than the tickets sold")
	ErrInvalidSalesWindow  = errors.New("sales must start before they end")
)

// Events
const (
	EvtEventPublished = "ticket.event.published"
	EvtEventCancelled = "ticket.event.cancelled"
	EvtOrderConfirmed = "ticket.order.confirmed"
	EvtOrderCancelled = "ticket.order.cancelled"
)

type (
	Repository interface {
		CreateEvent(ctx context.Context, e Event) (Event, error)
		GetEvent(ctx context.Context, id string) (Event, error)
		LockEvent(ctx context.Context, id string) (Event, error)
		// ShareLockEvent blocks LockEvent until the transaction ends without blocking other share locks.
		ShareLockEvent(ctx context.Context, id string) (Event, error)
		UpdateEvent(ctx context.Context, e Event) (Event, error)
		QueryEvents(ctx context.Context, filter EventFilter, ordering []core.DBOrdering, page core.Page) ([]Event, error)

		CreateTier(ctx context.Context, t Tier) (Tier, error)
		GetTier(ctx context.Context, id string) (Tier, error)
		LockTier(ctx context.Context, id string) (Tier, error)
		UpdateTier(ctx context.Context, t Tier) (Tier, error)
		QueryTiers(ctx context.Context, eventID string) ([]Tier, error)

		CreateOrder(ctx context.Context, o Order) (Order, error)
		GetOrder(ctx context.Context, id string) (Order, error)
		LockOrder(ctx context.Context, id string) (Order, error)
		GetOrderByKey(ctx context.Context, userID, key string) (Order, error)
		UpdateOrder(ctx context.Context, o Order) (Order, error)
		QueryOrders(ctx context.Context, filter OrderFilter, ordering []core.DBOrdering, page core.Page) ([]Order, error)
	}

	Service struct {
		repo     Repository
		tx       core.Transactor
		events   core.EventPublisher
		log      core.Logger
		validate *validator.Validate
		NowFunc  func() time.Time // mockable
	}
)

var (
	EventOrderingFields = []string{"starts_at", "title", "created_at"}
	OrderOrderingFields = []string{"created_at", "total"}
)

func NewService(repo Repository, tx core.Transactor, events core.EventPublisher, logger core.Logger, validate *validator.Validate) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(tx, "tx"),
		vala.IsNotNil(events, "events"),
		vala.IsNotNil(logger, "logger"),
		vala.IsNotNil(validate, "validate"),
	).CheckAndPanic()

	return &Service{repo: repo, tx: tx, events: events, log: logger, validate: validate, NowFunc: core.Now}
}

// Events

func (svc *Service) CreateEvent(ctx context.Context, ne NewEvent) (Event, error) {
	ne.clean()
	if err := svc.validate.Struct(ne); err != nil {
		return Event{}, err
	}
	now := svc.NowFunc()
	return svc.repo.CreateEvent(ctx, Event{
		ID:          uuid.NewString(),
		Title:       ne.Title,
		Description: ne.Description,
		Venue:       ne.Venue,
		StartsAt:    ne.StartsAt,
		Status:      EventDraft,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}

func (svc *Service) UpdateEvent(ctx context.Context, id string, ue UpdateEvent) (Event, error) {
	for _, s := range []*string{ue.Title, ue.Description, ue.Venue} {
		if s != nil {
			*s = core.CleanString(*s)
		}
	}
	if err := svc.validate.Struct(ue); err != nil {
		return Event{}, err
	}

	var e Event
	err := svc.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		if e, err = svc.repo.LockEvent(ctx, id); err != nil {
			return err
		}
		if e.Status == EventCancelled {
			return ErrEventCancelled
		}
		if ue.Title != nil {
			e.Title = *ue.Title
		}
		if ue.Description != nil {
			e.Description = *ue.Description
		}
		if ue.Venue != nil {
			e.Venue = *ue.Venue
		}
		if ue.StartsAt != nil && !ue.StartsAt.IsZero() {
			e.StartsAt = ue.StartsAt.UTC()
		}
		e.UpdatedAt = svc.NowFunc()
		e, err = svc.repo.UpdateEvent(ctx, e)
		return errors.Wrap(err, "updating event")
	})
	if err != nil {
		return Event{}, err
	}
	return e, nil
}

func (svc *Service) GetEvent(ctx context.Context, id string) (Event, error) {
	return svc.repo.GetEvent(ctx, id)
}

func (svc *Service) ListEvents(ctx context.Context, filter EventFilter, page core.Page, ordering ...core.DBOrdering) ([]Event, error) {
	filter.Clean()
	page.Clean()
	ordering = core.FilterOrderings(ordering, EventOrderingFields...)
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "starts_at", Ascending: true}}
	}
	return svc.repo.QueryEvents(ctx, filter, ordering, page)
}

// Publish opens a draft event for sales.
func (svc *Service) Publish(ctx context.Context, id string) (Event, error) {
	var e Event
	err := svc.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		if e, err = svc.repo.LockEvent(ctx, id); err != nil {
			return err
		}
		if e.Status != EventDraft {
			return ErrEventNotDraft
		}
		tiers, err := svc.repo.QueryTiers(ctx, e.ID)
		if err != nil {
			return errors.Wrap(err, "querying tiers")
		}
		if len(tiers) == 0 {
			return ErrNoTiers
		}
		e.Status = EventPublished
		e.UpdatedAt = svc.NowFunc()
		e, err = svc.repo.UpdateEvent(ctx, e)
		return errors.Wrap(err, "updating event")
	})
	if err != nil {
		return Event{}, err
	}
	svc.events.Publish(ctx, core.NewEvent(EvtEventPublished, e.ID, e))
	return e, nil
}

// Cancel cancels an event along with all its confirmed orders. Returns the cancelled orders.
func (svc *Service) Cancel(ctx context.Context, id string) (Event, []Order, error) {
	var (
		e         Event
		cancelled []Order
	)
	err := svc.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		if e, err = svc.repo.LockEvent(ctx, id); err != nil {
			return err
		}
		if e.Status == EventCancelled {
			return ErrEventCancelled
		}

		orders, err := svc.confirmedOrders(ctx, e.ID)
		if err != nil {
			return err
		}
		for _, o := range orders {
			co, err := svc.cancelOrder(ctx, o.ID)
			if err != nil {
				return errors.Wrapf(err, "cancelling order %s", o.ID)
			}
			cancelled = append(cancelled, co)
		}

		e.Status = EventCancelled
		e.UpdatedAt = svc.NowFunc()
		e, err = svc.repo.UpdateEvent(ctx, e)
		return errors.Wrap(err, "updating event")
	})
	if err != nil {
		return Event{}, nil, err
	}

	evts := []core.Event{core.NewEvent(EvtEventCancelled, e.ID, e)}
	for _, o := range cancelled {
		evts = append(evts, core.NewEvent(EvtOrderCancelled, o.EventID, o))
	}
	svc.events.Publish(ctx, evts...)
	return e, cancelled, nil
}

func (svc *Service) confirmedOrders(ctx context.Context, eventID string) ([]Order, error) {
	var (
		orders []Order
		page   = core.Page{Limit: core.MaxPageLimit}
	)
	for {
		batch, err := svc.repo.QueryOrders(ctx, OrderFilter{EventID: eventID, Status: OrderConfirmed},
			[]core.DBOrdering{{Field: "created_at", Ascending: true}}, page)
		if err != nil {
			return nil, errors.Wrap(err, "querying orders")
		}
		orders = append(orders, batch...)
		if len(batch) < page.Limit {
			return orders, nil
		}
		page.Offset += page.Limit
	}
}

// Tiers

func (svc *Service) CreateTier(ctx context.Context, eventID string, nt NewTier) (Tier, error) {
	nt.Name = core.CleanString(nt.Name)
	if err := svc.validate.Struct(nt); err != nil {
		return Tier{}, err
	}
	if err := checkSalesWindow(nt.SalesStart, nt.SalesEnd); err != nil {
		return Tier{}, err
	}

	var t Tier
	err := svc.tx.WithTx(ctx, func(ctx context.Context) error {
		e, err := svc.repo.LockEvent(ctx, eventID)
		if err != nil {
			return err
		}
		if e.Status == EventCancelled {
			return ErrEventCancelled
		}
		now := svc.NowFunc()
		t, err = svc.repo.CreateTier(ctx, Tier{
			ID:         uuid.NewString(),
			EventID:    e.ID,
			Name:       nt.Name,
			Price:      nt.Price,
			Quantity:   nt.Quantity,
			SalesStart: nt.SalesStart.UTC(),
			SalesEnd:   nt.SalesEnd.UTC(),
			CreatedAt:  now,
			UpdatedAt:  now,
		})
		return errors.Wrap(err, "creating tier")
	})
	if err != nil {
		return Tier{}, err
	}
	return t, nil
}

// UpdateTier changes a tier; its quantity can never go below the tickets already sold.
func (svc *Service) UpdateTier(ctx context.Context, id string, ut UpdateTier) (Tier, error) {
	if ut.Name != nil {
		*ut.Name = core.CleanString(*ut.Name)
	}
	if err := svc.validate.Struct(ut); err != nil {
		return Tier{}, err
	}

	var t Tier
	err := svc.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		if t, err = svc.repo.LockTier(ctx, id); err != nil {
			return err
		}
		if ut.Name != nil {
			t.Name = *ut.Name
		}
		if ut.Price != nil {
			t.Price = *ut.Price
		}
		if ut.Quantity != nil {
			if *ut.Quantity < t.Sold {
				return core.NewFieldError("quantity", ErrQuantityBelowSold)
			}
			t.Quantity = *ut.Quantity
		}
		if ut.SalesStart != nil {
			t.SalesStart = ut.SalesStart.UTC()
		}
		if ut.SalesEnd != nil {
			t.SalesEnd = ut.SalesEnd.UTC()
		}
		if err = checkSalesWindow(t.SalesStart, t.SalesEnd); err != nil {
			return err
		}
		t.UpdatedAt = svc.NowFunc()
		t, err = svc.repo.UpdateTier(ctx, t)
		return errors.Wrap(err, "updating tier")
	})
	if err != nil {
		return Tier{}, err
	}
	return t, nil
}

func (svc *Service) ListTiers(ctx context.Context, eventID string) ([]Tier, error) {
	if _, err := svc.repo.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}
	return svc.repo.QueryTiers(ctx, eventID)
}

// Availability returns the remaining tickets per tier of an event.
func (svc *Service) Availability(ctx context.Context, eventID string) ([]Availability, error) {
	e, err := svc.repo.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	tiers, err := svc.repo.QueryTiers(ctx, e.ID)
	if err != nil {
		return nil, errors.Wrap(err, "querying tiers")
	}

	now := svc.NowFunc()
	avail := make([]Availability, len(tiers))
	for i, t := range tiers {
		avail[i] = Availability{
			Tier:      t,
			Remaining: t.Remaining(),
			OnSale:    e.Status == EventPublished && t.Remaining() > 0 && t.OnSale(now, e.StartsAt),
		}
	}
	return avail, nil
}

func checkSalesWindow(start, end time.Time) error {
	if !start.IsZero() && !end.IsZero() && !start.Before(end) {
		return core.NewFieldError("sales_end", ErrInvalidSalesWindow)
	}
	return nil
}

// Orders

// Purchase books tickets on a tier. The tier row is locked so that sold never exceeds quantity;
// its event is share-locked first so that a concurrent Cancel sees the order.
// Replaying an idempotency key returns the original order.
func (svc *Service) Purchase(ctx context.Context, no NewOrder) (Order, error) {
	no.TierID = core.CleanString(no.TierID)
	no.UserID = core.CleanString(no.UserID)
	no.IdempotencyKey = core.CleanString(no.IdempotencyKey)
	if err := svc.validate.Struct(no); err != nil {
		return Order{}, err
	}

	var (
		o       Order
		created bool
	)
	err := svc.tx.WithTx(ctx, func(ctx context.Context) error {
		t, err := svc.repo.GetTier(ctx, no.TierID)
		if err != nil {
			return err
		}
		// events before tiers, like Cancel
		e, err := svc.repo.ShareLockEvent(ctx, t.EventID)
		if err != nil {
			return errors.Wrap(err, "locking event")
		}
		if t, err = svc.repo.LockTier(ctx, no.TierID); err != nil {
			return errors.Wrap(err, "locking tier")
		}
		if no.IdempotencyKey != "" {
			prev, err := svc.repo.GetOrderByKey(ctx, no.UserID, no.IdempotencyKey)
			switch {
			case err == nil:
				if prev.TierID != no.TierID || prev.Quantity != no.Quantity {
					return ErrIdempotencyMismatch
				}
				o = prev
				return nil
			case !core.IsNotFound(err):
				return errors.Wrap(err, "getting order by key")
			}
		}

		if e.Status != EventPublished {
			return ErrEventNotPublished
		}
		now := svc.NowFunc()
		if !t.OnSale(now, e.StartsAt) {
			return ErrSalesClosed
		}
		if t.Sold+no.Quantity > t.Quantity {
			return ErrSoldOut
		}

		t.Sold += no.Quantity
		t.UpdatedAt = now
		if _, err = svc.repo.UpdateTier(ctx, t); err != nil {
			return errors.Wrap(err, "updating tier")
		}
		o, err = svc.repo.CreateOrder(ctx, Order{
			ID:             uuid.NewString(),
			EventID:        e.ID,
			TierID:         t.ID,
			UserID:         no.UserID,
			Quantity:       no.Quantity,
			UnitPrice:      t.Price,
			Total:          t.Price * int64(no.Quantity),
			Status:         OrderConfirmed,
			IdempotencyKey: no.IdempotencyKey,
			CreatedAt:      now,
		})
		created = err == nil
		return errors.Wrap(err, "creating order")
	})
	if err != nil {
		return Order{}, err
	}
	if created {
		svc.events.Publish(ctx, core.NewEvent(EvtOrderConfirmed, o.EventID, o))
	}
	return o, nil
}

// CancelOrder cancels a confirmed order and puts its tickets back on sale.
func (svc *Service) CancelOrder(ctx context.Context, id string) (Order, error) {
	var o Order
	err := svc.tx.WithTx(ctx, func(ctx context.Context) (err error) {
		o, err = svc.cancelOrder(ctx, id)
		return err
	})
	if err != nil {
		return Order{}, err
	}
	svc.events.Publish(ctx, core.NewEvent(EvtOrderCancelled, o.EventID, o))
	return o, nil
}

// cancelOrder must run inside a transaction.
func (svc *Service) cancelOrder(ctx context.Context, id string) (Order, error) {
	o, err := svc.repo.LockOrder(ctx, id)
	if err != nil {
		return Order{}, err
	}
	if o.Status == OrderCancelled {
		return Order{}, ErrOrderCancelled
	}
	t, err := svc.repo.LockTier(ctx, o.TierID)
	if err != nil {
		return Order{}, errors.Wrap(err, "locking tier")
	}

	now := svc.NowFunc()
	t.Sold -= o.Quantity
	if t.Sold < 0 {
		t.Sold = 0
	}
	t.UpdatedAt = now
	if _, err = svc.repo.UpdateTier(ctx, t); err != nil {
		return Order{}, errors.Wrap(err, "updating tier")
	}
	o.Status = OrderCancelled
	o.CancelledAt = now
	o, err = svc.repo.UpdateOrder(ctx, o)
	return o, errors.Wrap(err, "updating order")
}

func (svc *Service) GetOrder(ctx context.Context, id string) (Order, error) {
	return svc.repo.GetOrder(ctx, id)
}

func (svc *Service) ListOrders(ctx context.Context, filter OrderFilter, page core.Page, ordering ...core.DBOrdering) ([]Order, error) {
	filter.Clean()
	page.Clean()
	ordering = core.FilterOrderings(ordering, OrderOrderingFields...)
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "created_at"}}
	}
	return svc.repo.QueryOrders(ctx, filter, ordering, page)
}
