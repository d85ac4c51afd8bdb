package ticket

import (
	"time"

	"github.com/sautiplus/backoffice/core"
)

type EventStatus string

const (
	EventDraft     EventStatus = "draft"
	EventPublished EventStatus = "published"
	EventCancelled EventStatus = "cancelled"
)

type Event struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Venue       string      `json:"venue"`
	StartsAt    time.Time   `json:"starts_at"`
	Status      EventStatus `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

type NewEvent struct {
	Title       string    `json:"title" validate:"required,max=256"`
	Description string    `json:"description"`
	Venue       string    `json:"venue" validate:"required,max=256"`
	StartsAt    time.Time `json:"starts_at" validate:"required"`
}

func (ne *NewEvent) clean() {
	ne.Title = core.CleanString(ne.Title)
	ne.Description = core.CleanString(ne.Description)
	ne.Venue = core.CleanString(ne.Venue)
	ne.StartsAt = ne.StartsAt.UTC()
}

type UpdateEvent struct {
	Title       *string    `json:"title" validate:"omitempty,min=1,max=256"`
	Description *string    `json:"description"`
	Venue       *string    `json:"venue" validate:"omitempty,min=1,max=256"`
	StartsAt    *time.Time `json:"starts_at"`
}

type EventFilter struct {
	Search string      `query:"search"`
	Status EventStatus `query:"status"`
	From   time.Time   `query:"-"` // StartsAt >= From
	To     time.Time   `query:"-"` // StartsAt < To
}

func (ef *EventFilter) Clean() {
	ef.Search = core.CleanString(ef.Search)
	switch ef.Status {
	case EventDraft, EventPublished, EventCancelled:
	default:
		ef.Status = ""
	}
}

// Tier is a ticket category of an event (eg. Regular, VIP).
type Tier struct {
	ID         string    `json:"id"`
	EventID    string    `json:"event_id"`
	Name       string    `json:"name"`
	Price      int64     `json:"price"`
	Quantity   int       `json:"quantity"`
	Sold       int       `json:"sold"`
	SalesStart time.Time `json:"sales_start"` // zero: on sale once published
	SalesEnd   time.Time `json:"sales_end"`   // zero: until the event starts
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (t Tier) Remaining() int { return t.Quantity - t.Sold }

// OnSale reports whether the sales window of t is open at `now` for an event starting at `startsAt`.
func (t Tier) OnSale(now, startsAt time.Time) bool {
	if !t.SalesStart.IsZero() && now.Before(t.SalesStart) {
		return false
	}
	end := t.SalesEnd
	if end.IsZero() {
		end = startsAt
	}
	return end.IsZero() || now.Before(end)
}

// MaxTierPrice caps tier prices (in the price validation tags too) so that an order total fits an int64.
const MaxTierPrice int64 = 1_000_000_000_000

type NewTier struct {
	Name       string    `json:"name" validate:"required,max=128"`
	Price      int64     `json:"price" validate:"gte=0,lte=1000000000000"`
	Quantity   int       `json:"quantity" validate:"gt=0"`
	SalesStart time.Time `json:"sales_start"`
	SalesEnd   time.Time `json:"sales_end"`
}

type UpdateTier struct {
	Name       *string    `json:"name" validate:"omitempty,min=1,max=128"`
	Price      *int64     `json:"price" validate:"omitempty,gte=0,lte=1000000000000"`
	Quantity   *int       `json:"quantity" validate:"omitempty,gt=0"`
	SalesStart *time.Time `json:"sales_start"`
	SalesEnd   *time.Time `json:"sales_end"`
}

type Availability struct {
	Tier      Tier `json:"tier"`
	Remaining int  `json:"remaining"`
	OnSale    bool `json:"on_sale"`
}

type OrderStatus string

const (
	OrderConfirmed OrderStatus = "confirmed"
	OrderCancelled OrderStatus = "cancelled"
)

type Order struct {
	ID             string      `json:"id"`
	EventID        string      `json:"event_id"`
	TierID         string      `json:"tier_id"`
	UserID         string      `json:"user_id"`
	Quantity       int         `json:"quantity"`
	UnitPrice      int64       `json:"unit_price"`
	Total          int64       `json:"total"`
	Status         OrderStatus `json:"status"`
	IdempotencyKey string      `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	CancelledAt    time.Time   `json:"cancelled_at"`
}

// MaxOrderQuantity is the maximum number of tickets per order.
const MaxOrderQuantity = 10

type NewOrder struct {
	TierID         string `json:"tier_id" validate:"required"`
	UserID         string `json:"user_id" validate:"required"`
	Quantity       int    `json:"quantity" validate:"gt=0,lte=10"`
	IdempotencyKey string `json:"idempotency_key" validate:"max=128"`
}

type OrderFilter struct {
	EventID string      `query:"event_id"`
	TierID  string      `query:"tier_id"`
	UserID  string      `query:"user_id"`
	Status  OrderStatus `query:"status"`
}

func (of *OrderFilter) Clean() {
	of.EventID = core.CleanString(of.EventID)
	of.TierID = core.CleanString(of.TierID)
	of.UserID = core.CleanString(of.UserID)
	if of.Status != OrderConfirmed && of.Status != OrderCancelled {
		of.Status = ""
	}
}
