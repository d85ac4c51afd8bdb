package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/volatiletech/null/v8"

	"github.com/sautiplus/backoffice/core"
	"github.com/sautiplus/backoffice/core/ticket"
)

const (
	ticketEventTable = "ticket_events"
	ticketTierTable  = "ticket_tiers"
	ticketOrderTable = "ticket_orders"
)

var (
	ticketEventColumns = []string{"id", "title", "description", "venue", "starts_at", "status", "created_at", "updated_at"}
	ticketTierColumns  = []string{
		"id", "event_id", "name", "price", "quantity", "sold", "sales_start", "sales_end", "created_at", "updated_at",
	}
	ticketOrderColumns = []string{
		"id", "event_id", "tier_id", "user_id", "quantity", "unit_price", "total", "status",
		"idempotency_key", "created_at", "cancelled_at",
	}
)

type (
	ticketEventRow struct {
		ID          string    `db:"id"`
		Title       string    `db:"title"`
		Description string    `db:"description"`
		Venue       string    `db:"venue"`
		StartsAt    time.Time `db:"starts_at"`
		Status      string    `db:"status"`
		CreatedAt   time.Time `db:"created_at"`
		UpdatedAt   time.Time `db:"updated_at"`
	}

	ticketTierRow struct {
		ID         string    `db:"id"`
		EventID    string    `db:"event_id"`
		Name       string    `db:"name"`
		Price      int64     `db:"price"`
		Quantity   int       `db:"quantity"`
		Sold       int       `db:"sold"`
		SalesStart null.Time `db:"sales_start"`
		SalesEnd   null.Time `db:"sales_end"`
		CreatedAt  time.Time `db:"created_at"`
		UpdatedAt  time.Time `db:"updated_at"`
	}

	ticketOrderRow struct {
		ID             string      `db:"id"`
		EventID        string      `db:"event_id"`
		TierID         string      `db:"tier_id"`
		UserID         string      `db:"user_id"`
		Quantity       int         `db:"quantity"`
		UnitPrice      int64       `db:"unit_price"`
		Total          int64       `db:"total"`
		Status         string      `db:"status"`
		IdempotencyKey null.String `db:"idempotency_key"`
		CreatedAt      time.Time   `db:"created_at"`
		CancelledAt    null.Time   `db:"cancelled_at"`
	}
)

func (r ticketEventRow) unboil() ticket.Event {
	return ticket.Event{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		Venue:       r.Venue,
		StartsAt:    r.StartsAt,
		Status:      ticket.EventStatus(r.Status),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func (r ticketTierRow) unboil() ticket.Tier {
	return ticket.Tier{
		ID:         r.ID,
		EventID:    r.EventID,
		Name:       r.Name,
		Price:      r.Price,
		Quantity:   r.Quantity,
		Sold:       r.Sold,
		SalesStart: r.SalesStart.Time,
		SalesEnd:   r.SalesEnd.Time,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

func (r ticketOrderRow) unboil() ticket.Order {
	return ticket.Order{
		ID:             r.ID,
		EventID:        r.EventID,
		TierID:         r.TierID,
		UserID:         r.UserID,
		Quantity:       r.Quantity,
		UnitPrice:      r.UnitPrice,
		Total:          r.Total,
		Status:         ticket.OrderStatus(r.Status),
		IdempotencyKey: r.IdempotencyKey.String,
		CreatedAt:      r.CreatedAt,
		CancelledAt:    r.CancelledAt.Time,
	}
}

type ticketRepository struct {
	db *sqlx.DB
}

var _ ticket.Repository = (*ticketRepository)(nil) // interface compliance check

func NewTicketRepository(db *sqlx.DB) ticket.Repository {
	return &ticketRepository{db: db}
}

// selectByID selects a row of table by id, FOR UPDATE when lock is set.
func selectByID(table string, columns []string, id string, lock bool) sq.SelectBuilder {
	qb := psql.Select(columns...).From(table).Where(sq.Eq{"id": id})
	if lock {
		qb = qb.Suffix("FOR UPDATE")
	}
	return qb
}

// Events

func (repo ticketRepository) eventValues(e ticket.Event) map[string]interface{} {
	return map[string]interface{}{
		"title":       e.Title,
		"description": e.Description,
		"venue":       e.Venue,
		"starts_at":   e.StartsAt.UTC(),
		"status":      string(e.Status),
		"updated_at":  e.UpdatedAt.UTC(),
	}
}

func (repo ticketRepository) CreateEvent(ctx context.Context, e ticket.Event) (ticket.Event, error) {
	values := repo.eventValues(e)
	values["id"] = e.ID
	values["created_at"] = e.CreatedAt.UTC()
	return e, insert(ctx, repo.db, ticketEventTable, values, "inserting event")
}

func (repo ticketRepository) getEvent(ctx context.Context, id string, lock bool) (ticket.Event, error) {
	if !validID(id) {
		return ticket.Event{}, ticket.ErrEventNotFound
	}
	qb := selectByID(ticketEventTable, ticketEventColumns, id, lock)
	return getOne(ctx, repo.db, qb, ticket.ErrEventNotFound, "selecting event", ticketEventRow.unboil)
}

func (repo ticketRepository) GetEvent(ctx context.Context, id string) (ticket.Event, error) {
	return repo.getEvent(ctx, id, false)
}

func (repo ticketRepository) LockEvent(ctx context.Context, id string) (ticket.Event, error) {
	return repo.getEvent(ctx, id, true)
}

func (repo ticketRepository) ShareLockEvent(ctx context.Context, id string) (ticket.Event, error) {
	if !validID(id) {
		return ticket.Event{}, ticket.ErrEventNotFound
	}
	qb := selectByID(ticketEventTable, ticketEventColumns, id, false).Suffix("FOR SHARE")
	return getOne(ctx, repo.db, qb, ticket.ErrEventNotFound, "share-locking event", ticketEventRow.unboil)
}

func (repo ticketRepository) UpdateEvent(ctx context.Context, e ticket.Event) (ticket.Event, error) {
	qb := psql.Update(ticketEventTable).SetMap(repo.eventValues(e)).Where(sq.Eq{"id": e.ID})
	if err := updateOne(ctx, repo.db, qb, ticket.ErrEventNotFound, "updating event"); err != nil {
		return ticket.Event{}, err
	}
	return e, nil
}

func (repo ticketRepository) QueryEvents(
	ctx context.Context,
	filter ticket.EventFilter,
	ordering []core.DBOrdering,
	page core.Page,
) ([]ticket.Event, error) {
	qb := psql.Select(ticketEventColumns...).From(ticketEventTable)
	if filter.Search != "" {
		val := ilike(filter.Search)
		qb = qb.Where(sq.Or{sq.ILike{"title": val}, sq.ILike{"venue": val}})
	}
	if filter.Status != "" {
		qb = qb.Where(sq.Eq{"status": string(filter.Status)})
	}
	if !filter.From.IsZero() {
		qb = qb.Where(sq.GtOrEq{"starts_at": filter.From.UTC()})
	}
	if !filter.To.IsZero() {
		qb = qb.Where(sq.Lt{"starts_at": filter.To.UTC()})
	}
	qb = paginate(orderBy(qb, ordering, "id"), page)
	return selectAll(ctx, repo.db, qb, "selecting events", ticketEventRow.unboil)
}

// Tiers

func (repo ticketRepository) tierValues(t ticket.Tier) map[string]interface{} {
	return map[string]interface{}{
		"name":        t.Name,
		"price":       t.Price,
		"quantity":    t.Quantity,
		"sold":        t.Sold,
		"sales_start": nullTime(t.SalesStart),
		"sales_end":   nullTime(t.SalesEnd),
		"updated_at":  t.UpdatedAt.UTC(),
	}
}

func (repo ticketRepository) CreateTier(ctx context.Context, t ticket.Tier) (ticket.Tier, error) {
	values := repo.tierValues(t)
	values["id"] = t.ID
	values["event_id"] = t.EventID
	values["created_at"] = t.CreatedAt.UTC()
	return t, insert(ctx, repo.db, ticketTierTable, values, "inserting tier")
}

func (repo ticketRepository) getTier(ctx context.Context, id string, lock bool) (ticket.Tier, error) {
	if !validID(id) {
		return ticket.Tier{}, ticket.ErrTierNotFound
	}
	qb := selectByID(ticketTierTable, ticketTierColumns, id, lock)
	return getOne(ctx, repo.db, qb, ticket.ErrTierNotFound, "selecting tier", ticketTierRow.unboil)
}

func (repo ticketRepository) GetTier(ctx context.Context, id string) (ticket.Tier, error) {
	return repo.getTier(ctx, id, false)
}

func (repo ticketRepository) LockTier(ctx context.Context, id string) (ticket.Tier, error) {
	return repo.getTier(ctx, id, true)
}

func (repo ticketRepository) UpdateTier(ctx context.Context, t ticket.Tier) (ticket.Tier, error) {
	qb := psql.Update(ticketTierTable).SetMap(repo.tierValues(t)).Where(sq.Eq{"id": t.ID})
	if err := updateOne(ctx, repo.db, qb, ticket.ErrTierNotFound, "updating tier"); err != nil {
		return ticket.Tier{}, err
	}
	return t, nil
}

func (repo ticketRepository) QueryTiers(ctx context.Context, eventID string) ([]ticket.Tier, error) {
	if !validID(eventID) {
		return nil, nil
	}
	qb := psql.Select(ticketTierColumns...).From(ticketTierTable).
		Where(sq.Eq{"event_id": eventID}).
		OrderBy("price", "id")
	return selectAll(ctx, repo.db, qb, "selecting tiers", ticketTierRow.unboil)
}

// Orders

func (repo ticketRepository) CreateOrder(ctx context.Context, o ticket.Order) (ticket.Order, error) {
	err := insert(ctx, repo.db, ticketOrderTable, map[string]interface{}{
		"id":              o.ID,
		"event_id":        o.EventID,
		"tier_id":         o.TierID,
		"user_id":         o.UserID,
		"quantity":        o.Quantity,
		"unit_price":      o.UnitPrice,
		"total":           o.Total,
		"status":          string(o.Status),
		"idempotency_key": nullString(o.IdempotencyKey),
		"created_at":      o.CreatedAt.UTC(),
		"cancelled_at":    nullTime(o.CancelledAt),
	}, "inserting order")
	if err != nil {
		if constraint, ok := uniqueViolation(err); ok && constraint == "ticket_orders_idempotency_key" {
			return ticket.Order{}, ticket.ErrIdempotencyMismatch
		}
		return ticket.Order{}, err
	}
	return o, nil
}

func (repo ticketRepository) getOrder(ctx context.Context, id string, lock bool) (ticket.Order, error) {
	if !validID(id) {
		return ticket.Order{}, ticket.ErrOrderNotFound
	}
	qb := selectByID(ticketOrderTable, ticketOrderColumns, id, lock)
	return getOne(ctx, repo.db, qb, ticket.ErrOrderNotFound, "selecting order", ticketOrderRow.unboil)
}

func (repo ticketRepository) GetOrder(ctx context.Context, id string) (ticket.Order, error) {
	return repo.getOrder(ctx, id, false)
}

func (repo ticketRepository) LockOrder(ctx context.Context, id string) (ticket.Order, error) {
	return repo.getOrder(ctx, id, true)
}

func (repo ticketRepository) GetOrderByKey(ctx context.Context, userID, key string) (ticket.Order, error) {
	qb := psql.Select(ticketOrderColumns...).From(ticketOrderTable).
		Where(sq.Eq{"user_id": userID, "idempotency_key": key})
	return getOne(ctx, repo.db, qb, ticket.ErrOrderNotFound, "selecting order", ticketOrderRow.unboil)
}

func (repo ticketRepository) UpdateOrder(ctx context.Context, o ticket.Order) (ticket.Order, error) {
	qb := psql.Update(ticketOrderTable).
		Set("status", string(o.Status)).
		Set("cancelled_at", nullTime(o.CancelledAt)).
		Where(sq.Eq{"id": o.ID})
	if err := updateOne(ctx, repo.db, qb, ticket.ErrOrderNotFound, "updating order"); err != nil {
		return ticket.Order{}, err
	}
	return o, nil
}

func (repo ticketRepository) QueryOrders(
	ctx context.Context,
	filter ticket.OrderFilter,
	ordering []core.DBOrdering,
	page core.Page,
) ([]ticket.Order, error) {
	qb := psql.Select(ticketOrderColumns...).From(ticketOrderTable)
	for col, id := range map[string]string{"event_id": filter.EventID, "tier_id": filter.TierID} {
		if id == "" {
			continue
		}
		if !validID(id) {
			return nil, nil
		}
		qb = qb.Where(sq.Eq{col: id})
	}
	if filter.UserID != "" {
		qb = qb.Where(sq.Eq{"user_id": filter.UserID})
	}
	if filter.Status != "" {
		qb = qb.Where(sq.Eq{"status": string(filter.Status)})
	}
	qb = paginate(orderBy(qb, ordering, "id"), page)
	return selectAll(ctx, repo.db, qb, "selecting orders", ticketOrderRow.unboil)
}
