package inmemdb

import (
	"context"

	"github.com/sautiplus/backoffice/core"
	"github.com/sautiplus/backoffice/core/ticket"
)

type ticketRepository struct {
	db *DB
}

var _ ticket.Repository = (*ticketRepository)(nil)

func NewTicketRepository(db *DB) ticket.Repository {
	return &ticketRepository{db: db}
}

func eventsTable(st *state) map[string]ticket.Event { return st.events }
func tiersTable(st *state) map[string]ticket.Tier   { return st.tiers }
func ordersTable(st *state) map[string]ticket.Order { return st.orders }

func (repo *ticketRepository) CreateEvent(ctx context.Context, e ticket.Event) (ticket.Event, error) {
	return put(ctx, repo.db, eventsTable, e.ID, e, false, nil)
}

func (repo *ticketRepository) GetEvent(_ context.Context, id string) (ticket.Event, error) {
	return get(repo.db, eventsTable, id, ticket.ErrEventNotFound)
}

func (repo *ticketRepository) LockEvent(ctx context.Context, id string) (ticket.Event, error) {
	return repo.GetEvent(ctx, id)
}

func (repo *ticketRepository) ShareLockEvent(ctx context.Context, id string) (ticket.Event, error) {
	return repo.GetEvent(ctx, id)
}

func (repo *ticketRepository) UpdateEvent(ctx context.Context, e ticket.Event) (ticket.Event, error) {
	return put(ctx, repo.db, eventsTable, e.ID, e, true, ticket.ErrEventNotFound)
}

func (repo *ticketRepository) QueryEvents(
	_ context.Context,
	filter ticket.EventFilter,
	ordering []core.DBOrdering,
	page core.Page,
) (res []ticket.Event, _ error) {
	repo.db.read(func(st *state) {
		res = rows(st.events, func(e ticket.Event) bool {
			if filter.Search != "" && !containsFold(e.Title, filter.Search) && !containsFold(e.Venue, filter.Search) {
				return false
			}
			return (filter.Status == "" || e.Status == filter.Status) &&
				(filter.From.IsZero() || !e.StartsAt.Before(filter.From)) &&
				(filter.To.IsZero() || e.StartsAt.Before(filter.To))
		})
	})
	orderBy(res, ordering, func(e ticket.Event, field string) interface{} {
		switch field {
		case "title":
			return e.Title
		case "created_at":
			return e.CreatedAt
		}
		return e.StartsAt
	}, func(e ticket.Event) string { return e.ID })
	return paginate(res, page), nil
}

func (repo *ticketRepository) CreateTier(ctx context.Context, t ticket.Tier) (ticket.Tier, error) {
	return put(ctx, repo.db, tiersTable, t.ID, t, false, nil)
}

func (repo *ticketRepository) GetTier(_ context.Context, id string) (ticket.Tier, error) {
	return get(repo.db, tiersTable, id, ticket.ErrTierNotFound)
}

func (repo *ticketRepository) LockTier(ctx context.Context, id string) (ticket.Tier, error) {
	return repo.GetTier(ctx, id)
}

func (repo *ticketRepository) UpdateTier(ctx context.Context, t ticket.Tier) (ticket.Tier, error) {
	return put(ctx, repo.db, tiersTable, t.ID, t, true, ticket.ErrTierNotFound)
}

func (repo *ticketRepository) QueryTiers(_ context.Context, eventID string) (res []ticket.Tier, _ error) {
	repo.db.read(func(st *state) {
		res = rows(st.tiers, func(t ticket.Tier) bool { return t.EventID == eventID })
	})
	orderBy(res, []core.DBOrdering{{Field: "price", Ascending: true}},
		func(t ticket.Tier, _ string) interface{} { return t.Price },
		func(t ticket.Tier) string { return t.ID })
	return res, nil
}

func (repo *ticketRepository) CreateOrder(ctx context.Context, o ticket.Order) (ticket.Order, error) {
	err := repo.db.write(ctx, func(st *state) error {
		if o.IdempotencyKey != "" {
			for _, other := range st.orders {
				if other.UserID == o.UserID && other.IdempotencyKey == o.IdempotencyKey {
					return ticket.ErrIdempotencyMismatch
				}
			}
		}
		st.orders[o.ID] = o
		return nil
	})
	return o, err
}

func (repo *ticketRepository) GetOrder(_ context.Context, id string) (ticket.Order, error) {
	return get(repo.db, ordersTable, id, ticket.ErrOrderNotFound)
}

func (repo *ticketRepository) LockOrder(ctx context.Context, id string) (ticket.Order, error) {
	return repo.GetOrder(ctx, id)
}

func (repo *ticketRepository) GetOrderByKey(_ context.Context, userID, key string) (o ticket.Order, err error) {
	err = ticket.ErrOrderNotFound
	repo.db.read(func(st *state) {
		for _, order := range st.orders {
			if order.UserID == userID && order.IdempotencyKey == key {
				o, err = order, nil
				return
			}
		}
	})
	return o, err
}

func (repo *ticketRepository) UpdateOrder(ctx context.Context, o ticket.Order) (ticket.Order, error) {
	return put(ctx, repo.db, ordersTable, o.ID, o, true, ticket.ErrOrderNotFound)
}

func (repo *ticketRepository) QueryOrders(
	_ context.Context,
	filter ticket.OrderFilter,
	ordering []core.DBOrdering,
	page core.Page,
) (res []ticket.Order, _ error) {
	repo.db.read(func(st *state) {
		res = rows(st.orders, func(o ticket.Order) bool {
			return (filter.EventID == "" || o.EventID == filter.EventID) &&
				(filter.TierID == "" || o.TierID == filter.TierID) &&
				(filter.UserID == "" || o.UserID == filter.UserID) &&
				(filter.Status == "" || o.Status == filter.Status)
		})
	})
	orderBy(res, ordering, func(o ticket.Order, field string) interface{} {
		if field == "total" {
			return o.Total
		}
		return o.CreatedAt
	}, func(o ticket.Order) string { return o.ID })
	return paginate(res, page), nil
}
