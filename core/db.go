package core

import (
	"context"
	"strings"
)

type (
	// Transactor runs fn inside a database transaction.
	// The transaction travels in the context handed to fn; nested calls join the outer transaction.
	// fn's error rolls the transaction back.
	Transactor interface {
		WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	}

	// Pinger reports whether the underlying store is reachable.
	Pinger interface {
		PingContext(ctx context.Context) error
	}
)

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}

// FilterOrderings drops orderings on fields that are not whitelisted.
func FilterOrderings(ords []DBOrdering, allowed ...string) []DBOrdering {
	if len(ords) == 0 {
		return nil
	}
	out := make([]DBOrdering, 0, len(ords))
	for _, ord := range ords {
		for _, fld := range allowed {
			if strings.EqualFold(ord.Field, fld) {
				out = append(out, DBOrdering{Field: fld, Ascending: ord.Ascending})
				break
			}
		}
	}
	return out
}

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 500
)

// Page limits list queries.
type Page struct {
	Limit  int `query:"limit"`
	Offset int `query:"offset"`
}

func (p *Page) Clean() {
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	} else if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
}
