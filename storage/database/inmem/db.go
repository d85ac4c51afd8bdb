package inmemdb

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sautiplus/backoffice/core"
	"github.com/sautiplus/backoffice/core/award"
	"github.com/sautiplus/backoffice/core/claim"
	"github.com/sautiplus/backoffice/core/credit"
	"github.com/sautiplus/backoffice/core/sacco"
	"github.com/sautiplus/backoffice/core/staff"
	"github.com/sautiplus/backoffice/core/ticket"
)

type (
	// DB keeps every table in memory.
	// Transactions are serialised; a failed transaction restores the state it started from.
	DB struct {
		txMu sync.Mutex   // held by transactions and by writes outside of them
		mu   sync.RWMutex // guards st
		st   *state
	}

	state struct {
		staff map[string]staff.Staff

		wallets map[string]credit.Wallet
		txns    map[string]credit.Transaction
		rules   map[string]credit.ActivityRule

		memberSeq   int64
		members     map[string]sacco.Member
		savings     map[string]sacco.SavingsAccount
		savingsTxns map[string]sacco.SavingsTransaction
		shares      map[string]sacco.ShareAccount
		shareTxns   map[string]sacco.ShareTransaction
		products    map[string]sacco.LoanProduct
		loans       map[string]sacco.Loan
		repayments  map[string]sacco.Repayment
		dividends   map[string]sacco.Dividend
		payouts     map[string]sacco.Payout
		events      map[string]ticket.Event
		tiers       map[string]ticket.Tier
		orders      map[string]ticket.Order
		items       map[string]claim.CatalogItem
		claims      map[string]claim.Claim
		awards      map[string]award.Award
		categories  map[string]award.Category
		nominees    map[string]award.Nominee
		votes       map[string]award.Vote
	}
)

var (
	_ core.Transactor = (*DB)(nil)
	_ core.Pinger     = (*DB)(nil)
)

func Open() *DB {
	return &DB{st: &state{
		staff:       make(map[string]staff.Staff),
		wallets:     make(map[string]credit.Wallet),
		txns:        make(map[string]credit.Transaction),
		rules:       make(map[string]credit.ActivityRule),
		members:     make(map[string]sacco.Member),
		savings:     make(map[string]sacco.SavingsAccount),
		savingsTxns: make(map[string]sacco.SavingsTransaction),
		shares:      make(map[string]sacco.ShareAccount),
		shareTxns:   make(map[string]sacco.ShareTransaction),
		products:    make(map[string]sacco.LoanProduct),
		loans:       make(map[string]sacco.Loan),
		repayments:  make(map[string]sacco.Repayment),
		dividends:   make(map[string]sacco.Dividend),
		payouts:     make(map[string]sacco.Payout),
		events:      make(map[string]ticket.Event),
		tiers:       make(map[string]ticket.Tier),
		orders:      make(map[string]ticket.Order),
		items:       make(map[string]claim.CatalogItem),
		claims:      make(map[string]claim.Claim),
		awards:      make(map[string]award.Award),
		categories:  make(map[string]award.Category),
		nominees:    make(map[string]award.Nominee),
		votes:       make(map[string]award.Vote),
	}}
}

func (db *DB) PingContext(context.Context) error { return nil }

type txKey struct{}

func inTx(ctx context.Context) bool {
	_, ok := ctx.Value(txKey{}).(bool)
	return ok
}

func (db *DB) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if inTx(ctx) {
		return fn(ctx)
	}

	db.txMu.Lock()
	defer db.txMu.Unlock()

	db.mu.RLock()
	snapshot := db.st.clone()
	db.mu.RUnlock()

	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		db.mu.Lock()
		db.st = snapshot
		db.mu.Unlock()
		return err
	}
	return nil
}

func (db *DB) read(fn func(st *state)) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	fn(db.st)
}

func (db *DB) write(ctx context.Context, fn func(st *state) error) error {
	if !inTx(ctx) {
		db.txMu.Lock()
		defer db.txMu.Unlock()
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	return fn(db.st)
}

func (st *state) clone() *state {
	return &state{
		staff:       cloneMap(st.staff),
		wallets:     cloneMap(st.wallets),
		txns:        cloneMap(st.txns),
		rules:       cloneMap(st.rules),
		memberSeq:   st.memberSeq,
		members:     cloneMap(st.members),
		savings:     cloneMap(st.savings),
		savingsTxns: cloneMap(st.savingsTxns),
		shares:      cloneMap(st.shares),
		shareTxns:   cloneMap(st.shareTxns),
		products:    cloneMap(st.products),
		loans:       cloneMap(st.loans),
		repayments:  cloneMap(st.repayments),
		dividends:   cloneMap(st.dividends),
		payouts:     cloneMap(st.payouts),
		events:      cloneMap(st.events),
		tiers:       cloneMap(st.tiers),
		orders:      cloneMap(st.orders),
		items:       cloneMap(st.items),
		claims:      cloneMap(st.claims),
		awards:      cloneMap(st.awards),
		categories:  cloneMap(st.categories),
		nominees:    cloneMap(st.nominees),
		votes:       cloneMap(st.votes),
	}
}

func cloneMap[T any](m map[string]T) map[string]T {
	c := make(map[string]T, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

// get reads a row by key, returning notFound when missing.
func get[T any](db *DB, table func(*state) map[string]T, key string, notFound error) (row T, err error) {
	db.read(func(st *state) {
		var ok bool
		if row, ok = table(st)[key]; !ok {
			err = notFound
		}
	})
	return row, err
}

// put inserts or replaces a row. With mustExist, missing rows return notFound.
func put[T any](ctx context.Context, db *DB, table func(*state) map[string]T, key string, row T, mustExist bool, notFound error) (T, error) {
	err := db.write(ctx, func(st *state) error {
		t := table(st)
		if _, ok := t[key]; mustExist && !ok {
			return notFound
		}
		t[key] = row
		return nil
	})
	return row, err
}

// rows returns the values of m matching keep.
func rows[T any](m map[string]T, keep func(T) bool) []T {
	res := make([]T, 0, len(m))
	for _, v := range m {
		if keep == nil || keep(v) {
			res = append(res, v)
		}
	}
	return res
}

// orderBy sorts rs by ords; field returns the value of a column (string, int, int64 or time.Time).
// `id` breaks ties so that results are stable between calls.
func orderBy[T any](rs []T, ords []core.DBOrdering, field func(T, string) interface{}, id func(T) string) {
	sort.SliceStable(rs, func(i, j int) bool {
		for _, ord := range ords {
			c := compare(field(rs[i], ord.Field), field(rs[j], ord.Field))
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return id(rs[i]) < id(rs[j])
	})
}

func compare(a, b interface{}) int {
	switch av := a.(type) {
	case string:
		return strings.Compare(strings.ToLower(av), strings.ToLower(b.(string)))
	case int:
		return cmpInt64(int64(av), int64(b.(int)))
	case int64:
		return cmpInt64(av, b.(int64))
	case time.Time:
		bv := b.(time.Time)
		switch {
		case av.Before(bv):
			return -1
		case av.After(bv):
			return 1
		}
	}
	return 0
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func paginate[T any](rs []T, page core.Page) []T {
	if page.Offset >= len(rs) {
		return []T{}
	}
	rs = rs[page.Offset:]
	if page.Limit > 0 && page.Limit < len(rs) {
		rs = rs[:page.Limit]
	}
	return rs
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
