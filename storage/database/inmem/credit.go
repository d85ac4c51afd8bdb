package inmemdb

import (
	"context"
	"time"

	"github.com/sautiplus/backoffice/core"
	"github.com/sautiplus/backoffice/core/credit"
)

type creditRepository struct {
	db *DB
}

var _ credit.Repository = (*creditRepository)(nil)

func NewCreditRepository(db *DB) credit.Repository {
	return &creditRepository{db: db}
}

func (repo *creditRepository) LockWallet(ctx context.Context, userID string) (w credit.Wallet, err error) {
	err = repo.db.write(ctx, func(st *state) error {
		var ok bool
		if w, ok = st.wallets[userID]; !ok {
			w = credit.Wallet{UserID: userID, UpdatedAt: core.Now()}
			st.wallets[userID] = w
		}
		return nil
	})
	return w, err
}

func (repo *creditRepository) GetWallet(_ context.Context, userID string) (w credit.Wallet, err error) {
	repo.db.read(func(st *state) {
		var ok bool
		if w, ok = st.wallets[userID]; !ok {
			w, err = credit.Wallet{UserID: userID}, core.NewNotFoundError("wallet not found")
		}
	})
	return w, err
}

// ShareLockWallet relies on WithTx: transactions are serialised.
func (repo *creditRepository) ShareLockWallet(ctx context.Context, userID string) (credit.Wallet, error) {
	return repo.GetWallet(ctx, userID)
}

func (repo *creditRepository) UpdateWallet(ctx context.Context, w credit.Wallet) error {
	return repo.db.write(ctx, func(st *state) error {
		st.wallets[w.UserID] = w
		return nil
	})
}

func (repo *creditRepository) CreateTransaction(ctx context.Context, txn credit.Transaction) (credit.Transaction, error) {
	err := repo.db.write(ctx, func(st *state) error {
		for _, other := range st.txns {
			if txn.IdempotencyKey != "" && other.UserID == txn.UserID && other.IdempotencyKey == txn.IdempotencyKey {
				return credit.ErrIdempotencyMismatch
			}
			if txn.ReversalOf != "" && other.ReversalOf == txn.ReversalOf {
				return credit.ErrAlreadyReversed
			}
		}
		st.txns[txn.ID] = txn
		return nil
	})
	if err != nil {
		return credit.Transaction{}, err
	}
	return txn, nil
}

func (repo *creditRepository) GetTransaction(_ context.Context, id string) (txn credit.Transaction, err error) {
	repo.db.read(func(st *state) {
		var ok bool
		if txn, ok = st.txns[id]; !ok {
			err = credit.ErrNotFound
		}
	})
	return txn, err
}

func (repo *creditRepository) findTxn(match func(credit.Transaction) bool) (txn credit.Transaction, err error) {
	err = credit.ErrNotFound
	repo.db.read(func(st *state) {
		for _, t := range st.txns {
			if match(t) {
				txn, err = t, nil
				return
			}
		}
	})
	return txn, err
}

func (repo *creditRepository) GetTransactionByKey(_ context.Context, userID, key string) (credit.Transaction, error) {
	return repo.findTxn(func(t credit.Transaction) bool {
		return t.UserID == userID && t.IdempotencyKey == key
	})
}

func (repo *creditRepository) GetReversal(_ context.Context, txnID string) (credit.Transaction, error) {
	return repo.findTxn(func(t credit.Transaction) bool { return t.ReversalOf == txnID })
}

func (repo *creditRepository) QueryTransactions(
	_ context.Context,
	filter credit.HistoryFilter,
	ordering []core.DBOrdering,
	page core.Page,
) (res []credit.Transaction, _ error) {
	repo.db.read(func(st *state) {
		res = rows(st.txns, func(t credit.Transaction) bool {
			return (filter.UserID == "" || t.UserID == filter.UserID) &&
				(filter.Direction == "" || t.Direction == filter.Direction) &&
				(filter.Activity == "" || t.Activity == filter.Activity) &&
				(filter.From.IsZero() || !t.CreatedAt.Before(filter.From)) &&
				(filter.To.IsZero() || t.CreatedAt.Before(filter.To))
		})
	})
	orderBy(res, ordering, func(t credit.Transaction, field string) interface{} {
		if field == "amount" {
			return t.Amount
		}
		return t.CreatedAt
	}, func(t credit.Transaction) string { return t.ID })
	return paginate(res, page), nil
}

func (repo *creditRepository) CountActivity(_ context.Context, userID, activity, reference string, since time.Time) (n int, _ error) {
	repo.db.read(func(st *state) {
		for _, t := range st.txns {
			if t.UserID == userID && t.Activity == activity && t.Reference == reference && !t.CreatedAt.Before(since) {
				n++
			}
		}
	})
	return n, nil
}

func (repo *creditRepository) SumTransactions(_ context.Context, userID string) (credits, debits int64, _ error) {
	repo.db.read(func(st *state) {
		for _, t := range st.txns {
			if t.UserID != userID {
				continue
			}
			if t.Direction == credit.DirectionCredit {
				credits += t.Amount
			} else {
				debits += t.Amount
			}
		}
	})
	return credits, debits, nil
}

func (repo *creditRepository) SaveRule(ctx context.Context, rule credit.ActivityRule) (credit.ActivityRule, error) {
	err := repo.db.write(ctx, func(st *state) error {
		st.rules[rule.Code] = rule
		return nil
	})
	return rule, err
}

func (repo *creditRepository) GetRule(_ context.Context, code string) (rule credit.ActivityRule, err error) {
	repo.db.read(func(st *state) {
		var ok bool
		if rule, ok = st.rules[code]; !ok {
			err = credit.ErrRuleNotFound
		}
	})
	return rule, err
}

func (repo *creditRepository) QueryRules(context.Context) (res []credit.ActivityRule, _ error) {
	repo.db.read(func(st *state) {
		res = rows(st.rules, nil)
	})
	orderBy(res, nil, nil, func(r credit.ActivityRule) string { return r.Code })
	return res, nil
}
