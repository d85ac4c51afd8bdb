package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/sautiplus/backoffice/core"
	"github.com/sautiplus/backoffice/core/credit"
)

const (
	walletTable       = "credit_wallets"
	creditTxnTable    = "credit_transactions"
	activityRuleTable = "credit_activity_rules"
)

var (
	creditTxnColumns = []string{
		"id", "user_id", "direction", "amount", "balance_after", "activity", "reference",
		"idempotency_key", "description", "created_by", "reversal_of", "created_at",
	}
	activityRuleColumns = []string{"code", "description", "amount", "daily_cap", "is_active", "updated_at"}

	errWalletNotFound = core.NewNotFoundError("wallet not found")
)

type (
	walletRow struct {
		UserID    string    `db:"user_id"`
		Balance   int64     `db:"balance"`
		UpdatedAt time.Time `db:"updated_at"`
	}

	creditTxnRow struct {
		ID             string      `db:"id"`
		UserID         string      `db:"user_id"`
		Direction      string      `db:"direction"`
		Amount         int64       `db:"amount"`
		BalanceAfter   int64       `db:"balance_after"`
		Activity       string      `db:"activity"`
		Reference      string      `db:"reference"`
		IdempotencyKey null.String `db:"idempotency_key"`
		Description    string      `db:"description"`
		CreatedBy      null.String `db:"created_by"`
		ReversalOf     null.String `db:"reversal_of"`
		CreatedAt      time.Time   `db:"created_at"`
	}

	activityRuleRow struct {
		Code        string    `db:"code"`
		Description string    `db:"description"`
		Amount      int64     `db:"amount"`
		DailyCap    int       `db:"daily_cap"`
		IsActive    bool      `db:"is_active"`
		UpdatedAt   time.Time `db:"updated_at"`
	}
)

func (r creditTxnRow) unboil() credit.Transaction {
	return credit.Transaction{
		ID:             r.ID,
		UserID:         r.UserID,
		Direction:      credit.Direction(r.Direction),
		Amount:         r.Amount,
		BalanceAfter:   r.BalanceAfter,
		Activity:       r.Activity,
		Reference:      r.Reference,
		IdempotencyKey: r.IdempotencyKey.String,
		Description:    r.Description,
		CreatedBy:      r.CreatedBy.String,
		ReversalOf:     r.ReversalOf.String,
		CreatedAt:      r.CreatedAt,
	}
}

func (r activityRuleRow) unboil() credit.ActivityRule {
	return credit.ActivityRule(r)
}

type creditRepository struct {
	db *sqlx.DB
}

var _ credit.Repository = (*creditRepository)(nil) // interface compliance check

func NewCreditRepository(db *sqlx.DB) credit.Repository {
	return &creditRepository{db: db}
}

func (repo creditRepository) LockWallet(ctx context.Context, userID string) (credit.Wallet, error) {
	ins := psql.Insert(walletTable).Columns("user_id", "balance", "updated_at").
		Values(userID, 0, core.Now().UTC()).
		Suffix("ON CONFLICT (user_id) DO NOTHING")
	if _, err := exec(ctx, repo.db, ins); err != nil {
		return credit.Wallet{}, errors.Wrap(err, "creating wallet")
	}

	var r walletRow
	qb := psql.Select("user_id", "balance", "updated_at").From(walletTable).
		Where(sq.Eq{"user_id": userID}).Suffix("FOR UPDATE")
	if err := get(ctx, repo.db, &r, qb); err != nil {
		return credit.Wallet{}, trapNoRowsErr(err, errWalletNotFound, "locking wallet")
	}
	return credit.Wallet(r), nil
}

func (repo creditRepository) GetWallet(ctx context.Context, userID string) (credit.Wallet, error) {
	var r walletRow
	qb := psql.Select("user_id", "balance", "updated_at").From(walletTable).Where(sq.Eq{"user_id": userID})
	if err := get(ctx, repo.db, &r, qb); err != nil {
		return credit.Wallet{UserID: userID}, trapNoRowsErr(err, errWalletNotFound, "selecting wallet")
	}
	return credit.Wallet(r), nil
}

func (repo creditRepository) ShareLockWallet(ctx context.Context, userID string) (credit.Wallet, error) {
	var r walletRow
	qb := psql.Select("user_id", "balance", "updated_at").From(walletTable).
		Where(sq.Eq{"user_id": userID}).Suffix("FOR SHARE")
	if err := get(ctx, repo.db, &r, qb); err != nil {
		return credit.Wallet{UserID: userID}, trapNoRowsErr(err, errWalletNotFound, "share-locking wallet")
	}
	return credit.Wallet(r), nil
}

func (repo creditRepository) UpdateWallet(ctx context.Context, w credit.Wallet) error {
	qb := psql.Update(walletTable).
		Set("balance", w.Balance).
		Set("updated_at", w.UpdatedAt.UTC()).
		Where(sq.Eq{"user_id": w.UserID})
	n, err := exec(ctx, repo.db, qb)
	if err != nil {
		return errors.Wrap(err, "updating wallet")
	}
	if n == 0 {
		return errWalletNotFound
	}
	return nil
}

func (repo creditRepository) CreateTransaction(ctx context.Context, txn credit.Transaction) (credit.Transaction, error) {
	qb := psql.Insert(creditTxnTable).Columns(creditTxnColumns...).Values(
		txn.ID, txn.UserID, string(txn.Direction), txn.Amount, txn.BalanceAfter, txn.Activity, txn.Reference,
		nullString(txn.IdempotencyKey), txn.Description, nullString(txn.CreatedBy), nullString(txn.ReversalOf),
		txn.CreatedAt.UTC(),
	)
	if _, err := exec(ctx, repo.db, qb); err != nil {
		if constraint, ok := uniqueViolation(err); ok {
			switch constraint {
			case "credit_transactions_idempotency_key":
				return credit.Transaction{}, credit.ErrIdempotencyMismatch
			case "credit_transactions_reversal_of":
				return credit.Transaction{}, credit.ErrAlreadyReversed
			}
		}
		return credit.Transaction{}, errors.Wrap(err, "inserting transaction")
	}
	return txn, nil
}

func (repo creditRepository) getTxn(ctx context.Context, where sq.Sqlizer) (credit.Transaction, error) {
	var r creditTxnRow
	qb := psql.Select(creditTxnColumns...).From(creditTxnTable).Where(where).Limit(1)
	if err := get(ctx, repo.db, &r, qb); err != nil {
		return credit.Transaction{}, trapNoRowsErr(err, credit.ErrNotFound, "selecting transaction")
	}
	return r.unboil(), nil
}

func (repo creditRepository) GetTransaction(ctx context.Context, id string) (credit.Transaction, error) {
	if !validID(id) {
		return credit.Transaction{}, credit.ErrNotFound
	}
	return repo.getTxn(ctx, sq.Eq{"id": id})
}

func (repo creditRepository) GetTransactionByKey(ctx context.Context, userID, key string) (credit.Transaction, error) {
	return repo.getTxn(ctx, sq.Eq{"user_id": userID, "idempotency_key": key})
}

func (repo creditRepository) GetReversal(ctx context.Context, txnID string) (credit.Transaction, error) {
	if !validID(txnID) {
		return credit.Transaction{}, credit.ErrNotFound
	}
	return repo.getTxn(ctx, sq.Eq{"reversal_of": txnID})
}

func (repo creditRepository) QueryTransactions(
	ctx context.Context,
	filter credit.HistoryFilter,
	ordering []core.DBOrdering,
	page core.Page,
) ([]credit.Transaction, error) {
	qb := psql.Select(creditTxnColumns...).From(creditTxnTable)
	if filter.UserID != "" {
		qb = qb.Where(sq.Eq{"user_id": filter.UserID})
	}
	if filter.Direction != "" {
		qb = qb.Where(sq.Eq{"direction": string(filter.Direction)})
	}
	if filter.Activity != "" {
		qb = qb.Where(sq.Eq{"activity": filter.Activity})
	}
	if !filter.From.IsZero() {
		qb = qb.Where(sq.GtOrEq{"created_at": filter.From.UTC()})
	}
	if !filter.To.IsZero() {
		qb = qb.Where(sq.Lt{"created_at": filter.To.UTC()})
	}
	qb = paginate(orderBy(qb, ordering, "id"), page)

	var rows []creditTxnRow
	if err := selectRows(ctx, repo.db, &rows, qb); err != nil {
		return nil, errors.Wrap(err, "selecting transactions")
	}
	res := make([]credit.Transaction, 0, len(rows))
	for _, r := range rows {
		res = append(res, r.unboil())
	}
	return res, nil
}

func (repo creditRepository) CountActivity(ctx context.Context, userID, activity, reference string, since time.Time) (int, error) {
	var n int
	qb := psql.Select("COUNT(*)").From(creditTxnTable).Where(sq.Eq{
		"user_id":   userID,
		"activity":  activity,
		"reference": reference,
	}).Where(sq.GtOrEq{"created_at": since.UTC()})
	if err := get(ctx, repo.db, &n, qb); err != nil {
		return 0, errors.Wrap(err, "counting activity")
	}
	return n, nil
}

func (repo creditRepository) SumTransactions(ctx context.Context, userID string) (credits, debits int64, err error) {
	var sums struct {
		Credits int64 `db:"credits"`
		Debits  int64 `db:"debits"`
	}
	qb := psql.Select(
		"COALESCE(SUM(amount) FILTER (WHERE direction = 'credit'), 0) AS credits",
		"COALESCE(SUM(amount) FILTER (WHERE direction = 'debit'), 0) AS debits",
	).From(creditTxnTable).Where(sq.Eq{"user_id": userID})
	if err = get(ctx, repo.db, &sums, qb); err != nil {
		return 0, 0, errors.Wrap(err, "summing transactions")
	}
	return sums.Credits, sums.Debits, nil
}

func (repo creditRepository) SaveRule(ctx context.Context, rule credit.ActivityRule) (credit.ActivityRule, error) {
	qb := psql.Insert(activityRuleTable).Columns(activityRuleColumns...).
		Values(rule.Code, rule.Description, rule.Amount, rule.DailyCap, rule.IsActive, rule.UpdatedAt.UTC()).
		Suffix(`ON CONFLICT (code) DO UPDATE SET
			description = EXCLUDED.description,
			amount = EXCLUDED.amount,
			daily_cap = EXCLUDED.daily_cap,
			is_active = EXCLUDED.is_active,
			updated_at = EXCLUDED.updated_at`)
	if _, err := exec(ctx, repo.db, qb); err != nil {
		return credit.ActivityRule{}, errors.Wrap(err, "saving activity rule")
	}
	return rule, nil
}

func (repo creditRepository) GetRule(ctx context.Context, code string) (credit.ActivityRule, error) {
	var r activityRuleRow
	qb := psql.Select(activityRuleColumns...).From(activityRuleTable).Where(sq.Eq{"code": code})
	if err := get(ctx, repo.db, &r, qb); err != nil {
		return credit.ActivityRule{}, trapNoRowsErr(err, credit.ErrRuleNotFound, "selecting activity rule")
	}
	return r.unboil(), nil
}

func (repo creditRepository) QueryRules(ctx context.Context) ([]credit.ActivityRule, error) {
	var rows []activityRuleRow
	if err := selectRows(ctx, repo.db, &rows, psql.Select(activityRuleColumns...).From(activityRuleTable).OrderBy("code")); err != nil {
		return nil, errors.Wrap(err, "selecting activity rules")
	}
	res := make([]credit.ActivityRule, 0, len(rows))
	for _, r := range rows {
		res = append(res, r.unboil())
	}
	return res, nil
}
