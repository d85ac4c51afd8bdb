package credit

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/sautiplus/backoffice/core"
)

var (
	// errors
	ErrNotFound            = core.NewNotFoundError("transaction not found")
	ErrRuleNotFound        = core.NewNotFoundError("activity rule not found")
	ErrInsufficientBalance = core.NewStateError("insufficient credits balance")
	ErrIdempotencyMismatch = core.NewConflictError("idempotency key already used with a different payload")
	ErrAlreadyReversed     = core.NewConflictError("transaction already reversed")
	ErrReverseReversal     = core.NewStateError("a reversal cannot be reversed")
	ErrRuleInactive        = core.NewStateError("activity rule is inactive")
	ErrDailyCapReached     = core.NewStateError("daily reward cap reached")
	ErrAwardTooLarge       = errors.New("amount exceeds the maximum award")
	ErrBalanceOverflow     = core.NewStateError("amount would overflow the credits balance")
	ErrDedicatedActivity   = errors.New("this activity has a dedicated operation")
)

const EventTransactionRecorded = "credit.transaction.recorded"

type (
	Repository interface {
		// LockWallet returns the wallet of userID locked for update, creating it when missing.
		LockWallet(ctx context.Context, userID string) (Wallet, error)
		// GetWallet returns ErrNotFound-classed errors for unknown users.
		GetWallet(ctx context.Context, userID string) (Wallet, error)
		// ShareLockWallet returns the wallet of userID locked against ledger writes; ErrNotFound-classed when missing.
		ShareLockWallet(ctx context.Context, userID string) (Wallet, error)
		UpdateWallet(ctx context.Context, w Wallet) error

		CreateTransaction(ctx context.Context, txn Transaction) (Transaction, error)
		GetTransaction(ctx context.Context, id string) (Transaction, error)
		GetTransactionByKey(ctx context.Context, userID, key string) (Transaction, error)
		GetReversal(ctx context.Context, txnID string) (Transaction, error)
		QueryTransactions(ctx context.Context, filter HistoryFilter, ordering []core.DBOrdering, page core.Page) ([]Transaction, error)
		// CountActivity counts the transactions of userID with the given activity & reference since `since`.
		CountActivity(ctx context.Context, userID, activity, reference string, since time.Time) (int, error)
		SumTransactions(ctx context.Context, userID string) (credits, debits int64, err error)

		SaveRule(ctx context.Context, rule ActivityRule) (ActivityRule, error)
		GetRule(ctx context.Context, code string) (ActivityRule, error)
		QueryRules(ctx context.Context) ([]ActivityRule, error)
	}

	// BalanceCache caches wallet balances between ledger writes.
	BalanceCache interface {
		Get(ctx context.Context, userID string) (balance int64, ok bool, err error)
		Set(ctx context.Context, userID string, balance int64) error
		Invalidate(ctx context.Context, userID string) error
	}

	Service struct {
		repo     Repository
		tx       core.Transactor
		cache    BalanceCache
		events   core.EventPublisher
		log      core.Logger
		validate *validator.Validate
		maxAward int64
		NowFunc  func() time.Time // mockable
	}
)

var OrderingFields = []string{"created_at", "amount"}

func NewService(
	repo Repository,
	tx core.Transactor,
	cache BalanceCache,
	events core.EventPublisher,
	logger core.Logger,
	validate *validator.Validate,
	conf *core.Config,
) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(tx, "tx"),
		vala.IsNotNil(cache, "cache"),
		vala.IsNotNil(events, "events"),
		vala.IsNotNil(logger, "logger"),
		vala.IsNotNil(validate, "validate"),
		vala.IsNotNil(conf, "conf"),
	).CheckAndPanic()

	return &Service{
		repo:     repo,
		tx:       tx,
		cache:    cache,
		events:   events,
		log:      logger,
		validate: validate,
		maxAward: conf.Credit.MaxAward,
		NowFunc:  core.Now,
	}
}

// Balance returns the credits balance of userID. Unknown users have a zero balance.
func (svc *Service) Balance(ctx context.Context, userID string) (int64, error) {
	userID = core.CleanString(userID)
	if bal, ok, err := svc.cache.Get(ctx, userID); err != nil {
		svc.log.Warn("reading cached balance", "user", userID, "err", err)
	} else if ok {
		return bal, nil
	}

	// the cache is filled under the wallet lock; writers invalidate only once committed
	var w Wallet
	err := svc.tx.WithTx(ctx, func(ctx context.Context) (err error) {
		if w, err = svc.repo.ShareLockWallet(ctx, userID); err != nil {
			return err
		}
		if err := svc.cache.Set(ctx, userID, w.Balance); err != nil {
			svc.log.Warn("caching balance", "user", userID, "err", err)
		}
		return nil
	})
	if err != nil {
		if core.IsNotFound(err) {
			return 0, nil
		}
		return 0, errors.Wrap(err, "getting wallet")
	}
	return w.Balance, nil
}

// Credit records a raw ledger credit. Only RawActivities are accepted; awards, rewards and
// reversals go through Award, Reward and Reverse.
func (svc *Service) Credit(ctx context.Context, in Entry) (Transaction, error) {
	return svc.apply(ctx, DirectionCredit, in, true)
}

// Debit records a raw ledger debit, see Credit.
func (svc *Service) Debit(ctx context.Context, in Entry) (Transaction, error) {
	return svc.apply(ctx, DirectionDebit, in, true)
}

// Award credits `amount` to userID on behalf of a staff member.
func (svc *Service) Award(ctx context.Context, userID string, amount int64, note, staffID, idempotencyKey string) (Transaction, error) {
	if svc.maxAward > 0 && amount > svc.maxAward {
		return Transaction{}, core.NewFieldError("amount", errors.Wrapf(ErrAwardTooLarge, "max %d", svc.maxAward))
	}
	return svc.apply(ctx, DirectionCredit, Entry{
		UserID:         userID,
		Amount:         amount,
		Activity:       ActivityAdminAward,
		IdempotencyKey: idempotencyKey,
		Description:    note,
		CreatedBy:      staffID,
	}, false)
}

// Spend debits credits for a purchase on the platform (reference: the purchased item).
func (svc *Service) Spend(ctx context.Context, userID string, amount int64, reference, idempotencyKey string) (Transaction, error) {
	return svc.apply(ctx, DirectionDebit, Entry{
		UserID:         userID,
		Amount:         amount,
		Activity:       ActivitySpend,
		Reference:      reference,
		IdempotencyKey: idempotencyKey,
	}, false)
}

// Reward credits the amount configured for activity `code`, at most rule.DailyCap times per UTC day.
func (svc *Service) Reward(ctx context.Context, userID, code string) (Transaction, error) {
	code = core.CleanString(code, true /* lower */)
	rule, err := svc.repo.GetRule(ctx, code)
	if err != nil {
		return Transaction{}, err
	}
	if !rule.IsActive {
		return Transaction{}, ErrRuleInactive
	}

	in := Entry{
		UserID:      userID,
		Amount:      rule.Amount,
		Activity:    ActivityReward,
		Reference:   rule.Code,
		Description: rule.Description,
	}
	in.clean()
	if err := svc.validate.Struct(in); err != nil {
		return Transaction{}, err
	}

	var (
		txn     Transaction
		created bool
	)
	err = svc.tx.WithTx(ctx, func(ctx context.Context) error {
		// the wallet lock serialises concurrent rewards of the same user
		if _, err := svc.repo.LockWallet(ctx, in.UserID); err != nil {
			return errors.Wrap(err, "locking wallet")
		}
		if rule.DailyCap > 0 {
			n, err := svc.repo.CountActivity(ctx, in.UserID, ActivityReward, rule.Code, core.StartOfDay(svc.NowFunc()))
			if err != nil {
				return errors.Wrap(err, "counting rewards")
			}
			if n >= rule.DailyCap {
				return ErrDailyCapReached
			}
		}
		txn, created, err = svc.record(ctx, DirectionCredit, in, "")
		return err
	})
	if err != nil {
		return Transaction{}, err
	}
	svc.afterWrite(ctx, txn, created)
	return txn, nil
}

// Reverse records the opposite entry of transaction txnID. A transaction can only be reversed once.
func (svc *Service) Reverse(ctx context.Context, txnID, staffID, note string) (Transaction, error) {
	var (
		txn     Transaction
		created bool
	)
	err := svc.tx.WithTx(ctx, func(ctx context.Context) error {
		orig, err := svc.repo.GetTransaction(ctx, txnID)
		if err != nil {
			return err
		}
		if orig.Activity == ActivityReversal {
			return ErrReverseReversal
		}
		// lock before looking for an existing reversal
		if _, err = svc.repo.LockWallet(ctx, orig.UserID); err != nil {
			return errors.Wrap(err, "locking wallet")
		}
		if _, err = svc.repo.GetReversal(ctx, orig.ID); err == nil {
			return ErrAlreadyReversed
		} else if !core.IsNotFound(err) {
			return errors.Wrap(err, "getting reversal")
		}

		desc := core.CleanString(note)
		if desc == "" {
			desc = fmt.Sprintf("reversal of %s", orig.ID)
		}
		txn, created, err = svc.record(ctx, orig.Direction.Opposite(), Entry{
			UserID:      orig.UserID,
			Amount:      orig.Amount,
			Activity:    ActivityReversal,
			Reference:   orig.ID,
			Description: desc,
			CreatedBy:   staffID,
		}, orig.ID)
		return err
	})
	if err != nil {
		return Transaction{}, err
	}
	svc.afterWrite(ctx, txn, created)
	return txn, nil
}

func (svc *Service) GetTransaction(ctx context.Context, id string) (Transaction, error) {
	return svc.repo.GetTransaction(ctx, id)
}

func (svc *Service) History(ctx context.Context, filter HistoryFilter, page core.Page, ordering ...core.DBOrdering) ([]Transaction, error) {
	filter.Clean()
	page.Clean()
	ordering = core.FilterOrderings(ordering, OrderingFields...)
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "created_at"}}
	}
	return svc.repo.QueryTransactions(ctx, filter, ordering, page)
}

// Reconcile recomputes the ledger balance of userID and compares it with the wallet.
func (svc *Service) Reconcile(ctx context.Context, userID string) (Reconciliation, error) {
	userID = core.CleanString(userID)
	rec := Reconciliation{UserID: userID}
	err := svc.tx.WithTx(ctx, func(ctx context.Context) error {
		w, err := svc.repo.GetWallet(ctx, userID)
		if err != nil && !core.IsNotFound(err) {
			return errors.Wrap(err, "getting wallet")
		}
		rec.WalletBalance = w.Balance
		if rec.Credits, rec.Debits, err = svc.repo.SumTransactions(ctx, userID); err != nil {
			return errors.Wrap(err, "summing transactions")
		}
		return nil
	})
	if err != nil {
		return Reconciliation{}, err
	}

	rec.LedgerBalance = rec.Credits - rec.Debits
	rec.Consistent = rec.LedgerBalance == rec.WalletBalance
	if !rec.Consistent {
		svc.log.Error("wallet balance mismatch", "user", userID, "wallet", rec.WalletBalance, "ledger", rec.LedgerBalance)
	}
	return rec, nil
}

func (svc *Service) SaveRule(ctx context.Context, rule ActivityRule) (ActivityRule, error) {
	rule.Code = core.CleanString(rule.Code, true /* lower */)
	rule.Description = core.CleanString(rule.Description)
	if err := svc.validate.Struct(rule); err != nil {
		return ActivityRule{}, err
	}
	rule.UpdatedAt = svc.NowFunc()
	return svc.repo.SaveRule(ctx, rule)
}

func (svc *Service) GetRule(ctx context.Context, code string) (ActivityRule, error) {
	return svc.repo.GetRule(ctx, core.CleanString(code, true /* lower */))
}

func (svc *Service) ListRules(ctx context.Context) ([]ActivityRule, error) {
	return svc.repo.QueryRules(ctx)
}

func (svc *Service) apply(ctx context.Context, dir Direction, in Entry, raw bool) (Transaction, error) {
	in.clean()
	if err := svc.validate.Struct(in); err != nil {
		return Transaction{}, err
	}
	if raw && !IsRawActivity(in.Activity) {
		return Transaction{}, core.NewFieldError("activity", ErrDedicatedActivity)
	}

	var (
		txn     Transaction
		created bool
	)
	err := svc.tx.WithTx(ctx, func(ctx context.Context) (err error) {
		txn, created, err = svc.record(ctx, dir, in, "")
		return err
	})
	if err != nil {
		return Transaction{}, err
	}
	svc.afterWrite(ctx, txn, created)
	return txn, nil
}

// record writes a ledger entry; it must run inside a transaction.
// Replaying an idempotency key returns the original entry with created = false.
func (svc *Service) record(ctx context.Context, dir Direction, in Entry, reversalOf string) (Transaction, bool, error) {
	w, err := svc.repo.LockWallet(ctx, in.UserID)
	if err != nil {
		return Transaction{}, false, errors.Wrap(err, "locking wallet")
	}

	if in.IdempotencyKey != "" {
		prev, err := svc.repo.GetTransactionByKey(ctx, in.UserID, in.IdempotencyKey)
		switch {
		case err == nil:
			if !in.matches(dir, prev) {
				return Transaction{}, false, ErrIdempotencyMismatch
			}
			return prev, false, nil
		case !core.IsNotFound(err):
			return Transaction{}, false, errors.Wrap(err, "getting transaction by key")
		}
	}

	balance := w.Balance
	if dir == DirectionDebit {
		if balance < in.Amount {
			return Transaction{}, false, ErrInsufficientBalance
		}
		balance -= in.Amount
	} else {
		if in.Amount > math.MaxInt64-balance {
			return Transaction{}, false, ErrBalanceOverflow
		}
		balance += in.Amount
	}

	now := svc.NowFunc()
	txn, err := svc.repo.CreateTransaction(ctx, Transaction{
		ID:             uuid.NewString(),
		UserID:         in.UserID,
		Direction:      dir,
		Amount:         in.Amount,
		BalanceAfter:   balance,
		Activity:       in.Activity,
		Reference:      in.Reference,
		IdempotencyKey: in.IdempotencyKey,
		Description:    in.Description,
		CreatedBy:      in.CreatedBy,
		ReversalOf:     reversalOf,
		CreatedAt:      now,
	})
	if err != nil {
		return Transaction{}, false, errors.Wrap(err, "creating transaction")
	}

	w.Balance = balance
	w.UpdatedAt = now
	if err = svc.repo.UpdateWallet(ctx, w); err != nil {
		return Transaction{}, false, errors.Wrap(err, "updating wallet")
	}
	return txn, true, nil
}

// afterWrite runs once the transaction is committed.
func (svc *Service) afterWrite(ctx context.Context, txn Transaction, created bool) {
	if !created {
		return
	}
	if err := svc.cache.Invalidate(ctx, txn.UserID); err != nil {
		svc.log.Error("invalidating cached balance", "user", txn.UserID, "err", err)
	}
	svc.events.Publish(ctx, core.NewEvent(EventTransactionRecorded, txn.UserID, txn))
}
