package credit_test

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sautiplus/backoffice/core"
	"github.com/sautiplus/backoffice/core/credit"
	"github.com/sautiplus/backoffice/core/testutil"
)

func TestService_BalanceCache(t *testing.T) {
	env := testutil.NewEnv(t)
	svc := env.CreditSvc
	ctx := context.Background()

	bal, err := svc.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.Zero(t, bal)
	_, ok, _ := env.Balances.Get(ctx, "user-1")
	assert.False(t, ok, "missing wallets have no row to lock and are not cached")

	_, err = svc.Award(ctx, "user-1", 300, "", "staff-1", "")
	require.NoError(t, err)
	_, ok, _ = env.Balances.Get(ctx, "user-1")
	assert.False(t, ok, "writes invalidate the cached balance")

	bal, err = svc.Balance(ctx, " user-1 ")
	require.NoError(t, err)
	assert.Equal(t, int64(300), bal)

	// the cache is trusted while it holds a value
	require.NoError(t, env.Balances.Set(ctx, "user-1", 42))
	bal, err = svc.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(42), bal)
}

// slowWallets awards credits while Balance holds the wallet it just read.
type slowWallets struct {
	credit.Repository
	once  sync.Once
	award func()
}

func (r *slowWallets) ShareLockWallet(ctx context.Context, userID string) (credit.Wallet, error) {
	w, err := r.Repository.ShareLockWallet(ctx, userID)
	r.once.Do(r.award)
	return w, err
}

func TestService_BalanceConcurrentWrite(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	_, err := env.CreditSvc.Award(ctx, "user-1", 100, "", "staff-1", "")
	require.NoError(t, err)

	repo := &slowWallets{Repository: env.CreditRepo}
	svc := credit.NewService(repo, env.DB, env.Balances, env.Events, env.Logger, env.Validate, env.Conf)

	var wg sync.WaitGroup
	repo.award = func() {
		started := make(chan struct{})
		wg.Add(1)
		go func() {
			defer wg.Done()
			close(started)
			_, err := svc.Award(context.Background(), "user-1", 50, "", "staff-1", "")
			assert.NoError(t, err)
		}()
		<-started
		time.Sleep(20 * time.Millisecond)
	}

	bal, err := svc.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), bal)
	wg.Wait()

	bal, err = svc.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(150), bal, "the award committed after the read must not leave a stale balance")
}

func TestService_BalanceOverflow(t *testing.T) {
	env := testutil.NewEnv(t)
	svc := env.CreditSvc
	ctx := context.Background()

	_, err := svc.Credit(ctx, credit.Entry{UserID: "user-1", Amount: math.MaxInt64, Activity: credit.ActivityPurchase})
	require.NoError(t, err)
	_, err = svc.Credit(ctx, credit.Entry{UserID: "user-1", Amount: 1, Activity: credit.ActivityRefund})
	assert.Equal(t, credit.ErrBalanceOverflow, err)

	bal, err := svc.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), bal)
	rec, err := svc.Reconcile(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, rec.Consistent)
}

func TestService_RawEntries(t *testing.T) {
	env := testutil.NewEnv(t)
	svc := env.CreditSvc
	ctx := context.Background()

	tests := []struct {
		name     string
		activity string
		debit    bool
		wantErr  bool
	}{
		{name: "purchase", activity: credit.ActivityPurchase},
		{name: "refund", activity: credit.ActivityRefund},
		{name: "spend", activity: credit.ActivitySpend, debit: true},
		{name: "award above the cap", activity: credit.ActivityAdminAward, wantErr: true},
		{name: "reward without its rule", activity: credit.ActivityReward, wantErr: true},
		{name: "unlinked reversal", activity: credit.ActivityReversal, debit: true, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := credit.Entry{UserID: "user-1", Amount: env.Conf.Credit.MaxAward * 100, Activity: tt.activity}
			if tt.debit {
				in.Amount = 1
			}
			var err error
			if tt.debit {
				_, err = svc.Debit(ctx, in)
			} else {
				_, err = svc.Credit(ctx, in)
			}
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var verr *core.ValidationError
			if assert.ErrorAs(t, err, &verr) {
				assert.Equal(t, "activity", verr.Fields[0].Field)
				assert.Equal(t, credit.ErrDedicatedActivity, verr.Err)
			}
		})
	}

	txns, err := svc.History(ctx, credit.HistoryFilter{UserID: "user-1"}, core.Page{})
	require.NoError(t, err)
	assert.Len(t, txns, 3)
}

func TestService_Ledger(t *testing.T) {
	env := testutil.NewEnv(t)
	svc := env.CreditSvc
	ctx := context.Background()

	_, err := svc.Credit(ctx, credit.Entry{UserID: "user-1", Amount: 10, Activity: "bogus"})
	assert.IsType(t, validator.ValidationErrors{}, err)

	_, err = svc.Award(ctx, "user-1", env.Conf.Credit.MaxAward+1, "", "staff-1", "")
	var verr *core.ValidationError
	if assert.ErrorAs(t, err, &verr) {
		assert.Equal(t, "amount", verr.Fields[0].Field)
	}

	purchase, err := svc.Credit(ctx, credit.Entry{UserID: "user-1", Amount: 1_000, Activity: credit.ActivityPurchase, Reference: "order-1", IdempotencyKey: "pay-1"})
	require.NoError(t, err)
	assert.Equal(t, int64(1_000), purchase.BalanceAfter)

	replay, err := svc.Credit(ctx, credit.Entry{UserID: "user-1", Amount: 1_000, Activity: credit.ActivityPurchase, Reference: "order-1", IdempotencyKey: "pay-1"})
	require.NoError(t, err)
	assert.Equal(t, purchase, replay)
	assert.Len(t, env.Events.Events(credit.EventTransactionRecorded), 1, "replays are not published")

	_, err = svc.Debit(ctx, credit.Entry{UserID: "user-1", Amount: 1_000, Activity: credit.ActivitySpend, Reference: "order-1", IdempotencyKey: "pay-1"})
	assert.Equal(t, credit.ErrIdempotencyMismatch, err, "same key, other direction")

	spend, err := svc.Spend(ctx, "user-1", 800, "item-9", "")
	require.NoError(t, err)
	assert.Equal(t, int64(-800), spend.Signed())
	assert.Equal(t, int64(200), spend.BalanceAfter)

	// the purchased credits were spent: reversing the purchase would overdraw the wallet
	_, err = svc.Reverse(ctx, purchase.ID, "staff-1", "")
	assert.Equal(t, credit.ErrInsufficientBalance, err)

	reversal, err := svc.Reverse(ctx, spend.ID, "staff-1", "")
	require.NoError(t, err)
	assert.Equal(t, "reversal of "+spend.ID, reversal.Description)
	assert.Equal(t, int64(1_000), reversal.BalanceAfter)

	_, err = svc.Reverse(ctx, "missing", "staff-1", "")
	assert.True(t, core.IsNotFound(err))

	txns, err := svc.History(ctx, credit.HistoryFilter{UserID: "user-1", Direction: "sideways"}, core.Page{}, core.DBOrdering{Field: "amount", Ascending: true}, core.DBOrdering{Field: "balance_after"})
	require.NoError(t, err)
	if assert.Len(t, txns, 3) {
		assert.Equal(t, []int64{800, 800, 1_000}, []int64{txns[0].Amount, txns[1].Amount, txns[2].Amount})
	}
}

func TestService_Reconcile(t *testing.T) {
	env := testutil.NewEnv(t)
	svc := env.CreditSvc
	ctx := context.Background()

	rec, err := svc.Reconcile(ctx, "nobody")
	require.NoError(t, err)
	assert.Equal(t, credit.Reconciliation{UserID: "nobody", Consistent: true}, rec)

	_, err = svc.Award(ctx, "user-1", 500, "", "staff-1", "")
	require.NoError(t, err)
	require.NoError(t, env.CreditRepo.UpdateWallet(ctx, credit.Wallet{UserID: "user-1", Balance: 900}))

	rec, err = svc.Reconcile(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, rec.Consistent)
	assert.Equal(t, int64(500), rec.LedgerBalance)
	assert.Equal(t, int64(900), rec.WalletBalance)
}

func TestService_Reward(t *testing.T) {
	day1 := time.Date(2024, 6, 1, 22, 0, 0, 0, time.UTC)
	env := testutil.NewEnv(t, day1)
	svc := env.CreditSvc
	ctx := context.Background()

	_, err := svc.SaveRule(ctx, credit.ActivityRule{Code: "Stream_Hour", Amount: 5, DailyCap: 2, IsActive: true})
	require.NoError(t, err)
	_, err = svc.SaveRule(ctx, credit.ActivityRule{Code: "legacy", Amount: 5, IsActive: false})
	require.NoError(t, err)
	_, err = svc.SaveRule(ctx, credit.ActivityRule{Code: "free", Amount: 0})
	assert.Error(t, err)

	for i := 0; i < 2; i++ {
		txn, err := svc.Reward(ctx, "user-1", "stream_hour")
		require.NoError(t, err)
		assert.Equal(t, "stream_hour", txn.Reference)
	}
	_, err = svc.Reward(ctx, "user-1", "stream_hour")
	assert.Equal(t, credit.ErrDailyCapReached, err)

	// the cap is per user
	_, err = svc.Reward(ctx, "user-2", "stream_hour")
	assert.NoError(t, err)

	// and per UTC day
	env.SetNow(day1.Add(3 * time.Hour))
	_, err = svc.Reward(ctx, "user-1", "stream_hour")
	assert.NoError(t, err)

	_, err = svc.Reward(ctx, "user-1", "legacy")
	assert.Equal(t, credit.ErrRuleInactive, err)
	_, err = svc.Reward(ctx, "user-1", "unknown")
	assert.Equal(t, credit.ErrRuleNotFound, err)

	bal, err := svc.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(15), bal)
}

func TestService_ConcurrentSpends(t *testing.T) {
	env := testutil.NewEnv(t)
	svc := env.CreditSvc
	ctx := context.Background()

	_, err := svc.Award(ctx, "user-1", 200, "", "staff-1", "")
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Spend(ctx, "user-1", 10, "item", ""); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			} else {
				assert.Equal(t, credit.ErrInsufficientBalance, err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, succeeded)
	bal, err := svc.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.Zero(t, bal)

	rec, err := svc.Reconcile(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, rec.Consistent)
}
