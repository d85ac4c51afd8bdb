package echoapi_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/sautiplus/backoffice/apps/api/echo"
	"github.com/sautiplus/backoffice/core/credit"
)

func TestCreditsLedger(t *testing.T) {
	api := setup(t)
	const user = "user-42"

	// award
	rec := api.do(t, http.MethodPost, "/v1/credits/awards", &api.finance,
		echoapi.AwardRequest{UserID: user, Amount: 500, Note: "welcome bonus", IdempotencyKey: "award-1"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var award credit.Transaction
	decode(t, rec, &award)
	assert.Equal(t, credit.DirectionCredit, award.Direction)
	assert.Equal(t, credit.ActivityAdminAward, award.Activity)
	assert.Equal(t, int64(500), award.BalanceAfter)
	assert.Equal(t, api.finance.ID, award.CreatedBy)

	// replaying the idempotency key does not credit twice
	rec = api.do(t, http.MethodPost, "/v1/credits/awards", &api.finance,
		echoapi.AwardRequest{UserID: user, Amount: 500, Note: "welcome bonus", IdempotencyKey: "award-1"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var replay credit.Transaction
	decode(t, rec, &replay)
	assert.Equal(t, award.ID, replay.ID)

	tests := []httpTest{
		{
			name:     "balance",
			method:   http.MethodGet,
			path:     "/v1/credits/wallets/" + user,
			wantCode: http.StatusOK,
			wantData: marchallObj(t, echoapi.BalanceResponse{UserID: user, Balance: 500}),
		},
		{
			name:     "unknown wallet",
			method:   http.MethodGet,
			path:     "/v1/credits/wallets/nobody",
			wantCode: http.StatusOK,
			wantData: marchallObj(t, echoapi.BalanceResponse{UserID: "nobody", Balance: 0}),
		},
		{
			name:     "idempotency key reused with another amount",
			method:   http.MethodPost,
			path:     "/v1/credits/awards",
			body:     marchallObj(t, echoapi.AwardRequest{UserID: user, Amount: 700, IdempotencyKey: "award-1"}),
			wantCode: http.StatusConflict,
		},
		{
			name:     "award too large",
			method:   http.MethodPost,
			path:     "/v1/credits/awards",
			body:     marchallObj(t, echoapi.AwardRequest{UserID: user, Amount: 1_000_000}),
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "award requires amount",
			method:   http.MethodPost,
			path:     "/v1/credits/awards",
			body:     marchallObj(t, echoapi.AwardRequest{UserID: user}),
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "spend more than balance",
			method:   http.MethodPost,
			path:     "/v1/credits/spend",
			body:     marchallObj(t, echoapi.SpendRequest{UserID: user, Amount: 501, Reference: "item-1"}),
			wantCode: http.StatusUnprocessableEntity,
			wantData: marchallObj(t, httpErr{Error: "insufficient credits balance"}),
		},
		{
			name:     "unknown transaction",
			method:   http.MethodGet,
			path:     "/v1/credits/transactions/missing",
			wantCode: http.StatusNotFound,
		},
	}

	tok := api.token(t, api.finance)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tok, tt.body)
			api.app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	// spend
	rec = api.do(t, http.MethodPost, "/v1/credits/spend", &api.finance,
		echoapi.SpendRequest{UserID: user, Amount: 200, Reference: "item-1"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var spend credit.Transaction
	decode(t, rec, &spend)
	assert.Equal(t, int64(300), spend.BalanceAfter)

	// reverse
	rec = api.do(t, http.MethodPost, "/v1/credits/transactions/"+spend.ID+"/reverse", &api.finance,
		echoapi.NoteRequest{Note: "item out of stock"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var reversal credit.Transaction
	decode(t, rec, &reversal)
	assert.Equal(t, credit.DirectionCredit, reversal.Direction)
	assert.Equal(t, spend.ID, reversal.ReversalOf)
	assert.Equal(t, int64(500), reversal.BalanceAfter)

	rec = api.do(t, http.MethodPost, "/v1/credits/transactions/"+spend.ID+"/reverse", &api.finance, echoapi.NoteRequest{})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = api.do(t, http.MethodPost, "/v1/credits/transactions/"+reversal.ID+"/reverse", &api.finance, echoapi.NoteRequest{})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	// history
	rec = api.do(t, http.MethodGet, "/v1/credits/transactions?user_id="+user+"&ordering=created_at", &api.finance, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var txns []credit.Transaction
	decode(t, rec, &txns)
	assert.Len(t, txns, 3)

	rec = api.do(t, http.MethodGet, "/v1/credits/transactions?user_id="+user+"&direction=debit", &api.finance, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &txns)
	if assert.Len(t, txns, 1) {
		assert.Equal(t, spend.ID, txns[0].ID)
	}

	// reconcile
	rec = api.do(t, http.MethodGet, "/v1/credits/wallets/"+user+"/reconcile", &api.finance, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var recon credit.Reconciliation
	decode(t, rec, &recon)
	assert.True(t, recon.Consistent)
	assert.Equal(t, int64(700), recon.Credits)
	assert.Equal(t, int64(200), recon.Debits)
	assert.Equal(t, int64(500), recon.WalletBalance)
}

func TestCreditsRewards(t *testing.T) {
	api := setup(t)

	rec := api.do(t, http.MethodPut, "/v1/credits/rules/daily_login", &api.finance,
		credit.ActivityRule{Description: "Daily login", Amount: 10, DailyCap: 1, IsActive: true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var rule credit.ActivityRule
	decode(t, rec, &rule)
	assert.Equal(t, "daily_login", rule.Code)

	rec = api.do(t, http.MethodGet, "/v1/credits/rules", &api.finance, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var rules []credit.ActivityRule
	decode(t, rec, &rules)
	assert.Len(t, rules, 1)

	rec = api.do(t, http.MethodPost, "/v1/credits/rewards", &api.finance, echoapi.RewardRequest{UserID: "user-7", Code: "daily_login"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var txn credit.Transaction
	decode(t, rec, &txn)
	assert.Equal(t, credit.ActivityReward, txn.Activity)
	assert.Equal(t, int64(10), txn.Amount)

	// daily cap
	rec = api.do(t, http.MethodPost, "/v1/credits/rewards", &api.finance, echoapi.RewardRequest{UserID: "user-7", Code: "daily_login"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = api.do(t, http.MethodPost, "/v1/credits/rewards", &api.finance, echoapi.RewardRequest{UserID: "user-7", Code: "unknown"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreditsRawEntries(t *testing.T) {
	api := setup(t)

	tests := []httpTest{
		{
			name:     "purchase",
			path:     "/v1/credits/credit",
			body:     marchallObj(t, credit.Entry{UserID: "user-7", Amount: 1_000, Activity: credit.ActivityPurchase}),
			wantCode: http.StatusCreated,
		},
		{
			name:     "admin award bypassing the cap",
			path:     "/v1/credits/credit",
			body:     marchallObj(t, credit.Entry{UserID: "user-7", Amount: 1_000_000, Activity: credit.ActivityAdminAward}),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"activity": "this activity has a dedicated operation"}`),
		},
		{
			name:     "forged reversal",
			path:     "/v1/credits/debit",
			body:     marchallObj(t, credit.Entry{UserID: "user-7", Amount: 10, Activity: credit.ActivityReversal}),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"activity": "this activity has a dedicated operation"}`),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodPost, tt.path, api.token(t, api.finance), tt.body)
			api.app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}
