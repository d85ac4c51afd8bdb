package echoapi_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/sautiplus/backoffice/apps/api/echo"
	"github.com/sautiplus/backoffice/core/sacco"
)

func TestSaccoMembers(t *testing.T) {
	api := setup(t)

	rec := api.do(t, http.MethodPost, "/v1/sacco/members", &api.finance, sacco.NewMember{Name: "  Faraji Otieno ", Email: "Faraji@Example.com"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var m sacco.Member
	decode(t, rec, &m)
	assert.Equal(t, "Faraji Otieno", m.Name)
	assert.Equal(t, "faraji@example.com", m.Email)
	assert.Equal(t, sacco.MemberActive, m.Status)
	assert.True(t, strings.HasPrefix(m.MemberNo, "SACCO-"), m.MemberNo)
	assert.Len(t, api.Mail.SentMessages(), 1, "welcome email")

	base := "/v1/sacco/members/" + m.ID
	tests := []httpTest{
		{
			name:     "name is required",
			method:   http.MethodPost,
			path:     "/v1/sacco/members",
			body:     marchallObj(t, sacco.NewMember{Email: "x@example.com"}),
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "deposit",
			method:   http.MethodPost,
			path:     base + "/deposits",
			body:     marchallObj(t, echoapi.AmountRequest{Amount: 100_000, Reference: "M-PESA QX1"}),
			wantCode: http.StatusCreated,
		},
		{
			name:     "deposit requires a positive amount",
			method:   http.MethodPost,
			path:     base + "/deposits",
			body:     marchallObj(t, echoapi.AmountRequest{Amount: -5}),
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "withdrawal below the minimum balance",
			method:   http.MethodPost,
			path:     base + "/withdrawals",
			body:     marchallObj(t, echoapi.AmountRequest{Amount: 60_000}),
			wantCode: http.StatusUnprocessableEntity,
			wantData: marchallObj(t, httpErr{Error: sacco.ErrMinimumBalance.Error()}),
		},
		{
			name:     "withdrawal above the balance",
			method:   http.MethodPost,
			path:     base + "/withdrawals",
			body:     marchallObj(t, echoapi.AmountRequest{Amount: 200_000}),
			wantCode: http.StatusUnprocessableEntity,
			wantData: marchallObj(t, httpErr{Error: sacco.ErrInsufficientSavings.Error()}),
		},
		{
			name:     "withdrawal",
			method:   http.MethodPost,
			path:     base + "/withdrawals",
			body:     marchallObj(t, echoapi.AmountRequest{Amount: 20_000}),
			wantCode: http.StatusCreated,
		},
		{
			name:     "buy shares",
			method:   http.MethodPost,
			path:     base + "/shares",
			body:     marchallObj(t, echoapi.SharesRequest{Shares: 2}),
			wantCode: http.StatusCreated,
		},
		{
			name:     "shares",
			method:   http.MethodGet,
			path:     base + "/shares",
			wantCode: http.StatusOK,
		},
		{
			name:     "loan limit",
			method:   http.MethodGet,
			path:     base + "/loan-limit",
			wantCode: http.StatusOK,
			// (100_000 - 20_000 - 2 * 10_000) * 3
			wantData: []byte(`{"member_id": "` + m.ID + `", "limit": 180000}`),
		},
		{
			name:     "invalid status",
			method:   http.MethodPut,
			path:     base + "/status",
			body:     marchallObj(t, echoapi.StatusRequest{Status: "gone"}),
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "unknown member",
			method:   http.MethodGet,
			path:     "/v1/sacco/members/missing",
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: sacco.ErrMemberNotFound.Error()}),
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

	rec = api.do(t, http.MethodGet, base+"/statement", &api.finance, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var st sacco.Statement
	decode(t, rec, &st)
	assert.Equal(t, int64(60_000), st.Balance)
	assert.Len(t, st.Transactions, 3)

	rec = api.do(t, http.MethodPut, base+"/status", &api.finance, echoapi.StatusRequest{Status: string(sacco.MemberSuspended)})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = api.do(t, http.MethodPost, base+"/deposits", &api.finance, echoapi.AmountRequest{Amount: 1_000})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = api.do(t, http.MethodGet, "/v1/sacco/members?status=suspended", &api.finance, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var members []sacco.Member
	decode(t, rec, &members)
	if assert.Len(t, members, 1) {
		assert.Equal(t, m.ID, members[0].ID)
	}
}

func TestSaccoLoanLifecycle(t *testing.T) {
	api := setup(t)
	m := api.registerMember(t, "Gathoni Kamau", 50_000)

	rec := api.do(t, http.MethodPost, "/v1/sacco/products", &api.finance, sacco.NewLoanProduct{
		Name:          "Emergency",
		RateBps:       1200,
		Method:        sacco.MethodFlat,
		MaxTermMonths: 12,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var product sacco.LoanProduct
	decode(t, rec, &product)
	assert.True(t, product.IsActive)

	apply := func(principal int64, term int) *httptest.ResponseRecorder {
		return api.do(t, http.MethodPost, "/v1/sacco/loans", &api.finance, sacco.LoanApplication{
			MemberID:   m.ID,
			ProductID:  product.ID,
			Principal:  principal,
			TermMonths: term,
			Purpose:    "school fees",
		})
	}

	rec = apply(150_001, 12)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "over the loan limit")
	assert.Contains(t, rec.Body.String(), `"principal"`)

	rec = apply(100_000, 24)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "term too long")

	rec = apply(100_000, 12)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var loan sacco.Loan
	decode(t, rec, &loan)
	assert.Equal(t, sacco.LoanPending, loan.Status)
	assert.Equal(t, int64(12_000), loan.TotalInterest)
	assert.Equal(t, int64(112_000), loan.TotalDue)

	rec = apply(10_000, 6)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, "too many active loans")

	loanPath := "/v1/sacco/loans/" + loan.ID

	rec = api.do(t, http.MethodGet, loanPath+"/schedule", &api.finance, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var plan []sacco.Installment
	decode(t, rec, &plan)
	assert.Len(t, plan, 12)

	rec = api.do(t, http.MethodPost, loanPath+"/disburse", &api.finance, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, "not approved yet")

	rec = api.do(t, http.MethodPost, loanPath+"/reject", &api.finance, echoapi.NoteRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "rejecting requires a note")

	rec = api.do(t, http.MethodPost, loanPath+"/approve", &api.finance, echoapi.NoteRequest{Note: "good standing"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &loan)
	assert.Equal(t, sacco.LoanApproved, loan.Status)
	assert.Equal(t, api.finance.ID, loan.ReviewedBy)

	rec = api.do(t, http.MethodPost, loanPath+"/approve", &api.finance, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, "already reviewed")

	rec = api.do(t, http.MethodPost, loanPath+"/disburse", &api.finance, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &loan)
	assert.Equal(t, sacco.LoanDisbursed, loan.Status)
	assert.True(t, loan.DueDate.Equal(loan.DisbursedAt.AddDate(0, 12, 0)), loan.DueDate)

	rec = api.do(t, http.MethodPost, loanPath+"/repayments", &api.finance, sacco.NewRepayment{Amount: 20_000})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp echoapi.RepaymentResponse
	decode(t, rec, &resp)
	assert.Equal(t, int64(12_000), resp.Repayment.InterestPart)
	assert.Equal(t, int64(8_000), resp.Repayment.PrincipalPart)
	assert.Equal(t, sacco.RepayFromCash, resp.Repayment.Source)
	assert.Equal(t, int64(92_000), resp.Loan.Outstanding())

	rec = api.do(t, http.MethodPost, loanPath+"/repayments", &api.finance, sacco.NewRepayment{Amount: 92_001})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, "overpayment")

	rec = api.do(t, http.MethodPost, loanPath+"/repayments", &api.finance,
		sacco.NewRepayment{Amount: 92_000, Source: sacco.RepayFromSavings})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	decode(t, rec, &resp)
	assert.Equal(t, sacco.LoanRepaid, resp.Loan.Status)
	assert.False(t, resp.Loan.ClosedAt.IsZero())

	rec = api.do(t, http.MethodGet, loanPath+"/repayments", &api.finance, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var reps []sacco.Repayment
	decode(t, rec, &reps)
	assert.Len(t, reps, 2)

	// 50_000 + 100_000 disbursed - 92_000 repaid from savings
	rec = api.do(t, http.MethodGet, "/v1/sacco/members/"+m.ID+"/statement", &api.finance, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var st sacco.Statement
	decode(t, rec, &st)
	assert.Equal(t, int64(58_000), st.Balance)

	rec = api.do(t, http.MethodGet, "/v1/sacco/loans?status=repaid&member_id="+m.ID, &api.finance, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var loans []sacco.Loan
	decode(t, rec, &loans)
	assert.Len(t, loans, 1)

	rec = api.do(t, http.MethodPost, "/v1/sacco/loans/mark-overdue", &api.finance, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestSaccoDividends(t *testing.T) {
	api := setup(t)

	rec := api.do(t, http.MethodPost, "/v1/sacco/dividends", &api.finance, sacco.DividendDeclaration{Period: "2024", Pool: 1_000})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, "no shareholders")

	a := api.registerMember(t, "Halima Said", 100_000)
	b := api.registerMember(t, "Imani Njeri", 100_000)
	for id, n := range map[string]int64{a.ID: 5, b.ID: 3} {
		rec := api.do(t, http.MethodPost, "/v1/sacco/members/"+id+"/shares", &api.finance, echoapi.SharesRequest{Shares: n})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec = api.do(t, http.MethodPost, "/v1/sacco/members/"+a.ID+"/shares/transfer", &api.finance,
		echoapi.SharesRequest{Shares: 10, ToMemberID: b.ID})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, "insufficient shares")

	rec = api.do(t, http.MethodPost, "/v1/sacco/members/"+a.ID+"/shares/transfer", &api.finance,
		echoapi.SharesRequest{Shares: 1, ToMemberID: b.ID})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// a: 4 shares, b: 4 shares
	rec = api.do(t, http.MethodPost, "/v1/sacco/dividends", &api.finance, sacco.DividendDeclaration{Period: "2024", Pool: 1_001})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp echoapi.DividendResponse
	decode(t, rec, &resp)
	assert.Equal(t, int64(8), resp.Dividend.TotalShares)
	assert.Equal(t, api.finance.ID, resp.Dividend.DeclaredBy)
	if assert.Len(t, resp.Payouts, 2) {
		// the odd unit goes to the lowest member number
		assert.Equal(t, a.ID, resp.Payouts[0].MemberID)
		assert.Equal(t, int64(501), resp.Payouts[0].Amount)
		assert.Equal(t, int64(500), resp.Payouts[1].Amount)
	}

	rec = api.do(t, http.MethodPost, "/v1/sacco/dividends", &api.finance, sacco.DividendDeclaration{Period: "2024", Pool: 5})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = api.do(t, http.MethodGet, "/v1/sacco/dividends/"+resp.Dividend.ID, &api.finance, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got echoapi.DividendResponse
	decode(t, rec, &got)
	assert.Equal(t, resp.Dividend.ID, got.Dividend.ID)
	assert.Len(t, got.Payouts, 2)

	// 100_000 - 5 * 10_000 + 501
	rec = api.do(t, http.MethodGet, "/v1/sacco/members/"+a.ID+"/statement", &api.finance, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var st sacco.Statement
	decode(t, rec, &st)
	assert.Equal(t, int64(50_501), st.Balance)
}
