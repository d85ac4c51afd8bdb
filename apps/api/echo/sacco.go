package echoapi

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/sautiplus/backoffice/core/sacco"
	"github.com/sautiplus/backoffice/core/staff"
)

type saccoApi struct {
	svc      *sacco.Service
	staffSvc *staff.Service
}

func registerSaccoAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *sacco.Service, staffSvc *staff.Service) {
	api := saccoApi{svc: svc, staffSvc: staffSvc}

	sg := g.Group("/sacco", jwt, rolesMiddleware(staffSvc, staff.RoleFinance))

	// members
	sg.POST("/members", api.register)
	sg.GET("/members", api.listMembers)
	sg.GET("/members/:id", api.retrieveMember)
	sg.PUT("/members/:id/status", api.setStatus)
	sg.POST("/members/:id/deposits", api.deposit)
	sg.POST("/members/:id/withdrawals", api.withdraw)
	sg.GET("/members/:id/statement", api.statement)
	sg.GET("/members/:id/shares", api.shares)
	sg.GET("/members/:id/shares/history", api.shareHistory)
	sg.POST("/members/:id/shares", api.buyShares)
	sg.POST("/members/:id/shares/transfer", api.transferShares)
	sg.GET("/members/:id/loan-limit", api.loanLimit)

	// loan products
	sg.POST("/products", api.createProduct)
	sg.GET("/products", api.listProducts)
	sg.GET("/products/:id", api.retrieveProduct)
	sg.PUT("/products/:id", api.updateProduct)

	// loans
	sg.POST("/loans", api.apply)
	sg.GET("/loans", api.listLoans)
	sg.POST("/loans/mark-overdue", api.markOverdue)
	sg.GET("/loans/:id", api.retrieveLoan)
	sg.GET("/loans/:id/schedule", api.schedule)
	sg.POST("/loans/:id/approve", api.approve)
	sg.POST("/loans/:id/reject", api.reject)
	sg.POST("/loans/:id/disburse", api.disburse)
	sg.POST("/loans/:id/repayments", api.repay)
	sg.GET("/loans/:id/repayments", api.repayments)

	// dividends
	sg.POST("/dividends", api.declareDividend)
	sg.GET("/dividends", api.listDividends)
	sg.GET("/dividends/:id", api.retrieveDividend)
}

// Members

func (api *saccoApi) register(ctx echo.Context) error {
	var data sacco.NewMember
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	m, err := api.svc.Register(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "registering member")
	}
	return ctx.JSON(http.StatusCreated, m)
}

func (api *saccoApi) listMembers(ctx echo.Context) error {
	filter := sacco.MemberFilter{
		Search: ctx.QueryParam("search"),
		Status: sacco.MemberStatus(ctx.QueryParam("status")),
		UserID: ctx.QueryParam("user_id"),
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	members, err := api.svc.ListMembers(ctx.Request().Context(), filter, bindPage(ctx), ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying members")
	}
	if members == nil {
		members = []sacco.Member{}
	}
	return ctx.JSON(http.StatusOK, members)
}

func (api *saccoApi) retrieveMember(ctx echo.Context) error {
	m, err := api.svc.GetMember(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, m)
}

func (api *saccoApi) setStatus(ctx echo.Context) error {
	var data StatusRequest
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	m, err := api.svc.SetStatus(ctx.Request().Context(), ctx.Param("id"), sacco.MemberStatus(data.Status))
	if err != nil {
		return errors.Wrap(err, "setting member status")
	}
	return ctx.JSON(http.StatusOK, m)
}

func (api *saccoApi) deposit(ctx echo.Context) error {
	return api.postSavings(ctx, api.svc.Deposit)
}

func (api *saccoApi) withdraw(ctx echo.Context) error {
	return api.postSavings(ctx, api.svc.Withdraw)
}

type savingsOp func(ctx context.Context, memberID string, amount int64, reference, staffID string) (sacco.SavingsTransaction, error)

func (api *saccoApi) postSavings(ctx echo.Context, op savingsOp) error {
	var data AmountRequest
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	s, err := getContextStaff(ctx, api.staffSvc)
	if err != nil {
		return err
	}

	txn, err := op(ctx.Request().Context(), ctx.Param("id"), data.Amount, data.Reference, s.ID)
	if err != nil {
		return errors.Wrap(err, "posting savings")
	}
	return ctx.JSON(http.StatusCreated, txn)
}

func (api *saccoApi) statement(ctx echo.Context) error {
	st, err := api.svc.Statement(ctx.Request().Context(), ctx.Param("id"), bindPage(ctx))
	if err != nil {
		return err
	}
	if st.Transactions == nil {
		st.Transactions = []sacco.SavingsTransaction{}
	}
	return ctx.JSON(http.StatusOK, st)
}

// Shares

func (api *saccoApi) shares(ctx echo.Context) error {
	acc, err := api.svc.GetShares(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, acc)
}

func (api *saccoApi) shareHistory(ctx echo.Context) error {
	txns, err := api.svc.ShareHistory(ctx.Request().Context(), ctx.Param("id"), bindPage(ctx))
	if err != nil {
		return errors.Wrap(err, "querying share transactions")
	}
	if txns == nil {
		txns = []sacco.ShareTransaction{}
	}
	return ctx.JSON(http.StatusOK, txns)
}

func (api *saccoApi) buyShares(ctx echo.Context) error {
	var data SharesRequest
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	s, err := getContextStaff(ctx, api.staffSvc)
	if err != nil {
		return err
	}

	txn, err := api.svc.BuyShares(ctx.Request().Context(), ctx.Param("id"), data.Shares, s.ID)
	if err != nil {
		return errors.Wrap(err, "buying shares")
	}
	return ctx.JSON(http.StatusCreated, txn)
}

func (api *saccoApi) transferShares(ctx echo.Context) error {
	var data SharesRequest
	if err := bindBody(ctx, &data); err != nil {
		return err
	}

	txns, err := api.svc.TransferShares(ctx.Request().Context(), ctx.Param("id"), data.ToMemberID, data.Shares)
	if err != nil {
		return errors.Wrap(err, "transferring shares")
	}
	return ctx.JSON(http.StatusCreated, txns)
}

func (api *saccoApi) loanLimit(ctx echo.Context) error {
	id := ctx.Param("id")
	if _, err := api.svc.GetMember(ctx.Request().Context(), id); err != nil {
		return err
	}
	limit, err := api.svc.LoanLimit(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "computing loan limit")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"member_id": id, "limit": limit})
}

// Loan products

func (api *saccoApi) createProduct(ctx echo.Context) error {
	var data sacco.NewLoanProduct
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	p, err := api.svc.CreateProduct(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating loan product")
	}
	return ctx.JSON(http.StatusCreated, p)
}

func (api *saccoApi) listProducts(ctx echo.Context) error {
	activeOnly := false
	if b := queryBool(ctx, "active"); b != nil {
		activeOnly = *b
	}
	products, err := api.svc.ListProducts(ctx.Request().Context(), activeOnly)
	if err != nil {
		return errors.Wrap(err, "querying loan products")
	}
	if products == nil {
		products = []sacco.LoanProduct{}
	}
	return ctx.JSON(http.StatusOK, products)
}

func (api *saccoApi) retrieveProduct(ctx echo.Context) error {
	p, err := api.svc.GetProduct(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *saccoApi) updateProduct(ctx echo.Context) error {
	var data sacco.UpdateLoanProduct
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	p, err := api.svc.UpdateProduct(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating loan product")
	}
	return ctx.JSON(http.StatusOK, p)
}

// Loans

func (api *saccoApi) apply(ctx echo.Context) error {
	var data sacco.LoanApplication
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	loan, err := api.svc.Apply(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "applying for loan")
	}
	return ctx.JSON(http.StatusCreated, loan)
}

func (api *saccoApi) listLoans(ctx echo.Context) error {
	filter := sacco.LoanFilter{
		MemberID:  ctx.QueryParam("member_id"),
		ProductID: ctx.QueryParam("product_id"),
		Statuses:  queryList(ctx, "status"),
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	loans, err := api.svc.ListLoans(ctx.Request().Context(), filter, bindPage(ctx), ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying loans")
	}
	if loans == nil {
		loans = []sacco.Loan{}
	}
	return ctx.JSON(http.StatusOK, loans)
}

func (api *saccoApi) retrieveLoan(ctx echo.Context) error {
	loan, err := api.svc.GetLoan(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, loan)
}

func (api *saccoApi) schedule(ctx echo.Context) error {
	plan, err := api.svc.Schedule(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, plan)
}

func (api *saccoApi) approve(ctx echo.Context) error {
	return api.review(ctx, api.svc.Approve)
}

func (api *saccoApi) reject(ctx echo.Context) error {
	return api.review(ctx, api.svc.Reject)
}

func (api *saccoApi) review(ctx echo.Context, decide func(ctx context.Context, id, staffID, note string) (sacco.Loan, error)) error {
	var data NoteRequest
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	s, err := getContextStaff(ctx, api.staffSvc)
	if err != nil {
		return err
	}

	loan, err := decide(ctx.Request().Context(), ctx.Param("id"), s.ID, data.Note)
	if err != nil {
		return errors.Wrap(err, "reviewing loan")
	}
	return ctx.JSON(http.StatusOK, loan)
}

func (api *saccoApi) disburse(ctx echo.Context) error {
	s, err := getContextStaff(ctx, api.staffSvc)
	if err != nil {
		return err
	}
	loan, err := api.svc.Disburse(ctx.Request().Context(), ctx.Param("id"), s.ID)
	if err != nil {
		return errors.Wrap(err, "disbursing loan")
	}
	return ctx.JSON(http.StatusOK, loan)
}

func (api *saccoApi) repay(ctx echo.Context) error {
	var data sacco.NewRepayment
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	s, err := getContextStaff(ctx, api.staffSvc)
	if err != nil {
		return err
	}

	loan, rep, err := api.svc.Repay(ctx.Request().Context(), ctx.Param("id"), data, s.ID)
	if err != nil {
		return errors.Wrap(err, "repaying loan")
	}
	return ctx.JSON(http.StatusCreated, RepaymentResponse{Loan: loan, Repayment: rep})
}

func (api *saccoApi) repayments(ctx echo.Context) error {
	reps, err := api.svc.Repayments(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	if reps == nil {
		reps = []sacco.Repayment{}
	}
	return ctx.JSON(http.StatusOK, reps)
}

func (api *saccoApi) markOverdue(ctx echo.Context) error {
	loans, err := api.svc.MarkOverdue(ctx.Request().Context(), time.Now().UTC())
	if err != nil {
		return errors.Wrap(err, "marking overdue loans")
	}
	if loans == nil {
		loans = []sacco.Loan{}
	}
	return ctx.JSON(http.StatusOK, loans)
}

// Dividends

func (api *saccoApi) declareDividend(ctx echo.Context) error {
	var data sacco.DividendDeclaration
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	s, err := getContextStaff(ctx, api.staffSvc)
	if err != nil {
		return err
	}

	d, payouts, err := api.svc.DeclareDividend(ctx.Request().Context(), data, s.ID)
	if err != nil {
		return errors.Wrap(err, "declaring dividend")
	}
	return ctx.JSON(http.StatusCreated, DividendResponse{Dividend: d, Payouts: payouts})
}

func (api *saccoApi) listDividends(ctx echo.Context) error {
	divs, err := api.svc.ListDividends(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying dividends")
	}
	if divs == nil {
		divs = []sacco.Dividend{}
	}
	return ctx.JSON(http.StatusOK, divs)
}

func (api *saccoApi) retrieveDividend(ctx echo.Context) error {
	d, payouts, err := api.svc.GetDividend(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, DividendResponse{Dividend: d, Payouts: payouts})
}

type (
	StatusRequest struct {
		Status string `json:"status"`
	}

	AmountRequest struct {
		Amount    int64  `json:"amount"`
		Reference string `json:"reference"`
	}

	SharesRequest struct {
		Shares     int64  `json:"shares"`
		ToMemberID string `json:"to_member_id"` // transfers only
	}

	RepaymentResponse struct {
		Loan      sacco.Loan      `json:"loan"`
		Repayment sacco.Repayment `json:"repayment"`
	}

	DividendResponse struct {
		Dividend sacco.Dividend `json:"dividend"`
		Payouts  []sacco.Payout `json:"payouts"`
	}
)
