package echoapi

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/sautiplus/backoffice/core/credit"
	"github.com/sautiplus/backoffice/core/staff"
)

type creditApi struct {
	svc      *credit.Service
	staffSvc *staff.Service
}

func registerCreditAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *credit.Service, staffSvc *staff.Service) {
	api := creditApi{svc: svc, staffSvc: staffSvc}

	cg := g.Group("/credits", jwt, rolesMiddleware(staffSvc, staff.RoleFinance))
	cg.GET("/wallets/:user_id", api.balance)
	cg.GET("/wallets/:user_id/reconcile", api.reconcile)

	cg.GET("/transactions", api.history)
	cg.GET("/transactions/:id", api.retrieve)
	cg.POST("/transactions/:id/reverse", api.reverse)
	cg.POST("/credit", api.credit)
	cg.POST("/debit", api.debit)
	cg.POST("/awards", api.award)
	cg.POST("/spend", api.spend)
	cg.POST("/rewards", api.reward)

	cg.GET("/rules", api.listRules)
	cg.GET("/rules/:code", api.retrieveRule)
	cg.PUT("/rules/:code", api.saveRule)
}

func (api *creditApi) balance(ctx echo.Context) error {
	userID := ctx.Param("user_id")
	bal, err := api.svc.Balance(ctx.Request().Context(), userID)
	if err != nil {
		return errors.Wrap(err, "getting balance")
	}
	return ctx.JSON(http.StatusOK, BalanceResponse{UserID: userID, Balance: bal})
}

func (api *creditApi) reconcile(ctx echo.Context) error {
	rec, err := api.svc.Reconcile(ctx.Request().Context(), ctx.Param("user_id"))
	if err != nil {
		return errors.Wrap(err, "reconciling wallet")
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api *creditApi) history(ctx echo.Context) error {
	filter := credit.HistoryFilter{
		UserID:    ctx.QueryParam("user_id"),
		Direction: credit.Direction(ctx.QueryParam("direction")),
		Activity:  ctx.QueryParam("activity"),
	}
	var err error
	if filter.From, filter.To, err = queryTimeRange(ctx); err != nil {
		return err
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	txns, err := api.svc.History(ctx.Request().Context(), filter, bindPage(ctx), ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying transactions")
	}
	if txns == nil {
		txns = []credit.Transaction{}
	}
	return ctx.JSON(http.StatusOK, txns)
}

func (api *creditApi) retrieve(ctx echo.Context) error {
	txn, err := api.svc.GetTransaction(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, txn)
}

func (api *creditApi) credit(ctx echo.Context) error {
	return api.apply(ctx, api.svc.Credit)
}

func (api *creditApi) debit(ctx echo.Context) error {
	return api.apply(ctx, api.svc.Debit)
}

func (api *creditApi) apply(ctx echo.Context, fn func(context.Context, credit.Entry) (credit.Transaction, error)) error {
	var in credit.Entry
	if err := bindBody(ctx, &in); err != nil {
		return err
	}
	s, err := getContextStaff(ctx, api.staffSvc)
	if err != nil {
		return err
	}
	in.CreatedBy = s.ID

	txn, err := fn(ctx.Request().Context(), in)
	if err != nil {
		return errors.Wrap(err, "recording transaction")
	}
	return ctx.JSON(http.StatusCreated, txn)
}

func (api *creditApi) award(ctx echo.Context) error {
	var data AwardRequest
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	s, err := getContextStaff(ctx, api.staffSvc)
	if err != nil {
		return err
	}

	txn, err := api.svc.Award(ctx.Request().Context(), data.UserID, data.Amount, data.Note, s.ID, data.IdempotencyKey)
	if err != nil {
		return errors.Wrap(err, "awarding credits")
	}
	return ctx.JSON(http.StatusCreated, txn)
}

func (api *creditApi) spend(ctx echo.Context) error {
	var data SpendRequest
	if err := bindBody(ctx, &data); err != nil {
		return err
	}

	txn, err := api.svc.Spend(ctx.Request().Context(), data.UserID, data.Amount, data.Reference, data.IdempotencyKey)
	if err != nil {
		return errors.Wrap(err, "spending credits")
	}
	return ctx.JSON(http.StatusCreated, txn)
}

func (api *creditApi) reward(ctx echo.Context) error {
	var data RewardRequest
	if err := bindBody(ctx, &data); err != nil {
		return err
	}

	txn, err := api.svc.Reward(ctx.Request().Context(), data.UserID, data.Code)
	if err != nil {
		return errors.Wrap(err, "rewarding activity")
	}
	return ctx.JSON(http.StatusCreated, txn)
}

func (api *creditApi) reverse(ctx echo.Context) error {
	var data NoteRequest
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	s, err := getContextStaff(ctx, api.staffSvc)
	if err != nil {
		return err
	}

	txn, err := api.svc.Reverse(ctx.Request().Context(), ctx.Param("id"), s.ID, data.Note)
	if err != nil {
		return errors.Wrap(err, "reversing transaction")
	}
	return ctx.JSON(http.StatusCreated, txn)
}

func (api *creditApi) listRules(ctx echo.Context) error {
	rules, err := api.svc.ListRules(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying activity rules")
	}
	if rules == nil {
		rules = []credit.ActivityRule{}
	}
	return ctx.JSON(http.StatusOK, rules)
}

func (api *creditApi) retrieveRule(ctx echo.Context) error {
	rule, err := api.svc.GetRule(ctx.Request().Context(), ctx.Param("code"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, rule)
}

func (api *creditApi) saveRule(ctx echo.Context) error {
	var rule credit.ActivityRule
	if err := bindBody(ctx, &rule); err != nil {
		return err
	}
	rule.Code = ctx.Param("code")

	rule, err := api.svc.SaveRule(ctx.Request().Context(), rule)
	if err != nil {
		return errors.Wrap(err, "saving activity rule")
	}
	return ctx.JSON(http.StatusOK, rule)
}

type (
	BalanceResponse struct {
		UserID  string `json:"user_id"`
		Balance int64  `json:"balance"`
	}

	AwardRequest struct {
		UserID         string `json:"user_id"`
		Amount         int64  `json:"amount"`
		Note           string `json:"note"`
		IdempotencyKey string `json:"idempotency_key"`
	}

	SpendRequest struct {
		UserID         string `json:"user_id"`
		Amount         int64  `json:"amount"`
		Reference      string `json:"reference"`
		IdempotencyKey string `json:"idempotency_key"`
	}

	RewardRequest struct {
		UserID string `json:"user_id"`
		Code   string `json:"code"`
	}

	// NoteRequest is the body of review actions (approve, reject, reverse...).
	NoteRequest struct {
		Note string `json:"note"`
	}
)
