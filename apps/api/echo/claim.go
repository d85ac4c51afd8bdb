package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/sautiplus/backoffice/core/claim"
	"github.com/sautiplus/backoffice/core/staff"
)

type claimApi struct {
	svc      *claim.Service
	staffSvc *staff.Service
}

func registerClaimAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *claim.Service, staffSvc *staff.Service) {
	api := claimApi{svc: svc, staffSvc: staffSvc}
	auth := []echo.MiddlewareFunc{jwt, rolesMiddleware(staffSvc, staff.RoleModerator)}

	ig := g.Group("/catalog/items", auth...)
	ig.POST("", api.addItem)
	ig.GET("", api.listItems)
	ig.GET("/:id", api.retrieveItem)
	ig.POST("/:id/release", api.release)

	cg := g.Group("/claims", auth...)
	cg.POST("", api.submit)
	cg.GET("", api.list)
	cg.GET("/:id", api.retrieve)
	cg.POST("/:id/approve", api.approve)
	cg.POST("/:id/reject", api.reject)
}

// Catalog

func (api *claimApi) addItem(ctx echo.Context) error {
	var data claim.NewCatalogItem
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	item, err := api.svc.AddItem(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "adding catalog item")
	}
	return ctx.JSON(http.StatusCreated, item)
}

func (api *claimApi) listItems(ctx echo.Context) error {
	filter := claim.ItemFilter{
		Kind:   ctx.QueryParam("kind"),
		Search: ctx.QueryParam("search"),
		Owned:  queryBool(ctx, "owned"),
	}
	items, err := api.svc.ListItems(ctx.Request().Context(), filter, bindPage(ctx))
	if err != nil {
		return errors.Wrap(err, "querying catalog items")
	}
	if items == nil {
		items = []claim.CatalogItem{}
	}
	return ctx.JSON(http.StatusOK, items)
}

func (api *claimApi) retrieveItem(ctx echo.Context) error {
	item, err := api.svc.GetItem(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, item)
}

func (api *claimApi) release(ctx echo.Context) error {
	item, err := api.svc.Release(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "releasing catalog item")
	}
	return ctx.JSON(http.StatusOK, item)
}

// Claims

func (api *claimApi) submit(ctx echo.Context) error {
	var data claim.NewClaim
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	c, err := api.svc.Submit(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "submitting claim")
	}
	return ctx.JSON(http.StatusCreated, c)
}

func (api *claimApi) list(ctx echo.Context) error {
	filter := claim.Filter{
		Status:      claim.Status(ctx.QueryParam("status")),
		SubjectKind: ctx.QueryParam("subject_kind"),
		SubjectID:   ctx.QueryParam("subject_id"),
		ClaimantID:  ctx.QueryParam("claimant_id"),
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	claims, err := api.svc.List(ctx.Request().Context(), filter, bindPage(ctx), ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying claims")
	}
	if claims == nil {
		claims = []claim.Claim{}
	}
	return ctx.JSON(http.StatusOK, claims)
}

func (api *claimApi) retrieve(ctx echo.Context) error {
	c, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *claimApi) approve(ctx echo.Context) error {
	var data NoteRequest
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	s, err := getContextStaff(ctx, api.staffSvc)
	if err != nil {
		return err
	}

	c, err := api.svc.Approve(ctx.Request().Context(), ctx.Param("id"), s.ID, data.Note)
	if err != nil {
		return errors.Wrap(err, "approving claim")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *claimApi) reject(ctx echo.Context) error {
	var data NoteRequest
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	s, err := getContextStaff(ctx, api.staffSvc)
	if err != nil {
		return err
	}

	c, err := api.svc.Reject(ctx.Request().Context(), ctx.Param("id"), s.ID, data.Note)
	if err != nil {
		return errors.Wrap(err, "rejecting claim")
	}
	return ctx.JSON(http.StatusOK, c)
}
