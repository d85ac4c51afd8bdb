package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/sautiplus/backoffice/core/award"
	"github.com/sautiplus/backoffice/core/staff"
)

type awardApi struct {
	svc *award.Service
}

func registerAwardAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *award.Service, staffSvc *staff.Service) {
	api := awardApi{svc: svc}
	auth := []echo.MiddlewareFunc{jwt, rolesMiddleware(staffSvc, staff.RoleEvents)}

	ag := g.Group("/awards", auth...)
	ag.POST("", api.createAward)
	ag.GET("", api.listAwards)
	ag.GET("/:id", api.retrieveAward)
	ag.POST("/:id/categories", api.createCategory)
	ag.GET("/:id/categories", api.listCategories)

	cg := g.Group("/categories", auth...)
	cg.POST("/:id/nominees", api.addNominee)
	cg.GET("/:id/nominees", api.listNominees)
	cg.POST("/:id/votes", api.castVote)
	cg.GET("/:id/results", api.results)
	cg.POST("/:id/tally", api.rebuildTally)
}

func (api *awardApi) createAward(ctx echo.Context) error {
	var data award.NewAward
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	a, err := api.svc.CreateAward(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating award")
	}
	return ctx.JSON(http.StatusCreated, a)
}

func (api *awardApi) listAwards(ctx echo.Context) error {
	awards, err := api.svc.ListAwards(ctx.Request().Context(), bindPage(ctx))
	if err != nil {
		return errors.Wrap(err, "querying awards")
	}
	if awards == nil {
		awards = []award.Award{}
	}
	return ctx.JSON(http.StatusOK, awards)
}

func (api *awardApi) retrieveAward(ctx echo.Context) error {
	a, err := api.svc.GetAward(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *awardApi) createCategory(ctx echo.Context) error {
	var data award.NewCategory
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	c, err := api.svc.CreateCategory(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "creating category")
	}
	return ctx.JSON(http.StatusCreated, c)
}

func (api *awardApi) listCategories(ctx echo.Context) error {
	cats, err := api.svc.ListCategories(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	if cats == nil {
		cats = []award.Category{}
	}
	return ctx.JSON(http.StatusOK, cats)
}

func (api *awardApi) addNominee(ctx echo.Context) error {
	var data award.NewNominee
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	n, err := api.svc.AddNominee(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "adding nominee")
	}
	return ctx.JSON(http.StatusCreated, n)
}

func (api *awardApi) listNominees(ctx echo.Context) error {
	nominees, err := api.svc.ListNominees(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	if nominees == nil {
		nominees = []award.Nominee{}
	}
	return ctx.JSON(http.StatusOK, nominees)
}

func (api *awardApi) castVote(ctx echo.Context) error {
	var data award.NewVote
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	v, err := api.svc.CastVote(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "casting vote")
	}
	return ctx.JSON(http.StatusCreated, v)
}

func (api *awardApi) results(ctx echo.Context) error {
	res, err := api.svc.Results(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *awardApi) rebuildTally(ctx echo.Context) error {
	if err := api.svc.RebuildTally(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "rebuilding tally")
	}
	return ctx.NoContent(http.StatusNoContent)
}
