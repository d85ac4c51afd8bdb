package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/sautiplus/backoffice/core/staff"
	"github.com/sautiplus/backoffice/core/ticket"
)

type ticketApi struct {
	svc *ticket.Service
}

func registerTicketAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *ticket.Service, staffSvc *staff.Service) {
	api := ticketApi{svc: svc}
	auth := []echo.MiddlewareFunc{jwt, rolesMiddleware(staffSvc, staff.RoleEvents)}

	eg := g.Group("/events", auth...)
	eg.POST("", api.createEvent)
	eg.GET("", api.listEvents)
	eg.GET("/:id", api.retrieveEvent)
	eg.PUT("/:id", api.updateEvent)
	eg.POST("/:id/publish", api.publish)
	eg.POST("/:id/cancel", api.cancel)
	eg.POST("/:id/tiers", api.createTier)
	eg.GET("/:id/tiers", api.listTiers)
	eg.GET("/:id/availability", api.availability)

	tg := g.Group("/tiers", auth...)
	tg.PUT("/:id", api.updateTier)

	og := g.Group("/orders", auth...)
	og.POST("", api.purchase)
	og.GET("", api.listOrders)
	og.GET("/:id", api.retrieveOrder)
	og.POST("/:id/cancel", api.cancelOrder)
}

// Events

func (api *ticketApi) createEvent(ctx echo.Context) error {
	var data ticket.NewEvent
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	e, err := api.svc.CreateEvent(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating event")
	}
	return ctx.JSON(http.StatusCreated, e)
}

func (api *ticketApi) listEvents(ctx echo.Context) error {
	filter := ticket.EventFilter{
		Search: ctx.QueryParam("search"),
		Status: ticket.EventStatus(ctx.QueryParam("status")),
	}
	var err error
	if filter.From, filter.To, err = queryTimeRange(ctx); err != nil {
		return err
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	events, err := api.svc.ListEvents(ctx.Request().Context(), filter, bindPage(ctx), ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying events")
	}
	if events == nil {
		events = []ticket.Event{}
	}
	return ctx.JSON(http.StatusOK, events)
}

func (api *ticketApi) retrieveEvent(ctx echo.Context) error {
	e, err := api.svc.GetEvent(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, e)
}

func (api *ticketApi) updateEvent(ctx echo.Context) error {
	var data ticket.UpdateEvent
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	e, err := api.svc.UpdateEvent(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating event")
	}
	return ctx.JSON(http.StatusOK, e)
}

func (api *ticketApi) publish(ctx echo.Context) error {
	e, err := api.svc.Publish(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "publishing event")
	}
	return ctx.JSON(http.StatusOK, e)
}

func (api *ticketApi) cancel(ctx echo.Context) error {
	e, orders, err := api.svc.Cancel(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "cancelling event")
	}
	if orders == nil {
		orders = []ticket.Order{}
	}
	return ctx.JSON(http.StatusOK, CancelEventResponse{Event: e, CancelledOrders: orders})
}

// Tiers

func (api *ticketApi) createTier(ctx echo.Context) error {
	var data ticket.NewTier
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	t, err := api.svc.CreateTier(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "creating tier")
	}
	return ctx.JSON(http.StatusCreated, t)
}

func (api *ticketApi) listTiers(ctx echo.Context) error {
	tiers, err := api.svc.ListTiers(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	if tiers == nil {
		tiers = []ticket.Tier{}
	}
	return ctx.JSON(http.StatusOK, tiers)
}

func (api *ticketApi) updateTier(ctx echo.Context) error {
	var data ticket.UpdateTier
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	t, err := api.svc.UpdateTier(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating tier")
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *ticketApi) availability(ctx echo.Context) error {
	avail, err := api.svc.Availability(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	if avail == nil {
		avail = []ticket.Availability{}
	}
	return ctx.JSON(http.StatusOK, avail)
}

// Orders

func (api *ticketApi) purchase(ctx echo.Context) error {
	var data ticket.NewOrder
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	o, err := api.svc.Purchase(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "purchasing tickets")
	}
	return ctx.JSON(http.StatusCreated, o)
}

func (api *ticketApi) listOrders(ctx echo.Context) error {
	filter := ticket.OrderFilter{
		EventID: ctx.QueryParam("event_id"),
		TierID:  ctx.QueryParam("tier_id"),
		UserID:  ctx.QueryParam("user_id"),
		Status:  ticket.OrderStatus(ctx.QueryParam("status")),
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	orders, err := api.svc.ListOrders(ctx.Request().Context(), filter, bindPage(ctx), ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying orders")
	}
	if orders == nil {
		orders = []ticket.Order{}
	}
	return ctx.JSON(http.StatusOK, orders)
}

func (api *ticketApi) retrieveOrder(ctx echo.Context) error {
	o, err := api.svc.GetOrder(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, o)
}

func (api *ticketApi) cancelOrder(ctx echo.Context) error {
	o, err := api.svc.CancelOrder(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "cancelling order")
	}
	return ctx.JSON(http.StatusOK, o)
}

type CancelEventResponse struct {
	Event           ticket.Event   `json:"event"`
	CancelledOrders []ticket.Order `json:"cancelled_orders"`
}
