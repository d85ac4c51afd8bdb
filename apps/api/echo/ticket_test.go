package echoapi_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/sautiplus/backoffice/apps/api/echo"
	"github.com/sautiplus/backoffice/core/ticket"
)

func TestTicketing(t *testing.T) {
	api := setup(t)
	startsAt := time.Now().UTC().Add(30 * 24 * time.Hour).Truncate(time.Second)

	rec := api.do(t, http.MethodPost, "/v1/events", &api.moderator, ticket.NewEvent{Title: "Sauti Live", Venue: "KICC", StartsAt: startsAt})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(t, http.MethodPost, "/v1/events", &api.events, ticket.NewEvent{Title: " Sauti Live ", Venue: "KICC", StartsAt: startsAt})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var event ticket.Event
	decode(t, rec, &event)
	assert.Equal(t, "Sauti Live", event.Title)
	assert.Equal(t, ticket.EventDraft, event.Status)
	eventPath := "/v1/events/" + event.ID

	rec = api.do(t, http.MethodPost, eventPath+"/publish", &api.events, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, "no tiers")

	rec = api.do(t, http.MethodPost, eventPath+"/tiers", &api.events, ticket.NewTier{Name: "Regular", Price: 1_000, Quantity: 3})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var tier ticket.Tier
	decode(t, rec, &tier)

	purchase := func(user string, qty int, key string) (ticket.Order, int) {
		rec := api.do(t, http.MethodPost, "/v1/orders", &api.events, ticket.NewOrder{TierID: tier.ID, UserID: user, Quantity: qty, IdempotencyKey: key})
		var o ticket.Order
		if rec.Code == http.StatusCreated {
			decode(t, rec, &o)
		}
		return o, rec.Code
	}

	_, code := purchase("user-1", 1, "")
	assert.Equal(t, http.StatusUnprocessableEntity, code, "draft event")

	rec = api.do(t, http.MethodPost, eventPath+"/publish", &api.events, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	order, code := purchase("user-1", 2, "checkout-1")
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, int64(2_000), order.Total)
	assert.Equal(t, ticket.OrderConfirmed, order.Status)

	replay, code := purchase("user-1", 2, "checkout-1")
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, order.ID, replay.ID)

	_, code = purchase("user-1", 1, "checkout-1")
	assert.Equal(t, http.StatusConflict, code, "idempotency key reused")

	_, code = purchase("user-2", 2, "")
	assert.Equal(t, http.StatusUnprocessableEntity, code, "sold out")

	_, code = purchase("user-2", ticket.MaxOrderQuantity+1, "")
	assert.Equal(t, http.StatusBadRequest, code)

	rec = api.do(t, http.MethodGet, eventPath+"/availability", &api.events, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var avail []ticket.Availability
	decode(t, rec, &avail)
	if assert.Len(t, avail, 1) {
		assert.Equal(t, 1, avail[0].Remaining)
		assert.True(t, avail[0].OnSale)
	}

	qty := 1
	rec = api.do(t, http.MethodPut, "/v1/tiers/"+tier.ID, &api.events, ticket.UpdateTier{Quantity: &qty})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "quantity below sold")

	rec = api.do(t, http.MethodPost, "/v1/orders/"+order.ID+"/cancel", &api.events, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = api.do(t, http.MethodPost, "/v1/orders/"+order.ID+"/cancel", &api.events, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, "already cancelled")

	other, code := purchase("user-3", 3, "")
	require.Equal(t, http.StatusCreated, code)

	rec = api.do(t, http.MethodGet, "/v1/orders?event_id="+event.ID+"&status=confirmed", &api.events, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var orders []ticket.Order
	decode(t, rec, &orders)
	if assert.Len(t, orders, 1) {
		assert.Equal(t, other.ID, orders[0].ID)
	}

	rec = api.do(t, http.MethodPost, eventPath+"/cancel", &api.events, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var cancelled echoapi.CancelEventResponse
	decode(t, rec, &cancelled)
	assert.Equal(t, ticket.EventCancelled, cancelled.Event.Status)
	if assert.Len(t, cancelled.CancelledOrders, 1) {
		assert.Equal(t, other.ID, cancelled.CancelledOrders[0].ID)
		assert.Equal(t, ticket.OrderCancelled, cancelled.CancelledOrders[0].Status)
	}

	title := "Renamed"
	rec = api.do(t, http.MethodPut, eventPath, &api.events, ticket.UpdateEvent{Title: &title})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, "cancelled event")

	rec = api.do(t, http.MethodGet, "/v1/events?status=cancelled", &api.events, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var events []ticket.Event
	decode(t, rec, &events)
	assert.Len(t, events, 1)

	rec = api.do(t, http.MethodGet, "/v1/events/missing", &api.events, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	assert.Len(t, api.Events.Events(ticket.EvtOrderConfirmed), 2)
	assert.Len(t, api.Events.Events(ticket.EvtOrderCancelled), 2)
	assert.Len(t, api.Events.Events(ticket.EvtEventCancelled), 1)
}
