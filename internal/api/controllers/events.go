package controllers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v5"

	"github.com/datallboy/modfetch/internal/app"
	"github.com/datallboy/modfetch/internal/event"
)

// eventBuffer bounds how far a slow client may fall behind before
// events are dropped for it.
const eventBuffer = 64

type EventsController struct {
	App *app.Context
}

// Stream relays bus events to the client as server-sent events until it
// disconnects.
func (ctrl *EventsController) Stream(c *echo.Context) error {
	events := make(chan event.Event, eventBuffer)
	unsubscribe := event.SubscribeAll(ctrl.App.Bus, func(e event.Event) {
		select {
		case events <- e:
		default:
		}
	})
	defer unsubscribe()

	w := c.Response()
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	if err := rc.Flush(); err != nil {
		return err
	}

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-events:
			data, err := json.Marshal(e)
			if err != nil {
				ctrl.App.Logger.Error("Failed to encode %s event: %v", e.Type, err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Type, data); err != nil {
				return nil
			}
			if err := rc.Flush(); err != nil {
				return nil
			}
		}
	}
}
