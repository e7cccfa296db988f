package api

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/datallboy/modfetch/internal/api/controllers"
	"github.com/datallboy/modfetch/internal/app"
)

func RegisterRoutes(e *echo.Echo, app *app.Context) {

	// Middleware: Request Logger
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c *echo.Context, v middleware.RequestLoggerValues) error {
			app.Logger.Debug("%s %s | %d | %s", v.Method, v.URI, v.Status, v.Latency)
			return nil
		},
	}))

	queueCtrl := &controllers.QueueController{App: app}
	quotaCtrl := &controllers.QuotaController{App: app}
	eventsCtrl := &controllers.EventsController{App: app}

	e.GET("/api/queue", queueCtrl.List)
	e.POST("/api/queue", queueCtrl.Enqueue)
	e.DELETE("/api/queue", queueCtrl.Clear)
	e.GET("/api/queue/:id", queueCtrl.Get)
	e.DELETE("/api/queue/:id", queueCtrl.Remove)
	e.POST("/api/queue/:id/pause", queueCtrl.Pause)
	e.POST("/api/queue/:id/resume", queueCtrl.Resume)

	e.GET("/api/quota", quotaCtrl.Get)

	// Server-sent stream of progress and status events
	e.GET("/api/events", eventsCtrl.Stream)
}

// NewServer returns an echo instance with every route registered.
func NewServer(app *app.Context) *echo.Echo {
	e := echo.New()
	RegisterRoutes(e, app)
	return e
}

// NewHTTPServer hosts the API on addr. Request contexts derive from a
// server-wide context that Shutdown cancels, so long-lived event streams
// end instead of holding Shutdown until its deadline.
func NewHTTPServer(addr string, app *app.Context) *http.Server {
	base, cancel := context.WithCancel(context.Background())

	srv := &http.Server{
		Addr:              addr,
		Handler:           NewServer(app),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return base },
	}
	srv.RegisterOnShutdown(cancel)
	return srv
}
