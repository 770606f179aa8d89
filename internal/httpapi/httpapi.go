// Package httpapi is the reference HTTP surface for the gateway (spec.md
// §1/§6), generalizing the teacher's app.go echo wiring (routes for
// device state and a command POST) from its MQTT device manager to the
// Roster.
package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/jangala-dev/firmata-gateway/internal/roster"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// actionRequest is the POST /devices/:id/actions request body.
type actionRequest struct {
	Name   string   `json:"name"`
	Params []string `json:"params"`
}

// New builds the echo.Echo serving the gateway's HTTP surface, bound to
// r for every route.
func New(r *roster.Roster) *echo.Echo {
	e := echo.New()
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	e.GET("/devices", func(c echo.Context) error {
		return c.JSON(http.StatusOK, r.FindAll())
	})

	e.GET("/devices/:id", func(c echo.Context) error {
		snap, ok := r.Get(c.Param("id"))
		if !ok {
			return c.NoContent(http.StatusNotFound)
		}
		return c.JSON(http.StatusOK, snap)
	})

	e.POST("/devices/:id/actions", func(c echo.Context) error {
		req := new(actionRequest)
		if err := c.Bind(req); err != nil {
			return c.String(http.StatusBadRequest, err.Error())
		}
		if err := r.ExecuteAction(c.Param("id"), req.Name, req.Params); err != nil {
			return c.String(http.StatusBadRequest, err.Error())
		}
		return c.NoContent(http.StatusOK)
	})

	return e
}

// Serve runs e until it is shut down, logging a non-graceful-shutdown
// error through log (mirrors app.go's RunApplication error handling).
func Serve(e *echo.Echo, addr string, log *slog.Logger) {
	if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("http server failed", "error", err)
	}
}
