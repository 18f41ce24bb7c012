// Package v1 exposes the dispatch core over a small JSON HTTP API.
package v1

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/hrygo/dispatchcore/ai/dispatch"
	"github.com/hrygo/dispatchcore/ai/events"
	"github.com/hrygo/dispatchcore/ai/memory"
	"github.com/hrygo/dispatchcore/ai/stats"
	"github.com/hrygo/dispatchcore/internal/profile"
)

// Dispatcher processes inbound turns. *dispatch.Controller implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, turn dispatch.Turn) *dispatch.Result
}

// APIV1Service holds the collaborators behind the v1 routes.
type APIV1Service struct {
	Profile    *profile.Profile
	Dispatcher Dispatcher
	Memory     *memory.Box
	Budget     *stats.BudgetManager
	Bus        events.Publisher // Optional; event ingestion is disabled without it
}

// NewAPIV1Service creates the v1 API service.
func NewAPIV1Service(p *profile.Profile, dispatcher Dispatcher, box *memory.Box, budget *stats.BudgetManager, bus events.Publisher) *APIV1Service {
	return &APIV1Service{
		Profile:    p,
		Dispatcher: dispatcher,
		Memory:     box,
		Budget:     budget,
		Bus:        bus,
	}
}

// Register mounts the v1 routes on e.
func (s *APIV1Service) Register(e *echo.Echo) {
	g := e.Group("/api/v1", middleware.CORS())

	g.POST("/turns", s.CreateTurn)

	g.GET("/plans", s.ListPlans)
	g.GET("/usage", s.ListUsage)
	g.GET("/tenants/:tenant/usage", s.GetTenantUsage)

	g.GET("/sessions", s.ListSessions)
	g.GET("/sessions/:id", s.GetSession)
	g.DELETE("/sessions/:id", s.DeleteSession)
	g.GET("/sessions/:id/context", s.GetSessionContext)
	g.GET("/sessions/:id/prediction", s.GetSessionPrediction)
	g.POST("/sessions/:id/facts", s.CreateKeyFact)
	g.POST("/sessions/:id/handoff", s.CreateHandoff)

	g.POST("/events", s.PublishEvent)
}

// errorResponse is the body of every non-2xx reply that is not a turn result.
type errorResponse struct {
	Error string `json:"error"`
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, errorResponse{Error: msg})
}
