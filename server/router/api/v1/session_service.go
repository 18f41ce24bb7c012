package v1

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/dispatchcore/ai/memory"
)

// ContextResponse is the token-budgeted context slice of a session.
type ContextResponse struct {
	Context  *memory.LLMContext `json:"context"`
	Rendered string             `json:"rendered"`
}

// KeyFactRequest appends one key fact.
type KeyFactRequest struct {
	Type   string `json:"type"`
	Value  any    `json:"value"`
	Source string `json:"source"`
}

// HandoffRequest records a handoff between agents.
type HandoffRequest struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Reason string `json:"reason"`
}

// ListSessions returns a summary of every persisted memory.
func (s *APIV1Service) ListSessions(c echo.Context) error {
	sessions, err := s.Memory.ListSessions(c.Request().Context())
	if err != nil {
		return s.internalError(c, "list sessions", err)
	}
	return c.JSON(http.StatusOK, sessions)
}

// GetSession returns the memory of one session, or its default skeleton.
func (s *APIV1Service) GetSession(c echo.Context) error {
	mem, err := s.Memory.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.memoryError(c, "get session", err)
	}
	return c.JSON(http.StatusOK, mem)
}

// DeleteSession purges one session.
func (s *APIV1Service) DeleteSession(c echo.Context) error {
	if err := s.Memory.Purge(c.Request().Context(), c.Param("id")); err != nil {
		return s.memoryError(c, "purge session", err)
	}
	return c.NoContent(http.StatusNoContent)
}

// GetSessionContext returns the LLM context for ?budget= tokens.
func (s *APIV1Service) GetSessionContext(c echo.Context) error {
	budget := s.Memory.Config().MaxTokenEstimate
	if raw := c.QueryParam("budget"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return badRequest(c, "budget must be a positive integer")
		}
		budget = parsed
	}

	llmContext, err := s.Memory.GetContextForLLM(c.Request().Context(), c.Param("id"), budget)
	if err != nil {
		return s.memoryError(c, "get context", err)
	}
	return c.JSON(http.StatusOK, ContextResponse{Context: llmContext, Rendered: llmContext.Render()})
}

// GetSessionPrediction returns the memory, related memories from
// ?related=a,b and the next-agent prediction.
func (s *APIV1Service) GetSessionPrediction(c echo.Context) error {
	var related []string
	if raw := c.QueryParam("related"); raw != "" {
		related = strings.Split(raw, ",")
	}
	predicted, err := s.Memory.GetWithPrediction(c.Request().Context(), c.Param("id"), related)
	if err != nil {
		return s.memoryError(c, "predict", err)
	}
	return c.JSON(http.StatusOK, predicted)
}

// CreateKeyFact appends a key fact to a session.
func (s *APIV1Service) CreateKeyFact(c echo.Context) error {
	var req KeyFactRequest
	if err := c.Bind(&req); err != nil || req.Type == "" {
		return badRequest(c, "type is required")
	}
	mem, err := s.Memory.ExtractKeyFact(c.Request().Context(), c.Param("id"), req.Type, req.Value, req.Source)
	if err != nil {
		return s.memoryError(c, "extract key fact", err)
	}
	return c.JSON(http.StatusCreated, mem)
}

// CreateHandoff records a handoff and returns the updated memory.
func (s *APIV1Service) CreateHandoff(c echo.Context) error {
	var req HandoffRequest
	if err := c.Bind(&req); err != nil || req.From == "" || req.To == "" {
		return badRequest(c, "from and to are required")
	}
	mem, err := s.Memory.Handoff(c.Request().Context(), c.Param("id"), req.From, req.To, req.Reason)
	if err != nil {
		return s.memoryError(c, "handoff", err)
	}
	return c.JSON(http.StatusCreated, mem)
}

func (s *APIV1Service) memoryError(c echo.Context, op string, err error) error {
	if errors.Is(err, memory.ErrEmptyID) {
		return badRequest(c, err.Error())
	}
	return s.internalError(c, op, err)
}

func (*APIV1Service) internalError(c echo.Context, op string, err error) error {
	slog.Error("API: request failed", "op", op, "path", c.Path(), "error", err)
	return c.JSON(http.StatusInternalServerError, errorResponse{Error: op + " failed"})
}
