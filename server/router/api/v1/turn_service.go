package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/dispatchcore/ai/dispatch"
	"github.com/hrygo/dispatchcore/ai/observability/logging"
)

// CreateTurn dispatches one turn. The body is always a dispatch.Result; the
// status distinguishes invalid input, budget exhaustion and provider failure.
func (s *APIV1Service) CreateTurn(c echo.Context) error {
	var turn dispatch.Turn
	if err := c.Bind(&turn); err != nil {
		return badRequest(c, "malformed turn body")
	}

	ctx := c.Request().Context()
	result := s.Dispatcher.Dispatch(ctx, turn)
	status := turnStatus(result)
	if !result.Success {
		logging.FromContext(ctx).Info("API: turn not answered",
			"tenant", turn.TenantID,
			"reason", result.Reason,
			"status", status)
	}
	return c.JSON(status, result)
}

func turnStatus(result *dispatch.Result) int {
	if result.Success {
		return http.StatusOK
	}
	switch result.Reason {
	case dispatch.ReasonInvalidInput:
		return http.StatusBadRequest
	case dispatch.ReasonBudgetExhausted:
		return http.StatusPaymentRequired
	case dispatch.ReasonNoProviders:
		return http.StatusUnprocessableEntity
	case dispatch.ReasonCancelled:
		return http.StatusRequestTimeout
	default:
		return http.StatusBadGateway
	}
}
