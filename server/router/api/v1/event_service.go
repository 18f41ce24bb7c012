package v1

import (
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/dispatchcore/ai/events"
)

// EventRequest is a platform event forwarded onto the bus.
type EventRequest struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// PublishEvent decodes a platform event and publishes it fire-and-forget.
func (s *APIV1Service) PublishEvent(c echo.Context) error {
	if s.Bus == nil {
		return c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "event bus disabled"})
	}

	var req EventRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "malformed event body")
	}
	payload, err := events.DecodePayload(req.Type, req.Data)
	if err != nil {
		return badRequest(c, err.Error())
	}

	s.Bus.Publish(req.Type, payload)
	return c.NoContent(http.StatusAccepted)
}
