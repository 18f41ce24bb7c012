package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/dispatchcore/ai/stats"
	"github.com/hrygo/dispatchcore/store"
)

// TenantUsageResponse is the usage and budget view of one tenant.
type TenantUsageResponse struct {
	Usage  store.TokenUsage   `json:"usage"`
	Budget stats.BudgetStatus `json:"budget"`
}

// ListPlans returns the plan table.
func (*APIV1Service) ListPlans(c echo.Context) error {
	return c.JSON(http.StatusOK, stats.Plans())
}

// ListUsage returns current-month usage for every tenant.
func (s *APIV1Service) ListUsage(c echo.Context) error {
	return c.JSON(http.StatusOK, s.Budget.GetAllUsage())
}

// GetTenantUsage returns one tenant's usage checked against ?plan=.
func (s *APIV1Service) GetTenantUsage(c echo.Context) error {
	tenant := c.Param("tenant")
	if tenant == "" {
		return badRequest(c, "tenant is required")
	}
	return c.JSON(http.StatusOK, TenantUsageResponse{
		Usage:  s.Budget.GetUsage(tenant),
		Budget: s.Budget.CheckBudget(tenant, c.QueryParam("plan")),
	})
}
