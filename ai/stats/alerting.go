package stats

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hrygo/dispatchcore/ai/events"
)

// Alert types.
const (
	AlertBudgetWarning   = "budget_warning"
	AlertBudgetExhausted = "budget_exhausted"
)

// AlertNotifier delivers budget alerts to the tenant's operators.
type AlertNotifier interface {
	SendBudgetAlert(ctx context.Context, tenantID string, alert *BudgetAlert) error
}

// BudgetAlert describes a budget threshold crossing.
type BudgetAlert struct {
	Type        string    `json:"type"`
	TenantID    string    `json:"tenantId"`
	Month       string    `json:"month"`
	Plan        string    `json:"plan"`
	TotalUsed   int64     `json:"totalUsed"`
	Remaining   int64     `json:"remaining"`
	PercentUsed int64     `json:"percentUsed"`
	Timestamp   time.Time `json:"timestamp"`
}

// String returns a string representation of the alert.
func (a *BudgetAlert) String() string {
	switch a.Type {
	case AlertBudgetWarning:
		return fmt.Sprintf("Tenant %s used %d%% of the %s monthly budget (%d tokens remaining)", a.TenantID, a.PercentUsed, a.Plan, a.Remaining)
	case AlertBudgetExhausted:
		return fmt.Sprintf("Tenant %s exhausted the %s monthly budget (%d tokens used)", a.TenantID, a.Plan, a.TotalUsed)
	default:
		return fmt.Sprintf("Unknown alert type: %s", a.Type)
	}
}

// BudgetAlertService raises each alert type at most once per tenant and month.
// Notification errors are logged and never fail the caller.
type BudgetAlertService struct {
	notifier AlertNotifier
	logger   *slog.Logger
	now      func() time.Time

	mu   sync.Mutex
	sent map[string]string // tenant|type -> month
}

// NewBudgetAlertService creates a new budget alert service. notifier may be
// nil, in which case alerts are only logged.
func NewBudgetAlertService(notifier AlertNotifier, logger *slog.Logger) *BudgetAlertService {
	if logger == nil {
		logger = slog.Default()
	}
	return &BudgetAlertService{
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
		sent:     make(map[string]string),
	}
}

// Check inspects status and notifies on the first warning and the first
// exhaustion of the month. It returns the alert raised, if any.
func (s *BudgetAlertService) Check(ctx context.Context, tenantID string, status BudgetStatus) *BudgetAlert {
	if s == nil {
		return nil
	}

	var alertType string
	switch {
	case !status.Allowed:
		alertType = AlertBudgetExhausted
	case status.Alert:
		alertType = AlertBudgetWarning
	default:
		return nil
	}

	if !s.markSent(tenantID, alertType, status.Month) {
		return nil
	}

	alert := &BudgetAlert{
		Type:        alertType,
		TenantID:    tenantID,
		Month:       status.Month,
		Plan:        status.Plan,
		TotalUsed:   status.TotalUsed,
		Remaining:   status.Remaining,
		PercentUsed: status.PercentUsed,
		Timestamp:   s.now(),
	}

	s.logger.Info("BudgetAlert: threshold crossed",
		"tenant_id", tenantID,
		"type", alertType,
		"percent_used", status.PercentUsed,
		"plan", status.Plan)

	if s.notifier != nil {
		if err := s.notifier.SendBudgetAlert(ctx, tenantID, alert); err != nil {
			s.logger.Error("BudgetAlert: failed to send alert",
				"tenant_id", tenantID,
				"type", alertType,
				"error", err)
		}
	}
	return alert
}

func (s *BudgetAlertService) markSent(tenantID, alertType, month string) bool {
	key := tenantID + "|" + alertType
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sent[key] == month {
		return false
	}
	s.sent[key] = month
	return true
}

// BusNotifier publishes budget alerts on the event bus.
type BusNotifier struct {
	publisher events.Publisher
}

// NewBusNotifier creates a notifier publishing events.TypeBudgetAlert.
func NewBusNotifier(publisher events.Publisher) *BusNotifier {
	return &BusNotifier{publisher: publisher}
}

// SendBudgetAlert implements AlertNotifier.
func (n *BusNotifier) SendBudgetAlert(_ context.Context, _ string, alert *BudgetAlert) error {
	if n.publisher != nil {
		n.publisher.Publish(events.TypeBudgetAlert, alert)
	}
	return nil
}

var _ AlertNotifier = (*BusNotifier)(nil)
