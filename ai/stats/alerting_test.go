package stats

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/dispatchcore/ai/events"
)

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []*BudgetAlert
	err    error
}

func (n *recordingNotifier) SendBudgetAlert(_ context.Context, _ string, alert *BudgetAlert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, alert)
	return n.err
}

func TestBudgetAlertService_OncePerMonth(t *testing.T) {
	ctx := context.Background()
	notifier := &recordingNotifier{}
	svc := NewBudgetAlertService(notifier, nil)

	healthy := BudgetStatus{Allowed: true, Month: "2026-10"}
	warning := BudgetStatus{Allowed: true, Alert: true, PercentUsed: 85, Month: "2026-10", Plan: "Pro (99€)"}
	exhausted := BudgetStatus{Allowed: false, Alert: true, PercentUsed: 100, Month: "2026-10"}

	assert.Nil(t, svc.Check(ctx, "t", healthy))

	alert := svc.Check(ctx, "t", warning)
	require.NotNil(t, alert)
	assert.Equal(t, AlertBudgetWarning, alert.Type)
	assert.Contains(t, alert.String(), "85%")
	assert.Nil(t, svc.Check(ctx, "t", warning))

	alert = svc.Check(ctx, "t", exhausted)
	require.NotNil(t, alert)
	assert.Equal(t, AlertBudgetExhausted, alert.Type)
	assert.Nil(t, svc.Check(ctx, "t", exhausted))

	// Another tenant and another month alert independently.
	assert.NotNil(t, svc.Check(ctx, "other", warning))
	nextMonth := warning
	nextMonth.Month = "2026-11"
	assert.NotNil(t, svc.Check(ctx, "t", nextMonth))

	assert.Len(t, notifier.alerts, 4)
}

func TestBudgetAlertService_NotifierErrorIsSwallowed(t *testing.T) {
	svc := NewBudgetAlertService(&recordingNotifier{err: errors.New("smtp down")}, nil)
	alert := svc.Check(context.Background(), "t", BudgetStatus{Allowed: false, Month: "2026-10"})
	assert.NotNil(t, alert)
}

func TestBudgetAlertService_NilService(t *testing.T) {
	var svc *BudgetAlertService
	assert.Nil(t, svc.Check(context.Background(), "t", BudgetStatus{Allowed: false}))
}

func TestBusNotifier_Publishes(t *testing.T) {
	bus := events.NewBus()
	received := make(chan *BudgetAlert, 1)
	bus.Subscribe(events.TypeBudgetAlert, func(_ string, data any) error {
		received <- data.(*BudgetAlert)
		return nil
	})

	svc := NewBudgetAlertService(NewBusNotifier(bus), nil)
	svc.Check(context.Background(), "acme", BudgetStatus{Allowed: false, Month: "2026-10"})
	bus.Wait()

	require.Len(t, received, 1)
	alert := <-received
	assert.Equal(t, "acme", alert.TenantID)
	assert.Equal(t, AlertBudgetExhausted, alert.Type)
}
