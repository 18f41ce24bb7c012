// Package webhook delivers budget alerts to an operator-configured HTTP
// endpoint.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/dispatchcore/ai/events"
	"github.com/hrygo/dispatchcore/ai/stats"
)

// timeout bounds one webhook delivery.
var timeout = 10 * time.Second

// AlertPayload is the JSON body posted for a budget alert.
type AlertPayload struct {
	Alert   *stats.BudgetAlert `json:"alert"`
	Message string             `json:"message"`
	Source  string             `json:"source"`
}

// Post posts payload as JSON to url. Any non-2xx response is an error.
func Post(ctx context.Context, client *http.Client, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrapf(err, "failed to marshal webhook request to %s", url)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrapf(err, "failed to construct webhook request to %s", url)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "failed to post webhook to %s", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return errors.Errorf("failed to post webhook %s, status code: %d, response body: %s", url, resp.StatusCode, b)
	}
	return nil
}

// Notifier posts budget alerts to a fixed URL.
type Notifier struct {
	url    string
	client *http.Client
}

// NewNotifier creates a notifier. A nil client gets a client with the
// package timeout.
func NewNotifier(url string, client *http.Client) *Notifier {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &Notifier{url: url, client: client}
}

// SendBudgetAlert implements stats.AlertNotifier.
func (n *Notifier) SendBudgetAlert(ctx context.Context, _ string, alert *stats.BudgetAlert) error {
	return Post(ctx, n.client, n.url, &AlertPayload{
		Alert:   alert,
		Message: alert.String(),
		Source:  "dispatchcore",
	})
}

// Subscribe delivers every budget.alert published on bus. The bus runs
// callbacks off the publishing goroutine, so a slow endpoint never delays
// a turn.
func (n *Notifier) Subscribe(bus *events.Bus) {
	bus.Subscribe(events.TypeBudgetAlert, func(eventType string, data any) error {
		alert, ok := data.(*stats.BudgetAlert)
		if !ok {
			return errors.Errorf("webhook: unexpected payload %T for %s", data, eventType)
		}
		return n.SendBudgetAlert(context.Background(), alert.TenantID, alert)
	})
}

var _ stats.AlertNotifier = (*Notifier)(nil)
