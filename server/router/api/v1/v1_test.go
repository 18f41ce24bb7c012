package v1

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/dispatchcore/ai/dispatch"
	"github.com/hrygo/dispatchcore/ai/events"
	"github.com/hrygo/dispatchcore/ai/memory"
	"github.com/hrygo/dispatchcore/ai/routing"
	"github.com/hrygo/dispatchcore/ai/stats"
	"github.com/hrygo/dispatchcore/internal/profile"
	memstore "github.com/hrygo/dispatchcore/store/db/memory"
)

type fakeDispatcher struct {
	turns  []dispatch.Turn
	result *dispatch.Result
}

func (f *fakeDispatcher) Dispatch(_ context.Context, turn dispatch.Turn) *dispatch.Result {
	f.turns = append(f.turns, turn)
	return f.result
}

type testAPI struct {
	e          *echo.Echo
	dispatcher *fakeDispatcher
	box        *memory.Box
	budget     *stats.BudgetManager
	bus        *events.Bus
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	db := memstore.NewDB()
	box := memory.NewBox(db, memory.DefaultConfig())
	budget := stats.NewBudgetManager(db, nil, stats.DefaultConfig(), nil)
	bus := events.NewBus()
	box.Subscribe(bus)

	dispatcher := &fakeDispatcher{result: &dispatch.Result{Success: true, TurnID: "t-1", Text: "Bonjour", Provider: "grok"}}
	e := echo.New()
	NewAPIV1Service(&profile.Profile{}, dispatcher, box, budget, bus).Register(e)
	return &testAPI{e: e, dispatcher: dispatcher, box: box, budget: budget, bus: bus}
}

func (a *testAPI) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, http.NoBody)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

func TestCreateTurn(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/api/v1/turns", `{
		"tenantId": "acme",
		"sessionId": "s1",
		"utterance": "Quel est votre prix ?",
		"language": "fr",
		"plan": "pro",
		"enabledProviders": {"grok": {"enabled": true}, "gemini": {"enabled": false}},
		"forceFail": ["anthropic"]
	}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var result dispatch.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Success)
	assert.Equal(t, "Bonjour", result.Text)

	require.Len(t, api.dispatcher.turns, 1)
	turn := api.dispatcher.turns[0]
	assert.Equal(t, "acme", turn.TenantID)
	assert.True(t, turn.EnabledProviders.IsEnabled(routing.ProviderGrok))
	assert.False(t, turn.EnabledProviders.IsEnabled(routing.ProviderGemini))
	assert.Equal(t, []string{"anthropic"}, turn.ForceFail)

	rec = api.do(t, http.MethodPost, "/api/v1/turns", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTurnStatus(t *testing.T) {
	tests := []struct {
		result *dispatch.Result
		want   int
	}{
		{&dispatch.Result{Success: true}, http.StatusOK},
		{&dispatch.Result{Reason: dispatch.ReasonInvalidInput}, http.StatusBadRequest},
		{&dispatch.Result{Reason: dispatch.ReasonBudgetExhausted}, http.StatusPaymentRequired},
		{&dispatch.Result{Reason: dispatch.ReasonNoProviders}, http.StatusUnprocessableEntity},
		{&dispatch.Result{Reason: dispatch.ReasonCancelled}, http.StatusRequestTimeout},
		{&dispatch.Result{Reason: dispatch.ReasonAllFailed}, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.result.Reason, func(t *testing.T) {
			assert.Equal(t, tt.want, turnStatus(tt.result))
		})
	}
}

func TestUsageEndpoints(t *testing.T) {
	api := newTestAPI(t)
	api.budget.RecordUsage("acme", 300000, 250000, "")

	rec := api.do(t, http.MethodGet, "/api/v1/tenants/acme/usage?plan=starter", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var tenant TenantUsageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tenant))
	assert.EqualValues(t, 550000, tenant.Usage.TotalTokens())
	assert.False(t, tenant.Budget.Allowed)
	assert.EqualValues(t, 0, tenant.Budget.Remaining)

	rec = api.do(t, http.MethodGet, "/api/v1/usage", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"acme"`)

	rec = api.do(t, http.MethodGet, "/api/v1/plans", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "starter")
}

func TestSessionEndpoints(t *testing.T) {
	api := newTestAPI(t)
	ctx := context.Background()

	rec := api.do(t, http.MethodPost, "/api/v1/sessions/s1/facts", `{"type": "budget", "value": "5000 MAD"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/v1/sessions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var sessions []memory.SessionSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sessions))
	require.Len(t, sessions, 1)
	assert.Equal(t, "s1", sessions[0].ID)
	assert.Equal(t, 1, sessions[0].KeyFactCount)

	rec = api.do(t, http.MethodGet, "/api/v1/sessions/s1/context?budget=500", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var ctxResp ContextResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ctxResp))
	assert.Contains(t, ctxResp.Rendered, "budget: 5000 MAD")

	rec = api.do(t, http.MethodGet, "/api/v1/sessions/s1/context?budget=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/v1/sessions/s1/handoff", `{"from": "VoiceAgent", "to": "BillingAgent", "reason": "hot lead"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/v1/sessions/s1/prediction?related=other", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"likelyNextAgent"`)

	rec = api.do(t, http.MethodDelete, "/api/v1/sessions/s1", "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	sessionsAfter, err := api.box.ListSessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, sessionsAfter)
}

func TestPublishEvent(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/api/v1/events", `{"type": "lead.qualified", "data": {"sessionId": "s2", "score": 80, "status": "hot"}}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	api.bus.Wait()

	mem, err := api.box.Get(context.Background(), "s2")
	require.NoError(t, err)
	assert.EqualValues(t, 80, mem.Pillars.Qualification["score"])

	rec = api.do(t, http.MethodPost, "/api/v1/events", `{"type": "crm.sync", "data": {}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
