// Package dispatch walks the provider order for one turn: budget gate,
// provider call with retry, quality gate, usage accounting and memory
// persistence. Providers are tried strictly one after another.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/hrygo/dispatchcore/ai/core/llm"
	"github.com/hrygo/dispatchcore/ai/memory"
	"github.com/hrygo/dispatchcore/ai/metrics"
	"github.com/hrygo/dispatchcore/ai/quality"
	"github.com/hrygo/dispatchcore/ai/routing"
	"github.com/hrygo/dispatchcore/ai/stats"
)

// AgentDispatch is the agent name recorded on persisted turns.
const AgentDispatch = "DispatchController"

// EventTurn is the history event type of a persisted turn.
const EventTurn = "turn"

// Clients resolves provider ids to clients. *llm.Registry implements it.
type Clients interface {
	Get(id string) (llm.Client, bool)
}

// Config configures the controller.
type Config struct {
	ProviderTimeout    time.Duration      // Per-call timeout (default: 30s)
	Retry              RetryPolicy        // Transient failure policy
	ContextTokenBudget int                // Memory context budget (default: 4000)
	MaxOutputTokens    int                // Completion cap (0 = client default)
	RateLimits         map[string]float64 // Client-side requests per second by provider
}

// DefaultConfig returns the default controller configuration.
func DefaultConfig() Config {
	return Config{
		ProviderTimeout:    30 * time.Second,
		Retry:              DefaultRetryPolicy(),
		ContextTokenBudget: 4000,
	}
}

// Deps are the explicitly constructed collaborators of a Controller.
type Deps struct {
	Router  routing.TaskRouter
	Clients Clients
	Memory  *memory.Box
	Budget  *stats.BudgetManager
	Gate    *quality.Gate

	Alerts  *stats.BudgetAlertService   // Optional
	Metrics *metrics.PrometheusExporter // Optional
	Logger  *slog.Logger                // Optional
	Now     func() time.Time            // Optional
}

// Controller dispatches turns. It is safe for concurrent use; turns for
// different tenants never wait on each other.
type Controller struct {
	deps     Deps
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
	limiters map[string]*rate.Limiter
}

// NewController creates a controller.
func NewController(deps Deps, cfg Config) (*Controller, error) {
	switch {
	case deps.Router == nil:
		return nil, errors.New("dispatch: router is required")
	case deps.Clients == nil:
		return nil, errors.New("dispatch: clients are required")
	case deps.Memory == nil:
		return nil, errors.New("dispatch: memory box is required")
	case deps.Budget == nil:
		return nil, errors.New("dispatch: budget manager is required")
	}
	if deps.Gate == nil {
		deps.Gate = quality.NewGate(quality.DefaultConfig())
	}

	d := DefaultConfig()
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = d.ProviderTimeout
	}
	if cfg.ContextTokenBudget <= 0 {
		cfg.ContextTokenBudget = d.ContextTokenBudget
	}
	cfg.Retry = cfg.Retry.withDefaults()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	limiters := make(map[string]*rate.Limiter, len(cfg.RateLimits))
	for provider, rps := range cfg.RateLimits {
		if rps > 0 {
			limiters[provider] = rate.NewLimiter(rate.Limit(rps), max(1, int(rps)))
		}
	}

	return &Controller{
		deps:     deps,
		cfg:      cfg,
		logger:   logger,
		now:      now,
		limiters: limiters,
	}, nil
}

// Dispatch processes one turn and always returns a structured result.
func (c *Controller) Dispatch(ctx context.Context, turn Turn) *Result {
	start := time.Now()
	done := c.deps.Metrics.TurnStarted()
	defer done()

	result := &Result{TurnID: uuid.NewString()}
	logger := c.logger.With("turn_id", result.TurnID, "tenant_id", turn.TenantID)

	if err := turn.Validate(); err != nil {
		result.Reason = ReasonInvalidInput
		result.Error = err.Error()
		result.Duration = time.Since(start)
		logger.Warn("Dispatch: rejected turn", "error", err)
		return result
	}

	task := c.deps.Router.Classify(turn.Utterance, turn.Language)
	order := c.deps.Router.Order(task, turn.EnabledProviders)
	result.TaskType = task

	knowledge := c.memoryContext(ctx, turn.SessionID, logger)
	request := &llm.Request{
		System:    knowledge,
		Prompt:    turn.Utterance,
		MaxTokens: c.cfg.MaxOutputTokens,
	}

	for _, id := range order {
		if ctx.Err() != nil {
			result.Attempts = append(result.Attempts, Attempt{Provider: string(id), Reason: ReasonCancelled, Error: ctx.Err().Error()})
			break
		}

		attempt, resp, assessment := c.tryProvider(ctx, &turn, string(id), request, knowledge, logger)
		if resp == nil {
			result.Attempts = append(result.Attempts, attempt)
			continue
		}

		c.account(ctx, &turn, string(id), resp, logger)
		c.persistTurn(ctx, &turn, task, string(id), resp, assessment, result.TurnID, logger)

		result.Success = true
		result.Text = resp.Text
		result.Provider = string(id)
		result.InputTokens = resp.InputTokens
		result.OutputTokens = resp.OutputTokens
		result.QualityScore = assessment.Score
		result.Duration = time.Since(start)
		c.deps.Metrics.RecordTurn(string(task), result.Duration, true)
		logger.Info("Dispatch: turn answered",
			"task_type", task,
			"provider", id,
			"quality_score", assessment.Score,
			"input_tokens", resp.InputTokens,
			"output_tokens", resp.OutputTokens,
			"duration_ms", result.Duration.Milliseconds())
		return result
	}

	result.Reason = failureReason(result.Attempts)
	if n := len(result.Attempts); n > 0 && result.Attempts[n-1].Reason == ReasonCancelled {
		result.Reason = ReasonCancelled
	}
	result.Error = "no provider produced an acceptable answer"
	if result.Reason == ReasonBudgetExhausted {
		result.Error = "monthly token budget exhausted"
	}
	result.Duration = time.Since(start)
	c.deps.Metrics.RecordTurn(string(task), result.Duration, false)
	logger.Warn("Dispatch: turn failed",
		"task_type", task,
		"reason", result.Reason,
		"attempts", len(result.Attempts))
	return result
}

// tryProvider runs the budget gate, the call with retries and the quality
// gate for one provider. A nil response means the provider was skipped or
// failed; the attempt explains why.
func (c *Controller) tryProvider(ctx context.Context, turn *Turn, id string, request *llm.Request, knowledge string, logger *slog.Logger) (Attempt, *llm.Response, quality.Assessment) {
	attempt := Attempt{Provider: id}

	status := c.deps.Budget.CheckBudget(turn.TenantID, turn.Plan)
	if !status.Allowed {
		attempt.Reason = ReasonBudgetExhausted
		c.deps.Metrics.RecordProviderAttempt(id, metrics.OutcomeBudgetSkipped, 0)
		return attempt, nil, quality.Assessment{}
	}

	if turn.forced(id) {
		attempt.Reason = ReasonForced
		c.deps.Metrics.RecordProviderAttempt(id, metrics.OutcomeForced, 0)
		logger.Debug("Dispatch: forced provider failure", "provider", id)
		return attempt, nil, quality.Assessment{}
	}

	client, ok := c.deps.Clients.Get(id)
	if !ok {
		attempt.Reason = ReasonNotConfigured
		attempt.Error = llm.ErrNotConfigured.Error()
		c.deps.Metrics.RecordProviderAttempt(id, metrics.OutcomeNotConfigured, 0)
		return attempt, nil, quality.Assessment{}
	}

	resp, calls, err := c.call(ctx, client, request, logger)
	attempt.Calls = calls
	if err != nil {
		attempt.Error = err.Error()
		if llm.ShouldRetry(err) {
			attempt.Reason = ReasonTransientExhausted
		} else {
			attempt.Reason = ReasonPermanent
		}
		logger.Warn("Dispatch: provider failed",
			"provider", id,
			"reason", attempt.Reason,
			"calls", calls,
			"error", err)
		return attempt, nil, quality.Assessment{}
	}

	assessment := c.deps.Gate.Assess(resp.Text, turn.Utterance, knowledge, turn.Language)
	failed := assessment.Failed()
	failedNames := make([]string, 0, len(failed))
	for _, check := range failed {
		failedNames = append(failedNames, check.Name)
	}
	c.deps.Metrics.RecordQuality(id, assessment.Score, failedNames)

	score := assessment.Score
	attempt.Score = &score
	if !assessment.Passed {
		attempt.Reason = ReasonQualityRejected
		c.deps.Metrics.RecordProviderAttempt(id, metrics.OutcomeQualityRejected, resp.Duration)
		logger.Info("Dispatch: answer rejected by quality gate",
			"provider", id,
			"score", assessment.Score,
			"failed_checks", failedNames)
		return attempt, nil, assessment
	}

	c.deps.Metrics.RecordProviderAttempt(id, metrics.OutcomeSuccess, resp.Duration)
	return attempt, resp, assessment
}

// call invokes client, retrying transient failures with backoff. It
// returns the number of calls made.
func (c *Controller) call(ctx context.Context, client llm.Client, request *llm.Request, logger *slog.Logger) (*llm.Response, int, error) {
	policy := c.cfg.Retry
	var lastErr error

	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := policy.Backoff(attempt)
			logger.Debug("Dispatch: retrying provider",
				"provider", client.ID(),
				"attempt", attempt+1,
				"delay_ms", delay.Milliseconds())
			if err := sleep(ctx, delay); err != nil {
				return nil, attempt, err
			}
		}

		if limiter := c.limiters[client.ID()]; limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return nil, attempt, err
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, c.cfg.ProviderTimeout)
		started := time.Now()
		resp, err := client.Call(callCtx, request)
		cancel()
		if err == nil {
			if resp.Duration == 0 {
				resp.Duration = time.Since(started)
			}
			return resp, attempt + 1, nil
		}

		lastErr = err
		if !llm.ShouldRetry(err) || ctx.Err() != nil {
			c.deps.Metrics.RecordProviderAttempt(client.ID(), metrics.OutcomePermanent, time.Since(started))
			return nil, attempt + 1, err
		}
		c.deps.Metrics.RecordProviderAttempt(client.ID(), metrics.OutcomeTransient, time.Since(started))
	}
	return nil, policy.MaxAttempts, lastErr
}

// memoryContext renders the token-budgeted memory slice used both as the
// system prompt and as the hallucination baseline. Failures degrade to an
// empty context.
func (c *Controller) memoryContext(ctx context.Context, sessionID string, logger *slog.Logger) string {
	llmContext, err := c.deps.Memory.GetContextForLLM(ctx, sessionID, c.cfg.ContextTokenBudget)
	if err != nil {
		logger.Warn("Dispatch: memory context unavailable", "session_id", sessionID, "error", err)
		return ""
	}
	return llmContext.Render()
}

func (c *Controller) account(ctx context.Context, turn *Turn, provider string, resp *llm.Response, logger *slog.Logger) {
	usage := c.deps.Budget.RecordUsage(turn.TenantID, resp.InputTokens, resp.OutputTokens, provider)
	c.deps.Metrics.RecordTokens(provider, resp.InputTokens, resp.OutputTokens)

	status := c.deps.Budget.CheckBudget(turn.TenantID, turn.Plan)
	if alert := c.deps.Alerts.Check(ctx, turn.TenantID, status); alert != nil {
		c.deps.Metrics.RecordBudgetAlert(alert.Type)
	}
	logger.Debug("Dispatch: usage recorded",
		"provider", provider,
		"month_input_tokens", usage.InputTokens,
		"month_output_tokens", usage.OutputTokens,
		"percent_used", status.PercentUsed)
}

// persistTurn appends the turn to the conversation memory. Errors are
// logged and swallowed; the answer never depends on persistence.
func (c *Controller) persistTurn(ctx context.Context, turn *Turn, task routing.TaskType, provider string, resp *llm.Response, assessment quality.Assessment, turnID string, logger *slog.Logger) {
	now := c.now()
	update := memory.Update{Pillars: &memory.PillarsUpdate{
		Intent: map[string]any{
			"type":      string(task),
			"updatedAt": now,
		},
		History: []memory.Event{{
			Timestamp: now,
			Agent:     AgentDispatch,
			Event:     EventTurn,
			Fields: map[string]any{
				"turnId":       turnID,
				"taskType":     string(task),
				"provider":     provider,
				"language":     turn.Language,
				"utterance":    turn.Utterance,
				"response":     resp.Text,
				"qualityScore": assessment.Score,
			},
		}},
	}}
	if _, err := c.deps.Memory.Set(context.WithoutCancel(ctx), turn.SessionID, update); err != nil {
		logger.Error("Dispatch: failed to persist turn", "session_id", turn.SessionID, "error", err)
	}
}
