package stats

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/hrygo/dispatchcore/store"
)

const monthLayout = "2006-01"

// BudgetStatus is the result of CheckBudget.
type BudgetStatus struct {
	Allowed     bool   `json:"allowed"`
	Remaining   int64  `json:"remaining"`
	TotalUsed   int64  `json:"totalUsed"`
	PercentUsed int64  `json:"percentUsed"`
	Alert       bool   `json:"alert"`
	Plan        string `json:"plan"` // plan label
	Calls       int64  `json:"calls"`
	Month       string `json:"month"`
}

// Config configures a BudgetManager.
type Config struct {
	// LoadTimeout bounds each read from the usage store.
	LoadTimeout time.Duration
	// Now is the clock; defaults to time.Now.
	Now func() time.Time
}

// DefaultConfig returns the default budget manager configuration.
func DefaultConfig() Config {
	return Config{
		LoadTimeout: 5 * time.Second,
		Now:         time.Now,
	}
}

// BudgetManager accounts token usage per tenant and calendar month (UTC).
//
// Each tenant's counters are guarded by their own mutex, so concurrent turns
// for one tenant never lose increments while other tenants proceed in
// parallel. Records are loaded lazily from the store and written back through
// the persister after every usage write.
type BudgetManager struct {
	store       store.TokenUsageStore
	persister   *Persister
	logger      *slog.Logger
	now         func() time.Time
	loadTimeout time.Duration

	mu      sync.Mutex
	tenants map[string]*tenantUsage
}

type tenantUsage struct {
	mu    sync.Mutex
	usage store.TokenUsage
}

// NewBudgetManager creates a budget manager.
// usageStore and persister are optional. Without a persister, usage writes go
// to usageStore synchronously.
func NewBudgetManager(usageStore store.TokenUsageStore, persister *Persister, cfg Config, logger *slog.Logger) *BudgetManager {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = DefaultConfig().LoadTimeout
	}
	return &BudgetManager{
		store:       usageStore,
		persister:   persister,
		logger:      logger,
		now:         cfg.Now,
		loadTimeout: cfg.LoadTimeout,
		tenants:     make(map[string]*tenantUsage),
	}
}

// CurrentMonth returns the current month key, "YYYY-MM" in UTC.
func (m *BudgetManager) CurrentMonth() string {
	return m.now().UTC().Format(monthLayout)
}

// RecordUsage adds one call to the tenant's counters. When both token counts
// are zero and providerHint is set, the provider's per-call estimate is used
// instead. It returns a snapshot of the updated record.
func (m *BudgetManager) RecordUsage(tenantID string, inputTokens, outputTokens int64, providerHint string) store.TokenUsage {
	key := store.SanitizeKey(tenantID)
	entry := m.lockedEntry(key)

	if inputTokens <= 0 && outputTokens <= 0 && providerHint != "" {
		est := EstimateFor(providerHint)
		inputTokens, outputTokens = est.Input, est.Output
	}
	entry.usage.InputTokens += max(0, inputTokens)
	entry.usage.OutputTokens += max(0, outputTokens)
	entry.usage.Calls++
	entry.usage.UpdatedAt = m.now()
	snapshot := entry.usage
	// Enqueue under the tenant lock so snapshots reach the store in order.
	m.persist(&snapshot)
	entry.mu.Unlock()

	return snapshot
}

// CheckBudget reports whether tenantID may spend more tokens under plan.
// Unknown plans resolve to the starter plan.
func (m *BudgetManager) CheckBudget(tenantID, plan string) BudgetStatus {
	budget := ResolvePlan(plan)
	usage := m.GetUsage(tenantID)
	return computeStatus(usage, budget)
}

func computeStatus(usage store.TokenUsage, budget PlanBudget) BudgetStatus {
	totalUsed := usage.TotalTokens()
	remaining := budget.MonthlyTokens - totalUsed
	ratio := float64(totalUsed) / float64(budget.MonthlyTokens)

	return BudgetStatus{
		Allowed:     remaining > 0,
		Remaining:   max(0, remaining),
		TotalUsed:   totalUsed,
		PercentUsed: int64(math.Round(ratio * 100)),
		Alert:       ratio >= budget.AlertAt,
		Plan:        budget.Label,
		Calls:       usage.Calls,
		Month:       usage.Month,
	}
}

// GetUsage returns a copy of the tenant's current-month record.
func (m *BudgetManager) GetUsage(tenantID string) store.TokenUsage {
	entry := m.lockedEntry(store.SanitizeKey(tenantID))
	defer entry.mu.Unlock()
	return entry.usage
}

// GetAllUsage returns copies of every known tenant's current-month record,
// keyed by sanitized tenant id.
func (m *BudgetManager) GetAllUsage() map[string]store.TokenUsage {
	month := m.CurrentMonth()

	m.mu.Lock()
	entries := make(map[string]*tenantUsage, len(m.tenants))
	for key, entry := range m.tenants {
		entries[key] = entry
	}
	m.mu.Unlock()

	result := make(map[string]store.TokenUsage, len(entries))
	for key, entry := range entries {
		entry.mu.Lock()
		if entry.usage.Month == month {
			result[key] = entry.usage
		}
		entry.mu.Unlock()
	}
	return result
}

// Tenants lists the tenants with current-month usage, sorted.
func (m *BudgetManager) Tenants() []string {
	all := m.GetAllUsage()
	ids := make([]string, 0, len(all))
	for id := range all {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Preload warms the in-memory counters with every current-month record in
// the store. Stale months are ignored.
func (m *BudgetManager) Preload(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	records, err := m.store.ListTokenUsage(ctx)
	if err != nil {
		return err
	}

	month := m.CurrentMonth()
	loaded := 0
	for _, record := range records {
		if record == nil || record.Month != month {
			continue
		}
		key := store.SanitizeKey(record.TenantID)
		m.mu.Lock()
		if _, ok := m.tenants[key]; !ok {
			usage := *record
			usage.TenantID = key
			m.tenants[key] = &tenantUsage{usage: usage}
			loaded++
		}
		m.mu.Unlock()
	}
	m.logger.Info("BudgetManager: preloaded usage", "month", month, "tenants", loaded)
	return nil
}

// lockedEntry returns the tenant entry with its mutex held and its record
// rolled over to the current month.
func (m *BudgetManager) lockedEntry(key string) *tenantUsage {
	m.mu.Lock()
	entry, ok := m.tenants[key]
	if !ok {
		entry = &tenantUsage{}
		m.tenants[key] = entry
	}
	m.mu.Unlock()

	entry.mu.Lock()
	month := m.CurrentMonth()
	if entry.usage.Month != month {
		entry.usage = store.TokenUsage{TenantID: key, Month: month}
		if loaded := m.load(key, month); loaded != nil {
			entry.usage = *loaded
		}
	}
	return entry
}

// load reads the persisted record for key. Stale, missing or unreadable
// records yield nil and the caller starts from zero.
func (m *BudgetManager) load(key, month string) *store.TokenUsage {
	if m.store == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.loadTimeout)
	defer cancel()

	usage, err := m.store.GetTokenUsage(ctx, key)
	if err != nil {
		m.logger.Warn("BudgetManager: failed to load usage, starting fresh",
			"tenant_id", key,
			"error", err)
		return nil
	}
	if usage == nil || usage.Month != month {
		return nil
	}
	usage.TenantID = key
	return usage
}

func (m *BudgetManager) persist(usage *store.TokenUsage) {
	if m.persister != nil {
		m.persister.Enqueue(usage)
		return
	}
	if m.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.loadTimeout)
	defer cancel()
	if err := m.store.UpsertTokenUsage(ctx, usage); err != nil {
		m.logger.Error("BudgetManager: failed to persist usage",
			"tenant_id", usage.TenantID,
			"error", err)
	}
}
