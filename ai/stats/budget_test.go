package stats

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/dispatchcore/store"
	"github.com/hrygo/dispatchcore/store/db/memory"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func newTestManager(t *testing.T, usageStore store.TokenUsageStore) (*BudgetManager, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)}
	m := NewBudgetManager(usageStore, nil, Config{Now: clock.Now}, nil)
	return m, clock
}

func TestResolvePlan(t *testing.T) {
	assert.Equal(t, int64(500_000), ResolvePlan("starter").MonthlyTokens)
	assert.Equal(t, int64(2_000_000), ResolvePlan("PRO").MonthlyTokens)
	assert.Equal(t, "Telephony (199€)", ResolvePlan("telephony").Label)
	assert.Equal(t, "starter", ResolvePlan("platinum").Name)
	assert.Equal(t, "starter", ResolvePlan("").Name)

	plans := Plans()
	require.Len(t, plans, 5)
	assert.Equal(t, "starter", plans[0].Name)
	assert.Equal(t, "telephony", plans[4].Name)
}

func TestEstimateFor(t *testing.T) {
	assert.Equal(t, TokenEstimate{Input: 1200, Output: 800}, EstimateFor("anthropic"))
	assert.Equal(t, TokenEstimate{Input: 600, Output: 300}, EstimateFor("atlasChat"))
	assert.Equal(t, TokenEstimate{Input: 800, Output: 400}, EstimateFor("mistral"))
}

func TestBudgetManager_ExhaustedStarter(t *testing.T) {
	m, _ := newTestManager(t, nil)

	m.RecordUsage("tenant_1", 300_000, 250_000, "")
	status := m.CheckBudget("tenant_1", "starter")

	assert.False(t, status.Allowed)
	assert.Equal(t, int64(0), status.Remaining)
	assert.Equal(t, int64(550_000), status.TotalUsed)
	assert.GreaterOrEqual(t, status.PercentUsed, int64(100))
	assert.Equal(t, int64(110), status.PercentUsed)
	assert.True(t, status.Alert)
	assert.Equal(t, "Starter (49€)", status.Plan)
	assert.Equal(t, int64(1), status.Calls)
	assert.Equal(t, "2026-10", status.Month)
}

func TestBudgetManager_CheckBudget(t *testing.T) {
	tests := []struct {
		name        string
		input       int64
		output      int64
		plan        string
		wantAllowed bool
		wantAlert   bool
		wantPercent int64
		wantRemain  int64
	}{
		{"fresh tenant", 0, 0, "pro", true, false, 0, 2_000_000},
		{"below alert", 100_000, 100_000, "starter", true, false, 40, 300_000},
		{"at alert ratio", 200_000, 200_000, "starter", true, true, 80, 100_000},
		{"exactly exhausted", 250_000, 250_000, "starter", false, true, 100, 0},
		{"unknown plan uses starter", 250_000, 250_000, "gold", false, true, 100, 0},
		{"larger plan", 250_000, 250_000, "expert", true, false, 10, 4_500_000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := newTestManager(t, nil)
			if tt.input > 0 || tt.output > 0 {
				m.RecordUsage("t", tt.input, tt.output, "")
			}
			status := m.CheckBudget("t", tt.plan)
			assert.Equal(t, tt.wantAllowed, status.Allowed)
			assert.Equal(t, tt.wantAlert, status.Alert)
			assert.Equal(t, tt.wantPercent, status.PercentUsed)
			assert.Equal(t, tt.wantRemain, status.Remaining)
		})
	}
}

func TestBudgetManager_RecordUsageEstimates(t *testing.T) {
	m, _ := newTestManager(t, nil)

	usage := m.RecordUsage("t", 0, 0, "gemini")
	assert.Equal(t, int64(1000), usage.InputTokens)
	assert.Equal(t, int64(600), usage.OutputTokens)

	usage = m.RecordUsage("t", 0, 0, "unknown-provider")
	assert.Equal(t, int64(1800), usage.InputTokens)
	assert.Equal(t, int64(1000), usage.OutputTokens)

	// No hint and no tokens: only the call is counted.
	usage = m.RecordUsage("t", 0, 0, "")
	assert.Equal(t, int64(2800), usage.TotalTokens())
	assert.Equal(t, int64(3), usage.Calls)

	// Reported tokens win over the estimate.
	usage = m.RecordUsage("t", 10, 0, "anthropic")
	assert.Equal(t, int64(1810), usage.InputTokens)
}

func TestBudgetManager_MonthRollover(t *testing.T) {
	m, clock := newTestManager(t, nil)

	m.RecordUsage("t", 400_000, 0, "")
	assert.True(t, m.CheckBudget("t", "starter").Alert)

	clock.Set(time.Date(2026, 11, 1, 0, 0, 1, 0, time.UTC))
	status := m.CheckBudget("t", "starter")
	assert.Equal(t, int64(0), status.TotalUsed)
	assert.Equal(t, int64(0), status.Calls)
	assert.Equal(t, "2026-11", status.Month)
	assert.True(t, status.Allowed)
}

func TestBudgetManager_MonthIsUTC(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 11, 1, 0, 30, 0, 0, time.FixedZone("UTC+2", 2*3600))}
	m := NewBudgetManager(nil, nil, Config{Now: clock.Now}, nil)
	assert.Equal(t, "2026-10", m.CurrentMonth())
}

func TestBudgetManager_LazyLoad(t *testing.T) {
	ctx := context.Background()
	db := memory.NewDB()
	require.NoError(t, db.UpsertTokenUsage(ctx, &store.TokenUsage{
		TenantID: "current", Month: "2026-10", InputTokens: 1000, OutputTokens: 500, Calls: 3,
	}))
	require.NoError(t, db.UpsertTokenUsage(ctx, &store.TokenUsage{
		TenantID: "stale", Month: "2026-09", InputTokens: 450_000, Calls: 90,
	}))

	m, _ := newTestManager(t, db)

	current := m.GetUsage("current")
	assert.Equal(t, int64(1500), current.TotalTokens())
	assert.Equal(t, int64(3), current.Calls)

	stale := m.CheckBudget("stale", "starter")
	assert.Equal(t, int64(0), stale.TotalUsed)
	assert.True(t, stale.Allowed)
}

func TestBudgetManager_PersistsSynchronouslyWithoutPersister(t *testing.T) {
	ctx := context.Background()
	db := memory.NewDB()
	m, _ := newTestManager(t, db)

	m.RecordUsage("../evil", 100, 50, "")

	saved, err := db.GetTokenUsage(ctx, "___evil")
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, int64(150), saved.TotalTokens())
	assert.Equal(t, "2026-10", saved.Month)
}

func TestBudgetManager_PersistsThroughPersister(t *testing.T) {
	ctx := context.Background()
	db := memory.NewDB()
	p := NewPersister(db, 10, nil)
	m := NewBudgetManager(db, p, DefaultConfig(), nil)

	m.RecordUsage("acme", 100, 100, "")
	m.RecordUsage("acme", 100, 100, "")
	require.NoError(t, p.Close(5*time.Second))

	saved, err := db.GetTokenUsage(ctx, "acme")
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, int64(400), saved.TotalTokens())
	assert.Equal(t, int64(2), saved.Calls)
}

func TestBudgetManager_ConcurrentWritesPersistLatest(t *testing.T) {
	ctx := context.Background()
	db := memory.NewDB()
	p := NewPersister(db, 256, nil)
	m := NewBudgetManager(db, p, DefaultConfig(), nil)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.RecordUsage("shared", 10, 5, "")
		}()
	}
	wg.Wait()
	require.NoError(t, p.Close(5*time.Second))

	saved, err := db.GetTokenUsage(ctx, "shared")
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, int64(100), saved.Calls)
	assert.Equal(t, int64(1500), saved.TotalTokens())
}

func TestBudgetManager_ConcurrentIncrements(t *testing.T) {
	m, _ := newTestManager(t, nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.RecordUsage("shared", 2, 1, "")
		}()
	}
	wg.Wait()

	usage := m.GetUsage("shared")
	assert.Equal(t, int64(100), usage.InputTokens)
	assert.Equal(t, int64(50), usage.OutputTokens)
	assert.Equal(t, int64(50), usage.Calls)
}

func TestBudgetManager_GetAllUsage(t *testing.T) {
	m, clock := newTestManager(t, nil)

	m.RecordUsage("old", 10, 10, "")
	clock.Set(time.Date(2026, 11, 2, 0, 0, 0, 0, time.UTC))
	m.RecordUsage("a", 1, 1, "")
	m.RecordUsage("b", 2, 2, "")

	all := m.GetAllUsage()
	assert.Len(t, all, 2)
	assert.Contains(t, all, "a")
	assert.NotContains(t, all, "old")
	assert.Equal(t, []string{"a", "b"}, m.Tenants())

	// Returned records are copies.
	a := all["a"]
	a.Calls = 99
	assert.Equal(t, int64(1), m.GetUsage("a").Calls)
}

func TestBudgetManager_Preload(t *testing.T) {
	ctx := context.Background()
	db := memory.NewDB()
	require.NoError(t, db.UpsertTokenUsage(ctx, &store.TokenUsage{TenantID: "a", Month: "2026-10", InputTokens: 5, Calls: 1}))
	require.NoError(t, db.UpsertTokenUsage(ctx, &store.TokenUsage{TenantID: "b", Month: "2026-08", InputTokens: 5, Calls: 1}))

	m, _ := newTestManager(t, db)
	require.NoError(t, m.Preload(ctx))

	assert.Equal(t, []string{"a"}, m.Tenants())
}
