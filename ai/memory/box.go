package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hrygo/dispatchcore/ai/events"
	"github.com/hrygo/dispatchcore/store"
)

// Reserved agents and events written by the box itself.
const (
	AgentContextBox = "ContextBox"
	EventCompaction = "COMPACTION"
	EventHandoff    = "HANDOFF"
)

const (
	maxSentiment       = 20
	keepRatio          = 0.6
	handoffTokenBudget = 2000
)

// ErrEmptyID is returned for an empty memory id.
var ErrEmptyID = errors.New("memory: empty id")

// Config configures a Box.
type Config struct {
	// MaxHistoryEvents triggers compaction when exceeded.
	MaxHistoryEvents int
	// MaxTokenEstimate is the default GetContextForLLM budget.
	MaxTokenEstimate int
	// StaleAfter is the default CleanupStale horizon.
	StaleAfter time.Duration
	// TokensPerChar converts encoded length to a token estimate.
	TokensPerChar float64
	// StoreTimeout bounds each store call.
	StoreTimeout time.Duration
}

// DefaultConfig returns the default ContextBox configuration.
func DefaultConfig() Config {
	return Config{
		MaxHistoryEvents: 50,
		MaxTokenEstimate: 4000,
		StaleAfter:       24 * time.Hour,
		TokensPerChar:    0.25,
		StoreTimeout:     5 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MaxHistoryEvents <= 0 {
		c.MaxHistoryEvents = def.MaxHistoryEvents
	}
	if c.MaxTokenEstimate <= 0 {
		c.MaxTokenEstimate = def.MaxTokenEstimate
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = def.StaleAfter
	}
	if c.TokensPerChar <= 0 {
		c.TokensPerChar = def.TokensPerChar
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = def.StoreTimeout
	}
	return c
}

// Observer receives memory lifecycle signals.
type Observer interface {
	ObserveCompaction(summarized int)
	ObserveStaleCleanup(deleted int)
}

// Option configures a Box.
type Option func(*Box)

// WithPublisher publishes handoffs on p.
func WithPublisher(p events.Publisher) Option {
	return func(b *Box) { b.bus = p }
}

// WithObserver reports compactions and sweeps to o.
func WithObserver(o Observer) Option {
	return func(b *Box) { b.observer = o }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(b *Box) { b.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Box) { b.logger = l }
}

// Box is the ContextBox: a per-conversation memory with bounded history.
//
// Writes for one id are serialized, so a get, merge and persist cycle never
// loses a concurrent writer's appends. Writes for different ids proceed in
// parallel.
type Box struct {
	store    store.ConversationMemoryStore
	bus      events.Publisher
	observer Observer
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
	locks    *keyedMutex
}

// NewBox creates a ContextBox on memStore.
func NewBox(memStore store.ConversationMemoryStore, cfg Config, opts ...Option) *Box {
	b := &Box{
		store: memStore,
		cfg:   cfg.withDefaults(),
		now:   time.Now,
		locks: newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	return b
}

// Config returns the effective configuration.
func (b *Box) Config() Config {
	return b.cfg
}

// SanitizeID maps id to its storage key. Every character outside
// [a-zA-Z0-9_-] becomes '_'.
func SanitizeID(id string) (string, error) {
	if id == "" {
		return "", ErrEmptyID
	}
	return store.SanitizeKey(id), nil
}

// Get returns the persisted memory for id, or a fresh unpersisted skeleton
// when none exists. A corrupted record is logged and treated as missing.
func (b *Box) Get(ctx context.Context, id string) (*ConversationMemory, error) {
	key, err := SanitizeID(id)
	if err != nil {
		return nil, err
	}
	return b.load(ctx, key)
}

// Set merges update into the memory for id, compacts the history when it
// grew past the threshold, and persists the result.
func (b *Box) Set(ctx context.Context, id string, update Update) (*ConversationMemory, error) {
	key, err := SanitizeID(id)
	if err != nil {
		return nil, err
	}

	unlock := b.locks.Lock(key)
	defer unlock()

	current, err := b.load(ctx, key)
	if err != nil {
		return nil, err
	}

	updated := b.merge(current, update)
	if len(updated.Pillars.History) > b.cfg.MaxHistoryEvents {
		b.compact(updated)
	}
	updated.Metadata.TokenEstimate = b.estimateJSON(updated.Pillars)

	if err := b.save(ctx, updated); err != nil {
		return nil, err
	}
	return updated, nil
}

// ExtractKeyFact appends one key fact. An empty source defaults to
// "conversation".
func (b *Box) ExtractKeyFact(ctx context.Context, id, factType string, value any, source string) (*ConversationMemory, error) {
	if source == "" {
		source = "conversation"
	}
	fact := KeyFact{
		Type:        factType,
		Value:       value,
		Source:      source,
		ExtractedAt: b.now(),
	}
	return b.Set(ctx, id, Update{Pillars: &PillarsUpdate{KeyFacts: []KeyFact{fact}}})
}

// LogEvent appends one history event.
func (b *Box) LogEvent(ctx context.Context, id, agent, event string, details map[string]any) (*ConversationMemory, error) {
	entry := Event{
		Timestamp: b.now(),
		Agent:     agent,
		Event:     event,
	}
	if len(details) > 0 {
		entry.Fields = make(map[string]any, len(details))
		for k, v := range details {
			entry.Fields[k] = v
		}
	}
	return b.Set(ctx, id, Update{Pillars: &PillarsUpdate{History: []Event{entry}}})
}

// Handoff records that fromAgent passed the conversation to toAgent. The
// HANDOFF event carries a snapshot of the key facts, intent and qualification
// taken from a compact context.
func (b *Box) Handoff(ctx context.Context, id, fromAgent, toAgent, reason string) (*ConversationMemory, error) {
	current, err := b.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	snapshot := b.contextFor(current, handoffTokenBudget)

	b.logger.Info("ContextBox: handoff",
		"id", current.ID,
		"from", fromAgent,
		"to", toAgent,
		"key_facts", len(snapshot.KeyFacts))

	updated, err := b.LogEvent(ctx, id, fromAgent, EventHandoff, map[string]any{
		"target": toAgent,
		"reason": reason,
		"contextSnapshot": map[string]any{
			"keyFacts":      snapshot.KeyFacts,
			"intent":        snapshot.Intent,
			"qualification": snapshot.Qualification,
		},
	})
	if err != nil {
		return nil, err
	}

	if b.bus != nil {
		b.bus.Publish(events.TypeHandoff, &events.Handoff{
			ContextID: updated.ID,
			From:      fromAgent,
			To:        toAgent,
			Reason:    reason,
			KeyFacts:  len(snapshot.KeyFacts),
			Timestamp: b.now(),
		})
	}
	return updated, nil
}

// Purge deletes the memory for id. Unknown ids are not an error.
func (b *Box) Purge(ctx context.Context, id string) error {
	key, err := SanitizeID(id)
	if err != nil {
		return err
	}
	unlock := b.locks.Lock(key)
	defer unlock()

	ctx, cancel := context.WithTimeout(ctx, b.cfg.StoreTimeout)
	defer cancel()
	if err := b.store.DeleteConversationMemory(ctx, key); err != nil {
		return fmt.Errorf("purge memory %s: %w", key, err)
	}
	return nil
}

func (b *Box) newMemory(key string) *ConversationMemory {
	now := b.now()
	mem := &ConversationMemory{
		ID:        key,
		CreatedAt: now,
		UpdatedAt: now,
		Status:    StatusActive,
	}
	mem.normalize()
	return mem
}

func (m *ConversationMemory) normalize() {
	if m.Pillars.Identity == nil {
		m.Pillars.Identity = map[string]any{}
	}
	if m.Pillars.Intent == nil {
		m.Pillars.Intent = map[string]any{}
	}
	if m.Pillars.Qualification == nil {
		m.Pillars.Qualification = map[string]any{}
	}
	if m.Pillars.Sentiment == nil {
		m.Pillars.Sentiment = []Sentiment{}
	}
	if m.Pillars.History == nil {
		m.Pillars.History = []Event{}
	}
	if m.Pillars.KeyFacts == nil {
		m.Pillars.KeyFacts = []KeyFact{}
	}
	if m.Status == "" {
		m.Status = StatusActive
	}
}

func (b *Box) load(ctx context.Context, key string) (*ConversationMemory, error) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.StoreTimeout)
	defer cancel()

	record, err := b.store.GetConversationMemory(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load memory %s: %w", key, err)
	}
	if record == nil {
		return b.newMemory(key), nil
	}

	mem, err := decodeMemory(record)
	if err != nil {
		b.logger.Error("ContextBox: corrupted memory treated as missing",
			"id", key,
			"error", err)
		return b.newMemory(key), nil
	}
	mem.ID = key
	return mem, nil
}

func decodeMemory(record *store.ConversationMemoryRecord) (*ConversationMemory, error) {
	var mem ConversationMemory
	if err := json.Unmarshal(record.Data, &mem); err != nil {
		return nil, err
	}
	mem.normalize()
	return &mem, nil
}

func (b *Box) save(ctx context.Context, mem *ConversationMemory) error {
	data, err := encodeJSON(mem)
	if err != nil {
		return fmt.Errorf("encode memory %s: %w", mem.ID, err)
	}

	ctx, cancel := context.WithTimeout(ctx, b.cfg.StoreTimeout)
	defer cancel()
	if err := b.store.UpsertConversationMemory(ctx, &store.ConversationMemoryRecord{
		ID:        mem.ID,
		Data:      data,
		UpdatedAt: mem.UpdatedAt,
	}); err != nil {
		return fmt.Errorf("save memory %s: %w", mem.ID, err)
	}
	return nil
}

// merge applies update on top of current: maps are shallow-merged, lists are
// appended, sentiment keeps its last 20 entries.
func (b *Box) merge(current *ConversationMemory, update Update) *ConversationMemory {
	now := b.now()
	updated := *current
	updated.UpdatedAt = now
	if update.Status != "" {
		updated.Status = update.Status
	}

	p := update.Pillars
	if p == nil {
		return &updated
	}

	updated.Pillars = Pillars{
		Identity:      mergeMaps(current.Pillars.Identity, p.Identity),
		Intent:        mergeMaps(current.Pillars.Intent, p.Intent),
		Qualification: mergeMaps(current.Pillars.Qualification, p.Qualification),
		Summary:       current.Pillars.Summary,
	}
	if p.Summary != "" {
		updated.Pillars.Summary = p.Summary
	}

	sentiment := make([]Sentiment, 0, len(current.Pillars.Sentiment)+len(p.Sentiment))
	sentiment = append(sentiment, current.Pillars.Sentiment...)
	for _, s := range p.Sentiment {
		if s.Timestamp.IsZero() {
			s.Timestamp = now
		}
		sentiment = append(sentiment, s)
	}
	if len(sentiment) > maxSentiment {
		sentiment = sentiment[len(sentiment)-maxSentiment:]
	}
	updated.Pillars.Sentiment = sentiment

	history := make([]Event, 0, len(current.Pillars.History)+len(p.History))
	history = append(history, current.Pillars.History...)
	for _, e := range p.History {
		if e.Timestamp.IsZero() {
			e.Timestamp = now
		}
		history = append(history, e)
	}
	updated.Pillars.History = history

	facts := make([]KeyFact, 0, len(current.Pillars.KeyFacts)+len(p.KeyFacts))
	facts = append(facts, current.Pillars.KeyFacts...)
	for _, f := range p.KeyFacts {
		if f.ExtractedAt.IsZero() {
			f.ExtractedAt = now
		}
		facts = append(facts, f)
	}
	updated.Pillars.KeyFacts = facts

	return &updated
}

func mergeMaps(current, update map[string]any) map[string]any {
	merged := make(map[string]any, len(current)+len(update))
	for k, v := range current {
		merged[k] = v
	}
	for k, v := range update {
		merged[k] = v
	}
	return merged
}

// compact folds the oldest events into one COMPACTION event, keeping the most
// recent 60% of the threshold verbatim.
func (b *Box) compact(mem *ConversationMemory) {
	history := mem.Pillars.History
	keep := int(math.Floor(float64(b.cfg.MaxHistoryEvents) * keepRatio))
	split := len(history) - keep
	old, recent := history[:split], history[split:]

	counts := make(map[string]int)
	var order []string
	for _, e := range old {
		key := e.Agent + ":" + e.Event
		if counts[key] == 0 {
			order = append(order, key)
		}
		counts[key]++
	}
	parts := make([]string, 0, len(order))
	for _, key := range order {
		parts = append(parts, fmt.Sprintf("%s (x%d)", key, counts[key]))
	}

	now := b.now()
	summary := fmt.Sprintf("Compacted %d events: %s", len(old), strings.Join(parts, ", "))
	note := Event{
		Timestamp: now,
		Agent:     AgentContextBox,
		Event:     EventCompaction,
		Fields: map[string]any{
			"summarized": len(old),
			"summary":    summary,
		},
	}

	compacted := make([]Event, 0, len(recent)+1)
	compacted = append(compacted, note)
	compacted = append(compacted, recent...)
	mem.Pillars.History = compacted
	mem.Pillars.Summary += "\n[" + now.UTC().Format(isoLayout) + "] " + summary
	mem.Metadata.LastCompaction = &now

	b.logger.Info("ContextBox: compacted history",
		"id", mem.ID,
		"summarized", len(old),
		"kept", len(recent))
	if b.observer != nil {
		b.observer.ObserveCompaction(len(old))
	}
}

func (b *Box) estimateText(s string) int {
	return int(math.Ceil(float64(utf8.RuneCountInString(s)) * b.cfg.TokensPerChar))
}

func (b *Box) estimateJSON(v any) int {
	data, err := encodeJSON(v)
	if err != nil {
		return 0
	}
	return int(math.Ceil(float64(utf8.RuneCount(data)) * b.cfg.TokensPerChar))
}
