// Package memory implements ContextBox, the bounded and self-compacting
// memory of one conversation shared by every agent that handles it.
package memory

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// StatusActive is the default lifecycle status.
const StatusActive = "active"

const isoLayout = "2006-01-02T15:04:05.000Z07:00"

// ConversationMemory is the persisted memory of one conversation.
type ConversationMemory struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Pillars   Pillars   `json:"pillars"`
	Status    string    `json:"status"`
	Metadata  Metadata  `json:"metadata"`
}

// Pillars holds what is known about the conversation.
type Pillars struct {
	Identity      map[string]any `json:"identity"`
	Intent        map[string]any `json:"intent"`
	Qualification map[string]any `json:"qualification"`
	Sentiment     []Sentiment    `json:"sentiment"`
	History       []Event        `json:"history"`
	KeyFacts      []KeyFact      `json:"keyFacts"`
	Summary       string         `json:"summary,omitempty"`
}

// Metadata is recomputed on every write.
type Metadata struct {
	TokenEstimate  int        `json:"tokenEstimate"`
	LastCompaction *time.Time `json:"lastCompaction"`
}

// Sentiment is one sentiment reading.
type Sentiment struct {
	Score     float64   `json:"score"`
	Label     string    `json:"label,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// KeyFact is a structured fact extracted from the conversation.
type KeyFact struct {
	Type        string    `json:"type"`
	Value       any       `json:"value"`
	Source      string    `json:"source"`
	ExtractedAt time.Time `json:"extractedAt"`
}

// Event is one history entry. Fields are flattened next to the reserved
// timestamp, agent and event keys when encoded.
type Event struct {
	Timestamp time.Time
	Agent     string
	Event     string
	Fields    map[string]any
}

// Field returns a detail field of the event.
func (e Event) Field(key string) (any, bool) {
	v, ok := e.Fields[key]
	return v, ok
}

func (e Event) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(e.Fields)+3)
	for k, v := range e.Fields {
		m[k] = v
	}
	m["timestamp"] = e.Timestamp.UTC().Format(isoLayout)
	m["agent"] = e.Agent
	m["event"] = e.Event
	return encodeJSON(m)
}

func (e *Event) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}

	*e = Event{}
	if ts, ok := m["timestamp"].(string); ok && ts != "" {
		parsed, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return fmt.Errorf("event timestamp: %w", err)
		}
		e.Timestamp = parsed
	}
	e.Agent, _ = m["agent"].(string)
	e.Event, _ = m["event"].(string)

	delete(m, "timestamp")
	delete(m, "agent")
	delete(m, "event")
	if len(m) > 0 {
		e.Fields = m
	}
	return nil
}

// Update is a partial update merged into a memory by Box.Set.
type Update struct {
	// Status replaces the lifecycle status when non-empty.
	Status  string         `json:"status,omitempty"`
	Pillars *PillarsUpdate `json:"pillars,omitempty"`
}

// PillarsUpdate carries the pillar changes of an Update.
// Maps are shallow-merged, lists are appended and Summary replaces the
// current summary when non-empty.
type PillarsUpdate struct {
	Identity      map[string]any `json:"identity,omitempty"`
	Intent        map[string]any `json:"intent,omitempty"`
	Qualification map[string]any `json:"qualification,omitempty"`
	Sentiment     []Sentiment    `json:"sentiment,omitempty"`
	History       []Event        `json:"history,omitempty"`
	KeyFacts      []KeyFact      `json:"keyFacts,omitempty"`
	Summary       string         `json:"summary,omitempty"`
}

// encodeJSON marshals v without HTML escaping, matching what token
// estimates are computed over.
func encodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
