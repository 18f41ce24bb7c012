package store

import (
	"context"
	"time"
)

// TokenUsage is one tenant's token consumption for a calendar month.
type TokenUsage struct {
	TenantID     string    `json:"tenantId"`
	Month        string    `json:"month"` // YYYY-MM
	InputTokens  int64     `json:"inputTokens"`
	OutputTokens int64     `json:"outputTokens"`
	Calls        int64     `json:"calls"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// TotalTokens returns input plus output tokens.
func (u *TokenUsage) TotalTokens() int64 {
	return u.InputTokens + u.OutputTokens
}

// TokenUsageStore persists one usage record per tenant, overwritten wholesale.
type TokenUsageStore interface {
	// GetTokenUsage returns nil, nil when the tenant has no record.
	GetTokenUsage(ctx context.Context, tenantID string) (*TokenUsage, error)
	UpsertTokenUsage(ctx context.Context, usage *TokenUsage) error
	ListTokenUsage(ctx context.Context) ([]*TokenUsage, error)
}
