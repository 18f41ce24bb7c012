package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestService_ClassifyAndOrder(t *testing.T) {
	svc := NewService(DefaultConfig())

	task := svc.Classify("Combien coûte l'offre Pro ?", "fr")
	assert.Equal(t, TaskQualification, task)

	order := svc.Order(task, AllEnabled(ProviderGrok, ProviderGemini, ProviderAnthropic))
	assert.Equal(t, []ProviderID{ProviderAnthropic, ProviderGemini, ProviderGrok}, order)
}

func TestService_EmptyConfigUsesDefaults(t *testing.T) {
	svc := NewService(Config{})

	assert.Equal(t, TaskDialect, svc.Classify("labas", "ary"))
	assert.Equal(t,
		[]ProviderID{ProviderGrok, ProviderAtlasChat},
		svc.Order(TaskDialect, AllEnabled(ProviderGrok, ProviderAtlasChat)),
	)
}

func TestService_CustomTable(t *testing.T) {
	svc := NewService(Config{
		Table: RoutingTable{
			TaskConversation: {"local", ProviderGemini},
		},
	})

	assert.Equal(t,
		[]ProviderID{"local", ProviderGemini},
		svc.Order(TaskSupport, AllEnabled("local", ProviderGemini)),
	)
	assert.Equal(t, []ProviderID{"local", ProviderGemini}, svc.Providers())
}
