package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAcceptsDefaults(t *testing.T) {
	assert.NoError(t, validate(DefaultConfig()))
}

func TestValidateAgents(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*AgentDefaults)
		wantErr bool
	}{
		{"defaults pass", func(*AgentDefaults) {}, false},
		{"missing primary model", func(a *AgentDefaults) { a.PrimaryModel = "" }, true},
		{"temperature below range", func(a *AgentDefaults) { a.Temperature = floatPtr(-0.1) }, true},
		{"temperature above range", func(a *AgentDefaults) { a.Temperature = floatPtr(2.5) }, true},
		{"explicit zero temperature is fine", func(a *AgentDefaults) { a.Temperature = floatPtr(0) }, false},
		{"zero max tokens", func(a *AgentDefaults) { a.MaxTokens = 0 }, true},
		{"fallback confidence above one", func(a *AgentDefaults) { a.FallbackConfidence = floatPtr(1.1) }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agents := DefaultConfig().Agents
			tt.mutate(agents)
			err := validateAgents(agents)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateOrchestrator(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*OrchestratorConfig)
		wantErr bool
	}{
		{"defaults pass", func(*OrchestratorConfig) {}, false},
		{"zero concurrency", func(o *OrchestratorConfig) { o.MaxConcurrentAgents = 0 }, true},
		{"zero agent timeout", func(o *OrchestratorConfig) { o.AgentTimeoutSeconds = 0 }, true},
		{"zero retry attempts", func(o *OrchestratorConfig) { o.RetryAttempts = 0 }, true},
		{"threshold above one", func(o *OrchestratorConfig) { o.AutoApproveThreshold = floatPtr(1.3) }, true},
		{"explicit zero threshold is fine", func(o *OrchestratorConfig) { o.AutoApproveThreshold = floatPtr(0) }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orch := DefaultConfig().Orchestrator
			tt.mutate(orch)
			err := validateOrchestrator(orch)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateSemantic(t *testing.T) {
	assert.NoError(t, validateSemantic(&SemanticConfig{}))
	assert.NoError(t, validateSemantic(&SemanticConfig{
		SimilarityThreshold: floatPtr(0.5), EmbeddingCacheTTL: "90s",
	}))
	assert.Error(t, validateSemantic(&SemanticConfig{SimilarityThreshold: floatPtr(1.5)}))
	assert.Error(t, validateSemantic(&SemanticConfig{EmbeddingCacheTTL: "soon"}))
}

func TestValidateLLM(t *testing.T) {
	assert.NoError(t, validateLLM(&LLMConfig{TimeoutSeconds: 30}))
	assert.NoError(t, validateLLM(&LLMConfig{BaseURL: "https://api.example.com", TimeoutSeconds: 30}))
	assert.Error(t, validateLLM(&LLMConfig{BaseURL: "not-a-url", TimeoutSeconds: 30}))
	assert.Error(t, validateLLM(&LLMConfig{TimeoutSeconds: 0}))
}

func TestValidateServer(t *testing.T) {
	assert.NoError(t, validateServer(&ServerConfig{Port: 8080, SendTimeoutSeconds: 30}))
	assert.Error(t, validateServer(&ServerConfig{Port: 0, SendTimeoutSeconds: 30}))
	assert.Error(t, validateServer(&ServerConfig{Port: 70000, SendTimeoutSeconds: 30}))
	assert.Error(t, validateServer(&ServerConfig{Port: 8080, SendTimeoutSeconds: 0}))
}

func TestValidateRetention(t *testing.T) {
	// Empty fields are filled from defaults later, not rejected.
	assert.NoError(t, validateRetention(&RetentionConfig{}))
	assert.NoError(t, validateRetention(&RetentionConfig{
		ProposalRetention: "720h", CleanupInterval: "1h",
	}))
	assert.Error(t, validateRetention(&RetentionConfig{ProposalRetention: "forever"}))
	assert.Error(t, validateRetention(&RetentionConfig{CleanupInterval: "-1h"}))
}

func TestValidateSpecSource(t *testing.T) {
	assert.NoError(t, validateSpecSource(&SpecSourceConfig{}))
	assert.NoError(t, validateSpecSource(&SpecSourceConfig{
		RepoURL: "https://github.com/acme/specs/tree/main/docs", CacheTTL: "5m",
	}))
	assert.Error(t, validateSpecSource(&SpecSourceConfig{RepoURL: "not-a-url"}))
	assert.Error(t, validateSpecSource(&SpecSourceConfig{CacheTTL: "soon"}))
	assert.Error(t, validateSpecSource(&SpecSourceConfig{CacheTTL: "-1m"}))
}
