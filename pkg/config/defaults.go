package config

import "time"

// Built-in defaults. YAML values merge over these; anything unset in the file
// falls back here.
const (
	DefaultPrimaryModel         = "gpt-4o"
	DefaultFallbackModel        = "gpt-4o-mini"
	DefaultTemperature          = 0.2
	DefaultMaxTokens            = 2048
	DefaultFallbackConfidence   = 0.6
	DefaultMaxConcurrentAgents  = 10
	DefaultAgentTimeoutSeconds  = 300
	DefaultRetryAttempts        = 3
	DefaultAutoApproveThreshold = 0.85
	DefaultApprovalTimeout      = 300
	DefaultSimilarityThreshold  = 0.75
	DefaultMaxTraversalDepth    = 10
	DefaultServerPort           = 8080
	DefaultSendTimeoutSeconds   = 30
	DefaultLLMTimeoutSeconds    = 120

	defaultEmbeddingCacheTTL  = 5 * time.Minute
	defaultProposalRetention  = 30 * 24 * time.Hour
	defaultCleanupInterval    = time.Hour
	defaultSpecSourceCacheTTL = time.Minute
)

func floatPtr(v float64) *float64 { return &v }

func boolPtr(v bool) *bool { return &v }

// DefaultConfig returns a fully populated configuration. Used as the merge
// base by Initialize and directly by deployments that run without a YAML file.
func DefaultConfig() *Config {
	return &Config{
		Agents: &AgentDefaults{
			PrimaryModel:       DefaultPrimaryModel,
			FallbackModel:      DefaultFallbackModel,
			Temperature:        floatPtr(DefaultTemperature),
			MaxTokens:          DefaultMaxTokens,
			FallbackConfidence: floatPtr(DefaultFallbackConfidence),
			MaxConcurrentTasks: 1,
			MaskPrompts:        boolPtr(true),
		},
		Orchestrator: &OrchestratorConfig{
			MaxConcurrentAgents:  DefaultMaxConcurrentAgents,
			QueueSize:            DefaultMaxConcurrentAgents * 4,
			AgentTimeoutSeconds:  DefaultAgentTimeoutSeconds,
			RetryAttempts:        DefaultRetryAttempts,
			AutoApproveThreshold: floatPtr(DefaultAutoApproveThreshold),
		},
		Approval: &ApprovalConfig{
			TimeoutSeconds: DefaultApprovalTimeout,
		},
		Semantic: &SemanticConfig{
			SimilarityThreshold: floatPtr(DefaultSimilarityThreshold),
			EmbeddingCacheTTL:   defaultEmbeddingCacheTTL.String(),
		},
		Graph: &GraphConfig{
			MaxTraversalDepth: DefaultMaxTraversalDepth,
		},
		LLM: &LLMConfig{
			TimeoutSeconds: DefaultLLMTimeoutSeconds,
		},
		Server: &ServerConfig{
			Host:               "0.0.0.0",
			Port:               DefaultServerPort,
			SendTimeoutSeconds: DefaultSendTimeoutSeconds,
		},
		Database: &DatabaseConfig{
			MaxOpenConns: 10,
			MaxIdleConns: 5,
		},
		Retention: &RetentionConfig{
			ProposalRetention: defaultProposalRetention.String(),
			CleanupInterval:   defaultCleanupInterval.String(),
		},
		Slack: &SlackConfig{},
		SpecSource: &SpecSourceConfig{
			AllowedDomains: []string{"github.com", "raw.githubusercontent.com"},
			CacheTTL:       defaultSpecSourceCacheTTL.String(),
		},
	}
}
