package config

import "time"

// Config is the umbrella configuration object returned by Initialize() and
// used throughout the application.
type Config struct {
	configDir string // Configuration directory path (for reference)

	Agents       *AgentDefaults      `yaml:"agents"`
	Orchestrator *OrchestratorConfig `yaml:"orchestrator"`
	Approval     *ApprovalConfig     `yaml:"approval"`
	Semantic     *SemanticConfig     `yaml:"semantic"`
	Graph        *GraphConfig        `yaml:"graph"`
	LLM          *LLMConfig          `yaml:"llm"`
	Server       *ServerConfig       `yaml:"server"`
	Database     *DatabaseConfig     `yaml:"database"`
	Retention    *RetentionConfig    `yaml:"retention"`
	Slack        *SlackConfig        `yaml:"slack"`
	SpecSource   *SpecSourceConfig   `yaml:"spec_source"`
}

// AgentDefaults are the generation and fallback settings shared by every
// registered agent unless overridden per deployment.
type AgentDefaults struct {
	PrimaryModel  string `yaml:"primary_model,omitempty"`
	FallbackModel string `yaml:"fallback_model,omitempty"`

	// Temperature and FallbackConfidence are pointers so an explicit 0 in
	// YAML survives the merge with defaults.
	Temperature        *float64 `yaml:"temperature,omitempty"`
	MaxTokens          int      `yaml:"max_tokens,omitempty"`
	FallbackConfidence *float64 `yaml:"fallback_confidence,omitempty"`
	MaxConcurrentTasks int      `yaml:"max_concurrent_tasks,omitempty"`

	// MaskPrompts redacts credential-shaped text from prompts before they
	// reach the model service. Pointer so an explicit false survives the
	// merge; defaults to true.
	MaskPrompts *bool `yaml:"mask_prompts,omitempty"`
}

// OrchestratorConfig bounds the worker pool and the auto-apply decision.
type OrchestratorConfig struct {
	MaxConcurrentAgents  int      `yaml:"max_concurrent_agents,omitempty"`
	QueueSize            int      `yaml:"queue_size,omitempty"`
	AgentTimeoutSeconds  int      `yaml:"agent_timeout_seconds,omitempty"`
	RetryAttempts        int      `yaml:"retry_attempts,omitempty"`
	AutoApproveThreshold *float64 `yaml:"auto_approve_threshold,omitempty"`
}

// ApprovalConfig controls the human-approval deadline.
type ApprovalConfig struct {
	TimeoutSeconds int `yaml:"timeout_seconds,omitempty"`
}

// SemanticConfig tunes the similarity index.
type SemanticConfig struct {
	SimilarityThreshold *float64 `yaml:"similarity_threshold,omitempty"`
	EmbeddingCacheTTL   string   `yaml:"embedding_cache_ttl,omitempty"` // Parsed to time.Duration
}

// GraphConfig caps traversal work on the spec graph.
type GraphConfig struct {
	MaxTraversalDepth int `yaml:"max_traversal_depth,omitempty"`
}

// LLMConfig points agents at an OpenAI-compatible completion endpoint. APIKey
// is normally supplied via the {{.VAR}} env expansion, not committed to YAML.
type LLMConfig struct {
	BaseURL        string `yaml:"base_url,omitempty"`
	APIKey         string `yaml:"api_key,omitempty"`
	Path           string `yaml:"path,omitempty"`
	TimeoutSeconds int    `yaml:"timeout_seconds,omitempty"`
}

// ServerConfig holds the HTTP/WebSocket listener settings.
type ServerConfig struct {
	Host               string   `yaml:"host,omitempty"`
	Port               int      `yaml:"port,omitempty"`
	AuthToken          string   `yaml:"auth_token,omitempty"`
	AllowedWSOrigins   []string `yaml:"allowed_ws_origins,omitempty"`
	SendTimeoutSeconds int      `yaml:"send_timeout_seconds,omitempty"`
}

// RetentionConfig controls the settled-proposal purge. Durations are strings
// parsed with time.ParseDuration.
type RetentionConfig struct {
	ProposalRetention string `yaml:"proposal_retention,omitempty"`
	CleanupInterval   string `yaml:"cleanup_interval,omitempty"`
}

// SlackConfig enables out-of-band approval notifications. Token is normally
// supplied via the {{.VAR}} env expansion. An empty token or channel disables
// the integration.
type SlackConfig struct {
	Token        string `yaml:"token,omitempty"`
	Channel      string `yaml:"channel,omitempty"`
	DashboardURL string `yaml:"dashboard_url,omitempty"`
}

// SpecSourceConfig points nodes at the repository their source documents live
// in. GitHubToken is normally supplied via the {{.VAR}} env expansion.
type SpecSourceConfig struct {
	RepoURL        string   `yaml:"repo_url,omitempty"`
	AllowedDomains []string `yaml:"allowed_domains,omitempty"`
	CacheTTL       string   `yaml:"cache_ttl,omitempty"` // Parsed to time.Duration
	GitHubToken    string   `yaml:"github_token,omitempty"`
}

// DatabaseConfig selects the Postgres backing store. An empty DSN means the
// process runs on in-memory stores.
type DatabaseConfig struct {
	DSN          string `yaml:"dsn,omitempty"`
	MaxOpenConns int    `yaml:"max_open_conns,omitempty"`
	MaxIdleConns int    `yaml:"max_idle_conns,omitempty"`
}

// ConfigDir returns the configuration directory path.
func (c *Config) ConfigDir() string {
	return c.configDir
}

// AgentTimeout returns the per-task deadline as a duration.
func (c *Config) AgentTimeout() time.Duration {
	return time.Duration(c.Orchestrator.AgentTimeoutSeconds) * time.Second
}

// ApprovalTimeout returns the approval deadline as a duration.
func (c *Config) ApprovalTimeout() time.Duration {
	return time.Duration(c.Approval.TimeoutSeconds) * time.Second
}

// SendTimeout returns the live-channel write deadline as a duration.
func (c *Config) SendTimeout() time.Duration {
	return time.Duration(c.Server.SendTimeoutSeconds) * time.Second
}

// LLMTimeout returns the completion-call deadline as a duration.
func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLM.TimeoutSeconds) * time.Second
}

// EmbeddingCacheTTL returns the parsed index refresh hint. Validation
// guarantees the string parses, so errors here mean Initialize was skipped.
func (c *Config) EmbeddingCacheTTL() time.Duration {
	d, err := time.ParseDuration(c.Semantic.EmbeddingCacheTTL)
	if err != nil {
		return defaultEmbeddingCacheTTL
	}
	return d
}

// ProposalRetention returns how long settled proposals are kept.
func (c *Config) ProposalRetention() time.Duration {
	d, err := time.ParseDuration(c.Retention.ProposalRetention)
	if err != nil {
		return defaultProposalRetention
	}
	return d
}

// CleanupInterval returns how often the retention purge runs.
func (c *Config) CleanupInterval() time.Duration {
	d, err := time.ParseDuration(c.Retention.CleanupInterval)
	if err != nil {
		return defaultCleanupInterval
	}
	return d
}

// SpecSourceCacheTTL returns how long fetched source documents are reused.
func (c *Config) SpecSourceCacheTTL() time.Duration {
	d, err := time.ParseDuration(c.SpecSource.CacheTTL)
	if err != nil {
		return defaultSpecSourceCacheTTL
	}
	return d
}
