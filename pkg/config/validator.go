package config

import (
	"fmt"
	"net/url"
	"time"
)

// validate performs range and consistency checks on loaded configuration.
func validate(cfg *Config) error {
	if err := validateAgents(cfg.Agents); err != nil {
		return err
	}
	if err := validateOrchestrator(cfg.Orchestrator); err != nil {
		return err
	}
	if cfg.Approval.TimeoutSeconds <= 0 {
		return NewValidationError("approval", "timeout_seconds", ErrInvalidValue)
	}
	if err := validateSemantic(cfg.Semantic); err != nil {
		return err
	}
	if cfg.Graph.MaxTraversalDepth <= 0 {
		return NewValidationError("graph", "max_traversal_depth", ErrInvalidValue)
	}
	if err := validateLLM(cfg.LLM); err != nil {
		return err
	}
	if err := validateRetention(cfg.Retention); err != nil {
		return err
	}
	if err := validateSpecSource(cfg.SpecSource); err != nil {
		return err
	}
	return validateServer(cfg.Server)
}

func validateSpecSource(s *SpecSourceConfig) error {
	if s.RepoURL != "" {
		u, err := url.Parse(s.RepoURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return NewValidationError("spec_source", "repo_url", ErrInvalidValue)
		}
	}
	if s.CacheTTL != "" {
		if d, err := time.ParseDuration(s.CacheTTL); err != nil || d <= 0 {
			return NewValidationError("spec_source", "cache_ttl", ErrInvalidValue)
		}
	}
	return nil
}

func validateRetention(r *RetentionConfig) error {
	for field, value := range map[string]string{
		"proposal_retention": r.ProposalRetention,
		"cleanup_interval":   r.CleanupInterval,
	} {
		if value == "" {
			continue
		}
		if d, err := time.ParseDuration(value); err != nil || d <= 0 {
			return NewValidationError("retention", field, ErrInvalidValue)
		}
	}
	return nil
}

func validateAgents(a *AgentDefaults) error {
	if a.PrimaryModel == "" {
		return NewValidationError("agents", "primary_model", ErrMissingRequiredField)
	}
	if a.Temperature != nil && (*a.Temperature < 0 || *a.Temperature > 2) {
		return NewValidationError("agents", "temperature", ErrInvalidValue)
	}
	if a.MaxTokens <= 0 {
		return NewValidationError("agents", "max_tokens", ErrInvalidValue)
	}
	if a.FallbackConfidence != nil && (*a.FallbackConfidence < 0 || *a.FallbackConfidence > 1) {
		return NewValidationError("agents", "fallback_confidence", ErrInvalidValue)
	}
	return nil
}

func validateOrchestrator(o *OrchestratorConfig) error {
	if o.MaxConcurrentAgents <= 0 {
		return NewValidationError("orchestrator", "max_concurrent_agents", ErrInvalidValue)
	}
	if o.AgentTimeoutSeconds <= 0 {
		return NewValidationError("orchestrator", "agent_timeout_seconds", ErrInvalidValue)
	}
	if o.RetryAttempts <= 0 {
		return NewValidationError("orchestrator", "retry_attempts", ErrInvalidValue)
	}
	if o.AutoApproveThreshold != nil && (*o.AutoApproveThreshold < 0 || *o.AutoApproveThreshold > 1) {
		return NewValidationError("orchestrator", "auto_approve_threshold", ErrInvalidValue)
	}
	return nil
}

func validateSemantic(s *SemanticConfig) error {
	if s.SimilarityThreshold != nil && (*s.SimilarityThreshold < 0 || *s.SimilarityThreshold > 1) {
		return NewValidationError("semantic", "similarity_threshold", ErrInvalidValue)
	}
	if s.EmbeddingCacheTTL != "" {
		if _, err := time.ParseDuration(s.EmbeddingCacheTTL); err != nil {
			return NewValidationError("semantic", "embedding_cache_ttl",
				fmt.Errorf("%w: %v", ErrInvalidValue, err))
		}
	}
	return nil
}

func validateLLM(l *LLMConfig) error {
	if l.BaseURL != "" {
		u, err := url.Parse(l.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return NewValidationError("llm", "base_url", ErrInvalidValue)
		}
	}
	if l.TimeoutSeconds <= 0 {
		return NewValidationError("llm", "timeout_seconds", ErrInvalidValue)
	}
	return nil
}

func validateServer(s *ServerConfig) error {
	if s.Port <= 0 || s.Port > 65535 {
		return NewValidationError("server", "port", ErrInvalidValue)
	}
	if s.SendTimeoutSeconds <= 0 {
		return NewValidationError("server", "send_timeout_seconds", ErrInvalidValue)
	}
	return nil
}
