package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/specforge/specforge/pkg/llm"
	"github.com/specforge/specforge/pkg/masking"
	"github.com/specforge/specforge/pkg/models"
)

// Config carries the tunables shared by all agents.
type Config struct {
	PrimaryModel  string
	FallbackModel string
	Temperature   float64
	MaxTokens     int

	// FallbackConfidence is the confidence score stamped on verdicts produced
	// by the deterministic fallback path.
	FallbackConfidence float64

	Priority           int
	MaxConcurrentTasks int

	// Masker redacts secrets from prompts before they reach the external
	// model service. Nil disables redaction.
	Masker *masking.Masker
}

// promptFunc builds the system and user messages for the primary path.
type promptFunc func(task *models.AgentTask) (system, user string)

// fallbackFunc computes a deterministic verdict locally.
type fallbackFunc func(ctx context.Context, task *models.AgentTask) (*models.Verdict, error)

// BaseAgent is the shared primary/fallback execution skeleton. Concrete agents
// are BaseAgent instances wired with their prompt builder and fallback.
type BaseAgent struct {
	id           string
	agentType    models.AgentType
	capabilities []models.Capability
	client       llm.Client
	cfg          Config
	logger       *slog.Logger

	prompt   promptFunc
	fallback fallbackFunc
	schemas  *SchemaSet
}

func newBaseAgent(id string, agentType models.AgentType, client llm.Client, cfg Config, logger *slog.Logger,
	capabilities []models.Capability, prompt promptFunc, fallback fallbackFunc) *BaseAgent {
	if cfg.FallbackConfidence <= 0 {
		cfg.FallbackConfidence = 0.6
	}
	if cfg.MaxConcurrentTasks <= 0 {
		cfg.MaxConcurrentTasks = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	var schemas *SchemaSet
	if len(capabilities) > 0 {
		// Registration re-compiles and rejects broken schemas; a failure here
		// only disables runtime payload validation.
		var err error
		if schemas, err = CompileSchemas(capabilities[0]); err != nil {
			logger.Error("Capability schema compilation failed", "agent_id", id, "error", err)
		}
	}
	return &BaseAgent{
		id:           id,
		agentType:    agentType,
		capabilities: capabilities,
		client:       client,
		cfg:          cfg,
		logger:       logger.With("agent_id", id, "agent_type", string(agentType)),
		prompt:       prompt,
		fallback:     fallback,
		schemas:      schemas,
	}
}

// Registration describes the agent to the orchestrator.
func (a *BaseAgent) Registration() models.AgentRegistration {
	return models.AgentRegistration{
		AgentID:            a.id,
		AgentType:          a.agentType,
		Capabilities:       a.capabilities,
		Priority:           a.cfg.Priority,
		MaxConcurrentTasks: a.cfg.MaxConcurrentTasks,
	}
}

// Execute checks the task against the capability input schema, runs the
// primary model path, and falls back to the deterministic analyzer on any
// primary failure (including an output-schema violation). Context deadline
// expiry surfaces as an AgentTimeoutError rather than a fallback verdict.
func (a *BaseAgent) Execute(ctx context.Context, task *models.AgentTask) (*models.Verdict, error) {
	if task == nil || task.Proposal == nil {
		return nil, fmt.Errorf("task with resolved proposal is required")
	}
	if err := a.schemas.ValidateInput(task); err != nil {
		return nil, err
	}

	if verdict, err := a.executePrimary(ctx, task); err == nil {
		return verdict, nil
	} else if ctx.Err() != nil {
		return nil, timeoutErr(ctx, task, a.agentType)
	} else {
		a.logger.Warn("Primary path failed, using deterministic fallback",
			"task_id", task.TaskID, "error", err)
	}

	verdict, err := a.fallback(ctx, task)
	if err != nil {
		if ctx.Err() != nil {
			return nil, timeoutErr(ctx, task, a.agentType)
		}
		return nil, fmt.Errorf("fallback analysis: %w", err)
	}
	a.stamp(verdict, task)
	verdict.FallbackMode = true
	verdict.ConfidenceScore = a.cfg.FallbackConfidence
	if err := a.schemas.ValidateOutput(verdict); err != nil {
		return nil, fmt.Errorf("fallback analysis: %w", err)
	}
	return verdict, nil
}

// executePrimary asks the model for a structured verdict, trying the fallback
// model once when the primary model errors.
func (a *BaseAgent) executePrimary(ctx context.Context, task *models.AgentTask) (*models.Verdict, error) {
	if a.client == nil || a.prompt == nil {
		return nil, fmt.Errorf("no llm client configured")
	}
	system, user := a.prompt(task)

	resp, err := a.complete(ctx, a.cfg.PrimaryModel, system, user)
	if err != nil && a.cfg.FallbackModel != "" && ctx.Err() == nil {
		a.logger.Warn("Primary model failed, retrying with fallback model",
			"task_id", task.TaskID, "model", a.cfg.FallbackModel, "error", err)
		resp, err = a.complete(ctx, a.cfg.FallbackModel, system, user)
	}
	if err != nil {
		return nil, err
	}

	verdict, err := a.parseVerdict(resp.Content)
	if err != nil {
		return nil, err
	}
	a.stamp(verdict, task)
	if err := a.schemas.ValidateOutput(verdict); err != nil {
		return nil, err
	}
	return verdict, nil
}

// complete sends the prompt pair, redacting secrets first. Spec content is
// user-authored and may carry pasted credentials.
func (a *BaseAgent) complete(ctx context.Context, model, system, user string) (*llm.Response, error) {
	return a.client.Complete(ctx, llm.Request{
		Model: model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: a.cfg.Masker.Mask(system)},
			{Role: llm.RoleUser, Content: a.cfg.Masker.Mask(user)},
		},
		Temperature: a.cfg.Temperature,
		MaxTokens:   a.cfg.MaxTokens,
	})
}

// parseVerdict extracts the JSON object from the model reply and requires the
// payload matching this agent's type to be present.
func (a *BaseAgent) parseVerdict(content string) (*models.Verdict, error) {
	raw := extractJSON(content)
	if raw == "" {
		return nil, fmt.Errorf("no JSON object in model response")
	}
	var verdict models.Verdict
	if err := json.Unmarshal([]byte(raw), &verdict); err != nil {
		return nil, fmt.Errorf("decoding model verdict: %w", err)
	}
	if !hasPayload(&verdict, a.agentType) {
		return nil, fmt.Errorf("model verdict missing %s payload", a.agentType)
	}
	if verdict.ConfidenceScore < 0 || verdict.ConfidenceScore > 1 {
		return nil, fmt.Errorf("model confidence %v out of range", verdict.ConfidenceScore)
	}
	return &verdict, nil
}

func (a *BaseAgent) stamp(verdict *models.Verdict, task *models.AgentTask) {
	verdict.TaskID = task.TaskID
	verdict.ProposalID = task.ProposalID
	verdict.AgentID = a.id
	verdict.AgentType = a.agentType
}

func hasPayload(v *models.Verdict, agentType models.AgentType) bool {
	switch agentType {
	case models.AgentTypeValidator:
		return v.Validator != nil
	case models.AgentTypeDependency:
		return v.Dependency != nil
	case models.AgentTypeSemantic:
		return v.Semantic != nil
	case models.AgentTypeMutation:
		return v.Mutation != nil
	case models.AgentTypeImpact:
		return v.Impact != nil
	case models.AgentTypeConflict:
		return v.Conflict != nil
	}
	return false
}

// extractJSON returns the outermost {...} span of the content, tolerating
// markdown fences and prose around the object.
func extractJSON(content string) string {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return ""
	}
	return content[start : end+1]
}

// describeProposal renders the proposal as prompt context.
func describeProposal(p *models.MutationProposal) string {
	payload, err := json.MarshalIndent(p.ProposedChanges, "", "  ")
	if err != nil {
		payload = []byte("{}")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Operation: %s\n", p.OperationType)
	fmt.Fprintf(&b, "Spec: %s\n", p.SpecID)
	if p.Reasoning != "" {
		fmt.Fprintf(&b, "Reasoning: %s\n", p.Reasoning)
	}
	fmt.Fprintf(&b, "Proposed changes:\n%s\n", payload)
	return b.String()
}
