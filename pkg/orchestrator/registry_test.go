package orchestrator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/specforge/specforge/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newStub(id string, agentType models.AgentType, priority, capacity int) *stubRuntime {
	return &stubRuntime{
		registration: models.AgentRegistration{
			AgentID: id, AgentType: agentType, Priority: priority, MaxConcurrentTasks: capacity,
		},
		execute: func(_ context.Context, _ *models.AgentTask) (*models.Verdict, error) {
			return &models.Verdict{Validator: &models.ValidatorVerdict{IsValid: true}}, nil
		},
	}
}

func TestRegisterValidation(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(newStub("v1", models.AgentTypeValidator, 0, 1)))
	assert.Error(t, r.Register(newStub("v1", models.AgentTypeValidator, 0, 1)), "duplicate id")
	assert.Error(t, r.Register(newStub("x1", "bogus", 0, 1)), "unknown type")
	assert.True(t, r.HasType(models.AgentTypeValidator))
	assert.False(t, r.HasType(models.AgentTypeImpact))
}

func TestAcquirePrefersPriorityThenLoad(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(newStub("low", models.AgentTypeValidator, 1, 4)))
	require.NoError(t, r.Register(newStub("high", models.AgentTypeValidator, 5, 4)))

	ctx := context.Background()
	first, err := r.Acquire(ctx, models.AgentTypeValidator)
	require.NoError(t, err)
	assert.Equal(t, "high", first.reg.AgentID)

	// Still capacity on the high-priority agent.
	second, err := r.Acquire(ctx, models.AgentTypeValidator)
	require.NoError(t, err)
	assert.Equal(t, "high", second.reg.AgentID)
	assert.Equal(t, int64(2), r.InFlight("high"))

	r.Release(first)
	r.Release(second)
	assert.Equal(t, int64(0), r.InFlight("high"))
}

func TestAcquireBlocksAtCapacityUntilRelease(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(newStub("only", models.AgentTypeValidator, 0, 1)))

	ctx := context.Background()
	claimed, err := r.Acquire(ctx, models.AgentTypeValidator)
	require.NoError(t, err)

	acquired := make(chan *registeredAgent, 1)
	go func() {
		next, err := r.Acquire(ctx, models.AgentTypeValidator)
		if err == nil {
			acquired <- next
		}
	}()

	select {
	case <-acquired:
		t.Fatal("acquire should block while the agent is at capacity")
	case <-time.After(50 * time.Millisecond):
	}

	r.Release(claimed)
	select {
	case next := <-acquired:
		r.Release(next)
	case <-time.After(2 * time.Second):
		t.Fatal("acquire never woke after release")
	}
}

func TestAcquireHonorsContext(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(newStub("only", models.AgentTypeValidator, 0, 1)))
	claimed, err := r.Acquire(context.Background(), models.AgentTypeValidator)
	require.NoError(t, err)
	defer r.Release(claimed)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = r.Acquire(ctx, models.AgentTypeValidator)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAcquireUnknownType(t *testing.T) {
	r := NewRegistry()
	_, err := r.Acquire(context.Background(), models.AgentTypeImpact)
	assert.Error(t, err)
}

func TestPoolRetriesTransientFailures(t *testing.T) {
	r := NewRegistry()
	attempts := 0
	flaky := &stubRuntime{
		registration: models.AgentRegistration{
			AgentID: "flaky", AgentType: models.AgentTypeValidator, MaxConcurrentTasks: 1,
		},
		execute: func(_ context.Context, _ *models.AgentTask) (*models.Verdict, error) {
			attempts++
			if attempts < 3 {
				return nil, errors.New("transient")
			}
			return &models.Verdict{Validator: &models.ValidatorVerdict{IsValid: true}}, nil
		},
	}
	require.NoError(t, r.Register(flaky))

	p := newPool(r, nil, testLogger(), 2, 8, 3, time.Second, time.Millisecond)
	defer p.stop()

	results := make(chan taskResult, 1)
	ok := p.submit(&taskEnvelope{
		ctx:  context.Background(),
		task: &models.AgentTask{TaskID: "t1", AgentType: models.AgentTypeValidator},
		done: func(res taskResult) { results <- res },
	})
	require.True(t, ok)

	select {
	case res := <-results:
		require.NoError(t, res.err)
		assert.Equal(t, models.TaskStatusSucceeded, res.task.Status)
		assert.Equal(t, 3, res.task.Attempts)
	case <-time.After(5 * time.Second):
		t.Fatal("task never completed")
	}
}

func TestPoolExhaustsRetries(t *testing.T) {
	r := NewRegistry()
	broken := &stubRuntime{
		registration: models.AgentRegistration{
			AgentID: "broken", AgentType: models.AgentTypeValidator, MaxConcurrentTasks: 1,
		},
		execute: func(_ context.Context, _ *models.AgentTask) (*models.Verdict, error) {
			return nil, errors.New("permanent")
		},
	}
	require.NoError(t, r.Register(broken))

	p := newPool(r, nil, testLogger(), 1, 8, 2, time.Second, time.Millisecond)
	defer p.stop()

	results := make(chan taskResult, 1)
	require.True(t, p.submit(&taskEnvelope{
		ctx:  context.Background(),
		task: &models.AgentTask{TaskID: "t1", AgentType: models.AgentTypeValidator},
		done: func(res taskResult) { results <- res },
	}))

	select {
	case res := <-results:
		require.Error(t, res.err)
		assert.Equal(t, models.TaskStatusFailed, res.task.Status)
	case <-time.After(5 * time.Second):
		t.Fatal("task never settled")
	}
}

func TestAggregateIsDeterministic(t *testing.T) {
	verdicts := map[models.AgentType]*models.Verdict{
		models.AgentTypeValidator: {
			ConfidenceScore: 0.95,
			Validator:       &models.ValidatorVerdict{IsValid: true},
		},
		models.AgentTypeDependency: {
			ConfidenceScore: 0.9,
			Dependency:      &models.DependencyVerdict{IsValid: true},
		},
		models.AgentTypeSemantic: {
			ConfidenceScore: 0.9,
			Semantic:        &models.SemanticVerdict{},
		},
		models.AgentTypeImpact: {
			ConfidenceScore: 0.9,
			Impact: &models.ImpactVerdict{
				Analysis: &models.ImpactAnalysis{Severity: models.SeverityLow},
			},
		},
		models.AgentTypeMutation: {
			ConfidenceScore: 0.9,
			Mutation:        &models.MutationVerdict{Success: true},
		},
	}
	required := models.RequiredAgentTypes()

	first := Aggregate(verdicts, required, 0.85)
	assert.True(t, first.AutoApply)
	assert.False(t, first.Terminate)
	assert.InDelta(t, 0.9, first.MinConfidence, 1e-9)

	for n := 0; n < 10; n++ {
		assert.Equal(t, first, Aggregate(verdicts, required, 0.85))
	}

	// Same verdicts under a stricter threshold flip the decision.
	strict := Aggregate(verdicts, required, 0.95)
	assert.False(t, strict.AutoApply)
}

func TestAggregateDeniesOnCriticalCycle(t *testing.T) {
	verdicts := map[models.AgentType]*models.Verdict{
		models.AgentTypeValidator: {
			ConfidenceScore: 0.95,
			Validator:       &models.ValidatorVerdict{IsValid: true},
		},
		models.AgentTypeDependency: {
			ConfidenceScore: 0.95,
			Dependency: &models.DependencyVerdict{
				CircularDependencies: []models.CircularDependency{
					{Cycle: []string{"a", "b", "a"}, Severity: models.SeverityCritical},
				},
			},
		},
	}
	d := Aggregate(verdicts, []models.AgentType{models.AgentTypeValidator, models.AgentTypeDependency}, 0.85)
	assert.True(t, d.Terminate)
	assert.False(t, d.AutoApply)
	assert.NotEmpty(t, d.ValidationErrors)
}

func TestAggregateMissingVerdictBlocksAutoApply(t *testing.T) {
	verdicts := map[models.AgentType]*models.Verdict{
		models.AgentTypeValidator: {
			ConfidenceScore: 0.95,
			Validator:       &models.ValidatorVerdict{IsValid: true},
		},
	}
	d := Aggregate(verdicts, []models.AgentType{models.AgentTypeValidator, models.AgentTypeImpact}, 0.85)
	assert.False(t, d.AutoApply)
	assert.False(t, d.Terminate)
	assert.Zero(t, d.MinConfidence)
}

func TestAggregateHighRiskFactorDeniesAutoApply(t *testing.T) {
	verdicts := map[models.AgentType]*models.Verdict{
		models.AgentTypeMutation: {
			ConfidenceScore: 0.95,
			Mutation: &models.MutationVerdict{
				Success: true,
				RiskFactors: []models.RiskFactor{
					{Description: "drops half the graph", Severity: models.SeverityHigh},
				},
			},
		},
	}
	d := Aggregate(verdicts, []models.AgentType{models.AgentTypeMutation}, 0.85)
	assert.False(t, d.AutoApply)
	assert.False(t, d.Terminate)
}

func TestAggregateTracksWorstSeverity(t *testing.T) {
	verdicts := map[models.AgentType]*models.Verdict{
		models.AgentTypeMutation: {
			ConfidenceScore: 0.95,
			Mutation: &models.MutationVerdict{
				Success: true,
				RiskFactors: []models.RiskFactor{
					{Description: "minor rename", Severity: models.SeverityLow},
				},
			},
		},
		models.AgentTypeImpact: {
			ConfidenceScore: 0.95,
			Impact: &models.ImpactVerdict{
				Analysis: &models.ImpactAnalysis{Severity: models.SeverityCritical},
			},
		},
	}
	d := Aggregate(verdicts, []models.AgentType{models.AgentTypeMutation, models.AgentTypeImpact}, 0.85)
	assert.Equal(t, models.SeverityCritical, d.MaxSeverity)
	assert.False(t, d.AutoApply)
}

func TestPriorityForCoversAllBands(t *testing.T) {
	tests := []struct {
		name     string
		decision Decision
		want     models.ApprovalPriority
	}{
		{"critical severity", Decision{MaxSeverity: models.SeverityCritical, MinConfidence: 0.9}, models.PriorityCritical},
		{"missing verdict", Decision{MinConfidence: 0}, models.PriorityHigh},
		{"low confidence", Decision{MinConfidence: 0.3}, models.PriorityHigh},
		{"many denials", Decision{MinConfidence: 0.8, Reasons: []string{"a", "b", "c"}}, models.PriorityHigh},
		{"confident near-miss", Decision{MinConfidence: 0.8, Reasons: []string{"a"}}, models.PriorityLow},
		{"middling", Decision{MinConfidence: 0.6, Reasons: []string{"a", "b"}}, models.PriorityNormal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, priorityFor(tt.decision))
		})
	}
}
