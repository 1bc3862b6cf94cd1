package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/specforge/specforge/pkg/graph"
	"github.com/specforge/specforge/pkg/llm"
	"github.com/specforge/specforge/pkg/models"
	"github.com/specforge/specforge/pkg/semantic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubLLM returns a canned response or error.
type stubLLM struct {
	content string
	err     error
	calls   int
}

func (s *stubLLM) Complete(_ context.Context, _ llm.Request) (*llm.Response, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &llm.Response{Content: s.content, Model: "stub"}, nil
}

func seedGraph(t *testing.T) graph.Repository {
	t.Helper()
	ctx := context.Background()
	repo := graph.NewMemoryRepository()
	for _, id := range []string{"a", "b", "c"} {
		_, err := repo.CreateNode(ctx, &models.Node{
			ID: id, Kind: models.NodeKindModule, Name: "Module " + id,
			Description: "module " + id,
		})
		require.NoError(t, err)
	}
	// a depends on b, b depends on c
	for _, pair := range [][2]string{{"a", "b"}, {"b", "c"}} {
		_, err := repo.CreateEdge(ctx, &models.Edge{
			SourceID: pair[0], TargetID: pair[1], Kind: models.EdgeKindDependsOn,
		})
		require.NoError(t, err)
	}
	return repo
}

func createTask(node *models.Node, edges ...*models.Edge) *models.AgentTask {
	return &models.AgentTask{
		TaskID:     "task-1",
		ProposalID: "prop-1",
		Proposal: &models.MutationProposal{
			ProposalID:    "prop-1",
			SpecID:        "spec-1",
			OperationType: models.OperationCreate,
			ProposedChanges: &models.ProposedChange{
				Node:     node,
				NewEdges: edges,
			},
		},
	}
}

func TestValidatorPrimaryPathParsesModelVerdict(t *testing.T) {
	repo := seedGraph(t)
	client := &stubLLM{content: "```json\n" +
		`{"confidence_score": 0.92, "reasoning": "ok", "validator": {"is_valid": true}}` + "\n```"}
	a := NewValidatorAgent("v1", repo, client, Config{PrimaryModel: "m"}, nil)

	verdict, err := a.Execute(context.Background(),
		createTask(&models.Node{ID: "d", Kind: models.NodeKindModule, Name: "D"}))
	require.NoError(t, err)

	assert.False(t, verdict.FallbackMode)
	assert.InDelta(t, 0.92, verdict.ConfidenceScore, 1e-9)
	require.NotNil(t, verdict.Validator)
	assert.True(t, verdict.Validator.IsValid)
	assert.Equal(t, "task-1", verdict.TaskID)
	assert.Equal(t, "v1", verdict.AgentID)
}

func TestValidatorFallsBackWhenModelFails(t *testing.T) {
	repo := seedGraph(t)
	client := &stubLLM{err: errors.New("model unavailable")}
	a := NewValidatorAgent("v1", repo, client, Config{PrimaryModel: "m", FallbackConfidence: 0.6}, nil)

	verdict, err := a.Execute(context.Background(),
		createTask(&models.Node{ID: "d", Kind: models.NodeKindModule, Name: "D"}))
	require.NoError(t, err)

	assert.True(t, verdict.FallbackMode)
	assert.InDelta(t, 0.6, verdict.ConfidenceScore, 1e-9)
	require.NotNil(t, verdict.Validator)
	assert.True(t, verdict.Validator.IsValid)
}

func TestValidatorFallbackRejectsBadProposal(t *testing.T) {
	repo := seedGraph(t)
	a := NewValidatorAgent("v1", repo, nil, Config{}, nil)

	// Duplicate id and unknown kind.
	verdict, err := a.Execute(context.Background(),
		createTask(&models.Node{ID: "a", Kind: "bogus", Name: "A"}))
	require.NoError(t, err)

	require.NotNil(t, verdict.Validator)
	assert.False(t, verdict.Validator.IsValid)
	assert.NotEmpty(t, verdict.Validator.Errors)
}

func TestValidatorRejectsDanglingEdgeEndpoint(t *testing.T) {
	repo := seedGraph(t)
	a := NewValidatorAgent("v1", repo, nil, Config{}, nil)

	verdict, err := a.Execute(context.Background(), createTask(
		&models.Node{ID: "d", Kind: models.NodeKindModule, Name: "D"},
		&models.Edge{SourceID: "d", TargetID: "ghost", Kind: models.EdgeKindDependsOn},
	))
	require.NoError(t, err)
	assert.False(t, verdict.Validator.IsValid)
}

func TestDependencyAgentDetectsIntroducedCycle(t *testing.T) {
	repo := seedGraph(t)
	a := NewDependencyAgent("d1", repo, nil, Config{}, nil)

	// c -> a closes the a -> b -> c chain into a cycle.
	task := createTask(nil, &models.Edge{SourceID: "c", TargetID: "a", Kind: models.EdgeKindDependsOn})
	task.Proposal.OperationType = models.OperationUpdate
	task.Proposal.ProposedChanges.Update = &models.NodeUpdate{}
	task.Proposal.ProposedChanges.Node = &models.Node{ID: "c"}

	verdict, err := a.Execute(context.Background(), task)
	require.NoError(t, err)

	require.NotNil(t, verdict.Dependency)
	assert.False(t, verdict.Dependency.IsValid)
	assert.NotEmpty(t, verdict.Dependency.CircularDependencies)
	assert.NotEmpty(t, verdict.Dependency.ResolutionSuggestions)
}

func TestDependencyAgentCleanGraph(t *testing.T) {
	repo := seedGraph(t)
	a := NewDependencyAgent("d1", repo, nil, Config{}, nil)

	verdict, err := a.Execute(context.Background(),
		createTask(&models.Node{ID: "d", Kind: models.NodeKindModule, Name: "D"}))
	require.NoError(t, err)
	assert.True(t, verdict.Dependency.IsValid)
	assert.Empty(t, verdict.Dependency.CircularDependencies)
}

func TestSemanticAgentFindsRelatedAndDuplicates(t *testing.T) {
	ctx := context.Background()
	repo := seedGraph(t)
	index := semantic.NewIndex(repo, nil, semantic.Options{})
	require.NoError(t, index.Refresh(ctx))

	a := NewSemanticAgent("s1", index, nil, Config{}, nil)
	verdict, err := a.Execute(ctx,
		createTask(&models.Node{ID: "a2", Kind: models.NodeKindModule,
			Name: "Module a", Description: "module a"}))
	require.NoError(t, err)

	require.NotNil(t, verdict.Semantic)
	assert.Contains(t, verdict.Semantic.RelatedNodeIDs, "a")
	assert.Contains(t, verdict.Semantic.Duplicates, "a")
}

func TestMutationAgentPlansCreateWithRollback(t *testing.T) {
	a := NewMutationAgent("m1", nil, Config{}, nil)
	verdict, err := a.Execute(context.Background(), createTask(
		&models.Node{ID: "d", Kind: models.NodeKindModule, Name: "D"},
		&models.Edge{ID: "e1", SourceID: "d", TargetID: "a", Kind: models.EdgeKindDependsOn},
	))
	require.NoError(t, err)

	require.NotNil(t, verdict.Mutation)
	assert.True(t, verdict.Mutation.Success)
	require.NotNil(t, verdict.Mutation.Plan)
	assert.Len(t, verdict.Mutation.Plan.Steps, 2)
	assert.NotEmpty(t, verdict.Mutation.Plan.RollbackPlan)
}

func TestImpactAgentPropagatesReverseDependencies(t *testing.T) {
	repo := seedGraph(t)
	a := NewImpactAgent("i1", repo, nil, Config{}, nil)

	// Changing c affects b directly and a transitively.
	task := createTask(&models.Node{ID: "c", Kind: models.NodeKindModule, Name: "C"})
	task.Proposal.OperationType = models.OperationUpdate
	task.Proposal.ProposedChanges.Update = &models.NodeUpdate{}

	verdict, err := a.Execute(context.Background(), task)
	require.NoError(t, err)

	require.NotNil(t, verdict.Impact)
	require.NotNil(t, verdict.Impact.Analysis)
	assert.Equal(t, []string{"b"}, verdict.Impact.Analysis.DirectlyAffected)
	assert.Equal(t, []string{"a", "b"}, verdict.Impact.Analysis.TransitivelyAffected)
}

func TestConflictAgentDetectsStaleBase(t *testing.T) {
	ctx := context.Background()
	repo := seedGraph(t)
	a := NewConflictAgent("c1", repo, nil, Config{}, nil)

	name := "Renamed"
	task := createTask(&models.Node{ID: "a"})
	task.Proposal.OperationType = models.OperationUpdate
	task.Proposal.CurrentVersion = "stale-version"
	task.Proposal.ProposedChanges.Update = &models.NodeUpdate{Name: &name}

	verdict, err := a.Execute(ctx, task)
	require.NoError(t, err)

	require.NotNil(t, verdict.Conflict)
	assert.True(t, verdict.Conflict.HasConflict)
	assert.Contains(t, verdict.Conflict.ConflictingFields, "name")
	assert.NotEmpty(t, verdict.Conflict.Resolutions)
}

func TestConflictAgentNoConflictWithoutBaseVersion(t *testing.T) {
	repo := seedGraph(t)
	a := NewConflictAgent("c1", repo, nil, Config{}, nil)

	name := "Renamed"
	task := createTask(&models.Node{ID: "a"})
	task.Proposal.OperationType = models.OperationUpdate
	task.Proposal.ProposedChanges.Update = &models.NodeUpdate{Name: &name}

	verdict, err := a.Execute(context.Background(), task)
	require.NoError(t, err)
	assert.False(t, verdict.Conflict.HasConflict)
}

func TestExecuteTimesOutAsTypedError(t *testing.T) {
	repo := seedGraph(t)
	client := &stubLLM{err: errors.New("slow model")}
	a := NewValidatorAgent("v1", repo, client, Config{PrimaryModel: "m"}, nil)

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	_, err := a.Execute(ctx, createTask(&models.Node{ID: "d", Kind: models.NodeKindModule, Name: "D"}))
	assert.True(t, IsAgentTimeout(err))
}

func TestPrimaryRetriesWithFallbackModel(t *testing.T) {
	repo := seedGraph(t)
	client := &stubLLM{err: errors.New("overloaded")}
	a := NewValidatorAgent("v1", repo, client,
		Config{PrimaryModel: "primary", FallbackModel: "backup"}, nil)

	_, err := a.Execute(context.Background(),
		createTask(&models.Node{ID: "d", Kind: models.NodeKindModule, Name: "D"}))
	require.NoError(t, err)
	assert.Equal(t, 2, client.calls)
}

func TestMalformedModelOutputTriggersFallback(t *testing.T) {
	repo := seedGraph(t)
	client := &stubLLM{content: "I think the proposal looks fine!"}
	a := NewValidatorAgent("v1", repo, client, Config{PrimaryModel: "m"}, nil)

	verdict, err := a.Execute(context.Background(),
		createTask(&models.Node{ID: "d", Kind: models.NodeKindModule, Name: "D"}))
	require.NoError(t, err)
	assert.True(t, verdict.FallbackMode)
}

func TestCompileCapabilitySchemas(t *testing.T) {
	a := NewValidatorAgent("v1", graph.NewMemoryRepository(), nil, Config{}, nil)
	assert.NoError(t, CompileCapabilitySchemas(a.Registration().Capabilities))

	bad := []models.Capability{{Name: "broken", InputSchema: `{"type": ["not-a-type"]}`}}
	assert.Error(t, CompileCapabilitySchemas(bad))
}

func TestExecuteRejectsInputViolatingCapabilitySchema(t *testing.T) {
	repo := seedGraph(t)
	a := NewValidatorAgent("v1", repo, nil, Config{}, nil)

	task := createTask(&models.Node{ID: "d", Kind: models.NodeKindModule, Name: "D"})
	task.Proposal.OperationType = "rename"

	_, err := a.Execute(context.Background(), task)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "capability schema")
}

func TestPrimaryOutputViolatingSchemaTriggersFallback(t *testing.T) {
	client := &stubLLM{content: `{"confidence_score": 0.9,` +
		` "mutation": {"success": true, "feasibility_score": 3, "complexity_score": 0.1}}`}
	a := NewMutationAgent("m1", client, Config{PrimaryModel: "m"}, nil)

	verdict, err := a.Execute(context.Background(), createTask(
		&models.Node{ID: "d", Kind: models.NodeKindModule, Name: "D"},
	))
	require.NoError(t, err)

	assert.True(t, verdict.FallbackMode)
	require.NotNil(t, verdict.Mutation)
	assert.LessOrEqual(t, verdict.Mutation.FeasibilityScore, 1.0)
}
