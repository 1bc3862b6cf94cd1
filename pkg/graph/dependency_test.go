package graph

import (
	"testing"

	"github.com/specforge/specforge/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// snapFrom builds a snapshot from shorthand edges "a>b" of the given kind.
func snapFrom(kind models.EdgeKind, nodeIDs []string, pairs [][2]string) *models.GraphSnapshot {
	snap := &models.GraphSnapshot{}
	for _, id := range nodeIDs {
		snap.Nodes = append(snap.Nodes, &models.Node{ID: id, Kind: models.NodeKindModule, Name: id})
	}
	for i, p := range pairs {
		snap.Edges = append(snap.Edges, &models.Edge{
			ID:       "e" + string(rune('0'+i)),
			SourceID: p[0],
			TargetID: p[1],
			Kind:     kind,
		})
	}
	return snap
}

func TestResolveDependenciesOrdersEdges(t *testing.T) {
	// a -> b -> c, a -> c
	snap := snapFrom(models.EdgeKindDependsOn, []string{"a", "b", "c"},
		[][2]string{{"a", "b"}, {"b", "c"}, {"a", "c"}})
	r := NewDependencyResolver(snap)

	order, err := r.ResolveDependencies(nil)
	require.NoError(t, err)
	require.Len(t, order, 3)

	pos := make(map[string]int, len(order))
	for i, id := range order {
		pos[id] = i
	}
	// For every edge u -> v, u precedes v.
	assert.Less(t, pos["a"], pos["b"])
	assert.Less(t, pos["b"], pos["c"])
	assert.Less(t, pos["a"], pos["c"])
}

func TestResolveDependenciesRestrictsToClosure(t *testing.T) {
	// a -> b; isolated x
	snap := snapFrom(models.EdgeKindDependsOn, []string{"a", "b", "x"},
		[][2]string{{"a", "b"}})
	r := NewDependencyResolver(snap)

	order, err := r.ResolveDependencies([]string{"a"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, order)
}

func TestResolveDependenciesCycleFails(t *testing.T) {
	// S4: edges A -> B and B -> A, both depends_on. Resolution fails with a
	// DependencyError whose payload contains the cycle [A, B, A] with
	// severity high.
	snap := snapFrom(models.EdgeKindDependsOn, []string{"A", "B"},
		[][2]string{{"A", "B"}, {"B", "A"}})
	r := NewDependencyResolver(snap)

	_, err := r.ResolveDependencies([]string{"A", "B"})
	require.Error(t, err)

	var depErr *DependencyError
	require.ErrorAs(t, err, &depErr)
	require.Len(t, depErr.Cycles, 1)
	assert.Equal(t, []string{"A", "B", "A"}, depErr.Cycles[0].Cycle)
	assert.Equal(t, models.SeverityHigh, depErr.Cycles[0].Severity)
}

func TestDetectCyclesEnumeratesAll(t *testing.T) {
	// Two distinct cycles sharing node b: a->b->a and b->c->d->b.
	snap := snapFrom(models.EdgeKindDependsOn, []string{"a", "b", "c", "d"},
		[][2]string{{"a", "b"}, {"b", "a"}, {"b", "c"}, {"c", "d"}, {"d", "b"}})
	r := NewDependencyResolver(snap)

	cycles := r.DetectCycles()
	require.Len(t, cycles, 2)

	assert.Equal(t, []string{"a", "b", "a"}, cycles[0].Cycle)
	assert.Equal(t, models.SeverityHigh, cycles[0].Severity)

	assert.Equal(t, []string{"b", "c", "d", "b"}, cycles[1].Cycle)
	assert.Equal(t, models.SeverityMedium, cycles[1].Severity)
}

func TestDetectCyclesSelfLoop(t *testing.T) {
	snap := snapFrom(models.EdgeKindDependsOn, []string{"a"}, [][2]string{{"a", "a"}})
	r := NewDependencyResolver(snap)

	cycles := r.DetectCycles()
	require.Len(t, cycles, 1)
	assert.Equal(t, []string{"a", "a"}, cycles[0].Cycle)
	assert.Equal(t, models.SeverityHigh, cycles[0].Severity)
	assert.True(t, r.HasCycle())
}

func TestDetectCyclesAcyclic(t *testing.T) {
	snap := snapFrom(models.EdgeKindDependsOn, []string{"a", "b", "c"},
		[][2]string{{"a", "b"}, {"b", "c"}})
	r := NewDependencyResolver(snap)

	assert.Empty(t, r.DetectCycles())
	assert.False(t, r.HasCycle())
}

func TestNonDependencyEdgesIgnored(t *testing.T) {
	// conflicts_with edges never form dependency cycles.
	snap := snapFrom(models.EdgeKindConflictsWith, []string{"a", "b"},
		[][2]string{{"a", "b"}, {"b", "a"}})
	r := NewDependencyResolver(snap)

	assert.Empty(t, r.DetectCycles())
	order, err := r.ResolveDependencies(nil)
	require.NoError(t, err)
	assert.Len(t, order, 2)
}

func TestDependencyDepth(t *testing.T) {
	// a -> b -> c: a has depth 2, b 1, c 0.
	snap := snapFrom(models.EdgeKindDependsOn, []string{"a", "b", "c"},
		[][2]string{{"a", "b"}, {"b", "c"}})
	r := NewDependencyResolver(snap)

	assert.Equal(t, 2, r.Depth("a"))
	assert.Equal(t, 1, r.Depth("b"))
	assert.Equal(t, 0, r.Depth("c"))
}

func TestDependencyDepthOnCycleTerminates(t *testing.T) {
	snap := snapFrom(models.EdgeKindDependsOn, []string{"a", "b"},
		[][2]string{{"a", "b"}, {"b", "a"}})
	r := NewDependencyResolver(snap)

	// Must terminate; exact value on a cycle is not meaningful.
	_ = r.Depth("a")
	_ = r.Depth("b")
}
