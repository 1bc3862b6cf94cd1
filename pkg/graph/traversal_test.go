package graph

import (
	"testing"

	"github.com/specforge/specforge/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mixedSnap() *models.GraphSnapshot {
	// a -> b -> d, a -> c -> d, plus a conflicts_with shortcut a -> d.
	snap := &models.GraphSnapshot{}
	for _, id := range []string{"a", "b", "c", "d"} {
		snap.Nodes = append(snap.Nodes, &models.Node{ID: id, Kind: models.NodeKindModule, Name: id})
	}
	snap.Edges = []*models.Edge{
		{ID: "e1", SourceID: "a", TargetID: "b", Kind: models.EdgeKindDependsOn},
		{ID: "e2", SourceID: "b", TargetID: "d", Kind: models.EdgeKindDependsOn},
		{ID: "e3", SourceID: "a", TargetID: "c", Kind: models.EdgeKindRefines},
		{ID: "e4", SourceID: "c", TargetID: "d", Kind: models.EdgeKindRefines},
		{ID: "e5", SourceID: "a", TargetID: "d", Kind: models.EdgeKindConflictsWith},
	}
	return snap
}

func TestBFSOrder(t *testing.T) {
	tr := NewTraverser(mixedSnap(), 0)
	assert.Equal(t, []string{"a", "b", "c", "d"}, tr.BFS("a"))
}

func TestDFSOrder(t *testing.T) {
	tr := NewTraverser(mixedSnap(), 0)
	assert.Equal(t, []string{"a", "b", "d", "c"}, tr.DFS("a"))
}

func TestBFSDepthCap(t *testing.T) {
	// Chain a -> b -> c with depth cap 1 stops at b.
	snap := snapFrom(models.EdgeKindDependsOn, []string{"a", "b", "c"},
		[][2]string{{"a", "b"}, {"b", "c"}})
	tr := NewTraverser(snap, 1)
	assert.Equal(t, []string{"a", "b"}, tr.BFS("a"))
}

func TestReachable(t *testing.T) {
	tr := NewTraverser(mixedSnap(), 0)
	assert.True(t, tr.Reachable("a", "d"))
	assert.False(t, tr.Reachable("d", "a"))
	assert.True(t, tr.Reachable("b", "b"))
}

func TestShortestPathIsHopMinimal(t *testing.T) {
	tr := NewTraverser(mixedSnap(), 0)
	// Direct conflicts_with edge is the hop-minimal route.
	assert.Equal(t, []string{"a", "d"}, tr.ShortestPath("a", "d"))
	assert.Nil(t, tr.ShortestPath("d", "a"))
	assert.Equal(t, []string{"b"}, tr.ShortestPath("b", "b"))
}

func TestCheapestPathAvoidsConflictEdges(t *testing.T) {
	tr := NewTraverser(mixedSnap(), 0)
	// conflicts_with weighs 5.0; the depends_on route a->b->d costs 2.0.
	assert.Equal(t, []string{"a", "b", "d"}, tr.CheapestPath("a", "d"))
}

func TestAllPaths(t *testing.T) {
	tr := NewTraverser(mixedSnap(), 0)
	paths := tr.AllPaths("a", "d")
	assert.ElementsMatch(t, [][]string{
		{"a", "b", "d"},
		{"a", "c", "d"},
		{"a", "d"},
	}, paths)
}

func TestStronglyConnectedComponents(t *testing.T) {
	// b <-> c form one SCC; a and d are singletons.
	snap := snapFrom(models.EdgeKindDependsOn, []string{"a", "b", "c", "d"},
		[][2]string{{"a", "b"}, {"b", "c"}, {"c", "b"}, {"c", "d"}})
	tr := NewTraverser(snap, 0)

	components := tr.StronglyConnectedComponents()
	require.Len(t, components, 3)
	assert.Equal(t, []string{"a"}, components[0])
	assert.Equal(t, []string{"b", "c"}, components[1])
	assert.Equal(t, []string{"d"}, components[2])
}
