package graph

import (
	"testing"

	"github.com/specforge/specforge/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzeImpactDirectAndTransitive(t *testing.T) {
	// c <- b <- a (a depends on b depends on c); changing c affects b
	// directly and a transitively.
	snap := snapFrom(models.EdgeKindDependsOn, []string{"a", "b", "c", "x"},
		[][2]string{{"a", "b"}, {"b", "c"}})

	analysis := AnalyzeImpact(snap, []string{"c"})
	require.NotNil(t, analysis)
	assert.Equal(t, []string{"b"}, analysis.DirectlyAffected)
	assert.Equal(t, []string{"a", "b"}, analysis.TransitivelyAffected)
	assert.InDelta(t, 0.5, analysis.ImpactRatio, 1e-9) // 2 of 4 nodes
	assert.Equal(t, models.SeverityHigh, analysis.Severity)
}

func TestAnalyzeImpactSeverityBands(t *testing.T) {
	// 10 nodes, chain edge only into one dependent: ratio 0.1 -> low.
	ids := []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"}
	snap := snapFrom(models.EdgeKindDependsOn, ids, [][2]string{{"a", "b"}})

	analysis := AnalyzeImpact(snap, []string{"b"})
	assert.Equal(t, []string{"a"}, analysis.TransitivelyAffected)
	assert.InDelta(t, 0.1, analysis.ImpactRatio, 1e-9)
	assert.Equal(t, models.SeverityLow, analysis.Severity)
}

func TestAnalyzeImpactNoDependents(t *testing.T) {
	snap := snapFrom(models.EdgeKindDependsOn, []string{"a", "b"}, [][2]string{{"a", "b"}})

	analysis := AnalyzeImpact(snap, []string{"a"})
	assert.Empty(t, analysis.DirectlyAffected)
	assert.Empty(t, analysis.TransitivelyAffected)
	assert.Zero(t, analysis.ImpactRatio)
	assert.Equal(t, models.SeverityLow, analysis.Severity)
}

func TestAnalyzeImpactIgnoresNonDependencyEdges(t *testing.T) {
	snap := snapFrom(models.EdgeKindMonitors, []string{"a", "b"}, [][2]string{{"a", "b"}})

	analysis := AnalyzeImpact(snap, []string{"b"})
	assert.Empty(t, analysis.TransitivelyAffected)
}

func TestAnalyzeImpactEmptyGraph(t *testing.T) {
	analysis := AnalyzeImpact(&models.GraphSnapshot{}, []string{"ghost"})
	assert.Zero(t, analysis.ImpactRatio)
	assert.Equal(t, models.SeverityLow, analysis.Severity)
}
