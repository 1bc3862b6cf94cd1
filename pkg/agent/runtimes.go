package agent

import (
	"log/slog"

	"github.com/specforge/specforge/pkg/graph"
	"github.com/specforge/specforge/pkg/llm"
	"github.com/specforge/specforge/pkg/semantic"
)

// DefaultRuntimes builds one agent of every type sharing the same model
// client and config. This is the standard single-process deployment shape;
// additional agents can be registered alongside for capacity.
func DefaultRuntimes(repo graph.Repository, index *semantic.Index, client llm.Client, cfg Config, logger *slog.Logger) []Runtime {
	return []Runtime{
		NewValidatorAgent("validator-1", repo, client, cfg, logger),
		NewDependencyAgent("dependency-1", repo, client, cfg, logger),
		NewSemanticAgent("semantic-1", index, client, cfg, logger),
		NewMutationAgent("mutation-1", client, cfg, logger),
		NewImpactAgent("impact-1", repo, client, cfg, logger),
		NewConflictAgent("conflict-1", repo, client, cfg, logger),
	}
}
