package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/specforge/specforge/pkg/agent"
	"github.com/specforge/specforge/pkg/models"
)

// registeredAgent pairs a runtime with its registration and live counter.
type registeredAgent struct {
	runtime  agent.Runtime
	reg      models.AgentRegistration
	inflight atomic.Int64
}

// Registry tracks registered agents and hands out execution slots. Acquire
// blocks while every agent of a type is at capacity, which is what bounds a
// task's wait.
type Registry struct {
	mu     sync.Mutex
	cond   *sync.Cond
	agents map[string]*registeredAgent
	byType map[models.AgentType][]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	r := &Registry{
		agents: make(map[string]*registeredAgent),
		byType: make(map[models.AgentType][]string),
	}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// Register adds an agent. The registration's capability schemas are compiled
// up front so malformed schemas surface here, not mid-task.
func (r *Registry) Register(runtime agent.Runtime) error {
	reg := runtime.Registration()
	if reg.AgentID == "" {
		return fmt.Errorf("agent id is required")
	}
	if !reg.AgentType.Valid() {
		return fmt.Errorf("unknown agent type %q", reg.AgentType)
	}
	if reg.MaxConcurrentTasks <= 0 {
		reg.MaxConcurrentTasks = 1
	}
	if err := agent.CompileCapabilitySchemas(reg.Capabilities); err != nil {
		return fmt.Errorf("agent %s: %w", reg.AgentID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.agents[reg.AgentID]; exists {
		return fmt.Errorf("agent %s already registered", reg.AgentID)
	}
	r.agents[reg.AgentID] = &registeredAgent{runtime: runtime, reg: reg}
	r.byType[reg.AgentType] = append(r.byType[reg.AgentType], reg.AgentID)
	sort.Strings(r.byType[reg.AgentType])
	r.cond.Broadcast()
	return nil
}

// Unregister removes an agent. In-flight tasks on it run to completion.
func (r *Registry) Unregister(agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.agents[agentID]
	if !ok {
		return
	}
	delete(r.agents, agentID)
	ids := r.byType[entry.reg.AgentType][:0]
	for _, id := range r.byType[entry.reg.AgentType] {
		if id != agentID {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		delete(r.byType, entry.reg.AgentType)
	} else {
		r.byType[entry.reg.AgentType] = ids
	}
}

// Size returns the number of registered agents.
func (r *Registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.agents)
}

// HasType reports whether at least one agent of the type is registered.
func (r *Registry) HasType(agentType models.AgentType) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byType[agentType]) > 0
}

// Acquire blocks until an agent of the type has a free slot, then claims it.
// Selection order: highest priority first, lowest in-flight count as the
// tiebreak. Returns an error when the context ends or no agent of the type is
// registered.
func (r *Registry) Acquire(ctx context.Context, agentType models.AgentType) (*registeredAgent, error) {
	// The cond has no context awareness; a watcher goroutine wakes the wait
	// loop when the caller gives up.
	stop := context.AfterFunc(ctx, func() { r.cond.Broadcast() })
	defer stop()

	r.mu.Lock()
	defer r.mu.Unlock()
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(r.byType[agentType]) == 0 {
			return nil, fmt.Errorf("no %s agent registered", agentType)
		}
		if best := r.selectLocked(agentType); best != nil {
			best.inflight.Add(1)
			return best, nil
		}
		r.cond.Wait()
	}
}

// Release returns a claimed slot and wakes waiters.
func (r *Registry) Release(a *registeredAgent) {
	a.inflight.Add(-1)
	r.mu.Lock()
	r.cond.Broadcast()
	r.mu.Unlock()
}

// InFlight returns the agent's current in-flight count, for introspection.
func (r *Registry) InFlight(agentID string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.agents[agentID]; ok {
		return entry.inflight.Load()
	}
	return 0
}

func (r *Registry) selectLocked(agentType models.AgentType) *registeredAgent {
	var best *registeredAgent
	for _, id := range r.byType[agentType] {
		candidate := r.agents[id]
		if candidate.inflight.Load() >= int64(candidate.reg.MaxConcurrentTasks) {
			continue
		}
		if best == nil {
			best = candidate
			continue
		}
		if candidate.reg.Priority > best.reg.Priority ||
			(candidate.reg.Priority == best.reg.Priority &&
				candidate.inflight.Load() < best.inflight.Load()) {
			best = candidate
		}
	}
	return best
}
