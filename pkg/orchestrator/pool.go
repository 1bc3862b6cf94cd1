package orchestrator

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/specforge/specforge/pkg/agent"
	"github.com/specforge/specforge/pkg/metrics"
	"github.com/specforge/specforge/pkg/models"
)

// taskResult is what a finished task reports back to its proposal run.
type taskResult struct {
	task    *models.AgentTask
	verdict *models.Verdict
	err     error
}

// taskEnvelope is one queued unit of work.
type taskEnvelope struct {
	ctx  context.Context
	task *models.AgentTask
	done func(res taskResult)
}

// pool is the global worker pool executing agent tasks. Workers draw from one
// bounded queue; per-agent capacity is enforced by Registry.Acquire.
type pool struct {
	registry *Registry
	metrics  *metrics.Metrics
	logger   *slog.Logger

	taskTimeout   time.Duration
	retryAttempts int
	retryBaseWait time.Duration

	tasks    chan *taskEnvelope
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func newPool(registry *Registry, m *metrics.Metrics, logger *slog.Logger,
	workers, queueSize, retryAttempts int, taskTimeout, retryBaseWait time.Duration) *pool {
	if workers <= 0 {
		workers = DefaultMaxConcurrentAgents
	}
	if queueSize <= 0 {
		queueSize = workers * 4
	}
	if taskTimeout <= 0 {
		taskTimeout = DefaultAgentTimeout
	}
	if retryAttempts <= 0 {
		retryAttempts = DefaultRetryAttempts
	}
	if retryBaseWait <= 0 {
		retryBaseWait = 200 * time.Millisecond
	}
	p := &pool{
		registry:      registry,
		metrics:       m,
		logger:        logger,
		taskTimeout:   taskTimeout,
		retryAttempts: retryAttempts,
		retryBaseWait: retryBaseWait,
		tasks:         make(chan *taskEnvelope, queueSize),
		stopCh:        make(chan struct{}),
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

// submit queues a task. Returns false when the queue is full or the pool is
// stopped.
func (p *pool) submit(env *taskEnvelope) bool {
	select {
	case <-p.stopCh:
		return false
	default:
	}
	select {
	case p.tasks <- env:
		return true
	default:
		return false
	}
}

// stop shuts the workers down and waits for in-flight tasks.
func (p *pool) stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()
}

func (p *pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopCh:
			return
		case env := <-p.tasks:
			p.run(env)
		}
	}
}

// run executes one task with retries. Timeouts get a single retry; other
// failures retry up to retryAttempts. Exhaustion reports the task failed (or
// timed out) so aggregation can treat it as a missing low-confidence opinion.
func (p *pool) run(env *taskEnvelope) {
	task := env.task
	if p.metrics != nil {
		p.metrics.TasksInFlight.WithLabelValues(string(task.AgentType)).Inc()
		defer p.metrics.TasksInFlight.WithLabelValues(string(task.AgentType)).Dec()
	}

	timeoutRetried := false
	for attempt := 1; ; attempt++ {
		task.Attempts = attempt

		if env.ctx.Err() != nil {
			task.Status = models.TaskStatusCancelled
			env.done(taskResult{task: task, err: env.ctx.Err()})
			return
		}

		claimed, err := p.registry.Acquire(env.ctx, task.AgentType)
		if err != nil {
			if env.ctx.Err() != nil {
				task.Status = models.TaskStatusCancelled
			} else {
				task.Status = models.TaskStatusFailed
			}
			env.done(taskResult{task: task, err: err})
			return
		}
		task.AgentID = claimed.reg.AgentID
		task.Status = models.TaskStatusRunning

		taskCtx, cancel := context.WithTimeout(env.ctx, p.taskTimeout)
		verdict, err := claimed.runtime.Execute(taskCtx, task)
		cancel()
		p.registry.Release(claimed)

		if err == nil {
			task.Status = models.TaskStatusSucceeded
			env.done(taskResult{task: task, verdict: verdict})
			return
		}
		if env.ctx.Err() != nil {
			task.Status = models.TaskStatusCancelled
			env.done(taskResult{task: task, err: err})
			return
		}

		if agent.IsAgentTimeout(err) {
			if timeoutRetried {
				task.Status = models.TaskStatusTimedOut
				p.logger.Warn("Agent task timed out",
					"task_id", task.TaskID, "agent_type", string(task.AgentType))
				env.done(taskResult{task: task, err: err})
				return
			}
			timeoutRetried = true
		} else if attempt > p.retryAttempts {
			task.Status = models.TaskStatusFailed
			p.logger.Warn("Agent task failed after retries",
				"task_id", task.TaskID, "agent_type", string(task.AgentType),
				"attempts", attempt, "error", err)
			env.done(taskResult{task: task, err: err})
			return
		}

		if p.metrics != nil {
			p.metrics.TaskRetries.WithLabelValues(string(task.AgentType)).Inc()
		}
		p.logger.Info("Retrying agent task",
			"task_id", task.TaskID, "agent_type", string(task.AgentType),
			"attempt", attempt, "error", err)
		if !p.backoff(env.ctx, attempt) {
			task.Status = models.TaskStatusCancelled
			env.done(taskResult{task: task, err: env.ctx.Err()})
			return
		}
	}
}

// backoff sleeps for an exponentially growing, jittered interval. Returns
// false when the context ended first.
func (p *pool) backoff(ctx context.Context, attempt int) bool {
	wait := p.retryBaseWait << (attempt - 1)
	wait += time.Duration(rand.Int63n(int64(p.retryBaseWait)))
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	case <-p.stopCh:
		return false
	}
}
