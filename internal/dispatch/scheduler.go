package dispatch

import (
	"context"
	"fmt"
	"time"

	logx "botswarm/pkg/logx"
)

const (
	// DefaultMaxConcurrent bounds how many execution units run inside one
	// wave.
	DefaultMaxConcurrent = 4
	// DefaultTaskTimeout is the hard per-unit deadline.
	DefaultTaskTimeout = 60 * time.Second
)

// unitRunner is what the scheduler drives. *Runner satisfies it; tests swap
// in cheaper implementations.
type unitRunner interface {
	RunTask(ctx context.Context, t Task) []Outcome
}

// Scheduler drains a task queue in strictly sequential waves of at most
// maxConcurrent units. Each unit gets its own deadline; a unit that misses
// it is force-terminated and its participants get synthesized timeout
// outcomes.
type Scheduler struct {
	runner        unitRunner
	maxConcurrent int
	taskTimeout   time.Duration
	log           logx.Logger
	metrics       Metrics
}

func NewScheduler(runner unitRunner, maxConcurrent int, taskTimeout time.Duration, metrics Metrics, log logx.Logger) *Scheduler {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	if taskTimeout <= 0 {
		taskTimeout = DefaultTaskTimeout
	}
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &Scheduler{
		runner:        runner,
		maxConcurrent: maxConcurrent,
		taskTimeout:   taskTimeout,
		metrics:       metrics,
		log:           log,
	}
}

// Run executes every task and returns one outcome per participant across all
// tasks. Wave n+1 does not start before wave n fully settles, timeouts
// included.
func (s *Scheduler) Run(ctx context.Context, tasks []Task) []Outcome {
	var all []Outcome
	wave := 0
	for start := 0; start < len(tasks); start += s.maxConcurrent {
		end := start + s.maxConcurrent
		if end > len(tasks) {
			end = len(tasks)
		}
		wave++
		began := time.Now()
		s.log.Info("wave started",
			logx.Int("wave", wave),
			logx.Int("tasks", end-start))

		all = append(all, s.runWave(ctx, tasks[start:end])...)

		s.metrics.WaveFinished(time.Since(began))
		s.log.Info("wave settled",
			logx.Int("wave", wave),
			logx.Duration("took", time.Since(began)))
	}
	return all
}

func (s *Scheduler) runWave(ctx context.Context, wave []Task) []Outcome {
	cells := make([]chan []Outcome, len(wave))
	ctxs := make([]context.Context, len(wave))
	cancels := make([]context.CancelFunc, len(wave))

	for i, t := range wave {
		// Single-shot result cell: the buffered slot means the one writer
		// never blocks, and a result landing after the deadline has passed
		// is simply never read.
		cells[i] = make(chan []Outcome, 1)
		ctxs[i], cancels[i] = context.WithTimeout(ctx, s.taskTimeout)

		s.metrics.UnitStarted()
		go func(t Task, cell chan []Outcome, taskCtx context.Context) {
			defer func() {
				if rec := recover(); rec != nil {
					cell <- synthesize(t, fmt.Sprintf("%s: %v", ReasonWorkerFault, rec))
				}
			}()
			cell <- s.runner.RunTask(taskCtx, t)
		}(t, cells[i], ctxs[i])
	}

	var results []Outcome
	for i, t := range wave {
		select {
		case outs := <-cells[i]:
			results = append(results, outs...)
		case <-ctxs[i].Done():
			// Deadline and a real result can race; prefer the result if it
			// made it into the cell.
			select {
			case outs := <-cells[i]:
				results = append(results, outs...)
			default:
				s.log.Warn("unit timed out",
					logx.String("engine", t.Engine.String()),
					logx.Int("participants", len(t.Participants)),
					logx.Duration("timeout", s.taskTimeout))
				results = append(results, synthesize(t, ReasonTimeout)...)
			}
		}
		cancels[i]()
		s.metrics.UnitFinished()
	}
	return results
}

// synthesize produces one failure outcome per participant of the task.
func synthesize(t Task, reason string) []Outcome {
	outs := make([]Outcome, len(t.Participants))
	for i, p := range t.Participants {
		outs[i] = Outcome{ParticipantID: p.ID, Success: false, Engine: t.Engine, Reason: reason}
	}
	return outs
}
