package dispatch

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"botswarm/internal/browser"
	logx "botswarm/pkg/logx"
)

// scriptedRunner resolves tasks by participant behavior: IDs in hang block
// until the task context ends, IDs in panics blow up the unit, everything
// else succeeds.
type scriptedRunner struct {
	hang   map[int]bool
	panics map[int]bool

	inflight atomic.Int32
	peak     atomic.Int32
}

func (r *scriptedRunner) RunTask(ctx context.Context, t Task) []Outcome {
	cur := r.inflight.Add(1)
	for {
		p := r.peak.Load()
		if cur <= p || r.peak.CompareAndSwap(p, cur) {
			break
		}
	}
	defer r.inflight.Add(-1)

	for _, p := range t.Participants {
		if r.panics[p.ID] {
			panic("scripted fault")
		}
		if r.hang[p.ID] {
			<-ctx.Done()
		}
	}
	time.Sleep(5 * time.Millisecond)

	outs := make([]Outcome, len(t.Participants))
	for i, p := range t.Participants {
		outs[i] = Outcome{ParticipantID: p.ID, Success: true, Engine: t.Engine}
	}
	return outs
}

func pairTasks(n int) []Task {
	parts := makeParticipants(n)
	m := testMeeting()
	var tasks []Task
	for i := 0; i < n; i += 2 {
		hi := i + 2
		if hi > n {
			hi = n
		}
		tasks = append(tasks, Task{
			Participants: parts[i:hi],
			Meeting:      m,
			JoinToken:    "tok",
			Engine:       browser.Kinds()[(i/2)%3],
		})
	}
	return tasks
}

func TestSchedulerCompleteness(t *testing.T) {
	t.Parallel()
	runner := &scriptedRunner{}
	sched := NewScheduler(runner, 3, time.Second, nil, logx.Nop())
	outs := sched.Run(context.Background(), pairTasks(9))
	if len(outs) != 9 {
		t.Fatalf("outcomes = %d, want 9", len(outs))
	}
	seen := map[int]bool{}
	for _, o := range outs {
		if seen[o.ParticipantID] {
			t.Fatalf("participant %d reported twice", o.ParticipantID)
		}
		seen[o.ParticipantID] = true
	}
}

func TestSchedulerBoundsConcurrency(t *testing.T) {
	t.Parallel()
	runner := &scriptedRunner{}
	sched := NewScheduler(runner, 2, time.Second, nil, logx.Nop())
	sched.Run(context.Background(), pairTasks(12))
	if peak := runner.peak.Load(); peak > 2 {
		t.Fatalf("peak concurrency = %d, want <= 2", peak)
	}
}

func TestSchedulerTimeoutIsolation(t *testing.T) {
	t.Parallel()
	// Participant 3 hangs its unit past the deadline; its sibling task in
	// the same wave must still succeed normally.
	runner := &scriptedRunner{hang: map[int]bool{3: true}}
	sched := NewScheduler(runner, 4, 50*time.Millisecond, nil, logx.Nop())
	outs := sched.Run(context.Background(), pairTasks(4))

	if len(outs) != 4 {
		t.Fatalf("outcomes = %d, want 4", len(outs))
	}
	byID := map[int]Outcome{}
	for _, o := range outs {
		byID[o.ParticipantID] = o
	}
	for _, id := range []int{1, 2} {
		if !byID[id].Success {
			t.Fatalf("participant %d: success = false, want true", id)
		}
	}
	for _, id := range []int{3, 4} {
		o := byID[id]
		if o.Success || o.Reason != ReasonTimeout {
			t.Fatalf("participant %d: got %+v, want timeout failure", id, o)
		}
	}
}

func TestSchedulerSynthesizesOnPanic(t *testing.T) {
	t.Parallel()
	runner := &scriptedRunner{panics: map[int]bool{1: true}}
	sched := NewScheduler(runner, 4, time.Second, nil, logx.Nop())
	outs := sched.Run(context.Background(), pairTasks(4))

	if len(outs) != 4 {
		t.Fatalf("outcomes = %d, want 4", len(outs))
	}
	faulted := 0
	for _, o := range outs {
		if strings.HasPrefix(o.Reason, ReasonWorkerFault) {
			if o.Success {
				t.Fatalf("faulted outcome marked success: %+v", o)
			}
			faulted++
		}
	}
	if faulted != 2 {
		t.Fatalf("faulted outcomes = %d, want 2 (both participants of the crashed unit)", faulted)
	}
}

func TestSchedulerEmptyQueue(t *testing.T) {
	t.Parallel()
	sched := NewScheduler(&scriptedRunner{}, 4, time.Second, nil, logx.Nop())
	if outs := sched.Run(context.Background(), nil); len(outs) != 0 {
		t.Fatalf("outcomes = %d, want 0", len(outs))
	}
}
