package schedule

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"botswarm/internal/dispatch"
	"botswarm/internal/eventbus"
	logx "botswarm/pkg/logx"
)

type stubDispatcher struct {
	calls   atomic.Int32
	last    atomic.Value // dispatch.Request
	explode bool
}

func (d *stubDispatcher) Dispatch(_ context.Context, req dispatch.Request, _ string) (dispatch.Report, error) {
	if d.explode {
		panic("dispatcher exploded")
	}
	d.calls.Add(1)
	d.last.Store(req)
	return dispatch.Report{Total: req.BotCount, Successes: req.BotCount}, nil
}

func testEntry() Entry {
	return Entry{Name: "nightly", Cron: "0 0 * * *", MeetingID: "m-1", Password: "pw", BotCount: 5, Enabled: true}
}

func TestFireDispatches(t *testing.T) {
	t.Parallel()
	d := &stubDispatcher{}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(4)
	defer unsub()

	s := New(d, bus, Config{Enabled: true}, logx.Nop())
	s.Start(context.Background())
	defer s.Stop(context.Background())

	var flag atomic.Bool
	s.fire(testEntry(), &flag)

	if d.calls.Load() != 1 {
		t.Fatalf("dispatcher calls = %d, want 1", d.calls.Load())
	}
	req := d.last.Load().(dispatch.Request)
	if req.MeetingID != "m-1" || req.BotCount != 5 {
		t.Fatalf("unexpected request: %+v", req)
	}
	select {
	case ev := <-events:
		if ev.Type != eventbus.TypeScheduleFired {
			t.Fatalf("event type = %s, want %s", ev.Type, eventbus.TypeScheduleFired)
		}
	case <-time.After(time.Second):
		t.Fatal("no schedule.fired event published")
	}
}

func TestFireSkipsOverlap(t *testing.T) {
	t.Parallel()
	d := &stubDispatcher{}
	s := New(d, nil, Config{Enabled: true}, logx.Nop())
	s.Start(context.Background())
	defer s.Stop(context.Background())

	var flag atomic.Bool
	flag.Store(true) // previous run still going
	s.fire(testEntry(), &flag)

	if d.calls.Load() != 0 {
		t.Fatalf("dispatcher calls = %d, want 0 while overlapped", d.calls.Load())
	}
	if !flag.Load() {
		t.Fatal("overlap flag cleared by the skipped tick")
	}
}

func TestFireContainsPanic(t *testing.T) {
	t.Parallel()
	d := &stubDispatcher{explode: true}
	s := New(d, nil, Config{Enabled: true}, logx.Nop())
	s.Start(context.Background())
	defer s.Stop(context.Background())

	var flag atomic.Bool
	s.fire(testEntry(), &flag) // must not propagate
	if flag.Load() {
		t.Fatal("inflight flag stuck after panic")
	}
}

func TestStartDisabled(t *testing.T) {
	t.Parallel()
	s := New(&stubDispatcher{}, nil, Config{Enabled: false}, logx.Nop())
	s.Start(context.Background())
	s.Stop(context.Background())
}
