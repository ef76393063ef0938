package browser

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Fake is an in-process Engine used by tests and dry-run mode. Behavior is
// scripted per engine kind: pages join successfully unless configured
// otherwise.
type Fake struct {
	kind Kind

	// LaunchErr, when set, makes every Launch fail.
	LaunchErr error
	// LaunchDelay simulates slow engine startup.
	LaunchDelay time.Duration
	// PageIndicator decides what every page reports (default success).
	PageIndicator Indicator
	// NavigateStatus is the HTTP status every navigation returns (default 200).
	NavigateStatus int
	// Hang makes pages block until the context is canceled, for timeout tests.
	Hang bool

	launches atomic.Int64
	killed   atomic.Int64
}

func NewFake(kind Kind) *Fake { return &Fake{kind: kind} }

func (f *Fake) Kind() Kind { return f.kind }

// Launches reports how many instances were launched (for tests).
func (f *Fake) Launches() int64 { return f.launches.Load() }

// Killed reports how many instances were force-terminated (for tests).
func (f *Fake) Killed() int64 { return f.killed.Load() }

func (f *Fake) Launch(ctx context.Context) (Instance, error) {
	if f.LaunchDelay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.LaunchDelay):
		}
	}
	if f.LaunchErr != nil {
		return nil, f.LaunchErr
	}
	f.launches.Add(1)
	return &fakeInstance{eng: f}, nil
}

type fakeInstance struct {
	eng *Fake

	mu     sync.Mutex
	closed bool
	pages  int
}

func (fi *fakeInstance) NewPage(ctx context.Context) (Page, error) {
	fi.mu.Lock()
	defer fi.mu.Unlock()
	if fi.closed {
		return nil, fmt.Errorf("browser: %s: instance closed", fi.eng.kind)
	}
	fi.pages++
	return &fakePage{inst: fi}, nil
}

func (fi *fakeInstance) Close() error {
	fi.mu.Lock()
	fi.closed = true
	fi.mu.Unlock()
	return nil
}

func (fi *fakeInstance) Kill() {
	fi.eng.killed.Add(1)
	fi.mu.Lock()
	fi.closed = true
	fi.mu.Unlock()
}

type fakePage struct {
	inst   *fakeInstance
	closed bool
}

func (p *fakePage) Navigate(ctx context.Context, url string) (int, error) {
	if p.inst.eng.Hang {
		<-ctx.Done()
		return 0, ctx.Err()
	}
	st := p.inst.eng.NavigateStatus
	if st == 0 {
		st = 200
	}
	return st, nil
}

func (p *fakePage) WaitIndicator(ctx context.Context, successSel, errorSel string) (Indicator, error) {
	if p.inst.eng.Hang {
		<-ctx.Done()
		return IndicatorNone, ctx.Err()
	}
	ind := p.inst.eng.PageIndicator
	if ind == IndicatorNone {
		ind = IndicatorSuccess
	}
	return ind, nil
}

func (p *fakePage) Close() error {
	p.closed = true
	return nil
}
