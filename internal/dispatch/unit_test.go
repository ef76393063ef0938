package dispatch

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"botswarm/internal/browser"
	logx "botswarm/pkg/logx"
)

func fakeSet() (browser.Set, map[browser.Kind]*browser.Fake) {
	set := browser.Set{}
	fakes := map[browser.Kind]*browser.Fake{}
	for _, k := range browser.Kinds() {
		f := browser.NewFake(k)
		set[k] = f
		fakes[k] = f
	}
	return set, fakes
}

func taskFor(n int, kind browser.Kind) Task {
	return Task{
		Participants: makeParticipants(n),
		Meeting:      testMeeting(),
		JoinToken:    "signed-token",
		Engine:       kind,
	}
}

func TestRunTaskSuccess(t *testing.T) {
	t.Parallel()
	set, _ := fakeSet()
	r := NewRunner(set, nil, logx.Nop())
	outs := r.RunTask(context.Background(), taskFor(2, browser.KindChromium))

	if len(outs) != 2 {
		t.Fatalf("outcomes = %d, want 2", len(outs))
	}
	for _, o := range outs {
		if !o.Success || o.Reason != "" || o.Engine != browser.KindChromium {
			t.Fatalf("unexpected outcome: %+v", o)
		}
	}
}

func TestRunTaskLaunchFailureFailsWholeBatch(t *testing.T) {
	t.Parallel()
	set, fakes := fakeSet()
	fakes[browser.KindFirefox].LaunchErr = errors.New("binary not found")
	r := NewRunner(set, nil, logx.Nop())
	outs := r.RunTask(context.Background(), taskFor(2, browser.KindFirefox))

	if len(outs) != 2 {
		t.Fatalf("outcomes = %d, want 2", len(outs))
	}
	for _, o := range outs {
		if o.Success {
			t.Fatalf("outcome marked success after launch failure: %+v", o)
		}
		if !strings.HasPrefix(o.Reason, ReasonLaunchFailure) {
			t.Fatalf("reason = %q, want %s prefix", o.Reason, ReasonLaunchFailure)
		}
	}
}

func TestRunTaskUnknownEngine(t *testing.T) {
	t.Parallel()
	r := NewRunner(browser.Set{}, nil, logx.Nop())
	outs := r.RunTask(context.Background(), taskFor(1, browser.KindWebkit))
	if len(outs) != 1 || outs[0].Success || !strings.HasPrefix(outs[0].Reason, ReasonLaunchFailure) {
		t.Fatalf("unexpected outcomes: %+v", outs)
	}
}

func TestRunTaskNavigationStatus(t *testing.T) {
	t.Parallel()
	set, fakes := fakeSet()
	fakes[browser.KindChromium].NavigateStatus = 503
	r := NewRunner(set, nil, logx.Nop())
	outs := r.RunTask(context.Background(), taskFor(2, browser.KindChromium))

	for _, o := range outs {
		if o.Success || !strings.HasPrefix(o.Reason, ReasonNavigationFailed) {
			t.Fatalf("unexpected outcome: %+v", o)
		}
	}
}

func TestRunTaskJoinErrorIndicator(t *testing.T) {
	t.Parallel()
	set, fakes := fakeSet()
	fakes[browser.KindWebkit].PageIndicator = browser.IndicatorError
	r := NewRunner(set, nil, logx.Nop())
	outs := r.RunTask(context.Background(), taskFor(1, browser.KindWebkit))

	if outs[0].Success || outs[0].Reason != ReasonJoinError {
		t.Fatalf("unexpected outcome: %+v", outs[0])
	}
}

// urlCapturingEngine records every navigated URL, joining successfully.
type urlCapturingEngine struct {
	kind browser.Kind

	mu   sync.Mutex
	urls []string
}

func (e *urlCapturingEngine) Kind() browser.Kind { return e.kind }

func (e *urlCapturingEngine) Launch(ctx context.Context) (browser.Instance, error) {
	return &capturingInstance{eng: e}, nil
}

type capturingInstance struct{ eng *urlCapturingEngine }

func (i *capturingInstance) NewPage(ctx context.Context) (browser.Page, error) {
	return &capturingPage{eng: i.eng}, nil
}
func (i *capturingInstance) Close() error { return nil }
func (i *capturingInstance) Kill()        {}

type capturingPage struct{ eng *urlCapturingEngine }

func (p *capturingPage) Navigate(ctx context.Context, u string) (int, error) {
	p.eng.mu.Lock()
	p.eng.urls = append(p.eng.urls, u)
	p.eng.mu.Unlock()
	return 200, nil
}

func (p *capturingPage) WaitIndicator(ctx context.Context, successSel, errorSel string) (browser.Indicator, error) {
	return browser.IndicatorSuccess, nil
}

func (p *capturingPage) Close() error { return nil }

func TestRunTaskJoinURL(t *testing.T) {
	t.Parallel()
	eng := &urlCapturingEngine{kind: browser.KindChromium}
	set := browser.Set{browser.KindChromium: eng}
	r := NewRunner(set, nil, logx.Nop())

	task := Task{
		Participants: []Participant{{ID: 1, DisplayName: "Bot 1 & Co"}},
		Meeting:      Meeting{ID: "meet 42", Password: "p@ss word", Origin: "https://meet.example.com"},
		JoinToken:    "si/gn+ed",
		Engine:       browser.KindChromium,
	}
	outs := r.RunTask(context.Background(), task)
	if !outs[0].Success {
		t.Fatalf("unexpected outcome: %+v", outs[0])
	}

	if len(eng.urls) != 1 {
		t.Fatalf("navigations = %d, want 1", len(eng.urls))
	}
	u, err := url.Parse(eng.urls[0])
	if err != nil {
		t.Fatalf("parse navigated url: %v", err)
	}
	q := u.Query()
	if q.Get("username") != "Bot 1 & Co" ||
		q.Get("meetingId") != "meet 42" ||
		q.Get("password") != "p@ss word" ||
		q.Get("signature") != "si/gn+ed" {
		t.Fatalf("unexpected query: %v", q)
	}
}

// panickyPageEngine panics inside the indicator wait of the first page only.
type panickyPageEngine struct {
	urlCapturingEngine
	fired sync.Once
}

func (e *panickyPageEngine) Launch(ctx context.Context) (browser.Instance, error) {
	return &panickyInstance{eng: e}, nil
}

type panickyInstance struct{ eng *panickyPageEngine }

func (i *panickyInstance) NewPage(ctx context.Context) (browser.Page, error) {
	return &panickyPage{eng: i.eng}, nil
}
func (i *panickyInstance) Close() error { return nil }
func (i *panickyInstance) Kill()        {}

type panickyPage struct{ eng *panickyPageEngine }

func (p *panickyPage) Navigate(ctx context.Context, u string) (int, error) { return 200, nil }

func (p *panickyPage) WaitIndicator(ctx context.Context, successSel, errorSel string) (browser.Indicator, error) {
	blew := false
	p.eng.fired.Do(func() { blew = true })
	if blew {
		panic("renderer gone")
	}
	return browser.IndicatorSuccess, nil
}

func (p *panickyPage) Close() error { return nil }

func TestRunTaskPagePanicDoesNotAbortSibling(t *testing.T) {
	t.Parallel()
	eng := &panickyPageEngine{urlCapturingEngine: urlCapturingEngine{kind: browser.KindFirefox}}
	set := browser.Set{browser.KindFirefox: eng}
	r := NewRunner(set, nil, logx.Nop())
	outs := r.RunTask(context.Background(), taskFor(2, browser.KindFirefox))

	if len(outs) != 2 {
		t.Fatalf("outcomes = %d, want 2", len(outs))
	}
	succ, fail := 0, 0
	for _, o := range outs {
		if o.Success {
			succ++
		} else {
			if o.Reason != ReasonJoinError {
				t.Fatalf("panicked page reason = %q, want %s", o.Reason, ReasonJoinError)
			}
			fail++
		}
	}
	if succ != 1 || fail != 1 {
		t.Fatalf("successes = %d failures = %d, want 1 and 1", succ, fail)
	}
}

func TestRunTaskDeadlineKillsInstance(t *testing.T) {
	t.Parallel()
	set, fakes := fakeSet()
	fakes[browser.KindWebkit].Hang = true
	r := NewRunner(set, nil, logx.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	outs := r.RunTask(ctx, taskFor(2, browser.KindWebkit))

	if len(outs) != 2 {
		t.Fatalf("outcomes = %d, want 2", len(outs))
	}
	// Teardown after a forced deadline must reclaim the process handle
	// immediately; a graceful close would leave it wedged.
	if got := fakes[browser.KindWebkit].Killed(); got != 1 {
		t.Fatalf("killed = %d, want 1", got)
	}
}
