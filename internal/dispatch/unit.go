package dispatch

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"golang.org/x/time/rate"

	"botswarm/internal/browser"
	logx "botswarm/pkg/logx"
)

// Join-page indicator contract: whichever appears first decides the outcome.
const (
	successSelector = "#meeting-joined-indicator"
	errorSelector   = ".join-error"
)

// pageState is the per-participant-page lifecycle. Terminal states map 1:1 to
// Outcome.Success.
type pageState int

const (
	pageNotStarted pageState = iota
	pageNavigating
	pageWaitingForIndicator
	pageJoined
	pageJoinError
	pageNavigationFailed
	pageClosed
)

func (s pageState) String() string {
	switch s {
	case pageNotStarted:
		return "not_started"
	case pageNavigating:
		return "navigating"
	case pageWaitingForIndicator:
		return "waiting_for_indicator"
	case pageJoined:
		return "joined"
	case pageJoinError:
		return "join_error"
	case pageNavigationFailed:
		return "navigation_failed"
	case pageClosed:
		return "closed"
	}
	return "unknown"
}

// Runner executes one Task inside an isolated engine instance: one subprocess
// per task, one page per participant, pages resolved independently.
type Runner struct {
	engines browser.Set
	log     logx.Logger

	// limiter throttles engine launches across all waves so we stay under
	// platform rate limits. Nil disables throttling.
	limiter *rate.Limiter
}

func NewRunner(engines browser.Set, limiter *rate.Limiter, log logx.Logger) *Runner {
	return &Runner{engines: engines, limiter: limiter, log: log}
}

// RunTask joins every participant of the task and returns exactly one
// outcome per participant. Engine launch failure fails the whole batch with
// the same reason, without attempting per-page work. Per-page failures are
// contained: one page's error never aborts its sibling.
func (r *Runner) RunTask(ctx context.Context, t Task) []Outcome {
	eng := r.engines[t.Engine]
	if eng == nil {
		return failAll(t, ReasonLaunchFailure, fmt.Sprintf("no engine configured for %s", t.Engine))
	}

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return failAll(t, ReasonLaunchFailure, "launch throttled: "+err.Error())
		}
	}

	inst, err := eng.Launch(ctx)
	if err != nil {
		r.log.Warn("engine launch failed",
			logx.String("engine", t.Engine.String()),
			logx.Int("participants", len(t.Participants)),
			logx.Err(err))
		return failAll(t, ReasonLaunchFailure, err.Error())
	}

	// On a forced deadline the instance must be killed, not closed: a
	// graceful shutdown of a wedged subprocess can stall for seconds and
	// leak capacity into the next wave. Page calls unblock on the same
	// context, so by the time this defer runs the instance is idle.
	defer func() {
		if ctx.Err() != nil {
			inst.Kill()
			return
		}
		_ = inst.Close()
	}()

	outcomes := make([]Outcome, len(t.Participants))
	var wg sync.WaitGroup
	for i, p := range t.Participants {
		wg.Add(1)
		go func(i int, p Participant) {
			defer wg.Done()
			// One page's panic must not take down the sibling page or the
			// batch; convert it to a join-error outcome.
			defer func() {
				if rec := recover(); rec != nil {
					r.log.Error("page flow panicked",
						logx.String("engine", t.Engine.String()),
						logx.Int("participant", p.ID),
						logx.Any("panic", rec))
					outcomes[i] = Outcome{
						ParticipantID: p.ID,
						Success:       false,
						Engine:        t.Engine,
						Reason:        ReasonJoinError,
					}
				}
			}()
			outcomes[i] = r.joinOne(ctx, inst, t, p)
		}(i, p)
	}
	wg.Wait()
	return outcomes
}

// joinOne drives a single participant page through the join state machine.
func (r *Runner) joinOne(ctx context.Context, inst browser.Instance, t Task, p Participant) Outcome {
	out := Outcome{ParticipantID: p.ID, Engine: t.Engine}
	state := pageNotStarted

	page, err := inst.NewPage(ctx)
	if err != nil {
		out.Reason = ReasonJoinError
		r.logPage(t, p, state, err)
		return out
	}
	defer func() {
		_ = page.Close()
		state = pageClosed
	}()

	state = pageNavigating
	status, err := page.Navigate(ctx, joinURL(t, p))
	if err != nil {
		state = pageNavigationFailed
		out.Reason = ReasonNavigationFailed
		r.logPage(t, p, state, err)
		return out
	}
	if status >= 400 {
		state = pageNavigationFailed
		out.Reason = fmt.Sprintf("%s: http %d", ReasonNavigationFailed, status)
		r.logPage(t, p, state, nil)
		return out
	}

	state = pageWaitingForIndicator
	ind, err := page.WaitIndicator(ctx, successSelector, errorSelector)
	if err != nil {
		state = pageJoinError
		out.Reason = ReasonJoinError
		r.logPage(t, p, state, err)
		return out
	}
	if ind != browser.IndicatorSuccess {
		state = pageJoinError
		out.Reason = ReasonJoinError
		r.logPage(t, p, state, nil)
		return out
	}

	state = pageJoined
	out.Success = true
	r.log.Debug("participant joined",
		logx.String("engine", t.Engine.String()),
		logx.Int("participant", p.ID),
		logx.String("name", p.DisplayName))
	return out
}

func (r *Runner) logPage(t Task, p Participant, state pageState, err error) {
	r.log.Debug("page flow ended",
		logx.String("engine", t.Engine.String()),
		logx.Int("participant", p.ID),
		logx.String("state", state.String()),
		logx.Err(err))
}

// joinURL builds the join-page URL for one participant. All query values are
// percent-encoded.
func joinURL(t Task, p Participant) string {
	q := url.Values{}
	q.Set("username", p.DisplayName)
	q.Set("meetingId", t.Meeting.ID)
	q.Set("password", t.Meeting.Password)
	q.Set("signature", t.JoinToken)
	return t.Meeting.Origin + "/join?" + q.Encode()
}

func failAll(t Task, reason, detail string) []Outcome {
	full := reason
	if detail != "" {
		full = reason + ": " + detail
	}
	outs := make([]Outcome, len(t.Participants))
	for i, p := range t.Participants {
		outs[i] = Outcome{ParticipantID: p.ID, Success: false, Engine: t.Engine, Reason: full}
	}
	return outs
}
