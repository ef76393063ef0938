package dispatch

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"botswarm/internal/browser"
	"botswarm/internal/eventbus"
	logx "botswarm/pkg/logx"
)

// Request is the inbound dispatch order. Caller-supplied bots and the
// synthetic botCount combine into the dispatched participant list.
type Request struct {
	Bots      []Participant `json:"bots"`
	MeetingID string        `json:"meetingId"`
	Password  string        `json:"password"`
	BotCount  int           `json:"botCount"`
}

// Recorder persists finished dispatch runs. Implemented by the sqlite store;
// nil disables persistence.
type Recorder interface {
	AppendDispatch(ctx context.Context, meetingID string, rep Report) error
}

type tokenIssuer interface {
	Issue(meetingID string, role int) (string, error)
}

// Options are the tunables that survive a config hot reload.
type Options struct {
	// Origin is the configured join-page origin. Empty means fall back to
	// the per-request origin.
	Origin           string
	MaxConcurrent    int
	TaskTimeout      time.Duration
	MinPerEngine     int
	LaunchRatePerSec float64
}

// Service runs the whole dispatch pipeline for one request at a time per
// call; concurrent calls are safe and share only the token cache and the
// launch limiter.
type Service struct {
	issuer  tokenIssuer
	engines browser.Set
	bus     eventbus.Bus
	store   Recorder
	metrics Metrics
	log     logx.Logger

	mu     sync.RWMutex
	opts   Options
	runner *Runner

	// rng is overridable in tests for deterministic partitioning.
	rng *rand.Rand
}

func NewService(issuer tokenIssuer, engines browser.Set, bus eventbus.Bus, store Recorder, metrics Metrics, opts Options, log logx.Logger) *Service {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	s := &Service{
		issuer:  issuer,
		engines: engines,
		bus:     bus,
		store:   store,
		metrics: metrics,
		log:     log,
	}
	s.apply(opts)
	return s
}

// Apply swaps in new tunables; in-flight dispatches keep the options they
// started with.
func (s *Service) Apply(opts Options) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apply(opts)
}

func (s *Service) apply(opts Options) {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	if opts.TaskTimeout <= 0 {
		opts.TaskTimeout = DefaultTaskTimeout
	}
	if opts.MinPerEngine <= 0 {
		opts.MinPerEngine = DefaultMinPerEngine
	}
	var limiter *rate.Limiter
	if opts.LaunchRatePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.LaunchRatePerSec), 1)
	}
	s.opts = opts
	s.runner = NewRunner(s.engines, limiter, s.log)
}

func (s *Service) snapshot() (Options, *Runner) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.opts, s.runner
}

// Dispatch validates the request, joins every participant and returns the
// aggregate report. fallbackOrigin is used when no origin is configured.
// ValidationError and ConfigurationError mean no dispatch was attempted.
func (s *Service) Dispatch(ctx context.Context, req Request, fallbackOrigin string) (Report, error) {
	opts, runner := s.snapshot()
	s.metrics.RequestStarted()

	reqID := uuid.NewString()
	log := s.log.With(logx.String("request_id", reqID), logx.String("meeting", req.MeetingID))

	if strings.TrimSpace(req.MeetingID) == "" {
		return Report{}, &ValidationError{Field: "meetingId", Msg: "required"}
	}
	if strings.TrimSpace(req.Password) == "" {
		return Report{}, &ValidationError{Field: "password", Msg: "required"}
	}

	participants := req.Bots
	if req.BotCount > 0 {
		participants = SynthesizeParticipants(participants, req.BotCount)
	}
	if len(participants) == 0 {
		return Report{}, &ValidationError{Field: "bots", Msg: "no participants to dispatch"}
	}

	origin := opts.Origin
	if origin == "" {
		origin = strings.TrimRight(fallbackOrigin, "/")
	}
	if origin == "" {
		return Report{}, &ValidationError{Field: "origin", Msg: "no join origin configured and none supplied"}
	}

	joinToken, err := s.issuer.Issue(req.MeetingID, 0)
	if err != nil {
		return Report{}, err
	}

	m := Meeting{ID: req.MeetingID, Password: req.Password, Origin: origin}
	tasks, dropped := Partition(participants, m, joinToken, opts.MinPerEngine, s.rng)
	log.Info("dispatch started",
		logx.Int("participants", len(participants)),
		logx.Int("tasks", len(tasks)),
		logx.Int("undispatched", len(dropped)))
	s.publish(eventbus.TypeDispatchStarted, map[string]any{
		"requestId": reqID, "meetingId": req.MeetingID, "participants": len(participants),
	})

	sched := NewScheduler(runner, opts.MaxConcurrent, opts.TaskTimeout, s.metrics, log)
	outcomes := sched.Run(ctx, tasks)
	outcomes = append(outcomes, undispatchedOutcomes(dropped)...)

	for _, o := range outcomes {
		s.metrics.OutcomeRecorded(o.Engine.String(), o.Success)
	}
	rep := Aggregate(outcomes, len(participants))

	if s.store != nil {
		if err := s.store.AppendDispatch(ctx, req.MeetingID, rep); err != nil {
			log.Warn("dispatch history write failed", logx.Err(err))
		}
	}
	s.publish(eventbus.TypeDispatchFinished, map[string]any{
		"requestId": reqID, "meetingId": req.MeetingID,
		"total": rep.Total, "successes": rep.Successes,
	})
	log.Info("dispatch finished",
		logx.Int("total", rep.Total),
		logx.Int("successes", rep.Successes),
		logx.Int("failures", len(rep.Failures)))
	return rep, nil
}

func (s *Service) publish(typ string, data any) {
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: typ, Data: data})
	}
}

// undispatchedOutcomes covers participants the partitioner could not place.
// They never ran on any engine; round-robin attribution keeps per-engine
// totals summing to the request size.
func undispatchedOutcomes(dropped []Participant) []Outcome {
	kinds := browser.Kinds()
	outs := make([]Outcome, len(dropped))
	for i, p := range dropped {
		outs[i] = Outcome{
			ParticipantID: p.ID,
			Success:       false,
			Engine:        kinds[i%len(kinds)],
			Reason:        ReasonNotDispatched,
		}
	}
	return outs
}

// Message renders the human-readable summary line for the response body.
func (r Report) Message() string {
	if r.AllJoined() {
		return fmt.Sprintf("all %d bots joined", r.Total)
	}
	return fmt.Sprintf("%d of %d bots joined", r.Successes, r.Total)
}
