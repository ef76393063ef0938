// Package schedule fires recurring dispatches from cron definitions.
package schedule

import (
	"context"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"botswarm/internal/dispatch"
	"botswarm/internal/eventbus"
	logx "botswarm/pkg/logx"
)

// Dispatcher is the dispatch entry point the scheduler drives.
type Dispatcher interface {
	Dispatch(ctx context.Context, req dispatch.Request, fallbackOrigin string) (dispatch.Report, error)
}

// Entry is one recurring dispatch definition.
type Entry struct {
	Name      string
	Cron      string
	MeetingID string
	Password  string
	BotCount  int
	Enabled   bool
}

type Config struct {
	Enabled  bool
	Timezone string
	Entries  []Entry
}

type Service struct {
	dispatcher Dispatcher
	bus        eventbus.Bus
	log        logx.Logger
	parser     cron.Parser

	mu     sync.Mutex
	cfg    Config
	c      *cron.Cron
	runCtx context.Context

	// one inflight flag per entry name, so a slow run skips the next tick
	// instead of stacking.
	inflight map[string]*atomic.Bool
}

func New(dispatcher Dispatcher, bus eventbus.Bus, cfg Config, log logx.Logger) *Service {
	return &Service{
		dispatcher: dispatcher,
		bus:        bus,
		log:        log,
		cfg:        cfg,
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser:   cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		inflight: map[string]*atomic.Bool{},
	}
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runCtx = ctx
	s.startLocked()
}

func (s *Service) startLocked() {
	if !s.cfg.Enabled || s.runCtx == nil {
		return
	}
	loc := time.Local
	if tz := strings.TrimSpace(s.cfg.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			s.log.Warn("invalid timezone, using local", logx.String("tz", tz), logx.Err(err))
		} else {
			loc = l
		}
	}
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))

	registered := 0
	for _, e := range s.cfg.Entries {
		if !e.Enabled {
			continue
		}
		e := e
		if _, ok := s.inflight[e.Name]; !ok {
			s.inflight[e.Name] = &atomic.Bool{}
		}
		flag := s.inflight[e.Name]
		_, err := s.c.AddFunc(e.Cron, func() { s.fire(e, flag) })
		if err != nil {
			s.log.Error("bad cron spec, entry skipped",
				logx.String("entry", e.Name),
				logx.String("cron", e.Cron),
				logx.Err(err))
			continue
		}
		registered++
	}
	s.c.Start()
	s.log.Info("scheduler started",
		logx.Int("entries", registered),
		logx.String("tz", loc.String()))
}

func (s *Service) fire(e Entry, flag *atomic.Bool) {
	if !flag.CompareAndSwap(false, true) {
		s.log.Warn("previous run still in flight, tick skipped", logx.String("entry", e.Name))
		return
	}
	defer flag.Store(false)
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic in scheduled dispatch",
				logx.String("entry", e.Name),
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())))
		}
	}()

	s.mu.Lock()
	ctx := s.runCtx
	s.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}

	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeScheduleFired, Data: map[string]any{
			"entry": e.Name, "meetingId": e.MeetingID, "botCount": e.BotCount,
		}})
	}
	s.log.Info("scheduled dispatch firing",
		logx.String("entry", e.Name),
		logx.String("meeting", e.MeetingID),
		logx.Int("bots", e.BotCount))

	rep, err := s.dispatcher.Dispatch(ctx, dispatch.Request{
		MeetingID: e.MeetingID,
		Password:  e.Password,
		BotCount:  e.BotCount,
	}, "")
	if err != nil {
		s.log.Error("scheduled dispatch failed", logx.String("entry", e.Name), logx.Err(err))
		return
	}
	s.log.Info("scheduled dispatch finished",
		logx.String("entry", e.Name),
		logx.Int("total", rep.Total),
		logx.Int("successes", rep.Successes))
}

// Apply swaps in a new definition set, restarting the cron runner when one
// is active.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	if s.c != nil {
		s.c.Stop()
		s.c = nil
	}
	s.startLocked()
}

// Stop halts the cron runner and waits for in-flight jobs.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	done := c.Stop().Done()
	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out with jobs in flight")
	}
}
