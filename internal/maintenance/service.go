// Package maintenance runs store housekeeping (journal compaction, sqlite
// optimize, badger value log GC) on a cron schedule.
package maintenance

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"mediabot/internal/eventbus"
	"mediabot/internal/storage"
	logx "mediabot/pkg/logx"
)

const runTimeout = 5 * time.Minute

// Snapshot is the scheduler state for status displays.
type Snapshot struct {
	Schedule string
	Next     time.Time
	LastRun  time.Time
	LastTook time.Duration
	LastErr  string
	Runs     int
}

type Service struct {
	target storage.Maintainer
	log    logx.Logger
	bus    eventbus.Bus
	parser cron.Parser

	mu     sync.Mutex
	spec   string
	c      *cron.Cron
	entry  cron.EntryID
	ctx    context.Context
	cancel context.CancelFunc

	runMu sync.Mutex // one run at a time
	snap  Snapshot
}

// New returns a stopped service. target may be nil (store without
// housekeeping), in which case nothing is ever scheduled.
func New(target storage.Maintainer, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		target: target,
		log:    log,
		bus:    bus,
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// Start begins triggering spec. An empty spec leaves the service idle
// until Apply sets one.
func (s *Service) Start(ctx context.Context, spec string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.c = cron.New(cron.WithParser(s.parser))
	if err := s.scheduleLocked(spec); err != nil {
		s.cancel()
		s.c = nil
		return err
	}
	s.c.Start()
	s.log.Info("maintenance scheduler started", logx.String("schedule", s.spec), logx.Bool("enabled", s.target != nil))
	return nil
}

// Apply swaps the schedule of a running service. The old schedule stays
// when spec does not parse.
func (s *Service) Apply(spec string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.TrimSpace(spec) == s.spec {
		return nil
	}
	if s.c == nil {
		s.spec = strings.TrimSpace(spec)
		return nil
	}
	if err := s.scheduleLocked(spec); err != nil {
		return err
	}
	s.log.Info("maintenance schedule changed", logx.String("schedule", s.spec))
	return nil
}

func (s *Service) scheduleLocked(spec string) error {
	spec = strings.TrimSpace(spec)
	var sched cron.Schedule
	if spec != "" && s.target != nil {
		var err error
		if sched, err = s.parser.Parse(spec); err != nil {
			return err
		}
	}
	if s.entry != 0 {
		s.c.Remove(s.entry)
		s.entry = 0
	}
	s.spec = spec
	if sched != nil {
		s.entry = s.c.Schedule(sched, cron.FuncJob(func() { _ = s.RunNow(s.ctx) }))
	}
	return nil
}

// RunNow runs maintenance once, waiting for a run already in progress.
func (s *Service) RunNow(ctx context.Context) error {
	if s.target == nil {
		return nil
	}
	s.runMu.Lock()
	defer s.runMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()
	start := time.Now()
	err := s.target.Maintain(ctx)
	took := time.Since(start)

	s.mu.Lock()
	s.snap.LastRun, s.snap.LastTook, s.snap.LastErr = start, took, ""
	s.snap.Runs++
	if err != nil {
		s.snap.LastErr = err.Error()
	}
	s.mu.Unlock()

	if err != nil {
		s.log.Warn("store maintenance failed", logx.Duration("took", took), logx.Err(err))
	} else {
		s.log.Info("store maintenance done", logx.Duration("took", took))
	}
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: "maintenance.run", Data: s.Snapshot()})
	}
	return err
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.snap
	out.Schedule = s.spec
	if s.c != nil && s.entry != 0 {
		out.Next = s.c.Entry(s.entry).Next
	}
	return out
}

// Stop halts triggering and waits for a running job until ctx ends.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c, cancel := s.c, s.cancel
	s.c, s.entry = nil, 0
	s.mu.Unlock()
	if c == nil {
		return
	}
	cancel()
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	s.log.Info("maintenance scheduler stopped")
}
