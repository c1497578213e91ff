package notifier

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	logx "mediabot/pkg/logx"
	"sync"
	"sync/atomic"
	"time"

	"mediabot/internal/eventbus"
	"mediabot/internal/notification"
	kit "mediabot/internal/transport"

	"golang.org/x/time/rate"
)

var ErrNoSender = errors.New("notifier has no sender")

const historySize = 300

// Service implements rate-limited synchronous delivery with optional
// duplicate suppression.
//
// It is safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log    logx.Logger
	sender kit.NotificationSender
	bus    eventbus.Bus

	cfg     Config
	limiter *rate.Limiter

	// In-memory dedup cache: key -> suppress until
	dmu   sync.Mutex
	dedup map[string]time.Time

	// In-memory history (for /status)
	hmu     sync.Mutex
	history []HistoryItem

	sent, failed, suppressed atomic.Uint64
}

func New(cfg Config, sender kit.NotificationSender, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		sender: sender,
		log:    log,
		bus:    bus,
		dedup:  map[string]time.Time{},
	}
	s.applyLocked(cfg)
	return s
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	// Defaults
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 20
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.DedupWindow < 0 {
		cfg.DedupWindow = 0
	}
	if cfg.DedupMaxEntries <= 0 {
		cfg.DedupMaxEntries = 2000
	}

	s.cfg = cfg
	// Token bucket: burst = rate per sec, so short spikes don't block too hard.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// Deliver posts n to one chat. It blocks on the rate limiter and gives the
// platform call at most Config.SendTimeout.
func (s *Service) Deliver(ctx context.Context, to kit.ChatTarget, n notification.Notification) error {
	s.mu.Lock()
	cfg := s.cfg
	lim := s.limiter
	sender := s.sender
	s.mu.Unlock()

	if sender == nil {
		return ErrNoSender
	}

	key := dedupKey(to, n)
	if cfg.DedupWindow > 0 && !s.dedupAllow(key, cfg.DedupWindow, cfg.DedupMaxEntries) {
		s.suppressed.Add(1)
		s.publish("notifier.deduped", to, n, key, nil)
		s.log.Debug("duplicate notification suppressed", logx.Int64("chat_id", to.ChatID), logx.String("title", n.Title))
		return nil
	}

	// Rate limit (honor cancellation).
	if err := lim.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	// Bound per-send call.
	callCtx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
	_, err := sender.SendNotification(callCtx, to, n)
	cancel()

	s.appendHistory(to, n, err)
	if err != nil {
		s.failed.Add(1)
		s.publish("notifier.failed", to, n, key, err)
		return err
	}
	s.sent.Add(1)
	s.publish("notifier.sent", to, n, key, nil)
	return nil
}

func (s *Service) publish(typ string, to kit.ChatTarget, n notification.Notification, key string, err error) {
	if s.bus == nil {
		return
	}
	now := time.Now()
	ev := DeliveryEvent{ChatID: to.ChatID, ThreadID: to.ThreadID, Title: n.Title, Keyword: n.Keyword, Key: key, At: now}
	if err != nil {
		ev.Error = err.Error()
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: now, Data: ev})
}

func (s *Service) Stats() Stats {
	return Stats{Sent: s.sent.Load(), Failed: s.failed.Load(), Suppressed: s.suppressed.Load()}
}

// Snapshot returns recent deliveries, oldest first.
func (s *Service) Snapshot() []HistoryItem {
	s.hmu.Lock()
	out := append([]HistoryItem(nil), s.history...)
	s.hmu.Unlock()
	return out
}

func (s *Service) appendHistory(to kit.ChatTarget, n notification.Notification, err error) {
	it := HistoryItem{At: time.Now(), ChatID: to.ChatID, Title: n.Title, Keyword: n.Keyword}
	if err != nil {
		it.Err = err.Error()
	}
	s.hmu.Lock()
	s.history = append(s.history, it)
	if len(s.history) > historySize {
		s.history = s.history[len(s.history)-historySize:]
	}
	s.hmu.Unlock()
}

func dedupKey(to kit.ChatTarget, n notification.Notification) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(fmt.Sprintf("%d:%d|", to.ChatID, to.ThreadID)))
	_, _ = h.Write([]byte(n.Preamble))
	_, _ = h.Write([]byte("|"))
	_, _ = h.Write([]byte(n.Title))
	return fmt.Sprintf("%x", h.Sum64())
}

func (s *Service) dedupAllow(key string, window time.Duration, max int) bool {
	now := time.Now()

	s.dmu.Lock()
	defer s.dmu.Unlock()

	if until, ok := s.dedup[key]; ok && now.Before(until) {
		return false
	}
	s.dedup[key] = now.Add(window)

	// Prune expired and cap.
	for k, until := range s.dedup {
		if !now.Before(until) {
			delete(s.dedup, k)
		}
	}
	for max > 0 && len(s.dedup) > max {
		var (
			minKey string
			minT   time.Time
			set    bool
		)
		for k, t := range s.dedup {
			if !set || t.Before(minT) {
				minKey, minT, set = k, t, true
			}
		}
		if !set {
			break
		}
		delete(s.dedup, minKey)
	}
	return true
}
