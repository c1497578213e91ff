// Package fanout turns one media event into notifications: one post to the
// primary destination and at most one direct message per subscribed user.
package fanout

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"mediabot/internal/eventbus"
	"mediabot/internal/match"
	"mediabot/internal/media"
	"mediabot/internal/metrics"
	"mediabot/internal/notification"
	"mediabot/internal/render"
	"mediabot/internal/subscription"
	kit "mediabot/internal/transport"
	logx "mediabot/pkg/logx"
)

const defaultParallel = 4

// Deliverer posts a notification to one chat.
type Deliverer interface {
	Deliver(ctx context.Context, to kit.ChatTarget, n notification.Notification) error
}

// Subscriptions yields every keyword subscription in insertion order.
type Subscriptions interface {
	All(ctx context.Context) ([]subscription.Subscription, error)
}

type Deps struct {
	Resolver      kit.Resolver
	Deliverer     Deliverer
	Subscriptions Subscriptions
	Logger        logx.Logger
	Metrics       *metrics.Metrics
	Bus           eventbus.Bus
	// Parallel bounds concurrent subscriber deliveries (0 means 4).
	Parallel int
}

// Dispatcher keeps only running counters between dispatches.
type Dispatcher struct {
	resolver kit.Resolver
	deliver  Deliverer
	subs     Subscriptions
	log      logx.Logger
	metrics  *metrics.Metrics
	bus      eventbus.Bus
	parallel atomic.Int64

	dispatches, delivered, unresolved, failed atomic.Uint64
	lastAt                                    atomic.Int64
}

// Stats are totals since start.
type Stats struct {
	Dispatches uint64
	Delivered  uint64
	Unresolved uint64
	Failed     uint64
	LastAt     time.Time
}

func (d *Dispatcher) Stats() Stats {
	st := Stats{
		Dispatches: d.dispatches.Load(),
		Delivered:  d.delivered.Load(),
		Unresolved: d.unresolved.Load(),
		Failed:     d.failed.Load(),
	}
	if ns := d.lastAt.Load(); ns > 0 {
		st.LastAt = time.Unix(0, ns)
	}
	return st
}

func New(d Deps) *Dispatcher {
	log := d.Logger
	if log.IsZero() {
		log = logx.Nop()
	}
	ds := &Dispatcher{
		resolver: d.Resolver,
		deliver:  d.Deliverer,
		subs:     d.Subscriptions,
		log:      log,
		metrics:  d.Metrics,
		bus:      d.Bus,
	}
	ds.SetParallel(d.Parallel)
	return ds
}

// SetParallel changes the fan-out bound for later dispatches.
func (d *Dispatcher) SetParallel(n int) {
	if n <= 0 {
		n = defaultParallel
	}
	d.parallel.Store(int64(n))
}

// Dispatch renders ev once, posts it to primary and then notifies every
// matching subscriber. Delivery problems end up in the Report and the log;
// they never fail the dispatch.
func (d *Dispatcher) Dispatch(ctx context.Context, ev media.Event, primary string) Report {
	rep := Report{
		DispatchID: uuid.NewString(),
		MediaType:  string(ev.Type()),
		StartedAt:  time.Now(),
	}
	n := render.Render(ev)
	rep.Title = n.Title
	log := d.log.With(logx.String("dispatch_id", rep.DispatchID), logx.String("media_type", rep.MediaType))

	// Primary happens-before fan-out.
	rep.Outcomes = append(rep.Outcomes, d.deliverPrimary(ctx, log, primary, n))

	subs, err := d.subs.All(ctx)
	if err != nil {
		log.Error("read subscriptions failed; skipping subscribers", logx.Err(err))
		rep.SubscriptionsErr = err.Error()
	}
	matches := match.Match(n.Title, subs)
	rep.Matched = len(matches)

	rep.Outcomes = append(rep.Outcomes, d.fanOut(ctx, log, n, matches)...)
	rep.Elapsed = time.Since(rep.StartedAt)

	d.dispatches.Add(1)
	d.lastAt.Store(rep.StartedAt.UnixNano())
	d.delivered.Add(uint64(rep.Count(StatusDelivered)))
	d.unresolved.Add(uint64(rep.Count(StatusUnresolved)))
	d.failed.Add(uint64(rep.Count(StatusFailed)))
	d.metrics.ObserveDispatch(rep.Elapsed, len(subs))
	log.Info("dispatch finished",
		logx.String("title", rep.Title),
		logx.Int("matched", rep.Matched),
		logx.Int("delivered", rep.Count(StatusDelivered)),
		logx.Int("unresolved", rep.Count(StatusUnresolved)),
		logx.Int("failed", rep.Count(StatusFailed)),
		logx.Duration("elapsed", rep.Elapsed),
	)
	if d.bus != nil {
		d.bus.Publish(eventbus.Event{Type: "fanout.dispatched", Data: rep})
	}
	return rep
}

func (d *Dispatcher) deliverPrimary(ctx context.Context, log logx.Logger, spec string, n notification.Notification) (out RecipientOutcome) {
	out = RecipientOutcome{Target: TargetPrimary, Destination: spec}
	defer d.settle(log, &out)

	to, ok, err := d.resolver.ResolveChannel(ctx, spec)
	switch {
	case err != nil:
		out.Status, out.Err = StatusUnresolved, err.Error()
		log.Warn("primary destination lookup failed", logx.String("destination", spec), logx.Err(err))
	case !ok:
		out.Status = StatusUnresolved
		log.Debug("primary destination not resolvable; skipping", logx.String("destination", spec))
	default:
		out.Status, out.Err = d.send(ctx, to, n)
		if out.Status == StatusFailed {
			log.Warn("primary delivery failed", logx.String("destination", spec), logx.Int64("chat_id", to.ChatID), logx.String("err", out.Err))
		}
	}
	return out
}

// fanOut delivers to every match concurrently (bounded). Outcomes keep the
// order of matches.
func (d *Dispatcher) fanOut(ctx context.Context, log logx.Logger, n notification.Notification, matches []match.Result) []RecipientOutcome {
	if len(matches) == 0 {
		return nil
	}
	outcomes := make([]RecipientOutcome, len(matches))

	var g errgroup.Group
	g.SetLimit(int(d.parallel.Load()))
	for i, m := range matches {
		g.Go(func() error {
			outcomes[i] = d.deliverSubscriber(ctx, log, n, m)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (d *Dispatcher) deliverSubscriber(ctx context.Context, log logx.Logger, n notification.Notification, m match.Result) (out RecipientOutcome) {
	out = RecipientOutcome{Target: TargetSubscriber, OwnerID: m.OwnerID, Keyword: m.Keyword}
	log = log.With(logx.Int64("owner_id", m.OwnerID), logx.String("keyword", m.Keyword))
	defer d.settle(log, &out)

	to, ok, err := d.resolver.ResolveDirect(ctx, m.OwnerID)
	switch {
	case err != nil:
		out.Status, out.Err = StatusUnresolved, err.Error()
		log.Warn("subscriber chat lookup failed", logx.Err(err))
	case !ok:
		out.Status = StatusUnresolved
		log.Debug("subscriber chat not resolvable; skipping")
	default:
		out.Status, out.Err = d.send(ctx, to, n.ForSubscriber(m.Keyword))
		if out.Status == StatusFailed {
			log.Warn("subscriber delivery failed", logx.String("err", out.Err))
		}
	}
	return out
}

// settle runs deferred at the end of one recipient's attempt. A panic in
// the resolver or the deliverer becomes a failed outcome for that
// recipient only; the outcome is counted either way.
func (d *Dispatcher) settle(log logx.Logger, out *RecipientOutcome) {
	if r := recover(); r != nil {
		out.Status, out.Err = StatusFailed, fmt.Sprintf("panic: %v", r)
		log.Error("recipient attempt panicked", logx.String("target", out.Target), logx.Any("panic", r))
	}
	d.metrics.Delivery(out.Target, string(out.Status))
}

// send converts a delivery error into a status.
func (d *Dispatcher) send(ctx context.Context, to kit.ChatTarget, n notification.Notification) (Status, string) {
	if err := d.deliver.Deliver(ctx, to, n); err != nil {
		return StatusFailed, err.Error()
	}
	return StatusDelivered, ""
}
