package fanout

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediabot/internal/eventbus"
	"mediabot/internal/media"
	"mediabot/internal/metrics"
	"mediabot/internal/notification"
	"mediabot/internal/subscription"
	kit "mediabot/internal/transport"
)

const primaryChat = -1001

type fakeResolver struct {
	channels map[string]int64
	// noDM lists owners without a reachable private chat.
	noDM map[int64]bool
}

func (f fakeResolver) ResolveChannel(_ context.Context, spec string) (kit.ChatTarget, bool, error) {
	id, ok := f.channels[spec]
	return kit.ChatTarget{ChatID: id}, ok, nil
}

func (f fakeResolver) ResolveDirect(_ context.Context, userID int64) (kit.ChatTarget, bool, error) {
	if f.noDM[userID] {
		return kit.ChatTarget{}, false, nil
	}
	return kit.ChatTarget{ChatID: userID}, true, nil
}

type sent struct {
	chatID int64
	n      notification.Notification
}

type fakeDeliverer struct {
	mu   sync.Mutex
	sent []sent
	fail map[int64]error
}

func (f *fakeDeliverer) Deliver(_ context.Context, to kit.ChatTarget, n notification.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[to.ChatID]; err != nil {
		return err
	}
	f.sent = append(f.sent, sent{chatID: to.ChatID, n: n})
	return nil
}

func (f *fakeDeliverer) to(chatID int64) []notification.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []notification.Notification
	for _, s := range f.sent {
		if s.chatID == chatID {
			out = append(out, s.n)
		}
	}
	return out
}

type fakeSubs struct {
	subs []subscription.Subscription
	err  error
}

func (f fakeSubs) All(context.Context) ([]subscription.Subscription, error) { return f.subs, f.err }

func sub(owner int64, kw string) subscription.Subscription {
	return subscription.Subscription{OwnerID: owner, OwnerName: "user", Keyword: kw}
}

func batmanBegins() media.Event {
	return media.Movie{
		Common: media.Common{MediaType: "movie", LibraryName: "Movies", ServerName: "plex"},
		Title:  "Batman Begins",
		Year:   "2005",
	}
}

func newDispatcher(res fakeResolver, del *fakeDeliverer, subs fakeSubs) *Dispatcher {
	return New(Deps{Resolver: res, Deliverer: del, Subscriptions: subs, Metrics: metrics.New(), Parallel: 2})
}

func TestDispatchPrimaryAndMatchingSubscriber(t *testing.T) {
	t.Parallel()

	del := &fakeDeliverer{}
	d := newDispatcher(
		fakeResolver{channels: map[string]int64{"#media": primaryChat}},
		del,
		fakeSubs{subs: []subscription.Subscription{sub(1, "batman"), sub(2, "superman")}},
	)

	rep := d.Dispatch(t.Context(), batmanBegins(), "#media")

	assert.NotEmpty(t, rep.DispatchID)
	assert.Equal(t, "Batman Begins (2005)", rep.Title)
	assert.Equal(t, 1, rep.Matched)
	assert.Equal(t, 2, rep.Count(StatusDelivered))

	primary := del.to(primaryChat)
	require.Len(t, primary, 1)
	assert.Empty(t, primary[0].Keyword)
	assert.False(t, strings.Contains(primary[0].Preamble, "Notifying"))

	dm := del.to(1)
	require.Len(t, dm, 1)
	assert.Contains(t, dm[0].Preamble, "keyword 'batman'")
	assert.Equal(t, primary[0].Title, dm[0].Title)
	assert.Equal(t, primary[0].Fields, dm[0].Fields)
	assert.Empty(t, del.to(2))

	st := d.Stats()
	assert.Equal(t, uint64(1), st.Dispatches)
	assert.Equal(t, uint64(2), st.Delivered)
	assert.False(t, st.LastAt.IsZero())
}

func TestDispatchOneMessagePerOwner(t *testing.T) {
	t.Parallel()

	del := &fakeDeliverer{}
	d := newDispatcher(fakeResolver{}, del, fakeSubs{subs: []subscription.Subscription{
		sub(1, "batman"), sub(1, "begins"), sub(3, "2005"),
	}})

	rep := d.Dispatch(t.Context(), batmanBegins(), "")

	dm := del.to(1)
	require.Len(t, dm, 1)
	assert.Equal(t, "batman", dm[0].Keyword)
	require.Len(t, del.to(3), 1)
	assert.Equal(t, 2, rep.Matched)
}

func TestDispatchUnresolvedPrimaryStillFansOut(t *testing.T) {
	t.Parallel()

	del := &fakeDeliverer{}
	d := newDispatcher(fakeResolver{}, del, fakeSubs{subs: []subscription.Subscription{sub(1, "batman")}})

	rep := d.Dispatch(t.Context(), batmanBegins(), "not a channel")

	p, ok := rep.Primary()
	require.True(t, ok)
	assert.Equal(t, StatusUnresolved, p.Status)
	assert.Len(t, del.to(1), 1)
}

func TestDispatchFailureDoesNotAbortOthers(t *testing.T) {
	t.Parallel()

	del := &fakeDeliverer{fail: map[int64]error{
		primaryChat: errors.New("chat not found"),
		2:           errors.New("bot was blocked by the user"),
	}}
	d := newDispatcher(
		fakeResolver{channels: map[string]int64{"#media": primaryChat}, noDM: map[int64]bool{4: true}},
		del,
		fakeSubs{subs: []subscription.Subscription{sub(1, "bat"), sub(2, "bat"), sub(3, "bat"), sub(4, "bat")}},
	)

	rep := d.Dispatch(t.Context(), batmanBegins(), "#media")

	assert.Equal(t, 2, rep.Count(StatusDelivered))
	assert.Equal(t, 2, rep.Count(StatusFailed))
	assert.Equal(t, 1, rep.Count(StatusUnresolved))

	var owners []int64
	for _, o := range rep.Outcomes[1:] {
		owners = append(owners, o.OwnerID)
	}
	assert.True(t, sort.SliceIsSorted(owners, func(i, j int) bool { return owners[i] < owners[j] }), "outcomes keep match order")
	assert.Equal(t, "bot was blocked by the user", rep.Outcomes[2].Err)
}

func TestDispatchSubscriptionReadErrorStillPostsPrimary(t *testing.T) {
	t.Parallel()

	del := &fakeDeliverer{}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(1, "fanout.")
	defer unsub()

	d := New(Deps{
		Resolver:      fakeResolver{channels: map[string]int64{"#media": primaryChat}},
		Deliverer:     del,
		Subscriptions: fakeSubs{err: errors.New("disk gone")},
		Bus:           bus,
	})
	rep := d.Dispatch(t.Context(), batmanBegins(), "#media")

	assert.Equal(t, "disk gone", rep.SubscriptionsErr)
	assert.Len(t, del.to(primaryChat), 1)
	ev := <-events
	assert.Equal(t, "fanout.dispatched", ev.Type)
	assert.Equal(t, rep.DispatchID, ev.Data.(Report).DispatchID)
}

func TestDispatchSeasonTitle(t *testing.T) {
	t.Parallel()

	del := &fakeDeliverer{}
	d := newDispatcher(fakeResolver{}, del, fakeSubs{subs: []subscription.Subscription{sub(9, "the wire")}})
	ev := media.Season{Common: media.Common{MediaType: "season"}, ShowName: "The Wire", SeasonNum: "03"}

	rep := d.Dispatch(t.Context(), ev, "")

	assert.Equal(t, "The Wire - S03", rep.Title)
	dm := del.to(9)
	require.Len(t, dm, 1)
	assert.Contains(t, dm[0].Preamble, "added _(or updated)_")
}

// panickyResolver blows up for one owner's private chat and for the
// "#broken" channel.
type panickyResolver struct {
	fakeResolver
	owner int64
}

func (p panickyResolver) ResolveChannel(ctx context.Context, spec string) (kit.ChatTarget, bool, error) {
	if spec == "#broken" {
		panic("channel lookup blew up")
	}
	return p.fakeResolver.ResolveChannel(ctx, spec)
}

func (p panickyResolver) ResolveDirect(ctx context.Context, userID int64) (kit.ChatTarget, bool, error) {
	if userID == p.owner {
		panic("resolver blew up")
	}
	return p.fakeResolver.ResolveDirect(ctx, userID)
}

func TestDispatchResolverPanicIsContained(t *testing.T) {
	t.Parallel()

	del := &fakeDeliverer{}
	d := New(Deps{
		Resolver:      panickyResolver{owner: 2},
		Deliverer:     del,
		Subscriptions: fakeSubs{subs: []subscription.Subscription{sub(1, "batman"), sub(2, "batman"), sub(3, "batman")}},
		Parallel:      3,
	})

	rep := d.Dispatch(t.Context(), batmanBegins(), "#broken")

	p, ok := rep.Primary()
	require.True(t, ok)
	assert.Equal(t, StatusFailed, p.Status)
	assert.Contains(t, p.Err, "channel lookup blew up")

	require.Len(t, rep.Outcomes, 4)
	byOwner := map[int64]RecipientOutcome{}
	for _, o := range rep.Outcomes[1:] {
		byOwner[o.OwnerID] = o
	}
	assert.Equal(t, StatusDelivered, byOwner[1].Status)
	assert.Equal(t, StatusFailed, byOwner[2].Status)
	assert.Contains(t, byOwner[2].Err, "resolver blew up")
	assert.Equal(t, StatusDelivered, byOwner[3].Status)
	assert.Len(t, del.to(1), 1)
	assert.Len(t, del.to(3), 1)
	assert.Equal(t, uint64(2), d.Stats().Failed)
}

func TestDispatchDelivererPanicIsContained(t *testing.T) {
	t.Parallel()

	d := New(Deps{
		Resolver:      fakeResolver{},
		Deliverer:     panickyDeliverer{},
		Subscriptions: fakeSubs{subs: []subscription.Subscription{sub(1, "batman")}},
	})
	rep := d.Dispatch(t.Context(), batmanBegins(), "")
	require.Len(t, rep.Outcomes, 2)
	assert.Equal(t, StatusFailed, rep.Outcomes[1].Status)
}

type panickyDeliverer struct{}

func (panickyDeliverer) Deliver(context.Context, kit.ChatTarget, notification.Notification) error {
	panic("send exploded")
}
