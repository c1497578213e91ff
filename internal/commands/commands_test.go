package commands

import (
	"context"
	"errors"
	"sync"
	"testing"

	"mediabot/internal/config"
	"mediabot/internal/fanout"
	"mediabot/internal/notification"
	"mediabot/internal/notifier"
	"mediabot/internal/storage"
	"mediabot/internal/subscription"
	kit "mediabot/internal/transport"
	"mediabot/internal/transport/telegram/router"
	logx "mediabot/pkg/logx"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAdapter struct {
	mu   sync.Mutex
	last string
}

func (f *fakeAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                     { return nil }
func (f *fakeAdapter) AnswerCallback(context.Context, string, string) error {
	return nil
}

func (f *fakeAdapter) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	f.last = text
	f.mu.Unlock()
	return kit.MessageRef{ChatID: to.ChatID}, nil
}

func (f *fakeAdapter) reply() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

type fixture struct {
	h   *Handlers
	reg *subscription.Registry
	ad  *fakeAdapter
	cfg *config.Config
}

func newFixture(t *testing.T, limit int) *fixture {
	t.Helper()
	reg := subscription.NewRegistry(storage.NewMemory(), logx.Nop())
	return &fixture{
		h:   New(Deps{Registry: reg}),
		reg: reg,
		ad:  &fakeAdapter{},
		cfg: &config.Config{RecentlyAdded: config.RecentlyAddedConfig{KeywordsLimit: limit}},
	}
}

func (f *fixture) run(t *testing.T, from int64, args ...string) string {
	t.Helper()
	req := &router.Request{
		Chat:     kit.ChatTarget{ChatID: from},
		FromID:   from,
		FromName: "user",
		Args:     args,
		Adapter:  f.ad,
		Config:   f.cfg,
		Logger:   logx.Nop(),
	}
	require.NoError(t, f.h.cmdKeywords(t.Context(), req))
	return f.ad.reply()
}

func TestKeywordsCommand(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 2)

	assert.Equal(t, "Too few arguments!", f.run(t, 1))
	assert.Equal(t, "Invalid action!", f.run(t, 1, "rename", "x"))
	assert.Equal(t, "None found!", f.run(t, 1, "list"))

	assert.Equal(t, "Keyword <code>the wire</code> added!", f.run(t, 1, "add", "The", "Wire"))
	assert.Equal(t, "Keyword <code>the wire</code> already exists!", f.run(t, 1, "ADD", "the wire"))
	assert.Equal(t, "Keyword required for add action!", f.run(t, 1, "add"))
	assert.Equal(t, "Keyword <code>batman</code> added!", f.run(t, 1, "add", "batman"))
	assert.Contains(t, f.run(t, 1, "add", "dune"), "keyword limit")

	list := f.run(t, 1, "list")
	assert.Contains(t, list, "<code>the wire</code>")
	assert.Contains(t, list, "<code>batman</code>")

	assert.Equal(t, "Keyword <code>batman</code> removed!", f.run(t, 1, "remove", "Batman"))
	assert.Equal(t, "Keyword <code>batman</code> doesn&#39;t exist!", f.run(t, 1, "remove", "batman"))

	// Other owners are unaffected by owner 1's limit.
	assert.Equal(t, "None found!", f.run(t, 2, "list"))
}

func TestKeywordTooLong(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 0)
	assert.Contains(t, f.run(t, 1, "add", "abcdefghijklmnopqrstu"), "Keyword too long!")
}

func TestSubscribeCallback(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 0)

	req := &router.Request{
		Chat: kit.ChatTarget{ChatID: 9}, FromID: 9, FromName: "nine",
		Adapter: f.ad, Config: f.cfg, Logger: logx.Nop(),
	}
	require.NoError(t, f.h.cbSubscribe(t.Context(), req, "The Wire"))
	assert.Equal(t, "Keyword 'the wire' added!", f.ad.reply())

	subs, err := f.reg.List(t.Context(), 9)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "nine", subs[0].OwnerName)

	req2 := &router.Request{
		Chat: kit.ChatTarget{ChatID: 9}, FromID: 9,
		Adapter: f.ad, Config: f.cfg, Logger: logx.Nop(),
	}
	require.NoError(t, f.h.cbSubscribe(t.Context(), req2, "the wire"))
	assert.Equal(t, "Keyword 'the wire' already exists!", f.ad.reply())
}

type failingRegistry struct{ Registry }

func (failingRegistry) List(context.Context, int64) ([]subscription.Subscription, error) {
	return nil, errors.New("disk on fire")
}

func (failingRegistry) All(context.Context) ([]subscription.Subscription, error) {
	return nil, errors.New("disk on fire")
}

func TestKeywordsStorageFailure(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}
	h := New(Deps{Registry: failingRegistry{}})
	req := &router.Request{Chat: kit.ChatTarget{ChatID: 1}, FromID: 1, Args: []string{"list"}, Adapter: ad, Logger: logx.Nop()}
	require.Error(t, h.cmdKeywords(t.Context(), req))
	assert.Equal(t, "Something went wrong, try again later.", ad.reply())
}

type okSender struct{}

func (okSender) SendNotification(_ context.Context, to kit.ChatTarget, _ notification.Notification) (kit.MessageRef, error) {
	return kit.MessageRef{ChatID: to.ChatID}, nil
}

func TestStatusText(t *testing.T) {
	t.Parallel()

	reg := subscription.NewRegistry(storage.NewMemory(), logx.Nop())
	_, err := reg.Add(t.Context(), subscription.Owner{ID: 1}, "batman", 0)
	require.NoError(t, err)
	_, err = reg.Add(t.Context(), subscription.Owner{ID: 2}, "dune", 0)
	require.NoError(t, err)

	ntf := notifier.New(notifier.Config{}, okSender{}, logx.Nop(), nil)
	require.NoError(t, ntf.Deliver(t.Context(), kit.ChatTarget{ChatID: 5}, notification.Notification{Title: "Dune <2021>"}))

	h := New(Deps{
		Registry:   reg,
		Notifier:   ntf,
		Dispatcher: fanout.New(fanout.Deps{}),
	})
	txt := h.statusText(t.Context())
	assert.Contains(t, txt, "subscriptions: 2 keywords, 2 users")
	assert.Contains(t, txt, "dispatches: 0")
	assert.Contains(t, txt, "notifier: sent 1, failed 0")
	assert.Contains(t, txt, "Dune &lt;2021&gt;")

	txt = New(Deps{Registry: failingRegistry{}}).statusText(t.Context())
	assert.Contains(t, txt, "unavailable")
}

func TestCodeHTML(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "Keyword <code>a&lt;b</code> added!", codeHTML("Keyword `a<b` added!"))
	assert.Equal(t, "odd ` tick", codeHTML("odd ` tick"))
}
