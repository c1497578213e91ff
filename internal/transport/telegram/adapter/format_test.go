package adapter

import (
	"strings"
	"testing"

	"mediabot/internal/notification"
	kit "mediabot/internal/transport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatNotification(t *testing.T) {
	t.Parallel()

	n := notification.Notification{
		Preamble:  "A new *movie* was recently added in library *Movies & More* on server *plex*.",
		Title:     "Batman Begins (2005)",
		TitleLink: "https://plex/x?a=1&b=2",
		Body:      ">Evil fears the knight.\n*Summary: *Bruce <returns>.",
		Fields: []notification.Field{
			{Label: "Studio", Value: "Warner Bros.", Short: true},
			{Label: "Ratings", Value: "Critic: 8.4\nAudience: 9.0", Short: true},
		},
		Color: "#FFC12B",
	}
	got := FormatNotification(n.ForSubscriber("batman"), "Tautulli")

	want := strings.Join([]string{
		"<b>Tautulli</b>",
		"Notifying based on keyword &#39;batman&#39;",
		"A new <b>movie</b> was recently added in library <b>Movies &amp; More</b> on server <b>plex</b>.",
		"",
		`🟨 <a href="https://plex/x?a=1&amp;b=2"><b>Batman Begins (2005)</b></a>`,
		"<blockquote>Evil fears the knight.</blockquote>",
		"<b>Summary: </b>Bruce &lt;returns&gt;.",
		"",
		"<b>Studio:</b> Warner Bros.",
		"<b>Ratings:</b>",
		"Critic: 8.4\nAudience: 9.0",
	}, "\n")
	assert.Equal(t, want, got)
}

func TestInlineMarkupLeavesUnbalancedMarkers(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "a * b <i>(or updated)</i>", inlineMarkup("a * b _(or updated)_"))
}

func TestNotificationMarkup(t *testing.T) {
	t.Parallel()

	n := notification.Notification{
		Links: []notification.Link{
			{Label: "View on Plex", URL: "https://plex"},
			{Label: "View on IMDb", URL: "https://imdb"},
			{Label: "View on TVMaze", URL: "https://tvmaze"},
		},
		Subscribe: "the wire",
	}
	rm := notificationMarkup(n)
	require.NotNil(t, rm)
	require.Len(t, rm.InlineKeyboard, 3)
	assert.Len(t, rm.InlineKeyboard[0], 2)
	assert.Len(t, rm.InlineKeyboard[1], 1)
	assert.Equal(t, "kw:add:the wire", rm.InlineKeyboard[2][0].Data)

	assert.Nil(t, notificationMarkup(notification.Notification{}))
}

func TestSubscribeDataFitsTelegramLimit(t *testing.T) {
	t.Parallel()
	d := subscribeData(strings.Repeat("ж", 40))
	assert.LessOrEqual(t, len(d), callbackDataLimit)
	assert.True(t, strings.HasPrefix(d, SubscribeCallback))
}

func TestColorEmoji(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "🟨", colorEmoji("#FFC12B"))
	assert.Equal(t, "🟦", colorEmoji("#0344b7"))
	assert.Equal(t, "🟥", colorEmoji("#CC2004"))
	assert.Equal(t, "⬛", colorEmoji("#000000"))
	assert.Equal(t, "⬛", colorEmoji("nope"))
}

func TestResolveChannelByConfiguredName(t *testing.T) {
	t.Parallel()

	a := &Adapter{}
	a.Apply(map[string]kit.ChatTarget{"#Media": {ChatID: -1001, ThreadID: 5}}, "")

	to, ok, err := a.ResolveChannel(t.Context(), "#media")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, kit.ChatTarget{ChatID: -1001, ThreadID: 5}, to)

	_, ok, err = a.ResolveChannel(t.Context(), "#missing")
	require.NoError(t, err)
	assert.False(t, ok)

	to, ok, err = a.ResolveDirect(t.Context(), 42)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(42), to.ChatID)
}

func TestSplitText(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"short"}, splitText("short", 10))

	parts := splitText("aaaa\nbbbb\ncccc\n", 10)
	assert.Equal(t, []string{"aaaa\nbbbb", "cccc"}, parts)

	long := strings.Repeat("é", 25)
	parts = splitText(long, 10)
	require.Len(t, parts, 3)
	assert.Equal(t, strings.Repeat("é", 10), parts[0])
	assert.Equal(t, strings.Repeat("é", 5), parts[2])
}
