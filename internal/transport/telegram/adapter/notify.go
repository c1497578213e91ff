package adapter

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	tele "gopkg.in/telebot.v4"

	"mediabot/internal/notification"
	kit "mediabot/internal/transport"
	logx "mediabot/pkg/logx"
)

// SendNotification posts n to a chat. With a poster that fits Telegram's
// caption limit the message is sent as a photo; otherwise as text.
func (a *Adapter) SendNotification(ctx context.Context, to kit.ChatTarget, n notification.Notification) (kit.MessageRef, error) {
	a.cfgMu.RLock()
	brand := a.brand
	a.cfgMu.RUnlock()

	text := FormatNotification(n, brand)
	markup := notificationMarkup(n)

	if n.ImageURL != "" && utf8.RuneCountInString(text) <= captionLimit {
		if err := ctx.Err(); err != nil {
			return kit.MessageRef{}, err
		}
		photo := &tele.Photo{File: tele.FromURL(n.ImageURL), Caption: text}
		opt := &tele.SendOptions{ParseMode: tele.ModeHTML, ThreadID: to.ThreadID, ReplyMarkup: markup}
		msg, err := a.bot.Send(&tele.Chat{ID: to.ChatID}, photo, opt)
		if err == nil {
			return kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}, nil
		}
		// Telegram fetches the poster itself; unreachable images are common.
		a.log.Debug("photo send failed; falling back to text", logx.Int64("chat_id", to.ChatID), logx.Err(err))
	}

	opt := &kit.SendOptions{ParseMode: tele.ModeHTML, DisablePreview: true}
	if markup != nil {
		opt.ReplyMarkupAdapter = markup
	}
	return a.SendText(ctx, to, text, opt)
}

// ResolveChannel maps a destination spec onto a chat.
//
//	#name    chat configured under recently_added.channels
//	@name    user or public channel looked up through the Bot API
//	-100123  numeric chat id, optionally "-100123:42" for a forum topic
func (a *Adapter) ResolveChannel(ctx context.Context, spec string) (kit.ChatTarget, bool, error) {
	spec = strings.TrimSpace(spec)
	switch {
	case spec == "":
		return kit.ChatTarget{}, false, nil
	case strings.HasPrefix(spec, "#"):
		a.cfgMu.RLock()
		to, ok := a.channels[strings.ToLower(spec[1:])]
		a.cfgMu.RUnlock()
		return to, ok && !to.IsZero(), nil
	case strings.HasPrefix(spec, "@"):
		if err := ctx.Err(); err != nil {
			return kit.ChatTarget{}, false, err
		}
		chat, err := a.bot.ChatByUsername(spec)
		if err != nil {
			return kit.ChatTarget{}, false, fmt.Errorf("lookup %s: %w", spec, err)
		}
		if chat == nil || chat.ID == 0 {
			return kit.ChatTarget{}, false, nil
		}
		return kit.ChatTarget{ChatID: chat.ID}, true, nil
	}
	to, ok := kit.ParseChatTarget(spec)
	return to, ok, nil
}

// ResolveDirect returns the private chat with userID. On Telegram that chat
// shares the user's id; delivery still fails if the user never started the bot.
func (a *Adapter) ResolveDirect(_ context.Context, userID int64) (kit.ChatTarget, bool, error) {
	if userID <= 0 {
		return kit.ChatTarget{}, false, nil
	}
	return kit.ChatTarget{ChatID: userID}, true, nil
}
