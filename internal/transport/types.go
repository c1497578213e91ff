package transport

import (
	"context"

	"mediabot/internal/notification"
)

type UpdateKind string

const (
	UpdateMessage  UpdateKind = "message"
	UpdateCallback UpdateKind = "callback"
)

type Update struct {
	Kind     UpdateKind
	Message  *Message
	Callback *Callback
}

type Message struct {
	ID           int
	ChatID       int64
	ThreadID     int // telegram forum topic thread id (0 if none)
	FromID       int64
	FromUsername string
	FromName     string
	Text         string
	IsPrivate    bool
}

type Callback struct {
	ID           string
	FromID       int64
	FromUsername string
	FromName     string
	ChatID       int64
	ThreadID     int
	MessageID    int
	Data         string
}

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

func (t ChatTarget) IsZero() bool { return t.ChatID == 0 }

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode          string
	DisablePreview     bool
	ReplyMarkupAdapter any // adapter-specific markup (Telegram: *telebot.ReplyMarkup)
}

type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	AnswerCallback(ctx context.Context, callbackID string, text string) error
}

// NotificationSender draws a rendered notification in the platform's own
// markup and posts it.
type NotificationSender interface {
	SendNotification(ctx context.Context, to ChatTarget, n notification.Notification) (MessageRef, error)
}

// Resolver maps destinations onto chats. ok=false means the destination
// does not exist (or cannot be reached) and the delivery should be skipped.
type Resolver interface {
	// ResolveChannel understands "#name" (configured channel), "@name"
	// (user or public channel) and numeric chat ids.
	ResolveChannel(ctx context.Context, spec string) (to ChatTarget, ok bool, err error)
	// ResolveDirect returns the private chat between the bot and userID.
	ResolveDirect(ctx context.Context, userID int64) (to ChatTarget, ok bool, err error)
}

// BotCommand represents a single bot command menu entry.
type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is an optional interface that adapters can implement
// to update platform-specific bot command menus (e.g. Telegram /menu list).
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}
