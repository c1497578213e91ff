// Package commands is the chat command surface: keyword management for
// every user, an operator status report, and the inline "Subscribe to
// Show" button.
package commands

import (
	"context"
	"errors"
	"html"
	"strings"
	"time"

	"mediabot/internal/fanout"
	"mediabot/internal/metrics"
	"mediabot/internal/notifier"
	"mediabot/internal/runtime/supervisor"
	"mediabot/internal/subscription"
	"mediabot/internal/transport/telegram/router"
	logx "mediabot/pkg/logx"
)

// Registry is the subscription store as seen by commands.
type Registry interface {
	Add(ctx context.Context, owner subscription.Owner, raw string, limit int) (subscription.Subscription, error)
	Remove(ctx context.Context, ownerID int64, raw string) error
	List(ctx context.Context, ownerID int64) ([]subscription.Subscription, error)
	All(ctx context.Context) ([]subscription.Subscription, error)
}

type Deps struct {
	Registry Registry
	Metrics  *metrics.Metrics
	Logger   logx.Logger

	// Status sources; any may be nil.
	Notifier   *notifier.Service
	Dispatcher *fanout.Dispatcher
	Supervisor *supervisor.Supervisor
}

type Handlers struct {
	reg       Registry
	metrics   *metrics.Metrics
	log       logx.Logger
	notifier  *notifier.Service
	dispatch  *fanout.Dispatcher
	sup       *supervisor.Supervisor
	startedAt time.Time
}

func New(d Deps) *Handlers {
	log := d.Logger
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Handlers{
		reg:       d.Registry,
		metrics:   d.Metrics,
		log:       log,
		notifier:  d.Notifier,
		dispatch:  d.Dispatcher,
		sup:       d.Supervisor,
		startedAt: time.Now(),
	}
}

// SetSupervisor attaches the task supervisor shown by /status. Call it
// before the command loop starts.
func (h *Handlers) SetSupervisor(s *supervisor.Supervisor) { h.sup = s }

func (h *Handlers) Commands() []router.Command {
	return []router.Command{
		{
			Route:       "keywords",
			Aliases:     []string{"kw"},
			Description: "manage your keyword notifications",
			Usage:       "/keywords add|remove|list [keyword]",
			Access:      router.AccessEveryone,
			Timeout:     15 * time.Second,
			Handle:      h.cmdKeywords,
		},
		{
			Route:       "status",
			Description: "delivery and subscription status (owner only)",
			Usage:       "/status",
			Access:      router.AccessOwnerOnly,
			Timeout:     10 * time.Second,
			Handle:      h.cmdStatus,
		},
	}
}

func (h *Handlers) Callbacks() []router.CallbackRoute {
	return []router.CallbackRoute{
		{
			Group:   "kw",
			Action:  "add",
			Access:  router.AccessEveryone,
			Timeout: 10 * time.Second,
			Handle:  h.cbSubscribe,
		},
	}
}

func (h *Handlers) cmdKeywords(ctx context.Context, req *router.Request) error {
	if len(req.Args) == 0 {
		return req.Reply(ctx, "Too few arguments!")
	}
	action := strings.ToLower(req.Args[0])
	keyword := strings.Join(req.Args[1:], " ")

	switch action {
	case "add":
		sub, err := h.reg.Add(ctx, owner(req), keyword, keywordsLimit(req))
		h.metrics.SubscriptionOp("add", err)
		if err != nil {
			return h.replyErr(ctx, req, err)
		}
		return req.ReplyHTML(ctx, codeHTML("Keyword `"+sub.Keyword+"` added!"))
	case "remove":
		err := h.reg.Remove(ctx, req.FromID, keyword)
		h.metrics.SubscriptionOp("remove", err)
		if err != nil {
			return h.replyErr(ctx, req, err)
		}
		return req.ReplyHTML(ctx, codeHTML("Keyword `"+subscription.Normalize(keyword)+"` removed!"))
	case "list":
		subs, err := h.reg.List(ctx, req.FromID)
		h.metrics.SubscriptionOp("list", err)
		if err != nil {
			return h.replyErr(ctx, req, err)
		}
		if len(subs) == 0 {
			return req.Reply(ctx, "None found!")
		}
		lines := []string{"<b>Keywords</b>"}
		for _, s := range subs {
			lines = append(lines, "• <code>"+html.EscapeString(s.Keyword)+"</code>")
		}
		return req.ReplyHTML(ctx, strings.Join(lines, "\n"))
	default:
		return req.Reply(ctx, "Invalid action!")
	}
}

// cbSubscribe handles the "Subscribe to Show" button; the payload is the
// keyword to add.
func (h *Handlers) cbSubscribe(ctx context.Context, req *router.Request, payload string) error {
	sub, err := h.reg.Add(ctx, owner(req), payload, keywordsLimit(req))
	h.metrics.SubscriptionOp("add", err)
	if err != nil {
		if msg := subscription.UserMessage(err); msg != "" {
			return req.Answer(ctx, plain(msg))
		}
		req.Logger.Error("subscribe button failed", logx.Err(err))
		_ = req.Answer(ctx, "Something went wrong, try again later.")
		return err
	}
	return req.Answer(ctx, "Keyword '"+sub.Keyword+"' added!")
}

// replyErr shows validation failures to the user; anything else is logged
// and answered generically.
func (h *Handlers) replyErr(ctx context.Context, req *router.Request, err error) error {
	if msg := subscription.UserMessage(err); msg != "" {
		return req.ReplyHTML(ctx, codeHTML(msg))
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		_ = req.Reply(ctx, "Timed out, try again.")
		return err
	}
	_ = req.Reply(ctx, "Something went wrong, try again later.")
	return err
}

func owner(req *router.Request) subscription.Owner {
	return subscription.Owner{ID: req.FromID, DisplayName: req.FromName}
}

func keywordsLimit(req *router.Request) int {
	if req.Config == nil {
		return 0
	}
	return req.Config.RecentlyAdded.KeywordsLimit
}

// codeHTML escapes s and turns `spans` into <code> elements.
func codeHTML(s string) string {
	parts := strings.Split(s, "`")
	if len(parts)%2 == 0 {
		return html.EscapeString(s)
	}
	var b strings.Builder
	for i, p := range parts {
		p = html.EscapeString(p)
		if i%2 == 1 {
			b.WriteString("<code>" + p + "</code>")
			continue
		}
		b.WriteString(p)
	}
	return b.String()
}

// plain swaps backticks for quotes; callback toasts have no markup.
func plain(s string) string {
	return strings.ReplaceAll(s, "`", "'")
}
