package commands

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"mediabot/internal/transport/telegram/router"
)

const statusHistory = 5

func (h *Handlers) cmdStatus(ctx context.Context, req *router.Request) error {
	return req.ReplyHTML(ctx, h.statusText(ctx))
}

func (h *Handlers) statusText(ctx context.Context) string {
	lines := []string{
		"📊 <b>Status</b>",
		"uptime: " + time.Since(h.startedAt).Truncate(time.Second).String(),
	}

	subs, err := h.reg.All(ctx)
	if err != nil {
		lines = append(lines, "subscriptions: <i>unavailable</i> ("+html.EscapeString(err.Error())+")")
	} else {
		owners := map[int64]struct{}{}
		for _, s := range subs {
			owners[s.OwnerID] = struct{}{}
		}
		lines = append(lines, fmt.Sprintf("subscriptions: %d keywords, %d users", len(subs), len(owners)))
	}

	if h.dispatch != nil {
		st := h.dispatch.Stats()
		line := fmt.Sprintf("dispatches: %d (delivered %d, unresolved %d, failed %d)",
			st.Dispatches, st.Delivered, st.Unresolved, st.Failed)
		if !st.LastAt.IsZero() {
			line += ", last " + st.LastAt.Format(time.RFC3339)
		}
		lines = append(lines, line)
	}

	if h.notifier != nil {
		st := h.notifier.Stats()
		lines = append(lines, fmt.Sprintf("notifier: sent %d, failed %d, suppressed %d", st.Sent, st.Failed, st.Suppressed))

		hist := h.notifier.Snapshot()
		if len(hist) > statusHistory {
			hist = hist[len(hist)-statusHistory:]
		}
		if len(hist) > 0 {
			lines = append(lines, "", "<b>Recent deliveries</b>")
		}
		for i := len(hist) - 1; i >= 0; i-- {
			it := hist[i]
			mark := "✅"
			if it.Err != "" {
				mark = "❌"
			}
			line := fmt.Sprintf("%s %s <code>%d</code> %s", mark, it.At.Format("15:04:05"), it.ChatID, html.EscapeString(it.Title))
			if it.Keyword != "" {
				line += " (" + html.EscapeString(it.Keyword) + ")"
			}
			lines = append(lines, line)
		}
	}

	if h.sup != nil {
		tasks := h.sup.Snapshot()
		if len(tasks) > 0 {
			lines = append(lines, "", "<b>Tasks</b>")
		}
		for _, t := range tasks {
			state := "stopped"
			if t.Running {
				state = "running"
			}
			line := fmt.Sprintf("• %s: %s", html.EscapeString(t.Name), state)
			if t.Starts > 1 {
				line += fmt.Sprintf(", %d restarts", t.Starts-1)
			}
			if t.LastErr != "" {
				line += " (" + html.EscapeString(t.LastErr) + ")"
			}
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
