package router

import (
	"html"
	"slices"
	"strings"
)

// helpText renders Telegram HTML help for the whole tree (empty path) or
// for one command path. The first token may be an alias.
func (m *CommandManager) helpText(path []string) string {
	m.mu.RLock()
	root, alias := m.root, m.alias
	m.mu.RUnlock()

	if len(path) == 0 {
		return helpTop(root)
	}

	cur, full := root, make([]string, 0, len(path))
	for _, p := range path {
		n, ok := cur.child(p)
		if !ok {
			leaf := alias[p]
			if leaf == nil || leaf.cmd == nil {
				return "❓ <b>Unknown command</b>\nType <code>/help</code> to list commands."
			}
			cur, full = leaf, splitRoute(leaf.cmd.Route)
			break
		}
		cur, full = n, append(full, p)
	}
	return helpNode(cur, full)
}

// helpRow is one "• /cmd: description" line; owner-only rows get a lock.
func helpRow(cmd, desc string, ownerOnly bool) string {
	var b strings.Builder
	b.WriteString("• ")
	if ownerOnly {
		b.WriteString("🔒 ")
	}
	b.WriteString("<code>" + html.EscapeString(cmd) + "</code>")
	if desc != "" {
		b.WriteString(": " + html.EscapeString(desc))
	}
	return b.String()
}

func helpTop(root *cmdNode) string {
	type row struct {
		name, desc string
		lock       bool
	}
	var rows []row
	for _, name := range root.childNames() {
		if n, _ := root.child(name); n != nil {
			rows = append(rows, row{name, summarizeNodeDesc(n), nodeIsOwnerOnly(n)})
		}
	}
	// Owner-only commands go last.
	slices.SortStableFunc(rows, func(a, b row) int {
		switch {
		case a.lock == b.lock:
			return strings.Compare(a.name, b.name)
		case a.lock:
			return 1
		default:
			return -1
		}
	})

	lines := []string{"📚 <b>Commands</b>", "Type <code>/help &lt;command&gt;</code> for details.", ""}
	for _, r := range rows {
		lines = append(lines, helpRow("/"+r.name, r.desc, r.lock))
	}
	return strings.Join(lines, "\n")
}

func helpNode(cur *cmdNode, full []string) string {
	lines := []string{"📚 <b>Help</b> <code>" + html.EscapeString("/"+strings.Join(full, " ")) + "</code>"}

	if c := cur.cmd; c != nil {
		if d := strings.TrimSpace(c.Description); d != "" {
			lines = append(lines, html.EscapeString(d))
		}
		if c.Access == AccessOwnerOnly {
			lines = append(lines, "🔒 <i>Owner only</i>")
		}
		if u := strings.TrimSpace(c.Usage); u != "" {
			lines = append(lines, "", "<b>Usage</b>", "<code>"+html.EscapeString(u)+"</code>")
		}
		if short := buildShortcuts(*c); len(short) > 0 {
			lines = append(lines, "", "<b>Shortcuts</b>")
			for _, s := range short {
				lines = append(lines, "• <code>/"+html.EscapeString(s)+"</code>")
			}
		}
	} else {
		lines = append(lines, "Command group.")
		if nodeIsOwnerOnly(cur) {
			lines = append(lines, "🔒 <i>Owner only</i>")
		}
	}

	if len(cur.children) > 0 {
		lines = append(lines, "", "<b>Subcommands</b>")
		for _, name := range cur.childNames() {
			n, _ := cur.child(name)
			cmd := "/" + strings.Join(append(slices.Clone(full), name), " ")
			lines = append(lines, helpRow(cmd, summarizeNodeDesc(n), nodeIsOwnerOnly(n)))
		}
	}
	return strings.Join(lines, "\n")
}

// summarizeNodeDesc is the command description, or for a bare group the
// first few subcommand names.
func summarizeNodeDesc(n *cmdNode) string {
	if n == nil {
		return ""
	}
	if n.cmd != nil {
		if d := strings.TrimSpace(n.cmd.Description); d != "" {
			return d
		}
	}
	kids := n.childNames()
	if len(kids) == 0 {
		return ""
	}
	s := strings.Join(kids[:min(3, len(kids))], ", ")
	if len(kids) > 3 {
		s += ", …"
	}
	return "subcommands: " + s
}

// nodeIsOwnerOnly reports whether every command at or below n is
// owner-only.
func nodeIsOwnerOnly(n *cmdNode) bool {
	if n == nil {
		return false
	}
	if n.cmd != nil {
		return n.cmd.Access == AccessOwnerOnly
	}
	for _, ch := range n.children {
		if !nodeIsOwnerOnly(ch) {
			return false
		}
	}
	return true
}

// buildShortcuts lists every slash form that reaches c: the flattened
// route plus each single-token alias.
func buildShortcuts(c Command) []string {
	var out []string
	if name, ok := telegramCommandNameFromRoute(splitRoute(c.Route)); ok {
		out = append(out, name)
	}
	for _, a := range c.Aliases {
		a = strings.TrimSpace(a)
		if a == "" || strings.Contains(a, " ") {
			continue
		}
		out = append(out, a)
		if sa := sanitizeTelegramCommand(a); sa != "" {
			out = append(out, sa)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
