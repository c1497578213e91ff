package router

import (
	"slices"
	"strings"
	"unicode/utf8"

	kit "mediabot/internal/transport"
)

const (
	maxMenuCommands = 100
	maxMenuName     = 32
	maxMenuDesc     = 256
)

// sanitizeTelegramCommand maps a route token or alias onto the bot
// command alphabet [a-z0-9_]{1,32}. Separators collapse into one
// underscore and anything else is dropped.
func sanitizeTelegramCommand(s string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
		case r == '_', r == '-', r == '/', r == ' ', r == '\t':
			pendingSep = true
		}
	}
	out := b.String()
	if out != "" && out[0] >= '0' && out[0] <= '9' {
		out = "cmd_" + out
	}
	if len(out) > maxMenuName {
		out = strings.TrimRight(out[:maxMenuName], "_")
	}
	return out
}

// telegramCommandNameFromRoute flattens a route: ["keywords","add"] ->
// "keywords_add".
func telegramCommandNameFromRoute(route []string) (string, bool) {
	if len(route) == 0 {
		return "", false
	}
	out := sanitizeTelegramCommand(strings.Join(route, "_"))
	return out, out != ""
}

type menuEntry struct {
	kit.BotCommand
	leaf bool
}

// buildTelegramMenuCommands lists top-level commands first and then the
// flattened shortcuts of nested routes. Owner-only entries carry a lock.
func buildTelegramMenuCommands(root *cmdNode, leafCmds []Command) []kit.BotCommand {
	byName := map[string]menuEntry{}
	add := func(name, desc string, ownerOnly, leaf bool) {
		name = sanitizeTelegramCommand(name)
		if name == "" {
			return
		}
		if _, ok := byName[name]; ok && leaf {
			return
		}
		desc = strings.Join(strings.Fields(desc), " ")
		if desc == "" {
			desc = name
		}
		if ownerOnly {
			desc = "🔒 " + desc
		}
		byName[name] = menuEntry{BotCommand: kit.BotCommand{Command: name, Description: clipUTF8(desc, maxMenuDesc)}, leaf: leaf}
	}

	if root != nil {
		for _, name := range root.childNames() {
			if n, _ := root.child(name); n != nil {
				add(name, summarizeNodeDesc(n), nodeIsOwnerOnly(n), false)
			}
		}
	}
	for _, c := range leafCmds {
		route := splitRoute(c.Route)
		if len(route) < 2 {
			continue
		}
		if name, ok := telegramCommandNameFromRoute(route); ok {
			desc := c.Description
			if strings.TrimSpace(desc) == "" {
				desc = strings.Join(route, " ")
			}
			add(name, desc, c.Access == AccessOwnerOnly, true)
		}
	}

	entries := make([]menuEntry, 0, len(byName))
	for _, e := range byName {
		entries = append(entries, e)
	}
	slices.SortFunc(entries, func(a, b menuEntry) int {
		if a.leaf != b.leaf {
			if a.leaf {
				return 1
			}
			return -1
		}
		return strings.Compare(a.Command, b.Command)
	})

	out := make([]kit.BotCommand, 0, min(len(entries), maxMenuCommands))
	for _, e := range entries[:min(len(entries), maxMenuCommands)] {
		out = append(out, e.BotCommand)
	}
	return out
}

// clipUTF8 cuts s to at most n bytes without splitting a rune.
func clipUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[:n]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}
