package adapter

import (
	"html"
	"strconv"
	"strings"
	"unicode/utf8"

	tele "gopkg.in/telebot.v4"

	"mediabot/internal/notification"
)

// SubscribeCallback prefixes the inline "Subscribe to Show" button data.
// The router splits it as "<plugin>:<action>:<payload>".
const SubscribeCallback = "kw:add:"

// Telegram rejects callback data longer than this many bytes.
const callbackDataLimit = 64

const captionLimit = 1024

// FormatNotification renders n as Telegram HTML.
func FormatNotification(n notification.Notification, brand string) string {
	var lines []string
	if brand != "" {
		lines = append(lines, "<b>"+html.EscapeString(brand)+"</b>")
	}

	preamble := n.Preamble
	if n.Keyword != "" {
		prefix := notification.SubscriberPrefix(n.Keyword)
		if strings.HasPrefix(preamble, prefix) {
			lines = append(lines, html.EscapeString(strings.TrimSuffix(prefix, "\n")))
			preamble = strings.TrimPrefix(preamble, prefix)
		}
	}
	if preamble != "" {
		lines = append(lines, inlineMarkup(preamble))
	}
	lines = append(lines, "")

	title := "<b>" + html.EscapeString(n.Title) + "</b>"
	if n.TitleLink != "" {
		title = `<a href="` + html.EscapeString(n.TitleLink) + `">` + title + "</a>"
	}
	lines = append(lines, colorEmoji(n.Color)+" "+title)

	if n.Body != "" {
		for _, l := range strings.Split(n.Body, "\n") {
			if strings.HasPrefix(l, ">") {
				lines = append(lines, "<blockquote>"+html.EscapeString(strings.TrimPrefix(l, ">"))+"</blockquote>")
				continue
			}
			lines = append(lines, inlineMarkup(l))
		}
	}

	if len(n.Fields) > 0 {
		lines = append(lines, "")
		for _, f := range n.Fields {
			label := "<b>" + html.EscapeString(f.Label) + ":</b>"
			if strings.Contains(f.Value, "\n") || !f.Short {
				lines = append(lines, label, html.EscapeString(f.Value))
				continue
			}
			lines = append(lines, label+" "+html.EscapeString(f.Value))
		}
	}
	return strings.Join(lines, "\n")
}

// notificationMarkup lays out link buttons two per row, then the
// subscribe action on its own row.
func notificationMarkup(n notification.Notification) *tele.ReplyMarkup {
	var rows [][]tele.InlineButton
	var row []tele.InlineButton
	for _, l := range n.Links {
		row = append(row, tele.InlineButton{Text: l.Label, URL: l.URL})
		if len(row) == 2 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	if data := subscribeData(n.Subscribe); data != "" {
		rows = append(rows, []tele.InlineButton{{Text: "Subscribe to Show", Data: data}})
	}
	if len(rows) == 0 {
		return nil
	}
	return &tele.ReplyMarkup{InlineKeyboard: rows}
}

func subscribeData(keyword string) string {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return ""
	}
	for len(SubscribeCallback)+len(keyword) > callbackDataLimit {
		_, size := utf8.DecodeLastRuneInString(keyword)
		keyword = keyword[:len(keyword)-size]
	}
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return ""
	}
	return SubscribeCallback + keyword
}

// inlineMarkup escapes s and turns balanced *bold* and _italic_ spans into tags.
func inlineMarkup(s string) string {
	var b strings.Builder
	rs := []rune(s)
	for i := 0; i < len(rs); i++ {
		r := rs[i]
		if r == '*' || r == '_' {
			if j := indexRune(rs, r, i+1); j > i+1 {
				tag := "b"
				if r == '_' {
					tag = "i"
				}
				b.WriteString("<" + tag + ">")
				b.WriteString(inlineMarkup(string(rs[i+1 : j])))
				b.WriteString("</" + tag + ">")
				i = j
				continue
			}
		}
		b.WriteString(html.EscapeString(string(r)))
	}
	return b.String()
}

func indexRune(rs []rune, r rune, from int) int {
	for i := from; i < len(rs); i++ {
		if rs[i] == r {
			return i
		}
	}
	return -1
}

// colorEmoji approximates a hex color hint with a square emoji.
func colorEmoji(hex string) string {
	hex = strings.TrimPrefix(strings.TrimSpace(hex), "#")
	if len(hex) != 6 {
		return "⬛"
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return "⬛"
	}
	r, g, b := int(v>>16&0xff), int(v>>8&0xff), int(v&0xff)
	switch {
	case r < 0x20 && g < 0x20 && b < 0x20:
		return "⬛"
	case r > 0xc0 && g > 0x90 && b < 0x80:
		return "🟨"
	case b > r && b > g:
		return "🟦"
	case r > g && r > b:
		return "🟥"
	case g > r && g > b:
		return "🟩"
	default:
		return "⬜"
	}
}
