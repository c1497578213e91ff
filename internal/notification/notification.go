// Package notification holds the chat-neutral message produced for one
// media event. Transports decide how to draw it.
package notification

import "fmt"

type Field struct {
	Label string
	Value string
	// Short fields may be laid out side by side.
	Short bool
}

type Link struct {
	Label string
	URL   string
}

// Notification is built fresh per event and never mutated after rendering.
// Use ForSubscriber to derive the per-user variant.
type Notification struct {
	Kind      string
	Preamble  string
	Title     string
	TitleLink string
	Body      string
	Fields    []Field
	Links     []Link
	Color     string
	ImageURL  string

	// Subscribe is the keyword offered by a "Subscribe to Show" action.
	// Empty when the media type has no show to follow.
	Subscribe string

	// Keyword is set on subscriber variants only.
	Keyword string
}

// ForSubscriber returns a copy whose preamble names the keyword that matched.
// The receiver is left untouched.
func (n Notification) ForSubscriber(keyword string) Notification {
	cp := n
	cp.Fields = append([]Field(nil), n.Fields...)
	cp.Links = append([]Link(nil), n.Links...)
	cp.Keyword = keyword
	cp.Preamble = SubscriberPrefix(keyword) + n.Preamble
	return cp
}

func SubscriberPrefix(keyword string) string {
	return fmt.Sprintf("Notifying based on keyword '%s'\n", keyword)
}
