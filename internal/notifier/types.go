package notifier

import "time"

type Config struct {
	RatePerSec  int
	SendTimeout time.Duration
	// DedupWindow suppresses an identical notification to the same chat
	// (a re-sent webhook). 0 disables.
	DedupWindow     time.Duration
	DedupMaxEntries int
}

type HistoryItem struct {
	At      time.Time
	ChatID  int64
	Title   string
	Keyword string
	Err     string
}

// DeliveryEvent is emitted on the event bus for notifier lifecycle events.
// Keep it small; Data may be logged/serialized by subscribers.
type DeliveryEvent struct {
	ChatID   int64     `json:"chat_id"`
	ThreadID int       `json:"thread_id,omitempty"`
	Title    string    `json:"title"`
	Keyword  string    `json:"keyword,omitempty"`
	Key      string    `json:"key"`
	At       time.Time `json:"at"`
	Error    string    `json:"error,omitempty"`
}

type Stats struct {
	Sent       uint64
	Failed     uint64
	Suppressed uint64
}
