package fanout

import (
	"time"

	"mediabot/internal/metrics"
)

// Status of one recipient.
type Status string

const (
	StatusDelivered  Status = metrics.OutcomeDelivered
	StatusUnresolved Status = metrics.OutcomeUnresolved
	StatusFailed     Status = metrics.OutcomeFailed
)

// Target kinds.
const (
	TargetPrimary    = metrics.TargetPrimary
	TargetSubscriber = metrics.TargetSubscriber
)

type RecipientOutcome struct {
	Target string `json:"target"`
	// Destination is the primary spec ("#media"); empty for subscribers.
	Destination string `json:"destination,omitempty"`
	OwnerID     int64  `json:"owner_id,omitempty"`
	Keyword     string `json:"keyword,omitempty"`
	Status      Status `json:"status"`
	Err         string `json:"error,omitempty"`
}

// Report describes one dispatch. It is informational: a dispatch with
// failed recipients still succeeded.
type Report struct {
	DispatchID string             `json:"dispatch_id"`
	MediaType  string             `json:"media_type"`
	Title      string             `json:"title"`
	Matched    int                `json:"matched"`
	Outcomes   []RecipientOutcome `json:"outcomes"`
	StartedAt  time.Time          `json:"started_at"`
	Elapsed    time.Duration      `json:"elapsed"`
	// SubscriptionsErr is set when the subscriber set could not be read;
	// only the primary destination was attempted.
	SubscriptionsErr string `json:"subscriptions_error,omitempty"`
}

// Count returns how many outcomes have status s.
func (r Report) Count(s Status) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == s {
			n++
		}
	}
	return n
}

// Primary returns the primary outcome, if one was attempted.
func (r Report) Primary() (RecipientOutcome, bool) {
	for _, o := range r.Outcomes {
		if o.Target == TargetPrimary {
			return o, true
		}
	}
	return RecipientOutcome{}, false
}
