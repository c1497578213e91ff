package config

import (
	"fmt"
	"strings"
	"time"
)

// DurationError reports a config duration that could not be used. Field is
// the dotted yaml path, e.g. "notifier.dedup_window".
type DurationError struct {
	Field string
	Value string
	Err   error
}

func (e *DurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %q is not a duration (want e.g. \"10s\", \"2m\"): %v", e.Field, e.Value, e.Err)
	}
	return fmt.Sprintf("%s: %q: duration must be >= 0", e.Field, e.Value)
}

func (e *DurationError) Unwrap() error { return e.Err }

// durationFields lists every duration-valued setting by its yaml path.
func durationFields(cfg *Config) map[string]string {
	return map[string]string{
		"telegram.poll_timeout": cfg.Telegram.PollTimeout,
		"webhook.read_timeout":  cfg.Webhook.ReadTimeout,
		"webhook.write_timeout": cfg.Webhook.WriteTimeout,
		"notifier.send_timeout": cfg.Notifier.SendTimeout,
		"notifier.dedup_window": cfg.Notifier.DedupWindow,
		"storage.busy_timeout":  cfg.Storage.BusyTimeout,
	}
}

// ParseDurationField parses the setting at field. Blank means zero.
func ParseDurationField(field, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	switch {
	case err != nil:
		return 0, &DurationError{Field: field, Value: s, Err: err}
	case d < 0:
		return 0, &DurationError{Field: field, Value: s}
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with def standing in for
// blank or zero.
func ParseDurationOrDefault(field, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(field, raw)
	if err != nil || d > 0 {
		return d, err
	}
	return def, nil
}
