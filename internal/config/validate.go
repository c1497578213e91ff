package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"

	kit "mediabot/internal/transport"
	"mediabot/internal/validation"
)

var structValidator = validation.New()

// Validate checks cfg beyond what strict decoding catches. All problems
// are reported together.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	if err := structValidator.Struct(cfg); err != nil {
		errs = append(errs, err)
	}

	for path, raw := range durationFields(cfg) {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "", "memory", "mem":
	default:
		if strings.TrimSpace(cfg.Storage.Path) == "" {
			errs = append(errs, fmt.Errorf("storage.path: required for driver %q", cfg.Storage.Driver))
		}
	}
	if s := strings.TrimSpace(cfg.Storage.CompactSchedule); s != "" {
		if _, err := cron.ParseStandard(s); err != nil {
			errs = append(errs, fmt.Errorf("storage.compact_schedule: %w", err))
		}
	}

	if g := strings.TrimSpace(cfg.Telegram.GroupLog); g != "" {
		if _, ok := kit.ParseChatTarget(g); !ok {
			errs = append(errs, fmt.Errorf("telegram.group_log: %q is not <chat_id>[:<thread_id>]", g))
		}
	}
	if cfg.Logging.Telegram.Enabled && strings.TrimSpace(cfg.Telegram.GroupLog) == "" {
		errs = append(errs, errors.New("logging.telegram.enabled: requires telegram.group_log"))
	}
	for name, raw := range cfg.RecentlyAdded.Channels {
		if strings.TrimSpace(strings.TrimPrefix(name, "#")) == "" {
			errs = append(errs, errors.New("recently_added.channels: empty channel name"))
			continue
		}
		if _, ok := kit.ParseChatTarget(raw); !ok {
			errs = append(errs, fmt.Errorf("recently_added.channels.%s: %q is not <chat_id>[:<thread_id>]", name, raw))
		}
	}
	return errors.Join(errs...)
}

// ChannelTargets resolves the configured channel names into chat targets.
// Call after Validate; unparsable entries are skipped.
func (c *Config) ChannelTargets() map[string]kit.ChatTarget {
	out := make(map[string]kit.ChatTarget, len(c.RecentlyAdded.Channels))
	for name, raw := range c.RecentlyAdded.Channels {
		if to, ok := kit.ParseChatTarget(raw); ok {
			out[name] = to
		}
	}
	return out
}

// GroupLogTarget is the chat mirrored log lines go to (zero when unset).
func (c *Config) GroupLogTarget() kit.ChatTarget {
	to, _ := kit.ParseChatTarget(c.Telegram.GroupLog)
	return to
}

// IsOwner reports whether userID may use operator commands.
func (c *Config) IsOwner(userID int64) bool {
	if c == nil {
		return false
	}
	for _, id := range c.Telegram.OwnerUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}
