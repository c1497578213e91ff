package config

import (
	"reflect"
	"sort"
	"strings"

	logx "mediabot/pkg/logx"
)

// Change summarizes a reload: which sections differ, safe attrs for the
// log line (never tokens) and which changed sections only apply after a
// restart.
type Change struct {
	Sections        []string
	Attrs           []logx.Field
	RestartRequired []string
}

func (c Change) Empty() bool { return len(c.Sections) == 0 }

func SummarizeConfigChange(oldCfg, newCfg *Config) Change {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var c Change
	mark := func(section string, restart bool, attrs ...logx.Field) {
		c.Sections = append(c.Sections, section)
		c.Attrs = append(c.Attrs, attrs...)
		if restart {
			c.RestartRequired = append(c.RestartRequired, section)
		}
	}

	ot, nt := oldCfg.Telegram, newCfg.Telegram
	tokenChanged := ot.Token != nt.Token
	if tokenChanged || ot.PollTimeout != nt.PollTimeout || ot.GroupLog != nt.GroupLog ||
		!reflect.DeepEqual(ot.OwnerUserIDs, nt.OwnerUserIDs) {
		mark("telegram", tokenChanged || ot.PollTimeout != nt.PollTimeout,
			logx.Int("telegram.owner_count", len(nt.OwnerUserIDs)),
			logx.Bool("telegram.group_log_set", strings.TrimSpace(nt.GroupLog) != ""),
			logx.Bool("telegram.token_changed", tokenChanged),
		)
	}

	if oldCfg.Branding != newCfg.Branding {
		mark("branding", false, logx.String("branding.name", newCfg.Branding.Name))
	}

	if !reflect.DeepEqual(oldCfg.RecentlyAdded, newCfg.RecentlyAdded) {
		ra := newCfg.RecentlyAdded
		mark("recently_added", false,
			logx.String("recently_added.post_to", ra.PostTo),
			logx.Int("recently_added.keywords_limit", ra.KeywordsLimit),
			logx.Int("recently_added.channel_count", len(ra.Channels)),
		)
	}

	ow, nw := oldCfg.Webhook, newCfg.Webhook
	if ow != nw {
		listenerChanged := ow.Addr != nw.Addr || ow.ReadTimeout != nw.ReadTimeout || ow.WriteTimeout != nw.WriteTimeout
		mark("webhook", listenerChanged,
			logx.String("webhook.addr", nw.Addr),
			logx.Bool("webhook.token_set", strings.TrimSpace(nw.Token) != ""),
		)
	}

	if oldCfg.Notifier != newCfg.Notifier {
		n := newCfg.Notifier
		mark("notifier", false,
			logx.Int("notifier.rate_per_sec", n.RatePerSec),
			logx.Int("notifier.fanout_parallel", n.FanoutParallel),
			logx.String("notifier.send_timeout", n.SendTimeout),
			logx.String("notifier.dedup_window", n.DedupWindow),
		)
	}

	ost, nst := oldCfg.Storage, newCfg.Storage
	if ost != nst {
		reopen := ost.Driver != nst.Driver || ost.Path != nst.Path || ost.BusyTimeout != nst.BusyTimeout
		mark("storage", reopen,
			logx.String("storage.driver", nst.Driver),
			logx.Bool("storage.path_set", strings.TrimSpace(nst.Path) != ""),
			logx.String("storage.compact_schedule", nst.CompactSchedule),
		)
	}

	if oldCfg.Metrics != newCfg.Metrics {
		mark("metrics", true, logx.Bool("metrics.enabled", newCfg.Metrics.Enabled))
	}

	if oldCfg.Logging != newCfg.Logging {
		l := newCfg.Logging
		mark("logging", false,
			logx.String("logging.level", l.Level),
			logx.Bool("logging.console", l.Console),
			logx.Bool("logging.file_enabled", l.File.Enabled),
			logx.Bool("logging.telegram_enabled", l.Telegram.Enabled),
		)
	}

	sort.Strings(c.Sections)
	sort.Strings(c.RestartRequired)
	return c
}
