package config

// Config is the whole configuration file. Durations are Go duration
// strings ("500ms", "10s", "1m").
type Config struct {
	Telegram      TelegramConfig      `json:"telegram"`
	Branding      BrandingConfig      `json:"branding"`
	RecentlyAdded RecentlyAddedConfig `json:"recently_added"`
	Webhook       WebhookConfig       `json:"webhook"`
	Notifier      NotifierConfig      `json:"notifier"`
	Storage       StorageConfig       `json:"storage"`
	Metrics       MetricsConfig       `json:"metrics"`
	Logging       LoggingConfig       `json:"logging"`
}

type TelegramConfig struct {
	Token        string  `json:"token" validate:"required"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	// GroupLog is "<chat_id>[:<thread_id>]" for the log mirror.
	GroupLog    string `json:"group_log"`
	PollTimeout string `json:"poll_timeout"`
}

type BrandingConfig struct {
	Name string `json:"name" validate:"max=64"`
}

// RecentlyAddedConfig controls where media notifications go.
//
// Example:
//
//	recently_added:
//	  post_to: "#media"
//	  keywords_limit: 10
//	  channels:
//	    media: "-1001234567890"
type RecentlyAddedConfig struct {
	// PostTo is the primary destination. Empty disables the primary post;
	// subscribers are still notified.
	PostTo        string `json:"post_to"`
	KeywordsLimit int    `json:"keywords_limit" validate:"gte=0"`
	// Channels maps a "#name" destination onto "<chat_id>[:<thread_id>]".
	Channels map[string]string `json:"channels"`
}

type WebhookConfig struct {
	Addr string `json:"addr" validate:"required,hostname_port"`
	// Token, when set, must arrive as ?token= or a Bearer header (do not log).
	Token        string `json:"token,omitempty"`
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	// MaxBodyBytes caps a webhook body; 0 means 1 MiB.
	MaxBodyBytes int64 `json:"max_body_bytes,omitempty" validate:"gte=0"`
}

// NotifierConfig controls delivery.
//
// Defaults (when zero):
//   - rate_per_sec: 20
//   - send_timeout: "10s"
//   - fanout_parallel: 4
//   - dedup_window: "0s" (disabled)
type NotifierConfig struct {
	RatePerSec     int    `json:"rate_per_sec" validate:"gte=0"`
	SendTimeout    string `json:"send_timeout,omitempty"`
	FanoutParallel int    `json:"fanout_parallel" validate:"gte=0,lte=64"`
	DedupWindow    string `json:"dedup_window,omitempty"`
}

// StorageConfig selects the keyword store.
//
//	storage: { driver: "sqlite", path: "./mediabot.db" }
type StorageConfig struct {
	Driver      string `json:"driver" validate:"omitempty,oneof=memory mem file sqlite sqlite3 badger"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
	// CompactSchedule is a cron spec ("@daily", "0 4 * * *") for store
	// maintenance. Empty disables it.
	CompactSchedule string `json:"compact_schedule,omitempty"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty" validate:"omitempty,startswith=/"`
}

type LoggingConfig struct {
	Level    string          `json:"level" validate:"omitempty,oneof=trace debug info warn warning error TRACE DEBUG INFO WARN WARNING ERROR"`
	Console  bool            `json:"console"`
	JSON     bool            `json:"json,omitempty"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec" validate:"gte=0"`
}
