package config

// Config is the on-disk YAML configuration.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Logging   LoggingConfig   `yaml:"logging"`
	Storage   StorageConfig   `yaml:"storage"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Notify    NotifyConfig    `yaml:"notify"`
	Cache     CacheConfig     `yaml:"cache"`
	Retention RetentionConfig `yaml:"retention"`
	Admin     AdminConfig     `yaml:"admin"`
}

type LoggingConfig struct {
	Level   string        `yaml:"level"`
	Console bool          `yaml:"console"`
	File    LogFileConfig `yaml:"file"`
}

type LogFileConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type StorageConfig struct {
	Path        string `yaml:"path"`
	BusyTimeout string `yaml:"busy_timeout"`
}

// SchedulerConfig controls the job families.
type SchedulerConfig struct {
	Timezone string                  `yaml:"timezone"` // IANA TZ, e.g. "Europe/Berlin"
	Families map[string]FamilyConfig `yaml:"families"`
}

type FamilyConfig struct {
	Enabled *bool `yaml:"enabled"` // nil means enabled
}

func (f FamilyConfig) IsEnabled() bool { return f.Enabled == nil || *f.Enabled }

// NotifyConfig controls the notification queue and delivery channels.
type NotifyConfig struct {
	Enabled       *bool          `yaml:"enabled"` // nil means enabled
	DrainInterval string         `yaml:"drain_interval"`
	BatchSize     int            `yaml:"batch_size"`
	RatePerSec    int            `yaml:"rate_per_sec"`
	Email         EmailConfig    `yaml:"email"`
	Push          PushConfig     `yaml:"push"`
	Telegram      TelegramConfig `yaml:"telegram"`
}

func (n NotifyConfig) IsEnabled() bool { return n.Enabled == nil || *n.Enabled }

type EmailConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	From     string `yaml:"from"`
	Username string `yaml:"username"`
	Password string `yaml:"password"` // do not log
}

type PushConfig struct {
	Enabled bool   `yaml:"enabled"`
	Timeout string `yaml:"timeout"`
}

// TelegramConfig enables the optional telegram delivery channel.
type TelegramConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"` // do not log
}

type CacheConfig struct {
	SweepInterval string `yaml:"sweep_interval"`
}

// RetentionConfig controls the dataCleanup job.
type RetentionConfig struct {
	ArchiveAfterDays int `yaml:"archive_after_days"` // default 90
	PurgeAfterDays   int `yaml:"purge_after_days"`   // default 365
}

type AdminConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"` // default "127.0.0.1:8780"
}
