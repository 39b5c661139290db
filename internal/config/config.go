package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

// Config is the single explicit configuration object passed to constructors.
// Values come from a YAML file first, then HSYNC_* environment variables
// override individual fields.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Registry RegistryConfig `mapstructure:"registry"`
	Platform PlatformConfig `mapstructure:"platform"`
	Sync     SyncConfig     `mapstructure:"sync"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Email    EmailConfig    `mapstructure:"email"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	RateLimit    float64       `mapstructure:"rate_limit"`
	RateBurst    int           `mapstructure:"rate_burst"`
}

type DatabaseConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user" validate:"required"`
	Password     string `mapstructure:"password"`
	Name         string `mapstructure:"name" validate:"required"`
	SSLMode      string `mapstructure:"ssl_mode"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

// RegistryConfig points at the hospital registry's record service.
type RegistryConfig struct {
	BaseURL        string        `mapstructure:"base_url" validate:"required,url"`
	Timeout        time.Duration `mapstructure:"timeout"`
	PageSize       int           `mapstructure:"page_size" validate:"gt=0"`
	MaxRecords     int           `mapstructure:"max_records"`
	InterPageDelay time.Duration `mapstructure:"inter_page_delay"`
}

// PlatformConfig points at the care-management platform API.
type PlatformConfig struct {
	BaseURL       string        `mapstructure:"base_url" validate:"required,url"`
	User          string        `mapstructure:"user" validate:"required"`
	Password      string        `mapstructure:"password"`
	Timeout       time.Duration `mapstructure:"timeout"`
	Timezone      string        `mapstructure:"timezone"`
	FieldCacheTTL time.Duration `mapstructure:"field_cache_ttl"`
}

// SyncConfig tunes the fetch and reconcile pipelines.
type SyncConfig struct {
	ReconcilePageSize       int    `mapstructure:"reconcile_page_size" validate:"gt=0"`
	MaxProceduresPerEpisode int    `mapstructure:"max_procedures_per_episode" validate:"gt=0"`
	AcuteProgramCode        string `mapstructure:"acute_program_code" validate:"required"`
	FollowUpProgramCode     string `mapstructure:"followup_program_code" validate:"required"`
	TeamCode                string `mapstructure:"team_code" validate:"required"`
	// Episodes discharged before this cutoff are historical and get closed on
	// import; later discharges leave the admission active for the care team.
	// Compared lexicographically in clinical time format; empty disables the
	// cutoff and every discharge closes its admission.
	DischargeDateThreshold string        `mapstructure:"discharge_date_threshold"`
	RecentDischargeWindow  time.Duration `mapstructure:"recent_discharge_window"`
	FetchInterval          time.Duration `mapstructure:"fetch_interval"`
	ReconcileInterval      time.Duration `mapstructure:"reconcile_interval"`
}

type RedisConfig struct {
	URL     string `mapstructure:"url"`
	Channel string `mapstructure:"channel"`
}

type EmailConfig struct {
	Enabled  bool     `mapstructure:"enabled"`
	Host     string   `mapstructure:"host"`
	Port     int      `mapstructure:"port"`
	Username string   `mapstructure:"username"`
	Password string   `mapstructure:"password"`
	From     string   `mapstructure:"from"`
	To       []string `mapstructure:"to"`
}

type LogConfig struct {
	Level   string `mapstructure:"level"`
	Console bool   `mapstructure:"console"`
}

// Load reads the YAML file at path (optional when empty), applies HSYNC_*
// environment overrides, fills defaults, and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := envconfig.Process("hsync", &cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate enforces field constraints plus the cross-field invariant that a
// drained page can always hold every fragment of one episode. A page smaller
// than an episode's procedure count would split the episode across pages and
// publish it from partial data.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.Sync.ReconcilePageSize < c.Sync.MaxProceduresPerEpisode {
		return fmt.Errorf("invalid configuration: reconcile_page_size (%d) must be at least max_procedures_per_episode (%d)",
			c.Sync.ReconcilePageSize, c.Sync.MaxProceduresPerEpisode)
	}

	if c.Email.Enabled {
		if c.Email.Host == "" || len(c.Email.To) == 0 {
			return fmt.Errorf("invalid configuration: email alerts enabled without host or recipients")
		}
	}
	return nil
}

func applyDefaults(cfg *Config) {
	setInt := func(dst *int, def int) {
		if *dst == 0 {
			*dst = def
		}
	}
	setDur := func(dst *time.Duration, def time.Duration) {
		if *dst == 0 {
			*dst = def
		}
	}
	setStr := func(dst *string, def string) {
		if strings.TrimSpace(*dst) == "" {
			*dst = def
		}
	}

	setInt(&cfg.Server.Port, 8080)
	setDur(&cfg.Server.ReadTimeout, 15*time.Second)
	setDur(&cfg.Server.WriteTimeout, 10*time.Minute)
	if cfg.Server.RateLimit == 0 {
		cfg.Server.RateLimit = 10
	}
	setInt(&cfg.Server.RateBurst, 20)

	setStr(&cfg.Database.Host, "localhost")
	setInt(&cfg.Database.Port, 5432)
	setStr(&cfg.Database.SSLMode, "disable")
	setInt(&cfg.Database.MaxOpenConns, 10)
	setInt(&cfg.Database.MaxIdleConns, 5)

	setDur(&cfg.Registry.Timeout, 30*time.Second)
	setInt(&cfg.Registry.PageSize, 800)
	setDur(&cfg.Registry.InterPageDelay, time.Second)

	setDur(&cfg.Platform.Timeout, 30*time.Second)
	setStr(&cfg.Platform.Timezone, "Asia/Shanghai")
	setDur(&cfg.Platform.FieldCacheTTL, 10*time.Minute)

	setInt(&cfg.Sync.ReconcilePageSize, 1000)
	setInt(&cfg.Sync.MaxProceduresPerEpisode, 50)
	setDur(&cfg.Sync.RecentDischargeWindow, 7*24*time.Hour)
	setDur(&cfg.Sync.FetchInterval, time.Hour)
	setDur(&cfg.Sync.ReconcileInterval, 30*time.Minute)

	setStr(&cfg.Redis.Channel, "episode-changes")

	setInt(&cfg.Email.Port, 587)

	setStr(&cfg.Log.Level, "info")
}
