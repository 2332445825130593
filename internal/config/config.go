package config

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/mind-engage/certsync/internal/logging"
	"github.com/mind-engage/certsync/internal/monitoring"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Store      StoreConfig      `mapstructure:"store"`
	Supabase   SupabaseConfig   `mapstructure:"supabase"`
	LMS        LMSConfig        `mapstructure:"lms"`
	Scoring    ScoringConfig    `mapstructure:"scoring"`
	Sync       SyncConfig       `mapstructure:"sync"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	Logging    logging.Config   `mapstructure:"logging"`
}

type ServerConfig struct {
	Addr               string        `mapstructure:"addr"`
	Mode               Mode          `mapstructure:"mode"`
	CORSOriginsOnline  []string      `mapstructure:"cors_origins_online"`
	CORSOriginsOffline []string      `mapstructure:"cors_origins_offline"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout"`
}

// CORSOrigins returns the allow-list for the configured mode.
func (s ServerConfig) CORSOrigins() []string {
	if s.Mode == ModeOnline {
		return s.CORSOriginsOnline
	}
	return s.CORSOriginsOffline
}

type AuthConfig struct {
	HMACSecret    string        `mapstructure:"hmac_secret"`
	LocalLogin    bool          `mapstructure:"local_login"`
	AdminUser     string        `mapstructure:"admin_user"`
	AdminPassHash string        `mapstructure:"admin_pass_hash"` // bcrypt
	TokenTTL      time.Duration `mapstructure:"token_ttl"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // sqlite|postgres
	DSN    string `mapstructure:"dsn"`
}

type StoreConfig struct {
	Kind string `mapstructure:"kind"` // sql|supabase
}

type SupabaseConfig struct {
	URL     string        `mapstructure:"url"`
	Key     string        `mapstructure:"key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type LMSConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	APIKey       string        `mapstructure:"api_key"`
	Subdomain    string        `mapstructure:"subdomain"`
	TokenURL     string        `mapstructure:"token_url"`
	ClientID     string        `mapstructure:"client_id"`
	ClientSecret string        `mapstructure:"client_secret"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

type ScoringConfig struct {
	PassThreshold   float64 `mapstructure:"pass_threshold"`
	PracticalWeight float64 `mapstructure:"practical_weight"`
	WrittenWeight   float64 `mapstructure:"written_weight"`
	RequiresBoth    bool    `mapstructure:"requires_both"`
}

type SyncConfig struct {
	BatchDelay time.Duration `mapstructure:"batch_delay"`
}

type MonitoringConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Schedule string        `mapstructure:"schedule"` // cron spec
	Window   time.Duration `mapstructure:"window"`
	// Rules are added on top of the built-in alert rules; a matching id replaces one.
	Rules []monitoring.Rule `mapstructure:"rules"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.mode", string(ModeOffline))
	v.SetDefault("server.cors_origins_online", []string{"https://certs.mindengage.ai"})
	v.SetDefault("server.cors_origins_offline", []string{"http://localhost:3000", "http://localhost:5173"})
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("auth.hmac_secret", "")
	v.SetDefault("auth.local_login", true)
	v.SetDefault("auth.admin_user", "admin")
	v.SetDefault("auth.admin_pass_hash", "")
	v.SetDefault("auth.token_ttl", "12h")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "")

	v.SetDefault("store.kind", "sql")
	v.SetDefault("supabase.url", "")
	v.SetDefault("supabase.key", "")
	v.SetDefault("supabase.timeout", "15s")

	v.SetDefault("lms.base_url", "https://api.thinkific.com/api/public/v1")
	// keys without a default are invisible to env overrides on Unmarshal
	for _, k := range []string{"api_key", "subdomain", "token_url", "client_id", "client_secret"} {
		v.SetDefault("lms."+k, "")
	}
	v.SetDefault("lms.timeout", "20s")

	v.SetDefault("scoring.pass_threshold", 80.0)
	v.SetDefault("scoring.practical_weight", 0.5)
	v.SetDefault("scoring.written_weight", 0.5)
	v.SetDefault("scoring.requires_both", true)

	v.SetDefault("sync.batch_delay", "500ms")

	v.SetDefault("monitoring.enabled", true)
	v.SetDefault("monitoring.schedule", "@every 1m")
	v.SetDefault("monitoring.window", "1h")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.directory", "logs")
	v.SetDefault("logging.max_size", 10)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 7)
	v.SetDefault("logging.compress", true)
	v.SetDefault("logging.console", true)
}

// Load reads defaults, then the config file (file, or config/config.yaml when
// empty), then CERTSYNC_* environment variables. Flags bound on v win over all.
func Load(v *viper.Viper, file string) (Config, error) {
	setDefaults(v)
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.AddConfigPath("config")
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	v.SetEnvPrefix("CERTSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &nf) {
			return Config{}, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return decode(v)
}

func decode(v *viper.Viper) (Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) Validate() error {
	switch c.Server.Mode {
	case ModeOffline, ModeOnline:
	default:
		return fmt.Errorf("server.mode must be offline or online, got %q", c.Server.Mode)
	}
	switch strings.ToLower(c.Database.Driver) {
	case "sqlite", "sqlite3", "postgres", "postgresql", "pg", "pgx":
	default:
		return fmt.Errorf("unsupported database.driver %q", c.Database.Driver)
	}
	switch c.Store.Kind {
	case "sql":
	case "supabase":
		if c.Supabase.URL == "" || c.Supabase.Key == "" {
			return errors.New("store.kind=supabase needs supabase.url and supabase.key")
		}
	default:
		return fmt.Errorf("store.kind must be sql or supabase, got %q", c.Store.Kind)
	}
	s := c.Scoring
	if s.PassThreshold < 0 || s.PassThreshold > 100 {
		return fmt.Errorf("scoring.pass_threshold must be within [0,100], got %v", s.PassThreshold)
	}
	if s.PracticalWeight < 0 || s.WrittenWeight < 0 || math.Abs(s.PracticalWeight+s.WrittenWeight-1) > 1e-9 {
		return fmt.Errorf("scoring weights must be non-negative and sum to 1, got %v + %v", s.PracticalWeight, s.WrittenWeight)
	}
	if c.Sync.BatchDelay < 0 {
		return errors.New("sync.batch_delay must not be negative")
	}
	if c.Server.Mode == ModeOnline && c.Auth.HMACSecret == "" {
		return errors.New("auth.hmac_secret is required in online mode")
	}
	return nil
}

// Watch reloads the config file on change and hands every valid result to
// onChange. Invalid edits are logged and ignored. Without a config file
// there is nothing to watch.
func Watch(v *viper.Viper, log *zap.Logger, onChange func(Config)) {
	if v.ConfigFileUsed() == "" {
		return
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		log.Info("configuration file changed, reloading", zap.String("file", e.Name))
		c, err := decode(v)
		if err != nil {
			log.Error("error reloading configuration", zap.Error(err))
			return
		}
		onChange(c)
	})
	v.WatchConfig()
}
