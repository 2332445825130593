package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestLoad_Defaults(t *testing.T) {
	c, err := Load(viper.New(), "")
	if err != nil {
		t.Fatal(err)
	}
	if c.Server.Mode != ModeOffline || c.Server.Addr != ":8080" {
		t.Fatalf("server = %+v", c.Server)
	}
	if c.Scoring.PassThreshold != 80 || c.Scoring.PracticalWeight != 0.5 || !c.Scoring.RequiresBoth {
		t.Fatalf("scoring = %+v", c.Scoring)
	}
	if c.Sync.BatchDelay != 500*time.Millisecond {
		t.Fatalf("batch delay = %v", c.Sync.BatchDelay)
	}
	if got := c.Server.CORSOrigins(); len(got) != 2 {
		t.Fatalf("offline cors = %v", got)
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "certsync.yaml")
	yaml := `
server:
  mode: online
auth:
  hmac_secret: s3cret
scoring:
  pass_threshold: 70
  practical_weight: 0.6
  written_weight: 0.4
lms:
  subdomain: acme
  timeout: 5s
monitoring:
  rules:
    - id: sync-stale
      metric: minutes_since_last_sync
      operator: gt
      threshold: 60
      severity: warning
      enabled: true
`
	if err := os.WriteFile(file, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CERTSYNC_LMS_API_KEY", "from-env")
	t.Setenv("CERTSYNC_SYNC_BATCH_DELAY", "2s")

	c, err := Load(viper.New(), file)
	if err != nil {
		t.Fatal(err)
	}
	if c.Server.Mode != ModeOnline || c.Scoring.PassThreshold != 70 || c.Scoring.PracticalWeight != 0.6 {
		t.Fatalf("config = %+v", c)
	}
	if c.LMS.APIKey != "from-env" || c.LMS.Subdomain != "acme" || c.LMS.Timeout != 5*time.Second {
		t.Fatalf("lms = %+v", c.LMS)
	}
	if c.Sync.BatchDelay != 2*time.Second {
		t.Fatalf("batch delay = %v", c.Sync.BatchDelay)
	}
	if len(c.Monitoring.Rules) != 1 || c.Monitoring.Rules[0].ID != "sync-stale" || c.Monitoring.Rules[0].Threshold != 60 {
		t.Fatalf("rules = %+v", c.Monitoring.Rules)
	}
	if got := c.Server.CORSOrigins(); len(got) != 1 || got[0] != "https://certs.mindengage.ai" {
		t.Fatalf("online cors = %v", got)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	if _, err := Load(viper.New(), filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Server:   ServerConfig{Mode: ModeOffline},
			Database: DatabaseConfig{Driver: "sqlite"},
			Store:    StoreConfig{Kind: "sql"},
			Scoring:  ScoringConfig{PassThreshold: 80, PracticalWeight: 0.5, WrittenWeight: 0.5},
		}
	}
	if err := base().Validate(); err != nil {
		t.Fatalf("base invalid: %v", err)
	}
	cases := map[string]func(*Config){
		"mode":          func(c *Config) { c.Server.Mode = "hybrid" },
		"driver":        func(c *Config) { c.Database.Driver = "mysql" },
		"store":         func(c *Config) { c.Store.Kind = "redis" },
		"supabase":      func(c *Config) { c.Store.Kind = "supabase" },
		"threshold":     func(c *Config) { c.Scoring.PassThreshold = 101 },
		"weights":       func(c *Config) { c.Scoring.WrittenWeight = 0.7 },
		"delay":         func(c *Config) { c.Sync.BatchDelay = -time.Second },
		"online secret": func(c *Config) { c.Server.Mode = ModeOnline },
	}
	for name, mut := range cases {
		c := base()
		mut(&c)
		if err := c.Validate(); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}
