// Package config loads the per-source schema descriptors and the runtime
// configuration of the pipeline.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"intake/internal/secret"
)

// Config is the runtime configuration. It is built once by the CLI and
// passed explicitly to every component.
type Config struct {
	DataHome      string         `yaml:"data_home"`
	SourcesDir    string         `yaml:"sources_dir"`
	Sources       []string       `yaml:"sources"`
	Schedule      string         `yaml:"schedule"`
	PartitionSize int            `yaml:"partition_size"`
	Workers       int            `yaml:"workers"`
	HistoryDB     string         `yaml:"history_db"`
	HTTPTimeout   time.Duration  `yaml:"http_timeout"`
	Database      DatabaseConfig `yaml:"database"`
	AWS           AWSConfig      `yaml:"aws"`
}

// DatabaseConfig describes the relational store partitions are loaded into.
// URL, when set, wins over the discrete fields.
type DatabaseConfig struct {
	URL         string `yaml:"url"`
	Driver      string `yaml:"driver"`
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	Name        string `yaml:"name"`
	User        string `yaml:"user"`
	SSLMode     string `yaml:"ssl_mode"`
	TablePrefix string `yaml:"table_prefix"`
	Password    string `yaml:"-"`
}

// AWSConfig configures the S3 client used for s3:// sources and outputs.
type AWSConfig struct {
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"-"`
	SecretAccessKey string `yaml:"-"`
}

// DefaultSources is the static list of sources scheduled by default.
var DefaultSources = []string{"co2_weekly_mlo", "ch4_mm_gl"}

// Default returns the built-in configuration.
func Default() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	base := filepath.Join(home, ".planet-pulse")
	return &Config{
		DataHome:      filepath.Join(base, "data"),
		Sources:       append([]string(nil), DefaultSources...),
		Schedule:      "@daily",
		PartitionSize: 5000,
		Workers:       4,
		HistoryDB:     filepath.Join(base, "history.db"),
		HTTPTimeout:   2 * time.Minute,
		Database: DatabaseConfig{
			Driver: "postgres",
			Host:   "localhost",
			Port:   5432,
			Name:   "planet_pulse",
		},
		AWS: AWSConfig{Region: "us-east-1"},
	}
}

// Load reads the YAML file at path over the defaults. A missing file is
// not an error. Environment overrides are not applied; see ApplyEnv.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values no component can work with.
func (c *Config) Validate() error {
	switch {
	case c.DataHome == "":
		return errors.New("config: data_home is required")
	case len(c.Sources) == 0:
		return errors.New("config: sources must not be empty")
	case c.PartitionSize < 0:
		return fmt.Errorf("config: partition_size must be positive, got %d", c.PartitionSize)
	case c.Workers < 0:
		return fmt.Errorf("config: workers must be positive, got %d", c.Workers)
	}
	return nil
}

// ApplyEnv overrides fields from the environment. lookup is usually
// os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	set("PLANET_PULSE_DATA_HOME", &c.DataHome)
	set("PLANET_PULSE_SOURCES_DIR", &c.SourcesDir)
	set("DB_URL", &c.Database.URL)
	set("DB_DRIVER", &c.Database.Driver)
	set("DB_USER", &c.Database.User)
	set("DB_PSWRD", &c.Database.Password)
	set("AWS_REGION", &c.AWS.Region)
	set("AWS_ENDPOINT", &c.AWS.Endpoint)
	set("AWS_ACCESS_KEY_ID", &c.AWS.AccessKeyID)
	set("AWS_SECRET_ACCESS_KEY", &c.AWS.SecretAccessKey)

	if v, ok := lookup("PLANET_PULSE_WORKERS"); ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Workers = n
		}
	}
}

// ResolveSecrets fills credentials that are still empty from store.
func (c *Config) ResolveSecrets(store secret.SecretStore) error {
	fill := func(key string, dst *string) error {
		if *dst != "" {
			return nil
		}
		v, err := store.Get(key)
		if err != nil {
			return fmt.Errorf("resolve secret %s: %w", key, err)
		}
		*dst = string(v)
		return nil
	}
	if err := fill(secret.KeyDBPassword, &c.Database.Password); err != nil {
		return err
	}
	return fill(secret.KeyAWSSecretAccessKey, &c.AWS.SecretAccessKey)
}

// SourceLoader returns the descriptor loader for this configuration.
func (c *Config) SourceLoader() *SourceLoader {
	return &SourceLoader{Dir: c.SourcesDir}
}

// TableFor returns the relational table for a source's default table name.
func (c *Config) TableFor(table string) string {
	return c.Database.TablePrefix + table
}

// ── Paths ──────────────────────────────────────────────────

// OutputPath templates the partition path of a run:
// <dataHome>/<source>/y=YYYY/m=MM/d=DD. dataHome may be an s3:// URL.
func OutputPath(dataHome, source string, t time.Time) string {
	return fmt.Sprintf("%s/%s/y=%04d/m=%02d/d=%02d",
		trimSlash(dataHome), source, t.Year(), int(t.Month()), t.Day())
}

func trimSlash(s string) string {
	for len(s) > 1 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}
