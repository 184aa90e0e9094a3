// Package config loads framegraph settings from a YAML or TOML file, then
// applies FRAMEGRAPH_* environment overrides.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/dd0wney/cluso-framegraph/pkg/frame"
	"github.com/dd0wney/cluso-framegraph/pkg/index"
	"github.com/dd0wney/cluso-framegraph/pkg/validation"
)

// Journal backends
const (
	JournalNone   = "none"
	JournalFile   = "file"
	JournalSnappy = "snappy"
	JournalBadger = "badger"
)

// Config is the root configuration
type Config struct {
	DataDir      string            `yaml:"data_dir" toml:"data_dir"`
	Journal      JournalConfig     `yaml:"journal" toml:"journal"`
	Transactions TransactionConfig `yaml:"transactions" toml:"transactions"`
	Checkpoint   CheckpointConfig  `yaml:"checkpoint" toml:"checkpoint"`
	Logging      LoggingConfig     `yaml:"logging" toml:"logging"`
	Backup       BackupConfig      `yaml:"backup" toml:"backup"`
	Schema       SchemaConfig      `yaml:"schema" toml:"schema"`
}

type JournalConfig struct {
	// Backend is none, file, snappy or badger
	Backend string `yaml:"backend" toml:"backend"`
	// SyncWrites fsyncs every append (file backends always sync unless NoSync)
	SyncWrites bool `yaml:"sync_writes" toml:"sync_writes"`
	NoSync     bool `yaml:"no_sync" toml:"no_sync"`
}

type TransactionConfig struct {
	// DisableConflictDetection makes concurrent updates last-writer-wins
	DisableConflictDetection bool `yaml:"disable_conflict_detection" toml:"disable_conflict_detection"`
}

type CheckpointConfig struct {
	// Interval between automatic checkpoints. Zero disables them.
	Interval Duration `yaml:"interval" toml:"interval"`
	// SnapshotFile is relative to DataDir unless absolute
	SnapshotFile string `yaml:"snapshot_file" toml:"snapshot_file"`
}

type LoggingConfig struct {
	Level string `yaml:"level" toml:"level"`
	// File enables a rotated log file instead of stdout
	File       string `yaml:"file" toml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" toml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" toml:"max_age_days"`
	Compress   bool   `yaml:"compress" toml:"compress"`
}

type BackupConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Bucket  string `yaml:"bucket" toml:"bucket"`
	Prefix  string `yaml:"prefix" toml:"prefix"`
	Region  string `yaml:"region" toml:"region"`
	// Endpoint overrides the S3 endpoint (MinIO, localstack)
	Endpoint        string `yaml:"endpoint" toml:"endpoint"`
	UsePathStyle    bool   `yaml:"use_path_style" toml:"use_path_style"`
	AccessKeyID     string `yaml:"access_key_id" toml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key" toml:"secret_access_key"`
}

// SchemaConfig declares framed types and indexes created at open
type SchemaConfig struct {
	Types   []frame.TypeSpec   `yaml:"types" toml:"types"`
	Indexes []index.Definition `yaml:"indexes" toml:"indexes"`
}

// Duration reads "30s"-style strings from YAML and TOML
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		DataDir: "./data",
		Journal: JournalConfig{Backend: JournalFile},
		Checkpoint: CheckpointConfig{
			SnapshotFile: "snapshot.json",
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Backup: BackupConfig{Prefix: "framegraph/"},
	}
}

// Load reads path (YAML or TOML by extension) over the defaults, applies
// environment overrides and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := decode(path, data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		return dec.Decode(cfg)
	case ".toml":
		md, err := toml.Decode(string(data), cfg)
		if err != nil {
			return err
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return fmt.Errorf("unknown keys %v", undecoded)
		}
		return nil
	}
	return fmt.Errorf("unsupported config format %q (want .yaml, .yml or .toml)", filepath.Ext(path))
}

// ApplyEnv overrides settings from FRAMEGRAPH_* variables
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = b
		return nil
	}

	str("FRAMEGRAPH_DATA_DIR", &c.DataDir)
	str("FRAMEGRAPH_JOURNAL_BACKEND", &c.Journal.Backend)
	str("FRAMEGRAPH_LOG_LEVEL", &c.Logging.Level)
	str("FRAMEGRAPH_LOG_FILE", &c.Logging.File)
	str("FRAMEGRAPH_SNAPSHOT_FILE", &c.Checkpoint.SnapshotFile)
	str("FRAMEGRAPH_BACKUP_BUCKET", &c.Backup.Bucket)
	str("FRAMEGRAPH_BACKUP_PREFIX", &c.Backup.Prefix)
	str("FRAMEGRAPH_BACKUP_REGION", &c.Backup.Region)
	str("FRAMEGRAPH_BACKUP_ENDPOINT", &c.Backup.Endpoint)
	str("FRAMEGRAPH_BACKUP_ACCESS_KEY_ID", &c.Backup.AccessKeyID)
	str("FRAMEGRAPH_BACKUP_SECRET_ACCESS_KEY", &c.Backup.SecretAccessKey)

	for key, dst := range map[string]*bool{
		"FRAMEGRAPH_JOURNAL_SYNC":               &c.Journal.SyncWrites,
		"FRAMEGRAPH_DISABLE_CONFLICT_DETECTION": &c.Transactions.DisableConflictDetection,
		"FRAMEGRAPH_BACKUP_ENABLED":             &c.Backup.Enabled,
	} {
		if err := boolean(key, dst); err != nil {
			return err
		}
	}

	if v, ok := lookup("FRAMEGRAPH_CHECKPOINT_INTERVAL"); ok && v != "" {
		if err := c.Checkpoint.Interval.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("FRAMEGRAPH_CHECKPOINT_INTERVAL: %w", err)
		}
	}
	return nil
}

// Validate checks every section and reports all problems at once
func (c *Config) Validate() error {
	cv := validation.NewConfigValidator("config")
	cv.When(c.Journal.Backend != JournalNone, func(cv *validation.ConfigValidator) {
		cv.Required("data_dir", c.DataDir)
	})
	cv.OneOf("journal.backend", c.Journal.Backend, []string{JournalNone, JournalFile, JournalSnappy, JournalBadger})
	cv.NonNegativeDuration("checkpoint.interval", time.Duration(c.Checkpoint.Interval))
	cv.When(c.Checkpoint.Interval > 0, func(cv *validation.ConfigValidator) {
		cv.Required("checkpoint.snapshot_file", c.Checkpoint.SnapshotFile)
	})
	cv.OneOf("logging.level", strings.ToLower(c.Logging.Level), []string{"debug", "info", "warn", "error"})
	cv.When(c.Logging.File != "", func(cv *validation.ConfigValidator) {
		cv.Positive("logging.max_size_mb", c.Logging.MaxSizeMB)
		cv.NonNegative("logging.max_backups", c.Logging.MaxBackups)
		cv.NonNegative("logging.max_age_days", c.Logging.MaxAgeDays)
	})
	cv.When(c.Backup.Enabled, func(cv *validation.ConfigValidator) {
		cv.Required("backup.bucket", c.Backup.Bucket)
		cv.Required("checkpoint.snapshot_file", c.Checkpoint.SnapshotFile)
		cv.Custom("backup.secret_access_key", func() error {
			if (c.Backup.AccessKeyID == "") != (c.Backup.SecretAccessKey == "") {
				return fmt.Errorf("access_key_id and secret_access_key must be set together")
			}
			return nil
		})
	})
	cv.Custom("schema.types", func() error {
		_, err := frame.NewRegistry(c.Schema.Types...)
		return err
	})
	for i, def := range c.Schema.Indexes {
		cv.Custom(fmt.Sprintf("schema.indexes[%d]", i), func() error {
			return validation.Struct(def)
		})
	}
	return cv.Validate()
}

// SnapshotPath resolves the snapshot file against DataDir
func (c *Config) SnapshotPath() string {
	if c.Checkpoint.SnapshotFile == "" || filepath.IsAbs(c.Checkpoint.SnapshotFile) {
		return c.Checkpoint.SnapshotFile
	}
	return filepath.Join(c.DataDir, c.Checkpoint.SnapshotFile)
}

// JournalDir is where the journal backend keeps its files
func (c *Config) JournalDir() string {
	return filepath.Join(c.DataDir, "wal")
}
