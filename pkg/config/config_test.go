package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-framegraph/pkg/storage"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func noEnv(string) (string, bool) { return "", false }

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, filepath.Join("./data", "snapshot.json"), cfg.SnapshotPath())
	assert.Equal(t, filepath.Join("./data", "wal"), cfg.JournalDir())
}

const yamlConfig = `
data_dir: /var/lib/framegraph
journal:
  backend: badger
  sync_writes: true
checkpoint:
  interval: 5m
logging:
  level: debug
schema:
  types:
    - name: Person
      label: Person
      fields:
        - name: name
          type: string
        - name: age
          type: int
    - name: HasMember
      label: HAS_MEMBER
      kind: edge
  indexes:
    - label: Person
      properties: [name]
      unique: true
    - kind: edge
      label: HAS_MEMBER
      properties: ["@out", "@in"]
      unique: true
`

func TestLoad_YAML(t *testing.T) {
	cfg, err := Load(writeFile(t, "framegraph.yaml", yamlConfig))
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/framegraph", cfg.DataDir)
	assert.Equal(t, JournalBadger, cfg.Journal.Backend)
	assert.True(t, cfg.Journal.SyncWrites)
	assert.Equal(t, 5*time.Minute, time.Duration(cfg.Checkpoint.Interval))
	assert.Equal(t, "debug", cfg.Logging.Level)
	// Untouched sections keep their defaults
	assert.Equal(t, 100, cfg.Logging.MaxSizeMB)

	require.Len(t, cfg.Schema.Types, 2)
	assert.Equal(t, storage.TypeInt, cfg.Schema.Types[0].Fields[1].Type)
	assert.Equal(t, storage.KindEdge, cfg.Schema.Types[1].Kind)
	require.Len(t, cfg.Schema.Indexes, 2)
	assert.Equal(t, []string{"@out", "@in"}, cfg.Schema.Indexes[1].Properties)
	assert.Equal(t, storage.KindEdge, cfg.Schema.Indexes[1].Kind)
}

const tomlConfig = `
data_dir = "/tmp/fg"

[journal]
backend = "snappy"

[transactions]
disable_conflict_detection = true

[backup]
enabled = true
bucket = "checkpoints"
region = "us-east-1"

[[schema.types]]
name = "Person"
label = "Person"

  [[schema.types.fields]]
  name = "name"
  type = "string"
`

func TestLoad_TOML(t *testing.T) {
	cfg, err := Load(writeFile(t, "framegraph.toml", tomlConfig))
	require.NoError(t, err)

	assert.Equal(t, "/tmp/fg", cfg.DataDir)
	assert.Equal(t, JournalSnappy, cfg.Journal.Backend)
	assert.True(t, cfg.Transactions.DisableConflictDetection)
	assert.True(t, cfg.Backup.Enabled)
	assert.Equal(t, "checkpoints", cfg.Backup.Bucket)
	require.Len(t, cfg.Schema.Types, 1)
	assert.Equal(t, storage.TypeString, cfg.Schema.Types[0].Fields[0].Type)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name, file, content string
	}{
		{"unknown extension", "config.json", `{}`},
		{"unknown yaml key", "c.yaml", "datadir: /x\n"},
		{"unknown toml key", "c.toml", "datadir = \"/x\"\n"},
		{"bad backend", "c.yaml", "journal:\n  backend: tape\n"},
		{"bad value type", "c.yaml", "schema:\n  types:\n    - name: P\n      label: P\n      fields:\n        - name: a\n          type: decimal\n"},
		{"bad type label", "c.yaml", "schema:\n  types:\n    - name: P\n      label: 9P\n"},
		{"bad index", "c.yaml", "schema:\n  indexes:\n    - label: Person\n"},
		{"backup without bucket", "c.yaml", "backup:\n  enabled: true\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.file, tt.content))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"FRAMEGRAPH_DATA_DIR":                   "/srv/fg",
		"FRAMEGRAPH_JOURNAL_BACKEND":            "none",
		"FRAMEGRAPH_LOG_LEVEL":                  "warn",
		"FRAMEGRAPH_DISABLE_CONFLICT_DETECTION": "true",
		"FRAMEGRAPH_CHECKPOINT_INTERVAL":        "90s",
		"FRAMEGRAPH_BACKUP_BUCKET":              "b",
	}
	lookup := func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(lookup))
	assert.Equal(t, "/srv/fg", cfg.DataDir)
	assert.Equal(t, JournalNone, cfg.Journal.Backend)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.True(t, cfg.Transactions.DisableConflictDetection)
	assert.Equal(t, 90*time.Second, time.Duration(cfg.Checkpoint.Interval))
	assert.Equal(t, "b", cfg.Backup.Bucket)
	require.NoError(t, cfg.Validate())

	env["FRAMEGRAPH_BACKUP_ENABLED"] = "maybe"
	assert.Error(t, Default().ApplyEnv(lookup))

	cfg = Default()
	require.NoError(t, cfg.ApplyEnv(noEnv))
	assert.Equal(t, Default(), cfg)
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.Journal.Backend = "tape"
	cfg.Logging.Level = "loud"
	cfg.Checkpoint.Interval = Duration(-time.Second)

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "journal.backend")
	assert.Contains(t, err.Error(), "logging.level")
	assert.Contains(t, err.Error(), "checkpoint.interval")
}
