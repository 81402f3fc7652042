package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTmpConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "sbus.yml")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeTmpConfig(t, `
sbus:
  node:
    hostname: node-1
    app_name: SB
  limits:
    max_pipes: 8
    max_msg_ids: 32
  log:
    level: debug
    format: json
  reporting:
    kafka:
      enabled: true
      brokers: ["kafka1:9092"]
      topic: sb-prev-subs
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "node-1", cfg.Node.Hostname)
	assert.Equal(t, 8, cfg.Limits.MaxPipes)
	assert.Equal(t, 32, cfg.Limits.MaxMsgIDs)
	// untouched defaults survive the partial override
	assert.Equal(t, 16, cfg.Limits.MaxDestPerPkt)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Reporting.Kafka.Enabled)
	assert.Equal(t, []string{"kafka1:9092"}, cfg.Reporting.Kafka.Brokers)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}

func TestDefaults(t *testing.T) {
	d := Defaults()
	assert.Equal(t, 64, d.Limits.MaxPipes)
	assert.Equal(t, 20, d.Limits.SubEntriesPerPkt)
}
