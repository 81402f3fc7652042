package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTmpManifest(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "manifest.yml")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestLoadManifestDecodesEntries(t *testing.T) {
	path := writeTmpManifest(t, `
- pipe_name: HK_PIPE
  app_id: HK
  pipe_depth: 8
  msg_id: 2305
  scope: local
  msg_count_limit: 4
- pipe_name: TO_PIPE
  app_id: TO
  msg_id: 2306
  scope: global
`)

	entries, err := LoadManifest(path)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "HK_PIPE", entries[0].PipeName)
	assert.Equal(t, "HK", entries[0].AppID)
	assert.Equal(t, 8, entries[0].PipeDepth)
	assert.EqualValues(t, 2305, entries[0].MsgID)
	assert.Equal(t, "local", entries[0].Scope)
	assert.Equal(t, 4, entries[0].MsgCountLimit)

	assert.Equal(t, "TO_PIPE", entries[1].PipeName)
	assert.Equal(t, 0, entries[1].PipeDepth)
	assert.Equal(t, "global", entries[1].Scope)
}

func TestLoadManifestMissingFile(t *testing.T) {
	_, err := LoadManifest(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}
