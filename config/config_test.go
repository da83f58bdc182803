package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sift.db", cfg.Database.Path)
	assert.Equal(t, DefaultServerPort, cfg.Server.Port)
	assert.Equal(t, "http://localhost:9205", cfg.Engine.BaseURL)
	assert.Equal(t, 10, cfg.Engine.PollIntervalSeconds)
	assert.Equal(t, 360, cfg.Engine.MaxPolls)
	assert.Equal(t, 50, cfg.Learning.PageLimit)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sift.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[server]
port = 9300

[engine]
base_url = "http://engine.internal:9205"
max_polls = 12
`), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, 9300, cfg.Server.Port)
	assert.Equal(t, "http://engine.internal:9205", cfg.Engine.BaseURL)
	assert.Equal(t, 12, cfg.Engine.MaxPolls)
	// Unset keys keep their defaults
	assert.Equal(t, "sift.db", cfg.Database.Path)
}

func TestLoadFromFileMissing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sift.toml")

	cfg := &Config{}
	cfg.Server.Port = 9300
	cfg.Engine.BaseURL = "http://engine.internal:9205"
	require.NoError(t, Save(cfg, path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 9300, loaded.Server.Port)
	assert.Equal(t, "http://engine.internal:9205", loaded.Engine.BaseURL)
}

func TestSaveRotatesBackups(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sift.toml")

	for i := 0; i < 5; i++ {
		cfg := &Config{}
		cfg.Server.Port = 9300 + i
		require.NoError(t, Save(cfg, path))
	}

	for _, backup := range []string{".back1", ".back2", ".back3"} {
		_, err := os.Stat(path + backup)
		assert.NoError(t, err, "expected backup %s", backup)
	}
	// Oldest state is dropped, not accumulated
	_, err := os.Stat(path + ".back4")
	assert.True(t, os.IsNotExist(err))
}
