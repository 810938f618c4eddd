package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 280, cfg.Format.MaxCharsPerBubble)
	assert.Equal(t, 3, cfg.Format.MaxBubblesPerBatch)
	assert.Equal(t, "America/Argentina/Buenos_Aires", cfg.Assistant.Timezone)
	assert.Equal(t, 10, cfg.Assistant.HistoryTurns)
	assert.Equal(t, "telegram", cfg.Reminders.Channel)
	assert.False(t, cfg.Reminders.Enabled)
}

func TestLoadConfig_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.Providers.Chat.Model)
}

func TestLoadConfig_FileOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	body := `{"channels":{"telegram":{"token":"abc","allow_from":["123",456]}}}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "abc", cfg.Channels.Telegram.Token)
	// allow_from accepts mixed string/number entries.
	assert.Equal(t, []string{"123", "456"}, []string(cfg.Channels.Telegram.AllowFrom))
	// Untouched sections keep defaults.
	assert.Equal(t, 280, cfg.Format.MaxCharsPerBubble)
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("JARVISZ_PROVIDERS_CHAT_API_KEY", "sk-env")
	t.Setenv("JARVISZ_ASSISTANT_HISTORY_TURNS", "6")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)

	assert.Equal(t, "sk-env", cfg.Providers.Chat.APIKey)
	assert.Equal(t, 6, cfg.Assistant.HistoryTurns)
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.json")

	cfg := DefaultConfig()
	cfg.Channels.Telegram.Token = "tok"
	require.NoError(t, SaveConfig(path, cfg))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "tok", loaded.Channels.Telegram.Token)
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, ".jarvisz", "data"), DefaultConfig().DataDirPath())
	assert.Equal(t, "/abs/path", expandHome("/abs/path"))
	assert.Equal(t, "", expandHome(""))
}
