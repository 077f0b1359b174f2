package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("household:\n  name: Casa\n"))
	require.NoError(t, err)

	assert.Equal(t, "Casa", cfg.Household.Name)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, 5, cfg.Household.MaxSaveRetries)
	assert.Equal(t, 0, cfg.Household.HistoryLimit)
	assert.Equal(t, "Europe/Rome", cfg.Location().String())
	assert.Equal(t, 15*time.Minute, cfg.UploadURLTTL())
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout())
	assert.False(t, cfg.PhotosEnabled())
}

func TestParse_ExpandsEnv(t *testing.T) {
	t.Setenv("MV_TEST_TOKEN", "secret-token")
	t.Setenv("MV_TEST_KEY", "k1")

	cfg, err := Parse([]byte(`
server:
  api_key: ${MV_TEST_KEY}
telegram:
  enabled: true
  bot_token: ${MV_TEST_TOKEN}
  chat_id: -100123
`))
	require.NoError(t, err)
	assert.Equal(t, "k1", cfg.Server.APIKey)
	assert.Equal(t, "secret-token", cfg.Telegram.BotToken)
	assert.Equal(t, int64(-100123), cfg.Telegram.ChatID)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"UnknownDriver", "storage:\n  driver: mongo\n"},
		{"RedisWithoutAddress", "storage:\n  driver: redis\n"},
		{"TelegramWithoutToken", "telegram:\n  enabled: true\n"},
		{"BadTimezone", "household:\n  timezone: Mars/Olympus\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  driver: MEMORY\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Storage.Driver)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
