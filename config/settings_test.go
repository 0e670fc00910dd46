package wampConfig_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	wampConfig "github.com/wamp3hub/wampytester/config"
)

func TestLoadSettings(t *testing.T) {
	t.Run("Case: Missing file", func(t *testing.T) {
		settings, e := wampConfig.LoadSettings(filepath.Join(t.TempDir(), "missing.toml"))
		require.NoError(t, e)
		assert.Equal(t, wampConfig.DefaultSettings(), settings)
		assert.Equal(t, slog.LevelInfo, settings.LogLevel())
	})

	t.Run("Case: Partial file keeps defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.toml")
		require.NoError(t, os.WriteFile(path, []byte("log_dir = \"/tmp/wl\"\njoin_timeout = \"2s\"\ndebug = true\n"), 0o644))

		settings, e := wampConfig.LoadSettings(path)
		require.NoError(t, e)
		assert.Equal(t, "/tmp/wl", settings.LogDir)
		assert.Equal(t, 2*time.Second, settings.JoinTimeout.Duration)
		assert.Equal(t, wampConfig.DEFAULT_LEAVE_GRACE, settings.LeaveGrace.Duration)
		assert.Equal(t, "json", settings.Serializer)
		assert.Equal(t, slog.LevelDebug, settings.LogLevel())
	})

	t.Run("Case: Unsupported serializer", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.toml")
		require.NoError(t, os.WriteFile(path, []byte("serializer = \"cbor\"\n"), 0o644))
		_, e := wampConfig.LoadSettings(path)
		assert.Error(t, e)
	})

	t.Run("Case: Invalid duration", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.toml")
		require.NoError(t, os.WriteFile(path, []byte("leave_grace = \"soon\"\n"), 0o644))
		_, e := wampConfig.LoadSettings(path)
		assert.Error(t, e)
	})

	t.Run("Case: Save and load", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "config.toml")
		settings := wampConfig.DefaultSettings()
		settings.Serializer = "msgpack"
		settings.RealmsFile = "/etc/realms.json"
		require.NoError(t, settings.Save(path))

		loaded, e := wampConfig.LoadSettings(path)
		require.NoError(t, e)
		assert.Equal(t, settings, loaded)
	})
}
