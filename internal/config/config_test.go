package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sentinel.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
[bot]
command = "python scripts/run_bot.py"
`)
	c, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 600*time.Second, c.Watchdog.Threshold)
	require.Equal(t, 15*time.Minute, c.Watchdog.Cooldown)
	require.Equal(t, 30*time.Minute, c.Optimizer.CycleTimeout)
	require.Equal(t, 20.0, c.Envelope.MaxPositionSizePct)
	require.NotEmpty(t, c.Envelope.StrategyFlags)
	require.NotEmpty(t, c.Envelope.RiskFields)
	require.Equal(t, 30*time.Second, c.Bot.StopGrace)
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
[bot]
command = "python scripts/run_bot.py"
process_match = "run_bot.py"

[watchdog]
threshold = "120s"
schedule = "*/5 * * * *"

[alert]
webhook_url = "https://hooks.example.com/T123"
`)
	c, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 2*time.Minute, c.Watchdog.Threshold)
	require.Equal(t, "*/5 * * * *", c.Watchdog.Schedule)
	require.Equal(t, "https://hooks.example.com/T123", c.Alert.WebhookURL)
}

func TestLoadRejectsMissingCommand(t *testing.T) {
	path := writeConfig(t, `
[watchdog]
threshold = "600s"
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsBadCeiling(t *testing.T) {
	path := writeConfig(t, `
[bot]
command = "true"

[envelope]
max_position_size_pct = 250.0
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadEnvFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("SENTINEL_TEST_KEY=abc123\n"), 0o600))
	path := filepath.Join(dir, "sentinel.toml")
	body := `
env_files = [".env"]

[bot]
command = "true"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	t.Setenv("SENTINEL_TEST_KEY", "")
	_ = os.Unsetenv("SENTINEL_TEST_KEY")
	_, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "abc123", os.Getenv("SENTINEL_TEST_KEY"))
}
