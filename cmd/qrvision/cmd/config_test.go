package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/MeKo-Tech/qrvision/internal/config"
)

func TestConfigInit(t *testing.T) {
	dir := isolate(t)

	out, _, err := executeCommand(t, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "qrvision.yaml")

	path := filepath.Join(dir, "qrvision.yaml")
	require.FileExists(t, path)

	cfg, err := config.NewLoaderWithViper(viper.New()).LoadWithFile(path)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfig().Robot.CameraName, cfg.Robot.CameraName)
	assert.Equal(t, config.DefaultConfig().Upload.Limit, cfg.Upload.Limit)

	_, _, err = executeCommand(t, "config", "init")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, _, err = executeCommand(t, "config", "init", "--force")
	require.NoError(t, err)
}

func TestConfigInitCustomPath(t *testing.T) {
	dir := isolate(t)

	_, _, err := executeCommand(t, "config", "init", "custom.yaml")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "custom.yaml"))
}

func showConfig(t *testing.T, args ...string) config.Config {
	t.Helper()

	out, _, err := executeCommand(t, append([]string{"config", "show"}, args...)...)
	require.NoError(t, err)

	var cfg config.Config
	require.NoError(t, yaml.Unmarshal([]byte(out), &cfg))
	return cfg
}

func TestConfigShowDefaults(t *testing.T) {
	isolate(t)

	cfg := showConfig(t)
	want := config.DefaultConfig()
	assert.Equal(t, want.Robot.CameraName, cfg.Robot.CameraName)
	assert.Equal(t, want.Robot.VisionName, cfg.Robot.VisionName)
	assert.Equal(t, want.Trigger.Mode, cfg.Trigger.Mode)
	assert.Equal(t, want.Scan.Interval, cfg.Scan.Interval)
	assert.Equal(t, want.Upload.Tags, cfg.Upload.Tags)
}

func TestConfigShowPrecedence(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "qrvision.yaml"), []byte(`
log_level: warn
robot:
  address: from-file:8080
  camera_name: file-cam
`), 0o600))

	t.Setenv("CAMERA_NAME", "legacy-cam")
	t.Setenv("QRVISION_ROBOT_VISION_NAME", "env-vision")

	cfg := showConfig(t, "--log-level", "error")
	assert.Equal(t, "error", cfg.LogLevel, "flag beats file")
	assert.Equal(t, "from-file:8080", cfg.Robot.Address)
	assert.Equal(t, "legacy-cam", cfg.Robot.CameraName, "legacy env beats file")
	assert.Equal(t, "env-vision", cfg.Robot.VisionName)
}

func TestConfigShowDotEnv(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("ROBOT_ADDRESS=dotenv.local:8080\nPART_ID=part-dotenv\n"), 0o600))
	// isolate sets the variables empty; .env only fills unset ones.
	require.NoError(t, os.Unsetenv("ROBOT_ADDRESS"))
	require.NoError(t, os.Unsetenv("PART_ID"))
	t.Cleanup(func() {
		_ = os.Unsetenv("ROBOT_ADDRESS")
		_ = os.Unsetenv("PART_ID")
	})

	cfg := showConfig(t)
	assert.Equal(t, "dotenv.local:8080", cfg.Robot.Address)
	assert.Equal(t, "part-dotenv", cfg.Robot.PartID)
}

func TestConfigShowInvalid(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "qrvision.yaml"), []byte("trigger:\n  mode: explode\n"), 0o600))

	out, _, err := executeCommand(t, "config", "show")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid trigger mode")
	assert.Contains(t, out, "mode: explode")
}
