package cmd

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

// resetCmdState snapshots the package globals a test mutates and
// restores them on cleanup. Viper is global too, so it gets reset on
// both sides.
func resetCmdState(t *testing.T) {
	t.Helper()
	prevCfgFile, prevServer, prevDir := cfgFile, serverURL, workflowsDir
	prevDebug, prevCfg := debugFlag, cfg
	t.Cleanup(func() {
		cfgFile, serverURL, workflowsDir = prevCfgFile, prevServer, prevDir
		debugFlag, cfg = prevDebug, prevCfg
		viper.Reset()
	})
	viper.Reset()
	cfgFile, serverURL, workflowsDir, debugFlag = "", "", "", false
}

// TestInitConfig_CreatesStarterConfig verifies that a fresh working
// directory gets a commented starter config and the defaults.
func TestInitConfig_CreatesStarterConfig(t *testing.T) {
	resetCmdState(t)
	tmp := t.TempDir()
	t.Chdir(tmp)
	t.Setenv("HOME", tmp)

	initConfig()

	require.FileExists(t, filepath.Join(tmp, ".crabitat", "crabitat.yaml"))
	require.Equal(t, 8800, cfg.Listen.Port)
	require.Equal(t, "crabitat.db", cfg.Store.Path)
	require.Equal(t, "workflows", cfg.Workflows.Dir)
	require.Equal(t, 60*time.Second, cfg.Poller.Interval)
	require.Equal(t, "GITHUB_TOKEN", cfg.Forge.TokenEnv)
}

// TestInitConfig_ReadsProjectConfig verifies that .crabitat/crabitat.yaml
// in the working directory wins, with unset keys keeping their defaults.
func TestInitConfig_ReadsProjectConfig(t *testing.T) {
	resetCmdState(t)
	tmp := t.TempDir()
	t.Chdir(tmp)
	t.Setenv("HOME", tmp)

	require.NoError(t, os.MkdirAll(filepath.Join(tmp, ".crabitat"), 0o750))
	content := "listen:\n  port: 9100\nstore:\n  path: colony.db\n"
	require.NoError(t, os.WriteFile(filepath.Join(tmp, ".crabitat", "crabitat.yaml"), []byte(content), 0o600))

	initConfig()

	require.Equal(t, 9100, cfg.Listen.Port)
	require.Equal(t, "colony.db", cfg.Store.Path)
	require.Equal(t, "workflows", cfg.Workflows.Dir)
}

// TestInitConfig_ExplicitConfigFlag verifies --config points at an
// arbitrary file.
func TestInitConfig_ExplicitConfigFlag(t *testing.T) {
	resetCmdState(t)
	tmp := t.TempDir()
	t.Chdir(tmp)
	t.Setenv("HOME", tmp)

	path := filepath.Join(tmp, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen:\n  port: 9200\n"), 0o600))
	cfgFile = path

	initConfig()

	require.Equal(t, 9200, cfg.Listen.Port)
}

// TestInitConfig_EnvOverride verifies CRABITAT_* variables override the
// config file and defaults.
func TestInitConfig_EnvOverride(t *testing.T) {
	resetCmdState(t)
	tmp := t.TempDir()
	t.Chdir(tmp)
	t.Setenv("HOME", tmp)
	t.Setenv("CRABITAT_LISTEN_PORT", "9999")

	initConfig()

	require.Equal(t, 9999, cfg.Listen.Port)
}

func TestBaseURL(t *testing.T) {
	resetCmdState(t)

	serverURL = "http://crab.example:9000"
	require.Equal(t, "http://crab.example:9000", baseURL())

	serverURL = ""
	cfg.Listen.Port = 7700
	require.Equal(t, "http://localhost:7700", baseURL())
}

func TestManifestDir(t *testing.T) {
	resetCmdState(t)

	workflowsDir = "manifests"
	require.Equal(t, "manifests", manifestDir())

	workflowsDir = ""
	cfg.Workflows.Dir = "workflows"
	require.Equal(t, "workflows", manifestDir())
}

// TestSetupLogging_DisabledWithoutDebug verifies the cleanup is a no-op
// when neither --debug nor CRABITAT_DEBUG is set.
func TestSetupLogging_DisabledWithoutDebug(t *testing.T) {
	resetCmdState(t)
	t.Setenv("CRABITAT_DEBUG", "")

	cleanup, err := setupLogging("crabitat-test")
	require.NoError(t, err)
	require.NotNil(t, cleanup)
	cleanup()
}
