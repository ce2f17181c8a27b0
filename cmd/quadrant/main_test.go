package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBuildConfig_FlagsOverrideFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "quadrant.yaml")
	body := `
runId: from-file
totalTrials: 1000
maxBatchSize: 100
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	f := &flags{
		configPath:  path,
		runID:       "from-flag",
		totalTrials: 2000,
		worldSize:   2,
	}

	cfg, err := buildConfig(f)
	require.NoError(t, err)
	require.Equal(t, "from-flag", cfg.RunID)
	require.Equal(t, uint64(2000), cfg.TotalTrials)
	require.Equal(t, uint64(100), cfg.MaxBatchSize, "unset flags keep file values")
}

func TestBuildConfig_TelemetryFlags(t *testing.T) {
	f := &flags{
		worldSize:         1,
		telemetryEnabled:  true,
		telemetryDir:      "/tmp/telemetry",
		telemetryInterval: 5 * time.Second,
		agentPath:         "/usr/local/bin/quadrant-agent",
	}

	cfg, err := buildConfig(f)
	require.NoError(t, err)
	require.True(t, cfg.Telemetry.Enabled)
	require.Equal(t, "/tmp/telemetry", cfg.Telemetry.OutputDir)
	require.Equal(t, 5*time.Second, cfg.Telemetry.Interval)
	require.Equal(t, "/usr/local/bin/quadrant-agent", cfg.Telemetry.AgentPath)
}

func TestBuildConfig_RankBounds(t *testing.T) {
	_, err := buildConfig(&flags{worldSize: 0})
	require.Error(t, err)

	_, err = buildConfig(&flags{worldSize: 2, rank: 2})
	require.Error(t, err)

	_, err = buildConfig(&flags{worldSize: 2, rank: -1})
	require.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, parseLevel("debug"))
	require.Equal(t, slog.LevelInfo, parseLevel("info"))
	require.Equal(t, slog.LevelWarn, parseLevel("warn"))
	require.Equal(t, slog.LevelError, parseLevel("error"))
	require.Equal(t, slog.LevelInfo, parseLevel("bogus"))
}
