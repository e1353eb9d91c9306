// SPDX-License-Identifier: MIT

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subwave-io/subwave/internal/types"
)

func TestLoader_Defaults(t *testing.T) {
	cfg, err := NewLoader("", "test").Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8573", cfg.Server.Listen)
	assert.Equal(t, "./data", cfg.Paths.DataDir)
	assert.Equal(t, 0.6, cfg.Circuit.AcceptConfidence)
	assert.Equal(t, 0.4, cfg.Circuit.UpgradeConfidence)
	assert.Equal(t, 3, cfg.Circuit.BreakConsecutive)
	assert.Equal(t, 0.2, cfg.Circuit.BreakRatio)
	assert.Equal(t, 5, cfg.Circuit.BreakMinSegments)
	assert.Equal(t, types.SeparationAuto, cfg.Engine.Separation)
	assert.Equal(t, types.BreakContinue, cfg.Engine.OnBreak)
	assert.Equal(t, types.PriorityGentle, cfg.Queue.DefaultPriorityMode)
	assert.Equal(t, 2, cfg.Media.Workers)
	assert.Equal(t, 30*time.Second, cfg.Heartbeat.Grace)
	assert.Equal(t, float64(30), cfg.Split.MaxSegmentSec)
	assert.Equal(t, float64(15), cfg.Split.TargetSegmentSec)
	assert.Equal(t, "mdx_q", cfg.Separator.WeakModel)
	assert.Equal(t, "mdx_hq", cfg.Separator.StrongModel)
	assert.Equal(t, "demucs", cfg.Separator.FallbackModel)
}

func TestLoader_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "subwave.yaml")
	yaml := `
server:
  listen: "0.0.0.0:9000"
media:
  workers: 4
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	t.Setenv("SUBWAVE_LISTEN", "127.0.0.1:7777")

	cfg, err := NewLoader(path, "test").Load()
	require.NoError(t, err)

	// Env beats file, file beats defaults.
	assert.Equal(t, "127.0.0.1:7777", cfg.Server.Listen)
	assert.Equal(t, 4, cfg.Media.Workers)
}

func TestLoader_FileRejectsUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "subwave.yaml")
	require.NoError(t, os.WriteFile(path, []byte("nonsense_key: true\n"), 0o600))

	_, err := NewLoader(path, "test").Load()
	assert.Error(t, err)
}

func TestLoader_EnvTypes(t *testing.T) {
	t.Setenv("SUBWAVE_HEARTBEAT_GRACE", "45s")
	t.Setenv("SUBWAVE_MEDIA_WORKERS", "3")
	t.Setenv("SUBWAVE_ACCEPT_CONFIDENCE", "0.75")
	t.Setenv("SUBWAVE_WORD_TIMESTAMPS", "yes")

	cfg, err := NewLoader("", "test").Load()
	require.NoError(t, err)

	assert.Equal(t, 45*time.Second, cfg.Heartbeat.Grace)
	assert.Equal(t, 3, cfg.Media.Workers)
	assert.Equal(t, 0.75, cfg.Circuit.AcceptConfidence)
	assert.True(t, cfg.Engine.WordTimestamps)
}

func TestLoader_InvalidEnvFallsBackToDefault(t *testing.T) {
	t.Setenv("SUBWAVE_MEDIA_WORKERS", "lots")
	t.Setenv("SUBWAVE_HEARTBEAT_GRACE", "soon")

	cfg, err := NewLoader("", "test").Load()
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Media.Workers)
	assert.Equal(t, 30*time.Second, cfg.Heartbeat.Grace)
}

func TestLoader_TracksConsumedKeys(t *testing.T) {
	l := NewLoader("", "test")
	_, err := l.Load()
	require.NoError(t, err)

	for _, key := range []string{"SUBWAVE_LISTEN", "SUBWAVE_DATA", "SUBWAVE_ACCEPT_CONFIDENCE", "SUBWAVE_PRIORITY_MODE"} {
		_, ok := l.ConsumedEnvKeys[key]
		assert.True(t, ok, "loader should consume %s", key)
	}
}

func TestValidate_Thresholds(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*AppConfig)
		wantErr bool
	}{
		{"defaults pass", func(c *AppConfig) {}, false},
		{"upgrade above accept", func(c *AppConfig) { c.Circuit.UpgradeConfidence = 0.9 }, true},
		{"accept above one", func(c *AppConfig) { c.Circuit.AcceptConfidence = 1.5 }, true},
		{"zero workers", func(c *AppConfig) { c.Media.Workers = 0 }, true},
		{"target above max", func(c *AppConfig) { c.Split.TargetSegmentSec = 60 }, true},
		{"light above heavy", func(c *AppConfig) { c.Musicality.LightThreshold = 0.9 }, true},
		{"bad separation policy", func(c *AppConfig) { c.Engine.Separation = "maybe" }, true},
		{"bad priority mode", func(c *AppConfig) { c.Queue.DefaultPriorityMode = "rude" }, true},
		{"empty data dir", func(c *AppConfig) { c.Paths.DataDir = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDefaultSettings(t *testing.T) {
	cfg := defaults()
	s := cfg.DefaultSettings()

	assert.Equal(t, "primary", s.Engine)
	assert.Equal(t, cfg.Engine.Model, s.Model)
	assert.Equal(t, types.SeparationAuto, s.Separation)
	assert.Equal(t, types.BreakContinue, s.OnBreak)
}
