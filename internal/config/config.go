// SPDX-License-Identifier: MIT

// Package config loads and validates the subwave configuration.
//
// Precedence is ENV > file > defaults. The file is optional YAML; every
// leaf value also has a SUBWAVE_* environment variable.
package config

import (
	"time"

	"github.com/subwave-io/subwave/internal/types"
)

// ServerConfig holds the HTTP surface settings.
type ServerConfig struct {
	// Listen is the bind address of the main API server.
	Listen string `yaml:"listen"`

	// MetricsListen optionally binds a dedicated metrics server.
	// Empty serves /metrics on the main router only.
	MetricsListen string `yaml:"metrics_listen"`

	// ReadTimeout bounds request header+body reads.
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// ShutdownTimeout bounds graceful server drain.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// PathsConfig holds filesystem roots.
type PathsConfig struct {
	// DataDir is the persistence root holding queue state and job directories.
	DataDir string `yaml:"data_dir"`

	// InputDir is an optional library directory scanned for create-job requests.
	InputDir string `yaml:"input_dir"`

	// ModelCacheDir overrides where engines cache model weights.
	ModelCacheDir string `yaml:"model_cache_dir"`
}

// ToolsConfig holds external tool binaries. All engines are subprocess
// collaborators; only their invocation contracts are ours.
type ToolsConfig struct {
	FFmpeg              string `yaml:"ffmpeg"`
	FFprobe             string `yaml:"ffprobe"`
	Recognizer          string `yaml:"recognizer"`
	RecognizerFallback  string `yaml:"recognizer_fallback"`
	Aligner             string `yaml:"aligner"`
	Separator           string `yaml:"separator"`
	HardwareProbe       string `yaml:"hardware_probe"`
	DisableFallback     bool   `yaml:"disable_fallback"`
	SkipToolPreflight   bool   `yaml:"skip_tool_preflight"`
}

// EngineConfig holds the default per-job engine settings. A job may
// override any of these at start time.
type EngineConfig struct {
	Model          string                 `yaml:"model"`
	ComputeType    string                 `yaml:"compute_type"`
	Device         string                 `yaml:"device"`
	BatchSize      int                    `yaml:"batch_size"`
	WordTimestamps bool                   `yaml:"word_timestamps"`
	Language       string                 `yaml:"language"`
	Separation     types.SeparationPolicy `yaml:"separation"`
	OnBreak        types.OnBreakAction    `yaml:"on_break"`
}

// SeparatorConfig maps separation tiers to model identifiers.
type SeparatorConfig struct {
	WeakModel     string `yaml:"weak_model"`
	StrongModel   string `yaml:"strong_model"`
	FallbackModel string `yaml:"fallback_model"`
}

// ModelForTier resolves the configured model name for a tier.
func (s SeparatorConfig) ModelForTier(tier types.SeparationTier) string {
	switch tier {
	case types.TierWeak:
		return s.WeakModel
	case types.TierStrong:
		return s.StrongModel
	case types.TierFallback:
		return s.FallbackModel
	default:
		return ""
	}
}

// CircuitConfig holds the confidence gate and break thresholds.
type CircuitConfig struct {
	// AcceptConfidence accepts a segment at or above this aggregate confidence.
	AcceptConfidence float64 `yaml:"accept_confidence"`

	// UpgradeConfidence triggers a separation upgrade below this value.
	UpgradeConfidence float64 `yaml:"upgrade_confidence"`

	// BreakConsecutive trips the circuit after this many consecutive retries.
	BreakConsecutive int `yaml:"break_consecutive"`

	// BreakRatio trips the circuit when retries/processed reaches this ratio.
	BreakRatio float64 `yaml:"break_ratio"`

	// BreakMinSegments guards the ratio check until enough segments processed.
	BreakMinSegments int `yaml:"break_min_segments"`

	// SegmentRetries caps transient retries per segment before the
	// circuit engine is consulted.
	SegmentRetries int `yaml:"segment_retries"`
}

// MusicalityConfig holds the spectral pre-judgment thresholds.
type MusicalityConfig struct {
	// LightThreshold is the musicality score above which BGM counts as light.
	LightThreshold float64 `yaml:"light_threshold"`

	// HeavyThreshold is the score above which BGM counts as heavy.
	HeavyThreshold float64 `yaml:"heavy_threshold"`
}

// SplitConfig holds voice-activity segmentation parameters.
type SplitConfig struct {
	// MaxSegmentSec is the hard cap on segment duration.
	MaxSegmentSec float64 `yaml:"max_segment_sec"`

	// TargetSegmentSec is the preferred segment duration.
	TargetSegmentSec float64 `yaml:"target_segment_sec"`

	// SilenceNoiseDB is the silencedetect noise floor, e.g. -30.
	SilenceNoiseDB float64 `yaml:"silence_noise_db"`

	// SilenceMinSec is the minimum silence run treated as a boundary.
	SilenceMinSec float64 `yaml:"silence_min_sec"`

	// PadMS pads each speech region on both sides.
	PadMS int64 `yaml:"pad_ms"`
}

// SentenceConfig holds the sentence splitter parameters.
type SentenceConfig struct {
	// PauseSec splits on inter-word gaps exceeding this.
	PauseSec float64 `yaml:"pause_sec"`

	// MaxSec is the hard cap on sentence duration.
	MaxSec float64 `yaml:"max_sec"`

	// MaxChars is the hard cap on sentence length.
	MaxChars int `yaml:"max_chars"`

	// MinChars drops sentences shorter than this.
	MinChars int `yaml:"min_chars"`

	// ProblemSuffix marks low-confidence sentences in rendered output.
	ProblemSuffix string `yaml:"problem_suffix"`
}

// QueueConfig holds scheduler settings.
type QueueConfig struct {
	// DefaultPriorityMode applies when prioritize is called without a mode.
	DefaultPriorityMode types.PriorityMode `yaml:"default_priority_mode"`
}

// MediaConfig holds the artifact supervisor settings.
type MediaConfig struct {
	// Workers caps concurrent artifact generator processes.
	Workers int `yaml:"workers"`
}

// HeartbeatConfig holds the shutdown supervisor settings.
type HeartbeatConfig struct {
	// Grace is the window without client heartbeats before idle shutdown.
	Grace time.Duration `yaml:"grace"`

	// IdleExit arms automatic shutdown once the first client registers.
	IdleExit bool `yaml:"idle_exit"`
}

// CacheConfig holds optional Redis settings for the probe/metadata cache.
type CacheConfig struct {
	// RedisAddr enables the Redis cache when non-empty; otherwise an
	// in-memory cache is used.
	RedisAddr string `yaml:"redis_addr"`

	// TTL bounds cached probe results.
	TTL time.Duration `yaml:"ttl"`
}

// TelemetryConfig holds OpenTelemetry tracing settings.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Endpoint     string  `yaml:"endpoint"`
	ExporterType string  `yaml:"exporter"`
	SamplingRate float64 `yaml:"sampling_rate"`
	Environment  string  `yaml:"environment"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"`
}

// AppConfig is the complete runtime configuration.
type AppConfig struct {
	Server     ServerConfig     `yaml:"server"`
	Paths      PathsConfig      `yaml:"paths"`
	Tools      ToolsConfig      `yaml:"tools"`
	Engine     EngineConfig     `yaml:"engine"`
	Separator  SeparatorConfig  `yaml:"separator"`
	Circuit    CircuitConfig    `yaml:"circuit"`
	Musicality MusicalityConfig `yaml:"musicality"`
	Split      SplitConfig      `yaml:"split"`
	Sentence   SentenceConfig   `yaml:"sentence"`
	Queue      QueueConfig      `yaml:"queue"`
	Media      MediaConfig      `yaml:"media"`
	Heartbeat  HeartbeatConfig  `yaml:"heartbeat"`
	Cache      CacheConfig      `yaml:"cache"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Log        LogConfig        `yaml:"log"`
}

// DefaultSettings builds the engine settings snapshot for a new job
// from the configured defaults.
func (c *AppConfig) DefaultSettings() types.EngineSettings {
	return types.EngineSettings{
		Engine:         "primary",
		Model:          c.Engine.Model,
		ComputeType:    c.Engine.ComputeType,
		Device:         c.Engine.Device,
		BatchSize:      c.Engine.BatchSize,
		WordTimestamps: c.Engine.WordTimestamps,
		Language:       c.Engine.Language,
		Separation:     c.Engine.Separation,
		OnBreak:        c.Engine.OnBreak,
	}
}
