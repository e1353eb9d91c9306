// SPDX-License-Identifier: MIT

package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/subwave-io/subwave/internal/types"
)

// Loader handles configuration loading with precedence
type Loader struct {
	configPath      string
	version         string
	ConsumedEnvKeys map[string]struct{} // Mechanical tracking of consumed keys
}

// NewLoader creates a new configuration loader
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

// Wrapper methods for mechanical connection tracking

func (l *Loader) envString(key, defaultVal string) string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseString(key, defaultVal)
}

func (l *Loader) envBool(key string, defaultVal bool) bool {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseBool(key, defaultVal)
}

func (l *Loader) envInt(key string, defaultVal int) int {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseInt(key, defaultVal)
}

func (l *Loader) envDuration(key string, defaultVal time.Duration) time.Duration {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseDuration(key, defaultVal)
}

func (l *Loader) envFloat(key string, defaultVal float64) float64 {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseFloat(key, defaultVal)
}

// Load loads configuration with precedence: ENV > File > Defaults.
// Order is: set defaults, merge file (strict YAML), apply env, validate.
func (l *Loader) Load() (AppConfig, error) {
	cfg := defaults()

	if l.configPath != "" {
		if err := l.mergeFile(&cfg, l.configPath); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	l.mergeEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func defaults() AppConfig {
	return AppConfig{
		Server: ServerConfig{
			Listen:          "127.0.0.1:8573",
			MetricsListen:   "",
			ReadTimeout:     30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Paths: PathsConfig{
			DataDir: "./data",
		},
		Tools: ToolsConfig{
			FFmpeg:             "ffmpeg",
			FFprobe:            "ffprobe",
			Recognizer:         "faster-whisper",
			RecognizerFallback: "whisper",
			Aligner:            "whisperx",
			Separator:          "audio-separator",
			HardwareProbe:      "nvidia-smi",
		},
		Engine: EngineConfig{
			Model:       "small",
			ComputeType: "auto",
			Device:      "auto",
			BatchSize:   8,
			Separation:  types.SeparationAuto,
			OnBreak:     types.BreakContinue,
		},
		Separator: SeparatorConfig{
			WeakModel:     "mdx_q",
			StrongModel:   "mdx_hq",
			FallbackModel: "demucs",
		},
		Circuit: CircuitConfig{
			AcceptConfidence:  0.6,
			UpgradeConfidence: 0.4,
			BreakConsecutive:  3,
			BreakRatio:        0.2,
			BreakMinSegments:  5,
			SegmentRetries:    2,
		},
		Musicality: MusicalityConfig{
			LightThreshold: 0.35,
			HeavyThreshold: 0.60,
		},
		Split: SplitConfig{
			MaxSegmentSec:    30,
			TargetSegmentSec: 15,
			SilenceNoiseDB:   -30,
			SilenceMinSec:    0.35,
			PadMS:            150,
		},
		Sentence: SentenceConfig{
			PauseSec:      0.6,
			MaxSec:        10,
			MaxChars:      90,
			MinChars:      2,
			ProblemSuffix: " [?]",
		},
		Queue: QueueConfig{
			DefaultPriorityMode: types.PriorityGentle,
		},
		Media: MediaConfig{
			Workers: 2,
		},
		Heartbeat: HeartbeatConfig{
			Grace:    30 * time.Second,
			IdleExit: true,
		},
		Cache: CacheConfig{
			TTL: 24 * time.Hour,
		},
		Telemetry: TelemetryConfig{
			ExporterType: "http",
			SamplingRate: 1.0,
			Environment:  "development",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// mergeFile overlays a strict-parsed YAML file onto cfg.
func (l *Loader) mergeFile(cfg *AppConfig, path string) error {
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from the operator
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// mergeEnv overlays SUBWAVE_* environment variables onto cfg.
// Every key is funneled through the tracking wrappers so unused-env
// audits stay mechanical.
func (l *Loader) mergeEnv(cfg *AppConfig) {
	cfg.Server.Listen = l.envString("SUBWAVE_LISTEN", cfg.Server.Listen)
	cfg.Server.MetricsListen = l.envString("SUBWAVE_METRICS_LISTEN", cfg.Server.MetricsListen)
	cfg.Server.ReadTimeout = l.envDuration("SUBWAVE_READ_TIMEOUT", cfg.Server.ReadTimeout)
	cfg.Server.ShutdownTimeout = l.envDuration("SUBWAVE_SHUTDOWN_TIMEOUT", cfg.Server.ShutdownTimeout)

	cfg.Paths.DataDir = l.envString("SUBWAVE_DATA", cfg.Paths.DataDir)
	cfg.Paths.InputDir = l.envString("SUBWAVE_INPUT_DIR", cfg.Paths.InputDir)
	cfg.Paths.ModelCacheDir = l.envString("SUBWAVE_MODEL_CACHE", cfg.Paths.ModelCacheDir)

	cfg.Tools.FFmpeg = l.envString("SUBWAVE_FFMPEG", cfg.Tools.FFmpeg)
	cfg.Tools.FFprobe = l.envString("SUBWAVE_FFPROBE", cfg.Tools.FFprobe)
	cfg.Tools.Recognizer = l.envString("SUBWAVE_RECOGNIZER_BIN", cfg.Tools.Recognizer)
	cfg.Tools.RecognizerFallback = l.envString("SUBWAVE_RECOGNIZER_FALLBACK_BIN", cfg.Tools.RecognizerFallback)
	cfg.Tools.Aligner = l.envString("SUBWAVE_ALIGNER_BIN", cfg.Tools.Aligner)
	cfg.Tools.Separator = l.envString("SUBWAVE_SEPARATOR_BIN", cfg.Tools.Separator)
	cfg.Tools.HardwareProbe = l.envString("SUBWAVE_HARDWARE_PROBE_BIN", cfg.Tools.HardwareProbe)
	cfg.Tools.DisableFallback = l.envBool("SUBWAVE_DISABLE_FALLBACK", cfg.Tools.DisableFallback)
	cfg.Tools.SkipToolPreflight = l.envBool("SUBWAVE_SKIP_TOOL_PREFLIGHT", cfg.Tools.SkipToolPreflight)

	cfg.Engine.Model = l.envString("SUBWAVE_MODEL", cfg.Engine.Model)
	cfg.Engine.ComputeType = l.envString("SUBWAVE_COMPUTE_TYPE", cfg.Engine.ComputeType)
	cfg.Engine.Device = l.envString("SUBWAVE_DEVICE", cfg.Engine.Device)
	cfg.Engine.BatchSize = l.envInt("SUBWAVE_BATCH_SIZE", cfg.Engine.BatchSize)
	cfg.Engine.WordTimestamps = l.envBool("SUBWAVE_WORD_TIMESTAMPS", cfg.Engine.WordTimestamps)
	cfg.Engine.Language = l.envString("SUBWAVE_LANGUAGE", cfg.Engine.Language)
	cfg.Engine.Separation = types.SeparationPolicy(l.envString("SUBWAVE_SEPARATION", string(cfg.Engine.Separation)))
	cfg.Engine.OnBreak = types.OnBreakAction(l.envString("SUBWAVE_ON_BREAK", string(cfg.Engine.OnBreak)))

	cfg.Separator.WeakModel = l.envString("SUBWAVE_SEPARATOR_WEAK_MODEL", cfg.Separator.WeakModel)
	cfg.Separator.StrongModel = l.envString("SUBWAVE_SEPARATOR_STRONG_MODEL", cfg.Separator.StrongModel)
	cfg.Separator.FallbackModel = l.envString("SUBWAVE_SEPARATOR_FALLBACK_MODEL", cfg.Separator.FallbackModel)

	cfg.Circuit.AcceptConfidence = l.envFloat("SUBWAVE_ACCEPT_CONFIDENCE", cfg.Circuit.AcceptConfidence)
	cfg.Circuit.UpgradeConfidence = l.envFloat("SUBWAVE_UPGRADE_CONFIDENCE", cfg.Circuit.UpgradeConfidence)
	cfg.Circuit.BreakConsecutive = l.envInt("SUBWAVE_BREAK_CONSECUTIVE", cfg.Circuit.BreakConsecutive)
	cfg.Circuit.BreakRatio = l.envFloat("SUBWAVE_BREAK_RATIO", cfg.Circuit.BreakRatio)
	cfg.Circuit.BreakMinSegments = l.envInt("SUBWAVE_BREAK_MIN_SEGMENTS", cfg.Circuit.BreakMinSegments)
	cfg.Circuit.SegmentRetries = l.envInt("SUBWAVE_SEGMENT_RETRIES", cfg.Circuit.SegmentRetries)

	cfg.Musicality.LightThreshold = l.envFloat("SUBWAVE_MUSICALITY_LIGHT", cfg.Musicality.LightThreshold)
	cfg.Musicality.HeavyThreshold = l.envFloat("SUBWAVE_MUSICALITY_HEAVY", cfg.Musicality.HeavyThreshold)

	cfg.Split.MaxSegmentSec = l.envFloat("SUBWAVE_SEGMENT_MAX_SEC", cfg.Split.MaxSegmentSec)
	cfg.Split.TargetSegmentSec = l.envFloat("SUBWAVE_SEGMENT_TARGET_SEC", cfg.Split.TargetSegmentSec)
	cfg.Split.SilenceNoiseDB = l.envFloat("SUBWAVE_SILENCE_NOISE_DB", cfg.Split.SilenceNoiseDB)
	cfg.Split.SilenceMinSec = l.envFloat("SUBWAVE_SILENCE_MIN_SEC", cfg.Split.SilenceMinSec)
	cfg.Split.PadMS = int64(l.envInt("SUBWAVE_SEGMENT_PAD_MS", int(cfg.Split.PadMS)))

	cfg.Sentence.PauseSec = l.envFloat("SUBWAVE_SENTENCE_PAUSE_SEC", cfg.Sentence.PauseSec)
	cfg.Sentence.MaxSec = l.envFloat("SUBWAVE_SENTENCE_MAX_SEC", cfg.Sentence.MaxSec)
	cfg.Sentence.MaxChars = l.envInt("SUBWAVE_SENTENCE_MAX_CHARS", cfg.Sentence.MaxChars)
	cfg.Sentence.MinChars = l.envInt("SUBWAVE_SENTENCE_MIN_CHARS", cfg.Sentence.MinChars)
	cfg.Sentence.ProblemSuffix = l.envString("SUBWAVE_PROBLEM_SUFFIX", cfg.Sentence.ProblemSuffix)

	cfg.Queue.DefaultPriorityMode = types.PriorityMode(l.envString("SUBWAVE_PRIORITY_MODE", string(cfg.Queue.DefaultPriorityMode)))

	cfg.Media.Workers = l.envInt("SUBWAVE_MEDIA_WORKERS", cfg.Media.Workers)

	cfg.Heartbeat.Grace = l.envDuration("SUBWAVE_HEARTBEAT_GRACE", cfg.Heartbeat.Grace)
	cfg.Heartbeat.IdleExit = l.envBool("SUBWAVE_IDLE_EXIT", cfg.Heartbeat.IdleExit)

	cfg.Cache.RedisAddr = l.envString("SUBWAVE_REDIS_ADDR", cfg.Cache.RedisAddr)
	cfg.Cache.TTL = l.envDuration("SUBWAVE_CACHE_TTL", cfg.Cache.TTL)

	cfg.Telemetry.Enabled = l.envBool("SUBWAVE_OTEL_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.Endpoint = l.envString("SUBWAVE_OTEL_ENDPOINT", cfg.Telemetry.Endpoint)
	cfg.Telemetry.ExporterType = l.envString("SUBWAVE_OTEL_EXPORTER", cfg.Telemetry.ExporterType)
	cfg.Telemetry.SamplingRate = l.envFloat("SUBWAVE_OTEL_SAMPLE_RATE", cfg.Telemetry.SamplingRate)
	cfg.Telemetry.Environment = l.envString("SUBWAVE_OTEL_ENVIRONMENT", cfg.Telemetry.Environment)

	cfg.Log.Level = l.envString("SUBWAVE_LOG_LEVEL", cfg.Log.Level)
}
