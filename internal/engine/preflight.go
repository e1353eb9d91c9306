// SPDX-License-Identifier: MIT

package engine

import (
	"os/exec"

	"github.com/subwave-io/subwave/internal/config"
	"github.com/subwave-io/subwave/internal/log"
	"github.com/subwave-io/subwave/internal/types"
)

// Preflight verifies every configured tool resolves on PATH before
// the daemon accepts jobs. A missing fallback recognizer is tolerated
// when fallback is disabled; everything else is fatal.
func Preflight(cfg config.ToolsConfig) error {
	logger := log.WithComponent("engine")
	if cfg.SkipToolPreflight {
		logger.Warn().Msg("tool preflight skipped by configuration")
		return nil
	}

	required := map[string]string{
		"ffmpeg":     cfg.FFmpeg,
		"ffprobe":    cfg.FFprobe,
		"recognizer": cfg.Recognizer,
		"aligner":    cfg.Aligner,
		"separator":  cfg.Separator,
	}
	for name, bin := range required {
		if bin == "" {
			return types.Ef(types.KindValidation, "engine.preflight", "tool %q not configured", name)
		}
		if _, err := exec.LookPath(bin); err != nil {
			return types.Ef(types.KindValidation, "engine.preflight", "tool %q (%s) not found: %v", name, bin, err)
		}
	}

	if cfg.RecognizerFallback != "" {
		if _, err := exec.LookPath(cfg.RecognizerFallback); err != nil {
			if !cfg.DisableFallback {
				return types.Ef(types.KindValidation, "engine.preflight",
					"fallback recognizer %q not found: %v", cfg.RecognizerFallback, err)
			}
			logger.Warn().
				Str("bin", cfg.RecognizerFallback).
				Msg("fallback recognizer missing, fallback disabled anyway")
		}
	}
	return nil
}
