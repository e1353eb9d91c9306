// SPDX-License-Identifier: MIT

package config

import (
	"errors"
	"fmt"
)

// Validate checks the configuration for values the daemon cannot run with.
// It collects all problems instead of stopping at the first.
func (c *AppConfig) Validate() error {
	var errs []error

	if c.Server.Listen == "" {
		errs = append(errs, errors.New("server.listen must not be empty"))
	}
	if c.Paths.DataDir == "" {
		errs = append(errs, errors.New("paths.data_dir must not be empty"))
	}

	if !c.Engine.Separation.IsValid() {
		errs = append(errs, fmt.Errorf("engine.separation: invalid policy %q", c.Engine.Separation))
	}
	if !c.Engine.OnBreak.IsValid() {
		errs = append(errs, fmt.Errorf("engine.on_break: invalid action %q", c.Engine.OnBreak))
	}
	if !c.Queue.DefaultPriorityMode.IsValid() {
		errs = append(errs, fmt.Errorf("queue.default_priority_mode: invalid mode %q", c.Queue.DefaultPriorityMode))
	}

	if c.Circuit.AcceptConfidence <= 0 || c.Circuit.AcceptConfidence > 1 {
		errs = append(errs, fmt.Errorf("circuit.accept_confidence: %v outside (0, 1]", c.Circuit.AcceptConfidence))
	}
	if c.Circuit.UpgradeConfidence < 0 || c.Circuit.UpgradeConfidence > 1 {
		errs = append(errs, fmt.Errorf("circuit.upgrade_confidence: %v outside [0, 1]", c.Circuit.UpgradeConfidence))
	}
	if c.Circuit.UpgradeConfidence >= c.Circuit.AcceptConfidence {
		errs = append(errs, fmt.Errorf("circuit.upgrade_confidence (%v) must be below accept_confidence (%v)",
			c.Circuit.UpgradeConfidence, c.Circuit.AcceptConfidence))
	}
	if c.Circuit.BreakConsecutive < 1 {
		errs = append(errs, fmt.Errorf("circuit.break_consecutive: %d must be >= 1", c.Circuit.BreakConsecutive))
	}
	if c.Circuit.BreakRatio <= 0 || c.Circuit.BreakRatio > 1 {
		errs = append(errs, fmt.Errorf("circuit.break_ratio: %v outside (0, 1]", c.Circuit.BreakRatio))
	}
	if c.Circuit.SegmentRetries < 0 {
		errs = append(errs, fmt.Errorf("circuit.segment_retries: %d must be >= 0", c.Circuit.SegmentRetries))
	}

	if c.Musicality.LightThreshold >= c.Musicality.HeavyThreshold {
		errs = append(errs, fmt.Errorf("musicality.light_threshold (%v) must be below heavy_threshold (%v)",
			c.Musicality.LightThreshold, c.Musicality.HeavyThreshold))
	}

	if c.Split.MaxSegmentSec <= 0 {
		errs = append(errs, fmt.Errorf("split.max_segment_sec: %v must be > 0", c.Split.MaxSegmentSec))
	}
	if c.Split.TargetSegmentSec <= 0 || c.Split.TargetSegmentSec > c.Split.MaxSegmentSec {
		errs = append(errs, fmt.Errorf("split.target_segment_sec: %v outside (0, %v]",
			c.Split.TargetSegmentSec, c.Split.MaxSegmentSec))
	}

	if c.Sentence.MinChars < 0 {
		errs = append(errs, fmt.Errorf("sentence.min_chars: %d must be >= 0", c.Sentence.MinChars))
	}
	if c.Sentence.MaxChars > 0 && c.Sentence.MaxChars < c.Sentence.MinChars {
		errs = append(errs, fmt.Errorf("sentence.max_chars (%d) must be >= min_chars (%d)",
			c.Sentence.MaxChars, c.Sentence.MinChars))
	}

	if c.Media.Workers < 1 {
		errs = append(errs, fmt.Errorf("media.workers: %d must be >= 1", c.Media.Workers))
	}
	if c.Heartbeat.Grace <= 0 {
		errs = append(errs, fmt.Errorf("heartbeat.grace: %v must be > 0", c.Heartbeat.Grace))
	}

	return errors.Join(errs...)
}
