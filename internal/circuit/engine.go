// SPDX-License-Identifier: MIT

package circuit

import (
	"fmt"
	"sync"
	"time"

	"github.com/subwave-io/subwave/internal/config"
	"github.com/subwave-io/subwave/internal/types"
)

// Decision is the confidence-gate verdict for one segment attempt.
type Decision struct {
	Outcome types.FuseOutcome `json:"outcome"`

	// NextTier is set when Outcome is upgrade_separation.
	NextTier types.SeparationTier `json:"next_tier,omitempty"`

	// Marked flags an accepted result that stays below the accept
	// threshold (no escalation route left). The renderer appends the
	// problem-segment suffix to marked segments.
	Marked bool `json:"marked,omitempty"`

	// Tripped reports that this decision tripped the break condition.
	Tripped bool `json:"tripped,omitempty"`

	Rationale string `json:"rationale"`
}

// TierChange records one escalation step for the decision history.
type TierChange struct {
	SegmentIndex int                  `json:"segment_index"`
	From         types.SeparationTier `json:"from"`
	To           types.SeparationTier `json:"to"`
	At           time.Time            `json:"at"`
}

// Snapshot is the externally visible circuit state of one job.
type Snapshot struct {
	Consecutive int          `json:"consecutive_retries"`
	Retries     int          `json:"total_retries"`
	Processed   int          `json:"processed_segments"`
	Escalations int          `json:"escalations"`
	Tripped     bool         `json:"tripped"`
	History     []TierChange `json:"history,omitempty"`
}

// Engine holds the per-job break counters. One Engine per job run;
// safe for concurrent use, though the pipeline consults it serially.
type Engine struct {
	cfg config.CircuitConfig
	now func() time.Time

	mu          sync.Mutex
	consecutive int
	retries     int
	processed   int
	escalations int
	tripped     bool
	history     []TierChange
}

// New builds a circuit engine with the given thresholds.
func New(cfg config.CircuitConfig) *Engine {
	return &Engine{cfg: cfg, now: time.Now}
}

// Attempt describes one transcription attempt under evaluation.
type Attempt struct {
	SegmentIndex int

	// Confidence is the aggregate fragment confidence.
	Confidence float64

	// NoiseTag is true when the transcript carries a known noise
	// event marker (music, applause, static).
	NoiseTag bool

	// Tier is the separation tier the attempt ran under.
	Tier types.SeparationTier

	// FallbackAvailable is false when no fallback recognizer is
	// configured, or it has already been tried on this segment.
	FallbackAvailable bool
}

// Decide applies the confidence gate to one attempt and updates the
// break counters. Separation upgrade is always preferred over a
// recognizer retry so the fallback never fights removable noise.
func (e *Engine) Decide(a Attempt) Decision {
	e.mu.Lock()
	defer e.mu.Unlock()

	if a.Confidence >= e.cfg.AcceptConfidence {
		e.acceptLocked()
		return Decision{
			Outcome:   types.FuseAccept,
			Rationale: fmt.Sprintf("confidence %.2f >= %.2f", a.Confidence, e.cfg.AcceptConfidence),
		}
	}

	if next, ok := a.Tier.Next(); ok && a.NoiseTag {
		return e.upgradeLocked(a, next, fmt.Sprintf("noise tag at confidence %.2f, tier %s -> %s", a.Confidence, a.Tier, next))
	}
	if next, ok := a.Tier.Next(); ok && a.Confidence < e.cfg.UpgradeConfidence {
		return e.upgradeLocked(a, next, fmt.Sprintf("confidence %.2f < %.2f, tier %s -> %s", a.Confidence, e.cfg.UpgradeConfidence, a.Tier, next))
	}

	if a.FallbackAvailable {
		d := Decision{
			Outcome:   types.FuseRecognizerRetry,
			Rationale: fmt.Sprintf("confidence %.2f below %.2f with no separation rung left", a.Confidence, e.cfg.AcceptConfidence),
		}
		d.Tripped = e.retryLocked()
		return d
	}

	// Nothing left to try: take the result but mark it.
	e.acceptLocked()
	return Decision{
		Outcome:   types.FuseAccept,
		Marked:    true,
		Rationale: fmt.Sprintf("confidence %.2f accepted after exhausting escalation", a.Confidence),
	}
}

func (e *Engine) upgradeLocked(a Attempt, next types.SeparationTier, rationale string) Decision {
	d := Decision{Outcome: types.FuseUpgradeSeparation, NextTier: next, Rationale: rationale}
	e.escalations++
	e.history = append(e.history, TierChange{
		SegmentIndex: a.SegmentIndex,
		From:         a.Tier,
		To:           next,
		At:           e.now().UTC(),
	})
	d.Tripped = e.retryLocked()
	return d
}

func (e *Engine) acceptLocked() {
	e.processed++
	e.consecutive = 0
}

// retryLocked bumps the retry counters and evaluates the break
// condition. Once tripped, the engine stays tripped; only the first
// trip is reported so the pipeline signals circuit_break once.
func (e *Engine) retryLocked() bool {
	e.retries++
	e.consecutive++
	if e.tripped {
		return false
	}
	if e.consecutive >= e.cfg.BreakConsecutive {
		e.tripped = true
		return true
	}
	if e.processed >= e.cfg.BreakMinSegments &&
		float64(e.retries)/float64(e.processed) >= e.cfg.BreakRatio {
		e.tripped = true
		return true
	}
	return false
}

// Tripped reports whether the break condition has fired.
func (e *Engine) Tripped() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tripped
}

// State snapshots the counters for status reporting and checkpoints.
func (e *Engine) State() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Snapshot{
		Consecutive: e.consecutive,
		Retries:     e.retries,
		Processed:   e.processed,
		Escalations: e.escalations,
		Tripped:     e.tripped,
		History:     append([]TierChange(nil), e.history...),
	}
}

// Restore reinstates counters from a checkpoint snapshot.
func (e *Engine) Restore(s Snapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.consecutive = s.Consecutive
	e.retries = s.Retries
	e.processed = s.Processed
	e.escalations = s.Escalations
	e.tripped = s.Tripped
	e.history = append([]TierChange(nil), s.History...)
}
