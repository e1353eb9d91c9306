// SPDX-License-Identifier: MIT

package journal

import (
	"errors"
	"os"
	"sync"

	"github.com/subwave-io/subwave/internal/log"
	"github.com/subwave-io/subwave/internal/storage"
	"github.com/subwave-io/subwave/internal/types"
)

// Sentinel errors of the checkpoint store.
var (
	// ErrNotFound means no checkpoint exists for the job.
	ErrNotFound = errors.New("journal: checkpoint not found")

	// ErrCorrupt means the checkpoint file could not be parsed. The
	// offending file has been moved aside for inspection.
	ErrCorrupt = errors.New("journal: checkpoint corrupt")
)

// Store reads and writes per-job checkpoints. Writers are serialized
// per job id; concurrent readers are allowed.
type Store struct {
	root *storage.Root

	mu    sync.Mutex
	locks map[string]*sync.RWMutex
}

// NewStore creates a checkpoint store over the persistence root.
func NewStore(root *storage.Root) *Store {
	return &Store{
		root:  root,
		locks: make(map[string]*sync.RWMutex),
	}
}

func (s *Store) lockFor(jobID string) *sync.RWMutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[jobID]
	if !ok {
		l = &sync.RWMutex{}
		s.locks[jobID] = l
	}
	return l
}

// Load returns the parsed checkpoint for a job.
//
// A missing file yields ErrNotFound. A file that exists but cannot be
// parsed or validated yields ErrCorrupt and is moved aside, never
// silently overwritten.
func (s *Store) Load(jobID string) (*Checkpoint, error) {
	l := s.lockFor(jobID)
	l.RLock()
	defer l.RUnlock()

	return s.loadLocked(jobID)
}

func (s *Store) loadLocked(jobID string) (*Checkpoint, error) {
	path := s.root.CheckpointPath(jobID)

	var cp Checkpoint
	err := storage.ReadJSON(path, &cp)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		s.quarantine(jobID, path, err)
		return nil, ErrCorrupt
	}
	if err := cp.Validate(); err != nil {
		s.quarantine(jobID, path, err)
		return nil, ErrCorrupt
	}
	return &cp, nil
}

func (s *Store) quarantine(jobID, path string, cause error) {
	logger := log.WithComponent("journal")
	aside, moveErr := storage.MoveAside(path)
	if moveErr != nil {
		logger.Error().Err(moveErr).
			Str(log.FieldJobID, jobID).
			Str("event", "journal.quarantine_failed").
			Msg("could not move corrupt checkpoint aside")
		return
	}
	logger.Warn().Err(cause).
		Str(log.FieldJobID, jobID).
		Str("event", "journal.corrupt").
		Str("moved_to", aside).
		Msg("corrupt checkpoint moved aside")
}

// Save validates and persists a checkpoint atomically.
func (s *Store) Save(jobID string, cp *Checkpoint) error {
	if cp == nil {
		return types.Ef(types.KindValidation, "journal.save", "nil checkpoint")
	}
	if cp.JobID != jobID {
		return types.Ef(types.KindValidation, "journal.save",
			"checkpoint job id %q does not match %q", cp.JobID, jobID)
	}
	if err := cp.Validate(); err != nil {
		return err
	}

	l := s.lockFor(jobID)
	l.Lock()
	defer l.Unlock()

	return storage.WriteJSONAtomic(s.root.CheckpointPath(jobID), cp)
}

// AppendFragment records one transcribed fragment and marks its
// segment processed, as a load+mutate+save under the job's lock.
func (s *Store) AppendFragment(jobID string, fragment types.Fragment) error {
	l := s.lockFor(jobID)
	l.Lock()
	defer l.Unlock()

	cp, err := s.loadLocked(jobID)
	if err != nil {
		return types.E(types.KindIO, "journal.append", err)
	}

	// Re-running a segment (after escalation) replaces its fragment.
	replaced := false
	for i := range cp.UnalignedResults {
		if cp.UnalignedResults[i].SegmentIndex == fragment.SegmentIndex {
			cp.UnalignedResults[i] = fragment
			replaced = true
			break
		}
	}
	if !replaced {
		cp.UnalignedResults = append(cp.UnalignedResults, fragment)
	}
	cp.MarkProcessed(fragment.SegmentIndex)

	return storage.WriteJSONAtomic(s.root.CheckpointPath(jobID), cp)
}

// Purge removes the checkpoint for a job. Missing files are fine.
func (s *Store) Purge(jobID string) error {
	l := s.lockFor(jobID)
	l.Lock()
	defer l.Unlock()

	err := os.Remove(s.root.CheckpointPath(jobID))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return types.E(types.KindIO, "journal.purge", err)
	}

	s.mu.Lock()
	delete(s.locks, jobID)
	s.mu.Unlock()
	return nil
}
