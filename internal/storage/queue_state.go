// SPDX-License-Identifier: MIT

package storage

import (
	"errors"
	"os"
)

// QueueState is the durable snapshot of the scheduler: queued ids in
// order, the running id, paused ids and the preemption links.
type QueueState struct {
	Queue         []string          `json:"queue"`
	Running       *string           `json:"running"`
	Paused        []string          `json:"paused"`
	InterruptedBy map[string]string `json:"interrupted_by"`
}

// EmptyQueueState returns a fresh state with no nil collections.
func EmptyQueueState() QueueState {
	return QueueState{
		Queue:         []string{},
		Paused:        []string{},
		InterruptedBy: map[string]string{},
	}
}

// LoadQueueState reads the queue state file, returning an empty state
// when the file does not exist yet.
func (r *Root) LoadQueueState() (QueueState, error) {
	state := EmptyQueueState()
	err := ReadJSON(r.QueueStatePath(), &state)
	if errors.Is(err, os.ErrNotExist) {
		return EmptyQueueState(), nil
	}
	if err != nil {
		return EmptyQueueState(), err
	}
	if state.Queue == nil {
		state.Queue = []string{}
	}
	if state.Paused == nil {
		state.Paused = []string{}
	}
	if state.InterruptedBy == nil {
		state.InterruptedBy = map[string]string{}
	}
	return state, nil
}

// SaveQueueState persists the queue state atomically.
func (r *Root) SaveQueueState(state QueueState) error {
	return WriteJSONAtomic(r.QueueStatePath(), state)
}
