// SPDX-License-Identifier: MIT

package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/renameio/v2"

	"github.com/subwave-io/subwave/internal/log"
	"github.com/subwave-io/subwave/internal/types"
)

// WriteFileAtomic writes data to path with full durability guarantees.
// renameio handles temp file creation, fsync, atomic rename and cleanup
// on error, so a reader never observes a partial file.
func WriteFileAtomic(path string, data []byte) error {
	pendingFile, err := renameio.NewPendingFile(path)
	if err != nil {
		return types.E(types.KindIO, "storage.write", fmt.Errorf("create pending file: %w", err))
	}
	defer func() {
		// Cleanup on error - renameio removes temp file if not committed
		if err := pendingFile.Cleanup(); err != nil {
			logger := log.WithComponent("storage")
			logger.Debug().Err(err).Str("path", path).Msg("cleanup pending file")
		}
	}()

	if _, err := pendingFile.Write(data); err != nil {
		return types.E(types.KindIO, "storage.write", fmt.Errorf("write pending file: %w", err))
	}

	// CloseAtomicallyReplace: fsync + rename (durable + atomic)
	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		return types.E(types.KindIO, "storage.write", fmt.Errorf("atomically replace: %w", err))
	}
	return nil
}

// WriteJSONAtomic marshals v with indentation and writes it atomically.
// Marshalling is deterministic, so saving and re-saving an unchanged
// value produces byte-identical files.
func WriteJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return types.E(types.KindInternal, "storage.write_json", err)
	}
	data = append(data, '\n')
	return WriteFileAtomic(path, data)
}

// ReadJSON reads and unmarshals path into v.
//
// A missing file returns os.ErrNotExist (callers check with
// errors.Is); malformed content returns a KindIO error.
func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path) // #nosec G304 -- paths come from Root, not user input
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return types.E(types.KindIO, "storage.read_json", fmt.Errorf("parse %s: %w", path, err))
	}
	return nil
}

// MoveAside renames a corrupt file next to itself with a timestamp
// suffix so it is preserved for inspection and never silently
// overwritten. Returns the new path.
func MoveAside(path string) (string, error) {
	aside := fmt.Sprintf("%s.corrupt-%d", path, time.Now().Unix())
	if err := os.Rename(path, aside); err != nil {
		return "", types.E(types.KindIO, "storage.move_aside", err)
	}
	return aside, nil
}
