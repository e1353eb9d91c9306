// SPDX-License-Identifier: MIT

package supervisor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subwave-io/subwave/internal/types"
)

type loadRecorder struct {
	mu       sync.Mutex
	loads    []string
	unloads  []string
	failNext error
}

func (r *loadRecorder) load(_ context.Context, kind types.ModelKind, variant string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failNext != nil {
		err := r.failNext
		r.failNext = nil
		return err
	}
	r.loads = append(r.loads, kind.String()+"/"+variant)
	return nil
}

func (r *loadRecorder) unload(kind types.ModelKind, variant string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unloads = append(r.unloads, kind.String()+"/"+variant)
}

func (r *loadRecorder) snapshot() (loads, unloads []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.loads...), append([]string(nil), r.unloads...)
}

func TestAcquire_ReusesResidentModel(t *testing.T) {
	rec := &loadRecorder{}
	s := New(types.HardwareTierSmall, WithLoader(rec.load, rec.unload))

	h1, err := s.Acquire(context.Background(), types.ModelRecognizerPrimary, "large-v3")
	require.NoError(t, err)
	h2, err := s.Acquire(context.Background(), types.ModelRecognizerPrimary, "large-v3")
	require.NoError(t, err)

	loads, _ := rec.snapshot()
	assert.Equal(t, []string{"recognizer_primary/large-v3"}, loads, "second acquire must not reload")

	h1.Release()
	h2.Release()
	h2.Release() // idempotent
}

func TestAcquire_EvictsLRUWhenBudgetExceeded(t *testing.T) {
	rec := &loadRecorder{}
	s := New(types.HardwareTierSmall, WithLoader(rec.load, rec.unload)) // one heavy slot

	h, err := s.Acquire(context.Background(), types.ModelRecognizerPrimary, "large-v3")
	require.NoError(t, err)
	h.Release()

	h2, err := s.Acquire(context.Background(), types.ModelSeparator, "mdx_hq")
	require.NoError(t, err)
	defer h2.Release()

	_, unloads := rec.snapshot()
	assert.Equal(t, []string{"recognizer_primary/large-v3"}, unloads)

	resident := s.Resident()
	require.Len(t, resident, 1)
	assert.Equal(t, types.ModelSeparator, resident[0].Kind)
}

func TestAcquire_BlocksWhilePinnedThenProceeds(t *testing.T) {
	rec := &loadRecorder{}
	s := New(types.HardwareTierSmall, WithLoader(rec.load, rec.unload))

	h, err := s.Acquire(context.Background(), types.ModelRecognizerPrimary, "large-v3")
	require.NoError(t, err)

	acquired := make(chan *Handle, 1)
	go func() {
		h2, err := s.Acquire(context.Background(), types.ModelSeparator, "mdx_q")
		if err == nil {
			acquired <- h2
		}
	}()

	select {
	case <-acquired:
		t.Fatal("acquire must block while the only heavy slot is pinned")
	case <-time.After(50 * time.Millisecond):
	}

	h.Release()
	select {
	case h2 := <-acquired:
		h2.Release()
	case <-time.After(2 * time.Second):
		t.Fatal("acquire did not proceed after release")
	}
}

func TestAcquire_LightModelNeverCompetes(t *testing.T) {
	rec := &loadRecorder{}
	s := New(types.HardwareTierSmall, WithLoader(rec.load, rec.unload))

	h, err := s.Acquire(context.Background(), types.ModelRecognizerPrimary, "large-v3")
	require.NoError(t, err)
	defer h.Release()

	done := make(chan struct{})
	go func() {
		ha, err := s.Acquire(context.Background(), types.ModelAligner, "wav2vec2")
		assert.NoError(t, err)
		ha.Release()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("aligner acquire must not wait for a heavy slot")
	}
}

func TestAcquire_LargeTierHoldsTwoHeavy(t *testing.T) {
	rec := &loadRecorder{}
	s := New(types.HardwareTierLarge, WithLoader(rec.load, rec.unload))

	h1, err := s.Acquire(context.Background(), types.ModelRecognizerPrimary, "large-v3")
	require.NoError(t, err)
	h2, err := s.Acquire(context.Background(), types.ModelSeparator, "mdx_q")
	require.NoError(t, err)

	_, unloads := rec.snapshot()
	assert.Empty(t, unloads)
	assert.Len(t, s.Resident(), 2)

	h1.Release()
	h2.Release()
}

func TestAcquire_LoadFailure(t *testing.T) {
	rec := &loadRecorder{failNext: errors.New("cuda out of memory")}
	s := New(types.HardwareTierSmall, WithLoader(rec.load, rec.unload))

	_, err := s.Acquire(context.Background(), types.ModelRecognizerPrimary, "large-v3")
	require.Error(t, err)
	assert.Equal(t, types.KindModelLoad, types.KindOf(err))
	assert.Empty(t, s.Resident())

	// The slot is free again afterwards.
	h, err := s.Acquire(context.Background(), types.ModelRecognizerPrimary, "large-v3")
	require.NoError(t, err)
	h.Release()
}

func TestAcquire_CancelledWhileWaiting(t *testing.T) {
	rec := &loadRecorder{}
	s := New(types.HardwareTierSmall, WithLoader(rec.load, rec.unload))

	h, err := s.Acquire(context.Background(), types.ModelRecognizerPrimary, "large-v3")
	require.NoError(t, err)
	defer h.Release()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := s.Acquire(ctx, types.ModelSeparator, "mdx_q")
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		require.Error(t, err)
		assert.Equal(t, types.KindCancelled, types.KindOf(err))
	case <-time.After(2 * time.Second):
		t.Fatal("waiting acquire did not observe cancellation")
	}
}

func TestEvictIdle(t *testing.T) {
	rec := &loadRecorder{}
	s := New(types.HardwareTierLarge, WithLoader(rec.load, rec.unload))

	h1, err := s.Acquire(context.Background(), types.ModelSeparator, "mdx_q")
	require.NoError(t, err)
	h1.Release()
	h2, err := s.Acquire(context.Background(), types.ModelRecognizerPrimary, "large-v3")
	require.NoError(t, err)
	defer h2.Release()

	s.EvictIdle(types.ModelSeparator)

	_, unloads := rec.snapshot()
	assert.Equal(t, []string{"separator/mdx_q"}, unloads)
	require.Len(t, s.Resident(), 1)
	assert.Equal(t, types.ModelRecognizerPrimary, s.Resident()[0].Kind)
}

func TestDrain_WaitsForHandlesAndUnloadsAll(t *testing.T) {
	rec := &loadRecorder{}
	s := New(types.HardwareTierLarge, WithLoader(rec.load, rec.unload))

	h, err := s.Acquire(context.Background(), types.ModelRecognizerPrimary, "large-v3")
	require.NoError(t, err)

	drained := make(chan error, 1)
	go func() { drained <- s.Drain(context.Background()) }()

	select {
	case <-drained:
		t.Fatal("drain must wait for outstanding handles")
	case <-time.After(50 * time.Millisecond):
	}

	h.Release()
	select {
	case err := <-drained:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("drain did not complete after release")
	}
	assert.Empty(t, s.Resident())

	// New acquisitions are refused.
	_, err = s.Acquire(context.Background(), types.ModelAligner, "wav2vec2")
	require.Error(t, err)
	assert.Equal(t, types.KindCancelled, types.KindOf(err))
}
