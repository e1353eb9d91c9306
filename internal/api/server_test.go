// SPDX-License-Identifier: MIT

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/subwave-io/subwave/internal/bus"
	"github.com/subwave-io/subwave/internal/catalog"
	"github.com/subwave-io/subwave/internal/config"
	"github.com/subwave-io/subwave/internal/journal"
	"github.com/subwave-io/subwave/internal/lifecycle"
	"github.com/subwave-io/subwave/internal/media"
	"github.com/subwave-io/subwave/internal/queue"
	"github.com/subwave-io/subwave/internal/storage"
	"github.com/subwave-io/subwave/internal/types"
)

// stubRunner lets tests decide how a run behaves; the default
// completes immediately.
type stubRunner struct {
	run func(ctx context.Context, jobID string, ctl *queue.Run) error
}

func (r *stubRunner) Run(ctx context.Context, jobID string, ctl *queue.Run) error {
	if r.run != nil {
		return r.run(ctx, jobID, ctl)
	}
	return nil
}

type testEnv struct {
	cfg       *config.AppConfig
	root      *storage.Root
	bus       *bus.Bus
	queue     *queue.Scheduler
	journal   *journal.Store
	catalog   *catalog.Catalog
	media     *media.Supervisor
	lifecycle *lifecycle.Registry
	runner    *stubRunner
	srv       *Server
	ts        *httptest.Server
}

func testConfig() *config.AppConfig {
	return &config.AppConfig{
		Engine: config.EngineConfig{
			Model:       "small",
			ComputeType: "auto",
			Device:      "auto",
			BatchSize:   8,
			Separation:  types.SeparationAuto,
			OnBreak:     types.BreakContinue,
		},
		Queue:     config.QueueConfig{DefaultPriorityMode: types.PriorityGentle},
		Media:     config.MediaConfig{Workers: 1},
		Heartbeat: config.HeartbeatConfig{Grace: time.Minute},
		Cache:     config.CacheConfig{TTL: time.Hour},
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := testConfig()
	root := storage.NewRoot(t.TempDir())
	require.NoError(t, root.Ensure())

	b := bus.New()
	t.Cleanup(b.Close)

	cat, err := catalog.Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = cat.Close() })

	runner := &stubRunner{}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	env := &testEnv{
		cfg:       cfg,
		root:      root,
		bus:       b,
		journal:   journal.NewStore(root),
		catalog:   cat,
		media:     media.New(root, b, nil, nil, cfg.Media),
		lifecycle: lifecycle.NewRegistry(cfg.Heartbeat, nil),
		runner:    runner,
	}
	env.queue = queue.New(ctx, root, b, runner, cfg.Queue, nil)

	env.srv = New(Deps{
		Config:    cfg,
		Root:      root,
		Bus:       b,
		Queue:     env.queue,
		Journal:   env.journal,
		Catalog:   cat,
		Media:     env.media,
		Lifecycle: env.lifecycle,
	})
	env.ts = httptest.NewServer(env.srv.Handler())
	t.Cleanup(env.ts.Close)
	return env
}

// do issues a request against the test server, JSON-encoding body when
// it is non-nil.
func (e *testEnv) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()

	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.ts.URL+path, rd)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.ts.Client().Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

// upload posts a multipart file and returns the created job id.
func (e *testEnv) upload(t *testing.T, name string, content []byte) string {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := e.ts.Client().Post(e.ts.URL+"/api/upload", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out uploadResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotEmpty(t, out.JobID)
	return out.JobID
}

func decodeBody[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v))
	return v
}
