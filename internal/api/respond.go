// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"

	"github.com/subwave-io/subwave/internal/catalog"
	"github.com/subwave-io/subwave/internal/journal"
	"github.com/subwave-io/subwave/internal/log"
	"github.com/subwave-io/subwave/internal/types"
)

// ErrorBody is the uniform error envelope {code, detail}.
type ErrorBody struct {
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// respondError maps the error taxonomy onto HTTP statuses and writes
// the structured body. Unknown-job lookups and missing artifacts are
// 404s; other validation failures 400; subprocess failures 502.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	kind := types.KindOf(err)
	if status >= http.StatusInternalServerError {
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	writeJSON(w, status, ErrorBody{Code: kind.String(), Detail: err.Error()})
}

func statusFor(err error) int {
	if errors.Is(err, catalog.ErrNotFound) || errors.Is(err, journal.ErrNotFound) ||
		errors.Is(err, os.ErrNotExist) {
		return http.StatusNotFound
	}
	var te *types.Error
	if errors.As(err, &te) && te.Op == "queue.lookup" {
		return http.StatusNotFound
	}
	switch types.KindOf(err) {
	case types.KindValidation:
		return http.StatusBadRequest
	case types.KindExternalTool:
		return http.StatusBadGateway
	case types.KindCircuitBreak, types.KindCancelled:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// readBody reads the request body up to limit bytes.
func readBody(r *http.Request, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r.Body, limit))
	if err != nil {
		return nil, types.E(types.KindIO, "api.read_body", err)
	}
	return data, nil
}

// decodeJSON parses a request body with unknown fields rejected.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return types.E(types.KindValidation, "api.decode", err)
	}
	return nil
}
