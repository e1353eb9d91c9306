// SPDX-License-Identifier: MIT

package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/subwave-io/subwave/internal/log"
)

// lookup reads one SUBWAVE_* variable. The second return is false when
// the variable is unset or empty, so callers fall back to the default.
func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// secret reports whether a key's value must not appear in logs. The
// redis URL can embed credentials; everything else subwave reads from
// the environment is plain tuning.
func secret(key string) bool {
	k := strings.ToLower(key)
	return strings.Contains(k, "redis") || strings.Contains(k, "token") || strings.Contains(k, "password")
}

func logOverride(logger zerolog.Logger, key, value string) {
	ev := logger.Debug().Str("key", key)
	if secret(key) {
		ev.Bool("redacted", true).Msg("environment override")
		return
	}
	ev.Str("value", value).Msg("environment override")
}

func logInvalid(logger zerolog.Logger, key, value, want string) {
	logger.Warn().Str("key", key).Str("value", value).Str("want", want).
		Msg("unparseable environment override, keeping default")
}

// ParseString reads a string variable, returning the default when it
// is unset or empty.
func ParseString(key, defaultValue string) string {
	v, ok := lookup(key)
	if !ok {
		return defaultValue
	}
	logOverride(log.WithComponent("config"), key, v)
	return v
}

// ParseInt reads an integer variable, keeping the default on parse errors.
func ParseInt(key string, defaultValue int) int {
	v, ok := lookup(key)
	if !ok {
		return defaultValue
	}
	logger := log.WithComponent("config")
	i, err := strconv.Atoi(v)
	if err != nil {
		logInvalid(logger, key, v, "integer")
		return defaultValue
	}
	logOverride(logger, key, v)
	return i
}

// ParseDuration reads a Go duration variable (e.g. "5s", "2m"),
// keeping the default on parse errors.
func ParseDuration(key string, defaultValue time.Duration) time.Duration {
	v, ok := lookup(key)
	if !ok {
		return defaultValue
	}
	logger := log.WithComponent("config")
	d, err := time.ParseDuration(v)
	if err != nil {
		logInvalid(logger, key, v, "duration")
		return defaultValue
	}
	logOverride(logger, key, v)
	return d
}

// ParseBool reads a boolean variable. It accepts "true", "false", "1",
// "0", "yes", "no" (case-insensitive) and keeps the default otherwise.
func ParseBool(key string, defaultValue bool) bool {
	v, ok := lookup(key)
	if !ok {
		return defaultValue
	}
	logger := log.WithComponent("config")
	switch strings.ToLower(v) {
	case "true", "1", "yes":
		logOverride(logger, key, v)
		return true
	case "false", "0", "no":
		logOverride(logger, key, v)
		return false
	default:
		logInvalid(logger, key, v, "boolean")
		return defaultValue
	}
}

// ParseFloat reads a float64 variable, keeping the default on parse errors.
func ParseFloat(key string, defaultValue float64) float64 {
	v, ok := lookup(key)
	if !ok {
		return defaultValue
	}
	logger := log.WithComponent("config")
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		logInvalid(logger, key, v, "float")
		return defaultValue
	}
	logOverride(logger, key, v)
	return f
}
