// SPDX-License-Identifier: MIT

package config

import (
	"testing"
	"time"
)

func TestParseString(t *testing.T) {
	t.Setenv("SUBWAVE_TEST_STR", "hello")
	if got := ParseString("SUBWAVE_TEST_STR", "fallback"); got != "hello" {
		t.Errorf("ParseString() = %q, want hello", got)
	}
	if got := ParseString("SUBWAVE_TEST_MISSING", "fallback"); got != "fallback" {
		t.Errorf("ParseString() = %q, want fallback", got)
	}

	t.Setenv("SUBWAVE_TEST_EMPTY", "")
	if got := ParseString("SUBWAVE_TEST_EMPTY", "fallback"); got != "fallback" {
		t.Errorf("ParseString() on empty = %q, want fallback", got)
	}
}

func TestParseInt(t *testing.T) {
	t.Setenv("SUBWAVE_TEST_INT", "42")
	if got := ParseInt("SUBWAVE_TEST_INT", 7); got != 42 {
		t.Errorf("ParseInt() = %d, want 42", got)
	}

	t.Setenv("SUBWAVE_TEST_BAD_INT", "forty-two")
	if got := ParseInt("SUBWAVE_TEST_BAD_INT", 7); got != 7 {
		t.Errorf("ParseInt() on garbage = %d, want 7", got)
	}
}

func TestParseDuration(t *testing.T) {
	t.Setenv("SUBWAVE_TEST_DUR", "90s")
	if got := ParseDuration("SUBWAVE_TEST_DUR", time.Second); got != 90*time.Second {
		t.Errorf("ParseDuration() = %v, want 90s", got)
	}

	t.Setenv("SUBWAVE_TEST_BAD_DUR", "whenever")
	if got := ParseDuration("SUBWAVE_TEST_BAD_DUR", time.Minute); got != time.Minute {
		t.Errorf("ParseDuration() on garbage = %v, want 1m", got)
	}
}

func TestParseBool(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"true", true},
		{"1", true},
		{"yes", true},
		{"TRUE", true},
		{"false", false},
		{"0", false},
		{"no", false},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("SUBWAVE_TEST_BOOL", tt.value)
			if got := ParseBool("SUBWAVE_TEST_BOOL", !tt.want); got != tt.want {
				t.Errorf("ParseBool(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}

	t.Setenv("SUBWAVE_TEST_BOOL", "si")
	if got := ParseBool("SUBWAVE_TEST_BOOL", true); got != true {
		t.Error("ParseBool on garbage should return default")
	}
}

func TestParseFloat(t *testing.T) {
	t.Setenv("SUBWAVE_TEST_FLOAT", "0.35")
	if got := ParseFloat("SUBWAVE_TEST_FLOAT", 0.5); got != 0.35 {
		t.Errorf("ParseFloat() = %v, want 0.35", got)
	}

	t.Setenv("SUBWAVE_TEST_BAD_FLOAT", "third")
	if got := ParseFloat("SUBWAVE_TEST_BAD_FLOAT", 0.5); got != 0.5 {
		t.Errorf("ParseFloat() on garbage = %v, want 0.5", got)
	}
}
