// SPDX-License-Identifier: MIT

// Package subtitle turns recognizer output into user-facing subtitle
// sentences and renders them as SRT, VTT, TXT or JSON. Parsing SRT
// back yields the canonical sentence form with identical timings.
package subtitle

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/subwave-io/subwave/internal/types"
)

// SplitConfig controls the sentence splitter.
type SplitConfig struct {
	// PauseSec splits on inter-word gaps exceeding this.
	PauseSec float64

	// MaxSec is the hard cap on sentence duration.
	MaxSec float64

	// MaxChars is the soft cap on sentence length; exceeded only when
	// no weak-punctuation split point exists.
	MaxChars int

	// MinChars drops sentences with less text than this.
	MinChars int
}

// DefaultSplitConfig mirrors the config package defaults.
func DefaultSplitConfig() SplitConfig {
	return SplitConfig{PauseSec: 0.6, MaxSec: 10, MaxChars: 90, MinChars: 2}
}

const (
	terminalPunct = ".!?。！？…"
	weakPunct     = ",;:、，；：—"
)

func endsWithAny(s, set string) bool {
	r, size := utf8.DecodeLastRuneInString(s)
	return size > 0 && strings.ContainsRune(set, r)
}

// SplitFragment splits one fragment into sentences. Word timestamps
// are used when the recognizer provided them; otherwise each utterance
// becomes one sentence candidate.
func SplitFragment(frag types.Fragment, cfg SplitConfig) []types.Sentence {
	var words []types.Word
	for _, u := range frag.Segments {
		if len(u.Words) > 0 {
			words = append(words, u.Words...)
			continue
		}
		// No word timing: treat the whole utterance as one word so the
		// splitter still applies the pause and duration rules between
		// utterances.
		words = append(words, types.Word{
			Word:       u.Text,
			Start:      u.Start,
			End:        u.End,
			Confidence: u.Confidence,
		})
	}
	return SplitWords(words, cfg)
}

// SplitWords walks time-sorted words and emits sentences. Split points
// are, in order of precedence: a terminal-punctuation word, an
// inter-word pause, the duration cap, then the length cap (preferring
// the last weak-punctuation word when one exists).
func SplitWords(words []types.Word, cfg SplitConfig) []types.Sentence {
	var (
		out      []types.Sentence
		current  []types.Word
		lastWeak = -1 // index into current of the last weak-punct word
	)

	flush := func(upto int) {
		if upto <= 0 || upto > len(current) {
			upto = len(current)
		}
		if upto == 0 {
			return
		}
		s := buildSentence(current[:upto], cfg)
		if s != nil {
			out = append(out, *s)
		}
		rest := current[upto:]
		current = append([]types.Word{}, rest...)
		lastWeak = -1
		for i, w := range current {
			if endsWithAny(strings.TrimSpace(w.Word), weakPunct) {
				lastWeak = i
			}
		}
	}

	for _, w := range words {
		if strings.TrimSpace(w.Word) == "" {
			continue
		}

		// A long pause closes the current sentence before this word.
		if len(current) > 0 && w.Start-current[len(current)-1].End > cfg.PauseSec {
			flush(0)
		}

		current = append(current, w)
		text := strings.TrimSpace(w.Word)

		if endsWithAny(text, terminalPunct) {
			flush(0)
			continue
		}
		if endsWithAny(text, weakPunct) {
			lastWeak = len(current) - 1
		}

		if cfg.MaxSec > 0 && current[len(current)-1].End-current[0].Start >= cfg.MaxSec {
			flush(0)
			continue
		}
		if cfg.MaxChars > 0 && joinedLen(current) >= cfg.MaxChars {
			if lastWeak >= 0 {
				flush(lastWeak + 1)
			} else {
				flush(0)
			}
		}
	}
	flush(0)

	return out
}

func joinedLen(words []types.Word) int {
	n := 0
	for i, w := range words {
		if i > 0 {
			n++
		}
		n += utf8.RuneCountInString(strings.TrimSpace(w.Word))
	}
	return n
}

// buildSentence assembles one sentence from words, or nil when the
// text falls below the minimum length.
func buildSentence(words []types.Word, cfg SplitConfig) *types.Sentence {
	if len(words) == 0 {
		return nil
	}

	parts := make([]string, 0, len(words))
	for _, w := range words {
		parts = append(parts, strings.TrimSpace(w.Word))
	}
	text := norm.NFC.String(strings.Join(parts, " "))
	if utf8.RuneCountInString(text) < cfg.MinChars {
		return nil
	}

	var confSum float64
	confN := 0
	for _, w := range words {
		if w.Confidence > 0 {
			confSum += w.Confidence
			confN++
		}
	}
	conf := 0.0
	if confN > 0 {
		conf = confSum / float64(confN)
	}

	backing := make([]types.Word, len(words))
	copy(backing, words)

	return &types.Sentence{
		Text:       text,
		Start:      words[0].Start,
		End:        words[len(words)-1].End,
		Confidence: conf,
		Words:      backing,
	}
}
