// SPDX-License-Identifier: MIT

package subtitle

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subwave-io/subwave/internal/types"
)

func word(text string, start, end float64) types.Word {
	return types.Word{Word: text, Start: start, End: end, Confidence: 0.9}
}

func TestSplitWords_TerminalPunctuation(t *testing.T) {
	words := []types.Word{
		word("Hello", 0, 0.4),
		word("world.", 0.45, 0.9),
		word("Next", 1.0, 1.3),
		word("sentence!", 1.35, 1.9),
	}

	got := SplitWords(words, DefaultSplitConfig())
	require.Len(t, got, 2)
	assert.Equal(t, "Hello world.", got[0].Text)
	assert.Equal(t, "Next sentence!", got[1].Text)
	assert.Equal(t, 0.0, got[0].Start)
	assert.Equal(t, 0.9, got[0].End)
}

func TestSplitWords_PauseGap(t *testing.T) {
	words := []types.Word{
		word("before", 0, 0.5),
		word("pause", 0.55, 1.0),
		// 2s gap, no punctuation.
		word("after", 3.0, 3.5),
	}

	got := SplitWords(words, DefaultSplitConfig())
	require.Len(t, got, 2)
	assert.Equal(t, "before pause", got[0].Text)
	assert.Equal(t, "after", got[1].Text)
}

func TestSplitWords_DurationCap(t *testing.T) {
	// 15 words of one second each, no punctuation, no pauses.
	var words []types.Word
	for i := 0; i < 15; i++ {
		words = append(words, word("wort", float64(i), float64(i)+0.95))
	}

	cfg := DefaultSplitConfig()
	cfg.MaxSec = 5
	got := SplitWords(words, cfg)

	require.NotEmpty(t, got)
	for _, s := range got {
		assert.LessOrEqual(t, s.End-s.Start, 6.0, "sentence %q too long", s.Text)
	}
	assert.GreaterOrEqual(t, len(got), 3)
}

func TestSplitWords_CharCapPrefersWeakPunct(t *testing.T) {
	words := []types.Word{
		word("alpha", 0, 0.2),
		word("beta,", 0.25, 0.45),
		word("gamma", 0.5, 0.7),
		word("delta", 0.75, 0.95),
		word("epsilon", 1.0, 1.2),
	}

	cfg := DefaultSplitConfig()
	cfg.MaxChars = 20
	got := SplitWords(words, cfg)

	require.GreaterOrEqual(t, len(got), 2)
	// The split lands on the weak-punctuation boundary.
	assert.Equal(t, "alpha beta,", got[0].Text)
}

func TestSplitWords_DropsShortSentences(t *testing.T) {
	words := []types.Word{
		word("a.", 0, 0.2),
		word("Proper sentence here.", 1.0, 2.0),
	}

	cfg := DefaultSplitConfig()
	cfg.MinChars = 3
	got := SplitWords(words, cfg)

	require.Len(t, got, 1)
	assert.Equal(t, "Proper sentence here.", got[0].Text)
}

func TestSplitWords_SortedNonOverlapping(t *testing.T) {
	var words []types.Word
	for i := 0; i < 40; i++ {
		w := word("token", float64(i)*0.5, float64(i)*0.5+0.4)
		if i%7 == 6 {
			w.Word = "token."
		}
		words = append(words, w)
	}

	got := SplitWords(words, DefaultSplitConfig())
	require.NotEmpty(t, got)
	assert.NoError(t, Validate(got))
}

func TestSplitFragment_UtterancesWithoutWords(t *testing.T) {
	frag := types.Fragment{
		SegmentIndex: 0,
		Segments: []types.Utterance{
			{ID: 0, Start: 0, End: 2, Text: "Erster Satz ohne Wortzeiten.", Confidence: 0.8},
			{ID: 1, Start: 2.5, End: 4, Text: "Zweiter Satz.", Confidence: 0.7},
		},
	}

	got := SplitFragment(frag, DefaultSplitConfig())
	require.Len(t, got, 2)
	assert.Equal(t, "Erster Satz ohne Wortzeiten.", got[0].Text)
	assert.InDelta(t, 0.8, got[0].Confidence, 1e-9)
}

func TestSplitWords_ConfidenceAggregation(t *testing.T) {
	words := []types.Word{
		{Word: "low", Start: 0, End: 0.3, Confidence: 0.2},
		{Word: "high.", Start: 0.35, End: 0.7, Confidence: 0.8},
	}

	got := SplitWords(words, DefaultSplitConfig())
	require.Len(t, got, 1)
	assert.InDelta(t, 0.5, got[0].Confidence, 1e-9)
}

func TestSplitWords_LongUnbreakableText(t *testing.T) {
	// One giant word: no weak punct available, so the cap may be
	// exceeded rather than the text truncated.
	long := strings.Repeat("x", 200)
	words := []types.Word{word(long, 0, 1)}

	cfg := DefaultSplitConfig()
	got := SplitWords(words, cfg)
	require.Len(t, got, 1)
	assert.Equal(t, long, got[0].Text)
}
