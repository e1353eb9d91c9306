// SPDX-License-Identifier: MIT

package subtitle

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subwave-io/subwave/internal/types"
)

func sampleSentences() []types.Sentence {
	return []types.Sentence{
		{Text: "First line.", Start: 0, End: 2.5},
		{Text: "Zweite Zeile mit Umlauten: äöü.", Start: 3.2, End: 7.849},
		{Text: "Third.", Start: 3661.001, End: 3662.5},
	}
}

func TestRenderSRT_Shape(t *testing.T) {
	out := string(RenderSRT(sampleSentences()))

	assert.False(t, strings.HasPrefix(out, "\uFEFF"), "no BOM")
	blocks := strings.Split(strings.TrimRight(out, "\n"), "\n\n")
	require.Len(t, blocks, 3)

	lines := strings.Split(blocks[0], "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "1", lines[0])
	assert.Equal(t, "00:00:00,000 --> 00:00:02,500", lines[1])
	assert.Equal(t, "First line.", lines[2])

	// Hour rollover in the third block.
	assert.Contains(t, blocks[2], "01:01:01,001 --> 01:01:02,500")
}

func TestSRT_RoundTripTimings(t *testing.T) {
	src := sampleSentences()
	parsed, err := ParseSRT(RenderSRT(src))
	require.NoError(t, err)
	require.Len(t, parsed, len(src))

	for i := range src {
		assert.Equal(t, toMillis(src[i].Start), toMillis(parsed[i].Start), "start %d", i)
		assert.Equal(t, toMillis(src[i].End), toMillis(parsed[i].End), "end %d", i)
		assert.Equal(t, src[i].Text, parsed[i].Text)
	}

	// Render-parse-render is a fixed point.
	again := RenderSRT(parsed)
	assert.Equal(t, RenderSRT(src), again)
}

func TestParseSRT_CRLFAndBOM(t *testing.T) {
	raw := "\uFEFF1\r\n00:00:01,000 --> 00:00:02,000\r\nHello\r\nWorld\r\n\r\n"
	got, err := ParseSRT([]byte(raw))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Hello\nWorld", got[0].Text)
	assert.Equal(t, 1.0, got[0].Start)
}

func TestParseSRT_RejectsMissingTiming(t *testing.T) {
	_, err := ParseSRT([]byte("1\njust text\n\n"))
	assert.Error(t, err)
	assert.Equal(t, types.KindValidation, types.KindOf(err))
}

func TestRenderVTT(t *testing.T) {
	out := string(RenderVTT(sampleSentences()))
	assert.True(t, strings.HasPrefix(out, "WEBVTT\n"))
	assert.Contains(t, out, "00:00:03.200 --> 00:00:07.849")
}

func TestRenderTXT(t *testing.T) {
	out := string(RenderTXT(sampleSentences()))
	assert.Equal(t, "First line.\nZweite Zeile mit Umlauten: äöü.\nThird.\n", out)
}

func TestRenderJSON(t *testing.T) {
	data, err := RenderJSON(sampleSentences(), "en-US")
	require.NoError(t, err)

	var doc struct {
		Language  string           `json:"language"`
		Sentences []types.Sentence `json:"sentences"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "en", doc.Language)
	assert.Len(t, doc.Sentences, 3)
}

func TestCanonicalLanguage(t *testing.T) {
	assert.Equal(t, "de", CanonicalLanguage("de-DE"))
	assert.Equal(t, "en", CanonicalLanguage("EN"))
	assert.Equal(t, "", CanonicalLanguage(""))
	assert.Equal(t, "zz-bogus", CanonicalLanguage("ZZ-bogus"))
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("SRT")
	require.NoError(t, err)
	assert.Equal(t, FormatSRT, f)

	_, err = ParseFormat("ass")
	assert.Error(t, err)
}
