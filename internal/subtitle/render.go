// SPDX-License-Identifier: MIT

package subtitle

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"github.com/subwave-io/subwave/internal/types"
)

// Format names one subtitle output format.
type Format string

// Supported output formats.
const (
	FormatSRT  Format = "srt"
	FormatVTT  Format = "vtt"
	FormatTXT  Format = "txt"
	FormatJSON Format = "json"
)

// ParseFormat validates a format query value.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case FormatSRT:
		return FormatSRT, nil
	case FormatVTT:
		return FormatVTT, nil
	case FormatTXT:
		return FormatTXT, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", types.Ef(types.KindValidation, "subtitle.format", "unknown format %q", s)
	}
}

// ContentType returns the MIME type served for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatVTT:
		return "text/vtt; charset=utf-8"
	case FormatJSON:
		return "application/json; charset=utf-8"
	default:
		return "text/plain; charset=utf-8"
	}
}

// CanonicalLanguage normalizes a recognizer language code to its BCP 47
// base form ("en", "de", ...). Unknown codes pass through lowercased.
func CanonicalLanguage(code string) string {
	if code == "" {
		return ""
	}
	tag, err := language.Parse(code)
	if err != nil {
		return strings.ToLower(code)
	}
	base, _ := tag.Base()
	return base.String()
}

// Render emits sentences in the requested format. Output is UTF-8 with
// no BOM; sentence text is NFC-normalized.
func Render(sentences []types.Sentence, format Format, lang string) ([]byte, error) {
	switch format {
	case FormatSRT:
		return RenderSRT(sentences), nil
	case FormatVTT:
		return RenderVTT(sentences), nil
	case FormatTXT:
		return RenderTXT(sentences), nil
	case FormatJSON:
		return RenderJSON(sentences, lang)
	default:
		return nil, types.Ef(types.KindValidation, "subtitle.render", "unknown format %q", format)
	}
}

// RenderSRT emits standard numbered SRT blocks separated by blank lines.
func RenderSRT(sentences []types.Sentence) []byte {
	var buf bytes.Buffer
	for i, s := range sentences {
		if i > 0 {
			buf.WriteByte('\n')
		}
		buf.WriteString(strconv.Itoa(i + 1))
		buf.WriteByte('\n')
		buf.WriteString(formatSRTTime(toMillis(s.Start)))
		buf.WriteString(" --> ")
		buf.WriteString(formatSRTTime(toMillis(s.End)))
		buf.WriteByte('\n')
		buf.WriteString(norm.NFC.String(s.Text))
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// RenderVTT emits a WEBVTT document.
func RenderVTT(sentences []types.Sentence) []byte {
	var buf bytes.Buffer
	buf.WriteString("WEBVTT\n")
	for _, s := range sentences {
		buf.WriteByte('\n')
		buf.WriteString(formatVTTTime(toMillis(s.Start)))
		buf.WriteString(" --> ")
		buf.WriteString(formatVTTTime(toMillis(s.End)))
		buf.WriteByte('\n')
		buf.WriteString(norm.NFC.String(s.Text))
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// RenderTXT emits one sentence per line without timing.
func RenderTXT(sentences []types.Sentence) []byte {
	var buf bytes.Buffer
	for _, s := range sentences {
		buf.WriteString(norm.NFC.String(s.Text))
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// jsonDocument is the canonical JSON export shape.
type jsonDocument struct {
	Language  string           `json:"language,omitempty"`
	Sentences []types.Sentence `json:"sentences"`
}

// RenderJSON emits the canonical sentence form as indented JSON.
func RenderJSON(sentences []types.Sentence, lang string) ([]byte, error) {
	doc := jsonDocument{Language: CanonicalLanguage(lang), Sentences: sentences}
	if doc.Sentences == nil {
		doc.Sentences = []types.Sentence{}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, types.E(types.KindInternal, "subtitle.render_json", err)
	}
	return append(data, '\n'), nil
}

// ParseSRT reads an SRT document back into canonical sentences. Block
// numbers are ignored; timings survive bit-identically because both
// directions go through milliseconds.
func ParseSRT(data []byte) ([]types.Sentence, error) {
	sentences := []types.Sentence{}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		inBlock   bool
		haveTime  bool
		start     int64
		end       int64
		textLines []string
		lineNo    int
	)

	flush := func() error {
		if !inBlock {
			return nil
		}
		if !haveTime {
			return types.Ef(types.KindValidation, "subtitle.parse_srt", "block without timing near line %d", lineNo)
		}
		sentences = append(sentences, types.Sentence{
			Text:  norm.NFC.String(strings.Join(textLines, "\n")),
			Start: fromMillis(start),
			End:   fromMillis(end),
		})
		inBlock, haveTime, textLines = false, false, nil
		return nil
	}

	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if lineNo == 1 {
			line = strings.TrimPrefix(line, "\uFEFF")
		}

		if strings.TrimSpace(line) == "" {
			if err := flush(); err != nil {
				return nil, err
			}
			continue
		}

		if !inBlock {
			// Block number line; tolerate files without numbers.
			inBlock = true
			if _, err := strconv.Atoi(strings.TrimSpace(line)); err == nil {
				continue
			}
		}

		if !haveTime {
			from, to, ok := splitTimeLine(line)
			if !ok {
				return nil, types.Ef(types.KindValidation, "subtitle.parse_srt", "expected timing at line %d: %q", lineNo, line)
			}
			var err error
			if start, err = parseSRTTime(from); err != nil {
				return nil, err
			}
			if end, err = parseSRTTime(to); err != nil {
				return nil, err
			}
			haveTime = true
			continue
		}

		textLines = append(textLines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, types.E(types.KindIO, "subtitle.parse_srt", err)
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return sentences, nil
}

func splitTimeLine(line string) (from, to string, ok bool) {
	parts := strings.Split(line, "-->")
	if len(parts) != 2 {
		return "", "", false
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]), true
}

// Validate checks the splitter invariants over a sentence list: sorted
// by start, non-overlapping, non-empty text.
func Validate(sentences []types.Sentence) error {
	for i, s := range sentences {
		if s.Text == "" {
			return types.Ef(types.KindValidation, "subtitle.validate", "sentence %d is empty", i)
		}
		if s.End < s.Start {
			return types.Ef(types.KindValidation, "subtitle.validate", "sentence %d ends before it starts", i)
		}
		if i > 0 && s.Start < sentences[i-1].End {
			return fmt.Errorf("subtitle.validate: sentence %d overlaps its predecessor", i)
		}
	}
	return nil
}
