// SPDX-License-Identifier: MIT

// Package audio reads the extracted PCM audio and computes the two
// derived views the control plane needs: waveform peaks for the editor
// and spectral features for the BGM pre-judgment.
//
// The extractor always produces 16 kHz mono 16-bit PCM, so the decoder
// only supports that family of WAV files and rejects everything else.
package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/subwave-io/subwave/internal/types"
)

// Clip is decoded PCM audio. Samples are normalized to [-1, 1].
type Clip struct {
	SampleRate int
	Samples    []float64
}

// Duration returns the clip length in seconds.
func (c *Clip) Duration() float64 {
	if c.SampleRate == 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.SampleRate)
}

// ReadWAV decodes a PCM WAV file. Multi-channel input is downmixed by
// averaging; only 16-bit little-endian PCM is accepted.
func ReadWAV(path string) (*Clip, error) {
	f, err := os.Open(path) // #nosec G304 -- paths come from Root, not user input
	if err != nil {
		return nil, types.E(types.KindIO, "audio.read_wav", err)
	}
	defer f.Close() //nolint:errcheck

	return DecodeWAV(f)
}

// DecodeWAV decodes a PCM WAV stream.
func DecodeWAV(r io.Reader) (*Clip, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return nil, types.E(types.KindIO, "audio.decode", fmt.Errorf("read riff header: %w", err))
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return nil, types.Ef(types.KindIO, "audio.decode", "not a WAV file")
	}

	var (
		sampleRate int
		channels   int
		bitDepth   int
		haveFmt    bool
	)

	for {
		var chunk [8]byte
		if _, err := io.ReadFull(r, chunk[:]); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return nil, types.Ef(types.KindIO, "audio.decode", "missing data chunk")
			}
			return nil, types.E(types.KindIO, "audio.decode", err)
		}
		id := string(chunk[0:4])
		size := binary.LittleEndian.Uint32(chunk[4:8])

		switch id {
		case "fmt ":
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				return nil, types.E(types.KindIO, "audio.decode", err)
			}
			if len(body) < 16 {
				return nil, types.Ef(types.KindIO, "audio.decode", "short fmt chunk")
			}
			format := binary.LittleEndian.Uint16(body[0:2])
			channels = int(binary.LittleEndian.Uint16(body[2:4]))
			sampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
			bitDepth = int(binary.LittleEndian.Uint16(body[14:16]))
			if format != 1 {
				return nil, types.Ef(types.KindIO, "audio.decode", "unsupported WAV format %d, want PCM", format)
			}
			if bitDepth != 16 {
				return nil, types.Ef(types.KindIO, "audio.decode", "unsupported bit depth %d, want 16", bitDepth)
			}
			if channels < 1 {
				return nil, types.Ef(types.KindIO, "audio.decode", "no channels")
			}
			haveFmt = true

		case "data":
			if !haveFmt {
				return nil, types.Ef(types.KindIO, "audio.decode", "data chunk before fmt chunk")
			}
			return readData(r, int(size), sampleRate, channels)

		default:
			// Skip unknown chunks (LIST, fact, ...). Chunks are
			// word-aligned, so odd sizes carry one pad byte.
			skip := int64(size)
			if size%2 == 1 {
				skip++
			}
			if _, err := io.CopyN(io.Discard, r, skip); err != nil {
				return nil, types.E(types.KindIO, "audio.decode", err)
			}
		}
	}
}

func readData(r io.Reader, size, sampleRate, channels int) (*Clip, error) {
	raw := make([]byte, size)
	n, err := io.ReadFull(r, raw)
	if err != nil && err != io.ErrUnexpectedEOF {
		return nil, types.E(types.KindIO, "audio.decode", err)
	}
	raw = raw[:n-(n%(2*channels))]

	frames := len(raw) / (2 * channels)
	samples := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for ch := 0; ch < channels; ch++ {
			off := (i*channels + ch) * 2
			v := int16(binary.LittleEndian.Uint16(raw[off : off+2])) // #nosec G115 -- deliberate bit reinterpretation
			sum += float64(v) / 32768.0
		}
		samples[i] = sum / float64(channels)
	}
	return &Clip{SampleRate: sampleRate, Samples: samples}, nil
}

// RMS returns the root-mean-square level of a sample window.
func RMS(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(samples)))
}
