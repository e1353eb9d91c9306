// SPDX-License-Identifier: MIT

package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"github.com/subwave-io/subwave/internal/metrics"
	"github.com/subwave-io/subwave/internal/types"
)

// ProbeResult is the simplified ffprobe view the control plane needs.
type ProbeResult struct {
	Duration   float64 `json:"duration"`
	Format     string  `json:"format"`
	SizeBytes  int64   `json:"size_bytes"`
	HasVideo   bool    `json:"has_video"`
	HasAudio   bool    `json:"has_audio"`
	VideoCodec string  `json:"video_codec,omitempty"`
	AudioCodec string  `json:"audio_codec,omitempty"`
	Width      int     `json:"width,omitempty"`
	Height     int     `json:"height,omitempty"`
}

// Prober runs ffprobe against local media files.
type Prober struct {
	bin string
	run func(ctx context.Context, bin string, args ...string) ([]byte, error)
}

// NewProber creates a Prober for the given ffprobe binary.
func NewProber(bin string) *Prober {
	return &Prober{
		bin: bin,
		run: func(ctx context.Context, bin string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, bin, args...).Output() // #nosec G204 -- bin from config
		},
	}
}

// Probe analyzes a file. The result feeds upload validation, the media
// info endpoint and proxy planning.
func (p *Prober) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		"-i", path,
	}

	start := time.Now()
	out, err := p.run(ctx, p.bin, args...)
	if err != nil {
		metrics.ObserveToolRun("ffprobe", "error", time.Since(start))
		return nil, types.E(types.KindExternalTool, "ffprobe.probe", fmt.Errorf("%s: %w", path, err))
	}
	metrics.ObserveToolRun("ffprobe", "ok", time.Since(start))

	return parseProbeOutput(out)
}

// ffprobe JSON shapes, trimmed to consumed fields.
type probeJSON struct {
	Format struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
		Size       string `json:"size"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
}

func parseProbeOutput(out []byte) (*ProbeResult, error) {
	var raw probeJSON
	if err := json.Unmarshal(out, &raw); err != nil {
		return nil, types.E(types.KindExternalTool, "ffprobe.parse", err)
	}

	res := &ProbeResult{Format: raw.Format.FormatName}
	if raw.Format.Duration != "" {
		if v, err := strconv.ParseFloat(raw.Format.Duration, 64); err == nil {
			res.Duration = v
		}
	}
	if raw.Format.Size != "" {
		if v, err := strconv.ParseInt(raw.Format.Size, 10, 64); err == nil {
			res.SizeBytes = v
		}
	}

	for _, s := range raw.Streams {
		switch s.CodecType {
		case "video":
			// mjpeg streams are cover art, not video.
			if s.CodecName == "mjpeg" || s.CodecName == "png" {
				continue
			}
			if !res.HasVideo {
				res.HasVideo = true
				res.VideoCodec = s.CodecName
				res.Width = s.Width
				res.Height = s.Height
			}
		case "audio":
			if !res.HasAudio {
				res.HasAudio = true
				res.AudioCodec = s.CodecName
			}
		}
	}

	if !res.HasAudio {
		return res, types.Ef(types.KindValidation, "ffprobe.parse", "no audio stream")
	}
	return res, nil
}
