// SPDX-License-Identifier: MIT

package ffmpeg

import (
	"fmt"
	"strconv"
)

// ExtractAudioArgs builds the audio extraction command: 16 kHz mono
// 16-bit PCM, the only input format the recognizers and the spectral
// judge accept.
func ExtractAudioArgs(input, output string) []string {
	return []string{
		"-i", input,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", "16000",
		"-ac", "1",
		"-y", output,
	}
}

// CutSegmentArgs builds the chunk-cut command for one VAD segment.
// Cutting from the already-extracted wav keeps this a cheap stream copy
// window rather than a re-decode of the source container.
func CutSegmentArgs(audioWAV string, startMS, durationMS int64, output string) []string {
	return []string{
		"-i", audioWAV,
		"-ss", formatSeconds(startMS),
		"-t", formatSeconds(durationMS),
		"-acodec", "pcm_s16le",
		"-ar", "16000",
		"-ac", "1",
		"-y", output,
	}
}

// ProxyArgs builds a H.264+AAC MP4 proxy at the given height. The
// +faststart flag moves the moov atom ahead so playback starts before
// the download completes.
func ProxyArgs(input string, height int, output string) []string {
	return []string{
		"-i", input,
		"-vf", fmt.Sprintf("scale=-2:%d", height),
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", crfForHeight(height),
		"-c:a", "aac",
		"-b:a", "128k",
		"-movflags", "+faststart",
		"-y", output,
	}
}

func crfForHeight(height int) string {
	if height >= 720 {
		return "21"
	}
	return "26"
}

// ThumbnailSpriteArgs builds the sprite-grid command: count frames
// sampled evenly over duration seconds, tiled cols wide.
func ThumbnailSpriteArgs(input string, duration float64, count, cols, tileWidth int, output string) []string {
	if count < 1 {
		count = 1
	}
	interval := duration / float64(count)
	if interval <= 0 {
		interval = 1
	}
	rows := (count + cols - 1) / cols
	return []string{
		"-i", input,
		"-vf", fmt.Sprintf("fps=1/%s,scale=%d:-1,tile=%dx%d",
			formatFloat(interval), tileWidth, cols, rows),
		"-frames:v", "1",
		"-q:v", "3",
		"-y", output,
	}
}

// SilenceDetectArgs builds the silence-scan command over the extracted
// audio. Results land on stderr; the -f null sink discards samples.
func SilenceDetectArgs(audioWAV string, noiseDB, minSilenceSec float64) []string {
	return []string{
		"-i", audioWAV,
		"-af", fmt.Sprintf("silencedetect=noise=%sdB:d=%s",
			formatFloat(noiseDB), formatFloat(minSilenceSec)),
		"-f", "null", "-",
	}
}

func formatSeconds(ms int64) string {
	return formatFloat(float64(ms) / 1000)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
