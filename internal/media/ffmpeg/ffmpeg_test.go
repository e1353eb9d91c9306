// SPDX-License-Identifier: MIT

package ffmpeg

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProgress(t *testing.T) {
	input := strings.Join([]string{
		"frame=100",
		"out_time_us=4000000",
		"total_size=123456",
		"speed=2.5x",
		"progress=continue",
		"frame=200",
		"out_time_us=8000000",
		"total_size=234567",
		"speed=2.4x",
		"progress=end",
	}, "\n")

	ch := make(chan Progress, 8)
	parseProgress(strings.NewReader(input), ch)
	close(ch)

	var got []Progress
	for p := range ch {
		got = append(got, p)
	}
	require.Len(t, got, 2)
	assert.Equal(t, int64(4000000), got[0].OutTimeUS)
	assert.Equal(t, "2.5x", got[0].Speed)
	assert.Equal(t, 200, got[1].Frame)
	assert.True(t, got[1].hasAdvanced(got[0]))
	assert.False(t, got[0].hasAdvanced(got[1]))
}

func TestParseSilences(t *testing.T) {
	stderr := `
[silencedetect @ 0x5555] silence_start: 1.5
[silencedetect @ 0x5555] silence_end: 3.25 | silence_duration: 1.75
frame=  100 fps=0.0 q=-0.0 size=N/A
[silencedetect @ 0x5555] silence_start: 10.001
[silencedetect @ 0x5555] silence_end: 12 | silence_duration: 1.999
`
	got := ParseSilences(stderr)
	require.Len(t, got, 2)
	assert.Equal(t, 1.5, got[0].Start)
	assert.Equal(t, 3.25, got[0].End)
	assert.Equal(t, 10.001, got[1].Start)
	assert.Equal(t, 12.0, got[1].End)
}

func TestParseSilences_TrailingOpenInterval(t *testing.T) {
	got := ParseSilences("[silencedetect @ 0x1] silence_start: 42.5\n")
	require.Len(t, got, 1)
	assert.Equal(t, 42.5, got[0].Start)
	assert.Equal(t, -1.0, got[0].End)
}

func TestExtractAudioArgs(t *testing.T) {
	args := ExtractAudioArgs("/in/video.mkv", "/out/audio.wav")
	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "-ar 16000")
	assert.Contains(t, joined, "-ac 1")
	assert.Contains(t, joined, "pcm_s16le")
	assert.Equal(t, "/out/audio.wav", args[len(args)-1])
}

func TestCutSegmentArgs(t *testing.T) {
	args := CutSegmentArgs("/a.wav", 1500, 15000, "/seg/0.wav")
	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "-ss 1.5")
	assert.Contains(t, joined, "-t 15")
}

func TestProxyArgs(t *testing.T) {
	low := strings.Join(ProxyArgs("/in.mp4", 360, "/out360.mp4"), " ")
	hq := strings.Join(ProxyArgs("/in.mp4", 720, "/out720.mp4"), " ")

	assert.Contains(t, low, "scale=-2:360")
	assert.Contains(t, hq, "scale=-2:720")
	assert.Contains(t, hq, "+faststart")
	// The high tier encodes at better quality.
	assert.Contains(t, hq, "-crf 21")
	assert.Contains(t, low, "-crf 26")
}

func TestSilenceDetectArgs(t *testing.T) {
	args := SilenceDetectArgs("/a.wav", -30, 0.35)
	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "silencedetect=noise=-30dB:d=0.35")
	assert.Contains(t, joined, "-f null")
}

func TestParseProbeOutput(t *testing.T) {
	raw := `{
	  "format": {"format_name": "matroska,webm", "duration": "632.448000", "size": "104857600"},
	  "streams": [
	    {"codec_type": "video", "codec_name": "h264", "width": 1920, "height": 1080},
	    {"codec_type": "audio", "codec_name": "aac"}
	  ]
	}`
	res, err := parseProbeOutput([]byte(raw))
	require.NoError(t, err)

	assert.InDelta(t, 632.448, res.Duration, 1e-9)
	assert.Equal(t, int64(104857600), res.SizeBytes)
	assert.True(t, res.HasVideo)
	assert.True(t, res.HasAudio)
	assert.Equal(t, "h264", res.VideoCodec)
	assert.Equal(t, 1920, res.Width)
}

func TestParseProbeOutput_AudioOnlyWithCoverArt(t *testing.T) {
	raw := `{
	  "format": {"format_name": "mp3", "duration": "180.0"},
	  "streams": [
	    {"codec_type": "video", "codec_name": "mjpeg", "width": 500, "height": 500},
	    {"codec_type": "audio", "codec_name": "mp3"}
	  ]
	}`
	res, err := parseProbeOutput([]byte(raw))
	require.NoError(t, err)

	assert.False(t, res.HasVideo, "cover art is not video")
	assert.True(t, res.HasAudio)
}

func TestParseProbeOutput_NoAudio(t *testing.T) {
	raw := `{"format": {"format_name": "mp4"}, "streams": [{"codec_type": "video", "codec_name": "h264"}]}`
	_, err := parseProbeOutput([]byte(raw))
	assert.Error(t, err)
}

func TestThumbnailSpriteArgs(t *testing.T) {
	args := ThumbnailSpriteArgs("/in.mp4", 100, 25, 5, 160, "/thumbs.jpg")
	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "tile=5x5")
	assert.Contains(t, joined, "scale=160:-1")
	assert.Contains(t, joined, "fps=1/4")
}
