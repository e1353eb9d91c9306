// SPDX-License-Identifier: MIT

package audio

import "github.com/subwave-io/subwave/internal/types"

// Peaks is the precomputed waveform view for the editor. Each bucket
// carries the min and max sample of its window so the client can draw
// the filled waveform without touching the PCM.
type Peaks struct {
	SampleRate int          `json:"sample_rate"`
	Duration   float64      `json:"duration"`
	Buckets    [][2]float64 `json:"peaks"`
}

// ComputePeaks reduces a clip to n min/max buckets.
func ComputePeaks(clip *Clip, n int) (*Peaks, error) {
	if n <= 0 {
		return nil, types.Ef(types.KindValidation, "audio.peaks", "bucket count %d must be positive", n)
	}
	if len(clip.Samples) == 0 {
		return &Peaks{SampleRate: clip.SampleRate, Buckets: [][2]float64{}}, nil
	}
	if n > len(clip.Samples) {
		n = len(clip.Samples)
	}

	buckets := make([][2]float64, n)
	total := len(clip.Samples)
	for i := 0; i < n; i++ {
		lo := i * total / n
		hi := (i + 1) * total / n
		mn, mx := clip.Samples[lo], clip.Samples[lo]
		for _, s := range clip.Samples[lo:hi] {
			if s < mn {
				mn = s
			}
			if s > mx {
				mx = s
			}
		}
		buckets[i] = [2]float64{mn, mx}
	}

	return &Peaks{
		SampleRate: clip.SampleRate,
		Duration:   clip.Duration(),
		Buckets:    buckets,
	}, nil
}

// Resample reduces existing peaks to a coarser bucket count. Asking
// for more buckets than stored returns the stored peaks unchanged.
func (p *Peaks) Resample(n int) *Peaks {
	if n <= 0 || n >= len(p.Buckets) {
		return p
	}
	out := make([][2]float64, n)
	total := len(p.Buckets)
	for i := 0; i < n; i++ {
		lo := i * total / n
		hi := (i + 1) * total / n
		mn, mx := p.Buckets[lo][0], p.Buckets[lo][1]
		for _, b := range p.Buckets[lo:hi] {
			if b[0] < mn {
				mn = b[0]
			}
			if b[1] > mx {
				mx = b[1]
			}
		}
		out[i] = [2]float64{mn, mx}
	}
	return &Peaks{SampleRate: p.SampleRate, Duration: p.Duration, Buckets: out}
}
