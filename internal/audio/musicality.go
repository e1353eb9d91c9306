// SPDX-License-Identifier: MIT

package audio

import (
	"math"
	"math/cmplx"
)

// Frame analysis parameters. 1024 samples at 16 kHz is a 64 ms frame,
// long enough for stable spectral estimates and short enough to track
// speech dynamics.
const (
	frameSize = 1024
	frameHop  = 512

	// silenceRMS marks frames that carry no usable signal. Silent
	// frames still count: speech pauses are exactly what distinguishes
	// it from continuous music.
	silenceRMS = 1e-3

	// flatTonal is the spectral-flatness boundary below which a frame
	// counts as tonal (harmonic content dominates).
	flatTonal = 0.3
)

// Features are the per-clip spectral aggregates feeding the
// musicality score.
type Features struct {
	// Frames is the number of analysis frames.
	Frames int

	// VoicedFrames is the number of frames above the silence floor.
	VoicedFrames int

	// TonalRatio is the fraction of voiced frames with low spectral flatness.
	TonalRatio float64

	// ZCRStd is the standard deviation of the per-frame zero-crossing rate.
	ZCRStd float64

	// CentroidRelStd is the relative standard deviation of the
	// spectral centroid over voiced frames.
	CentroidRelStd float64
}

// MusicalityScore folds the features into one score in [0, 1]. Tonal,
// temporally stable signals (music) score high; pausing, spectrally
// restless signals (clean speech) score low.
//
// The weights favor tonality: harmonic background is what separation
// removes, so it dominates the decision.
func (f Features) MusicalityScore() float64 {
	if f.VoicedFrames == 0 {
		return 0
	}

	zcrStability := 1 - clamp(f.ZCRStd/0.15)
	centroidStability := 1 - clamp(f.CentroidRelStd/0.5)

	score := 0.5*f.TonalRatio + 0.25*centroidStability + 0.25*zcrStability
	return clamp(score)
}

// Analyze computes the spectral features of a clip on CPU.
func Analyze(clip *Clip) Features {
	var f Features
	if len(clip.Samples) < frameSize {
		return f
	}

	var (
		zcrs      []float64
		centroids []float64
		tonal     int
	)

	window := hann(frameSize)
	spectrum := make([]complex128, frameSize)

	for off := 0; off+frameSize <= len(clip.Samples); off += frameHop {
		frame := clip.Samples[off : off+frameSize]
		f.Frames++

		rms := RMS(frame)
		zcrs = append(zcrs, zeroCrossingRate(frame))

		if rms < silenceRMS {
			// Silent frames contribute a zero centroid so that
			// pausing audio reads as spectrally unstable.
			centroids = append(centroids, 0)
			continue
		}
		f.VoicedFrames++

		for i, s := range frame {
			spectrum[i] = complex(s*window[i], 0)
		}
		fft(spectrum)

		mags := magnitudes(spectrum[:frameSize/2])
		centroids = append(centroids, spectralCentroid(mags, clip.SampleRate))
		if spectralFlatness(mags) < flatTonal {
			tonal++
		}
	}

	if f.VoicedFrames > 0 {
		f.TonalRatio = float64(tonal) / float64(f.VoicedFrames)
	}
	f.ZCRStd = stddev(zcrs)

	mean, sd := meanStddev(centroids)
	if mean > 0 {
		f.CentroidRelStd = sd / mean
	}
	return f
}

// zeroCrossingRate counts sign changes per sample.
func zeroCrossingRate(frame []float64) float64 {
	if len(frame) < 2 {
		return 0
	}
	crossings := 0
	for i := 1; i < len(frame); i++ {
		if (frame[i-1] >= 0) != (frame[i] >= 0) {
			crossings++
		}
	}
	return float64(crossings) / float64(len(frame)-1)
}

// spectralCentroid is the magnitude-weighted mean frequency in Hz.
func spectralCentroid(mags []float64, sampleRate int) float64 {
	var weighted, total float64
	binWidth := float64(sampleRate) / float64(2*len(mags))
	for i, m := range mags {
		weighted += float64(i) * binWidth * m
		total += m
	}
	if total == 0 {
		return 0
	}
	return weighted / total
}

// spectralFlatness is the geometric over arithmetic mean of the power
// spectrum; near 1 for noise, near 0 for pure tones.
func spectralFlatness(mags []float64) float64 {
	var logSum, sum float64
	n := 0
	for _, m := range mags {
		p := m * m
		if p < 1e-12 {
			p = 1e-12
		}
		logSum += math.Log(p)
		sum += p
		n++
	}
	if n == 0 || sum == 0 {
		return 1
	}
	geo := math.Exp(logSum / float64(n))
	arith := sum / float64(n)
	return geo / arith
}

func magnitudes(spectrum []complex128) []float64 {
	out := make([]float64, len(spectrum))
	for i, c := range spectrum {
		out[i] = cmplx.Abs(c)
	}
	return out
}

func hann(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
	}
	return w
}

// fft is an in-place iterative radix-2 Cooley-Tukey transform.
// len(x) must be a power of two.
func fft(x []complex128) {
	n := len(x)
	if n&(n-1) != 0 {
		panic("audio: fft length must be a power of two")
	}

	// Bit-reversal permutation.
	for i, j := 1, 0; i < n; i++ {
		bit := n >> 1
		for ; j&bit != 0; bit >>= 1 {
			j ^= bit
		}
		j ^= bit
		if i < j {
			x[i], x[j] = x[j], x[i]
		}
	}

	for length := 2; length <= n; length <<= 1 {
		angle := -2 * math.Pi / float64(length)
		wl := cmplx.Rect(1, angle)
		for start := 0; start < n; start += length {
			w := complex(1, 0)
			for k := 0; k < length/2; k++ {
				u := x[start+k]
				v := x[start+k+length/2] * w
				x[start+k] = u + v
				x[start+k+length/2] = u - v
				w *= wl
			}
		}
	}
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func stddev(xs []float64) float64 {
	_, sd := meanStddev(xs)
	return sd
}

func meanStddev(xs []float64) (mean, sd float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	var varsum float64
	for _, x := range xs {
		d := x - mean
		varsum += d * d
	}
	return mean, math.Sqrt(varsum / float64(len(xs)))
}
