package audio

// PeakNormalize scales samples so the peak amplitude reaches 1.0.
// Silent input is returned unchanged.
func PeakNormalize(samples []float32) []float32 {
	var peak float32
	for _, s := range samples {
		if s > peak {
			peak = s
		} else if -s > peak {
			peak = -s
		}
	}
	if peak == 0 {
		return samples
	}

	out := make([]float32, len(samples))
	scale := 1.0 / peak
	for i, s := range samples {
		out[i] = s * scale
	}
	return out
}

// Resample converts samples from srcRate to dstRate using linear
// interpolation. Rates must be positive; equal rates return the input.
func Resample(samples []float32, srcRate, dstRate int) []float32 {
	if srcRate == dstRate || srcRate <= 0 || dstRate <= 0 || len(samples) == 0 {
		return samples
	}

	ratio := float64(srcRate) / float64(dstRate)
	outLen := int(float64(len(samples)) / ratio)
	if outLen < 1 {
		outLen = 1
	}

	out := make([]float32, outLen)
	for i := range out {
		pos := float64(i) * ratio
		j := int(pos)
		if j >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := float32(pos - float64(j))
		out[i] = samples[j]*(1-frac) + samples[j+1]*frac
	}
	return out
}

// FadeIn applies a linear fade-in ramp over the given duration in milliseconds.
func FadeIn(samples []float32, sampleRate int, ms float64) []float32 {
	n := rampSamples(sampleRate, ms, len(samples))
	if n == 0 {
		return samples
	}

	out := append([]float32(nil), samples...)
	for i := 0; i < n; i++ {
		out[i] *= float32(i) / float32(n)
	}
	return out
}

// FadeOut applies a linear fade-out ramp over the given duration in milliseconds.
func FadeOut(samples []float32, sampleRate int, ms float64) []float32 {
	n := rampSamples(sampleRate, ms, len(samples))
	if n == 0 {
		return samples
	}

	out := append([]float32(nil), samples...)
	start := len(out) - n
	for i := start; i < len(out); i++ {
		out[i] *= float32(len(out)-i-1) / float32(n)
	}
	return out
}

// CrossfadeInto blends the head of next over the tail of dst using a linear
// ramp of n samples and appends the remainder of next. A linear ramp keeps
// identical overlapping content bit-stable, so a seam between chunks decoded
// from the same tokens reconstructs the continuous waveform.
func CrossfadeInto(dst, next []float32, n int) []float32 {
	if n > len(dst) {
		n = len(dst)
	}
	if n > len(next) {
		n = len(next)
	}
	if n <= 0 {
		return append(dst, next...)
	}

	base := len(dst) - n
	for i := 0; i < n; i++ {
		t := float32(i+1) / float32(n+1)
		dst[base+i] = dst[base+i]*(1-t) + next[i]*t
	}
	return append(dst, next[n:]...)
}

func rampSamples(sampleRate int, ms float64, limit int) int {
	if ms <= 0 || sampleRate <= 0 {
		return 0
	}
	n := int(ms * float64(sampleRate) / 1000.0)
	if n > limit {
		n = limit
	}
	return n
}
