package audio

import "math"

type SilenceMetrics struct {
	RMSdBFS  float64
	PeakdBFS float64
	Samples  int64
}

func Analyze(samples []float32) SilenceMetrics {
	if len(samples) == 0 {
		return SilenceMetrics{RMSdBFS: math.Inf(-1), PeakdBFS: math.Inf(-1)}
	}

	var peak, sumSquares float64
	for _, s := range samples {
		v := float64(s)
		if abs := math.Abs(v); abs > peak {
			peak = abs
		}
		sumSquares += v * v
	}

	rms := math.Sqrt(sumSquares / float64(len(samples)))
	return SilenceMetrics{
		RMSdBFS:  amplitudeToDBFS(rms),
		PeakdBFS: amplitudeToDBFS(peak),
		Samples:  int64(len(samples)),
	}
}

// IsSilent gates on RMS at thresholdDBFS and on peak at 6 dB above it, so a
// single click does not count as speech.
func (m SilenceMetrics) IsSilent(thresholdDBFS float64) bool {
	if m.Samples == 0 {
		return true
	}
	if math.IsInf(m.RMSdBFS, -1) && math.IsInf(m.PeakdBFS, -1) {
		return true
	}

	peakGate := thresholdDBFS + 6
	return m.RMSdBFS <= thresholdDBFS && m.PeakdBFS <= peakGate
}

func amplitudeToDBFS(amplitude float64) float64 {
	if amplitude <= 0 {
		return math.Inf(-1)
	}
	return 20.0 * math.Log10(amplitude)
}
