package melody

import "math"

const (
	// DefaultSilenceThresholdDB matches the trim threshold used when
	// re-aligning regenerated accompaniment with the original vocals.
	DefaultSilenceThresholdDB = -40.0

	silenceFrameSize = 2048
	silenceHopSize   = 512
)

// LeadingSilence measures the near-silent lead-in of a signal in seconds.
// A frame counts as silent while its RMS stays more than thresholdDB below
// the loudest frame. The measurement is advisory: any input it cannot
// analyze yields 0 rather than an error.
func LeadingSilence(samples []float64, sampleRate int, thresholdDB float64) float64 {
	if len(samples) == 0 || sampleRate <= 0 {
		return 0
	}
	if thresholdDB > 0 {
		thresholdDB = -thresholdDB
	}

	frameSize := silenceFrameSize
	if frameSize > len(samples) {
		frameSize = len(samples)
	}

	var rms []float64
	peak := 0.0
	for start := 0; start+frameSize <= len(samples); start += silenceHopSize {
		r := frameRMS(samples[start : start+frameSize])
		rms = append(rms, r)
		if r > peak {
			peak = r
		}
	}
	if len(rms) == 0 || peak == 0 {
		return 0
	}

	for i, r := range rms {
		if 20*math.Log10(r/peak) > thresholdDB {
			return float64(i*silenceHopSize) / float64(sampleRate)
		}
	}
	return 0
}
