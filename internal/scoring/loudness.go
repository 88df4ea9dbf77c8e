package scoring

import (
	"encoding/binary"
	"math"
	"sync"
)

const (
	loudnessGain = 5
	// loudnessSmoothing is the weight kept from the previous level.
	loudnessSmoothing = 0.85
)

// LoudnessLevel is the RMS of time-domain samples in [-1,1], scaled and
// clamped to [0,1].
func LoudnessLevel(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range samples {
		sum += s * s
	}
	rms := math.Sqrt(sum / float64(len(samples)))
	return math.Min(1, rms*loudnessGain)
}

// PCM16Samples converts little-endian signed 16-bit PCM into samples in
// [-1,1]. A trailing odd byte is ignored.
func PCM16Samples(chunk []byte) []float64 {
	samples := make([]float64, len(chunk)/2)
	for i := range samples {
		v := int16(binary.LittleEndian.Uint16(chunk[i*2:]))
		samples[i] = float64(v) / 32768
	}
	return samples
}

// LoudnessMeter smooths successive loudness readings with an exponential
// moving average. It is safe for concurrent use.
type LoudnessMeter struct {
	mu    sync.Mutex
	level float64
}

// Observe folds a batch of samples into the smoothed level and returns it.
func (m *LoudnessMeter) Observe(samples []float64) float64 {
	return m.ObserveLevel(LoudnessLevel(samples))
}

// ObservePCM16 is Observe for raw s16le audio.
func (m *LoudnessMeter) ObservePCM16(chunk []byte) float64 {
	return m.Observe(PCM16Samples(chunk))
}

// ObserveLevel folds an already computed level into the smoothed level.
func (m *LoudnessMeter) ObserveLevel(level float64) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.level = m.level*loudnessSmoothing + level*(1-loudnessSmoothing)
	return m.level
}

// Level returns the current smoothed level.
func (m *LoudnessMeter) Level() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.level
}

// Reset clears the smoothed level.
func (m *LoudnessMeter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.level = 0
}
