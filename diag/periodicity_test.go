package diag

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

// 生成带直流偏置的正弦计时序列
func generateTrace(freq, rate float64, n int, offset float64) []float64 {
	data := make([]float64, n)
	for i := range data {
		data[i] = offset + 5*math.Sin(2*math.Pi*freq*float64(i)/rate)
	}
	return data
}

func TestAnalyze_FindsDominantFrequency(t *testing.T) {
	// 1000 samples/s，50Hz 的干扰
	trace := generateTrace(50, 1000, 1000, 120)
	p := Analyze(trace, 1000)

	assert.True(t, p.Valid)
	assert.InDelta(t, 50.0, p.Frequency, 1.0)
	assert.Greater(t, p.PowerShare, 0.4)
}

func TestAnalyze_NoiseHasLowShare(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	trace := make([]float64, 2048)
	for i := range trace {
		trace[i] = 100 + rng.NormFloat64()
	}
	p := Analyze(trace, 1000)

	assert.True(t, p.Valid)
	assert.Less(t, p.PowerShare, 0.05)
}

func TestAnalyze_TooShort(t *testing.T) {
	assert.False(t, Analyze(make([]float64, MinSamples-1), 1000).Valid)
	assert.False(t, Analyze(generateTrace(50, 1000, 64, 0), 0).Valid)
}

func TestAnalyze_Constant(t *testing.T) {
	trace := make([]float64, 64)
	for i := range trace {
		trace[i] = 7
	}
	assert.False(t, Analyze(trace, 1000).Valid)
}
