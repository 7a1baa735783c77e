// Package diag 对原始计时序列做频谱诊断
// 负载线程、刷新率或中断会在计时序列里留下周期性成分，
// 这里找出最强的那个成分，帮助判断校准结果是否被干扰。
package diag

import (
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

// MinSamples 少于这个数量的序列不做分析
const MinSamples = 16

// Periodicity 描述序列中最强的周期成分
type Periodicity struct {
	Frequency  float64 `json:"frequency"`  // 主频 (Hz，以 sampleRate 为基准)
	Magnitude  float64 `json:"magnitude"`  // 主频幅度
	PowerShare float64 `json:"powerShare"` // 主频功率占总功率 (不含直流) 的比例
	Valid      bool    `json:"valid"`
}

// Analyze 计算 samples 的主频
// sampleRate: 每秒样本数，计时样本间隔不均匀时取 len/window 的近似值即可
func Analyze(samples []float64, sampleRate float64) Periodicity {
	n := len(samples)
	if n < MinSamples || sampleRate <= 0 {
		return Periodicity{}
	}

	// 1. 去直流并加窗
	mean := 0.0
	for _, v := range samples {
		mean += v
	}
	mean /= float64(n)

	win := window.Hann(n)
	input := make([]float64, n)
	for i, v := range samples {
		input[i] = (v - mean) * win[i]
	}

	// 2. FFT
	spectrum := fft.FFTReal(input)

	// 3. 粗略寻峰，跳过直流 (bin 0)
	half := n / 2
	maxMag := -1.0
	maxIndex := -1
	total := 0.0
	for i := 1; i <= half; i++ {
		m := cmplx.Abs(spectrum[i])
		total += m * m
		if m > maxMag {
			maxMag = m
			maxIndex = i
		}
	}
	if maxIndex <= 0 || total == 0 {
		return Periodicity{}
	}

	binRes := sampleRate / float64(n)

	// 4. 抛物线插值
	delta := 0.0
	if maxIndex < half {
		y1 := cmplx.Abs(spectrum[maxIndex-1])
		y2 := maxMag
		y3 := cmplx.Abs(spectrum[maxIndex+1])
		if denom := 2 * (2*y2 - y1 - y3); denom != 0 {
			delta = (y3 - y1) / denom
		}
	}

	return Periodicity{
		Frequency:  (float64(maxIndex) + delta) * binRes,
		Magnitude:  maxMag,
		PowerShare: maxMag * maxMag / total,
		Valid:      true,
	}
}
