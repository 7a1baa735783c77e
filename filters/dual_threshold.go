package filters

import (
	"fmt"
	"strings"

	"sidechan/stats"
	"sidechan/types"
)

/*
双阈值分类器

和施密特触发器一样使用一高一低两个阈值:
  - 均值和中位数都越过高阈值 -> B
  - 均值和中位数都低于低阈值 -> A
  - 其余落在两阈值之间的模糊区间，由 TieBreak 策略决定

两个统计量必须同时同意，单个统计量被噪声推过阈值不会造成误判。
阈值是严格比较: 恰好等于阈值不算越过。
*/

// TieBreak 决定模糊区间内的处理方式
type TieBreak int

const (
	// TieBreakUnknown 模糊区间一律返回 Unknown
	TieBreakUnknown TieBreak = iota
	// TieBreakMedian 用中位数和两类中位数的中点比较，给出中等置信度的结果
	TieBreakMedian
)

func (tb TieBreak) String() string {
	switch tb {
	case TieBreakMedian:
		return "median"
	default:
		return "unknown"
	}
}

// ParseTieBreak 解析配置中的策略名
func ParseTieBreak(s string) (TieBreak, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "unknown":
		return TieBreakUnknown, nil
	case "median":
		return TieBreakMedian, nil
	}
	return TieBreakUnknown, fmt.Errorf("unknown tie-break policy %q (want unknown or median)", s)
}

// Decision 是一次分类的结果
type Decision struct {
	Label      types.Label      `json:"label"`
	Confidence types.Confidence `json:"confidence"`
	Mean       float64          `json:"mean"`
	Median     float64          `json:"median"`
	N          int              `json:"n"` // 裁剪后参与统计的样本数
}

// Thresholds 是由参考分布推导出的四个阈值
type Thresholds struct {
	HighMean   float64 `json:"highMean"`
	HighMedian float64 `json:"highMedian"`
	LowMean    float64 `json:"lowMean"`
	LowMedian  float64 `json:"lowMedian"`
	MidMedian  float64 `json:"midMedian"`
}

// DualThreshold 使用两类参考分布对未知样本分类
type DualThreshold struct {
	a, b      stats.Summary
	low, high float64
	tieBreak  TieBreak

	th   Thresholds
	sign float64 // B 相对 A 的方向，约定为 +1
}

// NewDualThreshold 创建分类器
// low/high 必须满足 0 <= low < high <= 1
func NewDualThreshold(a, b stats.Summary, low, high float64, tb TieBreak) (*DualThreshold, error) {
	if !(low >= 0 && low < high && high <= 1) {
		return nil, fmt.Errorf("low=%v high=%v: %w", low, high, types.ErrInvalidThresholds)
	}
	if a.Empty() || b.Empty() {
		return nil, fmt.Errorf("reference distribution missing: %w", types.ErrNotCalibrated)
	}
	if a.Mean == b.Mean {
		return nil, fmt.Errorf("class means equal (%v): %w", a.Mean, types.ErrDegenerateStats)
	}

	meanRange := b.Mean - a.Mean
	medianRange := b.Median - a.Median
	sign := 1.0
	if meanRange < 0 {
		sign = -1.0
	}

	return &DualThreshold{
		a:        a,
		b:        b,
		low:      low,
		high:     high,
		tieBreak: tb,
		sign:     sign,
		th: Thresholds{
			HighMean:   a.Mean + meanRange*high,
			HighMedian: a.Median + medianRange*high,
			LowMean:    a.Mean + meanRange*low,
			LowMedian:  a.Median + medianRange*low,
			MidMedian:  a.Median + medianRange*0.5,
		},
	}, nil
}

// Thresholds 返回当前阈值 (用于日志和结果导出)
func (d *DualThreshold) Thresholds() Thresholds {
	return d.th
}

// References 返回两类参考分布
func (d *DualThreshold) References() (a, b stats.Summary) {
	return d.a, d.b
}

// Classify 对一个采集窗口分类
// 与校准相同: 先丢弃开头的瞬态样本，再做离群值裁剪
func (d *DualThreshold) Classify(samples []float64) Decision {
	trimmed := stats.TrimTransient(samples, stats.TransientFraction)
	return d.Decide(stats.Robust(trimmed))
}

// Decide 根据已经算好的统计量分类
func (d *DualThreshold) Decide(s stats.Summary) Decision {
	dec := Decision{
		Label:      types.LabelUnknown,
		Confidence: types.ConfidenceNone,
		Mean:       s.Mean,
		Median:     s.Median,
		N:          s.N,
	}
	if s.Empty() {
		return dec
	}

	if d.above(s.Mean, d.th.HighMean) && d.above(s.Median, d.th.HighMedian) {
		dec.Label = types.LabelB
		dec.Confidence = types.ConfidenceHigh
		return dec
	}
	if d.below(s.Mean, d.th.LowMean) && d.below(s.Median, d.th.LowMedian) {
		dec.Label = types.LabelA
		dec.Confidence = types.ConfidenceHigh
		return dec
	}

	// 模糊区间
	if d.tieBreak == TieBreakMedian {
		dec.Confidence = types.ConfidenceMedium
		if d.below(s.Median, d.th.MidMedian) {
			dec.Label = types.LabelA
		} else {
			dec.Label = types.LabelB
		}
	}
	return dec
}

func (d *DualThreshold) above(x, threshold float64) bool {
	return d.sign*(x-threshold) > 0
}

func (d *DualThreshold) below(x, threshold float64) bool {
	return d.sign*(x-threshold) < 0
}
