// Package stats 提供对计时样本的稳健统计 (裁剪均值、样本标准差、中位数)
package stats

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

const (
	// OutlierFraction 排序后两端各丢弃的比例
	OutlierFraction = 0.1
	// TransientFraction 每个采集窗口开头丢弃的比例 (状态切换带来的瞬态)
	TransientFraction = 0.1
)

// Summary 存储一组样本在裁剪后的统计特征
type Summary struct {
	Mean   float64 `json:"mean"`   // 裁剪均值
	Std    float64 `json:"std"`    // 样本标准差 (N-1)
	Median float64 `json:"median"` // pool[N/2]
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	N      int     `json:"n"` // 裁剪后剩余的样本数
}

// Empty reports whether the summary was computed from an empty pool.
func (s Summary) Empty() bool {
	return s.N == 0
}

// Robust 计算裁剪后的统计量
// 1. 复制并排序 (不修改输入)
// 2. 两端各去掉 floor(10%) 的离群值
// 3. 在剩余样本上计算均值、标准差、中位数
// 空输入返回零值 Summary (N == 0)，调用方不能把它当成有效分布
func Robust(samples []float64) Summary {
	pool := TrimOutliers(samples)
	if len(pool) == 0 {
		return Summary{}
	}

	s := Summary{
		Mean:   stat.Mean(pool, nil),
		Median: pool[len(pool)/2],
		Min:    pool[0],
		Max:    pool[len(pool)-1],
		N:      len(pool),
	}
	// 只有一个样本时标准差没有定义，记为 0
	if len(pool) > 1 {
		s.Std = stat.StdDev(pool, nil)
	}
	return s
}

// TrimOutliers 返回排序后去掉两端 floor(OutlierFraction*n) 个样本的新切片
func TrimOutliers(samples []float64) []float64 {
	if len(samples) == 0 {
		return nil
	}
	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)

	k := int(float64(len(sorted)) * OutlierFraction)
	return sorted[k : len(sorted)-k]
}

// TrimTransient 丢弃窗口开头 floor(frac*n) 个样本
// 返回的是输入的子切片
func TrimTransient(samples []float64, frac float64) []float64 {
	k := int(float64(len(samples)) * frac)
	return samples[k:]
}
