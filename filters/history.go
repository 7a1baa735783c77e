// Package filters 包含分类阈值与扫描过程中的信号追踪工具
package filters

import "sort"

// History 维护最近若干个像素的测量均值，用于发现基线漂移
type History struct {
	buffer []float64 // 环形缓冲区
	head   int       // 写入位置
	isFull bool      // 缓冲区是否已满
}

// NewHistory 创建实例，size 为保留的测量个数
func NewHistory(size int) *History {
	if size < 1 {
		size = 1
	}
	return &History{buffer: make([]float64, size)}
}

// Push 写入一个测量值
func (h *History) Push(value float64) {
	h.buffer[h.head] = value
	h.head = (h.head + 1) % len(h.buffer)
	if h.head == 0 {
		h.isFull = true
	}
}

// Len 返回当前保存的测量个数
func (h *History) Len() int {
	if h.isFull {
		return len(h.buffer)
	}
	return h.head
}

// Full reports whether the window has wrapped at least once.
func (h *History) Full() bool {
	return h.isFull
}

// Reset 清空缓冲区
func (h *History) Reset() {
	h.head = 0
	h.isFull = false
}

// Spread 返回窗口内的低位 (10%) 和高位 (95%) 分位值
// 没有数据时 ok == false
func (h *History) Spread() (floor, peak float64, ok bool) {
	n := h.Len()
	if n == 0 {
		return 0, 0, false
	}
	data := make([]float64, n)
	copy(data, h.buffer[:n])
	sort.Float64s(data)

	floor = data[int(float64(n)*0.10)]
	peak = data[int(float64(n)*0.95)]
	return floor, peak, true
}

// Drifted 判断最近的窗口是否整体偏离了校准范围
// 窗口的低位分位高于 B 之上半个量程，或者高位分位低于 A 之下半个量程，
// 说明整个信道的基线在扫描过程中发生了偏移，需要重新校准
func (h *History) Drifted(aMean, bMean float64) bool {
	floor, peak, ok := h.Spread()
	if !ok || !h.isFull {
		return false
	}
	lo, hi := aMean, bMean
	if lo > hi {
		lo, hi = hi, lo
	}
	margin := (hi - lo) * 0.5
	return floor > hi+margin || peak < lo-margin
}
