package scan

import "sidechan/types"

// GroundTruth 给出坐标处的真实状态，用于统计准确率
type GroundTruth interface {
	// Expected 返回期望标签，ok 为 false 表示该坐标没有真值
	Expected(x, y int) (label types.Label, ok bool)
}

// Checkerboard 是边长为 Square 像素的棋盘格，(x/sq + y/sq) 为偶数的格子是 A
type Checkerboard struct {
	Square int
}

// Expected implements GroundTruth.
func (c Checkerboard) Expected(x, y int) (types.Label, bool) {
	sq := c.Square
	if sq <= 0 {
		sq = 1
	}
	if (x/sq+y/sq)%2 == 0 {
		return types.LabelA, true
	}
	return types.LabelB, true
}

// Label 与 Expected 相同，但不返回 ok，方便直接作为合成信道的真值函数
func (c Checkerboard) Label(x, y int) types.Label {
	l, _ := c.Expected(x, y)
	return l
}

// NoTruth 表示目标图案未知，不统计准确率
type NoTruth struct{}

// Expected implements GroundTruth.
func (NoTruth) Expected(int, int) (types.Label, bool) {
	return types.LabelUnknown, false
}
