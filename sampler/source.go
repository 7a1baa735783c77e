// Package sampler 定义原始计时样本的来源
//
// 核心流程只通过 Source 和 Positioner 两个接口与采样端交互:
// 驱动目标进入某个状态 / 位置，然后在一个时间窗口内收集计时样本。
// 采样端运行在独立的 goroutine 中，只通过消息交换数据。
package sampler

import (
	"context"
	"errors"
	"time"

	"sidechan/types"
)

// Source 是校准和扫描所需的采样端
type Source interface {
	// SetState 把目标切换到参考状态 A 或 B
	SetState(ctx context.Context, label types.Label) error
	// Collect 在 d 时间内收集样本，窗口到期后无论收到多少都返回
	// 零个样本是合法结果，不返回错误
	Collect(ctx context.Context, d time.Duration) ([]float64, error)
}

// Positioner 把目标移动到扫描坐标
type Positioner interface {
	MoveTo(ctx context.Context, x, y int) error
}

// Meter 只负责测量，不关心目标处于什么状态
type Meter interface {
	Measure(ctx context.Context, d time.Duration) ([]float64, error)
	Close() error
}

// Driver 负责驱动目标 (切换状态、滚动到坐标)
type Driver interface {
	SetState(ctx context.Context, label types.Label) error
	MoveTo(ctx context.Context, x, y int) error
	Close() error
}

// Channel 把 Driver 和 Meter 组合成一个完整的 Source + Positioner
type Channel struct {
	Driver Driver
	Meter  Meter
}

// NewChannel 创建组合采样端
func NewChannel(d Driver, m Meter) *Channel {
	return &Channel{Driver: d, Meter: m}
}

// SetState implements Source.
func (c *Channel) SetState(ctx context.Context, label types.Label) error {
	return c.Driver.SetState(ctx, label)
}

// Collect implements Source.
func (c *Channel) Collect(ctx context.Context, d time.Duration) ([]float64, error) {
	return c.Meter.Measure(ctx, d)
}

// MoveTo implements Positioner.
func (c *Channel) MoveTo(ctx context.Context, x, y int) error {
	return c.Driver.MoveTo(ctx, x, y)
}

// Close 关闭 Meter 和 Driver
func (c *Channel) Close() error {
	return errors.Join(c.Meter.Close(), c.Driver.Close())
}

// Sleep 等待 d，或在 ctx 结束时提前返回
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
