package sidechan

import (
	"context"
	"fmt"

	"sidechan/sampler"
	"sidechan/scan"
	"sidechan/target"
	"sidechan/types"
)

// Channel 是一次运行使用的完整信道: 能切换状态、移动坐标、采集样本
type Channel interface {
	sampler.Source
	sampler.Positioner
	Close() error
}

// ChannelFactory 根据运行配置打开信道
type ChannelFactory func(ctx context.Context, rc *RunContext) (Channel, error)

// OpenChannel 按 cfg.Channel.Source 创建信道
func OpenChannel(ctx context.Context, rc *RunContext) (Channel, error) {
	cfg := rc.Config
	switch cfg.Channel.Source {
	case "synthetic":
		sc := sampler.SyntheticConfig{
			MeanA: cfg.Channel.MeanA,
			MeanB: cfg.Channel.MeanB,
			Std:   cfg.Channel.Std,
			Rate:  cfg.Channel.Rate,
			Seed:  cfg.Channel.Seed,
		}
		if cfg.Scan.Checkerboard > 0 {
			sc.Truth = scan.Checkerboard{Square: cfg.Scan.Checkerboard}.Label
		}
		return sampler.NewSynthetic(sc), nil

	case "probe", "audio":
		driver, err := openDriver(ctx, rc)
		if err != nil {
			return nil, err
		}
		var meter sampler.Meter
		if cfg.Channel.Source == "probe" {
			meter = sampler.NewProbe(sampler.ProbeConfig{
				BufferBytes: cfg.Channel.BufferBytes,
				CPU:         cfg.Channel.CPU,
			}, rc.Log)
		} else {
			meter, err = sampler.NewAudioJitter(sampler.AudioJitterConfig{
				SampleRate: cfg.Channel.SampleRate,
				Device:     cfg.Channel.AudioDevice,
			}, rc.Log)
			if err != nil {
				driver.Close()
				return nil, err
			}
		}
		return sampler.NewChannel(driver, meter), nil
	}
	return nil, fmt.Errorf("unknown source %q", cfg.Channel.Source)
}

// openDriver 打开串口目标并下发渲染参数，没有配置串口时返回 Nop
func openDriver(ctx context.Context, rc *RunContext) (sampler.Driver, error) {
	cfg := rc.Config
	if cfg.Channel.Serial == "" {
		rc.Log.Warn("no target configured, states will not be driven")
		return target.Nop{}, nil
	}
	s := target.NewSerial(cfg.Channel.Serial, cfg.Channel.BaudRate, rc.Log)
	if err := s.Open(); err != nil {
		return nil, err
	}
	if err := s.Tune(ctx, cfg.Channel.DivSize, cfg.Channel.Layers); err != nil {
		s.Close()
		return nil, fmt.Errorf("tune target: %w", err)
	}
	// 从 A 开始，和校准的第一轮一致
	if err := s.SetState(ctx, types.LabelA); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}
