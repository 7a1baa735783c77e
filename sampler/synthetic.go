package sampler

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"sidechan/types"
)

// SyntheticConfig 合成信道参数
type SyntheticConfig struct {
	MeanA float64 // 状态 A 的计时均值
	MeanB float64 // 状态 B 的计时均值
	Std   float64 // 高斯噪声标准差
	Rate  float64 // 每秒产生的样本数 (样本数 = Rate * 窗口时长)
	Seed  int64

	// Truth 返回坐标处的真实状态，MoveTo 用它切换当前状态
	Truth func(x, y int) types.Label
	// Delay 每次 Collect 实际等待的时间，默认不等待
	Delay time.Duration
	// OnCollect 在每次 Collect 开始时调用，参数是累计次数 (测试用)
	OnCollect func(count int)
}

// Synthetic 是确定性的合成采样端，相同 Seed 产生相同的样本序列
type Synthetic struct {
	cfg SyntheticConfig

	mu       sync.Mutex
	rng      *rand.Rand
	state    types.Label
	collects int
}

// NewSynthetic 创建合成采样端
func NewSynthetic(cfg SyntheticConfig) *Synthetic {
	if cfg.Rate <= 0 {
		cfg.Rate = 1000
	}
	return &Synthetic{
		cfg:   cfg,
		rng:   rand.New(rand.NewSource(cfg.Seed)),
		state: types.LabelA,
	}
}

// SetState implements Source.
func (s *Synthetic) SetState(ctx context.Context, label types.Label) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = label
	return ctx.Err()
}

// MoveTo implements Positioner.
func (s *Synthetic) MoveTo(ctx context.Context, x, y int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg.Truth != nil {
		s.state = s.cfg.Truth(x, y)
	}
	return ctx.Err()
}

// Collect implements Source.
func (s *Synthetic) Collect(ctx context.Context, d time.Duration) ([]float64, error) {
	s.mu.Lock()
	s.collects++
	count := s.collects
	s.mu.Unlock()

	if s.cfg.OnCollect != nil {
		s.cfg.OnCollect(count)
	}
	if err := Sleep(ctx, s.cfg.Delay); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	mean := s.meanFor(s.state)
	n := int(s.cfg.Rate * d.Seconds())
	out := make([]float64, n)
	for i := range out {
		out[i] = mean + s.rng.NormFloat64()*s.cfg.Std
	}
	return out, nil
}

// Collects 返回累计的 Collect 调用次数
func (s *Synthetic) Collects() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collects
}

// Close 没有需要释放的资源
func (s *Synthetic) Close() error {
	return nil
}

func (s *Synthetic) meanFor(l types.Label) float64 {
	switch l {
	case types.LabelA:
		return s.cfg.MeanA
	case types.LabelB:
		return s.cfg.MeanB
	default:
		return (s.cfg.MeanA + s.cfg.MeanB) / 2
	}
}
