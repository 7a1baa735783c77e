// Package calib 通过交替驱动两个参考状态来建立计时分布
package calib

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"sidechan/diag"
	"sidechan/sampler"
	"sidechan/stats"
	"sidechan/types"
)

// DiscardFraction 开头丢弃的轮数比例 (系统还没进入稳态)
const DiscardFraction = 0.1

// Config 校准参数
type Config struct {
	Repetitions  int           // 总轮数，偶数轮驱动 A，奇数轮驱动 B
	Window       time.Duration // 每轮采集窗口
	Settle       time.Duration // 切换状态后的等待时间
	Warmup       time.Duration // 校准前的预热采集，0 表示跳过
	CollectGrace time.Duration // 单次采集允许超出窗口的时间
	Retries      int           // 单次采集超时后的重试次数
}

// Validate 检查参数范围
func (c Config) Validate() error {
	if c.Repetitions < 2 {
		return fmt.Errorf("repetitions must be >= 2, got %d", c.Repetitions)
	}
	if c.Window <= 0 {
		return fmt.Errorf("window must be > 0, got %s", c.Window)
	}
	if c.Settle < 0 || c.Warmup < 0 || c.CollectGrace < 0 {
		return fmt.Errorf("settle, warmup and grace must be >= 0")
	}
	if c.Retries < 0 {
		return fmt.Errorf("retries must be >= 0, got %d", c.Retries)
	}
	return nil
}

// Result 一次校准的结果，创建后不再修改
type Result struct {
	A     stats.Summary     `json:"classA"`
	B     stats.Summary     `json:"classB"`
	Ratio float64           `json:"ratio"` // B.Mean / A.Mean
	Tier  stats.QualityTier `json:"qualityTier"`

	// Separation 均值差与两类合并标准差之比，两类都没有离散度时为 0
	Separation float64 `json:"separation"`

	PeriodicityA diag.Periodicity `json:"periodicityA"`
	PeriodicityB diag.Periodicity `json:"periodicityB"`

	Rounds    int           `json:"rounds"`    // 参与统计的轮数
	Discarded int           `json:"discarded"` // 开头丢弃的轮数
	Elapsed   time.Duration `json:"elapsed"`
}

// Calibrator 执行交替校准
type Calibrator struct {
	cfg Config
	log *logrus.Entry
}

// New 创建校准器
func New(cfg Config, log *logrus.Entry) (*Calibrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Calibrator{cfg: cfg, log: log.WithField("component", "calib")}, nil
}

// Calibrate 交替采集 A/B 并计算两类的稳健统计
//
// 同一时刻只驱动一个状态。每轮: 切换状态 -> 等待 Settle -> 采集一个窗口。
// 前 10% 的轮次整体丢弃，其余每个窗口去掉开头 10% 的瞬态后并入对应类别。
func (c *Calibrator) Calibrate(ctx context.Context, src sampler.Source) (*Result, error) {
	start := time.Now()

	if c.cfg.Warmup > 0 {
		warm, err := c.collect(ctx, src, c.cfg.Warmup)
		if err != nil {
			return nil, fmt.Errorf("warmup: %w", err)
		}
		c.log.WithFields(logrus.Fields{
			"samples": len(warm),
			"mean":    fmt.Sprintf("%.2f", stats.Robust(warm).Mean),
		}).Info("warmup done")
	}

	discard := int(math.Floor(float64(c.cfg.Repetitions) * DiscardFraction))
	var poolA, poolB []float64

	for rep := 0; rep < c.cfg.Repetitions; rep++ {
		label := types.LabelA
		if rep%2 == 1 {
			label = types.LabelB
		}
		log := c.log.WithFields(logrus.Fields{"rep": rep, "label": label})

		if err := src.SetState(ctx, label); err != nil {
			return nil, fmt.Errorf("rep %d: set state %s: %w", rep, label, err)
		}
		if err := sampler.Sleep(ctx, c.cfg.Settle); err != nil {
			return nil, err
		}
		window, err := c.collect(ctx, src, c.cfg.Window)
		if err != nil {
			return nil, fmt.Errorf("rep %d: %w", rep, err)
		}

		if rep < discard {
			log.WithField("samples", len(window)).Debug("discarded warm round")
			continue
		}
		kept := stats.TrimTransient(window, stats.TransientFraction)
		if label == types.LabelA {
			poolA = append(poolA, kept...)
		} else {
			poolB = append(poolB, kept...)
		}
		log.WithField("samples", len(kept)).Debug("round collected")
	}

	a := stats.Robust(poolA)
	b := stats.Robust(poolB)
	if a.Empty() || b.Empty() {
		return nil, fmt.Errorf("%w: class A %d samples, class B %d samples", types.ErrInsufficientData, a.N, b.N)
	}
	if a.Mean == b.Mean || a.Mean == 0 || math.IsNaN(a.Mean) || math.IsNaN(b.Mean) {
		return nil, fmt.Errorf("%w: A=%.4f B=%.4f", types.ErrDegenerateStats, a.Mean, b.Mean)
	}

	kept := c.cfg.Repetitions - discard
	roundsA := (c.cfg.Repetitions+1)/2 - (discard+1)/2
	roundsB := c.cfg.Repetitions/2 - discard/2
	res := &Result{
		A:            a,
		B:            b,
		Ratio:        b.Mean / a.Mean,
		Separation:   separation(a, b),
		PeriodicityA: diag.Analyze(poolA, c.rate(len(poolA), roundsA)),
		PeriodicityB: diag.Analyze(poolB, c.rate(len(poolB), roundsB)),
		Rounds:       kept,
		Discarded:    discard,
		Elapsed:      time.Since(start),
	}
	res.Tier = stats.Tier(res.Ratio)

	c.log.WithFields(logrus.Fields{
		"a_mean": fmt.Sprintf("%.2f", a.Mean),
		"b_mean": fmt.Sprintf("%.2f", b.Mean),
		"ratio":  fmt.Sprintf("%.3f", res.Ratio),
		"tier":   res.Tier,
	}).Info("calibration complete")
	return res, nil
}

func (c *Calibrator) collect(ctx context.Context, src sampler.Source, d time.Duration) ([]float64, error) {
	return sampler.CollectWindow(ctx, src, d, c.cfg.CollectGrace, c.cfg.Retries)
}

// rate 估算类别样本流的采样率 (每秒样本数)
func (c *Calibrator) rate(n, rounds int) float64 {
	if rounds <= 0 {
		return 0
	}
	secs := c.cfg.Window.Seconds() * float64(rounds) * (1 - stats.TransientFraction)
	if secs <= 0 {
		return 0
	}
	return float64(n) / secs
}

func separation(a, b stats.Summary) float64 {
	pooled := math.Sqrt((a.Std*a.Std + b.Std*b.Std) / 2)
	if pooled == 0 {
		return 0
	}
	return math.Abs(b.Mean-a.Mean) / pooled
}
