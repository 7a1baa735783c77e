// Package load 在测量期间制造 CPU 负载，放大渲染耗时差异
package load

import (
	"context"
	"fmt"
	"math/big"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/cpu"
	"github.com/sirupsen/logrus"
)

// Config 负载发生器参数
type Config struct {
	Enabled   bool `yaml:"enabled" json:"enabled"`
	Workers   int  `yaml:"workers" json:"workers"`     // 工作 goroutine 数，0 表示 NumCPU
	Intensity int  `yaml:"intensity" json:"intensity"` // 大整数运算的十进制位数
}

// DefaultConfig 返回默认负载参数
func DefaultConfig() Config {
	return Config{Enabled: false, Workers: 4, Intensity: 100000}
}

// Validate 检查参数范围
func (c Config) Validate() error {
	if c.Workers < 0 {
		return fmt.Errorf("load.workers must be >= 0, got %d", c.Workers)
	}
	if c.Enabled && c.Intensity < 1 {
		return fmt.Errorf("load.intensity must be >= 1, got %d", c.Intensity)
	}
	return nil
}

// Generator 是一个已经启动的负载发生器
//
// 工作者和测量端之间没有任何同步，Release 之后全部退出。
type Generator struct {
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
	log    *logrus.Entry

	mu          sync.Mutex
	iterations  uint64
	utilization float64
}

// Acquire 启动负载发生器，调用方必须在同一个作用域里 defer Release
//
// 当 cfg.Enabled 为 false 时返回一个空发生器，Release 同样安全。
func Acquire(ctx context.Context, cfg Config, log *logrus.Entry) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	gctx, cancel := context.WithCancel(ctx)
	g := &Generator{cancel: cancel, log: log.WithField("component", "load")}
	if !cfg.Enabled {
		return g, nil
	}

	workers := cfg.Workers
	if workers == 0 {
		workers = runtime.NumCPU()
	}
	operand, ok := new(big.Int).SetString(strings.Repeat("7", cfg.Intensity), 10)
	if !ok {
		cancel()
		return nil, fmt.Errorf("bad load operand")
	}

	for i := 0; i < workers; i++ {
		g.wg.Add(1)
		go g.spin(gctx, operand)
	}
	g.log.WithFields(logrus.Fields{"workers": workers, "intensity": cfg.Intensity}).Info("load generator started")
	return g, nil
}

func (g *Generator) spin(ctx context.Context, operand *big.Int) {
	defer g.wg.Done()
	x := new(big.Int).Set(operand)
	var local uint64
	for {
		select {
		case <-ctx.Done():
			g.mu.Lock()
			g.iterations += local
			g.mu.Unlock()
			return
		default:
		}
		x.Mul(x, operand)
		x.Sub(x, operand)
		x.Quo(x, operand)
		local++
	}
}

// Sample 在 interval 内测量系统 CPU 利用率 (百分比)，结果也会保存在 Utilization 中
func (g *Generator) Sample(ctx context.Context, interval time.Duration) (float64, error) {
	pct, err := cpu.PercentWithContext(ctx, interval, false)
	if err != nil {
		return 0, fmt.Errorf("cpu percent: %w", err)
	}
	if len(pct) == 0 {
		return 0, fmt.Errorf("cpu percent: no data")
	}
	g.mu.Lock()
	g.utilization = pct[0]
	g.mu.Unlock()
	g.log.WithField("cpu_percent", fmt.Sprintf("%.1f", pct[0])).Debug("load utilization")
	return pct[0], nil
}

// Utilization 返回最近一次 Sample 的结果
func (g *Generator) Utilization() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.utilization
}

// Iterations 返回已退出的工作者完成的运算轮数
func (g *Generator) Iterations() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.iterations
}

// Release 停止所有工作者并等待其退出，可以重复调用
func (g *Generator) Release() {
	g.once.Do(func() {
		g.cancel()
		g.wg.Wait()
		g.log.Debug("load generator released")
	})
}
