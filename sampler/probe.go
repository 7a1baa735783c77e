package sampler

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ProbeConfig 缓存探测计时器参数
type ProbeConfig struct {
	BufferBytes int // 驱逐缓冲区大小 (字节)
	CPU         int // 绑定的 CPU 编号，<0 表示不绑定
}

// DefaultProbeConfig 返回默认探测参数 (8MB 缓冲区，不绑核)
func DefaultProbeConfig() ProbeConfig {
	return ProbeConfig{BufferBytes: 8 << 20, CPU: -1}
}

type probeRequest struct {
	seq uint64
	d   time.Duration
}

type probeReply struct {
	seq     uint64
	samples []float64
}

// Probe 在独立 goroutine 中反复遍历驱逐缓冲区，每次遍历耗时 (微秒) 为一个样本
//
// 测量端与调用方之间只有请求/应答消息，没有共享内存。
type Probe struct {
	reqs    chan probeRequest
	replies chan probeReply
	quit    chan struct{}
	done    chan struct{}

	mu   sync.Mutex
	seq  uint64
	once sync.Once
	log  *logrus.Entry
}

// NewProbe 启动测量 goroutine
func NewProbe(cfg ProbeConfig, log *logrus.Entry) *Probe {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if cfg.BufferBytes <= 0 {
		cfg.BufferBytes = DefaultProbeConfig().BufferBytes
	}
	p := &Probe{
		reqs:    make(chan probeRequest),
		replies: make(chan probeReply, 1),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
		log:     log.WithField("meter", "probe"),
	}
	go p.loop(cfg)
	return p
}

func (p *Probe) loop(cfg ProbeConfig) {
	defer close(p.done)

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if cfg.CPU >= 0 {
		if err := pinToCPU(cfg.CPU); err != nil {
			p.log.WithError(err).Warn("cpu pinning unavailable")
		} else {
			p.log.WithField("cpu", cfg.CPU).Debug("probe pinned")
		}
	}

	buf := newEvictionBuffer(cfg.BufferBytes)
	iterations := len(buf) / 64
	if iterations > 10000 {
		iterations = 10000
	}
	if iterations < 1 {
		iterations = 1
	}

	var sink int32
	for {
		select {
		case <-p.quit:
			return
		case req := <-p.reqs:
			var out []float64
			deadline := time.Now().Add(req.d)
			for time.Now().Before(deadline) {
				start := time.Now()
				sink += walk(buf, iterations)
				out = append(out, float64(time.Since(start).Nanoseconds())/1e3)
			}
			// 丢弃调用方已经放弃的旧应答
			select {
			case <-p.replies:
			default:
			}
			p.replies <- probeReply{seq: req.seq, samples: out}
		}
		_ = sink
	}
}

// Measure implements Meter.
func (p *Probe) Measure(ctx context.Context, d time.Duration) ([]float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	seq := p.seq

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.done:
		return nil, errors.New("probe closed")
	case p.reqs <- probeRequest{seq: seq, d: d}:
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-p.done:
			return nil, errors.New("probe closed")
		case r := <-p.replies:
			if r.seq != seq {
				continue
			}
			return r.samples, nil
		}
	}
}

// Close 停止测量 goroutine
func (p *Probe) Close() error {
	p.once.Do(func() {
		close(p.quit)
	})
	<-p.done
	return nil
}

// newEvictionBuffer 按乘法散列步长填充，打乱访问顺序以避开预取
func newEvictionBuffer(bytes int) []int32 {
	n := bytes / 4
	if n < 64 {
		n = 64
	}
	buf := make([]int32, n)
	for i := range buf {
		buf[i] = int32((uint64(i) * 2654435761) % uint64(n))
	}
	return buf
}

func walk(buf []int32, iterations int) int32 {
	var idx int32
	for i := 0; i < iterations; i++ {
		idx = buf[idx]
	}
	return idx
}
