// Package scan 逐坐标扫描目标并重建位图
package scan

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"sidechan/filters"
	"sidechan/sampler"
	"sidechan/stats"
	"sidechan/types"
)

// State 扫描控制器的状态
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateCompleted
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Classifier 把一个窗口的样本判定为 A / B / 未知
type Classifier interface {
	Classify(samples []float64) filters.Decision
}

// referenced 由能提供校准参考均值的分类器实现，用于漂移检测
type referenced interface {
	References() (a, b stats.Summary)
}

// Progress 每处理完一个坐标回调一次
type Progress struct {
	X, Y      int
	Decision  filters.Decision
	Processed int
	Total     int
	Correct   int
	Incorrect int
	Unknown   int
	Accuracy  float64 // 百分比，没有真值时为 0
	Elapsed   time.Duration
	ETA       time.Duration
}

// Options 扫描参数
type Options struct {
	Width, Height int
	PixelWindow   time.Duration // 每个坐标的采集窗口
	PixelSettle   time.Duration // 移动后的等待时间
	CollectGrace  time.Duration // 单次采集允许超出窗口的时间
	Retries       int           // 空窗口重读 / 超时重试次数

	Truth      GroundTruth
	Recorder   Recorder
	OnProgress func(Progress)

	// DriftWindow 漂移检测使用的最近像素数，0 表示关闭
	DriftWindow int
}

// Validate 检查参数范围
func (o Options) Validate() error {
	if o.Width <= 0 || o.Height <= 0 {
		return fmt.Errorf("scan size must be positive, got %dx%d", o.Width, o.Height)
	}
	if o.PixelWindow <= 0 {
		return fmt.Errorf("pixel window must be > 0, got %s", o.PixelWindow)
	}
	if o.PixelSettle < 0 || o.CollectGrace < 0 || o.Retries < 0 || o.DriftWindow < 0 {
		return fmt.Errorf("settle, grace, retries and drift window must be >= 0")
	}
	return nil
}

// Result 扫描结果 (取消时为部分结果)
type Result struct {
	Width     int           `json:"width"`
	Height    int           `json:"height"`
	Bitmap    *image.Gray   `json:"-"`
	Processed int           `json:"processed"`
	Correct   int           `json:"correct"`
	Incorrect int           `json:"incorrect"`
	Unknown   int           `json:"unknown"`
	Accuracy  float64       `json:"accuracyPercent"`
	Elapsed   time.Duration `json:"elapsed"`
	Drift     []string      `json:"driftWarnings,omitempty"`
}

// Controller 执行一次扫描
type Controller struct {
	opts Options
	src  sampler.Source
	pos  sampler.Positioner
	clf  Classifier
	log  *logrus.Entry

	state     atomic.Int32
	cancelled atomic.Bool

	mu     sync.Mutex
	result *Result
}

// New 创建扫描控制器
func New(opts Options, src sampler.Source, pos sampler.Positioner, clf Classifier, log *logrus.Entry) *Controller {
	if opts.Truth == nil {
		opts.Truth = NoTruth{}
	}
	if opts.Recorder == nil {
		opts.Recorder = NopRecorder{}
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Controller{
		opts: opts,
		src:  src,
		pos:  pos,
		clf:  clf,
		log:  log.WithField("component", "scan"),
	}
}

// State 返回当前状态
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Cancel 请求停止扫描
// 正在处理的坐标会完成，之后不再发起新的采集
func (c *Controller) Cancel() {
	c.cancelled.Store(true)
}

// Snapshot 返回当前的部分结果副本 (位图共享)
func (c *Controller) Snapshot() Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.result == nil {
		return Result{}
	}
	r := *c.result
	r.Drift = append([]string(nil), c.result.Drift...)
	return r
}

// Run 按行优先顺序扫描所有坐标
//
// 取消时返回部分结果和 types.ErrCancelled；ctx 超时返回 types.ErrAcquisitionTimeout，
// 与采样端出错一样状态为 Failed。
func (c *Controller) Run(ctx context.Context) (*Result, error) {
	if c.clf == nil {
		return nil, types.ErrNotCalibrated
	}
	if err := c.opts.Validate(); err != nil {
		return nil, err
	}
	if !c.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return nil, fmt.Errorf("scan controller is %s", c.State())
	}

	w, h := c.opts.Width, c.opts.Height
	res := &Result{Width: w, Height: h, Bitmap: NewBitmap(w, h)}
	c.mu.Lock()
	c.result = res
	c.mu.Unlock()

	var drift *filters.History
	if c.opts.DriftWindow > 0 {
		drift = filters.NewHistory(c.opts.DriftWindow)
	}

	total := w * h
	start := time.Now()
	c.log.WithFields(logrus.Fields{"width": w, "height": h}).Info("scan started")

	finish := func(s State, err error) (*Result, error) {
		c.mu.Lock()
		res.Elapsed = time.Since(start)
		c.mu.Unlock()
		if cerr := c.opts.Recorder.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close recorder: %w", cerr)
			s = StateFailed
		}
		c.state.Store(int32(s))
		c.log.WithFields(logrus.Fields{
			"state":     s,
			"processed": res.Processed,
			"accuracy":  fmt.Sprintf("%.1f%%", res.Accuracy),
		}).Info("scan finished")
		return res, err
	}

	// 只有取消标记或父 context 被取消才算 Cancelled，超时算 Failed
	interrupted := func() (*Result, error) {
		if !c.cancelled.Load() && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return finish(StateFailed, fmt.Errorf("%w: scan deadline reached after %d pixels", types.ErrAcquisitionTimeout, res.Processed))
		}
		return finish(StateCancelled, types.ErrCancelled)
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if c.cancelled.Load() || ctx.Err() != nil {
				return interrupted()
			}

			d, err := c.pixel(ctx, x, y)
			if err != nil {
				if ctx.Err() != nil || c.cancelled.Load() {
					return interrupted()
				}
				return finish(StateFailed, fmt.Errorf("pixel (%d,%d): %w", x, y, err))
			}

			truth, hasTruth := c.opts.Truth.Expected(x, y)
			c.mu.Lock()
			setPixel(res.Bitmap, x, y, d.Label)
			res.Processed++
			switch {
			case d.Label == types.LabelUnknown:
				res.Unknown++
			case !hasTruth:
			case d.Label == truth:
				res.Correct++
			default:
				res.Incorrect++
			}
			if hasTruth {
				res.Accuracy = 100 * float64(res.Correct) / float64(res.Processed)
			}
			p := Progress{
				X: x, Y: y, Decision: d,
				Processed: res.Processed, Total: total,
				Correct: res.Correct, Incorrect: res.Incorrect, Unknown: res.Unknown,
				Accuracy: res.Accuracy,
				Elapsed:  time.Since(start),
			}
			c.mu.Unlock()
			p.ETA = time.Duration(float64(p.Elapsed) / float64(p.Processed) * float64(total-p.Processed))

			if drift != nil && d.N > 0 {
				if msg := c.checkDrift(drift, d.Mean, x, y); msg != "" {
					c.mu.Lock()
					res.Drift = append(res.Drift, msg)
					c.mu.Unlock()
				}
			}

			if !hasTruth {
				truth = types.LabelUnknown
			}
			if err := c.opts.Recorder.Record(Pixel{X: x, Y: y, Decision: d, Truth: truth}); err != nil {
				c.log.WithError(err).Warn("record pixel failed")
			}
			if c.opts.OnProgress != nil {
				c.opts.OnProgress(p)
			}
		}
		c.log.WithFields(logrus.Fields{
			"row":      y,
			"accuracy": fmt.Sprintf("%.1f%%", res.Accuracy),
		}).Debug("row done")
	}
	return finish(StateCompleted, nil)
}

// pixel 处理单个坐标: 移动 -> 等待 -> 采集 (空窗口重读) -> 分类
func (c *Controller) pixel(ctx context.Context, x, y int) (filters.Decision, error) {
	if err := c.pos.MoveTo(ctx, x, y); err != nil {
		return filters.Decision{}, fmt.Errorf("move: %w", err)
	}
	if err := sampler.Sleep(ctx, c.opts.PixelSettle); err != nil {
		return filters.Decision{}, err
	}

	var samples []float64
	for attempt := 0; attempt <= c.opts.Retries; attempt++ {
		var err error
		samples, err = sampler.CollectWindow(ctx, c.src, c.opts.PixelWindow, c.opts.CollectGrace, c.opts.Retries)
		if err != nil {
			return filters.Decision{}, err
		}
		if len(samples) > 0 {
			break
		}
		c.log.WithFields(logrus.Fields{"x": x, "y": y, "attempt": attempt}).Debug("empty window, re-reading")
	}
	return c.clf.Classify(samples), nil
}

func (c *Controller) checkDrift(h *filters.History, mean float64, x, y int) string {
	ref, ok := c.clf.(referenced)
	if !ok {
		return ""
	}
	h.Push(mean)
	a, b := ref.References()
	if !h.Drifted(a.Mean, b.Mean) {
		return ""
	}
	h.Reset()
	msg := fmt.Sprintf("baseline drift near (%d,%d)", x, y)
	c.log.WithFields(logrus.Fields{"x": x, "y": y}).Warn("baseline drift, consider recalibrating")
	return msg
}

