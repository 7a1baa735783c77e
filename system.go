package sidechan

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"sidechan/calib"
	"sidechan/filters"
	"sidechan/load"
	"sidechan/scan"
	"sidechan/stats"
	"sidechan/types"
)

// RunContext 是一次运行的上下文，替代全局状态
type RunContext struct {
	ID      string
	Config  *Config
	Log     *logrus.Entry
	Started time.Time
}

func newRunContext(cfg *Config, log *logrus.Entry) *RunContext {
	id := uuid.NewString()
	fields := logrus.Fields{"run": id[:8]}
	if cfg.Name != "" {
		fields["name"] = cfg.Name
	}
	return &RunContext{
		ID:      id,
		Config:  cfg,
		Log:     log.WithFields(fields),
		Started: time.Now(),
	}
}

// Result 一次运行的结果
type Result struct {
	RunID           string            `json:"runId"`
	ClassAMean      float64           `json:"classAMean"`
	ClassBMean      float64           `json:"classBMean"`
	Ratio           float64           `json:"ratio"`
	QualityTier     stats.QualityTier `json:"qualityTier"`
	AccuracyPercent float64           `json:"accuracyPercent"`
	ElapsedSeconds  float64           `json:"elapsedSeconds"`
	CPUPercent      float64           `json:"cpuPercent,omitempty"` // 负载发生器运行期间的 CPU 利用率

	Calibration *calib.Result `json:"calibration"`
	Scan        *scan.Result  `json:"scan,omitempty"` // 位图不进 JSON，单独导出
}

type activeRun struct {
	cancel context.CancelFunc
	scan   *scan.Controller
}

// Runner 管理运行的生命周期，同一时刻只允许一个运行
type Runner struct {
	// Channels 根据配置创建采样端，测试时可替换
	Channels ChannelFactory
	// Pause RunSeries 两次运行之间的间隔
	Pause time.Duration

	log *logrus.Entry

	mu     sync.Mutex
	active *activeRun
}

// NewRunner 创建运行控制器
func NewRunner(log *logrus.Entry) *Runner {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Runner{
		Channels: OpenChannel,
		log:      log,
	}
}

func (r *Runner) begin(cancel context.CancelFunc) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active != nil {
		return false
	}
	r.active = &activeRun{cancel: cancel}
	return true
}

func (r *Runner) end() {
	r.mu.Lock()
	r.active = nil
	r.mu.Unlock()
}

func (r *Runner) setScan(c *scan.Controller) {
	r.mu.Lock()
	if r.active != nil {
		r.active.scan = c
	}
	r.mu.Unlock()
}

// Cancel 取消当前运行
// 扫描阶段只设置取消标记 (当前坐标做完再停)，其他阶段直接取消 context
func (r *Runner) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil {
		return
	}
	if r.active.scan != nil {
		r.active.scan.Cancel()
		return
	}
	r.active.cancel()
}

// Busy 报告是否有运行在进行中
func (r *Runner) Busy() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active != nil
}

// QuickRun 在默认配置上应用 opts 后运行
func (r *Runner) QuickRun(ctx context.Context, opts ...Option) (*Result, error) {
	cfg := DefaultConfig()
	for _, o := range opts {
		o(cfg)
	}
	return r.Run(ctx, cfg)
}

// Run 执行一次完整运行: 负载 -> 信道 -> 校准 -> 扫描
//
// 取消时返回 types.ErrCancelled，整轮超时返回 types.ErrAcquisitionTimeout，扫描阶段两者都会同时返回部分结果。
func (r *Runner) Run(ctx context.Context, cfg *Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if !r.begin(cancel) {
		return nil, types.ErrBusy
	}
	defer r.end()

	rc := newRunContext(cfg.Clone(), r.log)
	rc.Log.WithFields(logrus.Fields{
		"source":      cfg.Channel.Source,
		"window":      cfg.Acquisition.Window,
		"repetitions": cfg.Acquisition.Repetitions,
	}).Info("run started")

	res, err := r.execute(ctx, rc)
	if res != nil {
		res.ElapsedSeconds = time.Since(rc.Started).Seconds()
	}
	if err != nil {
		rc.Log.WithError(err).Warn("run ended with error")
	} else {
		rc.Log.WithField("elapsed", time.Since(rc.Started).Round(time.Millisecond)).Info("run finished")
	}
	return res, err
}

func (r *Runner) execute(ctx context.Context, rc *RunContext) (*Result, error) {
	cfg := rc.Config

	// 负载发生器只有这一个释放点
	gen, err := load.Acquire(ctx, cfg.Load, rc.Log)
	if err != nil {
		return nil, fmt.Errorf("load generator: %w", err)
	}
	defer gen.Release()

	ch, err := r.Channels(ctx, rc)
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	defer func() {
		if cerr := ch.Close(); cerr != nil {
			rc.Log.WithError(cerr).Warn("close channel")
		}
	}()

	// 在校准期间采样 CPU 利用率，确认负载确实生效
	utilDone := make(chan struct{})
	if cfg.Load.Enabled {
		go func() {
			defer close(utilDone)
			if _, err := gen.Sample(ctx, time.Second); err != nil {
				rc.Log.WithError(err).Debug("cpu utilization unavailable")
			}
		}()
	} else {
		close(utilDone)
	}

	c, err := calib.New(cfg.calibConfig(), rc.Log)
	if err != nil {
		return nil, err
	}
	cctx, ccancel := context.WithTimeout(ctx, cfg.Acquisition.RoundTimeout.D())
	cal, err := c.Calibrate(cctx, ch)
	ccancel()
	<-utilDone
	if err != nil {
		return nil, roundError(ctx, err, "calibration")
	}

	res := &Result{
		RunID:       rc.ID,
		ClassAMean:  cal.A.Mean,
		ClassBMean:  cal.B.Mean,
		Ratio:       cal.Ratio,
		QualityTier: cal.Tier,
		CPUPercent:  gen.Utilization(),
		Calibration: cal,
	}
	if cfg.Scan.CalibrateOnly {
		return res, nil
	}

	tb, err := filters.ParseTieBreak(cfg.Classifier.TieBreak)
	if err != nil {
		return res, fmt.Errorf("classifier: %w", err)
	}
	clf, err := filters.NewDualThreshold(cal.A, cal.B, cfg.Classifier.Low, cfg.Classifier.High, tb)
	if err != nil {
		return res, err
	}

	opts := cfg.scanOptions()
	if cfg.Scan.Record != "" {
		rec, err := scan.NewCsvFileRecorder(cfg.Scan.Record)
		if err != nil {
			return res, fmt.Errorf("open recorder: %w", err)
		}
		opts.Recorder = rec
	}
	opts.OnProgress = func(p scan.Progress) {
		if p.X == cfg.Scan.Width-1 {
			rc.Log.WithFields(logrus.Fields{
				"row":      p.Y,
				"progress": fmt.Sprintf("%d/%d", p.Processed, p.Total),
				"accuracy": fmt.Sprintf("%.1f%%", p.Accuracy),
				"eta":      p.ETA.Round(time.Second),
			}).Info("scan progress")
		}
	}

	ctrl := scan.New(opts, ch, ch, clf, rc.Log)
	r.setScan(ctrl)

	sctx, scancel := context.WithTimeout(ctx, cfg.Acquisition.RoundTimeout.D())
	defer scancel()
	sres, err := ctrl.Run(sctx)
	res.Scan = sres
	if sres != nil {
		res.AccuracyPercent = sres.Accuracy
	}
	if err != nil {
		return res, roundError(ctx, err, "scan")
	}
	return res, nil
}

// roundError 把 context 错误映射为运行的错误类型
func roundError(parent context.Context, err error, stage string) error {
	switch {
	case errors.Is(err, types.ErrCancelled):
		return err
	case parent.Err() != nil:
		return fmt.Errorf("%s: %w", stage, types.ErrCancelled)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w: round timeout", stage, types.ErrAcquisitionTimeout)
	default:
		return fmt.Errorf("%s: %w", stage, err)
	}
}

// RunSeries 依次执行多个配置
// 单个运行失败只记录错误，继续下一个；父 context 取消时提前结束
func (r *Runner) RunSeries(ctx context.Context, cfgs []*Config) []RunRecord {
	records := make([]RunRecord, 0, len(cfgs))
	for i, cfg := range cfgs {
		if ctx.Err() != nil {
			r.log.WithField("remaining", len(cfgs)-i).Warn("series cancelled")
			break
		}
		if i > 0 && r.Pause > 0 {
			t := time.NewTimer(r.Pause)
			select {
			case <-ctx.Done():
				t.Stop()
				continue
			case <-t.C:
			}
		}

		rec := RunRecord{RunNumber: i + 1, Config: cfg}
		res, err := r.Run(ctx, cfg)
		if err != nil {
			rec.Error = err.Error()
			r.log.WithFields(logrus.Fields{"runNumber": i + 1, "name": cfg.Name}).WithError(err).Warn("series entry failed")
		} else {
			rec.Result = res
		}
		records = append(records, rec)
	}
	return records
}
