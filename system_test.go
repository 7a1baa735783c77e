package sidechan

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sidechan/sampler"
	"sidechan/scan"
	"sidechan/stats"
	"sidechan/types"
)

func fastOptions() []Option {
	return []Option{
		WithSynthetic(100, 150, 5, 11),
		WithWindow(50*time.Millisecond, 20),
		WithScan(8, 8, 2),
		Fast(),
		func(c *Config) { c.Scan.PixelWindow = Duration(20 * time.Millisecond) },
	}
}

func TestQuickRunCheckerboard(t *testing.T) {
	r := NewRunner(nil)
	res, err := r.QuickRun(context.Background(), fastOptions()...)
	require.NoError(t, err)

	assert.NotEmpty(t, res.RunID)
	assert.InDelta(t, 100, res.ClassAMean, 2)
	assert.InDelta(t, 150, res.ClassBMean, 2)
	assert.InDelta(t, 1.5, res.Ratio, 0.1)
	assert.Contains(t, []stats.QualityTier{stats.TierGood, stats.TierExcellent}, res.QualityTier)
	require.NotNil(t, res.Scan)
	assert.Equal(t, 64, res.Scan.Processed)
	assert.GreaterOrEqual(t, res.AccuracyPercent, 95.0)
	assert.Greater(t, res.ElapsedSeconds, 0.0)
	assert.False(t, r.Busy())
}

func TestCalibrateOnly(t *testing.T) {
	r := NewRunner(nil)
	res, err := r.QuickRun(context.Background(), append(fastOptions(), CalibrateOnly())...)
	require.NoError(t, err)
	assert.Nil(t, res.Scan)
	assert.NotNil(t, res.Calibration)
}

func TestRunWithLoadGenerator(t *testing.T) {
	r := NewRunner(nil)
	opts := append(fastOptions(), CalibrateOnly(), WithLoad(1, 50))
	res, err := r.QuickRun(context.Background(), opts...)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.CPUPercent, 0.0)
}

func TestInvalidConfigIsRejected(t *testing.T) {
	r := NewRunner(nil)
	_, err := r.QuickRun(context.Background(), WithThresholds(0.8, 0.2))
	assert.Error(t, err)
	assert.False(t, r.Busy())
}

// blockingChannel 采集时一直阻塞到 ctx 结束
type blockingChannel struct {
	started chan struct{}
	once    sync.Once
}

func (b *blockingChannel) SetState(context.Context, types.Label) error { return nil }
func (b *blockingChannel) MoveTo(context.Context, int, int) error      { return nil }
func (b *blockingChannel) Close() error                                 { return nil }
func (b *blockingChannel) Collect(ctx context.Context, _ time.Duration) ([]float64, error) {
	b.once.Do(func() { close(b.started) })
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestBusyAndCancel(t *testing.T) {
	ch := &blockingChannel{started: make(chan struct{})}
	r := NewRunner(nil)
	r.Channels = func(context.Context, *RunContext) (Channel, error) { return ch, nil }

	cfg := DefaultConfig()
	Fast()(cfg)
	cfg.Acquisition.CollectGrace = 0

	errc := make(chan error, 1)
	go func() {
		_, err := r.Run(context.Background(), cfg)
		errc <- err
	}()
	<-ch.started

	assert.True(t, r.Busy())
	_, err := r.Run(context.Background(), DefaultConfig())
	assert.ErrorIs(t, err, types.ErrBusy)

	r.Cancel()
	select {
	case err := <-errc:
		assert.ErrorIs(t, err, types.ErrCancelled)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop after Cancel")
	}
	assert.False(t, r.Busy())
}

func TestRoundTimeout(t *testing.T) {
	ch := &blockingChannel{started: make(chan struct{})}
	r := NewRunner(nil)
	r.Channels = func(context.Context, *RunContext) (Channel, error) { return ch, nil }

	cfg := DefaultConfig()
	Fast()(cfg)
	cfg.Acquisition.CollectGrace = 0
	cfg.Acquisition.RoundTimeout = Duration(50 * time.Millisecond)

	_, err := r.Run(context.Background(), cfg)
	assert.ErrorIs(t, err, types.ErrAcquisitionTimeout)
}

func TestScanRoundTimeoutFails(t *testing.T) {
	r := NewRunner(nil)
	cfg := DefaultConfig()
	for _, o := range fastOptions() {
		o(cfg)
	}
	cfg.Acquisition.RoundTimeout = Duration(200 * time.Millisecond)
	calibCollects := cfg.Acquisition.Repetitions

	// 校准不等待，扫描每个坐标 30ms，整轮一定超时
	r.Channels = func(_ context.Context, rc *RunContext) (Channel, error) {
		return sampler.NewSynthetic(sampler.SyntheticConfig{
			MeanA: 100, MeanB: 150, Std: 5, Rate: 1000, Seed: 2,
			Truth: scan.Checkerboard{Square: 2}.Label,
			OnCollect: func(n int) {
				if n > calibCollects {
					time.Sleep(30 * time.Millisecond)
				}
			},
		}), nil
	}

	res, err := r.Run(context.Background(), cfg)
	assert.ErrorIs(t, err, types.ErrAcquisitionTimeout)
	assert.NotErrorIs(t, err, types.ErrCancelled)
	require.NotNil(t, res)
	require.NotNil(t, res.Calibration)
	require.NotNil(t, res.Scan)
	assert.Less(t, res.Scan.Processed, 64)
	assert.False(t, r.Busy())
}

func TestUnknownTieBreakIsReported(t *testing.T) {
	cfg := DefaultConfig()
	for _, o := range fastOptions() {
		o(cfg)
	}
	cfg.Classifier.TieBreak = "coin"

	r := NewRunner(nil)
	res, err := r.execute(context.Background(), newRunContext(cfg, logrus.NewEntry(logrus.StandardLogger())))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "classifier")
	assert.Contains(t, err.Error(), "coin")
	require.NotNil(t, res)
	assert.NotNil(t, res.Calibration)
	assert.Nil(t, res.Scan)
}

func TestCancelDuringScanKeepsPartialResult(t *testing.T) {
	r := NewRunner(nil)
	cfg := DefaultConfig()
	for _, o := range fastOptions() {
		o(cfg)
	}
	calibCollects := cfg.Acquisition.Repetitions

	r.Channels = func(_ context.Context, rc *RunContext) (Channel, error) {
		return sampler.NewSynthetic(sampler.SyntheticConfig{
			MeanA: 100, MeanB: 150, Std: 5, Rate: 1000, Seed: 2,
			Truth: scan.Checkerboard{Square: 2}.Label,
			OnCollect: func(n int) {
				if n == calibCollects+3 {
					r.Cancel()
				}
			},
		}), nil
	}

	res, err := r.Run(context.Background(), cfg)
	assert.ErrorIs(t, err, types.ErrCancelled)
	require.NotNil(t, res)
	require.NotNil(t, res.Scan)
	assert.Equal(t, 3, res.Scan.Processed)
}

func TestRunSeriesContinuesAfterFailure(t *testing.T) {
	good := DefaultConfig()
	for _, o := range append(fastOptions(), CalibrateOnly()) {
		o(good)
	}
	good.Name = "good"

	bad := good.Clone()
	bad.Name = "bad"
	bad.Channel.MeanB = bad.Channel.MeanA
	bad.Channel.Std = 0

	better := good.Clone()
	better.Name = "better"
	better.Channel.MeanB = 300

	r := NewRunner(nil)
	records := r.RunSeries(context.Background(), []*Config{good, bad, better})
	require.Len(t, records, 3)

	assert.Equal(t, 1, records[0].RunNumber)
	assert.NotNil(t, records[0].Result)
	assert.Empty(t, records[0].Error)

	assert.Nil(t, records[1].Result)
	assert.Contains(t, records[1].Error, types.ErrDegenerateStats.Error())

	assert.NotNil(t, records[2].Result)

	top := TopByRatio(records, 1)
	require.Len(t, top, 1)
	assert.Equal(t, "better", top[0].Config.Name)
}

func TestRunSeriesStopsOnParentCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := NewRunner(nil)
	records := r.RunSeries(ctx, []*Config{DefaultConfig(), DefaultConfig()})
	assert.Empty(t, records)
}
