package calib

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sidechan/sampler"
	"sidechan/stats"
	"sidechan/types"
)

func testConfig(reps int) Config {
	return Config{Repetitions: reps, Window: 50 * time.Millisecond}
}

func synthetic(meanA, meanB, std float64, seed int64) *sampler.Synthetic {
	return sampler.NewSynthetic(sampler.SyntheticConfig{
		MeanA: meanA, MeanB: meanB, Std: std, Rate: 1000, Seed: seed,
	})
}

func TestSeparatedClasses(t *testing.T) {
	c, err := New(testConfig(40), nil)
	require.NoError(t, err)

	res, err := c.Calibrate(context.Background(), synthetic(100, 150, 5, 1))
	require.NoError(t, err)

	assert.InDelta(t, 100, res.A.Mean, 1)
	assert.InDelta(t, 150, res.B.Mean, 1)
	assert.GreaterOrEqual(t, res.Ratio, 1.35)
	assert.LessOrEqual(t, res.Ratio, 1.65)
	assert.Contains(t, []stats.QualityTier{stats.TierGood, stats.TierExcellent}, res.Tier)
	assert.Equal(t, 4, res.Discarded)
	assert.Equal(t, 36, res.Rounds)
	assert.Greater(t, res.Separation, 5.0)

	// 每类 18 轮，每轮 50 个样本去掉 5 个瞬态，再两端各裁剪 10%
	raw := 18 * 45
	assert.Equal(t, raw-2*(raw/10), res.A.N)
	assert.Equal(t, raw-2*(raw/10), res.B.N)
}

func TestCalibrationIsDeterministic(t *testing.T) {
	c, err := New(testConfig(20), nil)
	require.NoError(t, err)

	r1, err := c.Calibrate(context.Background(), synthetic(80, 95, 3, 42))
	require.NoError(t, err)
	r2, err := c.Calibrate(context.Background(), synthetic(80, 95, 3, 42))
	require.NoError(t, err)

	if diff := cmp.Diff(r1, r2, cmpopts.IgnoreFields(Result{}, "Elapsed")); diff != "" {
		t.Errorf("calibration not reproducible (-first +second):\n%s", diff)
	}
}

// recordingSource 记录状态切换顺序，每个窗口返回固定值
type recordingSource struct {
	states  []types.Label
	current types.Label
	values  map[types.Label]float64
	n       int
}

func (r *recordingSource) SetState(_ context.Context, l types.Label) error {
	r.states = append(r.states, l)
	r.current = l
	return nil
}

func (r *recordingSource) Collect(context.Context, time.Duration) ([]float64, error) {
	out := make([]float64, r.n)
	for i := range out {
		out[i] = r.values[r.current]
	}
	return out, nil
}

func TestStrictAlternation(t *testing.T) {
	src := &recordingSource{values: map[types.Label]float64{types.LabelA: 10, types.LabelB: 20}, n: 10}
	c, err := New(testConfig(10), nil)
	require.NoError(t, err)

	res, err := c.Calibrate(context.Background(), src)
	require.NoError(t, err)

	require.Len(t, src.states, 10)
	for i, l := range src.states {
		want := types.LabelA
		if i%2 == 1 {
			want = types.LabelB
		}
		assert.Equal(t, want, l, "round %d", i)
	}
	assert.Equal(t, 2.0, res.Ratio)
	assert.Equal(t, 0.0, res.A.Std)
	assert.Equal(t, stats.TierOutstanding, res.Tier)
}

func TestEmptyClassIsInsufficient(t *testing.T) {
	src := &recordingSource{values: map[types.Label]float64{}, n: 0}
	c, err := New(testConfig(10), nil)
	require.NoError(t, err)

	_, err = c.Calibrate(context.Background(), src)
	assert.ErrorIs(t, err, types.ErrInsufficientData)
}

func TestEqualMeansAreDegenerate(t *testing.T) {
	src := &recordingSource{values: map[types.Label]float64{types.LabelA: 5, types.LabelB: 5}, n: 10}
	c, err := New(testConfig(10), nil)
	require.NoError(t, err)

	_, err = c.Calibrate(context.Background(), src)
	assert.ErrorIs(t, err, types.ErrDegenerateStats)
}

func TestZeroMeanIsDegenerate(t *testing.T) {
	src := &recordingSource{values: map[types.Label]float64{types.LabelA: 0, types.LabelB: 5}, n: 10}
	c, err := New(testConfig(10), nil)
	require.NoError(t, err)

	_, err = c.Calibrate(context.Background(), src)
	assert.ErrorIs(t, err, types.ErrDegenerateStats)
}

type hangingSource struct{ attempts int }

func (h *hangingSource) SetState(context.Context, types.Label) error { return nil }
func (h *hangingSource) Collect(ctx context.Context, _ time.Duration) ([]float64, error) {
	h.attempts++
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestAcquisitionTimeout(t *testing.T) {
	cfg := testConfig(4)
	cfg.Window = time.Millisecond
	cfg.CollectGrace = 5 * time.Millisecond
	cfg.Retries = 1
	c, err := New(cfg, nil)
	require.NoError(t, err)

	src := &hangingSource{}
	_, err = c.Calibrate(context.Background(), src)
	assert.ErrorIs(t, err, types.ErrAcquisitionTimeout)
	assert.Equal(t, 2, src.attempts)
}

func TestCancelledContext(t *testing.T) {
	c, err := New(testConfig(10), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Calibrate(ctx, &hangingSource{})
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestWarmupIsDiscarded(t *testing.T) {
	src := &recordingSource{values: map[types.Label]float64{types.LabelUnknown: 1000, types.LabelA: 10, types.LabelB: 20}, n: 10}
	cfg := testConfig(10)
	cfg.Warmup = 10 * time.Millisecond
	c, err := New(cfg, nil)
	require.NoError(t, err)

	res, err := c.Calibrate(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 10.0, res.A.Mean)
}

func TestConfigValidate(t *testing.T) {
	_, err := New(Config{Repetitions: 1, Window: time.Millisecond}, nil)
	assert.Error(t, err)
	_, err = New(Config{Repetitions: 10}, nil)
	assert.Error(t, err)
	_, err = New(Config{Repetitions: 10, Window: time.Millisecond, Retries: -1}, nil)
	assert.Error(t, err)
}
