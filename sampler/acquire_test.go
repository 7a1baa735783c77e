package sampler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sidechan/types"
)

// stuckSource 前 stuck 次采集一直阻塞到 ctx 结束
type stuckSource struct {
	stuck    int
	attempts int
	err      error
}

func (s *stuckSource) SetState(context.Context, types.Label) error { return nil }

func (s *stuckSource) Collect(ctx context.Context, _ time.Duration) ([]float64, error) {
	s.attempts++
	if s.err != nil {
		return nil, s.err
	}
	if s.attempts <= s.stuck {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return []float64{1}, nil
}

func TestCollectWindowRetriesThenSucceeds(t *testing.T) {
	src := &stuckSource{stuck: 2}
	v, err := CollectWindow(context.Background(), src, time.Millisecond, 5*time.Millisecond, 2)
	require.NoError(t, err)
	assert.Equal(t, []float64{1}, v)
	assert.Equal(t, 3, src.attempts)
}

func TestCollectWindowTimeout(t *testing.T) {
	src := &stuckSource{stuck: 100}
	_, err := CollectWindow(context.Background(), src, time.Millisecond, 5*time.Millisecond, 2)
	assert.ErrorIs(t, err, types.ErrAcquisitionTimeout)
	assert.Equal(t, 3, src.attempts)
}

func TestCollectWindowParentCancel(t *testing.T) {
	src := &stuckSource{stuck: 100}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := CollectWindow(ctx, src, time.Millisecond, time.Second, 5)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, src.attempts)
}

func TestCollectWindowSourceError(t *testing.T) {
	boom := errors.New("boom")
	src := &stuckSource{err: boom}
	_, err := CollectWindow(context.Background(), src, time.Millisecond, time.Second, 5)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, src.attempts)
}
