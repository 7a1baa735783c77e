package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sidechan"
	"sidechan/sampler"
	"sidechan/scan"
	"sidechan/types"
)

type countingCanceller struct{ n int }

func (c *countingCanceller) Cancel() { c.n++ }

func TestInterruptKeepsCommandContextForSingleRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := &countingCanceller{}
	interrupt(c, cancel, false)
	assert.Equal(t, 1, c.n)
	assert.NoError(t, ctx.Err())
}

func TestInterruptCancelsSeries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := &countingCanceller{}
	interrupt(c, cancel, true)
	assert.Equal(t, 1, c.n)
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}

func TestInterruptFinishesInFlightPixel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := sidechan.DefaultConfig()
	for _, o := range []sidechan.Option{
		sidechan.WithWindow(50*time.Millisecond, 20),
		sidechan.WithScan(8, 8, 2),
		sidechan.Fast(),
	} {
		o(cfg)
	}
	cfg.Scan.PixelWindow = sidechan.Duration(20 * time.Millisecond)
	calibCollects := cfg.Acquisition.Repetitions

	runner := sidechan.NewRunner(nil)
	runner.Channels = func(context.Context, *sidechan.RunContext) (sidechan.Channel, error) {
		return sampler.NewSynthetic(sampler.SyntheticConfig{
			MeanA: 100, MeanB: 150, Std: 5, Rate: 1000, Seed: 4,
			Truth: scan.Checkerboard{Square: 2}.Label,
			Delay: 5 * time.Millisecond,
			OnCollect: func(n int) {
				if n == calibCollects+3 {
					interrupt(runner, cancel, false)
				}
			},
		}), nil
	}

	res, err := runner.Run(ctx, cfg)
	assert.ErrorIs(t, err, types.ErrCancelled)
	require.NotNil(t, res)
	require.NotNil(t, res.Scan)
	// 第 3 个坐标的采集没有被打断
	assert.Equal(t, 3, res.Scan.Processed)
	assert.NoError(t, ctx.Err())
}
