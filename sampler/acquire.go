package sampler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sidechan/types"
)

// CollectWindow 采集一个窗口，单次采集以 d+grace 为上限
//
// 超时后重试 retries 次，全部超时返回 types.ErrAcquisitionTimeout。
// grace <= 0 时不设单次上限，只受 ctx 约束。
func CollectWindow(ctx context.Context, src Source, d, grace time.Duration, retries int) ([]float64, error) {
	if grace <= 0 {
		return src.Collect(ctx, d)
	}
	for attempt := 0; ; attempt++ {
		actx, cancel := context.WithTimeout(ctx, d+grace)
		samples, err := src.Collect(actx, d)
		timedOut := errors.Is(actx.Err(), context.DeadlineExceeded)
		cancel()

		switch {
		case err == nil:
			return samples, nil
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case !timedOut:
			return nil, err
		case attempt >= retries:
			return nil, fmt.Errorf("%w: no data within %s after %d attempts", types.ErrAcquisitionTimeout, d+grace, attempt+1)
		}
	}
}
