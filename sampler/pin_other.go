//go:build !linux

package sampler

import "errors"

func pinToCPU(cpu int) error {
	return errors.New("cpu affinity not supported on this platform")
}
