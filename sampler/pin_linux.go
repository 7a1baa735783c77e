//go:build linux

package sampler

import "golang.org/x/sys/unix"

// pinToCPU 把当前线程绑定到指定 CPU，调用前需要 LockOSThread
func pinToCPU(cpu int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)
	return unix.SchedSetaffinity(0, &set)
}
