//go:build darwin || dragonfly || freebsd || netbsd || openbsd

package deviceinfo

import (
	"fmt"
	"os"
	"runtime"

	"golang.org/x/sys/unix"
)

func probeFrom(procRoot, sysRoot string) (Info, error) {
	var info Info
	var err error

	info.Hostname, err = os.Hostname()
	if err != nil {
		return Info{}, fmt.Errorf("hostname: %w", err)
	}

	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return Info{}, fmt.Errorf("uname: %w", err)
	}
	info.OSType = unix.ByteSliceToString(uts.Sysname[:])
	info.OSRelease = unix.ByteSliceToString(uts.Release[:])

	info.CPUCount = runtime.NumCPU()
	info.CPUClockMHz = readCPUClock()
	return info, nil
}

// readCPUClock returns 0 when the kernel exposes no nominal frequency,
// as on Apple silicon.
func readCPUClock() uint64 {
	if hz, err := unix.SysctlUint64("hw.cpufrequency"); err == nil && hz > 0 {
		return hz / 1000000
	}
	if mhz, err := unix.SysctlUint32("hw.clockrate"); err == nil {
		return uint64(mhz)
	}
	return 0
}
