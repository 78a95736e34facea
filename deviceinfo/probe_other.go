//go:build !linux && !windows && !darwin && !dragonfly && !freebsd && !netbsd && !openbsd

package deviceinfo

import (
	"fmt"
	"runtime"
)

func probeFrom(procRoot, sysRoot string) (Info, error) {
	return Info{}, fmt.Errorf("deviceinfo: probing is not supported on %s", runtime.GOOS)
}
