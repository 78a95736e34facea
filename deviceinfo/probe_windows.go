package deviceinfo

import (
	"fmt"
	"os"
	"runtime"

	"golang.org/x/sys/windows"
	"golang.org/x/sys/windows/registry"
)

const processorKey = `HARDWARE\DESCRIPTION\System\CentralProcessor\0`

func probeFrom(procRoot, sysRoot string) (Info, error) {
	var info Info
	var err error

	info.Hostname, err = os.Hostname()
	if err != nil {
		return Info{}, fmt.Errorf("hostname: %w", err)
	}

	v := windows.RtlGetVersion()
	info.OSType = "Windows"
	info.OSRelease = fmt.Sprintf("%d.%d.%d", v.MajorVersion, v.MinorVersion, v.BuildNumber)

	info.CPUCount = runtime.NumCPU()

	k, err := registry.OpenKey(registry.LOCAL_MACHINE, processorKey, registry.QUERY_VALUE)
	if err != nil {
		return Info{}, fmt.Errorf("cpu clock: %w", err)
	}
	defer k.Close()
	mhz, _, err := k.GetIntegerValue("~MHz")
	if err != nil {
		return Info{}, fmt.Errorf("cpu clock: %w", err)
	}
	info.CPUClockMHz = mhz
	return info, nil
}
