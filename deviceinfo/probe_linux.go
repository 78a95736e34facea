package deviceinfo

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

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

	info.CPUClockMHz, err = readCPUClock(filepath.Join(procRoot, "cpuinfo"),
		filepath.Join(sysRoot, "devices/system/cpu/cpu0/cpufreq/cpuinfo_max_freq"))
	if err != nil {
		return Info{}, fmt.Errorf("cpu clock: %w", err)
	}
	return info, nil
}

// readCPUClock takes the first "cpu MHz" line of cpuinfo. Platforms that
// do not report it there (most ARM kernels) fall back to cpufreq, which
// is in kHz.
func readCPUClock(cpuinfoPath, cpufreqPath string) (uint64, error) {
	if mhz, ok := readCPUInfoMHz(cpuinfoPath); ok {
		return mhz, nil
	}

	data, err := os.ReadFile(cpufreqPath)
	if err != nil {
		return 0, errors.New("no cpu frequency reported")
	}
	khz, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", cpufreqPath, err)
	}
	return khz / 1000, nil
}

func readCPUInfoMHz(path string) (uint64, bool) {
	file, err := os.Open(path)
	if err != nil {
		return 0, false
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "cpu MHz") {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		mhz, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			continue
		}
		return uint64(mhz), true
	}
	return 0, false
}
