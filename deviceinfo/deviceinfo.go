// Package deviceinfo derives the identifier the backend uses to tell
// client installations apart.
//
// The identifier mixes the current time into the machine attributes, so
// every call yields a new value. Derive it once and store it.
package deviceinfo

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/sha3"
)

// Info holds the machine attributes that feed the identifier.
type Info struct {
	Hostname    string
	CPUCount    int
	CPUClockMHz uint64
	OSType      string
	OSRelease   string
}

// Probe reads the attributes of the running machine.
func Probe() (Info, error) {
	return probeFrom("/proc", "/sys")
}

// Descriptor is the string that gets hashed.
func (i Info) Descriptor(now time.Time) string {
	return fmt.Sprintf("%s %s %s SMP #%d@%d TIME %d",
		i.OSType, i.Hostname, i.OSRelease, i.CPUCount, i.CPUClockMHz, now.Unix())
}

// Hash returns the upper-case hex SHA3-256 digest of the descriptor.
func (i Info) Hash(now time.Time) string {
	sum := sha3.Sum256([]byte(i.Descriptor(now)))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// DeviceID probes the machine and hashes it with the current time.
func DeviceID() (string, error) {
	info, err := Probe()
	if err != nil {
		return "", err
	}
	return info.Hash(time.Now()), nil
}
