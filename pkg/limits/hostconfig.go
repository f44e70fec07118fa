//go:build linux

package limits

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// ClockTicks returns the number of jiffies (clock ticks) per second used to
// convert /proc/<pid>/stat's utime/stime fields into seconds. It first
// checks the CLK_TCK environment variable (so tests can exercise the
// conversion without depending on the host's actual tick rate), otherwise
// falls back to 100, the value on every Linux platform Go supports.
func ClockTicks() int {
	v, _ := strconv.Atoi(os.Getenv("CLK_TCK"))
	if v > 0 {
		return v
	}
	return 100
}

// PageSize returns the system memory page size in bytes, used to convert
// /proc/<pid>/stat's resident-page-count field into bytes. Like ClockTicks,
// it checks an env override (PAGE_SIZE) before falling back to the real
// value.
func PageSize() int {
	if ps := os.Getenv("PAGE_SIZE"); ps != "" {
		if v, _ := strconv.Atoi(ps); v > 0 {
			return v
		}
	}
	return os.Getpagesize()
}

// PIDMax reads /proc/sys/kernel/pid_max, the upper bound (exclusive) on pids
// the kernel will hand out. The registry's fixed-capacity table is sized to
// this value.
func PIDMax() (int, error) {
	b, err := os.ReadFile("/proc/sys/kernel/pid_max")
	if err != nil {
		return 0, fmt.Errorf("limits: read pid_max: %w", err)
	}
	v, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil {
		return 0, fmt.Errorf("limits: parse pid_max: %w", err)
	}
	return v, nil
}

// Hostname reads /proc/sys/kernel/hostname, falling back to os.Hostname if
// the kernel file can't be read (e.g. non-Linux test environments).
func Hostname() string {
	if b, err := os.ReadFile("/proc/sys/kernel/hostname"); err == nil {
		if h := strings.TrimSpace(string(b)); h != "" {
			return h
		}
	}
	h, _ := os.Hostname()
	return h
}

// TotalMemoryMB returns the host's total physical memory in megabytes, used
// as the default space limit when the caller doesn't override it.
func TotalMemoryMB() (float64, error) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0, fmt.Errorf("limits: sysinfo: %w", err)
	}
	totalBytes := uint64(info.Totalram) * uint64(info.Unit)
	return float64(totalBytes) / (1024 * 1024), nil
}

// ReadKernelConfig gathers the PID_MAX/page-size/clock-tick/hostname/memory
// readings startup needs, refusing to proceed if pid_max is implausible
// (spec.md §4.6's "refuse to run if PID_MAX exceeds the registry capacity or
// is implausibly small").
type KernelConfig struct {
	PIDMax     int
	ClockTicks int
	PageSize   int
	Hostname   string
	TotalMemMB float64
}

// MaxRegistryCapacity bounds how large a fixed pid-indexed table rlimsup is
// willing to allocate. Modern kernels default pid_max to 4194304; this
// leaves generous headroom while still catching a corrupted or adversarial
// reading.
const MaxRegistryCapacity = 1 << 23

// MinPlausiblePIDMax is the smallest pid_max value treated as sane. The
// kernel itself rejects pid_max settings below 301, so a smaller reading
// points at a corrupted or misparsed file.
const MinPlausiblePIDMax = 300

func ReadKernelConfig() (KernelConfig, error) {
	pidMax, err := PIDMax()
	if err != nil {
		return KernelConfig{}, err
	}
	if pidMax < MinPlausiblePIDMax {
		return KernelConfig{}, fmt.Errorf("limits: pid_max %d implausibly small", pidMax)
	}
	if pidMax > MaxRegistryCapacity {
		return KernelConfig{}, fmt.Errorf("limits: pid_max %d exceeds registry capacity %d", pidMax, MaxRegistryCapacity)
	}
	memMB, err := TotalMemoryMB()
	if err != nil {
		return KernelConfig{}, err
	}
	return KernelConfig{
		PIDMax:     pidMax,
		ClockTicks: ClockTicks(),
		PageSize:   PageSize(),
		Hostname:   Hostname(),
		TotalMemMB: memMB,
	}, nil
}
