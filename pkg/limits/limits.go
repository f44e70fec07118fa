// Package limits holds the supervisor's configuration: the three resource
// ceilings, the signal-propagation flag, and the handful of kernel-exposed
// constants (pid_max, clock ticks, page size, total memory, hostname) that
// startup needs before it can launch anything.
package limits

import "time"

// oneYearSeconds is the "+infinity in practice" default spec.md describes
// for the time and real-time ceilings.
const oneYearSeconds = 365 * 24 * 3600

// Limits is the supervisor's immutable-after-startup configuration.
type Limits struct {
	TimeLimitS       float64
	RealTimeLimitS   float64
	SpaceLimitMB     float64
	PropagateSignals bool
}

// DefaultLimits returns the spec's defaults: one-year time ceilings and a
// memory ceiling equal to the host's total physical memory.
func DefaultLimits(hostMemMB float64) Limits {
	return Limits{
		TimeLimitS:     oneYearSeconds,
		RealTimeLimitS: oneYearSeconds,
		SpaceLimitMB:   hostMemMB,
	}
}

// SampleRate is the sampler's tick period. Matches the original runlim's
// SAMPLE_RATE (original_source/runlim.c): its interval timer is armed with
// tv_usec = SAMPLE_RATE, i.e. microseconds, so the `10000` the C source
// defines is 10ms despite that file's own "in milliseconds" comment.
const SampleRate = 10 * time.Millisecond

// ReportRate is the number of ticks between periodic "sample:" log lines,
// matching the original's REPORT_RATE (one log line per second at the 10ms
// sample period).
const ReportRate = 100
