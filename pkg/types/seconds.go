package types

import "fmt"

// Seconds is a float64 wrapper representing a duration measured in seconds,
// used for CPU-time and wall-clock reporting where time.Duration's integer
// nanosecond precision is more than the kernel-exposed counters justify.
type Seconds float64

// String renders the value the way the event log's time/real lines expect:
// two decimal places, no unit suffix (the field name carries the unit).
func (s Seconds) String() string {
	return fmt.Sprintf("%.2f", float64(s))
}

// Exceeds reports whether s is strictly greater than limit. A limit of zero
// is a legitimate ceiling, not "no limit": spec.md's boundary behaviors
// require that a zero time limit trips on the first sample with any
// measurable CPU time, so zero is compared like any other value.
func (s Seconds) Exceeds(limit float64) bool {
	return float64(s) > limit
}

// AtLeast reports whether s has reached or passed limit, for the
// "override to out-of-time" check once the peak is known to have reached
// the ceiling rather than merely crossed it mid-sample.
func (s Seconds) AtLeast(limit float64) bool {
	return float64(s) >= limit
}
