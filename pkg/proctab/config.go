//go:build linux

package proctab

import "github.com/ja7ad/rlimsup/pkg/limits"

// clockTicksFunc and pageSizeFunc are indirected through vars (rather than
// calling limits.ClockTicks/limits.PageSize directly) so tests can stub the
// conversion factors without relying on the CLK_TCK/PAGE_SIZE environment
// variables racing across parallel subtests.
var (
	clockTicksFunc = limits.ClockTicks
	pageSizeFunc   = limits.PageSize
)
