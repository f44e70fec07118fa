//go:build linux

package supervisor

import (
	"os"
	"syscall"
	"time"

	"github.com/ja7ad/rlimsup/pkg/limits"
	"github.com/ja7ad/rlimsup/pkg/sampler"
	"github.com/ja7ad/rlimsup/pkg/types"
)

// classify implements spec.md §4.6's priority-ordered classification plus
// its final "force OUT_OF_TIME" override, given the sampler's latched
// breach state and the child's reaped process state.
func classify(lim limits.Limits, samp *sampler.Sampler, startTime time.Time, ps *os.ProcessState) (status Status, exitCode int, sig int) {
	switch {
	case samp.CaughtOutOfMemory():
		status, exitCode = StatusOutOfMemory, StatusOutOfMemory.ExitCode()
	case samp.CaughtOutOfTime():
		status, exitCode = StatusOutOfTime, StatusOutOfTime.ExitCode()
	case ps == nil:
		status, exitCode = StatusInternalError, StatusInternalError.ExitCode()
	case ps.Exited():
		status, exitCode = StatusOK, ps.ExitCode()
	default:
		status, exitCode, sig = classifySignaled(ps)
	}

	elapsed := types.Seconds(time.Since(startTime).Seconds())
	overrideToOutOfTime := types.Seconds(samp.MaxTimeS()).AtLeast(lim.TimeLimitS) ||
		elapsed.AtLeast(lim.RealTimeLimitS)
	if overrideToOutOfTime {
		status, exitCode = StatusOutOfTime, StatusOutOfTime.ExitCode()
	}

	return status, exitCode, sig
}

func classifySignaled(ps *os.ProcessState) (Status, int, int) {
	wstatus, ok := ps.Sys().(syscall.WaitStatus)
	if !ok || !wstatus.Signaled() {
		return StatusInternalError, StatusInternalError.ExitCode(), 0
	}
	signaled := wstatus.Signal()

	switch signaled {
	case syscall.SIGXFSZ:
		return StatusOutOfMemory, StatusOutOfMemory.ExitCode(), int(signaled)
	case syscall.SIGXCPU:
		return StatusOutOfTime, StatusOutOfTime.ExitCode(), int(signaled)
	case syscall.SIGSEGV:
		return StatusSegFault, StatusSegFault.ExitCode(), int(signaled)
	case syscall.SIGBUS:
		return StatusBusError, StatusBusError.ExitCode(), int(signaled)
	default:
		return StatusOtherSignal, 128 + int(signaled), int(signaled)
	}
}
