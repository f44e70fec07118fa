//go:build linux

// Package supervisor wires together proctab, registry, sampler, and killer
// into the top-level run loop spec.md §4.6 describes: launch the program,
// sample its subtree on a timer, tear it down on breach or on a terminating
// signal, reap it, classify the outcome, and report peak usage.
package supervisor

import (
	"errors"
	"os"
	"os/exec"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/ja7ad/rlimsup/internal/cgroupinfo"
	"github.com/ja7ad/rlimsup/pkg/killer"
	"github.com/ja7ad/rlimsup/pkg/limits"
	"github.com/ja7ad/rlimsup/pkg/registry"
	"github.com/ja7ad/rlimsup/pkg/rlog"
	"github.com/ja7ad/rlimsup/pkg/sampler"
	"github.com/ja7ad/rlimsup/pkg/types"
)

// Version is the version string logged at startup and printed by --version.
const Version = "1.0"

// terminatingSignals are the signals spec.md §4.6 says the supervisor
// installs handlers for. SIGKILL cannot actually be caught; it's kept in
// the list for symmetry with the spec and is harmless (signal.Notify simply
// never delivers it).
var terminatingSignals = []os.Signal{syscall.SIGINT, syscall.SIGSEGV, syscall.SIGTERM, syscall.SIGABRT, syscall.SIGKILL}

// Supervisor owns one supervised run: the kernel configuration discovered
// at startup, the limits to enforce, and the event log sink.
type Supervisor struct {
	kcfg limits.KernelConfig
	lim  limits.Limits
	log  *rlog.Logger
}

// New creates a Supervisor. kcfg must come from limits.ReadKernelConfig (or
// an equivalent synthetic value in tests).
func New(kcfg limits.KernelConfig, lim limits.Limits, log *rlog.Logger) *Supervisor {
	return &Supervisor{kcfg: kcfg, lim: lim, log: log}
}

// Run launches program with args, supervises its subtree until it exits or
// a limit is breached, and returns the classified outcome.
func (s *Supervisor) Run(program string, args []string) (ExitReport, error) {
	s.logStartup(program, args)

	cmd := exec.Command(program, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	startTime := time.Now()
	if err := cmd.Start(); err != nil {
		return s.reportStartFailure(err), nil
	}

	s.log.Event("start", "%s", startTime.Format(time.ANSIC))

	reg := registry.New(s.kcfg.PIDMax)
	samp := sampler.New(reg, cmd.Process.Pid, s.kcfg.PIDMax, s.lim, startTime)
	kill := killer.New(reg, os.Getpid(), s.kcfg.PIDMax)

	sigCh := make(chan os.Signal, len(terminatingSignals))
	signal.Notify(sigCh, terminatingSignals...)
	defer signal.Stop(sigCh)

	ticker := time.NewTicker(limits.SampleRate)
	defer ticker.Stop()

	waitDone := make(chan error, 1)
	go func() { waitDone <- cmd.Wait() }()

	var caughtOtherSignal atomic.Bool
	var samples uint64
	var waitErr error

loop:
	for {
		select {
		case sig := <-sigCh:
			if caughtOtherSignal.CompareAndSwap(false, true) {
				signal.Stop(sigCh)
				if rep := kill.KillSubtree(cmd.Process.Pid); rep.CycleDetected {
					s.log.Warning("cycle detected while tearing down subtree of pid %d", cmd.Process.Pid)
				}
				// spec.md §4.6/§4.7: the terminating signal handler restores
				// the prior (default) disposition and re-raises unconditionally
				// — this is not gated on -k/propagate_signals, unlike the
				// separate child-died-by-signal propagation PropagateSelf
				// below handles. The re-raised signal's default disposition
				// terminates this process, so block here rather than race it
				// with the rest of the run loop.
				if unixSig, ok := sig.(syscall.Signal); ok {
					signal.Reset(unixSig)
					_ = syscall.Kill(os.Getpid(), unixSig)
					select {}
				}
			}

		case <-ticker.C:
			samples++
			result := samp.Tick()
			if result.CycleDetected {
				s.log.Warning("cycle detected while walking subtree of pid %d", cmd.Process.Pid)
			}
			if samples%limits.ReportRate == 0 {
				s.log.Event("sample", "%s time, %s real, %s",
					types.Seconds(result.SampledTimeS), types.Seconds(time.Since(startTime).Seconds()),
					mbToBytes(result.SampledMemoryMB).Humanized())
			}
			if result.Outcome != sampler.OutcomeNone {
				if rep := kill.KillSubtree(cmd.Process.Pid); rep.CycleDetected {
					s.log.Warning("cycle detected while tearing down subtree of pid %d", cmd.Process.Pid)
				}
			}

		case waitErr = <-waitDone:
			break loop
		}
	}

	s.log.Event("end", "%s", time.Now().Format(time.ANSIC))

	status, exitCode, sig := classify(s.lim, samp, startTime, cmd.ProcessState)
	report := ExitReport{
		Status:      status,
		ExitCode:    exitCode,
		Signal:      sig,
		MaxTimeS:    samp.MaxTimeS(),
		MaxMemoryMB: samp.MaxMemoryMB(),
		RealTimeS:   time.Since(startTime).Seconds(),
		Samples:     samples,
		Children:    samp.ChildrenSeen(),
	}
	if waitErr != nil && cmd.ProcessState == nil {
		report.Status, report.ExitCode = StatusInternalError, StatusInternalError.ExitCode()
	}

	// Final best-effort teardown: whatever's left of the subtree after reap
	// (orphaned grandchildren the child never waited on) gets one more pass.
	if rep := kill.KillSubtree(cmd.Process.Pid); rep.CycleDetected {
		s.log.Warning("cycle detected while tearing down subtree of pid %d", cmd.Process.Pid)
	}

	s.logSummary(report)

	return report, nil
}

// PropagateSelf re-raises the signal that killed the supervised child, after
// restoring its default disposition, so a parent shell sees the same cause
// of death as the child's own classification — the "child died by a
// non-resource signal" propagation spec.md §4.6/§7 describes, gated on -k.
// This is distinct from (and unrelated to) the terminating-signal handler's
// own unconditional re-raise in Run's select loop. It is a no-op unless
// report carries a signal and propagation was requested. Reports whether it
// re-raised a signal, so the caller can wait for the default disposition to
// take effect instead of racing it with its own os.Exit.
func PropagateSelf(lim limits.Limits, report ExitReport) bool {
	if !lim.PropagateSignals || report.Signal == 0 {
		return false
	}
	switch report.Status {
	case StatusSegFault, StatusBusError, StatusOtherSignal:
	default:
		return false
	}
	sig := syscall.Signal(report.Signal)
	signal.Reset(sig)
	_ = syscall.Kill(os.Getpid(), sig)
	return true
}

func (s *Supervisor) logStartup(program string, args []string) {
	s.log.Event("version", "%s", Version)
	s.log.Event("host", "%s", s.kcfg.Hostname)
	if ver, detail, err := cgroupinfo.Detect(); err == nil {
		s.log.Event("cgroup", "%s: %s", ver, detail)
	}
	s.log.Event("time limit", "%s seconds", types.Seconds(s.lim.TimeLimitS))
	s.log.Event("real time limit", "%s seconds", types.Seconds(s.lim.RealTimeLimitS))
	s.log.Event("space limit", "%s", mbToBytes(s.lim.SpaceLimitMB).Humanized())
	s.log.Event("argv[0]", "%s", program)
	for i, a := range args {
		s.log.Event("argv", "[%d]: %s", i+1, a)
	}
}

func (s *Supervisor) logSummary(report ExitReport) {
	s.log.Event("status", "%s", report.Status)
	s.log.Event("result", "%d", report.ExitCode)
	s.log.Event("children", "%d", report.Children)
	s.log.Event("real", "%s seconds", types.Seconds(report.RealTimeS))
	s.log.Event("time", "%s seconds", types.Seconds(report.MaxTimeS))
	s.log.Event("space", "%s", mbToBytes(report.MaxMemoryMB).Humanized())
	s.log.Event("samples", "%d", report.Samples)
}

// mbToBytes converts a megabyte float (the unit every aggregate in this
// package is carried in) into types.Bytes for Humanized() rendering in the
// event log.
func mbToBytes(mb float64) types.Bytes {
	return types.Bytes(uint64(mb * 1024 * 1024))
}

// reportStartFailure classifies cmd.Start()'s error: an error wrapping
// EAGAIN or ENOMEM means the underlying clone/vfork syscall itself failed
// (FORK_FAILED); anything else (a *exec.Error from the PATH lookup, or the
// *os.PathError os.StartProcess returns when the binary can't be executed)
// is EXEC_FAILED.
func (s *Supervisor) reportStartFailure(err error) ExitReport {
	var execErr *exec.Error
	status := StatusExecFailed
	if !errors.As(err, &execErr) && (errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.ENOMEM)) {
		status = StatusForkFailed
	}
	s.log.Error("%s", err)
	report := ExitReport{Status: status, ExitCode: status.ExitCode()}
	s.logSummary(report)
	return report
}
