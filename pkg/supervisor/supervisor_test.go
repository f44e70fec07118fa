//go:build linux

package supervisor

import (
	"bytes"
	"testing"
	"time"

	"github.com/ja7ad/rlimsup/pkg/limits"
	"github.com/ja7ad/rlimsup/pkg/rlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSupervisor(t *testing.T, lim limits.Limits) (*Supervisor, *bytes.Buffer) {
	t.Helper()
	kcfg, err := limits.ReadKernelConfig()
	require.NoError(t, err)

	var buf bytes.Buffer
	log := rlog.New(&buf)
	return New(kcfg, lim, log), &buf
}

func TestRun_OK(t *testing.T) {
	lim := limits.DefaultLimits(4096)
	sup, buf := newTestSupervisor(t, lim)

	report, err := sup.Run("/bin/true", nil)
	require.NoError(t, err)

	assert.Equal(t, StatusOK, report.Status)
	assert.Equal(t, 0, report.ExitCode)
	assert.Contains(t, buf.String(), "status:")
	assert.Contains(t, buf.String(), "ok")
}

func TestRun_ChildExitCodePropagates(t *testing.T) {
	lim := limits.DefaultLimits(4096)
	sup, _ := newTestSupervisor(t, lim)

	report, err := sup.Run("sh", []string{"-c", "exit 7"})
	require.NoError(t, err)

	assert.Equal(t, StatusOK, report.Status)
	assert.Equal(t, 7, report.ExitCode)
}

func TestRun_ExecFailed(t *testing.T) {
	lim := limits.DefaultLimits(4096)
	sup, _ := newTestSupervisor(t, lim)

	report, err := sup.Run("/no/such/binary", nil)
	require.NoError(t, err)

	assert.Equal(t, StatusExecFailed, report.Status)
	assert.Equal(t, 1, report.ExitCode)
}

func TestRun_TimeLimitTriggersOutOfTime(t *testing.T) {
	lim := limits.Limits{TimeLimitS: 0, RealTimeLimitS: 30, SpaceLimitMB: 4096}
	sup, _ := newTestSupervisor(t, lim)

	report, err := sup.Run("sh", []string{"-c", "i=0; while [ $i -lt 50000000 ]; do i=$((i+1)); done; sleep 5"})
	require.NoError(t, err)

	assert.Equal(t, StatusOutOfTime, report.Status)
	assert.Equal(t, 2, report.ExitCode)
}

func TestRun_RealTimeLimitTriggersOutOfTime(t *testing.T) {
	lim := limits.Limits{TimeLimitS: 30, RealTimeLimitS: 1, SpaceLimitMB: 4096}
	sup, _ := newTestSupervisor(t, lim)

	start := time.Now()
	report, err := sup.Run("sleep", []string{"10"})
	elapsed := time.Since(start)
	require.NoError(t, err)

	assert.Equal(t, StatusOutOfTime, report.Status)
	assert.Equal(t, 2, report.ExitCode)
	assert.Less(t, elapsed, 8*time.Second, "teardown must cut sleep 10 short")
	assert.GreaterOrEqual(t, report.RealTimeS, 1.0)
}

func TestRun_SpaceLimitTriggersOutOfMemory(t *testing.T) {
	lim := limits.Limits{TimeLimitS: 30, RealTimeLimitS: 30, SpaceLimitMB: 1}
	sup, _ := newTestSupervisor(t, lim)

	// Any ordinary shell comfortably exceeds a 1 MB RSS ceiling.
	report, err := sup.Run("sh", []string{"-c", "sleep 5"})
	require.NoError(t, err)

	assert.Equal(t, StatusOutOfMemory, report.Status)
	assert.Equal(t, 3, report.ExitCode)
	assert.GreaterOrEqual(t, report.MaxMemoryMB, 1.0)
}

func TestRun_SegFault(t *testing.T) {
	lim := limits.DefaultLimits(4096)
	sup, _ := newTestSupervisor(t, lim)

	report, err := sup.Run("sh", []string{"-c", "kill -SEGV $$"})
	require.NoError(t, err)

	assert.Equal(t, StatusSegFault, report.Status)
	assert.Equal(t, 132, report.ExitCode)
}

func TestPropagateSelf_NoOpWithoutRequest(t *testing.T) {
	lim := limits.Limits{PropagateSignals: false}
	report := ExitReport{Status: StatusSegFault, Signal: 11}
	assert.False(t, PropagateSelf(lim, report))
}

func TestPropagateSelf_NoOpWithoutSignal(t *testing.T) {
	lim := limits.Limits{PropagateSignals: true}
	report := ExitReport{Status: StatusSegFault, Signal: 0}
	assert.False(t, PropagateSelf(lim, report))
}

func TestPropagateSelf_NoOpForResourceSignal(t *testing.T) {
	// SIGXCPU maps to StatusOutOfTime, a resource limit rather than the
	// "child died by a non-resource signal" case PropagateSelf propagates.
	lim := limits.Limits{PropagateSignals: true}
	report := ExitReport{Status: StatusOutOfTime, Signal: 24}
	assert.False(t, PropagateSelf(lim, report))
}
