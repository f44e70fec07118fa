//go:build linux

package sampler

import (
	"os/exec"
	"testing"
	"time"

	"github.com/ja7ad/rlimsup/pkg/limits"
	"github.com/ja7ad/rlimsup/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startSleeper(t *testing.T, seconds string) *exec.Cmd {
	t.Helper()
	cmd := exec.Command("sleep", seconds)
	require.NoError(t, cmd.Start())
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	})
	return cmd
}

func newSamplerFor(pid int, lim limits.Limits) *Sampler {
	reg := registry.New(1 << 20)
	return New(reg, pid, 1<<20, lim, time.Now())
}

func TestTick_AggregatesLaunchedChild(t *testing.T) {
	cmd := startSleeper(t, "5")
	lim := limits.DefaultLimits(4096)
	s := newSamplerFor(cmd.Process.Pid, lim)

	result := s.Tick()
	assert.Equal(t, uint64(1), result.Seq)
	assert.Greater(t, result.ProcTableCount, 0)
	assert.GreaterOrEqual(t, result.SampledMemoryMB, 0.0)
	assert.Equal(t, OutcomeNone, result.Outcome)
}

func TestTick_MonotonePeaks(t *testing.T) {
	cmd := startSleeper(t, "5")
	lim := limits.DefaultLimits(4096)
	s := newSamplerFor(cmd.Process.Pid, lim)

	s.Tick()
	firstMaxMem := s.MaxMemoryMB()
	firstMaxTime := s.MaxTimeS()

	s.Tick()
	assert.GreaterOrEqual(t, s.MaxMemoryMB(), firstMaxMem)
	assert.GreaterOrEqual(t, s.MaxTimeS(), firstMaxTime)
}

func TestTick_ZeroTimeLimitTriggersOutOfTimeOnAnyCPU(t *testing.T) {
	// A process that burns measurable CPU, checked against a zero time
	// limit, should report OutOfTime on the first tick that observes any
	// CPU time > 0. We approximate with a shell busy-loop that burns CPU
	// briefly before the first tick.
	cmd := exec.Command("sh", "-c", "i=0; while [ $i -lt 20000000 ]; do i=$((i+1)); done; sleep 2")
	require.NoError(t, cmd.Start())
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	})

	lim := limits.Limits{TimeLimitS: 0, RealTimeLimitS: 1000, SpaceLimitMB: 4096}
	s := newSamplerFor(cmd.Process.Pid, lim)

	deadline := time.Now().Add(3 * time.Second)
	var result Result
	for time.Now().Before(deadline) {
		result = s.Tick()
		if result.Outcome == OutcomeOutOfTime {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	assert.Equal(t, OutcomeOutOfTime, result.Outcome)
	assert.True(t, s.CaughtOutOfTime())
}

func TestTick_RealTimeLimitTriggersOutOfTime(t *testing.T) {
	cmd := startSleeper(t, "5")
	lim := limits.Limits{TimeLimitS: 1000, RealTimeLimitS: 0.01, SpaceLimitMB: 4096}
	s := New(registry.New(1<<20), cmd.Process.Pid, 1<<20, lim, time.Now().Add(-1*time.Second))

	result := s.Tick()
	assert.Equal(t, OutcomeOutOfTime, result.Outcome)
}

func TestTick_LatchFiresOnlyOnce(t *testing.T) {
	cmd := startSleeper(t, "5")
	lim := limits.Limits{TimeLimitS: 1000, RealTimeLimitS: 0.001, SpaceLimitMB: 4096}
	s := New(registry.New(1<<20), cmd.Process.Pid, 1<<20, lim, time.Now().Add(-1*time.Second))

	first := s.Tick()
	second := s.Tick()
	assert.Equal(t, OutcomeOutOfTime, first.Outcome)
	assert.Equal(t, OutcomeNone, second.Outcome, "second tick must not re-fire an already-latched cause")
}

func TestTick_SpaceLimitBreach(t *testing.T) {
	cmd := startSleeper(t, "5")
	lim := limits.Limits{TimeLimitS: 1000, RealTimeLimitS: 1000, SpaceLimitMB: 0.000001}
	s := newSamplerFor(cmd.Process.Pid, lim)

	result := s.Tick()
	assert.Equal(t, OutcomeOutOfMemory, result.Outcome)
	assert.True(t, s.CaughtOutOfMemory())
}

func TestTick_NoBreachWhenWithinLimits(t *testing.T) {
	cmd := startSleeper(t, "5")
	lim := limits.DefaultLimits(1 << 20)
	s := newSamplerFor(cmd.Process.Pid, lim)

	result := s.Tick()
	assert.Equal(t, OutcomeNone, result.Outcome)
	assert.False(t, s.CaughtOutOfTime())
	assert.False(t, s.CaughtOutOfMemory())
}
