//go:build linux

package limits

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClockTicksAndPageSize(t *testing.T) {
	t.Setenv("CLK_TCK", "")
	t.Setenv("PAGE_SIZE", "")
	assert.Greater(t, ClockTicks(), 0)
	assert.Greater(t, PageSize(), 0)

	t.Setenv("CLK_TCK", "250")
	t.Setenv("PAGE_SIZE", "16384")
	assert.Equal(t, 250, ClockTicks())
	assert.Equal(t, 16384, PageSize())
}

func TestPIDMax(t *testing.T) {
	pidMax, err := PIDMax()
	require.NoError(t, err)
	assert.Greater(t, pidMax, 0)
}

func TestHostname(t *testing.T) {
	h := Hostname()
	assert.NotEmpty(t, h)
}

func TestTotalMemoryMB(t *testing.T) {
	mb, err := TotalMemoryMB()
	require.NoError(t, err)
	assert.Greater(t, mb, 0.0)
}

func TestReadKernelConfig(t *testing.T) {
	cfg, err := ReadKernelConfig()
	require.NoError(t, err)
	assert.Greater(t, cfg.PIDMax, 0)
	assert.Greater(t, cfg.ClockTicks, 0)
	assert.Greater(t, cfg.PageSize, 0)
	assert.NotEmpty(t, cfg.Hostname)
	assert.Greater(t, cfg.TotalMemMB, 0.0)
}
