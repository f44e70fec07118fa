//go:build linux

package proctab

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRead_FindsSelf(t *testing.T) {
	records, count, err := Read(1 << 22)
	require.NoError(t, err)
	assert.Greater(t, count, 0)
	assert.Len(t, records, count)

	me := os.Getpid()
	var found *Record
	for i := range records {
		if records[i].PID == me {
			found = &records[i]
			break
		}
	}
	require.NotNil(t, found, "current pid must appear in the process table")
	assert.GreaterOrEqual(t, found.CPUTimeS, 0.0)
	assert.Greater(t, found.RSSBytes, uint64(0))
	assert.GreaterOrEqual(t, found.PPID, 0)
}

func TestRead_SkipsOutOfRangePIDs(t *testing.T) {
	records, _, err := Read(2)
	require.NoError(t, err)
	for _, r := range records {
		assert.Less(t, r.PID, 2)
	}
}

func TestParsePositiveInt(t *testing.T) {
	cases := []struct {
		in   string
		want int
		ok   bool
	}{
		{"123", 123, true},
		{"", 0, false},
		{"12a", 0, false},
		{"-1", 0, false},
		{"0", 0, true},
	}
	for _, tc := range cases {
		got, ok := parsePositiveInt(tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
		if ok {
			assert.Equal(t, tc.want, got, tc.in)
		}
	}
}

func TestReadStat_PIDMismatchDiscarded(t *testing.T) {
	// /proc/self resolves to our own pid directory; asking readStat to
	// confirm a deliberately wrong pid against that record must fail.
	_, ok := readStat(os.Getpid()+1, "self")
	assert.False(t, ok)
}

func TestReadStat_NoSuchPID(t *testing.T) {
	_, ok := readStat(999999999, "999999999")
	assert.False(t, ok)
}
