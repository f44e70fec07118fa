package limits

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultLimits(t *testing.T) {
	l := DefaultLimits(4096)
	assert.Equal(t, float64(oneYearSeconds), l.TimeLimitS)
	assert.Equal(t, float64(oneYearSeconds), l.RealTimeLimitS)
	assert.Equal(t, 4096.0, l.SpaceLimitMB)
	assert.False(t, l.PropagateSignals)
}
