package sched

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestApplyNoopWithZeroMaskAndPriority(t *testing.T) {
	require.NoError(t, Apply(0, 0))
}

func TestApplyPinsToAnAvailableCPU(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("CPU affinity is Linux-specific")
	}
	err := Apply(1, 0)
	require.NoError(t, err)
}
