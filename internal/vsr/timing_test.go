package vsr

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWithDefaultsFillsOnlyZeroFields(t *testing.T) {
	custom := PhaseTimeouts{Prepare: 10 * time.Millisecond}
	filled := custom.WithDefaults()

	require.Equal(t, 10*time.Millisecond, filled.Prepare)
	require.Equal(t, ViewChangeTimeout, filled.ViewChange)
	require.Equal(t, StateTransferTimeout, filled.StateTransfer)
	require.Equal(t, RecoveryTimeout, filled.Recovery)
	require.Equal(t, HeartbeatInterval, filled.Heartbeat)
}

func TestHeartbeatIntervalIsWellUnderViewChangeTimeout(t *testing.T) {
	require.Less(t, HeartbeatInterval*4, ViewChangeTimeout)
}
