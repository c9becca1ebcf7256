package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistrationState(t *testing.T) {
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		reg  Registration
		want State
	}{
		{"active confirmed", Registration{}, StateActiveConfirmed},
		{"active waitlisted", Registration{IsWaitlist: true, WaitlistJoinedAt: &now}, StateActiveWaitlisted},
		{"cancelled confirmed", Registration{CancelledAt: &now}, StateCancelledConfirmed},
		{"cancelled waitlisted", Registration{IsWaitlist: true, CancelledAt: &now}, StateCancelledWaitlisted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.reg.State())
		})
	}
}

func TestNormalizeRideLevel(t *testing.T) {
	assert.Equal(t, DefaultRideLevel, NormalizeRideLevel(""))
	assert.Equal(t, DefaultRideLevel, NormalizeRideLevel("   "))
	assert.Equal(t, "B", NormalizeRideLevel(" B "))
}

func TestParseEventID(t *testing.T) {
	id, err := ParseEventID(" 42 ")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	for _, raw := range []string{"", "abc", "0", "-3", "1.5", "+5", "5e2", "0x10", "99999999999999999999"} {
		_, err := ParseEventID(raw)
		assert.ErrorIs(t, err, ErrValidation, "input %q", raw)
	}
}

func TestNewCapacitySnapshot_MergesBlankLevels(t *testing.T) {
	snap := NewCapacitySnapshot(7, map[string]int{"A": 3, "": 1, " ": 2, "B": 4})

	assert.Equal(t, int64(7), snap.EventID)
	assert.Equal(t, 10, snap.Total)
	assert.Equal(t, map[string]int{"A": 3, "B": 4, DefaultRideLevel: 3}, snap.ByLevel)
}
