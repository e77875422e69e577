package parallel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name      string
		lim       *CPULimit
		hostCores int
		want      int
	}{
		{
			name:      "no restriction signal falls back to host cores",
			lim:       nil,
			hostCores: 16,
			want:      16,
		},
		{
			name:      "unlimited sentinel falls back to host cores",
			lim:       &CPULimit{Quota: UnlimitedQuota, Period: 100000},
			hostCores: 8,
			want:      8,
		},
		{
			name:      "unlimited sentinel ignores the period entirely",
			lim:       &CPULimit{Quota: UnlimitedQuota, Period: 0},
			hostCores: 8,
			want:      8,
		},
		{
			name:      "exact division",
			lim:       &CPULimit{Quota: 400000, Period: 100000},
			hostCores: 64,
			want:      4,
		},
		{
			name:      "fractional allocation rounds up",
			lim:       &CPULimit{Quota: 250000, Period: 100000},
			hostCores: 64,
			want:      3,
		},
		{
			name:      "tiny quota clamps to one worker",
			lim:       &CPULimit{Quota: 1, Period: 100000},
			hostCores: 64,
			want:      1,
		},
		{
			name:      "zero quota is not a usable restriction",
			lim:       &CPULimit{Quota: 0, Period: 100000},
			hostCores: 12,
			want:      12,
		},
		{
			name:      "single core host under exact quota",
			lim:       &CPULimit{Quota: 100000, Period: 100000},
			hostCores: 1,
			want:      1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(tt.lim, tt.hostCores)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveInvalidPeriod(t *testing.T) {
	for _, period := range []int64{0, -100000} {
		_, err := Resolve(&CPULimit{Quota: 100000, Period: period}, 8)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidCPULimit)
	}
}

func TestResolveNeverReturnsZero(t *testing.T) {
	// Even a pathological host core count must not yield zero workers.
	got, err := Resolve(nil, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, got)
}
