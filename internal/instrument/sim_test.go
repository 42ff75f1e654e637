package instrument

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aperez/cmb-readout/internal/config"
)

// TestSim_ReadSample_StaysWithinNoiseBand checks readings cluster around the level.
func TestSim_ReadSample_StaysWithinNoiseBand(t *testing.T) {
	t.Parallel()

	sim := NewSim(config.InstrumentConfig{
		SimInterval: time.Millisecond,
		SimLevel:    1.5,
		SimNoise:    0.1,
	})

	for i := 0; i < 20; i++ {
		v, err := sim.ReadSample(context.Background())
		require.NoError(t, err)
		require.InDelta(t, 1.5, v, 0.1+1e-9)
	}
}

// TestSim_ReadSample_HonorsCancellation returns the context error mid-wait.
func TestSim_ReadSample_HonorsCancellation(t *testing.T) {
	t.Parallel()

	sim := NewSim(config.InstrumentConfig{SimInterval: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := sim.ReadSample(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

// TestSim_Calibration covers the unset state, apply and read-back.
func TestSim_Calibration(t *testing.T) {
	t.Parallel()

	sim := NewSim(config.InstrumentConfig{SimInterval: time.Millisecond})
	ctx := context.Background()

	// No calibration until one is applied.
	_, err := sim.CalibrationValue(ctx)
	require.ErrorIs(t, err, ErrNoCalibration)

	require.NoError(t, sim.ApplyCalibration(ctx, 0.75))

	v, err := sim.CalibrationValue(ctx)
	require.NoError(t, err)
	require.InDelta(t, 0.75, v, 1e-12)

	// Non-finite values are refused.
	require.ErrorIs(t, sim.ApplyCalibration(ctx, math.NaN()), ErrCalibrationRejected)
	require.ErrorIs(t, sim.ApplyCalibration(ctx, math.Inf(1)), ErrCalibrationRejected)
}
