package run

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestParseCalibrationMode checks accepted and rejected mode strings.
func TestParseCalibrationMode(t *testing.T) {
	t.Parallel()

	for _, valid := range []string{"prompt", "fixed", "auto"} {
		mode, err := ParseCalibrationMode(valid)
		require.NoError(t, err)
		require.Equal(t, CalibrationMode(valid), mode)
	}

	_, err := ParseCalibrationMode("manual")
	require.ErrorIs(t, err, ErrUnknownCalibrationMode)
}

// TestConfigValidate covers the duration and azimuth invariants.
func TestConfigValidate(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		Azimuth:     48.7,
		Duration:    30 * time.Second,
		Calibration: CalibrationPrompt,
	}
	require.NoError(t, cfg.Validate(0, 360))

	// Zero duration.
	cfg.Duration = 0
	require.ErrorIs(t, cfg.Validate(0, 360), ErrDurationNotPositive)

	// Azimuth outside the instrument range.
	cfg.Duration = time.Second
	cfg.Azimuth = 120
	require.Error(t, cfg.Validate(0, 90))
}

// TestRecordClone ensures clones do not share the sample slice.
func TestRecordClone(t *testing.T) {
	t.Parallel()

	record := &Record{
		ID:      "abc",
		Samples: []Sample{{Elapsed: time.Second, Value: 1.5}},
		Outcome: Completed(),
		Operator: &Operator{
			Hostname: "bench-pc",
			Username: "aperez",
		},
	}

	cloned := record.Clone()
	cloned.Samples[0].Value = 9

	require.InDelta(t, 1.5, record.Samples[0].Value, 1e-12)
	require.NotSame(t, record.Operator, cloned.Operator)
}

// TestRecordMeanValue averages sample values and tolerates empty runs.
func TestRecordMeanValue(t *testing.T) {
	t.Parallel()

	record := &Record{
		Samples: []Sample{{Value: 1}, {Value: 2}, {Value: 3}},
	}
	require.InDelta(t, 2, record.MeanValue(), 1e-12)

	empty := new(Record)
	require.Zero(t, empty.MeanValue())
}

// TestOutcomeString checks the log/header rendering of both outcomes.
func TestOutcomeString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "completed", Completed().String())
	require.Equal(t, "aborted: instrument fault", Aborted("instrument fault").String())
}
