package instrument

import (
	"context"
	"errors"
)

// Channel is the single exclusively-owned receiver a run reads from.
// Sampling cadence is whatever the underlying device naturally paces.
type Channel interface {
	// ReadSample takes one reading. A returned error wrapping ErrInstrument
	// is fatal for the acquisition loop.
	ReadSample(ctx context.Context) (float64, error)
	// CalibrationValue reports the calibration the device currently holds.
	// Returns an error wrapping ErrNoCalibration when the device has none.
	CalibrationValue(ctx context.Context) (float64, error)
	// ApplyCalibration writes a calibration value to the device.
	ApplyCalibration(ctx context.Context, value float64) error
	// Close releases the device.
	Close() error
}

var (
	// ErrInstrument marks a fatal device fault during a read.
	ErrInstrument = errors.New("instrument fault")
	// ErrCalibrationRejected marks a calibration value the device refused.
	ErrCalibrationRejected = errors.New("calibration rejected by instrument")
	// ErrNoCalibration marks a device that reports no usable calibration state.
	ErrNoCalibration = errors.New("instrument reports no calibration state")
)
