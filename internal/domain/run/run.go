package run

import (
	"errors"
	"fmt"
	"time"
)

// CalibrationMode selects how the calibration value is resolved before
// sampling starts.
type CalibrationMode string

const (
	// CalibrationPrompt blocks on the operator console for an explicit value.
	CalibrationPrompt CalibrationMode = "prompt"
	// CalibrationFixed applies a value given on the command line or in the
	// settings file, with no operator interaction.
	CalibrationFixed CalibrationMode = "fixed"
	// CalibrationAuto accepts the value the instrument already reports,
	// falling back to prompting when the instrument reports none.
	CalibrationAuto CalibrationMode = "auto"
)

// DefaultDuration is the acquisition window used when none is configured.
const DefaultDuration = 30 * time.Second

var (
	// ErrDurationNotPositive is returned when the acquisition window is zero or negative.
	ErrDurationNotPositive = errors.New("duration must be positive")
	// ErrUnknownCalibrationMode is returned for a calibration mode outside the enum.
	ErrUnknownCalibrationMode = errors.New("unknown calibration mode")
)

// ParseCalibrationMode converts a command-line string into a CalibrationMode.
func ParseCalibrationMode(s string) (CalibrationMode, error) {
	switch CalibrationMode(s) {
	case CalibrationPrompt, CalibrationFixed, CalibrationAuto:
		return CalibrationMode(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCalibrationMode, s)
	}
}

// Config is the metadata an operator sets for one run. It is constructed
// once per invocation and never mutated afterwards.
type Config struct {
	// Temperature is the operator-recorded ambient temperature in Celsius.
	Temperature float64
	// CalibratorTemperature is the physical temperature of the calibrator
	// load in Celsius, recorded so reference runs stay self-describing.
	CalibratorTemperature float64
	// Weather is a short free-form description of sky conditions.
	Weather string
	// Azimuth is the horn pointing angle from the horizontal, perpendicular
	// to the support axis, in degrees.
	Azimuth float64
	// Tilt is the horn pointing angle from the horizontal, parallel to the
	// support axis, in degrees. Sky-dip analysis varies this angle.
	Tilt float64
	// Duration is the acquisition window.
	Duration time.Duration
	// Calibration selects how the calibration value is resolved.
	Calibration CalibrationMode
	// CalibrationValue is the value applied when Calibration is CalibrationFixed.
	CalibrationValue float64
	// Pointing describes what the horn is looking at ("Sky", "Calibrator paddle").
	Pointing string
	// CalibratorInBeam records whether the calibrator paddle is in front of the horn.
	CalibratorInBeam bool
	// Units is the label for recorded sample values.
	Units string
}

// Validate checks the run invariants: a positive acquisition window, a known
// calibration mode and an azimuth inside the instrument-defined range.
func (c *Config) Validate(azimuthMin, azimuthMax float64) error {
	if c.Duration <= 0 {
		return ErrDurationNotPositive
	}

	if _, err := ParseCalibrationMode(string(c.Calibration)); err != nil {
		return err
	}

	if c.Azimuth < azimuthMin || c.Azimuth > azimuthMax {
		return fmt.Errorf("azimuth %.2f outside instrument range [%.2f, %.2f]",
			c.Azimuth, azimuthMin, azimuthMax)
	}

	return nil
}

// CalibrationSource records how a calibration value was obtained.
type CalibrationSource string

const (
	// CalibrationFromOperator means the value came from the console prompt.
	CalibrationFromOperator CalibrationSource = "operator"
	// CalibrationFromConfig means a fixed value was applied without interaction.
	CalibrationFromConfig CalibrationSource = "fixed"
	// CalibrationFromInstrument means the instrument's own state was accepted.
	CalibrationFromInstrument CalibrationSource = "instrument"
)

// CalibrationState is the calibration actually in effect for a run.
// It is immutable once the acquisition loop starts.
type CalibrationState struct {
	// Value is the calibration value applied to (or read from) the instrument.
	Value float64
	// Source records how the value was resolved.
	Source CalibrationSource
}

// Sample is one instrument reading tagged with its offset from run start.
type Sample struct {
	// Elapsed is the monotonic offset from the start of the run.
	Elapsed time.Duration
	// Value is the raw reading in the configured units.
	Value float64
}

// Outcome is the terminal status of a run.
type Outcome struct {
	// Completed is true when the acquisition window elapsed without a fault.
	Completed bool
	// Reason describes why a run was aborted. Empty for completed runs.
	Reason string
}

// Completed is the outcome of a run whose deadline elapsed normally.
func Completed() Outcome {
	return Outcome{Completed: true}
}

// Aborted is the outcome of a run cut short for the given reason.
func Aborted(reason string) Outcome {
	return Outcome{Reason: reason}
}

// String returns a short human-readable form, e.g. "completed" or
// "aborted: instrument fault".
func (o Outcome) String() string {
	if o.Completed {
		return "completed"
	}

	return "aborted: " + o.Reason
}

// Operator identifies who performed the run, for the record header.
type Operator struct {
	// Hostname is the machine the run was started from.
	Hostname string
	// Username is the system user who started the run.
	Username string
}

// Clone returns a deep copy of the operator.
func (o *Operator) Clone() *Operator {
	if o == nil {
		return nil
	}

	cloned := *o

	return &cloned
}

// Record is the immutable persisted artifact of one run.
type Record struct {
	// ID uniquely identifies the run.
	ID string
	// StartedAt is the wall-clock time the acquisition loop started.
	StartedAt time.Time
	// Config is the metadata the run was invoked with.
	Config Config
	// Calibration is the calibration state in effect during the run.
	Calibration CalibrationState
	// Samples are the readings in strict read order.
	Samples []Sample
	// Outcome is the terminal status of the run.
	Outcome Outcome
	// Operator identifies who performed the run.
	Operator *Operator
}

// Clone returns a copy of the record to avoid leaking internal references.
func (r *Record) Clone() *Record {
	samples := make([]Sample, len(r.Samples))
	copy(samples, r.Samples)

	return &Record{
		ID:          r.ID,
		StartedAt:   r.StartedAt,
		Config:      r.Config,
		Calibration: r.Calibration,
		Samples:     samples,
		Outcome:     r.Outcome,
		Operator:    r.Operator.Clone(),
	}
}

// MeanValue returns the arithmetic mean of the sample values, or 0 for an
// empty sequence. The analyzer averages each run down to one voltage.
func (r *Record) MeanValue() float64 {
	if len(r.Samples) == 0 {
		return 0
	}

	var sum float64
	for _, s := range r.Samples {
		sum += s.Value
	}

	return sum / float64(len(r.Samples))
}
