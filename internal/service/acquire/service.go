package acquire

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aperez/cmb-readout/internal/console"
	"github.com/aperez/cmb-readout/internal/domain/run"
	"github.com/aperez/cmb-readout/internal/instrument"
	"github.com/aperez/cmb-readout/internal/logger"
	"github.com/aperez/cmb-readout/internal/telemetry"
)

// ErrNoSamples is returned when a run completes its full window without a
// single reading. A non-trivial duration always yields at least one sample,
// so an empty completed run means the data path is broken and nothing is
// persisted.
var ErrNoSamples = errors.New("completed run produced no samples")

// abortReasonFault is the recorded reason when the instrument fails mid-run.
const abortReasonFault = "instrument fault"

// abortReasonCanceled is the recorded reason when the operator cancels mid-run.
const abortReasonCanceled = "canceled by operator"

// progressInterval paces the operator-facing progress lines during a run.
// A variable only so tests can tighten the pace.
var progressInterval = 10 * time.Second

// ResolveCalibration produces the calibration state for a run, strictly
// before sampling starts.
//
// Mode prompt blocks on the operator console for a value and applies it.
// Mode fixed applies the configured value with no operator interaction.
// Mode auto accepts the value the instrument already holds, falling back to
// the prompt behavior when the instrument reports none. Any instrument
// rejection aborts the run before acquisition, with nothing persisted.
func ResolveCalibration(
	ctx context.Context,
	cfg run.Config,
	channel instrument.Channel,
	prompter console.Prompter,
) (run.CalibrationState, error) {
	var state run.CalibrationState

	switch cfg.Calibration {
	case run.CalibrationFixed:
		if err := channel.ApplyCalibration(ctx, cfg.CalibrationValue); err != nil {
			return state, fmt.Errorf("apply fixed calibration: %w", err)
		}

		return run.CalibrationState{
			Value:  cfg.CalibrationValue,
			Source: run.CalibrationFromConfig,
		}, nil

	case run.CalibrationAuto:
		value, err := channel.CalibrationValue(ctx)
		if err == nil {
			logger.InfoKV(ctx, "Accepted instrument calibration", "value", value)

			return run.CalibrationState{
				Value:  value,
				Source: run.CalibrationFromInstrument,
			}, nil
		}

		if !errors.Is(err, instrument.ErrNoCalibration) {
			return state, fmt.Errorf("read instrument calibration: %w", err)
		}

		logger.Info(ctx, "Instrument holds no calibration, asking operator")

		return promptAndApply(ctx, channel, prompter)

	case run.CalibrationPrompt:
		return promptAndApply(ctx, channel, prompter)

	default:
		return state, fmt.Errorf("%w: %q", run.ErrUnknownCalibrationMode, cfg.Calibration)
	}
}

// promptAndApply blocks on the console for a value and writes it to the instrument.
func promptAndApply(
	ctx context.Context,
	channel instrument.Channel,
	prompter console.Prompter,
) (run.CalibrationState, error) {
	var state run.CalibrationState

	value, err := prompter.PromptCalibration(ctx)
	if err != nil {
		return state, fmt.Errorf("prompt for calibration: %w", err)
	}

	if err := channel.ApplyCalibration(ctx, value); err != nil {
		return state, fmt.Errorf("apply operator calibration: %w", err)
	}

	return run.CalibrationState{
		Value:  value,
		Source: run.CalibrationFromOperator,
	}, nil
}

// Collect drives the bounded sampling loop.
//
// It reads the channel at whatever cadence the instrument paces, tagging
// each reading with its elapsed offset, until the deadline passes. A fatal
// instrument fault or cancellation ends the loop early with an aborted
// outcome; every sample gathered up to that point is kept. The returned
// start time anchors the record and the artifact filename.
func Collect(
	ctx context.Context,
	channel instrument.Channel,
	duration time.Duration,
	runID string,
	publisher telemetry.Publisher,
) (time.Time, []run.Sample, run.Outcome) {
	start := time.Now()
	deadline := start.Add(duration)

	var samples []run.Sample

	nextProgress := progressInterval

	for {
		// Cooperative cancellation, checked once per iteration so no
		// already-captured sample is ever lost.
		if ctx.Err() != nil {
			logger.InfoKV(ctx, "Run canceled", "samples", len(samples))

			return start, samples, run.Aborted(abortReasonCanceled)
		}

		if !time.Now().Before(deadline) {
			return start, samples, run.Completed()
		}

		// Stamped before the read so the offset never creeps past the
		// window while the instrument blocks on a reading.
		elapsed := time.Since(start)

		value, err := channel.ReadSample(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				logger.InfoKV(ctx, "Run canceled", "samples", len(samples))

				return start, samples, run.Aborted(abortReasonCanceled)
			}

			logger.ErrorKV(ctx, "Instrument fault, aborting run", "error", err, "samples", len(samples))

			return start, samples, run.Aborted(abortReasonFault)
		}

		sample := run.Sample{
			Elapsed: elapsed,
			Value:   value,
		}
		samples = append(samples, sample)

		publisher.PublishSample(ctx, runID, sample)

		if elapsed >= nextProgress {
			logger.InfoKV(ctx, "Acquisition in progress",
				"elapsed", elapsed.Round(time.Second),
				"samples", len(samples))

			nextProgress += progressInterval
		}
	}
}

// Finalize composes the immutable run record. The only validation is the
// empty-completed check: everything else was validated before the run.
func Finalize(
	runID string,
	startedAt time.Time,
	cfg run.Config,
	calibration run.CalibrationState,
	samples []run.Sample,
	outcome run.Outcome,
	operator *run.Operator,
) (*run.Record, error) {
	if outcome.Completed && len(samples) == 0 {
		return nil, ErrNoSamples
	}

	return &run.Record{
		ID:          runID,
		StartedAt:   startedAt,
		Config:      cfg,
		Calibration: calibration,
		Samples:     samples,
		Outcome:     outcome,
		Operator:    operator,
	}, nil
}
