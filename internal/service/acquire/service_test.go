package acquire

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/aperez/cmb-readout/internal/domain/run"
	"github.com/aperez/cmb-readout/internal/instrument"
	"github.com/aperez/cmb-readout/internal/logger"
	"github.com/aperez/cmb-readout/internal/telemetry"
)

// fakeChannel is an in-memory instrument for pipeline tests.
type fakeChannel struct {
	// reads counts ReadSample calls.
	reads int
	// failAt makes ReadSample fault on the n-th call (1-based). 0 disables.
	failAt int
	// value is returned from successful reads.
	value float64
	// delay blocks each read, modeling instrument pacing.
	delay time.Duration
	// calValue and hasCal model the device's calibration state.
	calValue float64
	hasCal   bool
	// rejectCal makes ApplyCalibration refuse any value.
	rejectCal bool
	// applied records values written via ApplyCalibration.
	applied []float64
}

func (f *fakeChannel) ReadSample(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	f.reads++
	if f.failAt > 0 && f.reads >= f.failAt {
		return 0, fmt.Errorf("%w: line dropped", instrument.ErrInstrument)
	}

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	return f.value, nil
}

func (f *fakeChannel) CalibrationValue(context.Context) (float64, error) {
	if !f.hasCal {
		return 0, instrument.ErrNoCalibration
	}

	return f.calValue, nil
}

func (f *fakeChannel) ApplyCalibration(_ context.Context, value float64) error {
	if f.rejectCal {
		return instrument.ErrCalibrationRejected
	}

	f.applied = append(f.applied, value)

	return nil
}

func (f *fakeChannel) Close() error {
	return nil
}

// fakePrompter scripts the operator console.
type fakePrompter struct {
	// value is returned from each prompt.
	value float64
	// prompts counts how many times the operator was asked.
	prompts int
}

func (f *fakePrompter) PromptCalibration(context.Context) (float64, error) {
	f.prompts++

	return f.value, nil
}

// TestCollect_CompletesWithinDeadline checks a fault-free run completes with
// ordered samples whose elapsed times stay within the window.
func TestCollect_CompletesWithinDeadline(t *testing.T) {
	t.Parallel()

	channel := &fakeChannel{value: 0.1, delay: time.Millisecond}
	duration := 50 * time.Millisecond

	_, samples, outcome := Collect(context.Background(), channel, duration, "run-1", telemetry.Nop{})

	require.True(t, outcome.Completed)
	require.NotEmpty(t, samples)

	for i := 1; i < len(samples); i++ {
		require.LessOrEqual(t, samples[i-1].Elapsed, samples[i].Elapsed)
	}

	// Every sample is stamped before its read starts, so no offset may
	// exceed the window.
	last := samples[len(samples)-1].Elapsed
	require.LessOrEqual(t, last, duration)
}

// TestCollect_SlowReadKeepsElapsedWithinWindow pins the stamp-before-read
// behavior: a reading that starts just inside the deadline and returns well
// after it must not carry an offset past the window.
func TestCollect_SlowReadKeepsElapsedWithinWindow(t *testing.T) {
	t.Parallel()

	duration := 30 * time.Millisecond
	channel := &fakeChannel{value: 0.1, delay: 25 * time.Millisecond}

	_, samples, outcome := Collect(context.Background(), channel, duration, "run-1", telemetry.Nop{})

	require.True(t, outcome.Completed)
	require.NotEmpty(t, samples)

	for _, s := range samples {
		require.LessOrEqual(t, s.Elapsed, duration)
	}
}

// TestCollect_ReportsProgress verifies the loop logs periodic progress lines
// while sampling. Not parallel: it tightens the package-level progress pace.
func TestCollect_ReportsProgress(t *testing.T) {
	old := progressInterval
	progressInterval = 10 * time.Millisecond
	t.Cleanup(func() { progressInterval = old })

	core, logs := observer.New(zapcore.InfoLevel)
	ctx := logger.ToContext(context.Background(), zap.New(core).Sugar())

	channel := &fakeChannel{value: 0.1, delay: 5 * time.Millisecond}

	_, samples, outcome := Collect(ctx, channel, 60*time.Millisecond, "run-1", telemetry.Nop{})

	require.True(t, outcome.Completed)
	require.NotEmpty(t, samples)
	require.NotZero(t, logs.FilterMessage("Acquisition in progress").Len())
}

// TestCollect_FaultPreservesSamples verifies a fault at read k keeps exactly
// k-1 samples and yields an aborted outcome.
func TestCollect_FaultPreservesSamples(t *testing.T) {
	t.Parallel()

	channel := &fakeChannel{value: 0.1, failAt: 5}

	_, samples, outcome := Collect(context.Background(), channel, time.Hour, "run-1", telemetry.Nop{})

	require.False(t, outcome.Completed)
	require.Equal(t, "instrument fault", outcome.Reason)
	require.Len(t, samples, 4)
}

// TestCollect_CancellationPreservesSamples verifies operator cancellation is
// noticed at the next iteration and loses no data.
func TestCollect_CancellationPreservesSamples(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())

	channel := &fakeChannel{value: 0.1}

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, samples, outcome := Collect(ctx, channel, time.Hour, "run-1", telemetry.Nop{})

	require.False(t, outcome.Completed)
	require.Equal(t, "canceled by operator", outcome.Reason)
	require.Len(t, samples, channel.reads)
}

// TestResolveCalibration_Fixed applies the configured value and never prompts.
func TestResolveCalibration_Fixed(t *testing.T) {
	t.Parallel()

	channel := new(fakeChannel)
	prompter := new(fakePrompter)

	cfg := run.Config{
		Calibration:      run.CalibrationFixed,
		CalibrationValue: 0.8,
	}

	state, err := ResolveCalibration(context.Background(), cfg, channel, prompter)
	require.NoError(t, err)
	require.InDelta(t, 0.8, state.Value, 1e-12)
	require.Equal(t, run.CalibrationFromConfig, state.Source)
	require.Equal(t, []float64{0.8}, channel.applied)
	require.Zero(t, prompter.prompts)
}

// TestResolveCalibration_Prompt asks the operator exactly once and applies the answer.
func TestResolveCalibration_Prompt(t *testing.T) {
	t.Parallel()

	channel := new(fakeChannel)
	prompter := &fakePrompter{value: 0.42}

	cfg := run.Config{Calibration: run.CalibrationPrompt}

	state, err := ResolveCalibration(context.Background(), cfg, channel, prompter)
	require.NoError(t, err)
	require.Equal(t, 1, prompter.prompts)
	require.InDelta(t, 0.42, state.Value, 1e-12)
	require.Equal(t, run.CalibrationFromOperator, state.Source)
	require.Equal(t, []float64{0.42}, channel.applied)
}

// TestResolveCalibration_AutoAcceptsInstrument takes the device's value without prompting.
func TestResolveCalibration_AutoAcceptsInstrument(t *testing.T) {
	t.Parallel()

	channel := &fakeChannel{hasCal: true, calValue: 0.6}
	prompter := new(fakePrompter)

	cfg := run.Config{Calibration: run.CalibrationAuto}

	state, err := ResolveCalibration(context.Background(), cfg, channel, prompter)
	require.NoError(t, err)
	require.InDelta(t, 0.6, state.Value, 1e-12)
	require.Equal(t, run.CalibrationFromInstrument, state.Source)
	require.Zero(t, prompter.prompts)
	require.Empty(t, channel.applied)
}

// TestResolveCalibration_AutoFallsBackToPrompt prompts when the device holds nothing.
func TestResolveCalibration_AutoFallsBackToPrompt(t *testing.T) {
	t.Parallel()

	channel := new(fakeChannel)
	prompter := &fakePrompter{value: 0.3}

	cfg := run.Config{Calibration: run.CalibrationAuto}

	state, err := ResolveCalibration(context.Background(), cfg, channel, prompter)
	require.NoError(t, err)
	require.Equal(t, 1, prompter.prompts)
	require.Equal(t, run.CalibrationFromOperator, state.Source)
}

// TestResolveCalibration_Rejection surfaces the instrument's refusal.
func TestResolveCalibration_Rejection(t *testing.T) {
	t.Parallel()

	channel := &fakeChannel{rejectCal: true}
	prompter := &fakePrompter{value: 0.3}

	cfg := run.Config{
		Calibration:      run.CalibrationFixed,
		CalibrationValue: 0.5,
	}

	_, err := ResolveCalibration(context.Background(), cfg, channel, prompter)
	require.ErrorIs(t, err, instrument.ErrCalibrationRejected)
}

// TestFinalize_RejectsEmptyCompletedRun surfaces the data-integrity fault.
func TestFinalize_RejectsEmptyCompletedRun(t *testing.T) {
	t.Parallel()

	_, err := Finalize("run-1", time.Now(), run.Config{}, run.CalibrationState{},
		nil, run.Completed(), nil)
	require.ErrorIs(t, err, ErrNoSamples)

	// An aborted run may legitimately be empty.
	rec, err := Finalize("run-1", time.Now(), run.Config{}, run.CalibrationState{},
		nil, run.Aborted("instrument fault"), nil)
	require.NoError(t, err)
	require.False(t, rec.Outcome.Completed)
}

// TestFinalize_ComposesRecord binds config, calibration, samples and outcome.
func TestFinalize_ComposesRecord(t *testing.T) {
	t.Parallel()

	started := time.Now()
	cfg := run.Config{
		Temperature: 4.2,
		Weather:     "clear",
		Azimuth:     37.5,
		Duration:    30 * time.Second,
		Calibration: run.CalibrationPrompt,
	}
	samples := []run.Sample{{Elapsed: time.Second, Value: 0.1}}

	rec, err := Finalize("run-1", started, cfg,
		run.CalibrationState{Value: 0.7, Source: run.CalibrationFromOperator},
		samples, run.Completed(), &run.Operator{Hostname: "bench-pc", Username: "aperez"})
	require.NoError(t, err)

	require.Equal(t, "run-1", rec.ID)
	require.Equal(t, started, rec.StartedAt)
	require.Equal(t, cfg, rec.Config)
	require.Equal(t, samples, rec.Samples)
	require.True(t, rec.Outcome.Completed)
}
