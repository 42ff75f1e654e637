package acquire

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aperez/cmb-readout/internal/config"
	"github.com/aperez/cmb-readout/internal/console"
	"github.com/aperez/cmb-readout/internal/domain/run"
	"github.com/aperez/cmb-readout/internal/instrument"
	"github.com/aperez/cmb-readout/internal/logger"
	"github.com/aperez/cmb-readout/internal/service/common"
	"github.com/aperez/cmb-readout/internal/telemetry"
)

// Options carries the operator-provided metadata and overrides for one run.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// Temperature is the ambient temperature in Celsius.
	Temperature float64
	// CalibratorTemperature is the calibrator load temperature in Celsius.
	CalibratorTemperature float64
	// Weather is a short description of sky conditions.
	Weather string
	// Azimuth is the horn pointing angle perpendicular to the support axis.
	Azimuth float64
	// Tilt is the horn pointing angle parallel to the support axis.
	Tilt float64
	// Duration is the acquisition window.
	Duration time.Duration
	// CalibrationMode is one of prompt, fixed, auto.
	CalibrationMode string
	// CalibrationValue is applied when CalibrationMode is fixed.
	CalibrationValue float64
	// Pointing overrides the derived pointing label when non-empty.
	Pointing string
	// CalibratorInBeam records that the calibrator paddle is in front of the horn.
	CalibratorInBeam bool
	// Instrument overrides the configured channel type when non-empty.
	Instrument string
	// Output overrides the configured storage backend when non-empty.
	Output string
	// NoTelemetry disables live sample publishing even when configured on.
	NoTelemetry bool
}

// runConfig builds the immutable run configuration from options and settings.
func (o *Options) runConfig(cfg *config.Config) (run.Config, error) {
	mode, err := run.ParseCalibrationMode(o.CalibrationMode)
	if err != nil {
		return run.Config{}, err
	}

	pointing := o.Pointing
	if pointing == "" {
		if o.CalibratorInBeam {
			pointing = "Calibrator paddle"
		} else {
			pointing = "Sky"
		}
	}

	rc := run.Config{
		Temperature:           o.Temperature,
		CalibratorTemperature: o.CalibratorTemperature,
		Weather:               o.Weather,
		Azimuth:               o.Azimuth,
		Tilt:                  o.Tilt,
		Duration:              o.Duration,
		Calibration:           mode,
		CalibrationValue:      o.CalibrationValue,
		Pointing:              pointing,
		CalibratorInBeam:      o.CalibratorInBeam,
		Units:                 cfg.Units,
	}

	if err := rc.Validate(cfg.Instrument.AzimuthMin, cfg.Instrument.AzimuthMax); err != nil {
		return run.Config{}, err
	}

	return rc, nil
}

// Run executes one acquisition run to completion or abort.
//
// An instrument fault mid-run still persists the partial record but Run
// returns an error carrying the abort reason, so the exit status reflects
// the outcome. Calibration faults, empty completed runs and persistence
// faults leave nothing behind and are surfaced as-is.
//
//nolint:cyclop,funlen // The pipeline is one linear sequence of stages.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "readout")

	// The serial line tolerates exactly one owner.
	if err := common.EnsureExclusiveRun(); err != nil {
		return err
	}

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	runCfg, err := opts.runConfig(cfg)
	if err != nil {
		return err
	}

	operator, err := common.DetectOperator()
	if err != nil {
		return err
	}

	channel, err := openChannel(cfg, opts.Instrument)
	if err != nil {
		return err
	}

	defer func() {
		if err := channel.Close(); err != nil {
			logger.WarnKV(ctx, "Failed to close instrument channel", "error", err)
		}
	}()

	repo, closeRepo, err := common.OpenRecordRepository(cfg, opts.Output)
	if err != nil {
		return err
	}
	defer closeRepo(ctx)

	publisher := openPublisher(ctx, cfg, opts.NoTelemetry)
	defer publisher.Close()

	runID := uuid.NewString()
	ctx = logger.WithKV(ctx, "run_id", runID)

	logger.InfoKV(ctx, "Starting run",
		"duration", runCfg.Duration,
		"calibration", runCfg.Calibration,
		"pointing", runCfg.Pointing,
		"operator", operator.Username+"@"+operator.Hostname,
	)

	calibration, err := ResolveCalibration(ctx, runCfg, channel, console.NewStdio())
	if err != nil {
		return fmt.Errorf("calibration: %w", err)
	}

	startedAt, samples, outcome := Collect(ctx, channel, runCfg.Duration, runID, publisher)

	rec, err := Finalize(runID, startedAt, runCfg, calibration, samples, outcome, operator)
	if err != nil {
		return err
	}

	// Persist even when the run was canceled: the record of a partial run
	// is still data, and the canceled context must not block the write.
	if err := repo.Save(context.WithoutCancel(ctx), rec); err != nil {
		return fmt.Errorf("persist run record: %w", err)
	}

	logger.InfoKV(ctx, "Run recorded",
		"outcome", outcome.String(),
		"samples", len(samples),
	)

	if !outcome.Completed {
		return fmt.Errorf("run aborted: %s", outcome.Reason)
	}

	return nil
}

// openChannel builds the instrument channel, honoring a CLI override.
func openChannel(cfg *config.Config, override string) (instrument.Channel, error) {
	channelType := cfg.Instrument.Type
	if override != "" {
		channelType = override
	}

	switch channelType {
	case "scpi":
		return instrument.OpenSCPI(cfg.Instrument)
	case "sim":
		return instrument.NewSim(cfg.Instrument), nil
	default:
		return nil, fmt.Errorf("unknown instrument type %q", channelType)
	}
}

// openPublisher connects the telemetry publisher when enabled, degrading to
// the no-op publisher when the broker is unreachable: live telemetry is a
// convenience, never a reason to skip a run.
func openPublisher(ctx context.Context, cfg *config.Config, disabled bool) telemetry.Publisher {
	if disabled || !cfg.Telemetry.Enabled {
		return telemetry.Nop{}
	}

	publisher, err := telemetry.NewMQTT(cfg.Telemetry)
	if err != nil {
		logger.WarnKV(ctx, "Telemetry unavailable, continuing without it", "error", err)

		return telemetry.Nop{}
	}

	return publisher
}
