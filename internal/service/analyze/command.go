package analyze

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/aperez/cmb-readout/internal/config"
	"github.com/aperez/cmb-readout/internal/logger"
	"github.com/aperez/cmb-readout/internal/repository/record"
	"github.com/aperez/cmb-readout/internal/service/common"
)

// Options controls one analysis pass over persisted run records.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// Glob selects sky run artifacts directly, overriding the repository listing.
	Glob string
	// HotRef and ColdRef reference the hot/cold calibration runs.
	HotRef  string
	ColdRef string
	// THot and TCold are the known reference temperatures in kelvin.
	THot  float64
	TCold float64
	// Output override for the storage backend ("file" or "sqlite").
	Output string
	// Out receives the report. Defaults to stdout.
	Out io.Writer
}

// DefaultTHot is ice-bath ambient in kelvin, matching the bench blackbody.
const DefaultTHot = 275.15

// DefaultTCold is liquid nitrogen in kelvin.
const DefaultTCold = 77

// errMissingReference is returned when a hot or cold reference is not given.
var errMissingReference = errors.New("both --hot and --cold reference runs are required")

// Run executes one analysis pass: calibrate, reduce, fit, report.
//
//nolint:cyclop,funlen // The pass is one linear sequence of stages.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "readout-analyze")

	if opts.Out == nil {
		opts.Out = os.Stdout
	}

	if opts.HotRef == "" || opts.ColdRef == "" {
		return errMissingReference
	}

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	repo, closeRepo, err := common.OpenRecordRepository(cfg, opts.Output)
	if err != nil {
		return err
	}
	defer closeRepo(ctx)

	calibration, err := calibrationFromRuns(ctx, repo, opts)
	if err != nil {
		return err
	}

	refs, err := skyRefs(ctx, repo, opts)
	if err != nil {
		return err
	}

	var points []SkyDipPoint

	for _, ref := range refs {
		if ref == opts.HotRef || ref == opts.ColdRef {
			continue
		}

		rec, err := repo.Load(ctx, ref)
		if err != nil {
			return fmt.Errorf("load run %q: %w", ref, err)
		}

		if rec.Config.CalibratorInBeam || len(rec.Samples) == 0 {
			logger.InfoKV(ctx, "Skipping run", "ref", ref, "calibrator_in_beam", rec.Config.CalibratorInBeam)

			continue
		}

		point := SkyDipPoint{
			Tilt:        rec.Config.Tilt,
			Temperature: calibration.Temperature(rec.MeanValue()),
		}
		points = append(points, point)

		fmt.Fprintf(opts.Out, "%-40s tilt=%6.2f  mean=%.6f %s  T=%7.2f K\n",
			ref, point.Tilt, rec.MeanValue(), rec.Config.Units, point.Temperature)
	}

	fit, err := FitSkyDip(points)
	if err != nil {
		return err
	}

	fmt.Fprintf(opts.Out, "\nEstimated CMB temperature:        %.2f K  (%d runs)\n", fit.TCMB, fit.Points)
	fmt.Fprintf(opts.Out, "Estimated vertical contribution:  %.2f K\n", fit.TVert)
	fmt.Fprintf(opts.Out, "Calibration: T = %.3f * V + %.3f\n", calibration.Slope, calibration.Offset)

	return nil
}

// calibrationFromRuns reduces the hot/cold reference runs to mean voltages
// and derives the linear calibration.
func calibrationFromRuns(ctx context.Context, repo record.Repository, opts *Options) (Calibration, error) {
	tHot := opts.THot
	if tHot == 0 {
		tHot = DefaultTHot
	}

	tCold := opts.TCold
	if tCold == 0 {
		tCold = DefaultTCold
	}

	hot, err := repo.Load(ctx, opts.HotRef)
	if err != nil {
		return Calibration{}, fmt.Errorf("load hot reference %q: %w", opts.HotRef, err)
	}

	cold, err := repo.Load(ctx, opts.ColdRef)
	if err != nil {
		return Calibration{}, fmt.Errorf("load cold reference %q: %w", opts.ColdRef, err)
	}

	return CalibrationFromReferences(hot.MeanValue(), cold.MeanValue(), tHot, tCold)
}

// skyRefs selects the runs to analyze: an explicit glob, or everything the
// repository holds.
func skyRefs(ctx context.Context, repo record.Repository, opts *Options) ([]string, error) {
	if opts.Glob == "" {
		return repo.List(ctx)
	}

	refs, err := filepath.Glob(opts.Glob)
	if err != nil {
		return nil, fmt.Errorf("expand glob %q: %w", opts.Glob, err)
	}

	return refs, nil
}
