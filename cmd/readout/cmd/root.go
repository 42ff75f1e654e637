package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aperez/cmb-readout/internal/config"
	"github.com/aperez/cmb-readout/internal/domain/run"
	"github.com/aperez/cmb-readout/internal/logger"
	"github.com/aperez/cmb-readout/internal/service/acquire"
	"github.com/aperez/cmb-readout/internal/version"
)

var (
	// configPath stores the path to the configuration YAML file.
	configPath string
	// logLevel sets the minimum level for console logging.
	logLevel string

	// options collects the run metadata and overrides from flags.
	options acquire.Options

	// rootCmd represents the base command executing one acquisition run.
	rootCmd = &cobra.Command{
		Use:   "readout",
		Short: "Run one bounded acquisition against the receiver.",
		Long: `Executes a single acquisition run: resolves the calibration, samples the
receiver until the configured duration elapses and persists a timestamped
record annotated with the run metadata (temperature, weather, pointing
angles, calibration, outcome).

Calibration modes:
  prompt  ask the operator for a calibration value before sampling (default)
  fixed   apply --cal-value without operator interaction
  auto    accept the calibration the instrument already holds, prompting
          only when the instrument reports none

Ctrl-C aborts the run cooperatively: samples captured so far are still
persisted and the exit status is non-zero. The exit status is zero only for
a completed run.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			if level, ok := logger.ParseLogLevel(logLevel); ok {
				logger.SetLevel(level)
			}

			options.ConfigPath = configPath

			return acquire.Run(ctx, &options)
		},
	}
)

// Execute runs the readout CLI and exits with non-zero status on error.
func Execute() {
	rootCmd.AddCommand(version.Command())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "minimum log level (debug, info, warn, error)")

	rootCmd.Flags().Float64VarP(&options.Temperature, "temperature", "t", 0, "ambient temperature in Celsius")
	rootCmd.Flags().Float64Var(&options.CalibratorTemperature, "cal-temp", 0,
		"calibrator load temperature in Celsius")
	rootCmd.Flags().StringVarP(&options.Weather, "weather", "w", "", "short description of sky conditions")
	rootCmd.Flags().Float64VarP(&options.Azimuth, "azimuth", "a", 0,
		"horn angle from horizontal, perpendicular to the support axis (degrees)")
	rootCmd.Flags().Float64Var(&options.Tilt, "tilt", 0,
		"horn angle from horizontal, parallel to the support axis (degrees)")
	rootCmd.Flags().DurationVarP(&options.Duration, "duration", "d", run.DefaultDuration, "acquisition window")
	rootCmd.Flags().StringVar(&options.CalibrationMode, "calibration", string(run.CalibrationPrompt),
		"calibration mode (prompt, fixed, auto)")
	rootCmd.Flags().Float64Var(&options.CalibrationValue, "cal-value", 0, "calibration value for --calibration=fixed")
	rootCmd.Flags().StringVar(&options.Pointing, "pointing", "", "override the derived pointing label")
	rootCmd.Flags().BoolVar(&options.CalibratorInBeam, "calibrator", false, "calibrator paddle is in front of the horn")
	rootCmd.Flags().StringVar(&options.Instrument, "instrument", "", "instrument channel override (scpi, sim)")
	rootCmd.Flags().StringVar(&options.Output, "output", "", "storage backend override (file, sqlite)")
	rootCmd.Flags().BoolVar(&options.NoTelemetry, "no-telemetry", false, "disable live sample publishing")
}
