package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aperez/cmb-readout/internal/config"
	"github.com/aperez/cmb-readout/internal/logger"
	"github.com/aperez/cmb-readout/internal/service/analyze"
	"github.com/aperez/cmb-readout/internal/version"
)

var (
	// configPath stores the path to the configuration YAML file.
	configPath string
	// logLevel sets the minimum level for console logging.
	logLevel string

	// options collects the analysis parameters from flags.
	options analyze.Options

	// rootCmd represents the base command running one analysis pass.
	rootCmd = &cobra.Command{
		Use:   "readout-analyze",
		Short: "Estimate the CMB temperature from recorded runs.",
		Long: `Post-processes persisted run records. Two reference runs taken against the
hot and cold blackbody loads calibrate the receiver (volts to kelvin); every
other run is reduced to a mean temperature and the sky-dip model

    T(theta) = T_cmb + T_vert/sin(theta)

is fitted across the recorded tilt angles to estimate the CMB temperature.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			if level, ok := logger.ParseLogLevel(logLevel); ok {
				logger.SetLevel(level)
			}

			options.ConfigPath = configPath
			options.Out = cmd.OutOrStdout()

			return analyze.Run(ctx, &options)
		},
	}
)

// Execute runs the readout-analyze CLI and exits with non-zero status on error.
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

	rootCmd.Flags().StringVarP(&options.Glob, "glob", "g", "", "glob of sky run artifacts (defaults to the full repository)")
	rootCmd.Flags().StringVar(&options.HotRef, "hot", "", "reference of the hot blackbody run")
	rootCmd.Flags().StringVar(&options.ColdRef, "cold", "", "reference of the cold blackbody run")
	rootCmd.Flags().Float64Var(&options.THot, "t-hot", analyze.DefaultTHot, "hot reference temperature in kelvin")
	rootCmd.Flags().Float64Var(&options.TCold, "t-cold", analyze.DefaultTCold, "cold reference temperature in kelvin")
	rootCmd.Flags().StringVar(&options.Output, "output", "", "storage backend override (file, sqlite)")

	for _, required := range []string{"hot", "cold"} {
		if err := rootCmd.MarkFlagRequired(required); err != nil {
			panic(err)
		}
	}
}
