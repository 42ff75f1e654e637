package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// InstrumentConfig selects and configures the instrument channel.
type InstrumentConfig struct {
	// Type selects the channel implementation: "scpi" or "sim".
	Type string `yaml:"type"`
	// Port is the serial device for the SCPI channel (e.g. /dev/ttyUSB0).
	Port string `yaml:"port"`
	// BaudRate is the serial line speed for the SCPI channel.
	BaudRate uint `yaml:"baud_rate"`
	// ReadTimeout bounds a single sample read on the serial line.
	ReadTimeout time.Duration `yaml:"read_timeout"`
	// SimInterval is the sampling cadence of the simulated channel.
	SimInterval time.Duration `yaml:"sim_interval"`
	// SimLevel is the mean value produced by the simulated channel.
	SimLevel float64 `yaml:"sim_level"`
	// SimNoise is the peak noise amplitude of the simulated channel.
	SimNoise float64 `yaml:"sim_noise"`
	// AzimuthMin and AzimuthMax bound the horn pointing angle in degrees.
	AzimuthMin float64 `yaml:"azimuth_min"`
	AzimuthMax float64 `yaml:"azimuth_max"`
}

// StorageConfig selects and configures the run record repository.
type StorageConfig struct {
	// Backend selects the repository: "file" or "sqlite".
	Backend string `yaml:"backend"`
	// Dir is the directory for file-backend record artifacts.
	Dir string `yaml:"dir"`
	// FilePrefix and FileExtension frame the timestamp in record filenames,
	// e.g. "BW" + "2016-11-10_10:20:50" + "_Readout.txt".
	FilePrefix    string `yaml:"file_prefix"`
	FileExtension string `yaml:"file_extension"`
	// SQLitePath is the database file for the sqlite backend.
	SQLitePath string `yaml:"sqlite_path"`
}

// TelemetryConfig configures the optional live sample publisher.
type TelemetryConfig struct {
	// Enabled turns MQTT publishing of live samples on.
	Enabled bool `yaml:"enabled"`
	// BrokerURL is the MQTT broker, e.g. tcp://bench-pi:1883.
	BrokerURL string `yaml:"broker_url"`
	// ClientID identifies this publisher to the broker.
	ClientID string `yaml:"client_id"`
	// TopicPrefix is prepended to run-scoped topics.
	TopicPrefix string `yaml:"topic_prefix"`
}

// Config holds bench settings shared by the readout binaries.
type Config struct {
	// Instrument configures the receiver channel.
	Instrument InstrumentConfig `yaml:"instrument"`
	// Storage configures where run records are persisted.
	Storage StorageConfig `yaml:"storage"`
	// Telemetry configures optional live sample publishing.
	Telemetry TelemetryConfig `yaml:"telemetry"`
	// Units is the label for recorded sample values.
	Units string `yaml:"units"`
}

const (
	// DefaultConfigFilename is the default filename for bench settings.
	DefaultConfigFilename = "readout-settings.yaml"

	// DefaultBaudRate is the serial line speed used when none is configured.
	DefaultBaudRate uint = 9600

	// DefaultReadTimeout bounds a single serial sample read when none is configured.
	DefaultReadTimeout = 2 * time.Second

	// DefaultSimInterval approximates the real meter's ~8 readings per second.
	DefaultSimInterval = 125 * time.Millisecond

	// DefaultFilePermissions is the default file permission for written files.
	DefaultFilePermissions = 0o600

	// DefaultAzimuthMax is the upper pointing bound when none is configured.
	DefaultAzimuthMax float64 = 360

	// DefaultUnits labels sample values when none is configured.
	DefaultUnits = "Volts"
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errUnknownInstrument is returned for an instrument type outside the known set.
	errUnknownInstrument = errors.New("instrument type must be one of: scpi, sim")
	// errUnknownBackend is returned for a storage backend outside the known set.
	errUnknownBackend = errors.New("storage backend must be one of: file, sqlite")
	// errPortRequired is returned when the SCPI channel has no serial port.
	errPortRequired = errors.New("instrument port must be provided for scpi type")
	// errBrokerRequired is returned when telemetry is enabled without a broker.
	errBrokerRequired = errors.New("telemetry broker URL must be provided when enabled")
	// errAzimuthRange is returned when the azimuth bounds are inverted.
	errAzimuthRange = errors.New("azimuth_min must be below azimuth_max")
)

// Load reads configuration from the provided path and validates essential fields.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes settings to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks the provided settings for required fields and fills defaults.
//
//nolint:cyclop // Field-by-field validation is flat and readable as-is.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	switch cfg.Instrument.Type {
	case "":
		cfg.Instrument.Type = "sim"
	case "scpi":
		if cfg.Instrument.Port == "" {
			return errPortRequired
		}
	case "sim":
	default:
		return fmt.Errorf("%w, got %q", errUnknownInstrument, cfg.Instrument.Type)
	}

	if cfg.Instrument.BaudRate == 0 {
		cfg.Instrument.BaudRate = DefaultBaudRate
	}

	if cfg.Instrument.ReadTimeout <= 0 {
		cfg.Instrument.ReadTimeout = DefaultReadTimeout
	}

	if cfg.Instrument.SimInterval <= 0 {
		cfg.Instrument.SimInterval = DefaultSimInterval
	}

	if cfg.Instrument.AzimuthMax == 0 {
		cfg.Instrument.AzimuthMax = DefaultAzimuthMax
	}

	if cfg.Instrument.AzimuthMin >= cfg.Instrument.AzimuthMax {
		return errAzimuthRange
	}

	switch cfg.Storage.Backend {
	case "":
		cfg.Storage.Backend = "file"
	case "file", "sqlite":
	default:
		return fmt.Errorf("%w, got %q", errUnknownBackend, cfg.Storage.Backend)
	}

	if cfg.Storage.Dir == "" {
		cfg.Storage.Dir = "Data"
	}

	if cfg.Storage.FileExtension == "" {
		cfg.Storage.FileExtension = "_Readout.txt"
	}

	if cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = filepath.Join(cfg.Storage.Dir, "runs.db")
	}

	if cfg.Telemetry.Enabled {
		if cfg.Telemetry.BrokerURL == "" {
			return errBrokerRequired
		}

		if _, err := url.Parse(cfg.Telemetry.BrokerURL); err != nil {
			return fmt.Errorf("invalid telemetry broker URL: %w", err)
		}

		if cfg.Telemetry.ClientID == "" {
			cfg.Telemetry.ClientID = "cmb-readout"
		}

		if cfg.Telemetry.TopicPrefix == "" {
			cfg.Telemetry.TopicPrefix = "readout"
		}
	}

	if cfg.Units == "" {
		cfg.Units = DefaultUnits
	}

	return nil
}
