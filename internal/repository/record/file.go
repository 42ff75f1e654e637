package record

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aperez/cmb-readout/internal/config"
	"github.com/aperez/cmb-readout/internal/domain/run"
)

// timeLayout frames the record filename, e.g. BW2016-11-10_10:20:50_Readout.txt.
const timeLayout = "2006-01-02_15:04:05"

// Header keys. The pointing-angle and temperature lines keep the wording
// (and the original's "celcius" spelling) of the files the analysis
// tooling already parses.
const (
	keyRunID       = "Run ID:"
	keyStarted     = "Started:"
	keyDuration    = "Duration (in s):"
	keyPointing    = "Pointing Position of the Horn:"
	keyAzimuth     = "Angle pointing (from horizontal perpendicular to supporting axis):"
	keyTilt        = "Angle pointing (from horizontal parallel to supporting axis):"
	keyCalibrator  = "Calibrator used:"
	keyTemperature = "Temperature Outside (in celcius):"
	keyCalTemp     = "Temperature of the calibrator (in celcius):"
	keyWeather     = "Weather:"
	keyUnits       = "Units:"
	keyCalibration = "Calibration:"
	keyOperator    = "Operator:"
	keyOutcome     = "Outcome:"
)

// FileRepository persists run records as text artifacts in a directory,
// one file per run, named <prefix><start-timestamp><extension>.
type FileRepository struct {
	// dir is the directory holding record files.
	dir string
	// prefix and extension frame the timestamp in filenames.
	prefix    string
	extension string
}

// NewFileRepository creates a repository writing into the configured directory.
func NewFileRepository(cfg config.StorageConfig) *FileRepository {
	return &FileRepository{
		dir:       filepath.Clean(cfg.Dir),
		prefix:    cfg.FilePrefix,
		extension: cfg.FileExtension,
	}
}

// Path returns the artifact path a record is stored under.
func (r *FileRepository) Path(record *run.Record) string {
	name := r.prefix + record.StartedAt.Format(timeLayout) + r.extension

	return filepath.Join(r.dir, name)
}

// Save writes the record to its artifact path. The write goes to a
// temporary file first and is renamed into place, so a partial record is
// never visible under the final name.
func (r *FileRepository) Save(_ context.Context, record *run.Record) error {
	if err := os.MkdirAll(r.dir, 0o750); err != nil {
		return fmt.Errorf("create record directory: %w", err)
	}

	path := r.Path(record)

	tmp, err := os.CreateTemp(r.dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp record file: %w", err)
	}

	if err := writeRecord(tmp, path, record); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())

		return err
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("close temp record file: %w", err)
	}

	if err := os.Chmod(tmp.Name(), config.DefaultFilePermissions); err != nil {
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("chmod record file: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("publish record file: %w", err)
	}

	return nil
}

// writeRecord streams the header and sample rows of one record.
func writeRecord(f *os.File, path string, record *run.Record) error {
	w := bufio.NewWriter(f)

	cfg := record.Config

	calibrator := "NO"
	if cfg.CalibratorInBeam {
		calibrator = "YES"
	}

	operator := ""
	if record.Operator != nil {
		operator = record.Operator.Username + "@" + record.Operator.Hostname
	}

	header := []string{
		path,
		fmt.Sprintf("%s %s", keyRunID, record.ID),
		fmt.Sprintf("%s %s", keyStarted, record.StartedAt.Format(time.RFC3339Nano)),
		fmt.Sprintf("%s %g", keyDuration, cfg.Duration.Seconds()),
		fmt.Sprintf("%s %s", keyPointing, cfg.Pointing),
		fmt.Sprintf("%s %.2f", keyAzimuth, cfg.Azimuth),
		fmt.Sprintf("%s %.2f", keyTilt, cfg.Tilt),
		fmt.Sprintf("%s %s", keyCalibrator, calibrator),
		fmt.Sprintf("%s %.2f", keyTemperature, cfg.Temperature),
		fmt.Sprintf("%s %.2f", keyCalTemp, cfg.CalibratorTemperature),
		fmt.Sprintf("%s %s", keyWeather, cfg.Weather),
		fmt.Sprintf("%s %s", keyUnits, cfg.Units),
		fmt.Sprintf("%s %.6f (%s)", keyCalibration, record.Calibration.Value, record.Calibration.Source),
		fmt.Sprintf("%s %s", keyOperator, operator),
		fmt.Sprintf("%s %s", keyOutcome, record.Outcome),
	}

	for _, line := range header {
		if _, err := fmt.Fprintf(w, "# %s\n", line); err != nil {
			return fmt.Errorf("write record header: %w", err)
		}
	}

	for _, s := range record.Samples {
		if _, err := fmt.Fprintf(w, "%.9e %.9e\n", s.Elapsed.Seconds(), s.Value); err != nil {
			return fmt.Errorf("write record sample: %w", err)
		}
	}

	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush record file: %w", err)
	}

	return nil
}

// Load reads a record back from its artifact path.
//
//nolint:cyclop,funlen // One branch per header key, flat and mechanical.
func (r *FileRepository) Load(_ context.Context, ref string) (*run.Record, error) {
	f, err := os.Open(filepath.Clean(ref))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("open record file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	record := new(run.Record)

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if rest, ok := strings.CutPrefix(line, "# "); ok {
			if err := parseHeaderLine(record, strings.TrimSpace(rest)); err != nil {
				return nil, fmt.Errorf("parse record header %q: %w", ref, err)
			}

			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 2 {
			return nil, fmt.Errorf("malformed sample row %q in %q", line, ref)
		}

		elapsed, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, fmt.Errorf("parse elapsed in %q: %w", ref, err)
		}

		value, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, fmt.Errorf("parse value in %q: %w", ref, err)
		}

		record.Samples = append(record.Samples, run.Sample{
			Elapsed: time.Duration(elapsed * float64(time.Second)),
			Value:   value,
		})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read record file: %w", err)
	}

	return record, nil
}

// parseHeaderLine fills one record field from a header line.
//
//nolint:cyclop,funlen // One branch per header key, flat and mechanical.
func parseHeaderLine(record *run.Record, line string) error {
	value := func(key string) string {
		return strings.TrimSpace(strings.TrimPrefix(line, key))
	}

	var err error

	switch {
	case strings.HasPrefix(line, keyRunID):
		record.ID = value(keyRunID)
	case strings.HasPrefix(line, keyStarted):
		record.StartedAt, err = time.Parse(time.RFC3339Nano, value(keyStarted))
	case strings.HasPrefix(line, keyDuration):
		var seconds float64
		if seconds, err = strconv.ParseFloat(value(keyDuration), 64); err == nil {
			record.Config.Duration = time.Duration(seconds * float64(time.Second))
		}
	case strings.HasPrefix(line, keyPointing):
		record.Config.Pointing = value(keyPointing)
	case strings.HasPrefix(line, keyAzimuth):
		record.Config.Azimuth, err = strconv.ParseFloat(value(keyAzimuth), 64)
	case strings.HasPrefix(line, keyTilt):
		record.Config.Tilt, err = strconv.ParseFloat(value(keyTilt), 64)
	case strings.HasPrefix(line, keyCalibrator):
		record.Config.CalibratorInBeam = value(keyCalibrator) == "YES"
	case strings.HasPrefix(line, keyTemperature):
		record.Config.Temperature, err = strconv.ParseFloat(value(keyTemperature), 64)
	case strings.HasPrefix(line, keyCalTemp):
		record.Config.CalibratorTemperature, err = strconv.ParseFloat(value(keyCalTemp), 64)
	case strings.HasPrefix(line, keyWeather):
		record.Config.Weather = value(keyWeather)
	case strings.HasPrefix(line, keyUnits):
		record.Config.Units = value(keyUnits)
	case strings.HasPrefix(line, keyCalibration):
		record.Calibration, err = parseCalibration(value(keyCalibration))
	case strings.HasPrefix(line, keyOperator):
		record.Operator = parseOperator(value(keyOperator))
	case strings.HasPrefix(line, keyOutcome):
		record.Outcome = parseOutcome(value(keyOutcome))
	default:
		// The first header line is the artifact path; unknown lines are
		// tolerated so hand-annotated files still load.
	}

	return err
}

// parseCalibration reads "0.750000 (operator)" back into a CalibrationState.
func parseCalibration(s string) (run.CalibrationState, error) {
	var state run.CalibrationState

	fields := strings.Fields(s)
	if len(fields) == 0 {
		return state, errors.New("empty calibration header")
	}

	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return state, fmt.Errorf("parse calibration value: %w", err)
	}

	state.Value = v

	if len(fields) > 1 {
		state.Source = run.CalibrationSource(strings.Trim(fields[1], "()"))
	}

	return state, nil
}

// parseOperator reads "user@host" back into an Operator.
func parseOperator(s string) *run.Operator {
	if s == "" {
		return nil
	}

	username, hostname, found := strings.Cut(s, "@")
	if !found {
		return &run.Operator{Username: s}
	}

	return &run.Operator{
		Hostname: hostname,
		Username: username,
	}
}

// parseOutcome reads "completed" or "aborted: reason" back into an Outcome.
func parseOutcome(s string) run.Outcome {
	if s == "completed" {
		return run.Completed()
	}

	return run.Aborted(strings.TrimSpace(strings.TrimPrefix(s, "aborted:")))
}

// List returns the paths of all record artifacts in the directory, oldest
// first. The timestamp layout sorts lexicographically.
func (r *FileRepository) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("list record directory: %w", err)
	}

	var refs []string

	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, r.prefix) || !strings.HasSuffix(name, r.extension) {
			continue
		}

		refs = append(refs, filepath.Join(r.dir, name))
	}

	sort.Strings(refs)

	return refs, nil
}
