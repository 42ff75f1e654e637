package record

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	// Registers the sqlite3 driver.
	_ "github.com/mattn/go-sqlite3"

	"github.com/aperez/cmb-readout/internal/domain/run"
)

const (
	createRunsTable = `CREATE TABLE IF NOT EXISTS runs (
		"ID"               TEXT NOT NULL PRIMARY KEY,
		"StartedAt"        TEXT NOT NULL,
		"DurationNs"       INTEGER NOT NULL,
		"Temperature"      REAL,
		"CalTemperature"   REAL,
		"Weather"          TEXT,
		"Azimuth"          REAL,
		"Tilt"             REAL,
		"Pointing"         TEXT,
		"CalibratorInBeam" INTEGER,
		"Units"            TEXT,
		"CalValue"         REAL,
		"CalSource"        TEXT,
		"Completed"        INTEGER NOT NULL,
		"AbortReason"      TEXT,
		"OperatorHost"     TEXT,
		"OperatorUser"     TEXT
	);`
	createSamplesTable = `CREATE TABLE IF NOT EXISTS samples (
		"RunID"     TEXT NOT NULL,
		"Seq"       INTEGER NOT NULL,
		"ElapsedNs" INTEGER NOT NULL,
		"Value"     REAL NOT NULL,
		PRIMARY KEY ("RunID", "Seq")
	);`
	insertRun = `INSERT INTO runs(
		ID, StartedAt, DurationNs, Temperature, CalTemperature, Weather, Azimuth, Tilt,
		Pointing, CalibratorInBeam, Units, CalValue, CalSource,
		Completed, AbortReason, OperatorHost, OperatorUser
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`
	insertSample = `INSERT INTO samples(RunID, Seq, ElapsedNs, Value) VALUES (?, ?, ?, ?);`
	selectRun    = `SELECT StartedAt, DurationNs, Temperature, CalTemperature, Weather, Azimuth, Tilt,
		Pointing, CalibratorInBeam, Units, CalValue, CalSource,
		Completed, AbortReason, OperatorHost, OperatorUser
		FROM runs WHERE ID = ?;`
	selectSamples = `SELECT ElapsedNs, Value FROM samples WHERE RunID = ? ORDER BY Seq;`
	selectRunIDs  = `SELECT ID FROM runs ORDER BY StartedAt;`
)

// SQLiteRepository persists run records in an embedded sqlite database.
// Each record is written in one transaction, so a partial record is never
// durable.
type SQLiteRepository struct {
	// db is the open database handle.
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at the given path and
// ensures the schema exists.
func OpenSQLite(path string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db %q: %w", path, err)
	}

	for _, stmt := range []string{createRunsTable, createSamplesTable} {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()

			return nil, fmt.Errorf("create schema: %w", err)
		}
	}

	return &SQLiteRepository{db: db}, nil
}

// Close releases the database handle.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

// Save writes the record and its samples in a single transaction.
func (r *SQLiteRepository) Save(ctx context.Context, record *run.Record) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := saveTx(ctx, tx, record); err != nil {
		_ = tx.Rollback()

		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit record: %w", err)
	}

	return nil
}

// saveTx inserts the run row and its sample rows inside tx.
func saveTx(ctx context.Context, tx *sql.Tx, record *run.Record) error {
	cfg := record.Config

	var host, username string
	if record.Operator != nil {
		host = record.Operator.Hostname
		username = record.Operator.Username
	}

	if _, err := tx.ExecContext(ctx, insertRun,
		record.ID,
		record.StartedAt.Format(time.RFC3339Nano),
		cfg.Duration.Nanoseconds(),
		cfg.Temperature,
		cfg.CalibratorTemperature,
		cfg.Weather,
		cfg.Azimuth,
		cfg.Tilt,
		cfg.Pointing,
		cfg.CalibratorInBeam,
		cfg.Units,
		record.Calibration.Value,
		string(record.Calibration.Source),
		record.Outcome.Completed,
		record.Outcome.Reason,
		host,
		username,
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for seq, s := range record.Samples {
		if _, err := tx.ExecContext(ctx, insertSample,
			record.ID, seq, s.Elapsed.Nanoseconds(), s.Value,
		); err != nil {
			return fmt.Errorf("insert sample %d: %w", seq, err)
		}
	}

	return nil
}

// Load reads one record by run ID.
func (r *SQLiteRepository) Load(ctx context.Context, ref string) (*run.Record, error) {
	var (
		startedAt        string
		durationNs       int64
		calibratorInBeam bool
		calSource        string
		host, username   string
		record           = run.Record{ID: ref}
		cfg              = &record.Config
	)

	err := r.db.QueryRowContext(ctx, selectRun, ref).Scan(
		&startedAt,
		&durationNs,
		&cfg.Temperature,
		&cfg.CalibratorTemperature,
		&cfg.Weather,
		&cfg.Azimuth,
		&cfg.Tilt,
		&cfg.Pointing,
		&calibratorInBeam,
		&cfg.Units,
		&record.Calibration.Value,
		&calSource,
		&record.Outcome.Completed,
		&record.Outcome.Reason,
		&host,
		&username,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("select run: %w", err)
	}

	record.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt)
	if err != nil {
		return nil, fmt.Errorf("parse run start time: %w", err)
	}

	cfg.Duration = time.Duration(durationNs)
	cfg.CalibratorInBeam = calibratorInBeam
	record.Calibration.Source = run.CalibrationSource(calSource)

	if host != "" || username != "" {
		record.Operator = &run.Operator{
			Hostname: host,
			Username: username,
		}
	}

	rows, err := r.db.QueryContext(ctx, selectSamples, ref)
	if err != nil {
		return nil, fmt.Errorf("select samples: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	for rows.Next() {
		var (
			elapsedNs int64
			value     float64
		)

		if err := rows.Scan(&elapsedNs, &value); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}

		record.Samples = append(record.Samples, run.Sample{
			Elapsed: time.Duration(elapsedNs),
			Value:   value,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate samples: %w", err)
	}

	return &record, nil
}

// List returns all run IDs ordered by start time.
func (r *SQLiteRepository) List(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, selectRunIDs)
	if err != nil {
		return nil, fmt.Errorf("select run IDs: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var refs []string

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan run ID: %w", err)
		}

		refs = append(refs, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run IDs: %w", err)
	}

	return refs, nil
}
