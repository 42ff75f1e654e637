package instrument

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	serial "github.com/jacobsa/go-serial/serial"

	"github.com/aperez/cmb-readout/internal/config"
)

// SCPI drives a bench multimeter speaking SCPI over a serial line.
// On open the meter is configured for DC voltage and armed with an
// immediate trigger; Close disarms the trigger before releasing the port.
type SCPI struct {
	// port is the serial line to the meter.
	port io.ReadWriteCloser
	// reader buffers response lines from the meter.
	reader *bufio.Reader
	// readTimeout bounds one query round-trip.
	readTimeout time.Duration
	// pending holds the in-flight read a timed-out query abandoned. Its
	// late response must be discarded before the next query, or the line
	// desyncs and every later reply answers the wrong command.
	pending chan response
}

// response is one line read from the meter.
type response struct {
	line string
	err  error
}

// OpenSCPI opens the configured serial port and prepares the meter for a run.
func OpenSCPI(cfg config.InstrumentConfig) (*SCPI, error) {
	port, err := serial.Open(serial.OpenOptions{
		PortName:        cfg.Port,
		BaudRate:        cfg.BaudRate,
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 1,
		ParityMode:      serial.PARITY_NONE,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", cfg.Port, err)
	}

	s := NewSCPI(port, cfg.ReadTimeout)
	if err := s.configure(); err != nil {
		_ = port.Close()

		return nil, err
	}

	return s, nil
}

// NewSCPI wraps an already-open line without sending the setup sequence.
// Tests use it with an in-memory pipe in place of a serial port.
func NewSCPI(port io.ReadWriteCloser, readTimeout time.Duration) *SCPI {
	if readTimeout <= 0 {
		readTimeout = config.DefaultReadTimeout
	}

	return &SCPI{
		port:        port,
		reader:      bufio.NewReader(port),
		readTimeout: readTimeout,
	}
}

// configure puts the meter into DC voltage range 1 and arms the trigger.
func (s *SCPI) configure() error {
	for _, cmd := range []string{"CONF:VOLT:DC:RANG 1", "TRIG:SOUR IMM"} {
		if err := s.send(cmd); err != nil {
			return err
		}
	}

	return nil
}

// ReadSample queries one reading from the meter.
func (s *SCPI) ReadSample(ctx context.Context) (float64, error) {
	value, err := s.query(ctx, "READ?")
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInstrument, err)
	}

	return value, nil
}

// CalibrationValue reports the calibration value the meter currently holds.
func (s *SCPI) CalibrationValue(ctx context.Context) (float64, error) {
	value, err := s.query(ctx, "CAL:VAL?")
	if err != nil {
		return 0, fmt.Errorf("read calibration: %w", err)
	}

	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, ErrNoCalibration
	}

	return value, nil
}

// ApplyCalibration writes a calibration value and reads it back to confirm
// the meter accepted it.
func (s *SCPI) ApplyCalibration(ctx context.Context, value float64) error {
	if err := s.send(fmt.Sprintf("CAL:VAL %g", value)); err != nil {
		return fmt.Errorf("apply calibration: %w", err)
	}

	applied, err := s.query(ctx, "CAL:VAL?")
	if err != nil {
		return fmt.Errorf("confirm calibration: %w", err)
	}

	if math.Abs(applied-value) > 1e-9 {
		return fmt.Errorf("%w: wrote %g, meter reports %g", ErrCalibrationRejected, value, applied)
	}

	return nil
}

// Close disarms the trigger and releases the serial port.
func (s *SCPI) Close() error {
	// Best effort: the port may already be gone.
	_ = s.send("TRIG:SOUR BUS")

	return s.port.Close()
}

// send writes one command line to the meter.
func (s *SCPI) send(cmd string) error {
	if _, err := s.port.Write([]byte(cmd + "\r\n")); err != nil {
		return fmt.Errorf("write %q: %w", cmd, err)
	}

	return nil
}

// query sends a command and parses the single-line float response.
// The read runs in a goroutine so the context and the timeout both bound it;
// the serial line carries at most one outstanding query.
func (s *SCPI) query(ctx context.Context, cmd string) (float64, error) {
	if err := s.drainStale(ctx); err != nil {
		return 0, fmt.Errorf("query %q: %w", cmd, err)
	}

	if err := s.send(cmd); err != nil {
		return 0, err
	}

	resultCh := make(chan response, 1)

	go func() {
		line, err := s.reader.ReadString('\n')
		resultCh <- response{line: line, err: err}
	}()

	select {
	case <-ctx.Done():
		s.pending = resultCh

		return 0, ctx.Err()
	case <-time.After(s.readTimeout):
		s.pending = resultCh

		return 0, fmt.Errorf("query %q: timeout after %s", cmd, s.readTimeout)
	case r := <-resultCh:
		if r.err != nil {
			return 0, fmt.Errorf("query %q: %w", cmd, r.err)
		}

		value, err := strconv.ParseFloat(strings.TrimSpace(r.line), 64)
		if err != nil {
			return 0, fmt.Errorf("query %q: parse %q: %w", cmd, strings.TrimSpace(r.line), err)
		}

		return value, nil
	}
}

// drainStale discards the late response left by a previously abandoned
// query, waiting at most one timeout for it. This also keeps a single
// goroutine reading the line at any time.
func (s *SCPI) drainStale(ctx context.Context) error {
	if s.pending == nil {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.readTimeout):
		return fmt.Errorf("stale response still outstanding after %s", s.readTimeout)
	case r := <-s.pending:
		s.pending = nil

		if r.err != nil {
			return fmt.Errorf("discard stale response: %w", r.err)
		}

		return nil
	}
}
