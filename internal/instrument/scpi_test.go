package instrument

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakePort is an in-memory stand-in for the serial line: commands written to
// it are recorded, responses are served in the order they were queued.
type fakePort struct {
	// responses holds the lines the meter will answer with.
	responses *bytes.Buffer
	// commands records every line written to the port.
	commands []string
	// closed flips when Close is called.
	closed bool
}

func newFakePort(lines ...string) *fakePort {
	var buf bytes.Buffer
	for _, l := range lines {
		buf.WriteString(l + "\n")
	}

	return &fakePort{responses: &buf}
}

func (p *fakePort) Read(b []byte) (int, error) {
	return p.responses.Read(b)
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.commands = append(p.commands, strings.TrimSpace(string(b)))

	return len(b), nil
}

func (p *fakePort) Close() error {
	p.closed = true

	return nil
}

// TestSCPI_ReadSample parses the meter's reply and tags read faults.
func TestSCPI_ReadSample(t *testing.T) {
	t.Parallel()

	port := newFakePort("+1.234500E-01")
	s := NewSCPI(port, time.Second)

	v, err := s.ReadSample(context.Background())
	require.NoError(t, err)
	require.InDelta(t, 0.12345, v, 1e-9)
	require.Equal(t, []string{"READ?"}, port.commands)

	// Exhausted port means the line dropped: a fatal instrument fault.
	_, err = s.ReadSample(context.Background())
	require.ErrorIs(t, err, ErrInstrument)
}

// slowPort blocks reads until the test releases a line, modeling a meter
// that answers late.
type slowPort struct {
	fakePort
	lines chan string
}

func (p *slowPort) Read(b []byte) (int, error) {
	line, ok := <-p.lines
	if !ok {
		return 0, io.EOF
	}

	return copy(b, line+"\n"), nil
}

// TestSCPI_TimeoutDoesNotDesyncLine checks that the late answer of a
// timed-out query is discarded instead of being served to the next one.
func TestSCPI_TimeoutDoesNotDesyncLine(t *testing.T) {
	t.Parallel()

	port := &slowPort{lines: make(chan string, 2)}
	s := NewSCPI(port, 30*time.Millisecond)

	// No line queued: the first query times out with its read outstanding.
	_, err := s.ReadSample(context.Background())
	require.ErrorIs(t, err, ErrInstrument)
	require.ErrorContains(t, err, "timeout")

	// The meter now answers the abandoned query, then the next one.
	port.lines <- "+9.900000E-01"
	port.lines <- "+1.000000E-01"

	v, err := s.ReadSample(context.Background())
	require.NoError(t, err)
	require.InDelta(t, 0.1, v, 1e-9)
}

// TestSCPI_ApplyCalibration confirms the write with a read-back and rejects mismatches.
func TestSCPI_ApplyCalibration(t *testing.T) {
	t.Parallel()

	port := newFakePort("0.75")
	s := NewSCPI(port, time.Second)

	require.NoError(t, s.ApplyCalibration(context.Background(), 0.75))
	require.Equal(t, []string{"CAL:VAL 0.75", "CAL:VAL?"}, port.commands)

	// Meter reporting a different value back means the write was refused.
	port = newFakePort("0.10")
	s = NewSCPI(port, time.Second)

	err := s.ApplyCalibration(context.Background(), 0.75)
	require.ErrorIs(t, err, ErrCalibrationRejected)
}

// TestSCPI_CalibrationValue treats a NaN reply as no calibration state.
func TestSCPI_CalibrationValue(t *testing.T) {
	t.Parallel()

	port := newFakePort("NaN")
	s := NewSCPI(port, time.Second)

	_, err := s.CalibrationValue(context.Background())
	require.ErrorIs(t, err, ErrNoCalibration)
}

// TestSCPI_Close disarms the trigger before releasing the port.
func TestSCPI_Close(t *testing.T) {
	t.Parallel()

	port := newFakePort()
	s := NewSCPI(port, time.Second)

	require.NoError(t, s.Close())
	require.True(t, port.closed)
	require.Equal(t, []string{"TRIG:SOUR BUS"}, port.commands)
}
