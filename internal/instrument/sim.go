package instrument

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/aperez/cmb-readout/internal/config"
)

// Sim is a synthetic receiver for dry runs and tests. It produces readings
// around a configurable level with uniform noise, paced at a fixed cadence.
type Sim struct {
	// interval paces consecutive reads.
	interval time.Duration
	// level is the mean reading.
	level float64
	// noise is the peak deviation added to level.
	noise float64

	// mu guards the calibration fields.
	mu sync.Mutex
	// calibration is the value the device currently holds.
	calibration float64
	// calibrated is false until a calibration has been applied.
	calibrated bool

	// rng drives the noise. Seeded per channel so dry runs differ.
	rng *rand.Rand
}

// NewSim builds a simulated channel from the instrument settings.
func NewSim(cfg config.InstrumentConfig) *Sim {
	interval := cfg.SimInterval
	if interval <= 0 {
		interval = config.DefaultSimInterval
	}

	return &Sim{
		interval: interval,
		level:    cfg.SimLevel,
		noise:    cfg.SimNoise,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec // Bench noise, not crypto.
	}
}

// ReadSample waits one cadence interval and returns the next synthetic reading.
func (s *Sim) ReadSample(ctx context.Context) (float64, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-time.After(s.interval):
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.level + s.noise*(2*s.rng.Float64()-1), nil
}

// CalibrationValue reports the applied calibration, or ErrNoCalibration
// before any has been applied.
func (s *Sim) CalibrationValue(_ context.Context) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.calibrated {
		return 0, ErrNoCalibration
	}

	return s.calibration, nil
}

// ApplyCalibration stores the calibration value. Non-finite values are
// rejected the way a real meter would refuse them.
func (s *Sim) ApplyCalibration(_ context.Context, value float64) error {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return ErrCalibrationRejected
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.calibration = value
	s.calibrated = true

	return nil
}

// Close is a no-op for the simulator.
func (s *Sim) Close() error {
	return nil
}
