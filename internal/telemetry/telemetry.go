package telemetry

import (
	"context"

	"github.com/aperez/cmb-readout/internal/domain/run"
)

// Publisher pushes live samples out of the acquisition loop.
type Publisher interface {
	// PublishSample sends one reading. Failures are the publisher's problem:
	// the acquisition loop carries on regardless.
	PublishSample(ctx context.Context, runID string, sample run.Sample)
	// Close releases the publisher.
	Close()
}

// Nop is the publisher used when telemetry is disabled.
type Nop struct{}

// PublishSample discards the sample.
func (Nop) PublishSample(context.Context, string, run.Sample) {}

// Close does nothing.
func (Nop) Close() {}
