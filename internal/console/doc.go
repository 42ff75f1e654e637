// Package console is the operator-facing prompt collaborator. The prompt
// blocks with no timeout: calibration input is a deliberate human step and
// the run must not start without it.
package console
