// Package run defines the domain model for one acquisition run: the
// configuration captured at invocation time, the resolved calibration, the
// ordered sample sequence and the final immutable record.
package run
