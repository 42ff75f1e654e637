// Package acquire implements one acquisition run: calibration resolution,
// the bounded sampling loop and the composition and persistence of the run
// record. The three stages are strictly sequential; calibration never
// overlaps sampling and the record is written exactly once.
package acquire
