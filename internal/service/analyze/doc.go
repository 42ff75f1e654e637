// Package analyze post-processes persisted run records: it derives a linear
// volts-to-kelvin calibration from hot and cold reference runs, reduces each
// sky run to a mean temperature, and fits the sky-dip model
//
//	T(theta) = T_cmb + T_vert/sin(theta)
//
// across runs taken at different tilt angles to estimate the CMB temperature.
package analyze
