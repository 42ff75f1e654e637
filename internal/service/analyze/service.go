package analyze

import (
	"errors"
	"math"
)

var (
	// ErrDegenerateReferences is returned when hot and cold runs read the same voltage.
	ErrDegenerateReferences = errors.New("hot and cold references have equal mean voltage")
	// ErrNotEnoughPoints is returned when fewer than two usable sky-dip points exist.
	ErrNotEnoughPoints = errors.New("sky-dip fit needs at least two points at distinct angles")
)

// Calibration converts raw instrument readings to temperatures in kelvin
// via T = Slope*V + Offset.
type Calibration struct {
	// Slope is the kelvin-per-unit conversion factor.
	Slope float64
	// Offset is the kelvin intercept.
	Offset float64
}

// CalibrationFromReferences derives the linear constants from a hot and a
// cold reference measurement at known temperatures.
func CalibrationFromReferences(vHot, vCold, tHot, tCold float64) (Calibration, error) {
	if vHot == vCold {
		return Calibration{}, ErrDegenerateReferences
	}

	slope := (tHot - tCold) / (vHot - vCold)

	return Calibration{
		Slope:  slope,
		Offset: tHot - slope*vHot,
	}, nil
}

// Temperature converts one reading to kelvin.
func (c Calibration) Temperature(v float64) float64 {
	return c.Slope*v + c.Offset
}

// SkyDipPoint is one run reduced to its tilt angle and mean temperature.
type SkyDipPoint struct {
	// Tilt is the recorded pointing angle parallel to the support axis, in
	// degrees. The elevation above the horizon is Tilt - 90.
	Tilt float64
	// Temperature is the calibrated mean temperature of the run, in kelvin.
	Temperature float64
}

// SkyDipFit is the result of fitting the sky-dip model.
type SkyDipFit struct {
	// TCMB is the estimated CMB temperature in kelvin.
	TCMB float64
	// TVert is the estimated atmospheric contribution at zenith, in kelvin.
	TVert float64
	// Points is the number of runs that entered the fit.
	Points int
}

// FitSkyDip fits T(theta) = T_cmb + T_vert/sin(theta) across the points.
// The model is linear in 1/sin(theta), so an ordinary least-squares fit on
// that regressor recovers both parameters exactly. Points at or below the
// horizon are skipped.
func FitSkyDip(points []SkyDipPoint) (SkyDipFit, error) {
	var (
		n              float64
		sumX, sumY     float64
		sumXX, sumXY   float64
		distinctSlopes = map[float64]struct{}{}
	)

	for _, p := range points {
		theta := (p.Tilt - 90) * math.Pi / 180

		sinTheta := math.Sin(theta)
		if sinTheta <= 0 {
			continue
		}

		x := 1 / sinTheta
		y := p.Temperature

		n++
		sumX += x
		sumY += y
		sumXX += x * x
		sumXY += x * y

		distinctSlopes[x] = struct{}{}
	}

	if n < 2 || len(distinctSlopes) < 2 {
		return SkyDipFit{}, ErrNotEnoughPoints
	}

	denominator := n*sumXX - sumX*sumX

	tVert := (n*sumXY - sumX*sumY) / denominator
	tCMB := (sumY - tVert*sumX) / n

	return SkyDipFit{
		TCMB:   tCMB,
		TVert:  tVert,
		Points: int(n),
	}, nil
}
