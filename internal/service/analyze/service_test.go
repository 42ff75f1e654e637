package analyze

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestCalibrationFromReferences recovers constants that map both references exactly.
func TestCalibrationFromReferences(t *testing.T) {
	t.Parallel()

	const (
		vHot  = 0.82
		vCold = 0.31
		tHot  = 275.15
		tCold = 77.0
	)

	c, err := CalibrationFromReferences(vHot, vCold, tHot, tCold)
	require.NoError(t, err)
	require.InDelta(t, tHot, c.Temperature(vHot), 1e-9)
	require.InDelta(t, tCold, c.Temperature(vCold), 1e-9)

	// Equal reference voltages carry no information.
	_, err = CalibrationFromReferences(0.5, 0.5, tHot, tCold)
	require.ErrorIs(t, err, ErrDegenerateReferences)
}

// TestFitSkyDip_RecoversExactParameters fits noiseless synthetic data.
func TestFitSkyDip_RecoversExactParameters(t *testing.T) {
	t.Parallel()

	const (
		tCMB  = 2.73
		tVert = 12.5
	)

	var points []SkyDipPoint

	for _, tilt := range []float64{110, 120, 135, 150, 170} {
		theta := (tilt - 90) * math.Pi / 180
		points = append(points, SkyDipPoint{
			Tilt:        tilt,
			Temperature: tCMB + tVert/math.Sin(theta),
		})
	}

	fit, err := FitSkyDip(points)
	require.NoError(t, err)
	require.InDelta(t, tCMB, fit.TCMB, 1e-9)
	require.InDelta(t, tVert, fit.TVert, 1e-9)
	require.Equal(t, len(points), fit.Points)
}

// TestFitSkyDip_SkipsHorizonPoints ignores tilts at or below the horizon.
func TestFitSkyDip_SkipsHorizonPoints(t *testing.T) {
	t.Parallel()

	points := []SkyDipPoint{
		{Tilt: 90, Temperature: 100},  // sin(0) = 0
		{Tilt: 80, Temperature: 100},  // below horizon
		{Tilt: 120, Temperature: 27.73},
		{Tilt: 150, Temperature: 52.73},
	}

	fit, err := FitSkyDip(points)
	require.NoError(t, err)
	require.Equal(t, 2, fit.Points)
}

// TestFitSkyDip_NotEnoughPoints rejects degenerate inputs.
func TestFitSkyDip_NotEnoughPoints(t *testing.T) {
	t.Parallel()

	_, err := FitSkyDip(nil)
	require.ErrorIs(t, err, ErrNotEnoughPoints)

	// A single usable point.
	_, err = FitSkyDip([]SkyDipPoint{{Tilt: 120, Temperature: 30}})
	require.ErrorIs(t, err, ErrNotEnoughPoints)

	// Two points at the same angle cannot separate the parameters.
	_, err = FitSkyDip([]SkyDipPoint{
		{Tilt: 120, Temperature: 30},
		{Tilt: 120, Temperature: 31},
	})
	require.ErrorIs(t, err, ErrNotEnoughPoints)
}
