package veml7700

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func allExposures() []ExposureState {
	var out []ExposureState
	for _, g := range gainSteps {
		for _, it := range itSteps {
			out = append(out, ExposureState{Gain: g, IntegrationTime: it})
		}
	}
	return out
}

func TestCoefficients(t *testing.T) {
	gains := map[Gain]float64{
		VEML7700_GAIN_1_8: 8.0,
		VEML7700_GAIN_1_4: 4.0,
		VEML7700_GAIN_1:   1.0,
		VEML7700_GAIN_2:   0.5,
	}
	for g, want := range gains {
		assert.Equal(t, want, g.Coefficient(), g.String())
	}
	its := map[IntegrationTime]float64{
		VEML7700_IT_25MS:  4.0,
		VEML7700_IT_50MS:  2.0,
		VEML7700_IT_100MS: 1.0,
		VEML7700_IT_200MS: 0.5,
		VEML7700_IT_400MS: 0.25,
		VEML7700_IT_800MS: 0.125,
	}
	for it, want := range its {
		assert.Equal(t, want, it.Coefficient(), it.String())
	}
}

func TestNormalizeInverse(t *testing.T) {
	for _, s := range allExposures() {
		for _, raw := range []uint16{0, 1, 100, 6553, 10000, 65535} {
			n := Normalize(raw, s.Gain, s.IntegrationTime)
			back := n / s.Gain.Coefficient() / s.IntegrationTime.Coefficient()
			assert.InDelta(t, float64(raw), back, 1e-9, "%v/%v raw=%d", s.Gain, s.IntegrationTime, raw)
		}
	}
}

func TestToLuxReference(t *testing.T) {
	assert.InDelta(t, 57.6, ToLux(1000, VEML7700_GAIN_1, VEML7700_IT_100MS), 1e-9)
	assert.InDelta(t, 28.8, ToLux(1000, VEML7700_GAIN_2, VEML7700_IT_100MS), 1e-9)
	assert.InDelta(t, 1843.2, ToLux(1000, VEML7700_GAIN_1_8, VEML7700_IT_25MS), 1e-9)
	assert.InDelta(t, 0.0036, Resolution(VEML7700_GAIN_2, VEML7700_IT_800MS), 1e-12)
}

func TestCalibratedLuxMonotonic(t *testing.T) {
	for _, s := range allExposures() {
		prev := CalibratedLux(0, s.Gain, s.IntegrationTime)
		for raw := 1; raw <= 65535; raw++ {
			lux := CalibratedLux(uint16(raw), s.Gain, s.IntegrationTime)
			if lux < prev {
				t.Fatalf("%v/%v: lux(%d)=%f < lux(%d)=%f", s.Gain, s.IntegrationTime, raw, lux, raw-1, prev)
			}
			prev = lux
		}
	}
}

func TestCorrectionOnlyAtLeastSensitive(t *testing.T) {
	for _, s := range allExposures() {
		linear := ToLux(6553, s.Gain, s.IntegrationTime)
		got := CalibratedLux(6553, s.Gain, s.IntegrationTime)
		if s.Gain == VEML7700_GAIN_1_8 && s.IntegrationTime == VEML7700_IT_25MS {
			assert.True(t, NeedsCorrection(s.Gain, s.IntegrationTime))
			assert.NotEqual(t, linear, got)
		} else {
			assert.False(t, NeedsCorrection(s.Gain, s.IntegrationTime))
			assert.Equal(t, linear, got)
		}
	}
}

func TestCorrectLuxMatchesPowerSeries(t *testing.T) {
	lux := ToLux(6553, VEML7700_GAIN_1_8, VEML7700_IT_25MS)
	direct := 6.0135e-13*math.Pow(lux, 4) - 9.3924e-9*math.Pow(lux, 3) +
		8.1488e-5*math.Pow(lux, 2) + 1.0023*lux
	got := CalibratedLux(6553, VEML7700_GAIN_1_8, VEML7700_IT_25MS)
	require.NotZero(t, direct)
	assert.LessOrEqual(t, math.Abs(got-direct)/math.Abs(direct), 1e-6)
}

func TestCorrectWhiteMatchesPowerSeries(t *testing.T) {
	for _, white := range []float64{0, 10, 1000, 25000, 100000} {
		direct := 2e-15*math.Pow(white, 4) + 4e-12*math.Pow(white, 3) +
			9e-6*math.Pow(white, 2) + 1.0179*white - 11.052
		assert.InDelta(t, direct, CorrectWhite(white), math.Max(1e-9, math.Abs(direct)*1e-9), "white=%f", white)
	}
}

func TestCalibratedWhite(t *testing.T) {
	assert.Equal(t, ToLux(500, VEML7700_GAIN_1, VEML7700_IT_100MS), CalibratedWhite(500, VEML7700_GAIN_1, VEML7700_IT_100MS))
	linear := ToLux(500, VEML7700_GAIN_1_8, VEML7700_IT_25MS)
	assert.Equal(t, CorrectWhite(linear), CalibratedWhite(500, VEML7700_GAIN_1_8, VEML7700_IT_25MS))
}
