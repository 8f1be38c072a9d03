package veml7700

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exposure(g Gain, it IntegrationTime) ExposureState {
	return ExposureState{Gain: g, IntegrationTime: it, Enabled: true}
}

func newController(t *testing.T, s ExposureState) *Controller {
	t.Helper()
	c, err := NewController(s, DefaultThresholds)
	require.NoError(t, err)
	return c
}

func TestClassify(t *testing.T) {
	th := Thresholds{Low: 100, High: 10000}
	tests := []struct {
		raw  uint16
		want Classification
	}{
		{0, TOO_LOW},
		{100, TOO_LOW},
		{101, GOOD},
		{5000, GOOD},
		{10000, GOOD},
		{10001, TOO_HIGH},
		{65535, TOO_HIGH},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, th.Classify(tt.raw), "raw=%d", tt.raw)
	}
}

func TestThresholdsValidate(t *testing.T) {
	assert.NoError(t, DefaultThresholds.Validate())
	assert.ErrorIs(t, Thresholds{Low: 10, High: 10}.Validate(), ErrInvalidThresholds)
	assert.ErrorIs(t, Thresholds{Low: 500, High: 10}.Validate(), ErrInvalidThresholds)

	c := newController(t, DefaultExposure)
	assert.ErrorIs(t, c.SetThresholds(Thresholds{Low: 2, High: 1}), ErrInvalidThresholds)
	assert.Equal(t, DefaultThresholds, c.Thresholds())
}

func TestIncreaseOrder(t *testing.T) {
	want := []ExposureState{
		exposure(VEML7700_GAIN_1_8, VEML7700_IT_25MS),
		exposure(VEML7700_GAIN_1_8, VEML7700_IT_50MS),
		exposure(VEML7700_GAIN_1_8, VEML7700_IT_100MS),
		exposure(VEML7700_GAIN_1_4, VEML7700_IT_100MS),
		exposure(VEML7700_GAIN_1, VEML7700_IT_100MS),
		exposure(VEML7700_GAIN_2, VEML7700_IT_100MS),
		exposure(VEML7700_GAIN_2, VEML7700_IT_200MS),
		exposure(VEML7700_GAIN_2, VEML7700_IT_400MS),
		exposure(VEML7700_GAIN_2, VEML7700_IT_800MS),
	}
	s := want[0]
	for i := 1; i < len(want); i++ {
		next, ok := Increase(s)
		require.True(t, ok, "step %d", i)
		assert.Equal(t, want[i], next, "step %d", i)
		s = next
	}
	assert.True(t, s.MostSensitive())
	_, ok := Increase(s)
	assert.False(t, ok)
}

func TestDecreaseOrder(t *testing.T) {
	want := []ExposureState{
		exposure(VEML7700_GAIN_2, VEML7700_IT_800MS),
		exposure(VEML7700_GAIN_2, VEML7700_IT_400MS),
		exposure(VEML7700_GAIN_2, VEML7700_IT_200MS),
		exposure(VEML7700_GAIN_2, VEML7700_IT_100MS),
		exposure(VEML7700_GAIN_1, VEML7700_IT_100MS),
		exposure(VEML7700_GAIN_1_4, VEML7700_IT_100MS),
		exposure(VEML7700_GAIN_1_8, VEML7700_IT_100MS),
		exposure(VEML7700_GAIN_1_8, VEML7700_IT_50MS),
		exposure(VEML7700_GAIN_1_8, VEML7700_IT_25MS),
	}
	s := want[0]
	for i := 1; i < len(want); i++ {
		next, ok := Decrease(s)
		require.True(t, ok, "step %d", i)
		assert.Equal(t, want[i], next, "step %d", i)
		s = next
	}
	assert.True(t, s.LeastSensitive())
	_, ok := Decrease(s)
	assert.False(t, ok)
	assert.Equal(t, len(want)-1, MaxConvergeSteps)
}

func TestDecreaseFromShortIntegrationLowersGain(t *testing.T) {
	next, ok := Decrease(exposure(VEML7700_GAIN_1, VEML7700_IT_50MS))
	require.True(t, ok)
	assert.Equal(t, exposure(VEML7700_GAIN_1_4, VEML7700_IT_50MS), next)
}

func TestIncreaseFromLongIntegrationRaisesGain(t *testing.T) {
	next, ok := Increase(exposure(VEML7700_GAIN_1_4, VEML7700_IT_400MS))
	require.True(t, ok)
	assert.Equal(t, exposure(VEML7700_GAIN_1, VEML7700_IT_400MS), next)
}

func TestEvaluateTooDarkRaisesGain(t *testing.T) {
	c := newController(t, exposure(VEML7700_GAIN_1_8, VEML7700_IT_100MS))
	res := c.Evaluate(50)
	assert.Equal(t, TOO_LOW, res.Classification)
	require.True(t, res.Changed)
	assert.Equal(t, exposure(VEML7700_GAIN_1_4, VEML7700_IT_100MS), res.Next)
	assert.Equal(t, 130*time.Millisecond, res.Settle)
	// Evaluate does not commit.
	assert.Equal(t, exposure(VEML7700_GAIN_1_8, VEML7700_IT_100MS), c.State())
}

func TestEvaluateTooBrightLowersGain(t *testing.T) {
	c := newController(t, exposure(VEML7700_GAIN_1, VEML7700_IT_100MS))
	res := c.Evaluate(20000)
	assert.Equal(t, TOO_HIGH, res.Classification)
	require.True(t, res.Changed)
	assert.Equal(t, exposure(VEML7700_GAIN_1_4, VEML7700_IT_100MS), res.Next)
}

func TestEvaluateGoodIsIdempotent(t *testing.T) {
	for _, s := range allExposures() {
		s.Enabled = true
		c := newController(t, s)
		res := c.Evaluate(5000)
		assert.Equal(t, GOOD, res.Classification)
		assert.False(t, res.Changed)
		assert.Equal(t, s, res.Next)
		assert.Zero(t, res.Settle)
		assert.Equal(t, s, c.State())
	}
}

func TestEvaluateAtLimits(t *testing.T) {
	c := newController(t, exposure(VEML7700_GAIN_2, VEML7700_IT_800MS))
	res := c.Evaluate(3)
	assert.Equal(t, TOO_LOW, res.Classification)
	assert.False(t, res.Changed)
	assert.Equal(t, c.State(), res.Next)

	c = newController(t, exposure(VEML7700_GAIN_1_8, VEML7700_IT_25MS))
	res = c.Evaluate(60000)
	assert.Equal(t, TOO_HIGH, res.Classification)
	assert.False(t, res.Changed)
	assert.False(t, c.OutOfRange(60000))
	assert.True(t, c.OutOfRange(65535))
}

func TestEvaluateChangesOneField(t *testing.T) {
	for _, s := range allExposures() {
		c := newController(t, s)
		for _, raw := range []uint16{0, 100, 101, 10000, 10001, 65535} {
			res := c.Evaluate(raw)
			gainMoved := res.Next.Gain != s.Gain
			itMoved := res.Next.IntegrationTime != s.IntegrationTime
			assert.False(t, gainMoved && itMoved, "%v/%v raw=%d", s.Gain, s.IntegrationTime, raw)
			assert.Equal(t, res.Changed, gainMoved || itMoved)
		}
	}
}

func TestControllerCorrectionToggle(t *testing.T) {
	c := newController(t, exposure(VEML7700_GAIN_1_8, VEML7700_IT_25MS))
	assert.Equal(t, CalibratedLux(6553, VEML7700_GAIN_1_8, VEML7700_IT_25MS), c.Lux(6553))
	c.SetCorrection(false)
	assert.Equal(t, ToLux(6553, VEML7700_GAIN_1_8, VEML7700_IT_25MS), c.Lux(6553))
}

func TestNewControllerRejectsInvalidExposure(t *testing.T) {
	_, err := NewController(ExposureState{Gain: 7, IntegrationTime: VEML7700_IT_100MS}, DefaultThresholds)
	assert.Error(t, err)
	_, err = NewController(ExposureState{IntegrationTime: 0x05}, DefaultThresholds)
	assert.Error(t, err)
}

func TestClassificationString(t *testing.T) {
	assert.Equal(t, "GOOD", GOOD.String())
	assert.Equal(t, "TOO_LOW", TOO_LOW.String())
	assert.Equal(t, "TOO_HIGH", TOO_HIGH.String())
}
