package veml7700

import "time"

// SettleMargin is added to the integration time after an exposure change
// before the next reading is valid.
const SettleMargin = 30 * time.Millisecond

// ExposureState is the gain and integration time the sensor is measuring
// with. A change only takes effect after the sensor is disabled and enabled
// again.
type ExposureState struct {
	Gain            Gain
	IntegrationTime IntegrationTime
	Enabled         bool
}

// DefaultExposure is what Initialize programs.
var DefaultExposure = ExposureState{
	Gain:            VEML7700_GAIN_1,
	IntegrationTime: VEML7700_IT_100MS,
	Enabled:         true,
}

func (s ExposureState) Valid() bool {
	return s.Gain.Valid() && s.IntegrationTime.Valid()
}

func (s ExposureState) IntegrationMs() int {
	return s.IntegrationTime.Milliseconds()
}

// MostSensitive is true at (2x, 800ms).
func (s ExposureState) MostSensitive() bool {
	return s.Gain == VEML7700_GAIN_MAX && s.IntegrationTime == VEML7700_IT_MAX
}

// LeastSensitive is true at (1/8x, 25ms).
func (s ExposureState) LeastSensitive() bool {
	return s.Gain == VEML7700_GAIN_MIN && s.IntegrationTime == VEML7700_IT_MIN
}

// Settle is how long to wait after switching to s before reading.
func (s ExposureState) Settle() time.Duration {
	return s.IntegrationTime.Duration() + SettleMargin
}

func (s ExposureState) withGain(step int) ExposureState {
	s.Gain = gainSteps[s.Gain.index()+step]
	return s
}

func (s ExposureState) withIntegrationTime(step int) ExposureState {
	s.IntegrationTime = itSteps[s.IntegrationTime.index()+step]
	return s
}

// Increase returns the next more sensitive exposure. Integration time is
// raised toward 100ms first, then gain, then integration time up to 800ms.
// The bool is false when s is already the most sensitive exposure.
func Increase(s ExposureState) (ExposureState, bool) {
	switch {
	case s.IntegrationMs() < 100:
		return s.withIntegrationTime(1), true
	case s.Gain != VEML7700_GAIN_MAX:
		return s.withGain(1), true
	case s.IntegrationTime != VEML7700_IT_MAX:
		return s.withIntegrationTime(1), true
	}
	return s, false
}

// Decrease returns the next less sensitive exposure. Integration time is
// lowered toward 100ms first, then gain, then integration time down to 25ms.
// The bool is false when s is already the least sensitive exposure.
func Decrease(s ExposureState) (ExposureState, bool) {
	switch {
	case s.IntegrationMs() > 100:
		return s.withIntegrationTime(-1), true
	case s.Gain != VEML7700_GAIN_MIN:
		return s.withGain(-1), true
	case s.IntegrationTime != VEML7700_IT_MIN:
		return s.withIntegrationTime(-1), true
	}
	return s, false
}
