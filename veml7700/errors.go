package veml7700

import "errors"

var (
	// ErrDeviceNotFound means nothing acknowledged at the sensor address.
	ErrDeviceNotFound = errors.New("veml7700: device not found")

	// ErrUnexpectedIdentity means a device answered but its ID register is wrong.
	ErrUnexpectedIdentity = errors.New("veml7700: unexpected device identity")

	// ErrOutOfDynamicRange means the ADC saturated at the least sensitive
	// exposure. The ambient light is beyond what the sensor can measure.
	ErrOutOfDynamicRange = errors.New("veml7700: ambient light beyond rated range")

	ErrSensorDisabled         = errors.New("veml7700: sensor must be enabled")
	ErrInvalidThresholds      = errors.New("veml7700: low threshold must be below high threshold")
	ErrInvalidGain            = errors.New("veml7700: invalid gain")
	ErrInvalidIntegrationTime = errors.New("veml7700: invalid integration time")
)
