package veml7700

import "time"

const (
	VEML7700_ADDR      uint16 = 0x10 ///< Default I2C address
	VEML7700_DEVICE_ID byte   = 0x81 ///< Low byte of the ID register

	VEML7700_LUX_PER_COUNT float64 = 0.0576 ///< Lux per count at gain 1x, 100ms
	VEML7700_SATURATED     uint16  = 0xFFFF ///< ADC full scale

	VEML7700_INTERRUPT_HIGH uint16 = 0x4000 ///< Interrupt status for high threshold
	VEML7700_INTERRUPT_LOW  uint16 = 0x8000 ///< Interrupt status for low threshold
)

// VEML7700 Register map
const (
	VEML7700_REGISTER_ALS_CONFIG       byte = 0x00 // Light configuration register
	VEML7700_REGISTER_THRESHOLD_HIGH   byte = 0x01 // Light high threshold for irq
	VEML7700_REGISTER_THRESHOLD_LOW    byte = 0x02 // Light low threshold for irq
	VEML7700_REGISTER_POWER_SAVE       byte = 0x03 // Power save register
	VEML7700_REGISTER_ALS_DATA         byte = 0x04 // The light data output
	VEML7700_REGISTER_WHITE_DATA       byte = 0x05 // The white light data output
	VEML7700_REGISTER_INTERRUPT_STATUS byte = 0x06 // What IRQ (if any)
	VEML7700_REGISTER_ID               byte = 0x07 // Device id and address option code
)

// Bit fields as (width, shift)
const (
	shutdownWidth, shutdownShift       uint8 = 1, 0
	interruptWidth, interruptShift     uint8 = 1, 1
	persistenceWidth, persistenceShift uint8 = 2, 4
	itWidth, itShift                   uint8 = 4, 6
	gainWidth, gainShift               uint8 = 2, 11
	psEnableWidth, psEnableShift       uint8 = 1, 0
	psModeWidth, psModeShift           uint8 = 2, 1
)

// Gain is the ALS gain code as written to bits [12:11] of the config register.
type Gain byte

const (
	VEML7700_GAIN_1   Gain = 0x00 // ALS gain 1x
	VEML7700_GAIN_2   Gain = 0x01 // ALS gain 2x
	VEML7700_GAIN_1_8 Gain = 0x02 // ALS gain 1/8x
	VEML7700_GAIN_1_4 Gain = 0x03 // ALS gain 1/4x
)

// IntegrationTime is the ALS integration time code, bits [9:6] of the config
// register. The codes are not contiguous.
type IntegrationTime byte

const (
	VEML7700_IT_100MS IntegrationTime = 0x00 // 100 millis
	VEML7700_IT_200MS IntegrationTime = 0x01 // 200 millis
	VEML7700_IT_400MS IntegrationTime = 0x02 // 400 millis
	VEML7700_IT_800MS IntegrationTime = 0x03 // 800 millis
	VEML7700_IT_50MS  IntegrationTime = 0x08 // 50 millis
	VEML7700_IT_25MS  IntegrationTime = 0x0C // 25 millis
)

// Persistence is the number of out-of-window samples before the IRQ fires.
type Persistence byte

const (
	VEML7700_PERS_1 Persistence = 0x00 // 1 sample
	VEML7700_PERS_2 Persistence = 0x01 // 2 samples
	VEML7700_PERS_4 Persistence = 0x02 // 4 samples
	VEML7700_PERS_8 Persistence = 0x03 // 8 samples
)

// PowerSaveMode selects the wait between measurements while power save is on.
type PowerSaveMode byte

const (
	VEML7700_POWERSAVE_MODE1 PowerSaveMode = 0x00 // 500ms
	VEML7700_POWERSAVE_MODE2 PowerSaveMode = 0x01 // 1000ms
	VEML7700_POWERSAVE_MODE3 PowerSaveMode = 0x02 // 2000ms
	VEML7700_POWERSAVE_MODE4 PowerSaveMode = 0x03 // 4000ms
)

// Sensitivity ladders, least sensitive first.
var (
	gainSteps = [...]Gain{VEML7700_GAIN_1_8, VEML7700_GAIN_1_4, VEML7700_GAIN_1, VEML7700_GAIN_2}
	itSteps   = [...]IntegrationTime{
		VEML7700_IT_25MS, VEML7700_IT_50MS, VEML7700_IT_100MS,
		VEML7700_IT_200MS, VEML7700_IT_400MS, VEML7700_IT_800MS,
	}
)

const (
	VEML7700_GAIN_MIN = VEML7700_GAIN_1_8
	VEML7700_GAIN_MAX = VEML7700_GAIN_2
	VEML7700_IT_MIN   = VEML7700_IT_25MS
	VEML7700_IT_MAX   = VEML7700_IT_800MS
)

// Valid reports whether g is one of the four gain codes.
func (g Gain) Valid() bool {
	return g.index() >= 0
}

func (g Gain) index() int {
	for i, s := range gainSteps {
		if s == g {
			return i
		}
	}
	return -1
}

// Coefficient normalizes a count taken at g to gain 1x.
func (g Gain) Coefficient() float64 {
	switch g {
	case VEML7700_GAIN_1_8:
		return 8.0
	case VEML7700_GAIN_1_4:
		return 4.0
	case VEML7700_GAIN_2:
		return 0.5
	default:
		return 1.0
	}
}

// Multiplier is the analog gain, the inverse of Coefficient.
func (g Gain) Multiplier() float64 {
	return 1.0 / g.Coefficient()
}

func (g Gain) String() string {
	switch g {
	case VEML7700_GAIN_1_8:
		return "1/8x"
	case VEML7700_GAIN_1_4:
		return "1/4x"
	case VEML7700_GAIN_1:
		return "1x"
	case VEML7700_GAIN_2:
		return "2x"
	default:
		return "Unknown"
	}
}

// ParseGain accepts the String() form of a gain ("1/8x", "1/4x", "1x", "2x").
func ParseGain(s string) (Gain, error) {
	for _, g := range gainSteps {
		if g.String() == s {
			return g, nil
		}
	}
	return 0, ErrInvalidGain
}

// Valid reports whether it is one of the six integration time codes.
func (it IntegrationTime) Valid() bool {
	return it.index() >= 0
}

func (it IntegrationTime) index() int {
	for i, s := range itSteps {
		if s == it {
			return i
		}
	}
	return -1
}

// Milliseconds returns the dwell period, or 0 for an unknown code.
func (it IntegrationTime) Milliseconds() int {
	switch it {
	case VEML7700_IT_25MS:
		return 25
	case VEML7700_IT_50MS:
		return 50
	case VEML7700_IT_100MS:
		return 100
	case VEML7700_IT_200MS:
		return 200
	case VEML7700_IT_400MS:
		return 400
	case VEML7700_IT_800MS:
		return 800
	default:
		return 0
	}
}

func (it IntegrationTime) Duration() time.Duration {
	return time.Duration(it.Milliseconds()) * time.Millisecond
}

// Coefficient normalizes a count taken at it to 100ms.
func (it IntegrationTime) Coefficient() float64 {
	switch it {
	case VEML7700_IT_25MS:
		return 4.0
	case VEML7700_IT_50MS:
		return 2.0
	case VEML7700_IT_200MS:
		return 0.5
	case VEML7700_IT_400MS:
		return 0.25
	case VEML7700_IT_800MS:
		return 0.125
	default:
		return 1.0
	}
}

func (it IntegrationTime) String() string {
	if it.Valid() {
		return it.Duration().String()
	}
	return "Unknown"
}

// IntegrationTimeFromMs maps 25, 50, 100, 200, 400 or 800 to its code.
func IntegrationTimeFromMs(ms int) (IntegrationTime, error) {
	for _, it := range itSteps {
		if it.Milliseconds() == ms {
			return it, nil
		}
	}
	return 0, ErrInvalidIntegrationTime
}

// Samples returns 1, 2, 4 or 8.
func (p Persistence) Samples() int {
	return 1 << (p & 0x03)
}

// Wait is the extra refresh delay power save mode adds to each measurement.
func (m PowerSaveMode) Wait() time.Duration {
	return time.Duration(500<<(m&0x03)) * time.Millisecond
}

// Gains lists the gain settings from least to most sensitive.
func Gains() []Gain {
	return append([]Gain(nil), gainSteps[:]...)
}

// IntegrationTimes lists the integration times from shortest to longest.
func IntegrationTimes() []IntegrationTime {
	return append([]IntegrationTime(nil), itSteps[:]...)
}
