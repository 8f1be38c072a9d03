package veml7700

// Normalize scales a raw count to what the sensor would report at gain 1x
// and 100ms integration, the setting the lux constant is calibrated at.
func Normalize(raw uint16, gain Gain, it IntegrationTime) float64 {
	return float64(raw) * gain.Coefficient() * it.Coefficient()
}

// ToLux converts a raw count to lux without nonlinearity correction.
func ToLux(raw uint16, gain Gain, it IntegrationTime) float64 {
	return Normalize(raw, gain, it) * VEML7700_LUX_PER_COUNT
}

// NeedsCorrection reports whether the quartic correction applies, which is
// only at the least sensitive exposure (1/8x, 25ms).
func NeedsCorrection(gain Gain, it IntegrationTime) bool {
	return gain == VEML7700_GAIN_1_8 && it == VEML7700_IT_25MS
}

// CorrectLux applies the ALS nonlinearity fit.
// lux' = 6.0135e-13*lux^4 - 9.3924e-9*lux^3 + 8.1488e-5*lux^2 + 1.0023*lux
func CorrectLux(lux float64) float64 {
	return (((6.0135e-13*lux-9.3924e-9)*lux+8.1488e-5)*lux + 1.0023) * lux
}

// CorrectWhite applies the white channel nonlinearity fit.
// white' = 2e-15*white^4 + 4e-12*white^3 + 9e-6*white^2 + 1.0179*white - 11.052
func CorrectWhite(white float64) float64 {
	return (((2e-15*white+4e-12)*white+9e-6)*white+1.0179)*white - 11.052
}

// CalibratedLux is ToLux followed by CorrectLux when NeedsCorrection.
func CalibratedLux(raw uint16, gain Gain, it IntegrationTime) float64 {
	lux := ToLux(raw, gain, it)
	if NeedsCorrection(gain, it) {
		lux = CorrectLux(lux)
	}
	return lux
}

// CalibratedWhite is the white channel counterpart of CalibratedLux.
func CalibratedWhite(raw uint16, gain Gain, it IntegrationTime) float64 {
	white := ToLux(raw, gain, it)
	if NeedsCorrection(gain, it) {
		white = CorrectWhite(white)
	}
	return white
}

// Resolution is the lux represented by one count at the given exposure.
func Resolution(gain Gain, it IntegrationTime) float64 {
	return gain.Coefficient() * it.Coefficient() * VEML7700_LUX_PER_COUNT
}
