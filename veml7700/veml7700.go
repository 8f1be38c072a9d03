package veml7700

/*
 * veml7700 - Package for interacting with VEML7700 ambient light sensors.
 *
 * Ref:
 * https://www.vishay.com/docs/84286/veml7700.pdf
 * https://www.vishay.com/docs/84323/designingveml7700.pdf
 *
 */

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"tinygo.org/x/drivers"
)

var l *logrus.Logger

func init() {
	l = logrus.New()
	l.Formatter = &logrus.JSONFormatter{}
	l.SetOutput(os.Stdout)
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		l.SetLevel(logrus.DebugLevel)
	case "error":
		l.SetLevel(logrus.ErrorLevel)
	default:
		l.SetLevel(logrus.InfoLevel)
	}
}

// SetLogger replaces the package logger.
func SetLogger(logger *logrus.Logger) {
	if logger != nil {
		l = logger
	}
}

// Bus is an I2C transport the caller owns and closes.
type Bus interface {
	drivers.I2C
	Close() error
}

// Opts configures a VEML7700. The zero value of Gain and IntegrationTime is
// the power-on default (1x, 100ms).
type Opts struct {
	Address           uint16
	Thresholds        Thresholds
	Gain              Gain
	IntegrationTime   IntegrationTime
	Persistence       Persistence
	DisableCorrection bool
	// Sleep waits out settle time during ReadLuxAutoConverge. Defaults to
	// time.Sleep.
	Sleep func(time.Duration)
}

var DefaultOpts = Opts{
	Address:         VEML7700_ADDR,
	Thresholds:      DefaultThresholds,
	Gain:            VEML7700_GAIN_1,
	IntegrationTime: VEML7700_IT_100MS,
	Persistence:     VEML7700_PERS_1,
}

// VEML7700 is one sensor. It is not safe for concurrent use: a read that
// interleaves with an exposure change pairs a count with the wrong exposure.
type VEML7700 struct {
	regs        Registers
	ctrl        *Controller
	persistence Persistence
	sleep       func(time.Duration)
}

// InterruptStatus decodes the interrupt status register.
type InterruptStatus struct {
	High bool `json:"high"`
	Low  bool `json:"low"`
}

// Connect to a VEML7700 on bus and program the configured exposure.
func NewVEML7700(bus drivers.I2C, opts *Opts) (*VEML7700, error) {
	if opts == nil {
		o := DefaultOpts
		opts = &o
	}
	addr := opts.Address
	if addr == 0 {
		addr = VEML7700_ADDR
	}
	dev, err := New(NewRegisterBus(bus, addr), opts)
	if err != nil {
		return nil, err
	}
	if err := dev.Initialize(); err != nil {
		return nil, err
	}
	return dev, nil
}

// New wraps regs without any bus traffic. Initialize must be called before
// reading.
func New(regs Registers, opts *Opts) (*VEML7700, error) {
	if opts == nil {
		o := DefaultOpts
		opts = &o
	}
	thresholds := opts.Thresholds
	if thresholds == (Thresholds{}) {
		thresholds = DefaultThresholds
	}
	ctrl, err := NewController(ExposureState{
		Gain:            opts.Gain,
		IntegrationTime: opts.IntegrationTime,
	}, thresholds)
	if err != nil {
		return nil, err
	}
	ctrl.SetCorrection(!opts.DisableCorrection)
	sleep := opts.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	return &VEML7700{
		regs:        regs,
		ctrl:        ctrl,
		persistence: opts.Persistence & 0x03,
		sleep:       sleep,
	}, nil
}

// Initialize confirms the device identity, programs the exposure with the
// interrupt and power save off, then enables the sensor. On failure the
// sensor is left shut down.
func (v *VEML7700) Initialize() error {
	id, err := v.regs.ReadRegister(VEML7700_REGISTER_ID)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDeviceNotFound, err)
	}
	if byte(id) != VEML7700_DEVICE_ID {
		return fmt.Errorf("%w: id register 0x%04x", ErrUnexpectedIdentity, id)
	}

	state := v.ctrl.State()
	cfg := SetBits(0, shutdownWidth, shutdownShift, 1)
	cfg = SetBits(cfg, persistenceWidth, persistenceShift, uint16(v.persistence))
	cfg = SetBits(cfg, itWidth, itShift, uint16(state.IntegrationTime))
	cfg = SetBits(cfg, gainWidth, gainShift, uint16(state.Gain))

	if err := v.regs.WriteRegister(VEML7700_REGISTER_ALS_CONFIG, cfg); err != nil {
		return v.abortInitialize(fmt.Errorf("configure: %w", err))
	}
	if err := v.regs.WriteRegister(VEML7700_REGISTER_POWER_SAVE, 0); err != nil {
		return v.abortInitialize(fmt.Errorf("power save: %w", err))
	}
	if err := v.regs.WriteBits(VEML7700_REGISTER_ALS_CONFIG, shutdownWidth, shutdownShift, 0); err != nil {
		return v.abortInitialize(fmt.Errorf("enable: %w", err))
	}
	state.Enabled = true
	v.ctrl.Commit(state)

	l.Debugf("Initialized - Gain: %v, Integration Time: %v", state.Gain, state.IntegrationTime)
	return nil
}

func (v *VEML7700) abortInitialize(err error) error {
	if serr := v.regs.WriteBits(VEML7700_REGISTER_ALS_CONFIG, shutdownWidth, shutdownShift, 1); serr != nil {
		err = errors.Join(err, serr)
	}
	state := v.ctrl.State()
	state.Enabled = false
	v.ctrl.Commit(state)
	return err
}

// Exposure is a snapshot of the current exposure.
func (v *VEML7700) Exposure() ExposureState {
	return v.ctrl.State()
}

// IntegrationMs is the current integration time in milliseconds.
func (v *VEML7700) IntegrationMs() int {
	return v.ctrl.IntegrationMs()
}

// Enable or disable the sensor
func (v *VEML7700) Enable(on bool) error {
	if err := v.regs.WriteBits(VEML7700_REGISTER_ALS_CONFIG, shutdownWidth, shutdownShift, boolBit(!on)); err != nil {
		return err
	}
	state := v.ctrl.State()
	state.Enabled = on
	v.ctrl.Commit(state)
	return nil
}

func (v *VEML7700) Enabled() bool {
	return v.ctrl.State().Enabled
}

// Set the gain for the sensor
func (v *VEML7700) SetGain(gain Gain) error {
	return v.SetExposure(gain, v.ctrl.State().IntegrationTime)
}

func (v *VEML7700) Gain() Gain {
	return v.ctrl.State().Gain
}

// Set the integration timing for the sensor
func (v *VEML7700) SetIntegrationTime(it IntegrationTime) error {
	return v.SetExposure(v.ctrl.State().Gain, it)
}

func (v *VEML7700) IntegrationTime() IntegrationTime {
	return v.ctrl.State().IntegrationTime
}

// SetExposure changes gain and integration time in one disable, configure,
// enable cycle. A sensor that was disabled stays disabled.
func (v *VEML7700) SetExposure(gain Gain, it IntegrationTime) error {
	if !gain.Valid() {
		return fmt.Errorf("%w: 0x%02x", ErrInvalidGain, byte(gain))
	}
	if !it.Valid() {
		return fmt.Errorf("%w: 0x%02x", ErrInvalidIntegrationTime, byte(it))
	}
	next := v.ctrl.State()
	next.Gain = gain
	next.IntegrationTime = it
	return v.applyExposure(next)
}

func (v *VEML7700) applyExposure(next ExposureState) error {
	cur := v.ctrl.State()
	next.Enabled = cur.Enabled
	if next == cur {
		return nil
	}
	if err := v.writeExposure(cur, next); err != nil {
		err = fmt.Errorf("apply exposure %v/%v: %w", next.Gain, next.IntegrationTime, err)
		if rerr := v.resync(); rerr != nil {
			return errors.Join(err, rerr)
		}
		return err
	}
	v.ctrl.Commit(next)
	l.Debugf("Set - Gain: %v, Integration Time: %v", next.Gain, next.IntegrationTime)
	return nil
}

func (v *VEML7700) writeExposure(cur, next ExposureState) error {
	if cur.Enabled {
		if err := v.regs.WriteBits(VEML7700_REGISTER_ALS_CONFIG, shutdownWidth, shutdownShift, 1); err != nil {
			return err
		}
	}
	if next.Gain != cur.Gain {
		if err := v.regs.WriteBits(VEML7700_REGISTER_ALS_CONFIG, gainWidth, gainShift, uint16(next.Gain)); err != nil {
			return err
		}
	}
	if next.IntegrationTime != cur.IntegrationTime {
		if err := v.regs.WriteBits(VEML7700_REGISTER_ALS_CONFIG, itWidth, itShift, uint16(next.IntegrationTime)); err != nil {
			return err
		}
	}
	if cur.Enabled {
		return v.regs.WriteBits(VEML7700_REGISTER_ALS_CONFIG, shutdownWidth, shutdownShift, 0)
	}
	return nil
}

// resync reloads the exposure from the config register after a failed write.
func (v *VEML7700) resync() error {
	cfg, err := v.regs.ReadRegister(VEML7700_REGISTER_ALS_CONFIG)
	if err != nil {
		return fmt.Errorf("resync: %w", err)
	}
	state := ExposureState{
		Gain:            Gain(GetBits(cfg, gainWidth, gainShift)),
		IntegrationTime: IntegrationTime(GetBits(cfg, itWidth, itShift)),
		Enabled:         GetBits(cfg, shutdownWidth, shutdownShift) == 0,
	}
	if !state.Valid() {
		return fmt.Errorf("resync: config register 0x%04x holds an invalid exposure", cfg)
	}
	v.ctrl.Commit(state)
	return nil
}

// Read the raw ALS count
func (v *VEML7700) ReadRawCount() (uint16, error) {
	return v.regs.ReadRegister(VEML7700_REGISTER_ALS_DATA)
}

// ReadLux reads the ALS count and converts it at the current exposure,
// correcting for nonlinearity at (1/8x, 25ms).
func (v *VEML7700) ReadLux() (float64, error) {
	raw, err := v.ReadRawCount()
	if err != nil {
		return 0, err
	}
	s := v.ctrl.State()
	return CalibratedLux(raw, s.Gain, s.IntegrationTime), nil
}

// ReadLuxLinear is ReadLux without the nonlinearity correction.
func (v *VEML7700) ReadLuxLinear() (float64, error) {
	raw, err := v.ReadRawCount()
	if err != nil {
		return 0, err
	}
	s := v.ctrl.State()
	return ToLux(raw, s.Gain, s.IntegrationTime), nil
}

// Read the raw white channel count
func (v *VEML7700) ReadWhiteCount() (uint16, error) {
	return v.regs.ReadRegister(VEML7700_REGISTER_WHITE_DATA)
}

// ReadWhite reads the white channel with the white nonlinearity correction
// at (1/8x, 25ms).
func (v *VEML7700) ReadWhite() (float64, error) {
	raw, err := v.ReadWhiteCount()
	if err != nil {
		return 0, err
	}
	s := v.ctrl.State()
	return CalibratedWhite(raw, s.Gain, s.IntegrationTime), nil
}

func (v *VEML7700) ReadWhiteLinear() (float64, error) {
	raw, err := v.ReadWhiteCount()
	if err != nil {
		return 0, err
	}
	s := v.ctrl.State()
	return ToLux(raw, s.Gain, s.IntegrationTime), nil
}

// SetAutoThresholds sets the raw count band the adaptive reads aim for.
func (v *VEML7700) SetAutoThresholds(low, high uint16) error {
	return v.ctrl.SetThresholds(Thresholds{Low: low, High: high})
}

func (v *VEML7700) AutoThresholds() Thresholds {
	return v.ctrl.Thresholds()
}

// SetCorrection toggles nonlinearity correction for adaptive reads.
func (v *VEML7700) SetCorrection(on bool) {
	v.ctrl.SetCorrection(on)
}

// ReadLuxAutoStep takes one reading and moves the exposure at most one step
// toward the threshold band. The new exposure only applies to a reading
// taken at least result.Settle later. TOO_LOW and TOO_HIGH are degraded
// readings, not errors. ErrOutOfDynamicRange is returned with the result
// when the ADC saturates at the least sensitive exposure.
func (v *VEML7700) ReadLuxAutoStep() (AutoResult, error) {
	if !v.Enabled() {
		return AutoResult{}, ErrSensorDisabled
	}
	raw, err := v.ReadRawCount()
	if err != nil {
		return AutoResult{}, err
	}
	res := v.ctrl.Evaluate(raw)
	if v.ctrl.OutOfRange(raw) {
		l.Warnf("Out of range - Raw: %d, Lux: %.1f", raw, res.Lux)
		return res, ErrOutOfDynamicRange
	}
	if res.Changed {
		if err := v.applyExposure(res.Next); err != nil {
			res.Next = v.ctrl.State()
			res.Changed = false
			res.Settle = 0
			return res, err
		}
	}
	return res, nil
}

// ReadLuxAutoConverge repeats ReadLuxAutoStep, sleeping out each settle
// time, until a GOOD reading, an exposure limit, or a reversal of direction
// (a band narrower than one exposure step). It blocks for up to about two
// seconds and cannot be cancelled; poll ReadLuxAutoStep instead when that
// matters.
func (v *VEML7700) ReadLuxAutoConverge() (AutoResult, error) {
	var res AutoResult
	var last Classification
	for i := 0; i <= MaxConvergeSteps; i++ {
		var err error
		res, err = v.ReadLuxAutoStep()
		if err != nil || !res.Changed {
			return res, err
		}
		if i > 0 && res.Classification != last {
			return res, nil
		}
		last = res.Classification
		v.sleep(res.Settle)
	}
	return res, nil
}

// Enable or disable the threshold interrupt
func (v *VEML7700) InterruptEnable(on bool) error {
	return v.regs.WriteBits(VEML7700_REGISTER_ALS_CONFIG, interruptWidth, interruptShift, boolBit(on))
}

func (v *VEML7700) InterruptEnabled() (bool, error) {
	b, err := v.regs.ReadBits(VEML7700_REGISTER_ALS_CONFIG, interruptWidth, interruptShift)
	return b == 1, err
}

// Set the ALS IRQ persistence setting
func (v *VEML7700) SetPersistence(p Persistence) error {
	if err := v.regs.WriteBits(VEML7700_REGISTER_ALS_CONFIG, persistenceWidth, persistenceShift, uint16(p)); err != nil {
		return err
	}
	v.persistence = p & 0x03
	return nil
}

func (v *VEML7700) Persistence() (Persistence, error) {
	b, err := v.regs.ReadBits(VEML7700_REGISTER_ALS_CONFIG, persistenceWidth, persistenceShift)
	return Persistence(b), err
}

func (v *VEML7700) PowerSaveEnable(on bool) error {
	return v.regs.WriteBits(VEML7700_REGISTER_POWER_SAVE, psEnableWidth, psEnableShift, boolBit(on))
}

func (v *VEML7700) PowerSaveEnabled() (bool, error) {
	b, err := v.regs.ReadBits(VEML7700_REGISTER_POWER_SAVE, psEnableWidth, psEnableShift)
	return b == 1, err
}

func (v *VEML7700) SetPowerSaveMode(m PowerSaveMode) error {
	return v.regs.WriteBits(VEML7700_REGISTER_POWER_SAVE, psModeWidth, psModeShift, uint16(m))
}

func (v *VEML7700) PowerSaveMode() (PowerSaveMode, error) {
	b, err := v.regs.ReadBits(VEML7700_REGISTER_POWER_SAVE, psModeWidth, psModeShift)
	return PowerSaveMode(b), err
}

// IRQ trip points, in raw counts
func (v *VEML7700) SetLowThreshold(value uint16) error {
	return v.regs.WriteRegister(VEML7700_REGISTER_THRESHOLD_LOW, value)
}

func (v *VEML7700) LowThreshold() (uint16, error) {
	return v.regs.ReadRegister(VEML7700_REGISTER_THRESHOLD_LOW)
}

func (v *VEML7700) SetHighThreshold(value uint16) error {
	return v.regs.WriteRegister(VEML7700_REGISTER_THRESHOLD_HIGH, value)
}

func (v *VEML7700) HighThreshold() (uint16, error) {
	return v.regs.ReadRegister(VEML7700_REGISTER_THRESHOLD_HIGH)
}

func (v *VEML7700) InterruptStatus() (InterruptStatus, error) {
	s, err := v.regs.ReadRegister(VEML7700_REGISTER_INTERRUPT_STATUS)
	if err != nil {
		return InterruptStatus{}, err
	}
	return InterruptStatus{
		High: s&VEML7700_INTERRUPT_HIGH != 0,
		Low:  s&VEML7700_INTERRUPT_LOW != 0,
	}, nil
}

// RefreshTime is how long a new reading takes: the power save wait when
// power save is on, plus the integration time, plus 3ms power-on time.
func (v *VEML7700) RefreshTime() (time.Duration, error) {
	ps, err := v.regs.ReadRegister(VEML7700_REGISTER_POWER_SAVE)
	if err != nil {
		return 0, err
	}
	d := v.ctrl.State().IntegrationTime.Duration() + 3*time.Millisecond
	if GetBits(ps, psEnableWidth, psEnableShift) == 1 {
		d += PowerSaveMode(GetBits(ps, psModeWidth, psModeShift)).Wait()
	}
	return d, nil
}

func boolBit(b bool) uint16 {
	if b {
		return 1
	}
	return 0
}
