package veml7700

import (
	"fmt"
	"time"
)

// MaxConvergeSteps bounds the exposure changes in one converging read: three
// gain steps plus five integration time steps walk the whole range.
const MaxConvergeSteps = len(gainSteps) - 1 + len(itSteps) - 1

// Classification tells whether a raw count sits inside the threshold band.
type Classification int

const (
	GOOD     Classification = iota // low < raw <= high
	TOO_LOW                        // raw <= low, close to the noise floor
	TOO_HIGH                       // raw > high, close to saturation
)

func (c Classification) String() string {
	switch c {
	case GOOD:
		return "GOOD"
	case TOO_LOW:
		return "TOO_LOW"
	case TOO_HIGH:
		return "TOO_HIGH"
	default:
		return fmt.Sprintf("Classification(%d)", int(c))
	}
}

// Thresholds is the acceptable raw count band.
type Thresholds struct {
	Low  uint16 `json:"low"`
	High uint16 `json:"high"`
}

// DefaultThresholds follows the app note's auto-gain example.
var DefaultThresholds = Thresholds{Low: 100, High: 10000}

func (t Thresholds) Validate() error {
	if t.Low >= t.High {
		return fmt.Errorf("%w: low=%d high=%d", ErrInvalidThresholds, t.Low, t.High)
	}
	return nil
}

func (t Thresholds) Classify(raw uint16) Classification {
	switch {
	case raw <= t.Low:
		return TOO_LOW
	case raw > t.High:
		return TOO_HIGH
	default:
		return GOOD
	}
}

// AutoResult is the outcome of one adaptive read.
type AutoResult struct {
	Lux            float64
	Raw            uint16
	Classification Classification
	// Exposure is the state the reading was taken with.
	Exposure ExposureState
	// Next is the state in effect for the following reading.
	Next    ExposureState
	Changed bool
	// Settle is the minimum wait before the next reading is valid. It is
	// zero when the exposure did not change.
	Settle time.Duration
}

// Controller keeps the raw count inside the threshold band by walking the
// exposure one step at a time. It owns the ExposureState of one sensor and
// performs no I/O.
type Controller struct {
	state      ExposureState
	thresholds Thresholds
	correction bool
}

func NewController(state ExposureState, thresholds Thresholds) (*Controller, error) {
	if !state.Valid() {
		return nil, fmt.Errorf("invalid exposure %s/%s", state.Gain, state.IntegrationTime)
	}
	if err := thresholds.Validate(); err != nil {
		return nil, err
	}
	return &Controller{state: state, thresholds: thresholds, correction: true}, nil
}

func (c *Controller) State() ExposureState {
	return c.state
}

func (c *Controller) Thresholds() Thresholds {
	return c.thresholds
}

func (c *Controller) SetThresholds(t Thresholds) error {
	if err := t.Validate(); err != nil {
		return err
	}
	c.thresholds = t
	return nil
}

// SetCorrection toggles the nonlinearity correction used by Evaluate.
func (c *Controller) SetCorrection(on bool) {
	c.correction = on
}

// IntegrationMs lets callers of single-step reads size their wait.
func (c *Controller) IntegrationMs() int {
	return c.state.IntegrationMs()
}

// Lux converts raw at the current exposure.
func (c *Controller) Lux(raw uint16) float64 {
	if c.correction {
		return CalibratedLux(raw, c.state.Gain, c.state.IntegrationTime)
	}
	return ToLux(raw, c.state.Gain, c.state.IntegrationTime)
}

// Evaluate classifies raw and computes the next exposure without changing
// any state. At most one of gain and integration time differs in Next.
func (c *Controller) Evaluate(raw uint16) AutoResult {
	res := AutoResult{
		Lux:            c.Lux(raw),
		Raw:            raw,
		Classification: c.thresholds.Classify(raw),
		Exposure:       c.state,
		Next:           c.state,
	}
	switch res.Classification {
	case TOO_LOW:
		res.Next, res.Changed = Increase(c.state)
	case TOO_HIGH:
		res.Next, res.Changed = Decrease(c.state)
	}
	if res.Changed {
		res.Settle = res.Next.Settle()
	}
	return res
}

// OutOfRange reports a saturated count at the least sensitive exposure.
func (c *Controller) OutOfRange(raw uint16) bool {
	return raw >= VEML7700_SATURATED && c.state.LeastSensitive()
}

// Commit records s as the exposure now programmed in hardware.
func (c *Controller) Commit(s ExposureState) {
	c.state = s
}
