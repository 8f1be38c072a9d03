package veml7700

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
)

// ErrNoAck is what the Simulator returns for a transaction to another address.
var ErrNoAck = errors.New("simulator: no acknowledge")

// Simulator is an in-memory VEML7700 on a fake I2C bus. Counts follow the
// linear lux model for a configurable ambient light level. Gain and
// integration time are latched when the sensor goes from shutdown to
// enabled, like the real part.
type Simulator struct {
	mu         sync.Mutex
	addr       uint16
	regs       [8]uint16
	ambient    float64
	whiteRatio float64

	armedGain Gain
	armedIT   IntegrationTime
	als       uint16
	white     uint16
	txCount   int
}

// NewSimulator returns a powered-on, shut-down device lit at lux.
func NewSimulator(lux float64) *Simulator {
	s := &Simulator{
		addr:       VEML7700_ADDR,
		ambient:    lux,
		whiteRatio: 1.15,
		armedGain:  VEML7700_GAIN_1,
		armedIT:    VEML7700_IT_100MS,
	}
	s.regs[VEML7700_REGISTER_ALS_CONFIG] = 0x0001
	s.regs[VEML7700_REGISTER_ID] = 0xC400 | uint16(VEML7700_DEVICE_ID)
	return s
}

func (s *Simulator) SetAmbient(lux float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ambient = lux
}

func (s *Simulator) Ambient() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ambient
}

// SetAddress moves the device, so transactions to the old address NACK.
func (s *Simulator) SetAddress(addr uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addr = addr
}

// SetID overrides the ID register.
func (s *Simulator) SetID(id uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.regs[VEML7700_REGISTER_ID] = id
}

// Register returns the raw register value without side effects.
func (s *Simulator) Register(reg byte) uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.regs[reg]
}

// Armed returns the gain and integration time measurements are taken with.
func (s *Simulator) Armed() (Gain, IntegrationTime) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.armedGain, s.armedIT
}

// Transactions counts every Tx call, acknowledged or not.
func (s *Simulator) Transactions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txCount
}

func (s *Simulator) Tx(addr uint16, w, r []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txCount++

	if addr != s.addr {
		return ErrNoAck
	}
	if len(w) == 0 {
		return errors.New("simulator: missing register address")
	}
	reg := w[0]
	if int(reg) >= len(s.regs) {
		return fmt.Errorf("simulator: no register 0x%02x", reg)
	}
	if len(r) == 0 {
		if len(w) != 3 {
			return fmt.Errorf("simulator: write of %d bytes", len(w))
		}
		s.write(reg, binary.LittleEndian.Uint16(w[1:]))
		return nil
	}
	if len(r) != 2 {
		return fmt.Errorf("simulator: read of %d bytes", len(r))
	}
	binary.LittleEndian.PutUint16(r, s.read(reg))
	return nil
}

func (s *Simulator) enabled() bool {
	return s.regs[VEML7700_REGISTER_ALS_CONFIG]&0x0001 == 0
}

func (s *Simulator) write(reg byte, v uint16) {
	switch reg {
	case VEML7700_REGISTER_ALS_DATA, VEML7700_REGISTER_WHITE_DATA,
		VEML7700_REGISTER_INTERRUPT_STATUS, VEML7700_REGISTER_ID:
		return
	case VEML7700_REGISTER_ALS_CONFIG:
		wasEnabled := s.enabled()
		s.regs[reg] = v
		if s.enabled() && !wasEnabled {
			s.armedGain = Gain(GetBits(v, gainWidth, gainShift))
			s.armedIT = IntegrationTime(GetBits(v, itWidth, itShift))
		}
	default:
		s.regs[reg] = v
	}
}

func (s *Simulator) read(reg byte) uint16 {
	switch reg {
	case VEML7700_REGISTER_ALS_DATA:
		if s.enabled() {
			s.als = s.count(s.ambient)
		}
		return s.als
	case VEML7700_REGISTER_WHITE_DATA:
		if s.enabled() {
			s.white = s.count(s.ambient * s.whiteRatio)
		}
		return s.white
	case VEML7700_REGISTER_INTERRUPT_STATUS:
		var status uint16
		if s.enabled() && GetBits(s.regs[VEML7700_REGISTER_ALS_CONFIG], interruptWidth, interruptShift) == 1 {
			if s.als > s.regs[VEML7700_REGISTER_THRESHOLD_HIGH] {
				status |= VEML7700_INTERRUPT_HIGH
			}
			if s.als < s.regs[VEML7700_REGISTER_THRESHOLD_LOW] {
				status |= VEML7700_INTERRUPT_LOW
			}
		}
		return status
	default:
		return s.regs[reg]
	}
}

func (s *Simulator) count(lux float64) uint16 {
	if !s.armedGain.Valid() || !s.armedIT.Valid() || lux <= 0 {
		return 0
	}
	c := math.Floor(lux / Resolution(s.armedGain, s.armedIT))
	if c >= float64(VEML7700_SATURATED) {
		return VEML7700_SATURATED
	}
	return uint16(c)
}

func (s *Simulator) Close() error { return nil }
