package veml7700

import (
	"encoding/binary"
	"fmt"

	"tinygo.org/x/drivers"
)

// Registers is word and bit-field access to a 16-bit register device.
type Registers interface {
	ReadRegister(reg byte) (uint16, error)
	WriteRegister(reg byte, value uint16) error
	ReadBits(reg byte, width, shift uint8) (uint16, error)
	WriteBits(reg byte, width, shift uint8, value uint16) error
}

// RegisterBus implements Registers for a device at addr on an I2C bus.
// Words are little-endian on the wire.
type RegisterBus struct {
	bus  drivers.I2C
	addr uint16
}

func NewRegisterBus(bus drivers.I2C, addr uint16) *RegisterBus {
	return &RegisterBus{bus: bus, addr: addr}
}

func (b *RegisterBus) ReadRegister(reg byte) (uint16, error) {
	buf := make([]byte, 2)
	if err := b.bus.Tx(b.addr, []byte{reg}, buf); err != nil {
		return 0, fmt.Errorf("read register 0x%02x: %w", reg, err)
	}
	return binary.LittleEndian.Uint16(buf), nil
}

func (b *RegisterBus) WriteRegister(reg byte, value uint16) error {
	w := []byte{reg, 0, 0}
	binary.LittleEndian.PutUint16(w[1:], value)
	if err := b.bus.Tx(b.addr, w, nil); err != nil {
		return fmt.Errorf("write register 0x%02x: %w", reg, err)
	}
	return nil
}

func (b *RegisterBus) ReadBits(reg byte, width, shift uint8) (uint16, error) {
	v, err := b.ReadRegister(reg)
	if err != nil {
		return 0, err
	}
	return GetBits(v, width, shift), nil
}

// WriteBits is a read-modify-write of one field; other bits are preserved.
func (b *RegisterBus) WriteBits(reg byte, width, shift uint8, value uint16) error {
	v, err := b.ReadRegister(reg)
	if err != nil {
		return err
	}
	return b.WriteRegister(reg, SetBits(v, width, shift, value))
}

func fieldMask(width uint8) uint16 {
	return uint16(1)<<width - 1
}

// GetBits extracts the width-bit field at shift.
func GetBits(v uint16, width, shift uint8) uint16 {
	return (v >> shift) & fieldMask(width)
}

// SetBits replaces the width-bit field at shift. Excess value bits are dropped.
func SetBits(v uint16, width, shift uint8, value uint16) uint16 {
	mask := fieldMask(width) << shift
	return v&^mask | (value<<shift)&mask
}
