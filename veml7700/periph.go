package veml7700

import (
	"fmt"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// PeriphBus is an I2C bus from the periph.io registry.
type PeriphBus struct {
	bus i2c.BusCloser
}

// OpenPeriph opens a bus by name ("1", "I2C1", "/dev/i2c-1"). An empty
// name picks the first available bus.
func OpenPeriph(name string) (*PeriphBus, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("host init: %w", err)
	}
	bus, err := i2creg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open i2c: %w", err)
	}
	return &PeriphBus{bus: bus}, nil
}

func (b *PeriphBus) Tx(addr uint16, w, r []byte) error {
	return b.bus.Tx(addr, w, r)
}

func (b *PeriphBus) Close() error {
	if b.bus != nil {
		return b.bus.Close()
	}
	return nil
}
