package veml7700

import (
	"fmt"
	"sync"

	"golang.org/x/exp/io/i2c"
)

// DevfsBus is a Linux /dev/i2c-N bus. Devices are opened lazily per address.
type DevfsBus struct {
	path    string
	mu      sync.Mutex
	devices map[uint16]*i2c.Device
}

func OpenDevfs(path string) *DevfsBus {
	if path == "" {
		// i2c-1 is the default I2C bus for the Raspberry Pi
		path = "/dev/i2c-1"
	}
	return &DevfsBus{path: path, devices: map[uint16]*i2c.Device{}}
}

func (b *DevfsBus) device(addr uint16) (*i2c.Device, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if d, ok := b.devices[addr]; ok {
		return d, nil
	}
	d, err := i2c.Open(&i2c.Devfs{Dev: b.path}, int(addr))
	if err != nil {
		return nil, fmt.Errorf("Failed to open %s: %w", b.path, err)
	}
	b.devices[addr] = d
	return d, nil
}

// Tx writes w then reads len(r) bytes. A single byte w followed by a read is
// a register read.
func (b *DevfsBus) Tx(addr uint16, w, r []byte) error {
	d, err := b.device(addr)
	if err != nil {
		return err
	}
	switch {
	case len(r) == 0:
		return d.Write(w)
	case len(w) == 1:
		return d.ReadReg(w[0], r)
	case len(w) == 0:
		return d.Read(r)
	default:
		if err := d.Write(w); err != nil {
			return err
		}
		return d.Read(r)
	}
}

func (b *DevfsBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var first error
	for addr, d := range b.devices {
		if err := d.Close(); err != nil && first == nil {
			first = err
		}
		delete(b.devices, addr)
	}
	return first
}
