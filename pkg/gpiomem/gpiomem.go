//go:build !windows

// Package gpiomem implements the pin-control surface on the memory mapped gpio registers (/dev/gpiomem).
//
// There is no export step at the OS level, a pin is exported by creating its
// register accessor and unexported by returning it to input.
package gpiomem

import (
	"os"
	"pinctl/pkg/port"
	"strconv"
	"sync"

	"github.com/warthog618/gpio"
)

// maxPin is the number of gpios of the BCM283x.
const maxPin = 54

// register is the register accessor of one pin, implemented by *gpio.Pin.
type register interface {
	Input()
	Output()
	Read() gpio.Level
	Write(gpio.Level)
}

// Driver accesses the gpio registers of a Raspberry Pi.
type Driver struct {
	newPin func(pin int) register
	unmap  func() error

	mu   sync.Mutex
	pins map[int]register
}

// Open GPIO memory range from /dev/gpiomem.
func Open() (*Driver, error) {
	if err := gpio.Open(); err != nil {
		return nil, err
	}
	return newDriver(func(pin int) register { return gpio.NewPin(pin) }, gpio.Close), nil
}

func newDriver(newPin func(int) register, unmap func() error) *Driver {
	return &Driver{
		newPin: newPin,
		unmap:  unmap,
		pins:   map[int]register{},
	}
}

// Export implements gpio.Driver. The pin number is the BCM GPIO number.
func (d *Driver) Export(pin int) error {
	if pin < 0 || pin >= maxPin {
		return os.ErrNotExist
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.pins[pin] = d.newPin(pin)
	return nil
}

// Unexport implements gpio.Driver, the pin is left as input.
func (d *Driver) Unexport(pin int) error {
	p, err := d.pin(pin)
	if err != nil {
		return err
	}

	p.Input()

	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.pins, pin)
	return nil
}

// Exported implements gpio.Driver.
func (d *Driver) Exported(pin int) bool {
	_, err := d.pin(pin)
	return err == nil
}

// SetDirection implements gpio.Driver.
func (d *Driver) SetDirection(pin int, dir port.Direction) error {
	p, err := d.pin(pin)
	if err != nil {
		return err
	}

	switch dir {
	case port.Input:
		p.Input()
	case port.Output:
		p.Output()
	default:
		return os.ErrInvalid
	}
	return nil
}

// ValuePath implements gpio.Driver.
func (d *Driver) ValuePath(pin int) string {
	return "/dev/gpiomem:" + strconv.Itoa(pin)
}

// ReadValue implements gpio.Driver.
func (d *Driver) ReadValue(pin int) ([]byte, error) {
	p, err := d.pin(pin)
	if err != nil {
		return nil, err
	}

	if p.Read() == gpio.High {
		return []byte("1"), nil
	}
	return []byte("0"), nil
}

// WriteValue implements gpio.Driver.
func (d *Driver) WriteValue(pin int, b []byte) error {
	p, err := d.pin(pin)
	if err != nil {
		return err
	}

	switch string(b) {
	case "0":
		p.Write(gpio.Low)
	case "1":
		p.Write(gpio.High)
	default:
		return os.ErrInvalid
	}
	return nil
}

// Close unmaps GPIO memory.
func (d *Driver) Close() error {
	return d.unmap()
}

func (d *Driver) pin(pin int) (register, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.pins[pin]
	if !ok {
		return nil, os.ErrNotExist
	}
	return p, nil
}
