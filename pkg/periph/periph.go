// Package periph implements the pin-control surface with the periph.io host drivers.
package periph

import (
	"fmt"
	"pinctl/pkg/port"
	"strconv"
	"sync"

	"github.com/womat/debug"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// Driver looks up pins in the periph.io gpio registry by their gpio number.
type Driver struct {
	byName func(name string) gpio.PinIO

	mu   sync.Mutex
	pins map[int]gpio.PinIO
}

// Open initializes the periph.io host drivers.
func Open() (*Driver, error) {
	state, err := host.Init()
	if err != nil {
		return nil, fmt.Errorf("periph: host init: %w", err)
	}

	for _, f := range state.Failed {
		debug.DebugLog.Printf("periph driver %s failed: %v", f.D, f.Err)
	}
	return newDriver(gpioreg.ByName), nil
}

func newDriver(byName func(string) gpio.PinIO) *Driver {
	return &Driver{byName: byName, pins: map[int]gpio.PinIO{}}
}

// Export implements gpio.Driver.
func (d *Driver) Export(pin int) error {
	p := d.byName("GPIO" + strconv.Itoa(pin))
	if p == nil {
		return fmt.Errorf("periph: no pin GPIO%d", pin)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.pins[pin] = p
	return nil
}

// Unexport implements gpio.Driver, the pin is halted.
func (d *Driver) Unexport(pin int) error {
	d.mu.Lock()
	p, ok := d.pins[pin]
	delete(d.pins, pin)
	d.mu.Unlock()

	if !ok {
		return fmt.Errorf("periph: GPIO%d not exported", pin)
	}
	return p.Halt()
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
		return p.In(gpio.PullNoChange, gpio.NoEdge)
	case port.Output:
		return p.Out(gpio.Low)
	}
	return fmt.Errorf("periph: invalid direction %v", dir)
}

// ValuePath implements gpio.Driver.
func (d *Driver) ValuePath(pin int) string {
	return "GPIO" + strconv.Itoa(pin)
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
		return p.Out(gpio.Low)
	case "1":
		return p.Out(gpio.High)
	}
	return fmt.Errorf("periph: invalid value %q", b)
}

// Close implements gpio.Driver.
func (d *Driver) Close() error {
	return nil
}

func (d *Driver) pin(pin int) (gpio.PinIO, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.pins[pin]
	if !ok {
		return nil, fmt.Errorf("periph: GPIO%d not exported", pin)
	}
	return p, nil
}
