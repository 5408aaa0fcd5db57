//go:build linux

// Package chardev implements the pin-control surface on top of the gpio character device.
package chardev

import (
	"errors"
	"fmt"
	"os"
	"pinctl/pkg/port"
	"strconv"
	"sync"

	"github.com/warthog618/gpiod"
	"github.com/womat/debug"
)

// DefaultChip is the gpio chip of the 40 pin header of a Raspberry Pi.
const DefaultChip = "gpiochip0"

// Consumer is the label shown for requested lines.
const Consumer = "pinctl"

var ErrInvalidValue = errors.New("chardev: invalid value")

// line is the part of a requested gpiod line used by the driver.
type line interface {
	Value() (int, error)
	SetValue(int) error
	Close() error
}

// Driver represents a single GPIO chip that controls a set of lines.
//  Export reserves an offset, the line is requested when the direction is set.
type Driver struct {
	name      string
	size      int
	request   func(pin int, dir port.Direction) (line, error)
	closeChip func() error

	mu       sync.Mutex
	exported map[int]bool
	lines    map[int]line
}

// Open opens a GPIO character device, an empty name selects DefaultChip.
func Open(name string) (*Driver, error) {
	if name == "" {
		name = DefaultChip
	}

	c, err := gpiod.NewChip(name, gpiod.WithConsumer(Consumer))
	if err != nil {
		return nil, err
	}

	debug.DebugLog.Printf("gpio chip %s with %d lines", c.Name, c.Lines())
	return newDriver(c.Name, c.Lines(), func(pin int, dir port.Direction) (line, error) {
		switch dir {
		case port.Input:
			return c.RequestLine(pin, gpiod.AsInput)
		case port.Output:
			return c.RequestLine(pin, gpiod.AsOutput(0))
		}
		return nil, fmt.Errorf("chardev: invalid direction %v", dir)
	}, c.Close), nil
}

func newDriver(name string, size int, request func(int, port.Direction) (line, error), closeChip func() error) *Driver {
	return &Driver{
		name:      name,
		size:      size,
		request:   request,
		closeChip: closeChip,
		exported:  map[int]bool{},
		lines:     map[int]line{},
	}
}

// Export implements gpio.Driver.
func (d *Driver) Export(pin int) error {
	if pin < 0 || pin >= d.size {
		return fmt.Errorf("chardev: %s has no line %d", d.name, pin)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.exported[pin] = true
	return nil
}

// Unexport implements gpio.Driver.
func (d *Driver) Unexport(pin int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.exported[pin] {
		return os.ErrNotExist
	}
	delete(d.exported, pin)
	return d.closeLine(pin)
}

// Exported implements gpio.Driver.
func (d *Driver) Exported(pin int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.exported[pin]
}

// SetDirection implements gpio.Driver. The line is requested again with the new direction.
func (d *Driver) SetDirection(pin int, dir port.Direction) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.exported[pin] {
		return os.ErrNotExist
	}
	if err := d.closeLine(pin); err != nil {
		return err
	}

	l, err := d.request(pin, dir)
	if err != nil {
		return err
	}

	d.lines[pin] = l
	return nil
}

// ValuePath implements gpio.Driver.
func (d *Driver) ValuePath(pin int) string {
	return d.name + "/" + strconv.Itoa(pin)
}

// ReadValue implements gpio.Driver.
func (d *Driver) ReadValue(pin int) ([]byte, error) {
	l, err := d.line(pin)
	if err != nil {
		return nil, err
	}

	v, err := l.Value()
	if err != nil {
		return nil, err
	}
	return []byte(strconv.Itoa(v)), nil
}

// WriteValue implements gpio.Driver.
func (d *Driver) WriteValue(pin int, b []byte) error {
	l, err := d.line(pin)
	if err != nil {
		return err
	}

	switch string(b) {
	case "0":
		return l.SetValue(0)
	case "1":
		return l.SetValue(1)
	}
	return ErrInvalidValue
}

// Close releases all requested lines and the chip.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for pin := range d.lines {
		if err := d.closeLine(pin); err != nil {
			debug.ErrorLog.Printf("can't close line %d: %v", pin, err)
		}
	}
	return d.closeChip()
}

func (d *Driver) line(pin int) (line, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	l, ok := d.lines[pin]
	if !ok {
		return nil, os.ErrNotExist
	}
	return l, nil
}

// closeLine releases the requested line of pin, d.mu must be held.
func (d *Driver) closeLine(pin int) error {
	l, ok := d.lines[pin]
	if !ok {
		return nil
	}
	delete(d.lines, pin)
	return l.Close()
}
