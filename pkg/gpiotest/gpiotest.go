// Package gpiotest is meant to be used to test code using fake pins.
//
// Driver emulates the pin-control surface in memory: a written value can be
// read back, and Set simulates a level change caused by the hardware.
package gpiotest

import (
	"errors"
	"fmt"
	"os"
	"pinctl/pkg/port"
	"sync"
	"time"
)

// ErrInjected is returned by operations listed in Driver.Fail.
var ErrInjected = errors.New("gpiotest: injected failure")

// Op names a driver operation for failure injection.
type Op string

const (
	OpExport       Op = "export"
	OpUnexport     Op = "unexport"
	OpSetDirection Op = "direction"
	OpRead         Op = "read"
	OpWrite        Op = "write"
)

// Write is one recorded value write.
type Write struct {
	Pin   int
	Value string
	Time  time.Time
}

type line struct {
	exported bool
	dir      port.Direction
	value    string
}

// Driver implements gpio.Driver in memory.
type Driver struct {
	// ExportDelay slows down Export to widen race windows in tests.
	ExportDelay time.Duration

	sync.Mutex
	lines     map[int]*line
	fail      map[Op]bool
	exports   map[int]int
	unexports map[int]int
	writes    []Write
	closed    bool
}

// New returns an empty fake driver.
func New() *Driver {
	return &Driver{
		lines:     map[int]*line{},
		fail:      map[Op]bool{},
		exports:   map[int]int{},
		unexports: map[int]int{},
	}
}

// Fail makes every following call of op fail with ErrInjected until reset with on = false.
func (d *Driver) Fail(op Op, on bool) {
	d.Lock()
	defer d.Unlock()
	d.fail[op] = on
}

// Set simulates an external level change of pin.
func (d *Driver) Set(pin int, l port.Level) {
	d.Lock()
	defer d.Unlock()
	d.line(pin).value = l.String()
}

// SetRaw sets the raw payload of the value resource of pin.
func (d *Driver) SetRaw(pin int, payload string) {
	d.Lock()
	defer d.Unlock()
	d.line(pin).value = payload
}

// Exports returns the number of Export calls for pin, failed calls included.
func (d *Driver) Exports(pin int) int {
	d.Lock()
	defer d.Unlock()
	return d.exports[pin]
}

// Unexports returns the number of Unexport calls for pin, failed calls included.
func (d *Driver) Unexports(pin int) int {
	d.Lock()
	defer d.Unlock()
	return d.unexports[pin]
}

// DirectionOf returns the configured direction of pin, Unclaimed if it isn't exported.
func (d *Driver) DirectionOf(pin int) port.Direction {
	d.Lock()
	defer d.Unlock()
	l, ok := d.lines[pin]
	if !ok || !l.exported {
		return port.Unclaimed
	}
	return l.dir
}

// Writes returns the recorded value writes.
func (d *Driver) Writes() []Write {
	d.Lock()
	defer d.Unlock()
	return append([]Write(nil), d.writes...)
}

// Export implements gpio.Driver.
func (d *Driver) Export(pin int) error {
	if d.ExportDelay > 0 {
		time.Sleep(d.ExportDelay)
	}

	d.Lock()
	defer d.Unlock()
	d.exports[pin]++
	if d.fail[OpExport] {
		return ErrInjected
	}
	l := d.line(pin)
	if l.exported {
		return fmt.Errorf("gpiotest: gpio%d already exported", pin)
	}
	l.exported = true
	l.dir = port.Input
	return nil
}

// Unexport implements gpio.Driver.
func (d *Driver) Unexport(pin int) error {
	d.Lock()
	defer d.Unlock()
	d.unexports[pin]++
	if d.fail[OpUnexport] {
		return ErrInjected
	}
	l := d.line(pin)
	if !l.exported {
		return fmt.Errorf("gpiotest: gpio%d not exported", pin)
	}
	l.exported = false
	l.dir = port.Unclaimed
	return nil
}

// Exported implements gpio.Driver.
func (d *Driver) Exported(pin int) bool {
	d.Lock()
	defer d.Unlock()
	l, ok := d.lines[pin]
	return ok && l.exported
}

// SetDirection implements gpio.Driver.
func (d *Driver) SetDirection(pin int, dir port.Direction) error {
	d.Lock()
	defer d.Unlock()
	if d.fail[OpSetDirection] {
		return ErrInjected
	}
	l := d.line(pin)
	if !l.exported {
		return os.ErrNotExist
	}
	l.dir = dir
	return nil
}

// ValuePath implements gpio.Driver.
func (d *Driver) ValuePath(pin int) string {
	return fmt.Sprintf("fake/gpio%d/value", pin)
}

// ReadValue implements gpio.Driver.
func (d *Driver) ReadValue(pin int) ([]byte, error) {
	d.Lock()
	defer d.Unlock()
	if d.fail[OpRead] {
		return nil, ErrInjected
	}
	l := d.line(pin)
	if !l.exported {
		return nil, os.ErrNotExist
	}
	return []byte(l.value + "\n"), nil
}

// WriteValue implements gpio.Driver.
func (d *Driver) WriteValue(pin int, b []byte) error {
	d.Lock()
	defer d.Unlock()
	if d.fail[OpWrite] {
		return ErrInjected
	}
	l := d.line(pin)
	if !l.exported {
		return os.ErrNotExist
	}
	if l.dir != port.Output {
		return fmt.Errorf("gpiotest: gpio%d is %v", pin, l.dir)
	}
	l.value = string(b)
	d.writes = append(d.writes, Write{Pin: pin, Value: string(b), Time: time.Now()})
	return nil
}

// Close implements gpio.Driver.
func (d *Driver) Close() error {
	d.Lock()
	defer d.Unlock()
	d.closed = true
	return nil
}

// Closed reports whether Close was called.
func (d *Driver) Closed() bool {
	d.Lock()
	defer d.Unlock()
	return d.closed
}

// line returns the state of pin, d must be locked.
func (d *Driver) line(pin int) *line {
	l, ok := d.lines[pin]
	if !ok {
		l = &line{value: "0"}
		d.lines[pin] = l
	}
	return l
}
