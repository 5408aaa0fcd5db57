//go:build !linux

package chardev

import (
	"errors"
	"pinctl/pkg/port"
)

const DefaultChip = "gpiochip0"

// ErrNotSupported is returned on systems without gpio character devices.
var ErrNotSupported = errors.New("chardev: gpio character devices are only supported on linux")

// Driver is a placeholder on systems without gpio character devices.
type Driver struct{}

// Open always fails.
func Open(string) (*Driver, error) {
	return nil, ErrNotSupported
}

func (d *Driver) Export(int) error { return ErrNotSupported }
func (d *Driver) Unexport(int) error { return ErrNotSupported }
func (d *Driver) Exported(int) bool { return false }
func (d *Driver) SetDirection(int, port.Direction) error { return ErrNotSupported }
func (d *Driver) ValuePath(int) string { return "" }
func (d *Driver) ReadValue(int) ([]byte, error) { return nil, ErrNotSupported }
func (d *Driver) WriteValue(int, []byte) error { return ErrNotSupported }
func (d *Driver) Close() error { return nil }
