//go:build windows

package gpiomem

import (
	"errors"
	"pinctl/pkg/port"
)

// ErrNotSupported is returned on systems without /dev/gpiomem.
var ErrNotSupported = errors.New("gpiomem: not supported on windows")

// Driver is a placeholder on windows.
type Driver struct{}

// Open always fails.
func Open() (*Driver, error) {
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
