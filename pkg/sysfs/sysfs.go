// Package sysfs implements the pin-control surface of the linux sysfs gpio interface.
//
// The kernel exposes a pin after its number is written to <root>/export as the
// directory <root>/gpioN with the files direction ("in"/"out") and value ("0"/"1").
package sysfs

import (
	"errors"
	"os"
	"path/filepath"
	"pinctl/pkg/gpio"
	"pinctl/pkg/port"
	"strconv"

	"github.com/womat/debug"
)

// DefaultRoot is the mount point of the gpio class.
const DefaultRoot = "/sys/class/gpio"

var ErrDirection = errors.New("sysfs: invalid direction")

// Driver accesses the gpio files below Root.
type Driver struct {
	Root string
}

// Open returns a driver for root, an empty root selects DefaultRoot.
func Open(root string) (*Driver, error) {
	if root == "" {
		root = DefaultRoot
	}

	fi, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return nil, &os.PathError{Op: "open", Path: root, Err: errors.New("not a directory")}
	}

	debug.DebugLog.Printf("sysfs gpio at %s", root)
	return &Driver{Root: root}, nil
}

// Export implements gpio.Driver.
func (d *Driver) Export(pin int) error {
	return writeFile(filepath.Join(d.Root, "export"), strconv.Itoa(pin))
}

// Unexport implements gpio.Driver.
func (d *Driver) Unexport(pin int) error {
	return writeFile(filepath.Join(d.Root, "unexport"), strconv.Itoa(pin))
}

// Exported implements gpio.Driver.
func (d *Driver) Exported(pin int) bool {
	_, err := os.Stat(d.pinDir(pin))
	return err == nil
}

// SetDirection implements gpio.Driver.
func (d *Driver) SetDirection(pin int, dir port.Direction) error {
	if dir != port.Input && dir != port.Output {
		return ErrDirection
	}
	return writeFile(filepath.Join(d.pinDir(pin), "direction"), dir.String())
}

// ValuePath implements gpio.Driver.
func (d *Driver) ValuePath(pin int) string {
	return filepath.Join(d.pinDir(pin), "value")
}

// ReadValue implements gpio.Driver.
func (d *Driver) ReadValue(pin int) ([]byte, error) {
	return os.ReadFile(d.ValuePath(pin))
}

// WriteValue implements gpio.Driver.
func (d *Driver) WriteValue(pin int, b []byte) error {
	return writeFile(d.ValuePath(pin), string(b))
}

// Close implements gpio.Driver. Exported pins are released by the registry.
func (d *Driver) Close() error {
	return nil
}

func (d *Driver) pinDir(pin int) string {
	return filepath.Join(d.Root, "gpio"+strconv.Itoa(pin))
}

// writeFile writes s to an existing sysfs attribute, sysfs files are never created.
func writeFile(name, s string) error {
	f, err := os.OpenFile(name, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return err
	}
	if _, err = f.WriteString(s); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

var _ gpio.Driver = (*Driver)(nil)
