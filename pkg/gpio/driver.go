// Package gpio manages the ownership of gpio pins and notifies listeners about level changes.
//
// A single Registry is created per process and shared by every facade.
// Pins enter the registry only through ObtainOrReconfigure; the registry
// serializes claims and direction changes per pin and runs one background
// worker that polls the pins of subscribed listeners.
package gpio

import (
	"errors"
	"fmt"
	"pinctl/pkg/port"
)

var (
	// ErrClaimFailed is returned when a pin can't be exported or configured.
	ErrClaimFailed = errors.New("claim failed")
	// ErrAlreadyClaimed is returned when claiming a pin that is already claimed.
	ErrAlreadyClaimed = errors.New("pin already claimed")
	// ErrDirectionMismatch is returned when an operation doesn't fit the pin direction.
	ErrDirectionMismatch = errors.New("direction mismatch")
	// ErrResourceUnavailable is returned when the value or direction resource can't be accessed.
	ErrResourceUnavailable = errors.New("resource unavailable")
	// ErrDisposed is returned by registry operations after Shutdown.
	ErrDisposed = errors.New("registry disposed")
	// ErrInvalidPin is returned for identifiers outside the valid pin set.
	ErrInvalidPin = errors.New("invalid pin")
	// ErrPinLost is returned by AnalogWrite when the pin is released or reconfigured while running.
	ErrPinLost = errors.New("pin lost")

	ErrInvalidParam = fmt.Errorf("invalid parameters")
)

// Driver is the operating system pin-control surface.
//
// Implementations don't need to be safe for concurrent use on the same pin,
// the registry serializes all calls per pin. Failures are never retried.
type Driver interface {
	// Export claims the pin at the OS boundary.
	Export(pin int) error
	// Unexport releases the pin at the OS boundary.
	Unexport(pin int) error
	// Exported reports whether the OS resource for the pin already exists.
	Exported(pin int) bool
	// SetDirection configures an exported pin as input or output.
	SetDirection(pin int, dir port.Direction) error
	// ValuePath returns the name of the value resource of the pin.
	ValuePath(pin int) string
	// ReadValue returns the raw payload of the value resource.
	ReadValue(pin int) ([]byte, error)
	// WriteValue writes a raw payload ("0" or "1") to the value resource.
	WriteValue(pin int, b []byte) error
	// Close releases the driver.
	Close() error
}

// DefaultPins are the gpio numbers exposed on the 40 pin header of a Raspberry Pi.
var DefaultPins = []int{0, 1, 4, 7, 8, 9, 10, 11, 14, 15, 17, 18, 20, 21, 22, 23, 24, 25, 26, 27}
