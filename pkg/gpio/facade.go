package gpio

import (
	"context"
	"errors"
	"pinctl/pkg/port"
	"sync"
	"time"
)

// LevelReader is implemented by pins which can be read.
type LevelReader interface {
	ID() int
	Read() port.Level
}

// LevelWriter is implemented by pins which can be driven.
type LevelWriter interface {
	ID() int
	Write(port.Level) error
	AnalogWrite(ctx context.Context, strength uint8, d time.Duration) error
}

// Notifier is implemented by pins which report level changes.
type Notifier interface {
	Subscribe(fn ChangeFunc) (Subscription, error)
	Unsubscribe(s Subscription)
}

// facade holds the parts shared by Input, Output and Handle.
type facade struct {
	reg *Registry
	pin *Pin

	mu       sync.Mutex
	listener *Listener
	closed   bool
}

// ID returns the gpio number.
func (f *facade) ID() int {
	return f.pin.ID()
}

// listen returns the listener of the facade, it is created on first use.
func (f *facade) listen(target LevelReader) (*Listener, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil, ErrDisposed
	}
	if f.listener == nil {
		f.listener = newListener(f.reg, f.pin, target)
	}
	return f.listener, nil
}

func (f *facade) unsubscribe(s Subscription) {
	f.mu.Lock()
	l := f.listener
	f.mu.Unlock()

	if l != nil {
		l.Unsubscribe(s)
	}
}

// close disposes the listener before the pin is released.
func (f *facade) close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	l := f.listener
	f.listener = nil
	f.mu.Unlock()

	if l != nil {
		l.Dispose()
	}
	// after Shutdown the pin is already released
	if err := f.reg.Release(f.pin.ID()); err != nil && !errors.Is(err, ErrDisposed) {
		return err
	}
	return nil
}

// Input is a read-only pin.
type Input struct {
	facade
}

// OpenInput claims the pin id as input.
func (r *Registry) OpenInput(id int) (*Input, error) {
	p, err := r.ObtainOrReconfigure(id, port.Input)
	if err != nil {
		return nil, err
	}
	return &Input{facade{reg: r, pin: p}}, nil
}

// Read returns the level of the pin.
func (in *Input) Read() port.Level {
	return in.pin.Read()
}

// Subscribe calls fn whenever the level of the pin changes.
func (in *Input) Subscribe(fn ChangeFunc) (Subscription, error) {
	l, err := in.listen(in)
	if err != nil {
		return 0, err
	}
	return l.Subscribe(fn)
}

// Unsubscribe removes a subscription.
func (in *Input) Unsubscribe(s Subscription) {
	in.unsubscribe(s)
}

// Close drops all subscriptions and releases the pin.
func (in *Input) Close() error {
	return in.close()
}

// Output is a write-only pin.
type Output struct {
	facade
}

// OpenOutput claims the pin id as output.
func (r *Registry) OpenOutput(id int) (*Output, error) {
	p, err := r.ObtainOrReconfigure(id, port.Output)
	if err != nil {
		return nil, err
	}
	return &Output{facade{reg: r, pin: p}}, nil
}

// Write sets the level of the pin.
func (o *Output) Write(l port.Level) error {
	return o.pin.Write(l)
}

// AnalogWrite emits a software pwm pattern, see Pin.AnalogWrite.
func (o *Output) AnalogWrite(ctx context.Context, strength uint8, d time.Duration) error {
	return o.pin.AnalogWrite(ctx, strength, d)
}

// Close releases the pin.
func (o *Output) Close() error {
	return o.close()
}

// Handle is a pin which can be read, written and reconfigured.
type Handle struct {
	facade
}

// Open claims the pin id with direction dir.
func (r *Registry) Open(id int, dir port.Direction) (*Handle, error) {
	p, err := r.ObtainOrReconfigure(id, dir)
	if err != nil {
		return nil, err
	}
	return &Handle{facade{reg: r, pin: p}}, nil
}

// Direction returns the current direction of the pin.
func (h *Handle) Direction() port.Direction {
	return h.pin.Direction()
}

// SetDirection reconfigures the pin.
func (h *Handle) SetDirection(dir port.Direction) error {
	_, err := h.reg.ObtainOrReconfigure(h.pin.ID(), dir)
	return err
}

// Read returns the level of the pin.
func (h *Handle) Read() port.Level {
	return h.pin.Read()
}

// Write sets the level of an output pin.
func (h *Handle) Write(l port.Level) error {
	return h.pin.Write(l)
}

// AnalogWrite emits a software pwm pattern, see Pin.AnalogWrite.
func (h *Handle) AnalogWrite(ctx context.Context, strength uint8, d time.Duration) error {
	return h.pin.AnalogWrite(ctx, strength, d)
}

// Subscribe calls fn whenever the level of the pin changes.
func (h *Handle) Subscribe(fn ChangeFunc) (Subscription, error) {
	l, err := h.listen(h)
	if err != nil {
		return 0, err
	}
	return l.Subscribe(fn)
}

// Unsubscribe removes a subscription.
func (h *Handle) Unsubscribe(s Subscription) {
	h.unsubscribe(s)
}

// Close drops all subscriptions and releases the pin.
func (h *Handle) Close() error {
	return h.close()
}

var (
	_ LevelReader = (*Input)(nil)
	_ Notifier    = (*Input)(nil)
	_ LevelWriter = (*Output)(nil)
	_ LevelReader = (*Handle)(nil)
	_ LevelWriter = (*Handle)(nil)
	_ Notifier    = (*Handle)(nil)
)
