package gpio

import (
	"errors"
	"fmt"
	"pinctl/pkg/port"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/womat/debug"
)

// Registry owns every claimed pin and every active listener of the process.
//
// Create one Registry at startup, hand it to the code that needs pins and call
// Shutdown before the process exits.
type Registry struct {
	drv      Driver
	valid    map[int]struct{}
	interval time.Duration
	closed   atomic.Bool

	// mu guards pins, the map key is the gpio number.
	mu   sync.Mutex
	pins map[int]*Pin

	// lmu guards listeners and engine.
	lmu       sync.Mutex
	listeners []*Listener
	engine    *engine
	workers   atomic.Int32
}

// PinState is a snapshot of a pin in the registry.
type PinState struct {
	Pin       int    `json:"pin"`
	Direction string `json:"direction"`
	Level     string `json:"level"`
}

// NewRegistry creates a registry on top of the driver drv.
func NewRegistry(drv Driver, opts ...Option) *Registry {
	r := &Registry{
		drv:      drv,
		interval: DefaultInterval,
		pins:     map[int]*Pin{},
	}
	WithPins(DefaultPins...)(r)

	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ObtainOrReconfigure returns the pin id claimed with direction dir.
//  A new pin is exported and configured, an existing pin is reconfigured if its direction differs.
//  Calls for the same pin are serialized, concurrent callers never export a pin twice.
func (r *Registry) ObtainOrReconfigure(id int, dir port.Direction) (*Pin, error) {
	if r.closed.Load() {
		return nil, ErrDisposed
	}
	if !r.isValid(id) {
		return nil, fmt.Errorf("gpio%d: %w", id, ErrInvalidPin)
	}
	if dir != port.Input && dir != port.Output {
		return nil, ErrInvalidParam
	}

	r.mu.Lock()
	p, ok := r.pins[id]
	if !ok {
		p = newPin(id, r.drv)
		r.pins[id] = p
	}
	r.mu.Unlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	// Shutdown may have released the pins in the meantime
	if r.closed.Load() {
		return nil, ErrDisposed
	}

	var err error
	if p.dir == port.Unclaimed {
		err = p.claim(dir)
	} else {
		err = p.changeDirection(dir)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Lookup returns the pin id if it was ever obtained. After Shutdown no pin is found.
func (r *Registry) Lookup(id int) (*Pin, bool) {
	if r.closed.Load() {
		return nil, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pins[id]
	return p, ok
}

// Release unexports the pin id. The pin stays known to the registry as unclaimed.
func (r *Registry) Release(id int) error {
	if r.closed.Load() {
		return ErrDisposed
	}

	p, ok := r.Lookup(id)
	if !ok {
		return nil
	}
	return p.Release()
}

// Pins returns the state of all known pins ordered by gpio number, none after Shutdown.
func (r *Registry) Pins() []PinState {
	if r.closed.Load() {
		return nil
	}

	r.mu.Lock()
	pins := make([]*Pin, 0, len(r.pins))
	for _, p := range r.pins {
		pins = append(pins, p)
	}
	r.mu.Unlock()

	sort.Slice(pins, func(i, j int) bool { return pins[i].id < pins[j].id })

	states := make([]PinState, 0, len(pins))
	for _, p := range pins {
		p.mu.Lock()
		states = append(states, PinState{Pin: p.id, Direction: p.dir.String(), Level: p.read().String()})
		p.mu.Unlock()
	}
	return states
}

// EngineRunning reports whether the change detection engine is started.
func (r *Registry) EngineRunning() bool {
	r.lmu.Lock()
	defer r.lmu.Unlock()
	return r.engine != nil
}

// Workers returns the number of running change detection workers.
func (r *Registry) Workers() int {
	return int(r.workers.Load())
}

// Shutdown stops the change detection engine, deregisters every listener and releases every pin.
//  Afterwards all registry operations return ErrDisposed. Shutdown is idempotent.
func (r *Registry) Shutdown() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}

	r.lmu.Lock()
	listeners := r.listeners
	e := r.engine
	r.listeners, r.engine = nil, nil
	r.lmu.Unlock()

	if e != nil {
		e.halt()
	}
	for _, l := range listeners {
		l.detach()
	}

	r.mu.Lock()
	pins := make([]*Pin, 0, len(r.pins))
	for _, p := range r.pins {
		pins = append(pins, p)
	}
	r.mu.Unlock()

	var errs []error
	for _, p := range pins {
		if err := p.Release(); err != nil {
			errs = append(errs, err)
		}
	}

	debug.DebugLog.Printf("registry shut down, %d pins released", len(pins))
	return errors.Join(errs...)
}

// registerListener adds l to the listener set and starts the engine for the first listener.
func (r *Registry) registerListener(l *Listener) error {
	r.lmu.Lock()
	defer r.lmu.Unlock()

	if r.closed.Load() {
		return ErrDisposed
	}
	for _, x := range r.listeners {
		if x == l {
			return nil
		}
	}

	r.listeners = append(r.listeners, l)
	if r.engine == nil {
		r.engine = r.startEngine()
	}
	return nil
}

// deregisterListener removes l from the listener set and stops the engine after the last listener.
//  It returns after the engine worker has exited.
func (r *Registry) deregisterListener(l *Listener) {
	var e *engine

	r.lmu.Lock()
	for i, x := range r.listeners {
		if x == l {
			r.listeners = append(r.listeners[:i], r.listeners[i+1:]...)
			break
		}
	}
	if len(r.listeners) == 0 && r.engine != nil {
		e, r.engine = r.engine, nil
	}
	r.lmu.Unlock()

	// the worker takes lmu each cycle, wait for it without holding the lock
	if e != nil {
		e.halt()
	}
}

// snapshot returns a copy of the listener set for one poll cycle.
func (r *Registry) snapshot() []*Listener {
	r.lmu.Lock()
	defer r.lmu.Unlock()
	return append([]*Listener(nil), r.listeners...)
}

func (r *Registry) isValid(id int) bool {
	_, ok := r.valid[id]
	return ok
}
