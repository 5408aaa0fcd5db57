package gpio

import (
	"pinctl/pkg/port"
	"sync"

	"github.com/womat/debug"
)

// ChangeFunc is called with the source of the change and the old and the new level.
type ChangeFunc func(src LevelReader, old, new port.Level)

// Subscription identifies a ChangeFunc added to a Listener.
type Subscription uint64

type subscriber struct {
	id Subscription
	fn ChangeFunc
}

// Listener detects level changes of one pin and dispatches them to its subscribers.
//
// A listener is registered with the registry while it has at least one subscriber.
type Listener struct {
	reg *Registry
	pin *Pin

	// lifecycle serializes Subscribe, Unsubscribe, Dispose and detach.
	lifecycle sync.Mutex

	mu         sync.Mutex
	target     LevelReader
	last       port.Level
	subs       []subscriber
	next       Subscription
	registered bool
}

func newListener(r *Registry, p *Pin, target LevelReader) *Listener {
	return &Listener{reg: r, pin: p, target: target}
}

// Subscribe adds fn to the subscribers.
//  The first subscriber seeds the last level from a fresh read, so a level that is
//  already present isn't reported as a change, and registers the listener.
func (l *Listener) Subscribe(fn ChangeFunc) (Subscription, error) {
	if fn == nil {
		return 0, ErrInvalidParam
	}

	l.lifecycle.Lock()
	defer l.lifecycle.Unlock()

	l.mu.Lock()
	if l.target == nil {
		l.mu.Unlock()
		return 0, ErrDisposed
	}
	l.next++
	id := l.next
	l.subs = append(l.subs, subscriber{id: id, fn: fn})
	first := !l.registered
	if first {
		l.last = l.pin.Read()
		l.registered = true
	}
	l.mu.Unlock()

	if !first {
		return id, nil
	}

	if err := l.reg.registerListener(l); err != nil {
		l.mu.Lock()
		l.subs, l.registered = nil, false
		l.mu.Unlock()
		return 0, err
	}

	debug.DebugLog.Printf("gpio%d: listener registered, level %v", l.pin.ID(), l.last)
	return id, nil
}

// Unsubscribe removes the subscription s. Removing the last subscriber deregisters the listener.
//  Unsubscribe waits for the change detection engine to stop when this is the last listener,
//  unless it is called from within a ChangeFunc.
func (l *Listener) Unsubscribe(s Subscription) {
	l.lifecycle.Lock()
	defer l.lifecycle.Unlock()

	l.mu.Lock()
	for i, sub := range l.subs {
		if sub.id == s {
			l.subs = append(l.subs[:i], l.subs[i+1:]...)
			break
		}
	}
	deregister := l.registered && len(l.subs) == 0
	if deregister {
		l.registered = false
	}
	l.mu.Unlock()

	if deregister {
		l.reg.deregisterListener(l)
		debug.DebugLog.Printf("gpio%d: listener deregistered", l.pin.ID())
	}
}

// Len returns the number of subscribers.
func (l *Listener) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.subs)
}

// Dispose deregisters the listener, drops all subscribers and detaches it from its target.
func (l *Listener) Dispose() {
	l.lifecycle.Lock()
	defer l.lifecycle.Unlock()

	l.mu.Lock()
	l.subs, l.registered, l.target = nil, false, nil
	l.mu.Unlock()

	l.reg.deregisterListener(l)
}

// detach drops all subscribers after the registry has forgotten the listener.
func (l *Listener) detach() {
	l.lifecycle.Lock()
	defer l.lifecycle.Unlock()

	l.mu.Lock()
	l.subs, l.registered = nil, false
	l.mu.Unlock()
}

// pending is a level change waiting to be dispatched.
type pending struct {
	target   LevelReader
	old, new port.Level
	subs     []subscriber
}

// poll reads the pin and calls every subscriber in order if the level has changed.
//  A failed read yields Unknown and is reported like any other level.
func (l *Listener) poll() {
	if c := l.detect(); c != nil {
		c.dispatch()
	}
}

// detect reads the pin and returns the change since the last read, nil if there is none.
func (l *Listener) detect() *pending {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.subs) == 0 {
		return nil
	}

	level := l.pin.Read()
	if level == l.last {
		return nil
	}

	c := &pending{
		target: l.target,
		old:    l.last,
		new:    level,
		subs:   append([]subscriber(nil), l.subs...),
	}
	l.last = level

	debug.TraceLog.Printf("gpio%d changed %v -> %v", l.pin.ID(), c.old, c.new)
	return c
}

// dispatch calls the subscribers without holding any lock, so they may use the registry.
func (c *pending) dispatch() {
	for _, s := range c.subs {
		s.fn(c.target, c.old, c.new)
	}
}
