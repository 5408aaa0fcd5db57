package gpio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"pinctl/pkg/port"
	"sync"
	"time"

	"github.com/womat/debug"
)

// Forever lets AnalogWrite run until the context is cancelled or the pin is released.
const Forever time.Duration = -1

// Pin is the handle of one claimed gpio pin.
//
// Pins are created by the Registry only, there is at most one Pin per gpio number.
// mu is the per pin exclusivity of the registry: every call to the driver for
// this pin is made while holding it.
type Pin struct {
	id  int
	drv Driver

	mu  sync.Mutex
	dir port.Direction
	// valuePath names the value resource for logs and diagnostics, set by the first
	// successful claim. Drivers address the resource by pin number.
	valuePath string
	// lost is closed when the pin is released or downgraded to unclaimed.
	lost chan struct{}
}

func newPin(id int, drv Driver) *Pin {
	return &Pin{id: id, drv: drv}
}

// ID returns the gpio number of the pin.
func (p *Pin) ID() int {
	return p.id
}

// Direction returns the current direction, Unclaimed if the pin isn't claimed.
func (p *Pin) Direction() port.Direction {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dir
}

// ValuePath returns the name of the value resource, empty until the pin was claimed once.
func (p *Pin) ValuePath() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.valuePath
}

// String implements fmt.Stringer.
func (p *Pin) String() string {
	return fmt.Sprintf("gpio%d(%v)", p.id, p.Direction())
}

// Read returns the current level of the pin.
//  Unknown is returned if the pin isn't claimed, the value resource doesn't exist,
//  the read fails or the payload is empty or malformed.
func (p *Pin) Read() port.Level {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.read()
}

// Write sets the level of an output pin.
//  An i/o failure downgrades the pin to unclaimed, it has to be claimed again before retrying.
func (p *Pin) Write(l port.Level) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.write(l)
}

// Release unexports the pin. Releasing an unclaimed pin is a no-op.
//  The pin is unclaimed even if the unexport fails.
func (p *Pin) Release() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.release()
}

// AnalogWrite emits a software pulse width pattern on an output pin.
//  strength 0 drives the pin low for the duration d. Otherwise the pin is
//  driven high and low alternately, each for strength*1000/255 milliseconds,
//  until d has elapsed. The pin is left low when the pattern ends, also when
//  ctx is done before. With d == Forever the pattern runs until ctx is done
//  or the pin is released or reconfigured.
func (p *Pin) AnalogWrite(ctx context.Context, strength uint8, d time.Duration) error {
	if d < 0 && d != Forever {
		return ErrInvalidParam
	}

	p.mu.Lock()
	dir, lost := p.dir, p.lost
	p.mu.Unlock()

	if dir != port.Output {
		return fmt.Errorf("gpio%d is %v: %w", p.id, dir, ErrDirectionMismatch)
	}

	start := time.Now()

	if strength == 0 {
		if err := p.writeClaimed(lost, port.Low); err != nil {
			return err
		}
		if d == Forever {
			return wait(ctx, lost, nil)
		}
		t := time.NewTimer(d)
		defer t.Stop()
		return wait(ctx, lost, t.C)
	}

	period := time.Duration(int(strength)*1000/255) * time.Millisecond
	debug.TraceLog.Printf("gpio%d: pwm strength %d, period %v, duration %v", p.id, strength, period, d)

	level := port.High
	for {
		if err := p.writeClaimed(lost, level); err != nil {
			return err
		}

		run := period
		if d != Forever {
			remaining := d - time.Since(start)
			if remaining <= 0 {
				break
			}
			if run > remaining {
				run = remaining
			}
		}

		t := time.NewTimer(run)
		err := wait(ctx, lost, t.C)
		t.Stop()
		if err != nil {
			if level == port.High && !errors.Is(err, ErrPinLost) {
				if e := p.writeClaimed(lost, port.Low); e != nil {
					debug.ErrorLog.Printf("can't stop pwm of gpio%d: %v", p.id, e)
				}
			}
			return err
		}

		if d != Forever && time.Since(start) >= d {
			break
		}

		if level == port.High {
			level = port.Low
		} else {
			level = port.High
		}
	}

	if level == port.High {
		return p.writeClaimed(lost, port.Low)
	}
	return nil
}

// writeClaimed writes l unless the claim that lost belongs to has ended.
func (p *Pin) writeClaimed(lost chan struct{}, l port.Level) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	select {
	case <-lost:
		return fmt.Errorf("gpio%d: %w", p.id, ErrPinLost)
	default:
	}
	return p.write(l)
}

// wait blocks until timeout fires (nil on success), ctx is done or lost is closed.
func wait(ctx context.Context, lost chan struct{}, timeout <-chan time.Time) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-lost:
		return ErrPinLost
	case <-timeout:
		return nil
	}
}

// claim exports the pin and sets its direction. p.mu must be held.
func (p *Pin) claim(dir port.Direction) error {
	if p.dir != port.Unclaimed {
		return fmt.Errorf("gpio%d: %w", p.id, ErrAlreadyClaimed)
	}
	if dir == port.Unclaimed {
		return ErrInvalidParam
	}

	exported := false
	if !p.drv.Exported(p.id) {
		if err := p.drv.Export(p.id); err != nil {
			debug.ErrorLog.Printf("can't export gpio%d: %v", p.id, err)
			return fmt.Errorf("gpio%d: %w: %w", p.id, ErrClaimFailed, err)
		}
		exported = true
	}

	if err := p.drv.SetDirection(p.id, dir); err != nil {
		debug.ErrorLog.Printf("can't set direction of gpio%d to %v: %v", p.id, dir, err)
		if exported {
			if e := p.drv.Unexport(p.id); e != nil {
				debug.ErrorLog.Printf("can't unexport gpio%d: %v", p.id, e)
			}
		}
		return fmt.Errorf("gpio%d: %w: %w", p.id, ErrClaimFailed, err)
	}

	if p.valuePath == "" {
		p.valuePath = p.drv.ValuePath(p.id)
	}
	p.dir = dir
	p.lost = make(chan struct{})

	debug.DebugLog.Printf("gpio%d claimed as %v (%s)", p.id, dir, p.valuePath)
	return nil
}

// changeDirection releases and claims the pin again with dir. p.mu must be held.
func (p *Pin) changeDirection(dir port.Direction) error {
	if dir == p.dir {
		return nil
	}

	// a failed unexport leaves the pin unclaimed, claim skips the export if the resource is still there
	if err := p.release(); err != nil {
		debug.ErrorLog.Printf("reconfigure gpio%d: %v", p.id, err)
	}

	if dir == port.Unclaimed {
		return nil
	}
	return p.claim(dir)
}

// release unclaims the pin before it is unexported. p.mu must be held.
func (p *Pin) release() error {
	if p.dir == port.Unclaimed {
		return nil
	}

	p.drop()

	if err := p.drv.Unexport(p.id); err != nil {
		debug.ErrorLog.Printf("can't unexport gpio%d: %v", p.id, err)
		return fmt.Errorf("gpio%d: %w: %w", p.id, ErrResourceUnavailable, err)
	}

	debug.DebugLog.Printf("gpio%d released", p.id)
	return nil
}

// drop marks the pin as unclaimed without touching the OS resource.
func (p *Pin) drop() {
	p.dir = port.Unclaimed
	if p.lost != nil {
		close(p.lost)
		p.lost = nil
	}
}

func (p *Pin) read() port.Level {
	if p.dir == port.Unclaimed {
		return port.Unknown
	}

	b, err := p.drv.ReadValue(p.id)
	if err != nil {
		debug.TraceLog.Printf("can't read gpio%d: %v", p.id, err)
		return port.Unknown
	}
	return parseValue(b)
}

func (p *Pin) write(l port.Level) error {
	if p.dir != port.Output {
		return fmt.Errorf("gpio%d is %v: %w", p.id, p.dir, ErrDirectionMismatch)
	}
	if l != port.Low && l != port.High {
		return ErrInvalidParam
	}

	if err := p.drv.WriteValue(p.id, []byte(l.String())); err != nil {
		debug.ErrorLog.Printf("can't write %v to gpio%d, pin is lost: %v", l, p.id, err)
		p.drop()
		return fmt.Errorf("gpio%d: %w: %w", p.id, ErrResourceUnavailable, err)
	}
	return nil
}

// parseValue maps a value payload to a level: a leading "0" is low, any other digit is high.
func parseValue(b []byte) port.Level {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0, b[0] < '0', b[0] > '9':
		return port.Unknown
	case b[0] == '0':
		return port.Low
	default:
		return port.High
	}
}
