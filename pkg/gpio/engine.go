package gpio

import (
	"sync/atomic"
	"time"

	"github.com/womat/debug"
)

// engine is one run of the change detection worker.
type engine struct {
	// stop is closed to request the worker to exit
	stop chan struct{}
	// done is closed by the worker when it has exited
	done chan struct{}
	// dispatching is set while the worker calls ChangeFuncs
	dispatching atomic.Bool
}

// startEngine starts a worker polling all registered listeners. r.lmu must be held.
func (r *Registry) startEngine() *engine {
	e := &engine{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}

	r.workers.Add(1)
	go r.run(e)

	debug.DebugLog.Printf("change detection started, interval %v", r.interval)
	return e
}

// run wakes up every interval and polls each listener until e is halted.
func (r *Registry) run(e *engine) {
	defer func() {
		r.workers.Add(-1)
		close(e.done)
	}()

	t := time.NewTicker(r.interval)
	defer t.Stop()

	for {
		select {
		case <-e.stop:
			return
		case <-t.C:
		}

		for _, l := range r.snapshot() {
			select {
			case <-e.stop:
				return
			default:
			}
			if c := l.detect(); c != nil {
				e.dispatching.Store(true)
				c.dispatch()
				e.dispatching.Store(false)
			}
		}
	}
}

// halt stops the worker and waits until it has exited.
//  A halt requested while a ChangeFunc is running, e.g. by a ChangeFunc closing its
//  own Input, doesn't wait: the worker exits as soon as the ChangeFunc returns.
func (e *engine) halt() {
	close(e.stop)
	if e.dispatching.Load() {
		debug.DebugLog.Print("change detection stops after the running ChangeFunc")
		return
	}
	<-e.done
	debug.DebugLog.Print("change detection stopped")
}
