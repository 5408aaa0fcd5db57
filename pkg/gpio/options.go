package gpio

import "time"

// DefaultInterval is the delay between two poll cycles of the change detection engine.
const DefaultInterval = time.Millisecond

// Option configures a Registry.
type Option func(*Registry)

// WithInterval sets the poll interval of the change detection engine.
func WithInterval(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithPins replaces the set of valid gpio numbers.
func WithPins(pins ...int) Option {
	return func(r *Registry) {
		if len(pins) == 0 {
			return
		}
		r.valid = make(map[int]struct{}, len(pins))
		for _, p := range pins {
			r.valid[p] = struct{}{}
		}
	}
}
