package gpio

import (
	"pinctl/pkg/port"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObtainInvalid(t *testing.T) {
	r, drv := newTestRegistry(t)

	_, err := r.ObtainOrReconfigure(2, port.Output)
	assert.ErrorIs(t, err, ErrInvalidPin)
	assert.Equal(t, 0, drv.Exports(2))

	_, err = r.ObtainOrReconfigure(17, port.Unclaimed)
	assert.ErrorIs(t, err, ErrInvalidParam)
}

func TestWithPins(t *testing.T) {
	r, _ := newTestRegistry(t, WithPins(2, 3))

	_, err := r.ObtainOrReconfigure(2, port.Output)
	require.NoError(t, err)
	_, err = r.ObtainOrReconfigure(17, port.Output)
	assert.ErrorIs(t, err, ErrInvalidPin)
}

func TestConcurrentObtain(t *testing.T) {
	r, drv := newTestRegistry(t)
	drv.ExportDelay = 20 * time.Millisecond

	const callers = 16
	pins := make([]*Pin, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			pins[i], errs[i] = r.ObtainOrReconfigure(17, port.Output)
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, pins[0], pins[i])
	}
	assert.Equal(t, 1, drv.Exports(17))
	assert.Equal(t, 0, drv.Unexports(17))
	assert.Equal(t, port.Output, pins[0].Direction())
}

func TestConcurrentReconfigure(t *testing.T) {
	r, drv := newTestRegistry(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			dir := port.Input
			if i%2 == 0 {
				dir = port.Output
			}
			_, err := r.ObtainOrReconfigure(21, dir)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	p, ok := r.Lookup(21)
	require.True(t, ok)
	// every reconfiguration is a full release and claim
	assert.Equal(t, drv.Exports(21), drv.Unexports(21)+1)
	assert.Equal(t, p.Direction(), drv.DirectionOf(21))
}

func TestRegistryRelease(t *testing.T) {
	r, drv := newTestRegistry(t)

	require.NoError(t, r.Release(4))

	p, err := r.ObtainOrReconfigure(4, port.Output)
	require.NoError(t, err)
	require.NoError(t, r.Release(4))
	assert.Equal(t, port.Unclaimed, p.Direction())
	assert.False(t, drv.Exported(4))

	again, err := r.ObtainOrReconfigure(4, port.Input)
	require.NoError(t, err)
	assert.Same(t, p, again)
}

func TestPins(t *testing.T) {
	r, drv := newTestRegistry(t)

	_, err := r.ObtainOrReconfigure(17, port.Output)
	require.NoError(t, err)
	_, err = r.ObtainOrReconfigure(4, port.Input)
	require.NoError(t, err)
	drv.Set(4, port.High)

	assert.Equal(t, []PinState{
		{Pin: 4, Direction: "in", Level: "1"},
		{Pin: 17, Direction: "out", Level: "0"},
	}, r.Pins())
}

func TestRegisterListenerIdempotent(t *testing.T) {
	r, _ := newTestRegistry(t, WithInterval(time.Hour))

	p, err := r.ObtainOrReconfigure(17, port.Input)
	require.NoError(t, err)
	l := newListener(r, p, p)

	require.NoError(t, r.registerListener(l))
	require.NoError(t, r.registerListener(l))
	assert.Len(t, r.snapshot(), 1)
	assert.Equal(t, 1, r.Workers())

	r.deregisterListener(l)
	r.deregisterListener(l)
	assert.Empty(t, r.snapshot())
	assert.Equal(t, 0, r.Workers())
	assert.False(t, r.EngineRunning())
}

func TestShutdown(t *testing.T) {
	r, drv := newTestRegistry(t)

	out, err := r.OpenOutput(17)
	require.NoError(t, err)
	in, err := r.OpenInput(4)
	require.NoError(t, err)

	_, err = in.Subscribe(func(LevelReader, port.Level, port.Level) {})
	require.NoError(t, err)
	require.True(t, r.EngineRunning())

	require.NoError(t, r.Shutdown())

	assert.False(t, r.EngineRunning())
	assert.Equal(t, 0, r.Workers())
	assert.Equal(t, port.Unknown, in.Read())
	assert.ErrorIs(t, out.Write(port.High), ErrDirectionMismatch)
	assert.False(t, drv.Exported(17))
	assert.False(t, drv.Exported(4))

	_, err = r.ObtainOrReconfigure(17, port.Output)
	assert.ErrorIs(t, err, ErrDisposed)
	assert.ErrorIs(t, r.Release(17), ErrDisposed)
	_, ok := r.Lookup(17)
	assert.False(t, ok)
	assert.Empty(t, r.Pins())
	_, err = in.Subscribe(func(LevelReader, port.Level, port.Level) {})
	assert.ErrorIs(t, err, ErrDisposed)

	require.NoError(t, r.Shutdown())
	require.NoError(t, in.Close())
	require.NoError(t, out.Close())
}
