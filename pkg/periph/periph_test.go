package periph

import (
	"os"
	"pinctl/pkg/port"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/womat/debug"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
)

func TestMain(m *testing.M) {
	debug.SetDebug(os.Stderr, debug.Standard)
	os.Exit(m.Run())
}

func newTestDriver(pins ...*gpiotest.Pin) *Driver {
	byName := map[string]gpio.PinIO{}
	for _, p := range pins {
		byName[p.N] = p
	}
	return newDriver(func(name string) gpio.PinIO {
		if p, ok := byName[name]; ok {
			return p
		}
		return nil
	})
}

func TestExport(t *testing.T) {
	p17 := &gpiotest.Pin{N: "GPIO17", Num: 17}
	d := newTestDriver(p17)

	assert.Error(t, d.Export(4))
	assert.Error(t, d.Unexport(17))
	assert.False(t, d.Exported(17))

	require.NoError(t, d.Export(17))
	assert.True(t, d.Exported(17))
	assert.Equal(t, "GPIO17", d.ValuePath(17))

	require.NoError(t, d.Unexport(17))
	assert.False(t, d.Exported(17))
	assert.Error(t, d.SetDirection(17, port.Input))
}

func TestValues(t *testing.T) {
	p17 := &gpiotest.Pin{N: "GPIO17", Num: 17, L: gpio.High}
	d := newTestDriver(p17)

	require.NoError(t, d.Export(17))
	require.NoError(t, d.SetDirection(17, port.Input))
	b, err := d.ReadValue(17)
	require.NoError(t, err)
	assert.Equal(t, "1", string(b))

	// an output starts low
	require.NoError(t, d.SetDirection(17, port.Output))
	assert.Equal(t, gpio.Low, p17.L)
	assert.Error(t, d.SetDirection(17, port.Unclaimed))

	require.NoError(t, d.WriteValue(17, []byte("1")))
	assert.Equal(t, gpio.High, p17.L)
	b, err = d.ReadValue(17)
	require.NoError(t, err)
	assert.Equal(t, "1", string(b))

	require.NoError(t, d.WriteValue(17, []byte("0")))
	b, err = d.ReadValue(17)
	require.NoError(t, err)
	assert.Equal(t, "0", string(b))

	assert.Error(t, d.WriteValue(17, []byte("high")))
	require.NoError(t, d.Close())
}
