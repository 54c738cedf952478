package systems

import (
	"testing"

	"github.com/spaghettifunk/quartz/engine/renderer/gpu"
	"github.com/spaghettifunk/quartz/engine/renderer/gpu/headless"
)

func newTestDevice(t *testing.T, options ...headless.Option) (*gpu.Device, *headless.Driver) {
	t.Helper()
	driver := headless.New(options...)
	device := gpu.NewDevice(driver)
	t.Cleanup(func() {
		if n := driver.Stats().DoubleDestroyed; n != 0 {
			t.Errorf("%d objects destroyed twice", n)
		}
	})
	return device, driver
}

func expectAssertion(t *testing.T, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Fatal("expected an assertion failure")
		}
	}()
	fn()
}
