package host

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostusb/hostusb/host/native/virtual"
	"github.com/hostusb/hostusb/pkg"
)

// newTestDevice wraps a fresh virtual device. Destroy is idempotent on the
// wrapper, so tests may also tear down explicitly.
func newTestDevice(t *testing.T) (*Device, *virtual.Device) {
	t.Helper()
	vdev := virtual.Open(virtual.DefaultLayout())
	dev := NewDevice(vdev)
	t.Cleanup(dev.Destroy)
	return dev, vdev
}

func TestDeviceMetadataCapture(t *testing.T) {
	dev, _ := newTestDevice(t)

	meta := dev.Metadata()
	assert.Equal(t, uint16(0x1d6b), meta.VendorID)
	assert.Equal(t, uint16(0x0104), meta.ProductID)
	assert.Equal(t, "Loopback Gadget", meta.Name)
	assert.Equal(t, "Virtual Systems", meta.Manufacturer)
	assert.NotEqual(t, UndefinedString, meta.SerialNumber)
	assert.Equal(t, uint8(1), meta.ConfigurationCount)
	assert.Equal(t, uint8(2), meta.InterfaceCount)
	assert.Equal(t, uint8(1), meta.CurrentConfigurationValue)
}

func TestInterfaceCacheIdentity(t *testing.T) {
	dev, vdev := newTestDevice(t)

	first, err := dev.Interface(0, 0)
	require.NoError(t, err)
	second, err := dev.Interface(0, 0)
	require.NoError(t, err)
	assert.Same(t, first, second, "repeated resolution must return the cached instance")
	assert.Equal(t, int64(1), vdev.OpenInterfaceCount(), "cache hit must not reopen")

	other, err := dev.Interface(1, 0)
	require.NoError(t, err)
	assert.NotSame(t, first, other)
	assert.Equal(t, int64(2), vdev.OpenInterfaceCount())
}

func TestInterfaceAltSettingKeysAreIndependent(t *testing.T) {
	dev, vdev := newTestDevice(t)

	alt0, err := dev.Interface(1, 0)
	require.NoError(t, err)
	alt1, err := dev.Interface(1, 1)
	require.NoError(t, err)
	assert.NotSame(t, alt0, alt1, "distinct alternate settings are distinct cache entries")
	assert.NotEqual(t, alt0.ServiceID(), alt1.ServiceID(), "each key holds its own native handle")
	assert.Equal(t, int64(2), vdev.OpenInterfaceCount())

	ep, err := alt1.Endpoint(0x82)
	require.NoError(t, err)
	defer ep.Destroy()
	assert.Equal(t, uint16(8), ep.Metadata().MaxPacketSize, "alt 1 endpoint parameters apply")
}

func TestInterfaceNotFound(t *testing.T) {
	dev, _ := newTestDevice(t)

	_, err := dev.Interface(99, 0)
	assert.ErrorIs(t, err, pkg.ErrNotFound)
	assert.ErrorContains(t, err, "interface 99")
}

func TestFailedAltSettingIsNotCached(t *testing.T) {
	dev, vdev := newTestDevice(t)

	_, err := dev.Interface(1, 9)
	require.ErrorIs(t, err, pkg.ErrInvalidArgument)
	opened := vdev.OpenInterfaceCount()

	intf, err := dev.Interface(1, 1)
	require.NoError(t, err, "a failed resolution must not poison the key")
	assert.NotNil(t, intf)
	assert.Equal(t, opened+1, vdev.OpenInterfaceCount())
}

func TestConfigureInvalidatesCache(t *testing.T) {
	dev, vdev := newTestDevice(t)

	stale, err := dev.Interface(0, 0)
	require.NoError(t, err)
	require.NoError(t, dev.Configure(1, true))

	assert.ErrorIs(t, stale.SelectAlternateSetting(0), pkg.ErrDestroyed,
		"cached interfaces are destroyed on reconfigure")

	fresh, err := dev.Interface(0, 0)
	require.NoError(t, err)
	assert.NotSame(t, stale, fresh)
	assert.Equal(t, int64(2), vdev.OpenInterfaceCount())

	meta := dev.Metadata()
	assert.Equal(t, uint8(1), meta.CurrentConfigurationValue, "metadata is recaptured")
}

func TestFailedConfigureKeepsCache(t *testing.T) {
	dev, _ := newTestDevice(t)

	cached, err := dev.Interface(0, 0)
	require.NoError(t, err)

	err = dev.Configure(9, true)
	require.ErrorIs(t, err, pkg.ErrInvalidArgument)

	again, err := dev.Interface(0, 0)
	require.NoError(t, err)
	assert.Same(t, cached, again, "a failed configure must leave the cache intact")
	assert.NoError(t, cached.SelectAlternateSetting(0), "cached interface stays live")
}

func TestResetInvalidatesCache(t *testing.T) {
	dev, _ := newTestDevice(t)

	stale, err := dev.Interface(1, 1)
	require.NoError(t, err)
	require.NoError(t, dev.Reset())

	_, err = stale.Endpoint(0x82)
	assert.ErrorIs(t, err, pkg.ErrDestroyed)

	fresh, err := dev.Interface(1, 1)
	require.NoError(t, err)
	assert.NotSame(t, stale, fresh)
}

func TestDestroyCascadesToCachedInterfaces(t *testing.T) {
	dev, _ := newTestDevice(t)

	bulk, err := dev.Interface(0, 0)
	require.NoError(t, err)
	status, err := dev.Interface(1, 0)
	require.NoError(t, err)

	dev.Destroy()

	_, err = dev.Interface(0, 0)
	assert.ErrorIs(t, err, pkg.ErrDestroyed)
	_, err = bulk.Endpoint(0x81)
	assert.ErrorIs(t, err, pkg.ErrDestroyed)
	assert.ErrorIs(t, status.SelectAlternateSetting(0), pkg.ErrDestroyed)
	_, err = dev.DeviceAddress()
	assert.ErrorIs(t, err, pkg.ErrDestroyed)
}

func TestConcurrentResolutionOpensOnce(t *testing.T) {
	dev, vdev := newTestDevice(t)

	const goroutines = 16
	results := make([]*Interface, goroutines)
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			intf, err := dev.Interface(0, 0)
			if err == nil {
				results[g] = intf
			}
		}(g)
	}
	wg.Wait()

	require.NotNil(t, results[0])
	for g := 1; g < goroutines; g++ {
		assert.Same(t, results[0], results[g], "goroutine %d saw a different instance", g)
	}
	assert.Equal(t, int64(1), vdev.OpenInterfaceCount(), "resolution must be serialized")
}
