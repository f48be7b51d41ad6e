package virtual

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostusb/hostusb/host/native"
)

type completion struct {
	n      int
	status native.Status
}

// collect runs one asynchronous submit and waits for its completion.
func collect(t *testing.T, submit func(done native.Completion) native.Status) completion {
	t.Helper()
	ch := make(chan completion, 1)
	st := submit(func(status native.Status, n int) {
		ch <- completion{n: n, status: status}
	})
	require.Equal(t, native.OK, st, "submit rejected")
	select {
	case c := <-ch:
		return c
	case <-time.After(5 * time.Second):
		t.Fatal("completion never delivered")
		return completion{}
	}
}

func openInterface(t *testing.T, dev *Device, number uint8) native.InterfaceHandle {
	t.Helper()
	children, st := dev.Children()
	require.Equal(t, native.OK, st)
	for _, entry := range children {
		if n, ok := entry.Property(native.PropertyInterfaceNumber); ok && uint8(n) == number {
			intf, st := dev.OpenInterface(entry)
			require.Equal(t, native.OK, st)
			return intf
		}
	}
	t.Fatalf("no registry entry for interface %d", number)
	return nil
}

func TestDefaultLayoutDescriptors(t *testing.T) {
	dev := Open(DefaultLayout())
	defer dev.Close()

	raw, st := dev.DeviceDescriptor()
	require.Equal(t, native.OK, st)
	var desc native.DeviceDescriptor
	require.True(t, native.ParseDeviceDescriptor(raw, &desc))
	assert.Equal(t, uint16(0x1d6b), desc.VendorID)
	assert.Equal(t, uint16(0x0104), desc.ProductID)
	assert.Equal(t, uint8(1), desc.NumConfigurations)

	tree, st := dev.ConfigurationDescriptor()
	require.Equal(t, native.OK, st)
	var cfg native.ConfigurationDescriptor
	require.True(t, native.ParseConfigurationDescriptor(tree, &cfg))
	assert.Equal(t, uint8(2), cfg.NumInterfaces)
	assert.Equal(t, len(tree), int(cfg.TotalLength))
}

func TestLoadLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "layout.yaml")
	data := []byte(`
vendorID: 0x0451
productID: 0x0042
manufacturer: Acme
product: Widget
configurations:
  - interfaces:
      - number: 0
        altSettings:
          - value: 0
            endpoints:
              - address: 0x81
                attributes: 0x02
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	layout, err := LoadLayout(path)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0451), layout.VendorID)
	assert.Equal(t, "Acme", layout.Manufacturer)
	assert.NotEmpty(t, layout.SerialNumber, "serial number should be generated")
	assert.Equal(t, uint8(1), layout.Configurations[0].Value, "configuration value should default")
	ep := layout.Configurations[0].Interfaces[0].AltSettings[0].Endpoints[0]
	assert.Equal(t, uint16(64), ep.MaxPacketSize, "packet size should default")
}

func TestLoadLayoutRejectsBadLayouts(t *testing.T) {
	_, err := LoadLayout(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(path, []byte("vendorID: 1\n"), 0o644))
	_, err = LoadLayout(path)
	assert.ErrorContains(t, err, "no configurations")

	path = filepath.Join(t.TempDir(), "ep0.yaml")
	bad := []byte(`
configurations:
  - interfaces:
      - number: 0
        altSettings:
          - value: 0
            endpoints:
              - address: 0x80
`)
	require.NoError(t, os.WriteFile(path, bad, 0o644))
	_, err = LoadLayout(path)
	assert.ErrorContains(t, err, "no endpoint number")
}

func TestRegistryChildren(t *testing.T) {
	dev := Open(DefaultLayout())
	defer dev.Close()

	children, st := dev.Children()
	require.Equal(t, native.OK, st)
	require.Len(t, children, 2)
	for i, entry := range children {
		assert.Equal(t, native.ClassUSBHostInterface, entry.Class())
		number, ok := entry.Property(native.PropertyInterfaceNumber)
		require.True(t, ok)
		assert.Equal(t, uint64(i), number)
		value, ok := entry.Property(native.PropertyConfigurationValue)
		require.True(t, ok)
		assert.Equal(t, uint64(1), value)
		_, ok = entry.Property("no-such-property")
		assert.False(t, ok)
	}
}

func TestOpenInterfaceIndependentHandles(t *testing.T) {
	dev := Open(DefaultLayout())
	defer dev.Close()

	children, _ := dev.Children()
	first, st := dev.OpenInterface(children[0])
	require.Equal(t, native.OK, st)
	second, st := dev.OpenInterface(children[0])
	require.Equal(t, native.OK, st, "an entry supports concurrent handles")
	assert.NotEqual(t, first.ServiceID(), second.ServiceID())

	require.Equal(t, native.OK, first.Close())
	assert.Equal(t, native.ENoDevice, first.Close(), "double close should fail")
	_, st = second.InterfaceDescriptor()
	assert.Equal(t, native.OK, st, "closing one handle must not touch the other")

	assert.Equal(t, int64(2), dev.OpenInterfaceCount())
	_, st = dev.OpenInterface(nil)
	assert.Equal(t, native.EBadArgument, st)
}

func TestReconfigureOrphansHandles(t *testing.T) {
	dev := Open(DefaultLayout())
	defer dev.Close()

	children, _ := dev.Children()
	intf := openInterface(t, dev, 0)
	pipe, st := intf.CopyPipe(0x81)
	require.Equal(t, native.OK, st)

	require.Equal(t, native.OK, dev.SetConfiguration(1, true))

	_, st = intf.InterfaceDescriptor()
	assert.Equal(t, native.ENoDevice, st, "interface handle should be stale")
	_, st = pipe.EndpointDescriptor()
	assert.Equal(t, native.ENoDevice, st, "pipe handle should be stale")
	_, st = dev.OpenInterface(children[0])
	assert.Equal(t, native.ENoDevice, st, "old registry entry should be stale")

	intf = openInterface(t, dev, 0)
	intf.Close()
}

func TestSetConfigurationValidation(t *testing.T) {
	dev := Open(DefaultLayout())
	defer dev.Close()

	assert.Equal(t, native.EBadArgument, dev.SetConfiguration(9, true))

	require.Equal(t, native.OK, dev.SetConfiguration(1, false))
	children, st := dev.Children()
	require.Equal(t, native.OK, st)
	assert.Empty(t, children, "matchInterfaces=false should leave no registry entries")

	require.Equal(t, native.OK, dev.Reset())
	children, _ = dev.Children()
	assert.Len(t, children, 2, "reset should re-register interfaces")
}

func TestControlGetDescriptor(t *testing.T) {
	dev := Open(DefaultLayout())
	defer dev.Close()

	req := native.ControlRequest{
		RequestType: native.RequestTypeIn | native.RequestTypeStandard | native.RequestRecipientDevice,
		Request:     native.RequestGetDescriptor,
		Value:       uint16(native.DescriptorTypeDevice) << 8,
		Length:      native.DeviceDescriptorSize,
	}
	data := make([]byte, native.DeviceDescriptorSize)
	c := collect(t, func(done native.Completion) native.Status {
		return dev.SubmitControl(req, data, time.Second, done)
	})
	require.Equal(t, native.OK, c.status)
	assert.Equal(t, native.DeviceDescriptorSize, c.n)
	var desc native.DeviceDescriptor
	assert.True(t, native.ParseDeviceDescriptor(data, &desc))
	assert.Equal(t, int64(1), dev.ControlCount())
}

func TestControlUnknownDescriptorStalls(t *testing.T) {
	dev := Open(DefaultLayout())
	defer dev.Close()

	req := native.ControlRequest{
		RequestType: native.RequestTypeIn | native.RequestTypeStandard | native.RequestRecipientDevice,
		Request:     native.RequestGetDescriptor,
		Value:       uint16(native.DescriptorTypeString)<<8 | 0x30,
		Length:      8,
	}
	c := collect(t, func(done native.Completion) native.Status {
		return dev.SubmitControl(req, make([]byte, 8), time.Second, done)
	})
	assert.Equal(t, native.EStall, c.status)
	assert.Zero(t, c.n)
}

func TestStringDescriptors(t *testing.T) {
	dev := Open(DefaultLayout())
	defer dev.Close()

	s, st := dev.StringDescriptor(1, native.LangIDUSEnglish)
	require.Equal(t, native.OK, st)
	assert.Equal(t, "Virtual Systems", s)

	s, st = dev.StringDescriptor(2, native.LangIDUSEnglish)
	require.Equal(t, native.OK, st)
	assert.Equal(t, "Loopback Gadget", s)

	_, st = dev.StringDescriptor(0, native.LangIDUSEnglish)
	assert.Equal(t, native.ENotFound, st)
	_, st = dev.StringDescriptor(42, native.LangIDUSEnglish)
	assert.Equal(t, native.ENotFound, st)
}

func TestPipeIO(t *testing.T) {
	dev := Open(DefaultLayout())
	defer dev.Close()
	intf := openInterface(t, dev, 0)

	in, st := intf.CopyPipe(0x81)
	require.Equal(t, native.OK, st)
	data := make([]byte, 16)
	c := collect(t, func(done native.Completion) native.Status {
		return in.SubmitIO(data, time.Second, done)
	})
	require.Equal(t, native.OK, c.status)
	assert.Equal(t, 16, c.n)
	for i, b := range data {
		assert.Equal(t, byte(i)^0x81, b, "pattern mismatch at %d", i)
	}

	out, st := intf.CopyPipe(0x01)
	require.Equal(t, native.OK, st)
	c = collect(t, func(done native.Completion) native.Status {
		return out.SubmitIO([]byte("ping"), time.Second, done)
	})
	require.Equal(t, native.OK, c.status)
	assert.Equal(t, 4, c.n)

	assert.Equal(t, int64(2), dev.IOCount())
	_, st = intf.CopyPipe(0x99)
	assert.Equal(t, native.ENotFound, st)
}

func TestFailureScripting(t *testing.T) {
	dev := Open(DefaultLayout())
	defer dev.Close()
	intf := openInterface(t, dev, 0)
	pipe, _ := intf.CopyPipe(0x81)

	dev.FailNextIO(native.EStall)
	c := collect(t, func(done native.Completion) native.Status {
		return pipe.SubmitIO(make([]byte, 4), time.Second, done)
	})
	assert.Equal(t, native.EStall, c.status)
	assert.Zero(t, c.n, "scripted failure should carry no data")

	c = collect(t, func(done native.Completion) native.Status {
		return pipe.SubmitIO(make([]byte, 4), time.Second, done)
	})
	assert.Equal(t, native.OK, c.status, "script should be consumed")

	dev.FailNextControl(native.ETimeout)
	c = collect(t, func(done native.Completion) native.Status {
		return dev.SubmitControl(native.ControlRequest{}, nil, time.Second, done)
	})
	assert.Equal(t, native.ETimeout, c.status)
}

func TestAlternateSettings(t *testing.T) {
	dev := Open(DefaultLayout())
	defer dev.Close()
	intf := openInterface(t, dev, 1)

	raw, st := intf.InterfaceDescriptor()
	require.Equal(t, native.OK, st)
	var desc native.InterfaceDescriptor
	require.True(t, native.ParseInterfaceDescriptor(raw, &desc))
	assert.Equal(t, uint8(0), desc.AlternateSetting)

	assert.Equal(t, native.EBadArgument, intf.SelectAlternateSetting(7))
	require.Equal(t, native.OK, intf.SelectAlternateSetting(1))

	raw, st = intf.InterfaceDescriptor()
	require.Equal(t, native.OK, st)
	require.True(t, native.ParseInterfaceDescriptor(raw, &desc))
	assert.Equal(t, uint8(1), desc.AlternateSetting)

	pipe, st := intf.CopyPipe(0x82)
	require.Equal(t, native.OK, st)
	raw, st = pipe.EndpointDescriptor()
	require.Equal(t, native.OK, st)
	var ep native.EndpointDescriptor
	require.True(t, native.ParseEndpointDescriptor(raw, &ep))
	assert.Equal(t, uint16(8), ep.MaxPacketSize, "pipe should reflect alternate setting 1")
}

func TestStreams(t *testing.T) {
	dev := Open(DefaultLayout())
	defer dev.Close()
	intf := openInterface(t, dev, 0)
	bulk, _ := intf.CopyPipe(0x81)

	_, st := bulk.CopyStream(1)
	assert.Equal(t, native.EUnsupported, st, "streams must be enabled first")

	require.Equal(t, native.OK, bulk.EnableStreams())
	stream, st := bulk.CopyStream(1)
	require.Equal(t, native.OK, st)
	c := collect(t, func(done native.Completion) native.Status {
		return stream.SubmitIO(make([]byte, 8), time.Second, done)
	})
	assert.Equal(t, native.OK, c.status)

	_, st = bulk.CopyStream(0)
	assert.Equal(t, native.ENotFound, st)
	_, st = bulk.CopyStream(maxStreamID + 1)
	assert.Equal(t, native.ENotFound, st)
	assert.Equal(t, native.EUnsupported, stream.EnableStreams(), "stream pipes have no sub-streams")

	status := openInterface(t, dev, 1)
	intr, _ := status.CopyPipe(0x82)
	assert.Equal(t, native.EUnsupported, intr.EnableStreams())
}

func TestAdjustDescriptors(t *testing.T) {
	dev := Open(DefaultLayout())
	defer dev.Close()
	intf := openInterface(t, dev, 0)
	pipe, _ := intf.CopyPipe(0x81)

	revised := native.EndpointDescriptor{
		EndpointAddress: 0x81,
		Attributes:      0x02,
		MaxPacketSize:   1024,
		Interval:        0,
	}
	buf := make([]byte, native.EndpointDescriptorSize)
	revised.MarshalTo(buf)
	require.Equal(t, native.OK, pipe.AdjustDescriptors(buf, nil))

	raw, st := pipe.EndpointDescriptor()
	require.Equal(t, native.OK, st)
	var desc native.EndpointDescriptor
	require.True(t, native.ParseEndpointDescriptor(raw, &desc))
	assert.Equal(t, uint16(1024), desc.MaxPacketSize)

	wrong := native.EndpointDescriptor{EndpointAddress: 0x01, Attributes: 0x02}
	wrong.MarshalTo(buf)
	assert.Equal(t, native.EBadArgument, pipe.AdjustDescriptors(buf, nil))
	assert.Equal(t, native.EBadArgument, pipe.AdjustDescriptors([]byte{1, 2}, nil))
}

func TestIdleTimeout(t *testing.T) {
	dev := Open(DefaultLayout())
	defer dev.Close()
	intf := openInterface(t, dev, 0)
	pipe, _ := intf.CopyPipe(0x01)

	d, st := pipe.IdleTimeout()
	require.Equal(t, native.OK, st)
	assert.Zero(t, d)

	assert.Equal(t, native.EBadArgument, pipe.SetIdleTimeout(-time.Second))
	require.Equal(t, native.OK, pipe.SetIdleTimeout(50*time.Millisecond))
	d, _ = pipe.IdleTimeout()
	assert.Equal(t, 50*time.Millisecond, d)
}

func TestFrameNumber(t *testing.T) {
	dev := Open(DefaultLayout())
	defer dev.Close()

	_, st := dev.FrameNumber(time.Now().Add(-time.Hour))
	assert.Equal(t, native.EBadArgument, st)

	frame, st := dev.FrameNumber(time.Now().Add(time.Second))
	require.Equal(t, native.OK, st)
	assert.GreaterOrEqual(t, frame, uint64(1000))
}

func TestCloseCascade(t *testing.T) {
	dev := Open(DefaultLayout())
	intf := openInterface(t, dev, 0)
	pipe, _ := intf.CopyPipe(0x81)

	require.Equal(t, native.OK, dev.Close())
	assert.Equal(t, native.ENoDevice, dev.Close(), "double close should fail")

	st := dev.SubmitControl(native.ControlRequest{}, nil, time.Second, func(native.Status, int) {})
	assert.Equal(t, native.ENoDevice, st)
	_, st = intf.InterfaceDescriptor()
	assert.Equal(t, native.ENoDevice, st)
	st = pipe.SubmitIO(make([]byte, 4), time.Second, func(native.Status, int) {})
	assert.Equal(t, native.ENoDevice, st)
}
