package host

import (
	"fmt"
	"sync"

	"github.com/hostusb/hostusb/host/native"
	"github.com/hostusb/hostusb/pkg"
)

// interfaceKey identifies one cached Interface selection.
type interfaceKey struct {
	number     uint8
	altSetting uint8
}

// Device wraps one opened native device handle. It owns an immutable
// metadata record captured at construction and the cache of resolved
// Interface wrappers, keyed by (interface number, alternate setting).
//
// The cache is the only shared mutable state in the object model. All cache
// reads and writes are serialized under one mutex, so concurrent calls for
// the same or different keys are linearized: at most one live Interface
// exists per selection, and resolution never races invalidation.
type Device struct {
	session
	dev native.DeviceHandle

	mu    sync.Mutex
	meta  DeviceMetadata
	cache map[interfaceKey]*Interface
}

// NewDevice wraps an already-opened native device handle. The device and
// active-configuration descriptors are read once to capture metadata; if
// either is unavailable the metadata record is all-default.
func NewDevice(h native.DeviceHandle) *Device {
	d := &Device{
		dev:   h,
		cache: make(map[interfaceKey]*Interface),
	}
	d.session = session{handle: h, component: pkg.ComponentDevice}
	d.meta = d.captureMetadata()
	return d
}

// Metadata returns the device metadata record captured at construction, or
// at the most recent successful reconfigure or reset.
func (d *Device) Metadata() DeviceMetadata {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.meta
}

// Interface resolves the interface with the given number under the device's
// current configuration and activates the given alternate setting on it.
// Repeated calls for the same (number, altSetting) return the identical
// cached instance until the cache is invalidated by Configure, Reset, or
// Destroy. A missing interface fails with pkg.ErrNotFound.
//
// Each distinct altSetting value opens an independent native handle to the
// interface's base registry entry; entries are never shared across keys.
func (d *Device) Interface(number, altSetting uint8) (*Interface, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.alive(); err != nil {
		return nil, err
	}

	key := interfaceKey{number: number, altSetting: altSetting}
	if intf, ok := d.cache[key]; ok {
		return intf, nil
	}

	intf, err := d.resolveLocked(number, altSetting)
	if err != nil {
		return nil, err
	}
	d.cache[key] = intf
	pkg.LogDebug(pkg.ComponentDevice, "cached interface",
		"number", number, "alt", altSetting, "service", intf.ServiceID())
	return intf, nil
}

// resolveLocked scans the device's registry children for the interface
// entry matching number under the current configuration, opens it
// exclusively, and applies the alternate setting. No partially-initialized
// wrapper is ever returned: a failed alternate-setting selection destroys
// the just-opened interface.
func (d *Device) resolveLocked(number, altSetting uint8) (*Interface, error) {
	entries, st := d.dev.Children()
	if err := pkg.Translate(st); err != nil {
		return nil, fmt.Errorf("scanning device registry: %w", err)
	}

	configValue := uint64(d.meta.CurrentConfigurationValue)
	for _, entry := range entries {
		if entry.Class() != native.ClassUSBHostInterface {
			continue
		}
		if num, ok := entry.Property(native.PropertyInterfaceNumber); !ok || num != uint64(number) {
			continue
		}
		if cv, ok := entry.Property(native.PropertyConfigurationValue); !ok || cv != configValue {
			continue
		}
		// First match wins; registry enumeration order breaks ties.
		h, st := d.dev.OpenInterface(entry)
		if err := pkg.Translate(st); err != nil {
			return nil, fmt.Errorf("opening interface %d: %w", number, err)
		}
		intf := newInterface(h)
		if altSetting != 0 {
			if err := intf.SelectAlternateSetting(altSetting); err != nil {
				intf.Destroy()
				return nil, fmt.Errorf("interface %d: %w", number, err)
			}
		}
		return intf, nil
	}
	return nil, fmt.Errorf("interface %d under configuration %d: %w", number, configValue, pkg.ErrNotFound)
}

// Configure selects the configuration with the given value. After the
// native operation succeeds every cached Interface is destroyed and the
// cache cleared, because reconfiguration invalidates all previously opened
// interface handles; metadata is then recaptured. A failed native configure
// leaves the cache untouched.
func (d *Device) Configure(value uint8, matchInterfaces bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.alive(); err != nil {
		return err
	}
	if err := pkg.Translate(d.dev.SetConfiguration(value, matchInterfaces)); err != nil {
		return fmt.Errorf("configure %d: %w", value, err)
	}
	d.invalidateLocked("configure")
	d.meta = d.captureMetadata()
	return nil
}

// Reset resets the device. Invalidation and metadata recapture follow the
// same rules as Configure.
func (d *Device) Reset() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.alive(); err != nil {
		return err
	}
	if err := pkg.Translate(d.dev.Reset()); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	d.invalidateLocked("reset")
	d.meta = d.captureMetadata()
	return nil
}

// Destroy tears down every cached Interface, then releases the device
// handle. After Destroy all operations on the device and on previously
// resolved interfaces fail.
func (d *Device) Destroy() {
	d.mu.Lock()
	d.invalidateLocked("destroy")
	d.mu.Unlock()
	d.destroy()
}

func (d *Device) invalidateLocked(reason string) {
	for key, intf := range d.cache {
		pkg.LogDebug(pkg.ComponentDevice, "destroying cached interface",
			"reason", reason, "number", key.number, "alt", key.altSetting)
		intf.Destroy()
	}
	clear(d.cache)
}

// captureMetadata reads the device and active-configuration descriptors and
// extracts the metadata record. Absent or malformed descriptors yield the
// all-default record rather than a construction failure.
func (d *Device) captureMetadata() DeviceMetadata {
	rawDev, st := d.dev.DeviceDescriptor()
	if !st.Ok() {
		return DeviceMetadata{}
	}
	var devDesc native.DeviceDescriptor
	if !native.ParseDeviceDescriptor(rawDev, &devDesc) {
		return DeviceMetadata{}
	}

	rawCfg, st := d.dev.ConfigurationDescriptor()
	if !st.Ok() {
		return DeviceMetadata{}
	}
	var cfgDesc native.ConfigurationDescriptor
	if !native.ParseConfigurationDescriptor(rawCfg, &cfgDesc) {
		return DeviceMetadata{}
	}

	return deviceMetadata(&devDesc, &cfgDesc, d.stringLookup())
}
