package host

import (
	"fmt"

	"github.com/hostusb/hostusb/host/native"
	"github.com/hostusb/hostusb/pkg"
)

// Interface wraps one claimed native interface handle. Instances are
// normally obtained through Device.Interface, which caches them; wrapping a
// handle directly with NewInterface is supported for callers that claimed
// the interface themselves.
//
// Interface does not cache Endpoints: every Endpoint call copies a fresh
// native pipe handle, and the caller owns the returned wrapper.
type Interface struct {
	session
	intf native.InterfaceHandle
	meta InterfaceMetadata
}

// NewInterface wraps an already-claimed native interface handle.
func NewInterface(h native.InterfaceHandle) *Interface {
	return newInterface(h)
}

func newInterface(h native.InterfaceHandle) *Interface {
	i := &Interface{intf: h}
	i.session = session{handle: h, component: pkg.ComponentInterface}
	i.meta = i.captureMetadata()
	return i
}

// Metadata returns the interface metadata record captured at construction.
// The AlternateSetting field reflects the handle's state at construction
// time and is not updated by SelectAlternateSetting.
func (i *Interface) Metadata() InterfaceMetadata {
	return i.meta
}

// SelectAlternateSetting activates the alternate setting with the given
// value. The cached metadata record keeps its construction-time
// AlternateSetting value.
func (i *Interface) SelectAlternateSetting(value uint8) error {
	if err := i.alive(); err != nil {
		return err
	}
	if err := pkg.Translate(i.intf.SelectAlternateSetting(value)); err != nil {
		return fmt.Errorf("selecting alternate setting %d: %w", value, err)
	}
	pkg.LogDebug(pkg.ComponentInterface, "alternate setting selected",
		"number", i.meta.InterfaceNumber, "alt", value)
	return nil
}

// Endpoint copies a fresh native pipe handle for the endpoint with the
// given address on the current alternate setting and wraps it. The caller
// owns the returned Endpoint and must destroy it. An address with no
// endpoint fails with pkg.ErrNotFound.
func (i *Interface) Endpoint(address uint8) (*Endpoint, error) {
	if err := i.alive(); err != nil {
		return nil, err
	}
	pipe, st := i.intf.CopyPipe(address)
	if err := pkg.Translate(st); err != nil {
		return nil, fmt.Errorf("endpoint 0x%02x: %w", address, err)
	}
	return newEndpoint(pipe), nil
}

// InterfaceDescriptor returns the raw descriptor bytes of the interface's
// current alternate setting.
func (i *Interface) InterfaceDescriptor() ([]byte, error) {
	if err := i.alive(); err != nil {
		return nil, err
	}
	data, st := i.intf.InterfaceDescriptor()
	if err := pkg.Translate(st); err != nil {
		return nil, err
	}
	return data, nil
}

// ConfigurationDescriptor returns the full raw descriptor tree of the
// configuration containing this interface.
func (i *Interface) ConfigurationDescriptor() ([]byte, error) {
	if err := i.alive(); err != nil {
		return nil, err
	}
	data, st := i.intf.ConfigurationDescriptor()
	if err := pkg.Translate(st); err != nil {
		return nil, err
	}
	return data, nil
}

func (i *Interface) captureMetadata() InterfaceMetadata {
	raw, st := i.intf.InterfaceDescriptor()
	if !st.Ok() {
		return InterfaceMetadata{}
	}
	var desc native.InterfaceDescriptor
	if !native.ParseInterfaceDescriptor(raw, &desc) {
		return InterfaceMetadata{}
	}
	return interfaceMetadata(&desc, i.stringLookup())
}
