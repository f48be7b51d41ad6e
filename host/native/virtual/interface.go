package virtual

import (
	"time"

	"github.com/hostusb/hostusb/host/native"
	"github.com/hostusb/hostusb/pkg"
)

// Interface is a claimed interface of a virtual device. It implements
// native.InterfaceHandle. Its mutable state is guarded by the owning
// device's mutex.
type Interface struct {
	dev         *Device
	serviceID   uint64
	gen         uint64
	configValue uint8
	layout      *InterfaceLayout

	closed bool
	alt    uint8
}

// staleLocked reports the status of the interface handle. Reconfiguring,
// resetting, or closing the device orphans the handle.
func (i *Interface) staleLocked() native.Status {
	if i.closed || i.dev.closed || i.dev.generation != i.gen {
		return native.ENoDevice
	}
	return native.OK
}

// Queue returns the owning device's completion queue.
func (i *Interface) Queue() *native.Queue {
	return i.dev.queue
}

// ServiceID returns the interface handle's registry identity.
func (i *Interface) ServiceID() uint64 {
	return i.serviceID
}

// SubmitControl enqueues a control request through the owning device.
func (i *Interface) SubmitControl(req native.ControlRequest, data []byte, timeout time.Duration, done native.Completion) native.Status {
	_ = timeout
	return i.dev.submitControl(i.staleLocked, req, data, done)
}

// AbortRequests is accepted on a live handle; completions are synthesized
// immediately, so nothing is ever in flight.
func (i *Interface) AbortRequests(opt native.AbortOption) native.Status {
	_ = opt
	i.dev.mu.Lock()
	defer i.dev.mu.Unlock()
	return i.staleLocked()
}

// Descriptor fetches a descriptor from the owning device.
func (i *Interface) Descriptor(req native.DescriptorRequest) ([]byte, native.Status) {
	i.dev.mu.Lock()
	defer i.dev.mu.Unlock()
	if st := i.staleLocked(); !st.Ok() {
		return nil, st
	}
	return i.dev.descriptorRequestLocked(req)
}

// StringDescriptor resolves a string table index on the owning device.
func (i *Interface) StringDescriptor(index uint8, languageID uint16) (string, native.Status) {
	_ = languageID
	i.dev.mu.Lock()
	defer i.dev.mu.Unlock()
	if st := i.staleLocked(); !st.Ok() {
		return "", st
	}
	return i.dev.stringLocked(index)
}

// DeviceAddress returns the owning device's bus address.
func (i *Interface) DeviceAddress() (uint8, native.Status) {
	i.dev.mu.Lock()
	defer i.dev.mu.Unlock()
	if st := i.staleLocked(); !st.Ok() {
		return 0, st
	}
	return i.dev.address, native.OK
}

// FrameNumber reports the frame counter of the owning device.
func (i *Interface) FrameNumber(at time.Time) (uint64, native.Status) {
	i.dev.mu.Lock()
	defer i.dev.mu.Unlock()
	if st := i.staleLocked(); !st.Ok() {
		return 0, st
	}
	return i.dev.frameNumberLocked(at)
}

// Close releases the interface handle. Pipes copied from it keep their own
// lifetime.
func (i *Interface) Close() native.Status {
	i.dev.mu.Lock()
	defer i.dev.mu.Unlock()
	if i.closed {
		return native.ENoDevice
	}
	i.closed = true
	pkg.LogDebug(pkg.ComponentVirtual, "interface closed",
		"service", i.serviceID, "number", i.layout.Number)
	return native.OK
}

// InterfaceDescriptor returns the descriptor of the currently selected
// alternate setting.
func (i *Interface) InterfaceDescriptor() ([]byte, native.Status) {
	i.dev.mu.Lock()
	defer i.dev.mu.Unlock()
	if st := i.staleLocked(); !st.Ok() {
		return nil, st
	}
	return i.dev.interfaceDescriptorLocked(i.configValue, i.layout, i.alt), native.OK
}

// ConfigurationDescriptor returns the descriptor tree of the configuration
// containing this interface.
func (i *Interface) ConfigurationDescriptor() ([]byte, native.Status) {
	i.dev.mu.Lock()
	defer i.dev.mu.Unlock()
	if st := i.staleLocked(); !st.Ok() {
		return nil, st
	}
	cfg := i.dev.layout.configuration(i.configValue)
	if cfg == nil {
		return nil, native.ENotFound
	}
	return i.dev.configTreeLocked(cfg), native.OK
}

// SelectAlternateSetting activates an alternate setting declared in the
// layout. Existing pipes keep operating with their captured parameters.
func (i *Interface) SelectAlternateSetting(value uint8) native.Status {
	i.dev.mu.Lock()
	defer i.dev.mu.Unlock()
	if st := i.staleLocked(); !st.Ok() {
		return st
	}
	if i.layout.altSetting(value) == nil {
		return native.EBadArgument
	}
	i.alt = value
	return native.OK
}

// CopyPipe opens an independent pipe handle for the endpoint with the given
// address on the current alternate setting.
func (i *Interface) CopyPipe(address uint8) (native.PipeHandle, native.Status) {
	i.dev.mu.Lock()
	defer i.dev.mu.Unlock()
	if st := i.staleLocked(); !st.Ok() {
		return nil, st
	}
	alt := i.layout.altSetting(i.alt)
	ep := alt.endpoint(address)
	if ep == nil {
		return nil, native.ENotFound
	}
	return &Pipe{
		dev:       i.dev,
		serviceID: allocServiceID(),
		gen:       i.gen,
		layout:    *ep,
	}, native.OK
}

var _ native.InterfaceHandle = (*Interface)(nil)
