package virtual

import (
	"time"

	"github.com/hostusb/hostusb/host/native"
)

// maxStreamID bounds the stream IDs a stream-capable virtual endpoint
// accepts.
const maxStreamID = 16

// Pipe is an open pipe on a virtual endpoint, or on a stream within one.
// It implements native.PipeHandle. Its mutable state is guarded by the
// owning device's mutex.
type Pipe struct {
	dev       *Device
	serviceID uint64
	gen       uint64
	layout    EndpointLayout
	isStream  bool
	streamID  uint16

	closed    bool
	streamsOn bool
	idle      time.Duration
}

func (p *Pipe) staleLocked() native.Status {
	if p.closed || p.dev.closed || p.dev.generation != p.gen {
		return native.ENoDevice
	}
	return native.OK
}

// Queue returns the owning device's completion queue.
func (p *Pipe) Queue() *native.Queue {
	return p.dev.queue
}

// ServiceID returns the pipe handle's registry identity.
func (p *Pipe) ServiceID() uint64 {
	return p.serviceID
}

// SubmitControl enqueues a control request through the owning device.
func (p *Pipe) SubmitControl(req native.ControlRequest, data []byte, timeout time.Duration, done native.Completion) native.Status {
	_ = timeout
	return p.dev.submitControl(p.staleLocked, req, data, done)
}

// AbortRequests is accepted on a live handle; completions are synthesized
// immediately, so nothing is ever in flight.
func (p *Pipe) AbortRequests(opt native.AbortOption) native.Status {
	_ = opt
	p.dev.mu.Lock()
	defer p.dev.mu.Unlock()
	return p.staleLocked()
}

// Descriptor fetches a descriptor from the owning device.
func (p *Pipe) Descriptor(req native.DescriptorRequest) ([]byte, native.Status) {
	p.dev.mu.Lock()
	defer p.dev.mu.Unlock()
	if st := p.staleLocked(); !st.Ok() {
		return nil, st
	}
	return p.dev.descriptorRequestLocked(req)
}

// StringDescriptor resolves a string table index on the owning device.
func (p *Pipe) StringDescriptor(index uint8, languageID uint16) (string, native.Status) {
	_ = languageID
	p.dev.mu.Lock()
	defer p.dev.mu.Unlock()
	if st := p.staleLocked(); !st.Ok() {
		return "", st
	}
	return p.dev.stringLocked(index)
}

// DeviceAddress returns the owning device's bus address.
func (p *Pipe) DeviceAddress() (uint8, native.Status) {
	p.dev.mu.Lock()
	defer p.dev.mu.Unlock()
	if st := p.staleLocked(); !st.Ok() {
		return 0, st
	}
	return p.dev.address, native.OK
}

// FrameNumber reports the frame counter of the owning device.
func (p *Pipe) FrameNumber(at time.Time) (uint64, native.Status) {
	p.dev.mu.Lock()
	defer p.dev.mu.Unlock()
	if st := p.staleLocked(); !st.Ok() {
		return 0, st
	}
	return p.dev.frameNumberLocked(at)
}

// Close releases the pipe handle.
func (p *Pipe) Close() native.Status {
	p.dev.mu.Lock()
	defer p.dev.mu.Unlock()
	if p.closed {
		return native.ENoDevice
	}
	p.closed = true
	return native.OK
}

// EndpointDescriptor returns the descriptor bytes for this pipe's endpoint,
// reflecting any AdjustDescriptors revisions.
func (p *Pipe) EndpointDescriptor() ([]byte, native.Status) {
	p.dev.mu.Lock()
	defer p.dev.mu.Unlock()
	if st := p.staleLocked(); !st.Ok() {
		return nil, st
	}
	return endpointDescriptorBytes(&p.layout), native.OK
}

// SubmitIO enqueues a transfer. IN endpoints fill data with a deterministic
// pattern derived from the endpoint address; OUT endpoints accept data in
// full. The completion is delivered on the device queue.
func (p *Pipe) SubmitIO(data []byte, timeout time.Duration, done native.Completion) native.Status {
	_ = timeout
	if done == nil {
		return native.EBadArgument
	}
	p.dev.mu.Lock()
	if st := p.staleLocked(); !st.Ok() {
		p.dev.mu.Unlock()
		return st
	}
	p.dev.stats.io.Add(1)
	status := p.dev.scripts.nextIO()
	var n int
	if status.Ok() {
		if p.layout.Address&native.RequestTypeIn != 0 {
			fillPattern(p.layout.Address, data)
		}
		n = len(data)
	}
	p.dev.mu.Unlock()

	if !p.dev.queue.Submit(func() { done(status, n) }) {
		return native.ENoDevice
	}
	return native.OK
}

// fillPattern writes the deterministic IN payload: a ramp XORed with the
// endpoint address, so distinct endpoints produce distinct bytes.
func fillPattern(address uint8, data []byte) {
	for i := range data {
		data[i] = byte(i) ^ address
	}
}

// ClearStall succeeds on a live pipe; the virtual stack never halts an
// endpoint on its own.
func (p *Pipe) ClearStall() native.Status {
	p.dev.mu.Lock()
	defer p.dev.mu.Unlock()
	return p.staleLocked()
}

// SetIdleTimeout records the power-management idle window.
func (p *Pipe) SetIdleTimeout(d time.Duration) native.Status {
	p.dev.mu.Lock()
	defer p.dev.mu.Unlock()
	if st := p.staleLocked(); !st.Ok() {
		return st
	}
	if d < 0 {
		return native.EBadArgument
	}
	p.idle = d
	return native.OK
}

// IdleTimeout returns the recorded idle window.
func (p *Pipe) IdleTimeout() (time.Duration, native.Status) {
	p.dev.mu.Lock()
	defer p.dev.mu.Unlock()
	if st := p.staleLocked(); !st.Ok() {
		return 0, st
	}
	return p.idle, native.OK
}

// AdjustDescriptors revises the pipe's endpoint parameters in place. The
// revised descriptor must parse and must keep the endpoint address. The
// companion descriptor is accepted and ignored.
func (p *Pipe) AdjustDescriptors(endpoint, companion []byte) native.Status {
	_ = companion
	p.dev.mu.Lock()
	defer p.dev.mu.Unlock()
	if st := p.staleLocked(); !st.Ok() {
		return st
	}
	var desc native.EndpointDescriptor
	if !native.ParseEndpointDescriptor(endpoint, &desc) {
		return native.EBadArgument
	}
	if desc.EndpointAddress != p.layout.Address {
		return native.EBadArgument
	}
	p.layout.Attributes = desc.Attributes
	p.layout.MaxPacketSize = desc.MaxPacketSize
	p.layout.Interval = desc.Interval
	return native.OK
}

// EnableStreams enables bulk streams. A non-stream-capable endpoint fails
// with EUnsupported.
func (p *Pipe) EnableStreams() native.Status {
	p.dev.mu.Lock()
	defer p.dev.mu.Unlock()
	if st := p.staleLocked(); !st.Ok() {
		return st
	}
	if !p.layout.Streams || p.isStream {
		return native.EUnsupported
	}
	p.streamsOn = true
	return native.OK
}

// DisableStreams disables bulk streams.
func (p *Pipe) DisableStreams() native.Status {
	p.dev.mu.Lock()
	defer p.dev.mu.Unlock()
	if st := p.staleLocked(); !st.Ok() {
		return st
	}
	if !p.layout.Streams || p.isStream {
		return native.EUnsupported
	}
	p.streamsOn = false
	return native.OK
}

// CopyStream opens an independent pipe for one stream of a stream-enabled
// bulk endpoint. Stream IDs are 1-based and bounded by maxStreamID.
func (p *Pipe) CopyStream(id uint16) (native.PipeHandle, native.Status) {
	p.dev.mu.Lock()
	defer p.dev.mu.Unlock()
	if st := p.staleLocked(); !st.Ok() {
		return nil, st
	}
	if !p.layout.Streams || p.isStream || !p.streamsOn {
		return nil, native.EUnsupported
	}
	if id == 0 || id > maxStreamID {
		return nil, native.ENotFound
	}
	return &Pipe{
		dev:       p.dev,
		serviceID: allocServiceID(),
		gen:       p.gen,
		layout:    p.layout,
		isStream:  true,
		streamID:  id,
	}, native.OK
}

var _ native.PipeHandle = (*Pipe)(nil)
