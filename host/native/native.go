package native

import (
	"time"
)

// ControlRequest represents a USB SETUP packet submitted on the default
// control pipe or an explicit pipe handle.
type ControlRequest struct {
	RequestType uint8  // Request characteristics (direction, type, recipient)
	Request     uint8  // Specific request
	Value       uint16 // Request-specific value
	Index       uint16 // Request-specific index
	Length      uint16 // Number of bytes in the data phase
}

// ControlRequestSize is the size of a SETUP packet in bytes.
const ControlRequestSize = 8

// ParseControlRequest parses raw bytes into a ControlRequest.
// Returns false if data is too short.
func ParseControlRequest(data []byte, out *ControlRequest) bool {
	if len(data) < ControlRequestSize {
		return false
	}
	out.RequestType = data[0]
	out.Request = data[1]
	out.Value = uint16(data[2]) | uint16(data[3])<<8
	out.Index = uint16(data[4]) | uint16(data[5])<<8
	out.Length = uint16(data[6]) | uint16(data[7])<<8
	return true
}

// MarshalTo writes the request to buf.
// Returns the number of bytes written (8), or 0 if buf is too small.
func (r *ControlRequest) MarshalTo(buf []byte) int {
	if len(buf) < ControlRequestSize {
		return 0
	}
	buf[0] = r.RequestType
	buf[1] = r.Request
	buf[2] = byte(r.Value)
	buf[3] = byte(r.Value >> 8)
	buf[4] = byte(r.Index)
	buf[5] = byte(r.Index >> 8)
	buf[6] = byte(r.Length)
	buf[7] = byte(r.Length >> 8)
	return ControlRequestSize
}

// Completion is invoked on the handle's queue when an asynchronous request
// finishes. transferred is the byte count of the data phase; it is only
// meaningful when status is OK.
type Completion func(status Status, transferred int)

// AbortOption selects how in-flight requests on a handle are cancelled.
type AbortOption uint8

// Abort options.
const (
	// AbortAsynchronous requests cancellation and returns immediately;
	// completions for cancelled requests may still fire afterwards.
	AbortAsynchronous AbortOption = iota

	// AbortSynchronous requests cancellation and waits until all in-flight
	// completions have been delivered.
	AbortSynchronous
)

// DescriptorRequest describes a generic descriptor fetch.
type DescriptorRequest struct {
	Type             uint8  // Descriptor type
	Index            uint8  // Descriptor index
	LanguageID       uint16 // Language ID for string descriptors, else 0
	RequestType      uint8  // bmRequestType type bits (standard/class/vendor)
	RequestRecipient uint8  // bmRequestType recipient bits
	MaxLength        uint16 // Upper bound on the returned byte count
}

// RegistryEntry is one child of a device in the OS object registry. Entries
// are the unit of interface resolution: the host scans a device's children
// for entries conforming to ClassUSBHostInterface and matches their numeric
// properties against the requested interface number and the device's active
// configuration value.
type RegistryEntry interface {
	// EntryID returns the registry identity of the entry, unique per stack.
	EntryID() uint64

	// Class returns the class name the entry conforms to.
	Class() string

	// Property returns the numeric property stored under key, if present.
	Property(key string) (uint64, bool)
}

// Handle is the capability set common to device, interface, and pipe
// handles. A handle is exclusively owned by one wrapper; operations on a
// closed handle report ENoDevice.
type Handle interface {
	// Queue returns the serial queue completions are delivered on.
	Queue() *Queue

	// ServiceID returns the registry identity of the underlying service.
	ServiceID() uint64

	// SubmitControl enqueues a control request. The returned status reports
	// the enqueue result only; the operation result arrives through done on
	// the handle's queue. A zero timeout means no timeout.
	SubmitControl(req ControlRequest, data []byte, timeout time.Duration, done Completion) Status

	// AbortRequests cancels in-flight control requests on this handle.
	AbortRequests(opt AbortOption) Status

	// Descriptor fetches a descriptor, returning at most req.MaxLength bytes.
	Descriptor(req DescriptorRequest) ([]byte, Status)

	// StringDescriptor fetches and decodes a string descriptor.
	StringDescriptor(index uint8, languageID uint16) (string, Status)

	// DeviceAddress returns the bus address of the underlying device.
	DeviceAddress() (uint8, Status)

	// FrameNumber returns the bus frame number at the given host time.
	FrameNumber(at time.Time) (uint64, Status)

	// Close releases the handle. Close is not idempotent; the owner must
	// call it exactly once.
	Close() Status
}

// DeviceHandle is an opened USB device.
type DeviceHandle interface {
	Handle

	// DeviceDescriptor returns the raw device descriptor bytes.
	DeviceDescriptor() ([]byte, Status)

	// ConfigurationDescriptor returns the full raw descriptor tree of the
	// active configuration.
	ConfigurationDescriptor() ([]byte, Status)

	// SetConfiguration selects the configuration with the given value.
	// When matchInterfaces is true the stack re-registers the new
	// configuration's interfaces in the registry. On success all previously
	// opened interface and pipe handles of this device become stale.
	SetConfiguration(value uint8, matchInterfaces bool) Status

	// Reset performs a device reset. On success all previously opened
	// interface and pipe handles of this device become stale.
	Reset() Status

	// Children enumerates the registry entries below the device's identity.
	Children() ([]RegistryEntry, Status)

	// OpenInterface opens a child registry entry as an interface handle.
	// An entry may be opened more than once; each handle stands alone.
	OpenInterface(entry RegistryEntry) (InterfaceHandle, Status)
}

// InterfaceHandle is a claimed USB interface.
type InterfaceHandle interface {
	Handle

	// InterfaceDescriptor returns the raw descriptor bytes of the
	// interface's current alternate setting.
	InterfaceDescriptor() ([]byte, Status)

	// ConfigurationDescriptor returns the full raw descriptor tree of the
	// configuration containing this interface.
	ConfigurationDescriptor() ([]byte, Status)

	// SelectAlternateSetting activates the alternate setting with the given
	// value on this interface.
	SelectAlternateSetting(value uint8) Status

	// CopyPipe opens a fresh pipe handle for the endpoint with the given
	// address on the current alternate setting. Each call returns an
	// independent handle.
	CopyPipe(address uint8) (PipeHandle, Status)
}

// PipeHandle is a bound endpoint pipe.
type PipeHandle interface {
	Handle

	// EndpointDescriptor returns the raw descriptor bytes of the endpoint.
	EndpointDescriptor() ([]byte, Status)

	// SubmitIO enqueues a bulk, interrupt, or isochronous transfer. The
	// returned status reports the enqueue result only; the operation result
	// arrives through done on the handle's queue. Direction follows the
	// endpoint address: IN pipes fill data, OUT pipes send it.
	SubmitIO(data []byte, timeout time.Duration, done Completion) Status

	// ClearStall clears a halted condition on the endpoint.
	ClearStall() Status

	// SetIdleTimeout sets the power-management idle window for the pipe.
	SetIdleTimeout(d time.Duration) Status

	// IdleTimeout returns the current power-management idle window.
	IdleTimeout() (time.Duration, Status)

	// AdjustDescriptors applies revised endpoint (and optional companion)
	// descriptor bytes to the open pipe.
	AdjustDescriptors(endpoint, companion []byte) Status

	// EnableStreams enables bulk streams on a stream-capable pipe.
	EnableStreams() Status

	// DisableStreams disables bulk streams.
	DisableStreams() Status

	// CopyStream opens a handle for the stream with the given ID. Streams
	// must be enabled first.
	CopyStream(id uint16) (PipeHandle, Status)
}
