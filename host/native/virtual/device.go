package virtual

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hostusb/hostusb/host/native"
	"github.com/hostusb/hostusb/pkg"
)

// nextServiceID allocates registry identities across all virtual objects.
var nextServiceID atomic.Uint64

func allocServiceID() uint64 {
	return nextServiceID.Add(1)
}

type nameKey struct {
	configValue uint8
	number      uint8
}

// Device is an in-memory native device handle built from a Layout. It
// implements native.DeviceHandle.
//
// One mutex guards all mutable state of the device and of the interface
// and pipe handles derived from it; handle staleness is tracked with a
// generation counter bumped on reconfigure, reset, and close.
type Device struct {
	serviceID  uint64
	address    uint8
	queue      *native.Queue
	frameEpoch time.Time

	mu         sync.Mutex
	layout     Layout
	closed     bool
	generation uint64
	active     uint8 // active configuration value
	entries    []*registryEntry

	// String descriptor table; index 0 is unused per the USB convention.
	strings    []string
	mfrIndex   uint8
	prodIndex  uint8
	serIndex   uint8
	nameIndex  map[nameKey]uint8

	stats   stats
	scripts scripts
}

type stats struct {
	openInterface atomic.Int64
	control       atomic.Int64
	io            atomic.Int64
}

// scripts holds queued completion statuses for failure injection. A queued
// status is consumed by the next matching submit: the enqueue succeeds and
// the completion reports the scripted status.
type scripts struct {
	control []native.Status
	io      []native.Status
}

func (s *scripts) nextControl() native.Status {
	if len(s.control) == 0 {
		return native.OK
	}
	st := s.control[0]
	s.control = s.control[1:]
	return st
}

func (s *scripts) nextIO() native.Status {
	if len(s.io) == 0 {
		return native.OK
	}
	st := s.io[0]
	s.io = s.io[1:]
	return st
}

// Open creates a live device handle presenting the given layout. The
// layout is normalized first, so hand-built layouts may omit defaulted
// fields the same way YAML layouts do.
func Open(layout Layout) *Device {
	layout.normalize()
	id := allocServiceID()
	d := &Device{
		serviceID:  id,
		address:    uint8(id%126) + 1,
		queue:      native.NewQueue(fmt.Sprintf("virtual-device-%d", id)),
		frameEpoch: time.Now(),
		layout:     layout,
		active:     layout.Configurations[0].Value,
		nameIndex:  make(map[nameKey]uint8),
	}
	d.buildStringTable()
	d.rebuildEntriesLocked()
	pkg.LogDebug(pkg.ComponentVirtual, "device opened",
		"service", d.serviceID, "vendor", layout.VendorID, "product", layout.ProductID)
	return d
}

func (d *Device) buildStringTable() {
	d.strings = []string{""}
	add := func(s string) uint8 {
		if s == "" {
			return 0
		}
		d.strings = append(d.strings, s)
		return uint8(len(d.strings) - 1)
	}
	d.mfrIndex = add(d.layout.Manufacturer)
	d.prodIndex = add(d.layout.Product)
	d.serIndex = add(d.layout.SerialNumber)
	for ci := range d.layout.Configurations {
		cfg := &d.layout.Configurations[ci]
		for ii := range cfg.Interfaces {
			intf := &cfg.Interfaces[ii]
			d.nameIndex[nameKey{cfg.Value, intf.Number}] = add(intf.Name)
		}
	}
}

// FailNextControl queues a completion status for the next control request
// submitted anywhere on this device or its children. The enqueue itself
// still succeeds.
func (d *Device) FailNextControl(s native.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.scripts.control = append(d.scripts.control, s)
}

// FailNextIO queues a completion status for the next I/O transfer
// submitted on any pipe of this device. The enqueue itself still succeeds.
func (d *Device) FailNextIO(s native.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.scripts.io = append(d.scripts.io, s)
}

// OpenInterfaceCount returns how many interface opens have been performed.
func (d *Device) OpenInterfaceCount() int64 {
	return d.stats.openInterface.Load()
}

// ControlCount returns how many control requests have been submitted.
func (d *Device) ControlCount() int64 {
	return d.stats.control.Load()
}

// IOCount returns how many I/O transfers have been submitted.
func (d *Device) IOCount() int64 {
	return d.stats.io.Load()
}

// staleDeviceLocked reports the status of the device handle itself.
func (d *Device) staleDeviceLocked() native.Status {
	if d.closed {
		return native.ENoDevice
	}
	return native.OK
}

// submitControl is the shared control path for device, interface, and pipe
// handles. stale is evaluated under the device mutex.
func (d *Device) submitControl(stale func() native.Status, req native.ControlRequest, data []byte, done native.Completion) native.Status {
	if done == nil {
		return native.EBadArgument
	}
	d.mu.Lock()
	if st := stale(); !st.Ok() {
		d.mu.Unlock()
		return st
	}
	d.stats.control.Add(1)
	status := d.scripts.nextControl()
	var n int
	if status.Ok() {
		n, status = d.answerControlLocked(req, data)
	}
	d.mu.Unlock()

	if !d.queue.Submit(func() { done(status, n) }) {
		return native.ENoDevice
	}
	return native.OK
}

// answerControlLocked synthesizes the data phase of a control request.
// Standard GET_DESCRIPTOR and GET_STATUS shapes are answered with real
// content; unknown IN requests return zeroed bytes and OUT requests are
// acknowledged with their full length.
func (d *Device) answerControlLocked(req native.ControlRequest, data []byte) (int, native.Status) {
	in := req.RequestType&native.RequestTypeIn != 0
	switch {
	case in && req.Request == native.RequestGetDescriptor:
		bytes, st := d.descriptorBytesLocked(uint8(req.Value>>8), uint8(req.Value))
		if !st.Ok() {
			return 0, native.EStall
		}
		return copy(data, bytes), native.OK
	case in && req.Request == native.RequestGetStatus:
		var status [2]byte
		return copy(data, status[:]), native.OK
	case in:
		n := len(data)
		if int(req.Length) < n {
			n = int(req.Length)
		}
		return n, native.OK
	default:
		return len(data), native.OK
	}
}

// descriptorBytesLocked builds the raw bytes for a descriptor fetch.
// Configuration descriptors are addressed by zero-based index, string
// descriptors by table index; index 0 yields the language ID descriptor.
func (d *Device) descriptorBytesLocked(descType, index uint8) ([]byte, native.Status) {
	switch descType {
	case native.DescriptorTypeDevice:
		return d.deviceDescriptorLocked(), native.OK
	case native.DescriptorTypeConfiguration:
		if int(index) >= len(d.layout.Configurations) {
			return nil, native.ENotFound
		}
		return d.configTreeLocked(&d.layout.Configurations[index]), native.OK
	case native.DescriptorTypeString:
		if index == 0 {
			return []byte{4, native.DescriptorTypeString, 0x09, 0x04}, native.OK
		}
		if int(index) >= len(d.strings) || d.strings[index] == "" {
			return nil, native.ENotFound
		}
		buf := make([]byte, 255)
		n := native.StringDescriptorTo(buf, d.strings[index])
		return buf[:n], native.OK
	default:
		return nil, native.EUnsupported
	}
}

func (d *Device) deviceDescriptorLocked() []byte {
	desc := native.DeviceDescriptor{
		USBVersion:        0x0200,
		MaxPacketSize0:    64,
		VendorID:          d.layout.VendorID,
		ProductID:         d.layout.ProductID,
		DeviceVersion:     0x0100,
		ManufacturerIndex: d.mfrIndex,
		ProductIndex:      d.prodIndex,
		SerialNumberIndex: d.serIndex,
		NumConfigurations: uint8(len(d.layout.Configurations)),
	}
	buf := make([]byte, native.DeviceDescriptorSize)
	desc.MarshalTo(buf)
	return buf
}

// configTreeLocked builds the full descriptor tree for a configuration:
// the header followed by interface and endpoint descriptors for every
// alternate setting.
func (d *Device) configTreeLocked(cfg *ConfigurationLayout) []byte {
	var body []byte
	for ii := range cfg.Interfaces {
		intf := &cfg.Interfaces[ii]
		for ai := range intf.AltSettings {
			alt := &intf.AltSettings[ai]
			body = append(body, d.interfaceDescriptorLocked(cfg.Value, intf, alt.Value)...)
			for ei := range alt.Endpoints {
				body = append(body, endpointDescriptorBytes(&alt.Endpoints[ei])...)
			}
		}
	}
	header := native.ConfigurationDescriptor{
		TotalLength:        uint16(native.ConfigurationDescriptorSize + len(body)),
		NumInterfaces:      uint8(len(cfg.Interfaces)),
		ConfigurationValue: cfg.Value,
		Attributes:         0x80, // bus powered
		MaxPower:           50,   // 100mA
	}
	buf := make([]byte, native.ConfigurationDescriptorSize, native.ConfigurationDescriptorSize+len(body))
	header.MarshalTo(buf)
	return append(buf, body...)
}

func (d *Device) interfaceDescriptorLocked(configValue uint8, intf *InterfaceLayout, altValue uint8) []byte {
	alt := intf.altSetting(altValue)
	desc := native.InterfaceDescriptor{
		InterfaceNumber:  intf.Number,
		AlternateSetting: altValue,
		NumEndpoints:     uint8(len(alt.Endpoints)),
		InterfaceClass:   0xFF, // vendor specific
		InterfaceIndex:   d.nameIndex[nameKey{configValue, intf.Number}],
	}
	buf := make([]byte, native.InterfaceDescriptorSize)
	desc.MarshalTo(buf)
	return buf
}

func endpointDescriptorBytes(ep *EndpointLayout) []byte {
	desc := native.EndpointDescriptor{
		EndpointAddress: ep.Address,
		Attributes:      ep.Attributes,
		MaxPacketSize:   ep.MaxPacketSize,
		Interval:        ep.Interval,
	}
	buf := make([]byte, native.EndpointDescriptorSize)
	desc.MarshalTo(buf)
	return buf
}

func (d *Device) rebuildEntriesLocked() {
	d.entries = nil
	cfg := d.layout.configuration(d.active)
	if cfg == nil {
		return
	}
	for ii := range cfg.Interfaces {
		intf := &cfg.Interfaces[ii]
		d.entries = append(d.entries, &registryEntry{
			id:    allocServiceID(),
			dev:   d,
			gen:   d.generation,
			intf:  intf,
			props: map[string]uint64{
				native.PropertyInterfaceNumber:    uint64(intf.Number),
				native.PropertyConfigurationValue: uint64(cfg.Value),
			},
		})
	}
}

// Queue returns the device's serial completion queue. Interface and pipe
// handles derived from the device share it.
func (d *Device) Queue() *native.Queue {
	return d.queue
}

// ServiceID returns the device's registry identity.
func (d *Device) ServiceID() uint64 {
	return d.serviceID
}

// SubmitControl enqueues a control request on the device's default pipe.
func (d *Device) SubmitControl(req native.ControlRequest, data []byte, timeout time.Duration, done native.Completion) native.Status {
	_ = timeout // completions are synthesized immediately
	return d.submitControl(d.staleDeviceLocked, req, data, done)
}

// AbortRequests is accepted on an open handle; completions are synthesized
// immediately, so there is never anything in flight to cancel.
func (d *Device) AbortRequests(opt native.AbortOption) native.Status {
	_ = opt
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.staleDeviceLocked()
}

// Descriptor fetches a descriptor, truncated to req.MaxLength bytes.
func (d *Device) Descriptor(req native.DescriptorRequest) ([]byte, native.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if st := d.staleDeviceLocked(); !st.Ok() {
		return nil, st
	}
	return d.descriptorRequestLocked(req)
}

func (d *Device) descriptorRequestLocked(req native.DescriptorRequest) ([]byte, native.Status) {
	bytes, st := d.descriptorBytesLocked(req.Type, req.Index)
	if !st.Ok() {
		return nil, st
	}
	if req.MaxLength > 0 && int(req.MaxLength) < len(bytes) {
		bytes = bytes[:req.MaxLength]
	}
	return bytes, native.OK
}

// StringDescriptor resolves a string table index.
func (d *Device) StringDescriptor(index uint8, languageID uint16) (string, native.Status) {
	_ = languageID // single-language device
	d.mu.Lock()
	defer d.mu.Unlock()
	if st := d.staleDeviceLocked(); !st.Ok() {
		return "", st
	}
	return d.stringLocked(index)
}

func (d *Device) stringLocked(index uint8) (string, native.Status) {
	if index == 0 || int(index) >= len(d.strings) || d.strings[index] == "" {
		return "", native.ENotFound
	}
	return d.strings[index], native.OK
}

// DeviceAddress returns the bus address assigned at open.
func (d *Device) DeviceAddress() (uint8, native.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if st := d.staleDeviceLocked(); !st.Ok() {
		return 0, st
	}
	return d.address, native.OK
}

// FrameNumber counts 1ms frames since the device was opened.
func (d *Device) FrameNumber(at time.Time) (uint64, native.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if st := d.staleDeviceLocked(); !st.Ok() {
		return 0, st
	}
	return d.frameNumberLocked(at)
}

func (d *Device) frameNumberLocked(at time.Time) (uint64, native.Status) {
	if at.Before(d.frameEpoch) {
		return 0, native.EBadArgument
	}
	return uint64(at.Sub(d.frameEpoch) / time.Millisecond), native.OK
}

// Close releases the device. All derived handles become stale and the
// completion queue is drained and stopped.
func (d *Device) Close() native.Status {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return native.ENoDevice
	}
	d.closed = true
	d.generation++
	d.mu.Unlock()
	d.queue.Close()
	pkg.LogDebug(pkg.ComponentVirtual, "device closed", "service", d.serviceID)
	return native.OK
}

// DeviceDescriptor returns the raw device descriptor bytes.
func (d *Device) DeviceDescriptor() ([]byte, native.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if st := d.staleDeviceLocked(); !st.Ok() {
		return nil, st
	}
	return d.deviceDescriptorLocked(), native.OK
}

// ConfigurationDescriptor returns the descriptor tree of the active
// configuration.
func (d *Device) ConfigurationDescriptor() ([]byte, native.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if st := d.staleDeviceLocked(); !st.Ok() {
		return nil, st
	}
	cfg := d.layout.configuration(d.active)
	if cfg == nil {
		return nil, native.ENotFound
	}
	return d.configTreeLocked(cfg), native.OK
}

// SetConfiguration activates the configuration with the given value. All
// derived handles become stale; registry entries are re-registered only
// when matchInterfaces is true.
func (d *Device) SetConfiguration(value uint8, matchInterfaces bool) native.Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	if st := d.staleDeviceLocked(); !st.Ok() {
		return st
	}
	if d.layout.configuration(value) == nil {
		return native.EBadArgument
	}
	d.active = value
	d.generation++
	if matchInterfaces {
		d.rebuildEntriesLocked()
	} else {
		d.entries = nil
	}
	pkg.LogDebug(pkg.ComponentVirtual, "configuration set",
		"service", d.serviceID, "value", value, "matchInterfaces", matchInterfaces)
	return native.OK
}

// Reset returns the device to its first configuration. All derived handles
// become stale.
func (d *Device) Reset() native.Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	if st := d.staleDeviceLocked(); !st.Ok() {
		return st
	}
	d.active = d.layout.Configurations[0].Value
	d.generation++
	d.rebuildEntriesLocked()
	pkg.LogDebug(pkg.ComponentVirtual, "device reset", "service", d.serviceID)
	return native.OK
}

// Children returns the registry entries of the active configuration.
func (d *Device) Children() ([]native.RegistryEntry, native.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if st := d.staleDeviceLocked(); !st.Ok() {
		return nil, st
	}
	entries := make([]native.RegistryEntry, len(d.entries))
	for i, e := range d.entries {
		entries[i] = e
	}
	return entries, native.OK
}

// OpenInterface opens an independent interface handle for a registry
// entry. An entry may be opened more than once; each handle stands alone.
func (d *Device) OpenInterface(entry native.RegistryEntry) (native.InterfaceHandle, native.Status) {
	re, ok := entry.(*registryEntry)
	if !ok || re.dev != d {
		return nil, native.EBadArgument
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if st := d.staleDeviceLocked(); !st.Ok() {
		return nil, st
	}
	if re.gen != d.generation {
		return nil, native.ENoDevice
	}
	d.stats.openInterface.Add(1)
	intf := &Interface{
		dev:         d,
		serviceID:   allocServiceID(),
		gen:         d.generation,
		configValue: d.active,
		layout:      re.intf,
	}
	pkg.LogDebug(pkg.ComponentVirtual, "interface opened",
		"service", intf.serviceID, "number", re.intf.Number)
	return intf, native.OK
}

// registryEntry is one child of a virtual device in the registry.
type registryEntry struct {
	id    uint64
	dev   *Device
	gen   uint64
	intf  *InterfaceLayout
	props map[string]uint64
}

// EntryID returns the entry's registry identity.
func (e *registryEntry) EntryID() uint64 {
	return e.id
}

// Class returns the interface class conformance name.
func (e *registryEntry) Class() string {
	return native.ClassUSBHostInterface
}

// Property returns a numeric entry property.
func (e *registryEntry) Property(key string) (uint64, bool) {
	v, ok := e.props[key]
	return v, ok
}

var (
	_ native.DeviceHandle  = (*Device)(nil)
	_ native.RegistryEntry = (*registryEntry)(nil)
)
