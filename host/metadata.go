package host

import (
	"github.com/hostusb/hostusb/host/native"
)

// UndefinedString is substituted for any string descriptor that fails to
// resolve during metadata capture. Capture never fails the owning object's
// construction over a bad string index.
const UndefinedString = "Undefined"

// Direction indicates the data direction of an endpoint.
type Direction uint8

// Endpoint directions, derived from bit 7 of the endpoint address.
const (
	DirectionHostToDevice Direction = iota // OUT
	DirectionDeviceToHost                  // IN
)

// String returns a human-readable direction name.
func (d Direction) String() string {
	switch d {
	case DirectionHostToDevice:
		return "host-to-device"
	case DirectionDeviceToHost:
		return "device-to-host"
	default:
		return "unknown"
	}
}

// TransferType indicates the transfer type of an endpoint.
type TransferType uint8

// Endpoint transfer types, derived from bits 0-1 of the endpoint attributes.
const (
	TransferTypeControl TransferType = iota
	TransferTypeInterrupt
	TransferTypeBulk
	TransferTypeIsochronous
	TransferTypeUnknown
)

// String returns a human-readable transfer type name.
func (t TransferType) String() string {
	switch t {
	case TransferTypeControl:
		return "control"
	case TransferTypeInterrupt:
		return "interrupt"
	case TransferTypeBulk:
		return "bulk"
	case TransferTypeIsochronous:
		return "isochronous"
	default:
		return "unknown"
	}
}

// DeviceMetadata is the immutable record captured from the device and
// active-configuration descriptors at Device construction, and recaptured
// after a successful reconfigure or reset.
type DeviceMetadata struct {
	VendorID                  uint16
	ProductID                 uint16
	Name                      string
	Manufacturer              string
	SerialNumber              string
	ConfigurationCount        uint8
	InterfaceCount            uint8
	CurrentConfigurationValue uint8
}

// InterfaceMetadata is the immutable record captured from the interface
// descriptor at Interface construction.
type InterfaceMetadata struct {
	Name             string
	EndpointCount    uint8
	InterfaceNumber  uint8
	AlternateSetting uint8
}

// EndpointMetadata is the immutable record captured from the endpoint
// descriptor at Endpoint construction.
type EndpointMetadata struct {
	EndpointAddress uint8
	MaxPacketSize   uint16
	PollInterval    uint8
	Direction       Direction
	TransferType    TransferType
}

// StringLookup resolves a string descriptor index. Metadata capture
// substitutes UndefinedString per field when a lookup fails; one bad index
// never blanks the other fields.
type StringLookup func(index uint8) (string, error)

func lookupString(lookup StringLookup, index uint8) string {
	if lookup == nil {
		return UndefinedString
	}
	s, err := lookup(index)
	if err != nil {
		return UndefinedString
	}
	return s
}

// deviceMetadata builds a DeviceMetadata record from the device and active
// configuration descriptors. Either descriptor being absent yields the
// all-default record.
func deviceMetadata(dev *native.DeviceDescriptor, cfg *native.ConfigurationDescriptor, lookup StringLookup) DeviceMetadata {
	if dev == nil || cfg == nil {
		return DeviceMetadata{}
	}
	return DeviceMetadata{
		VendorID:                  dev.VendorID,
		ProductID:                 dev.ProductID,
		Name:                      lookupString(lookup, dev.ProductIndex),
		Manufacturer:              lookupString(lookup, dev.ManufacturerIndex),
		SerialNumber:              lookupString(lookup, dev.SerialNumberIndex),
		ConfigurationCount:        dev.NumConfigurations,
		InterfaceCount:            cfg.NumInterfaces,
		CurrentConfigurationValue: cfg.ConfigurationValue,
	}
}

// interfaceMetadata builds an InterfaceMetadata record from an interface
// descriptor.
func interfaceMetadata(desc *native.InterfaceDescriptor, lookup StringLookup) InterfaceMetadata {
	if desc == nil {
		return InterfaceMetadata{}
	}
	return InterfaceMetadata{
		Name:             lookupString(lookup, desc.InterfaceIndex),
		EndpointCount:    desc.NumEndpoints,
		InterfaceNumber:  desc.InterfaceNumber,
		AlternateSetting: desc.AlternateSetting,
	}
}

// endpointMetadata builds an EndpointMetadata record from an endpoint
// descriptor. It is a pure function of the descriptor bytes.
func endpointMetadata(desc *native.EndpointDescriptor) EndpointMetadata {
	if desc == nil {
		return EndpointMetadata{}
	}
	return EndpointMetadata{
		EndpointAddress: desc.EndpointAddress,
		MaxPacketSize:   desc.MaxPacketSize,
		PollInterval:    desc.Interval,
		Direction:       directionOf(desc.EndpointAddress),
		TransferType:    transferTypeOf(desc.Attributes),
	}
}

func directionOf(address uint8) Direction {
	if address&0x80 != 0 {
		return DirectionDeviceToHost
	}
	return DirectionHostToDevice
}

// transferTypeOf decodes bits 0-1 of the endpoint attributes byte. The
// default arm is unreachable for a 2-bit field but kept so an unexpected
// value maps to TransferTypeUnknown rather than a wrong type.
func transferTypeOf(attributes uint8) TransferType {
	switch attributes & 0x03 {
	case 0x00:
		return TransferTypeControl
	case 0x01:
		return TransferTypeInterrupt
	case 0x02:
		return TransferTypeBulk
	case 0x03:
		return TransferTypeIsochronous
	default:
		return TransferTypeUnknown
	}
}
