package native

// bmRequestType direction bits (USB 2.0 Spec Table 9-2).
const (
	RequestTypeOut uint8 = 0x00 // Host to device
	RequestTypeIn  uint8 = 0x80 // Device to host
)

// bmRequestType type bits.
const (
	RequestTypeStandard uint8 = 0x00
	RequestTypeClass    uint8 = 0x20
	RequestTypeVendor   uint8 = 0x40
)

// bmRequestType recipient bits.
const (
	RequestRecipientDevice    uint8 = 0x00
	RequestRecipientInterface uint8 = 0x01
	RequestRecipientEndpoint  uint8 = 0x02
	RequestRecipientOther     uint8 = 0x03
)

// Standard request codes (USB 2.0 Spec Table 9-4).
const (
	RequestGetStatus        uint8 = 0x00
	RequestClearFeature     uint8 = 0x01
	RequestSetFeature       uint8 = 0x03
	RequestSetAddress       uint8 = 0x05
	RequestGetDescriptor    uint8 = 0x06
	RequestSetDescriptor    uint8 = 0x07
	RequestGetConfiguration uint8 = 0x08
	RequestSetConfiguration uint8 = 0x09
	RequestGetInterface     uint8 = 0x0A
	RequestSetInterface     uint8 = 0x0B
	RequestSynchFrame       uint8 = 0x0C
)

// Descriptor types (USB 2.0 Spec Table 9-5).
const (
	DescriptorTypeDevice        uint8 = 0x01
	DescriptorTypeConfiguration uint8 = 0x02
	DescriptorTypeString        uint8 = 0x03
	DescriptorTypeInterface     uint8 = 0x04
	DescriptorTypeEndpoint      uint8 = 0x05
)

// Descriptor sizes in bytes.
const (
	DeviceDescriptorSize        = 18
	ConfigurationDescriptorSize = 9
	InterfaceDescriptorSize     = 9
	EndpointDescriptorSize      = 7
)

// LangIDUSEnglish is the language ID for US English string descriptors.
const LangIDUSEnglish uint16 = 0x0409

// Registry class conformance and property keys used during interface
// resolution. A native stack exposes one registry entry per interface per
// configuration under the device's identity.
const (
	ClassUSBHostInterface      = "USBHostInterface"
	PropertyInterfaceNumber    = "bInterfaceNumber"
	PropertyConfigurationValue = "bConfigurationValue"
)
