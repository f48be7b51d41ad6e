package host

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hostusb/hostusb/host/native"
)

func TestEndpointMetadataDirection(t *testing.T) {
	in := endpointMetadata(&native.EndpointDescriptor{EndpointAddress: 0x81})
	assert.Equal(t, DirectionDeviceToHost, in.Direction)

	out := endpointMetadata(&native.EndpointDescriptor{EndpointAddress: 0x01})
	assert.Equal(t, DirectionHostToDevice, out.Direction)
}

func TestEndpointMetadataTransferType(t *testing.T) {
	tests := []struct {
		attributes uint8
		want       TransferType
	}{
		{0x00, TransferTypeControl},
		{0x01, TransferTypeInterrupt},
		{0x02, TransferTypeBulk},
		{0x03, TransferTypeIsochronous},
		// Sync and usage bits above the low pair are ignored.
		{0xFD, TransferTypeInterrupt},
		{0xC2, TransferTypeBulk},
	}
	for _, tt := range tests {
		meta := endpointMetadata(&native.EndpointDescriptor{Attributes: tt.attributes})
		assert.Equal(t, tt.want, meta.TransferType, "attributes 0x%02x", tt.attributes)
	}
}

func TestEndpointMetadataFields(t *testing.T) {
	meta := endpointMetadata(&native.EndpointDescriptor{
		EndpointAddress: 0x82,
		Attributes:      0x01,
		MaxPacketSize:   64,
		Interval:        10,
	})
	assert.Equal(t, uint8(0x82), meta.EndpointAddress)
	assert.Equal(t, uint16(64), meta.MaxPacketSize)
	assert.Equal(t, uint8(10), meta.PollInterval)
}

func TestDeviceMetadataStringFallbackPerField(t *testing.T) {
	dev := &native.DeviceDescriptor{
		VendorID:          0x0451,
		ProductID:         0x0042,
		ManufacturerIndex: 1,
		ProductIndex:      2,
		SerialNumberIndex: 3,
		NumConfigurations: 1,
	}
	cfg := &native.ConfigurationDescriptor{NumInterfaces: 2, ConfigurationValue: 1}

	// Only the product string resolves; the other two fail independently.
	lookup := func(index uint8) (string, error) {
		if index == 2 {
			return "Widget", nil
		}
		return "", errors.New("no such string")
	}

	meta := deviceMetadata(dev, cfg, lookup)
	assert.Equal(t, "Widget", meta.Name)
	assert.Equal(t, UndefinedString, meta.Manufacturer)
	assert.Equal(t, UndefinedString, meta.SerialNumber)
	assert.Equal(t, uint16(0x0451), meta.VendorID)
	assert.Equal(t, uint8(2), meta.InterfaceCount)
	assert.Equal(t, uint8(1), meta.CurrentConfigurationValue)
}

func TestMetadataNilInputs(t *testing.T) {
	assert.Equal(t, DeviceMetadata{}, deviceMetadata(nil, &native.ConfigurationDescriptor{}, nil))
	assert.Equal(t, DeviceMetadata{}, deviceMetadata(&native.DeviceDescriptor{}, nil, nil))
	assert.Equal(t, InterfaceMetadata{}, interfaceMetadata(nil, nil))
	assert.Equal(t, EndpointMetadata{}, endpointMetadata(nil))
}

func TestInterfaceMetadataNilLookup(t *testing.T) {
	meta := interfaceMetadata(&native.InterfaceDescriptor{
		InterfaceNumber: 3,
		NumEndpoints:    2,
		InterfaceIndex:  5,
	}, nil)
	assert.Equal(t, UndefinedString, meta.Name)
	assert.Equal(t, uint8(3), meta.InterfaceNumber)
	assert.Equal(t, uint8(2), meta.EndpointCount)
}

func TestEnumStrings(t *testing.T) {
	assert.Equal(t, "host-to-device", DirectionHostToDevice.String())
	assert.Equal(t, "device-to-host", DirectionDeviceToHost.String())
	assert.Equal(t, "unknown", Direction(9).String())

	assert.Equal(t, "control", TransferTypeControl.String())
	assert.Equal(t, "interrupt", TransferTypeInterrupt.String())
	assert.Equal(t, "bulk", TransferTypeBulk.String())
	assert.Equal(t, "isochronous", TransferTypeIsochronous.String())
	assert.Equal(t, "unknown", TransferTypeUnknown.String())
}
