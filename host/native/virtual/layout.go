package virtual

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Layout declares the device a virtual stack presents: identity strings,
// configurations, interfaces, alternate settings, and endpoints. A Layout
// is plain data; Open turns it into a live device handle.
type Layout struct {
	VendorID     uint16 `yaml:"vendorID"`
	ProductID    uint16 `yaml:"productID"`
	Manufacturer string `yaml:"manufacturer"`
	Product      string `yaml:"product"`

	// SerialNumber is filled with a generated UUID when left empty.
	SerialNumber string `yaml:"serialNumber"`

	Configurations []ConfigurationLayout `yaml:"configurations"`
}

// ConfigurationLayout declares one device configuration.
type ConfigurationLayout struct {
	Value      uint8             `yaml:"value"`
	Interfaces []InterfaceLayout `yaml:"interfaces"`
}

// InterfaceLayout declares one interface and its alternate settings.
type InterfaceLayout struct {
	Number      uint8              `yaml:"number"`
	Name        string             `yaml:"name"`
	AltSettings []AltSettingLayout `yaml:"altSettings"`
}

// AltSettingLayout declares one alternate setting of an interface.
type AltSettingLayout struct {
	Value     uint8            `yaml:"value"`
	Endpoints []EndpointLayout `yaml:"endpoints"`
}

// EndpointLayout declares one endpoint.
type EndpointLayout struct {
	Address       uint8  `yaml:"address"`
	Attributes    uint8  `yaml:"attributes"`
	MaxPacketSize uint16 `yaml:"maxPacketSize"`
	Interval      uint8  `yaml:"interval"`

	// Streams marks the endpoint stream-capable (bulk streams).
	Streams bool `yaml:"streams"`
}

// LoadLayout reads and validates a YAML layout file.
func LoadLayout(path string) (Layout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Layout{}, fmt.Errorf("reading layout: %w", err)
	}
	var layout Layout
	if err := yaml.Unmarshal(data, &layout); err != nil {
		return Layout{}, fmt.Errorf("parsing layout: %w", err)
	}
	if err := layout.validate(); err != nil {
		return Layout{}, fmt.Errorf("layout %s: %w", path, err)
	}
	layout.normalize()
	return layout, nil
}

// DefaultLayout returns a small demonstration device: one configuration
// with a bulk IN/OUT pair on interface 0 and an interrupt IN endpoint on
// interface 1, which also exposes an alternate setting.
func DefaultLayout() Layout {
	layout := Layout{
		VendorID:     0x1d6b,
		ProductID:    0x0104,
		Manufacturer: "Virtual Systems",
		Product:      "Loopback Gadget",
		Configurations: []ConfigurationLayout{{
			Value: 1,
			Interfaces: []InterfaceLayout{
				{
					Number: 0,
					Name:   "Bulk Loopback",
					AltSettings: []AltSettingLayout{{
						Value: 0,
						Endpoints: []EndpointLayout{
							{Address: 0x01, Attributes: 0x02, MaxPacketSize: 512, Streams: true},
							{Address: 0x81, Attributes: 0x02, MaxPacketSize: 512, Streams: true},
						},
					}},
				},
				{
					Number: 1,
					Name:   "Status",
					AltSettings: []AltSettingLayout{
						{
							Value: 0,
							Endpoints: []EndpointLayout{
								{Address: 0x82, Attributes: 0x01, MaxPacketSize: 64, Interval: 10},
							},
						},
						{
							Value: 1,
							Endpoints: []EndpointLayout{
								{Address: 0x82, Attributes: 0x01, MaxPacketSize: 8, Interval: 1},
							},
						},
					},
				},
			},
		}},
	}
	layout.normalize()
	return layout
}

func (l *Layout) validate() error {
	if len(l.Configurations) == 0 {
		return fmt.Errorf("no configurations declared")
	}
	for ci, cfg := range l.Configurations {
		for _, intf := range cfg.Interfaces {
			for _, alt := range intf.AltSettings {
				for _, ep := range alt.Endpoints {
					if ep.Address&0x0F == 0 {
						return fmt.Errorf("configuration %d interface %d: endpoint address 0x%02x has no endpoint number",
							ci, intf.Number, ep.Address)
					}
				}
			}
		}
	}
	return nil
}

// normalize fills defaulted fields: configuration values, an implicit
// alternate setting 0, packet sizes, and a generated serial number.
func (l *Layout) normalize() {
	if l.SerialNumber == "" {
		l.SerialNumber = uuid.NewString()
	}
	for ci := range l.Configurations {
		cfg := &l.Configurations[ci]
		if cfg.Value == 0 {
			cfg.Value = uint8(ci + 1)
		}
		for ii := range cfg.Interfaces {
			intf := &cfg.Interfaces[ii]
			if len(intf.AltSettings) == 0 {
				intf.AltSettings = []AltSettingLayout{{Value: 0}}
			}
			for ai := range intf.AltSettings {
				alt := &intf.AltSettings[ai]
				for ei := range alt.Endpoints {
					if alt.Endpoints[ei].MaxPacketSize == 0 {
						alt.Endpoints[ei].MaxPacketSize = 64
					}
				}
			}
		}
	}
}

// configuration returns the configuration with the given value.
func (l *Layout) configuration(value uint8) *ConfigurationLayout {
	for i := range l.Configurations {
		if l.Configurations[i].Value == value {
			return &l.Configurations[i]
		}
	}
	return nil
}

// altSetting returns the alternate setting with the given value.
func (i *InterfaceLayout) altSetting(value uint8) *AltSettingLayout {
	for ai := range i.AltSettings {
		if i.AltSettings[ai].Value == value {
			return &i.AltSettings[ai]
		}
	}
	return nil
}

// endpoint returns the endpoint with the given address.
func (a *AltSettingLayout) endpoint(address uint8) *EndpointLayout {
	for ei := range a.Endpoints {
		if a.Endpoints[ei].Address == address {
			return &a.Endpoints[ei]
		}
	}
	return nil
}
