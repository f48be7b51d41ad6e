// Command hostusb exercises the host object model against the virtual
// native stack: it describes a device layout and runs loopback transfers.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alecthomas/kong"

	"github.com/hostusb/hostusb/host"
	"github.com/hostusb/hostusb/host/native"
	"github.com/hostusb/hostusb/host/native/virtual"
	"github.com/hostusb/hostusb/pkg"
	"github.com/hostusb/hostusb/pkg/usbid"
)

type cli struct {
	LogLevel  string `help:"Minimum log level." enum:"debug,info,warn,error" default:"warn"`
	LogFormat string `help:"Log output format." enum:"text,json" default:"text"`
	Layout    string `help:"YAML device layout file; the built-in loopback gadget when omitted." type:"path"`

	Describe describeCmd `cmd:"" help:"Print device, interface, and endpoint metadata."`
	Loopback loopbackCmd `cmd:"" help:"Run bulk transfers against the loopback endpoints."`
}

func main() {
	var c cli
	ctx := kong.Parse(&c,
		kong.Name("hostusb"),
		kong.Description("USB host object model demo over a virtual device"),
		kong.UsageOnError(),
	)

	pkg.SetLogFormat(parseFormat(c.LogFormat))
	pkg.SetLogLevel(parseLevel(c.LogLevel))

	dev, err := openDevice(c.Layout)
	ctx.FatalIfErrorf(err)
	defer dev.Destroy()

	ctx.FatalIfErrorf(ctx.Run(dev))
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

func parseFormat(format string) pkg.LogFormat {
	if format == "json" {
		return pkg.LogFormatJSON
	}
	return pkg.LogFormatText
}

func openDevice(layoutPath string) (*host.Device, error) {
	layout := virtual.DefaultLayout()
	if layoutPath != "" {
		var err error
		layout, err = virtual.LoadLayout(layoutPath)
		if err != nil {
			return nil, err
		}
	}
	return host.NewDevice(virtual.Open(layout)), nil
}

type describeCmd struct{}

func (describeCmd) Run(dev *host.Device) error {
	ids := usbid.New()
	ids.Load()

	meta := dev.Metadata()
	fmt.Printf("%04x:%04x  %s\n", meta.VendorID, meta.ProductID, ids.Describe(meta.VendorID, meta.ProductID))
	fmt.Printf("  product:       %s\n", meta.Name)
	fmt.Printf("  manufacturer:  %s\n", meta.Manufacturer)
	fmt.Printf("  serial:        %s\n", meta.SerialNumber)
	fmt.Printf("  configuration: %d of %d, %d interface(s)\n",
		meta.CurrentConfigurationValue, meta.ConfigurationCount, meta.InterfaceCount)

	for number := uint8(0); number < meta.InterfaceCount; number++ {
		intf, err := dev.Interface(number, 0)
		if err != nil {
			return err
		}
		im := intf.Metadata()
		fmt.Printf("  interface %d (%s), %d endpoint(s)\n", im.InterfaceNumber, im.Name, im.EndpointCount)
		if err := describeEndpoints(intf); err != nil {
			return err
		}
	}
	return nil
}

// describeEndpoints prints decoded metadata for every endpoint of the
// interface's current alternate setting, located by walking the raw
// configuration descriptor tree.
func describeEndpoints(intf *host.Interface) error {
	raw, err := intf.InterfaceDescriptor()
	if err != nil {
		return err
	}
	tree, err := intf.ConfigurationDescriptor()
	if err != nil {
		return err
	}
	for _, address := range endpointAddresses(tree, raw) {
		ep, err := intf.Endpoint(address)
		if err != nil {
			return err
		}
		em := ep.Metadata()
		fmt.Printf("    endpoint 0x%02x  %s %s, %d bytes", em.EndpointAddress,
			em.TransferType, em.Direction, em.MaxPacketSize)
		if em.PollInterval > 0 {
			fmt.Printf(", interval %d", em.PollInterval)
		}
		fmt.Println()
		ep.Destroy()
	}
	return nil
}

// endpointAddresses extracts the endpoint addresses that follow the given
// interface descriptor in a configuration tree, stopping at the next
// interface descriptor.
func endpointAddresses(tree, ifaceRaw []byte) []uint8 {
	var want native.InterfaceDescriptor
	if !native.ParseInterfaceDescriptor(ifaceRaw, &want) {
		return nil
	}

	var addresses []uint8
	var inTarget bool
	for off := 0; off+2 <= len(tree); {
		length := int(tree[off])
		if length < 2 || off+length > len(tree) {
			break
		}
		chunk := tree[off : off+length]
		switch chunk[1] {
		case native.DescriptorTypeInterface:
			var desc native.InterfaceDescriptor
			inTarget = native.ParseInterfaceDescriptor(chunk, &desc) &&
				desc.InterfaceNumber == want.InterfaceNumber &&
				desc.AlternateSetting == want.AlternateSetting
		case native.DescriptorTypeEndpoint:
			if inTarget {
				var desc native.EndpointDescriptor
				if native.ParseEndpointDescriptor(chunk, &desc) {
					addresses = append(addresses, desc.EndpointAddress)
				}
			}
		}
		off += length
	}
	return addresses
}

type loopbackCmd struct {
	Interface uint8         `help:"Interface number holding the loopback pair." default:"0"`
	Out       uint8         `help:"OUT endpoint address." default:"0x01"`
	In        uint8         `help:"IN endpoint address." default:"0x81"`
	Count     int           `help:"Number of transfer pairs to run." default:"4"`
	Size      int           `help:"Transfer size in bytes." default:"64"`
	Timeout   time.Duration `help:"Per-transfer timeout." default:"1s"`
}

// Run pushes transfer pairs through all three calling conventions in turn:
// blocking send, callback enqueue, and the context-suspended form.
func (l loopbackCmd) Run(dev *host.Device) error {
	intf, err := dev.Interface(l.Interface, 0)
	if err != nil {
		return err
	}
	out, err := intf.Endpoint(l.Out)
	if err != nil {
		return err
	}
	defer out.Destroy()
	in, err := intf.Endpoint(l.In)
	if err != nil {
		return err
	}
	defer in.Destroy()

	buf := make([]byte, l.Size)
	for i := range buf {
		buf[i] = byte(i)
	}
	start := time.Now()
	for i := 0; i < l.Count; i++ {
		var sent, received int
		var convention string
		switch i % 3 {
		case 0:
			convention = "blocking"
			if sent, err = out.SendIORequest(buf, l.Timeout); err == nil {
				received, err = in.SendIORequest(make([]byte, l.Size), l.Timeout)
			}
		case 1:
			convention = "callback"
			sent, received, err = l.callbackPair(out, in, buf)
		case 2:
			convention = "suspend"
			ctx, cancel := context.WithTimeout(context.Background(), l.Timeout)
			if sent, err = out.IORequest(ctx, buf, l.Timeout); err == nil {
				received, err = in.IORequest(ctx, make([]byte, l.Size), l.Timeout)
			}
			cancel()
		}
		if err != nil {
			return fmt.Errorf("transfer %d (%s): %w", i, convention, err)
		}
		fmt.Printf("transfer %d (%s): %d bytes out, %d bytes in\n", i, convention, sent, received)
	}
	elapsed := time.Since(start)
	fmt.Printf("%d transfer pairs in %v\n", l.Count, elapsed.Round(time.Microsecond))
	return nil
}

// callbackPair runs one OUT then one IN transfer through the callback
// convention, collecting both completions from the endpoint queues.
func (l loopbackCmd) callbackPair(out, in *host.Endpoint, buf []byte) (int, int, error) {
	type result struct {
		n   int
		err error
	}
	outDone := make(chan result, 1)
	err := out.EnqueueIORequest(buf, l.Timeout, func(n int, err error) {
		outDone <- result{n: n, err: err}
	})
	if err != nil {
		return 0, 0, err
	}
	sent := <-outDone
	if sent.err != nil {
		return 0, 0, sent.err
	}

	inDone := make(chan result, 1)
	err = in.EnqueueIORequest(make([]byte, l.Size), l.Timeout, func(n int, err error) {
		inDone <- result{n: n, err: err}
	})
	if err != nil {
		return sent.n, 0, err
	}
	received := <-inDone
	return sent.n, received.n, received.err
}
