package usbid

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `# USB ID database excerpt
1d6b  Linux Foundation
	0104  Multifunction Composite Gadget
	0002  2.0 root hub
0451  Texas Instruments, Inc.
	0042  Widget

# Class section: subentries must not attach to the last vendor
C 03  Human Interface Device
	01  Boot Interface Subclass
`

func TestLoadReader(t *testing.T) {
	db := NewWithPaths(nil)
	db.LoadReader(strings.NewReader(sample))

	assert.Equal(t, "Linux Foundation", db.Vendor(0x1d6b))
	assert.Equal(t, "Multifunction Composite Gadget", db.Product(0x1d6b, 0x0104))
	assert.Equal(t, "2.0 root hub", db.Product(0x1d6b, 0x0002))
	assert.Equal(t, "Widget", db.Product(0x0451, 0x0042))

	assert.Empty(t, db.Vendor(0xFFFF))
	assert.Empty(t, db.Product(0x1d6b, 0xFFFF))
	assert.Equal(t, 2, db.VendorCount())
	assert.Equal(t, 3, db.ProductCount())
}

func TestLoadFromPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usb.ids")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	db := NewWithPaths([]string{"/nonexistent/usb.ids", path})
	require.True(t, db.Load(), "second search path should be found")
	assert.Equal(t, "Linux Foundation", db.Vendor(0x1d6b))

	// Idempotent: a second load does not reparse.
	require.True(t, db.Load())
	assert.Equal(t, 2, db.VendorCount())
}

func TestLoadMissingFile(t *testing.T) {
	db := NewWithPaths([]string{"/nonexistent/usb.ids"})
	assert.False(t, db.Load())
	assert.True(t, db.Loaded(), "a failed search still counts as attempted")
	assert.Empty(t, db.Vendor(0x1d6b))
}

func TestDescribeFallsBackToHex(t *testing.T) {
	db := NewWithPaths(nil)
	db.LoadReader(strings.NewReader(sample))

	assert.Equal(t, "Linux Foundation Multifunction Composite Gadget", db.Describe(0x1d6b, 0x0104))
	assert.Equal(t, "Linux Foundation beef", db.Describe(0x1d6b, 0xbeef))
	assert.Equal(t, "dead beef", db.Describe(0xdead, 0xbeef))
}

func TestMalformedLinesAreSkipped(t *testing.T) {
	content := `1234  Valid Vendor
	5678  Valid Product
ZZZZ  Invalid vendor ID
	YYYY  Invalid product ID
12  Short
1234NoSeparator
	9abc
9abc  Another Vendor
	def0  Another Product
`
	db := NewWithPaths(nil)
	db.LoadReader(strings.NewReader(content))

	assert.Equal(t, 2, db.VendorCount())
	assert.Equal(t, 2, db.ProductCount())
	assert.Equal(t, "Valid Vendor", db.Vendor(0x1234))
	assert.Equal(t, "Another Product", db.Product(0x9abc, 0xdef0))
}
