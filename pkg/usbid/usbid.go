package usbid

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
)

// DefaultPaths lists the usual filesystem locations of the USB ID database
// published by the USB Implementers Forum.
var DefaultPaths = []string{
	"/usr/share/hwdata/usb.ids",
	"/var/lib/usbutils/usb.ids",
	"/usr/share/misc/usb.ids",
}

// Database caches vendor and product names from the USB ID database.
// The zero value is not usable; construct with New or NewWithPaths.
type Database struct {
	mu       sync.RWMutex
	vendors  map[uint16]string // VID -> vendor name
	products map[uint32]string // (VID<<16)|PID -> product name
	loaded   bool
	paths    []string
}

// New creates a database that searches the default paths.
func New() *Database {
	return NewWithPaths(DefaultPaths)
}

// NewWithPaths creates a database that searches the given paths.
func NewWithPaths(paths []string) *Database {
	return &Database{
		vendors:  make(map[uint16]string),
		products: make(map[uint32]string),
		paths:    paths,
	}
}

// Load parses the first database file found on the search paths. It is
// idempotent: once a load has been attempted, later calls do nothing.
//
// Returns true if a database was loaded (or already was), false if no file
// could be found.
func (db *Database) Load() bool {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.loaded {
		return true
	}
	// A failed search is still marked loaded so it is not repeated.
	db.loaded = true

	for _, path := range db.paths {
		file, err := os.Open(path)
		if err != nil {
			continue
		}
		db.parse(file)
		file.Close()
		return true
	}
	return false
}

// LoadReader parses database content from r, merging it into the cache.
// It does not consult the search paths and may be called more than once.
func (db *Database) LoadReader(r io.Reader) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.parse(r)
	db.loaded = true
}

// parse reads the usb.ids format: vendor lines are "xxxx  Name" at column
// zero, product lines are the same indented with one tab. Class and other
// sections reset the current vendor so their subentries are not absorbed.
func (db *Database) parse(r io.Reader) {
	scanner := bufio.NewScanner(r)
	var vid uint16
	var haveVendor bool

	for scanner.Scan() {
		line := scanner.Text()
		if len(line) == 0 || line[0] == '#' {
			continue
		}

		indented := line[0] == '\t'
		if indented {
			line = line[1:]
		}
		id, name, ok := splitEntry(line)
		if !ok {
			if !indented {
				haveVendor = false
			}
			continue
		}

		if indented {
			if haveVendor {
				db.products[uint32(vid)<<16|uint32(id)] = name
			}
			continue
		}
		vid = id
		haveVendor = true
		db.vendors[vid] = name
	}
}

// splitEntry splits "xxxx  Name" into its 16-bit hex ID and name.
func splitEntry(line string) (uint16, string, bool) {
	if len(line) < 6 || line[4] != ' ' {
		return 0, "", false
	}
	id, err := strconv.ParseUint(line[:4], 16, 16)
	if err != nil {
		return 0, "", false
	}
	name := strings.TrimLeft(line[5:], " ")
	if name == "" {
		return 0, "", false
	}
	return uint16(id), name, true
}

// Vendor returns the vendor name for vid, or an empty string if unknown.
func (db *Database) Vendor(vid uint16) string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.vendors[vid]
}

// Product returns the product name for the VID/PID pair, or an empty
// string if unknown.
func (db *Database) Product(vid, pid uint16) string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.products[uint32(vid)<<16|uint32(pid)]
}

// Describe renders a VID/PID pair for display. Unknown names fall back to
// the hexadecimal IDs, so the result is always usable in a label.
func (db *Database) Describe(vid, pid uint16) string {
	vendor := db.Vendor(vid)
	if vendor == "" {
		vendor = fmt.Sprintf("%04x", vid)
	}
	product := db.Product(vid, pid)
	if product == "" {
		product = fmt.Sprintf("%04x", pid)
	}
	return vendor + " " + product
}

// Loaded reports whether a load has been attempted.
func (db *Database) Loaded() bool {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.loaded
}

// VendorCount returns the number of cached vendors.
func (db *Database) VendorCount() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.vendors)
}

// ProductCount returns the number of cached products.
func (db *Database) ProductCount() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.products)
}
