// Package usbid looks up human-readable vendor and product names in the
// USB ID database maintained by the USB Implementers Forum.
//
// The database is loaded either from the well-known filesystem locations
// most Linux distributions ship it at, or from any io.Reader holding the
// usb.ids format. Lookups on a missing or unloaded database return empty
// strings; Describe falls back to hexadecimal IDs so a display label is
// always available.
//
// All methods are safe for concurrent use.
package usbid
