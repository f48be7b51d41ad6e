// Package host implements a host-side object model for USB devices on top
// of an already-opened native handle.
//
// A Device wraps a native device handle obtained from external discovery.
// Device.Interface resolves and caches Interface wrappers by scanning the
// device's registry children; Interface.Endpoint opens fresh Endpoint
// wrappers over copied pipe handles. All three kinds share the Session
// capability set: teardown, control requests in three calling conventions
// (blocking, callback, and context-suspended), descriptor fetch, and
// device-address and frame-number queries.
//
// Descriptor-derived metadata is captured once at construction into
// immutable records. Native failures cross the error-translation boundary
// in package pkg exactly once; everything surfaced by this package is a
// typed error, optionally wrapped with resolution context.
//
// Ownership is strictly parent to child: a Device owns its cached
// Interfaces and destroys them on reconfigure, reset, and teardown; callers
// own the Endpoints they open and must destroy them explicitly.
package host
