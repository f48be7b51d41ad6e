// Package native defines the boundary between the host-side object model and
// the underlying operating-system USB stack.
//
// The package contains no I/O of its own. It declares the handle interfaces a
// native stack must implement (device, interface, pipe), the integer status
// code space native operations report, the registry-entry view used for
// interface resolution, and the serial Queue on which completions are
// delivered. The host package consumes these interfaces exclusively; the
// virtual subpackage provides an in-memory implementation.
//
// A handle is exclusively owned by the wrapper that holds it. All submit
// operations are asynchronous: they return a Status describing the enqueue
// result and deliver the operation result through a Completion on the
// handle's queue. Blocking and suspend-point calling conventions are built on
// top of this single primitive by the host package.
package native
