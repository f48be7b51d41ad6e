// Package virtual provides an in-memory native stack implementing the
// handle interfaces in package native, built from a declarative Layout.
//
// The stack needs no hardware or operating-system USB support: descriptors
// are synthesized from the layout, registry children are published per
// interface of the active configuration, IN endpoints produce a
// deterministic byte pattern, and OUT endpoints accept and count data.
// Completions are delivered on a per-device serial queue exactly as a real
// stack would deliver them.
//
// The stack doubles as the test backend for the host package: it counts
// interface opens and transfer submissions, and can be scripted to fail the
// next control or I/O completion with a chosen status while still accepting
// the enqueue.
package virtual
