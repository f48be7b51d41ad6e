// Package pkg provides shared utilities for the host object model: the typed
// error set with its native status translation boundary, and structured
// logging helpers built on log/slog.
//
// Error translation is total and happens exactly once, at the point of the
// failing native call. Components above the boundary propagate or wrap typed
// errors with additional context but never re-interpret raw status codes.
package pkg
