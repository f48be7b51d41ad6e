package native

// Status is the integer result code reported by native stack operations.
// Zero is success; all failure codes are negative. Codes outside the named
// set may be reported by a native stack and must still be representable.
type Status int32

// Native status codes.
const (
	OK           Status = 0  // Operation completed successfully
	ETimeout     Status = -1 // Operation timed out
	EAborted     Status = -2 // Operation cancelled by abort
	EBadArgument Status = -3 // Malformed or unsupported argument
	ENotFound    Status = -4 // No object at the requested identity
	EUnsupported Status = -5 // Operation not supported by this handle
	EStall       Status = -6 // Endpoint stalled
	ENoDevice    Status = -7 // Handle refers to a detached or closed object
	EBusy        Status = -8 // Object already held exclusively
	EIO          Status = -9 // Unspecified transport failure
)

// Ok reports whether the status indicates success.
func (s Status) Ok() bool {
	return s == OK
}

// String returns a human-readable status name.
func (s Status) String() string {
	switch s {
	case OK:
		return "ok"
	case ETimeout:
		return "timeout"
	case EAborted:
		return "aborted"
	case EBadArgument:
		return "bad argument"
	case ENotFound:
		return "not found"
	case EUnsupported:
		return "unsupported"
	case EStall:
		return "stall"
	case ENoDevice:
		return "no device"
	case EBusy:
		return "busy"
	case EIO:
		return "io error"
	default:
		return "unknown"
	}
}
