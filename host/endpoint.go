package host

import (
	"context"
	"fmt"
	"time"

	"github.com/hostusb/hostusb/host/native"
	"github.com/hostusb/hostusb/pkg"
)

// Endpoint wraps one native pipe handle bound to an endpoint, or to a
// stream within a bulk endpoint. Instances are obtained through
// Interface.Endpoint or Endpoint.CopyStream; the caller owns them and must
// destroy them explicitly. Destruction is not propagated from the Interface
// that created an Endpoint.
type Endpoint struct {
	session
	pipe native.PipeHandle
	meta EndpointMetadata
}

func newEndpoint(p native.PipeHandle) *Endpoint {
	e := &Endpoint{pipe: p}
	e.session = session{handle: p, component: pkg.ComponentEndpoint}
	e.meta = e.captureMetadata()
	return e
}

// Metadata returns the endpoint metadata record captured at construction,
// derived by bit-decoding the endpoint descriptor's address and attributes.
func (e *Endpoint) Metadata() EndpointMetadata {
	return e.meta
}

// SendIORequest submits a bulk, interrupt, or isochronous transfer and
// blocks until it completes or times out. Direction follows the endpoint
// address: IN endpoints fill data, OUT endpoints send it. The byte count is
// only returned on success.
func (e *Endpoint) SendIORequest(data []byte, timeout time.Duration) (int, error) {
	return e.await(nil, func(done native.Completion) native.Status {
		return e.pipe.SubmitIO(data, timeout, done)
	})
}

// EnqueueIORequest submits a transfer and returns immediately; done is
// invoked on the endpoint's queue with the result. An enqueue failure is
// reported synchronously and done never runs.
func (e *Endpoint) EnqueueIORequest(data []byte, timeout time.Duration, done func(n int, err error)) error {
	return e.enqueue(func(c native.Completion) native.Status {
		return e.pipe.SubmitIO(data, timeout, c)
	}, done)
}

// IORequest submits a transfer and parks the calling goroutine until it
// completes or ctx is done. A completion status other than success fails
// the call even though the enqueue succeeded.
func (e *Endpoint) IORequest(ctx context.Context, data []byte, timeout time.Duration) (int, error) {
	return e.await(ctx, func(done native.Completion) native.Status {
		return e.pipe.SubmitIO(data, timeout, done)
	})
}

// Abort requests best-effort cancellation of in-flight transfers on this
// pipe. A completion may still fire with a cancellation status after Abort
// returns.
func (e *Endpoint) Abort(opt native.AbortOption) error {
	return e.AbortRequests(opt)
}

// ClearStall clears a halted condition on the endpoint.
func (e *Endpoint) ClearStall() error {
	if err := e.alive(); err != nil {
		return err
	}
	return pkg.Translate(e.pipe.ClearStall())
}

// SetIdleTimeout sets the power-management idle window for this pipe.
func (e *Endpoint) SetIdleTimeout(d time.Duration) error {
	if err := e.alive(); err != nil {
		return err
	}
	return pkg.Translate(e.pipe.SetIdleTimeout(d))
}

// IdleTimeout returns the current power-management idle window.
func (e *Endpoint) IdleTimeout() (time.Duration, error) {
	if err := e.alive(); err != nil {
		return 0, err
	}
	d, st := e.pipe.IdleTimeout()
	if err := pkg.Translate(st); err != nil {
		return 0, err
	}
	return d, nil
}

// AdjustDescriptors applies revised endpoint (and optional companion)
// descriptor bytes to the open pipe, for example after a host-negotiated
// parameter change.
func (e *Endpoint) AdjustDescriptors(endpoint, companion []byte) error {
	if err := e.alive(); err != nil {
		return err
	}
	if err := pkg.Translate(e.pipe.AdjustDescriptors(endpoint, companion)); err != nil {
		return fmt.Errorf("adjusting descriptors: %w", err)
	}
	return nil
}

// EnableStreams enables bulk streams on a stream-capable endpoint. A
// non-stream-capable endpoint fails with pkg.ErrNotCapable.
func (e *Endpoint) EnableStreams() error {
	if err := e.alive(); err != nil {
		return err
	}
	return pkg.Translate(e.pipe.EnableStreams())
}

// DisableStreams disables bulk streams.
func (e *Endpoint) DisableStreams() error {
	if err := e.alive(); err != nil {
		return err
	}
	return pkg.Translate(e.pipe.DisableStreams())
}

// CopyStream opens the stream with the given ID as an independent Endpoint.
// Streams must be enabled first; an invalid stream ID fails with
// pkg.ErrNotFound.
func (e *Endpoint) CopyStream(id uint16) (*Endpoint, error) {
	if err := e.alive(); err != nil {
		return nil, err
	}
	stream, st := e.pipe.CopyStream(id)
	if err := pkg.Translate(st); err != nil {
		return nil, fmt.Errorf("stream %d: %w", id, err)
	}
	return newEndpoint(stream), nil
}

func (e *Endpoint) captureMetadata() EndpointMetadata {
	raw, st := e.pipe.EndpointDescriptor()
	if !st.Ok() {
		return EndpointMetadata{}
	}
	var desc native.EndpointDescriptor
	if !native.ParseEndpointDescriptor(raw, &desc) {
		return EndpointMetadata{}
	}
	return endpointMetadata(&desc)
}
