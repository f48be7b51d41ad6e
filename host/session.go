package host

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/hostusb/hostusb/host/native"
	"github.com/hostusb/hostusb/pkg"
)

// Session is the capability set shared by Device, Interface, and Endpoint.
// Every wrapped handle supports teardown, its completion queue, control
// requests in three calling conventions, generic descriptor fetch, and
// device-address and frame-number queries.
type Session interface {
	// Destroy releases the native handle. The underlying stack does not
	// guarantee idempotent close, so the wrapper guards against double
	// release; operations after Destroy fail with pkg.ErrDestroyed.
	Destroy()

	// Queue returns the serial queue asynchronous completions are
	// delivered on.
	Queue() *native.Queue

	// ServiceID returns the registry identity of the wrapped service.
	ServiceID() uint64

	// SendControlRequest submits a control request and blocks until it
	// completes or times out. The byte count is only returned on success.
	SendControlRequest(req native.ControlRequest, data []byte, timeout time.Duration) (int, error)

	// EnqueueControlRequest submits a control request and returns
	// immediately; done is invoked on the session's queue with the result.
	// An enqueue failure is reported synchronously and done never runs.
	EnqueueControlRequest(req native.ControlRequest, data []byte, timeout time.Duration, done func(n int, err error)) error

	// ControlRequest submits a control request and parks the calling
	// goroutine until it completes or ctx is done. A completion status
	// other than success fails the call even though the enqueue succeeded.
	ControlRequest(ctx context.Context, req native.ControlRequest, data []byte, timeout time.Duration) (int, error)

	// AbortRequests requests best-effort cancellation of in-flight
	// requests on this handle. A completion may still fire with a
	// cancellation status after AbortRequests returns.
	AbortRequests(opt native.AbortOption) error

	// Descriptor fetches a descriptor, returning at most req.MaxLength
	// bytes.
	Descriptor(req native.DescriptorRequest) ([]byte, error)

	// StringDescriptor fetches and decodes the string descriptor at index.
	StringDescriptor(index uint8, languageID uint16) (string, error)

	// DeviceAddress returns the bus address of the underlying device.
	DeviceAddress() (uint8, error)

	// CurrentFrameNumber returns the bus frame number now.
	CurrentFrameNumber() (uint64, error)

	// FrameNumber returns the bus frame number at the given host time.
	FrameNumber(at time.Time) (uint64, error)
}

// session implements the Session capability over one native handle. Device,
// Interface, and Endpoint embed it.
type session struct {
	handle    native.Handle
	component pkg.Component
	destroyed atomic.Bool
}

// completionResult carries one asynchronous completion off the handle queue.
type completionResult struct {
	n      int
	status native.Status
}

// submitFunc enqueues one asynchronous request with the given sink. It is
// the single primitive all three transfer calling conventions are built on.
type submitFunc func(done native.Completion) native.Status

func (s *session) alive() error {
	if s.destroyed.Load() {
		return pkg.ErrDestroyed
	}
	return nil
}

// enqueue implements the callback convention: wire the caller's callback
// through the translation boundary and hand it to the native submit.
func (s *session) enqueue(submit submitFunc, done func(n int, err error)) error {
	if err := s.alive(); err != nil {
		return err
	}
	st := submit(func(status native.Status, n int) {
		if err := pkg.Translate(status); err != nil {
			done(0, err)
			return
		}
		done(n, nil)
	})
	return pkg.Translate(st)
}

// await implements the blocking and suspend-point conventions: park on the
// completion sink, then re-check the completion status itself. A nil ctx
// waits unconditionally; otherwise ctx expiry aborts the handle and reports
// the context failure. Partial byte counts are discarded on any failure.
func (s *session) await(ctx context.Context, submit submitFunc) (int, error) {
	if err := s.alive(); err != nil {
		return 0, err
	}
	ch := make(chan completionResult, 1)
	st := submit(func(status native.Status, n int) {
		ch <- completionResult{n: n, status: status}
	})
	if err := pkg.Translate(st); err != nil {
		return 0, err
	}

	if ctx == nil {
		return finish(<-ch)
	}
	select {
	case r := <-ch:
		return finish(r)
	case <-ctx.Done():
		s.handle.AbortRequests(native.AbortAsynchronous)
		// The completion still fires after abort; drain it so the sink
		// goroutine on the handle queue never blocks.
		r := <-ch
		if r.status.Ok() {
			return r.n, nil
		}
		return 0, pkg.TranslateErr(ctx.Err())
	}
}

func finish(r completionResult) (int, error) {
	if err := pkg.Translate(r.status); err != nil {
		return 0, err
	}
	return r.n, nil
}

func (s *session) Destroy() {
	s.destroy()
}

func (s *session) destroy() {
	if s.destroyed.Swap(true) {
		pkg.LogWarn(s.component, "destroy called twice", "service", s.handle.ServiceID())
		return
	}
	if st := s.handle.Close(); !st.Ok() {
		pkg.LogWarn(s.component, "native close failed",
			"service", s.handle.ServiceID(), "status", st.String())
	}
}

func (s *session) Queue() *native.Queue {
	return s.handle.Queue()
}

func (s *session) ServiceID() uint64 {
	return s.handle.ServiceID()
}

func (s *session) SendControlRequest(req native.ControlRequest, data []byte, timeout time.Duration) (int, error) {
	return s.await(nil, func(done native.Completion) native.Status {
		return s.handle.SubmitControl(req, data, timeout, done)
	})
}

func (s *session) EnqueueControlRequest(req native.ControlRequest, data []byte, timeout time.Duration, done func(n int, err error)) error {
	return s.enqueue(func(c native.Completion) native.Status {
		return s.handle.SubmitControl(req, data, timeout, c)
	}, done)
}

func (s *session) ControlRequest(ctx context.Context, req native.ControlRequest, data []byte, timeout time.Duration) (int, error) {
	return s.await(ctx, func(done native.Completion) native.Status {
		return s.handle.SubmitControl(req, data, timeout, done)
	})
}

func (s *session) AbortRequests(opt native.AbortOption) error {
	if err := s.alive(); err != nil {
		return err
	}
	return pkg.Translate(s.handle.AbortRequests(opt))
}

func (s *session) Descriptor(req native.DescriptorRequest) ([]byte, error) {
	if err := s.alive(); err != nil {
		return nil, err
	}
	data, st := s.handle.Descriptor(req)
	if err := pkg.Translate(st); err != nil {
		return nil, err
	}
	return data, nil
}

func (s *session) StringDescriptor(index uint8, languageID uint16) (string, error) {
	if err := s.alive(); err != nil {
		return "", err
	}
	str, st := s.handle.StringDescriptor(index, languageID)
	if err := pkg.Translate(st); err != nil {
		return "", err
	}
	return str, nil
}

func (s *session) DeviceAddress() (uint8, error) {
	if err := s.alive(); err != nil {
		return 0, err
	}
	addr, st := s.handle.DeviceAddress()
	if err := pkg.Translate(st); err != nil {
		return 0, err
	}
	return addr, nil
}

func (s *session) CurrentFrameNumber() (uint64, error) {
	return s.FrameNumber(time.Now())
}

func (s *session) FrameNumber(at time.Time) (uint64, error) {
	if err := s.alive(); err != nil {
		return 0, err
	}
	frame, st := s.handle.FrameNumber(at)
	if err := pkg.Translate(st); err != nil {
		return 0, err
	}
	return frame, nil
}

var (
	_ Session = (*Device)(nil)
	_ Session = (*Interface)(nil)
	_ Session = (*Endpoint)(nil)
)

// stringLookup adapts the session's string-descriptor fetch into the
// metadata extractor's lookup capability.
func (s *session) stringLookup() StringLookup {
	return func(index uint8) (string, error) {
		return s.StringDescriptor(index, native.LangIDUSEnglish)
	}
}
