package accel

import (
	"github.com/LynnColeArt/accel/backend"
)

// Stream is an ordered queue of device work. The zero value is the
// backend's default stream.
type Stream struct {
	s backend.Stream
}

// native returns the backend handle; nil selects the default stream.
func (s Stream) native() backend.Stream { return s.s }

// IsDefault reports whether s is the default stream.
func (s Stream) IsDefault() bool { return s.s == nil }

func (s Stream) String() string {
	if s.s == nil {
		return "default"
	}
	return s.s.ID()
}

// Event marks a point in a stream's order.
type Event struct {
	e backend.Event
}

func (e Event) String() string {
	if e.e == nil {
		return "nil"
	}
	return e.e.ID()
}

// StreamCreate creates a stream.
func (c *Context) StreamCreate(site CallSite) (Stream, error) {
	defer c.profile.start("StreamCreate")()
	s, code := c.backend.StreamCreate()
	if err := c.setRuntimeError(code, "StreamCreate", site, false); err != nil {
		return Stream{}, err
	}
	return Stream{s: s}, nil
}

// StreamDestroy drains and destroys a stream.
func (c *Context) StreamDestroy(stream Stream, site CallSite) error {
	defer c.profile.start("StreamDestroy")()
	return c.setRuntimeError(c.backend.StreamDestroy(stream.native()), "StreamDestroy", site, false)
}

// StreamSynchronize blocks until all work queued on stream has completed.
func (c *Context) StreamSynchronize(stream Stream, site CallSite) error {
	defer c.profile.start("StreamSynchronize")()
	return c.setRuntimeError(c.backend.StreamSynchronize(stream.native()), "StreamSynchronize", site, false)
}

// DeviceSynchronize blocks until all work on the device has completed.
func (c *Context) DeviceSynchronize(site CallSite) error {
	defer c.profile.start("DeviceSynchronize")()
	return c.setRuntimeError(c.backend.DeviceSynchronize(), "DeviceSynchronize", site, false)
}

// EventCreate creates an event with timing disabled, which is cheaper to
// record and wait on.
func (c *Context) EventCreate(site CallSite) (Event, error) {
	return c.eventCreate("EventCreate", false, site)
}

// ChronoEventCreate creates an event that can be used with EventElapsedTime.
func (c *Context) ChronoEventCreate(site CallSite) (Event, error) {
	return c.eventCreate("ChronoEventCreate", true, site)
}

func (c *Context) eventCreate(op string, timing bool, site CallSite) (Event, error) {
	defer c.profile.start(op)()
	e, code := c.backend.EventCreate(timing)
	if err := c.setRuntimeError(code, op, site, false); err != nil {
		return Event{}, err
	}
	return Event{e: e}, nil
}

// EventRecord captures the current tail of stream in event.
func (c *Context) EventRecord(event Event, stream Stream, site CallSite) error {
	defer c.profile.start("EventRecord")()
	return c.setRuntimeError(c.backend.EventRecord(event.e, stream.native()), "EventRecord", site, false)
}

// EventQuery reports whether the work captured by event has completed.
// Not-ready is a normal answer and never touches the last error.
func (c *Context) EventQuery(event Event, site CallSite) (bool, error) {
	defer c.profile.start("EventQuery")()
	code := c.backend.EventQuery(event.e)
	switch code {
	case backend.Success:
		return true, nil
	case backend.ErrorNotReady:
		return false, nil
	}
	return false, c.setRuntimeError(code, "EventQuery", site, false)
}

// StreamWaitEvent makes later work on stream wait for event.
func (c *Context) StreamWaitEvent(stream Stream, event Event, site CallSite) error {
	defer c.profile.start("StreamWaitEvent")()
	return c.setRuntimeError(c.backend.StreamWaitEvent(stream.native(), event.e), "StreamWaitEvent", site, false)
}

// EventElapsedTime returns the seconds between two completed timing events.
func (c *Context) EventElapsedTime(start, end Event, site CallSite) (float64, error) {
	defer c.profile.start("EventElapsedTime")()
	ms, code := c.backend.EventElapsedTime(start.e, end.e)
	if err := c.setRuntimeError(code, "EventElapsedTime", site, false); err != nil {
		return 0, err
	}
	return float64(ms) / 1000, nil
}

// EventSynchronize blocks until event has completed.
func (c *Context) EventSynchronize(event Event, site CallSite) error {
	defer c.profile.start("EventSynchronize")()
	return c.setRuntimeError(c.backend.EventSynchronize(event.e), "EventSynchronize", site, false)
}

func (c *Context) EventDestroy(event Event, site CallSite) error {
	defer c.profile.start("EventDestroy")()
	return c.setRuntimeError(c.backend.EventDestroy(event.e), "EventDestroy", site, false)
}
