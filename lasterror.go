package accel

import (
	"github.com/LynnColeArt/accel/backend"
)

// Status is the coarse outcome recorded in the last error slot.
type Status int

const (
	StatusSuccess Status = iota
	StatusError
)

func (s Status) String() string {
	if s == StatusSuccess {
		return "success"
	}
	return "error"
}

// LastError is the most recent failure observed by the layer.
type LastError struct {
	Status  Status
	Message string
}

// GetLastError returns the most recent failure and resets the slot, so a
// second call observes success.
func (c *Context) GetLastError() LastError {
	c.lastMu.Lock()
	defer c.lastMu.Unlock()
	last := c.last
	c.last = LastError{}
	return last
}

func (c *Context) setLastError(msg string) {
	c.lastMu.Lock()
	c.last = LastError{Status: StatusError, Message: msg}
	c.lastMu.Unlock()
}

// setRuntimeError classifies a backend status. Success clears nothing and
// returns nil. A failure updates the last error; it is returned as a
// recoverable error when allowError is set and the code is on the allow
// list, and escalated to the fatal handler otherwise.
func (c *Context) setRuntimeError(code backend.Code, op string, site CallSite, allowError bool) error {
	if code == backend.Success {
		return nil
	}
	c.setLastError(code.Message())
	err := &Error{Type: ErrTypeFatal, Op: op, Code: code, Message: code.Message(), Site: site}
	if allowError && c.recoverable[code] {
		err.Type = ErrTypeProbeFailure
		c.diag(DebugVerbose, "recoverable failure", "op", op, "code", code, "site", site.String())
		return err
	}
	c.fatal(err)
	return err
}

// configurationError records and escalates a usage error raised by the
// layer itself.
func (c *Context) configurationError(op, msg string, site CallSite) error {
	c.setLastError(msg)
	err := NewConfigurationError(op, msg)
	err.Site = site
	c.fatal(err)
	return err
}
