package accel

import (
	"fmt"

	"github.com/LynnColeArt/accel/backend"
)

// Runtime API shim. Every call forwards to the backend and classifies the
// returned status: failures update the last error and, unless the call is a
// launch or copy issued during a tuning probe, reach the fatal handler. The
// CallSite argument is the issuing code's location, usually accel.Here().

func (c *Context) nativeKind(op string, kind MemcpyKind, site CallSite) (backend.MemcpyKind, error) {
	k, ok := kind.native()
	if !ok {
		return 0, c.configurationError(op, fmt.Sprintf("invalid memcpy kind %d", int(kind)), site)
	}
	return k, nil
}

func (c *Context) fillValue(op string, value int, site CallSite) (byte, error) {
	if value < 0 || value > 0xff {
		return 0, c.configurationError(op, fmt.Sprintf("invalid fill value %d", value), site)
	}
	return byte(value), nil
}

// Memcpy copies count bytes from src to dst and blocks until the copy is
// complete. A zero count is a no-op.
func (c *Context) Memcpy(dst, src any, count int, kind MemcpyKind, site CallSite) error {
	if count == 0 {
		return nil
	}
	defer c.profile.start("Memcpy")()
	k, err := c.nativeKind("Memcpy", kind, site)
	if err != nil {
		return err
	}
	d, err := c.region("Memcpy", dst, count, site)
	if err != nil {
		return err
	}
	s, err := c.region("Memcpy", src, count, site)
	if err != nil {
		return err
	}
	return c.setRuntimeError(c.backend.Memcpy(d, s, k), "Memcpy", site, false)
}

// MemcpyAsync enqueues a copy of count bytes on stream. Device to device
// copies run through the tuner so they share its timing and error policy.
func (c *Context) MemcpyAsync(dst, src any, count int, kind MemcpyKind, stream Stream, site CallSite) error {
	if count == 0 {
		return nil
	}
	k, err := c.nativeKind("MemcpyAsync", kind, site)
	if err != nil {
		return err
	}
	d, err := c.region("MemcpyAsync", dst, count, site)
	if err != nil {
		return err
	}
	s, err := c.region("MemcpyAsync", src, count, site)
	if err != nil {
		return err
	}
	if k == backend.MemcpyDeviceToDevice {
		op := &memOp{ctx: c, dst: d, src: s, kind: k, site: site}
		if !c.ActiveTuning() {
			if _, err := TuneLaunch(c, op, stream); err != nil {
				return err
			}
		}
		return op.Apply(LaunchConfig{}, stream)
	}
	defer c.profile.start("MemcpyAsync")()
	return c.setRuntimeError(c.backend.MemcpyAsync(d, s, k, stream.native()), "MemcpyAsync", site, false)
}

// MemcpyP2PAsync copies count bytes between devices. With a single device
// it is an ordinary device to device copy.
func (c *Context) MemcpyP2PAsync(dst, src any, count int, stream Stream, site CallSite) error {
	if count == 0 {
		return nil
	}
	defer c.profile.start("MemcpyP2PAsync")()
	d, err := c.region("MemcpyP2PAsync", dst, count, site)
	if err != nil {
		return err
	}
	s, err := c.region("MemcpyP2PAsync", src, count, site)
	if err != nil {
		return err
	}
	return c.setRuntimeError(c.backend.MemcpyAsync(d, s, backend.MemcpyDeviceToDevice, stream.native()), "MemcpyP2PAsync", site, false)
}

// Memcpy2D copies height rows of width bytes between pitched buffers.
func (c *Context) Memcpy2D(dst any, dpitch int, src any, spitch int, width, height int, kind MemcpyKind, site CallSite) error {
	if width == 0 || height == 0 {
		return nil
	}
	defer c.profile.start("Memcpy2D")()
	k, err := c.nativeKind("Memcpy2D", kind, site)
	if err != nil {
		return err
	}
	d, err := c.region2D("Memcpy2D", dst, dpitch, width, height, site)
	if err != nil {
		return err
	}
	s, err := c.region2D("Memcpy2D", src, spitch, width, height, site)
	if err != nil {
		return err
	}
	return c.setRuntimeError(c.backend.Memcpy2D(d, dpitch, s, spitch, width, height, k), "Memcpy2D", site, false)
}

// Memcpy2DAsync enqueues a pitched copy on stream.
func (c *Context) Memcpy2DAsync(dst any, dpitch int, src any, spitch int, width, height int, kind MemcpyKind, stream Stream, site CallSite) error {
	if width == 0 || height == 0 {
		return nil
	}
	defer c.profile.start("Memcpy2DAsync")()
	k, err := c.nativeKind("Memcpy2DAsync", kind, site)
	if err != nil {
		return err
	}
	d, err := c.region2D("Memcpy2DAsync", dst, dpitch, width, height, site)
	if err != nil {
		return err
	}
	s, err := c.region2D("Memcpy2DAsync", src, spitch, width, height, site)
	if err != nil {
		return err
	}
	return c.setRuntimeError(c.backend.Memcpy2DAsync(d, dpitch, s, spitch, width, height, k, stream.native()), "Memcpy2DAsync", site, false)
}

// Memset fills count bytes of dst with value, which must fit in a byte.
func (c *Context) Memset(dst any, value int, count int, site CallSite) error {
	if count == 0 {
		return nil
	}
	defer c.profile.start("Memset")()
	v, err := c.fillValue("Memset", value, site)
	if err != nil {
		return err
	}
	d, err := c.region("Memset", dst, count, site)
	if err != nil {
		return err
	}
	return c.setRuntimeError(c.backend.Memset(d, v), "Memset", site, false)
}

// MemsetAsync enqueues a fill on stream.
func (c *Context) MemsetAsync(dst any, value int, count int, stream Stream, site CallSite) error {
	if count == 0 {
		return nil
	}
	defer c.profile.start("MemsetAsync")()
	v, err := c.fillValue("MemsetAsync", value, site)
	if err != nil {
		return err
	}
	d, err := c.region("MemsetAsync", dst, count, site)
	if err != nil {
		return err
	}
	return c.setRuntimeError(c.backend.MemsetAsync(d, v, stream.native()), "MemsetAsync", site, false)
}

// Memset2D fills height rows of width bytes in a pitched buffer.
func (c *Context) Memset2D(dst any, pitch int, value int, width, height int, site CallSite) error {
	if width == 0 || height == 0 {
		return nil
	}
	defer c.profile.start("Memset2D")()
	v, err := c.fillValue("Memset2D", value, site)
	if err != nil {
		return err
	}
	d, err := c.region2D("Memset2D", dst, pitch, width, height, site)
	if err != nil {
		return err
	}
	return c.setRuntimeError(c.backend.Memset2D(d, pitch, v, width, height), "Memset2D", site, false)
}

func (c *Context) Memset2DAsync(dst any, pitch int, value int, width, height int, stream Stream, site CallSite) error {
	if width == 0 || height == 0 {
		return nil
	}
	defer c.profile.start("Memset2DAsync")()
	v, err := c.fillValue("Memset2DAsync", value, site)
	if err != nil {
		return err
	}
	d, err := c.region2D("Memset2DAsync", dst, pitch, width, height, site)
	if err != nil {
		return err
	}
	return c.setRuntimeError(c.backend.Memset2DAsync(d, pitch, v, width, height, stream.native()), "Memset2DAsync", site, false)
}

// MemPrefetchAsync hints that count bytes of p will be used on the device
// soon. Backends without a prefetch path only validate the arguments.
func (c *Context) MemPrefetchAsync(p any, count int, stream Stream, site CallSite) error {
	if count == 0 {
		return nil
	}
	defer c.profile.start("MemPrefetchAsync")()
	buf, err := c.region("MemPrefetchAsync", p, count, site)
	if err != nil {
		return err
	}
	pf, ok := c.backend.(backend.Prefetcher)
	if !ok {
		return nil
	}
	return c.setRuntimeError(pf.MemPrefetchAsync(buf, stream.native()), "MemPrefetchAsync", site, false)
}

// GetSymbolAddress returns the device buffer behind a named symbol.
func (c *Context) GetSymbolAddress(symbol string, site CallSite) (DevicePtr, error) {
	defer c.profile.start("GetSymbolAddress")()
	buf, code := c.backend.SymbolAddress(symbol)
	if err := c.setRuntimeError(code, "GetSymbolAddress", site, false); err != nil {
		return DevicePtr{}, err
	}
	return DevicePtr{buf: buf}, nil
}

// memOp wraps a device to device copy as a tunable operation.
type memOp struct {
	ctx  *Context
	dst  []byte
	src  []byte
	kind backend.MemcpyKind
	site CallSite
}

func (m *memOp) TuneKey() TuneKey {
	return TuneKey{
		Volume: fmt.Sprintf("bytes=%d", len(m.dst)),
		Name:   "MemcpyAsyncDeviceToDevice",
		Aux:    m.site.aux(),
	}
}

// Candidates offers only the default shape; a copy has nothing to search.
func (m *memOp) Candidates() []LaunchConfig { return []LaunchConfig{{}} }

// Bytes is read plus written traffic.
func (m *memOp) Bytes() int64 { return 2 * int64(len(m.dst)) }

func (m *memOp) Flops() int64 { return 0 }

func (m *memOp) Apply(_ LaunchConfig, stream Stream) error {
	defer m.ctx.profile.start("MemcpyAsync")()
	code := m.ctx.backend.MemcpyAsync(m.dst, m.src, m.kind, stream.native())
	return m.ctx.setRuntimeError(code, "MemcpyAsync", m.site, m.ctx.ActiveTuning())
}
