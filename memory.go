package accel

import (
	"fmt"
	"unsafe"

	"github.com/LynnColeArt/accel/backend"
)

// MemcpyKind specifies the direction of a memory transfer.
type MemcpyKind int

const (
	MemcpyHostToHost MemcpyKind = iota
	MemcpyHostToDevice
	MemcpyDeviceToHost
	MemcpyDeviceToDevice
	MemcpyDefault
)

func (k MemcpyKind) String() string {
	switch k {
	case MemcpyHostToHost:
		return "HostToHost"
	case MemcpyHostToDevice:
		return "HostToDevice"
	case MemcpyDeviceToHost:
		return "DeviceToHost"
	case MemcpyDeviceToDevice:
		return "DeviceToDevice"
	case MemcpyDefault:
		return "Default"
	}
	return fmt.Sprintf("MemcpyKind(%d)", int(k))
}

// native maps a copy kind to the backend's enumeration.
func (k MemcpyKind) native() (backend.MemcpyKind, bool) {
	switch k {
	case MemcpyHostToHost:
		return backend.MemcpyHostToHost, true
	case MemcpyHostToDevice:
		return backend.MemcpyHostToDevice, true
	case MemcpyDeviceToHost:
		return backend.MemcpyDeviceToHost, true
	case MemcpyDeviceToDevice:
		return backend.MemcpyDeviceToDevice, true
	case MemcpyDefault:
		return backend.MemcpyDefault, true
	}
	return 0, false
}

// DevicePtr is a region of device memory.
type DevicePtr struct {
	buf []byte
}

// NewDevicePtr wraps memory obtained from a backend.
func NewDevicePtr(buf []byte) DevicePtr { return DevicePtr{buf: buf} }

// Size returns the length of the region in bytes.
func (d DevicePtr) Size() int { return len(d.buf) }

func (d DevicePtr) IsNil() bool { return d.buf == nil }

// Byte returns the region as bytes.
func (d DevicePtr) Byte() []byte { return d.buf }

// Offset returns the region starting bytes into d.
func (d DevicePtr) Offset(bytes int) DevicePtr {
	return DevicePtr{buf: d.buf[bytes:]}
}

// Float32 returns the region as a float32 slice.
func (d DevicePtr) Float32() []float32 { return view[float32](d.buf) }

// Float64 returns the region as a float64 slice.
func (d DevicePtr) Float64() []float64 { return view[float64](d.buf) }

// Int32 returns the region as an int32 slice.
func (d DevicePtr) Int32() []int32 { return view[int32](d.buf) }

// View returns the region as a slice of T. T must be pointer free.
func View[T any](d DevicePtr) []T { return view[T](d.buf) }

func view[T any](buf []byte) []T {
	var zero T
	size := int(unsafe.Sizeof(zero))
	if len(buf) < size || size == 0 {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(unsafe.SliceData(buf))), len(buf)/size)
}

func asBytes[T any](s []T) []byte {
	if len(s) == 0 {
		return []byte{}
	}
	var zero T
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(s))), len(s)*int(unsafe.Sizeof(zero)))
}

// bytesOf returns the memory behind a buffer argument. Accepted are
// DevicePtr and slices of the fixed size numeric types.
func bytesOf(p any) ([]byte, bool) {
	switch v := p.(type) {
	case DevicePtr:
		return v.buf, true
	case []byte:
		return v, true
	case []float32:
		return asBytes(v), true
	case []float64:
		return asBytes(v), true
	case []int32:
		return asBytes(v), true
	case []int64:
		return asBytes(v), true
	case []uint32:
		return asBytes(v), true
	case []uint64:
		return asBytes(v), true
	case []int16:
		return asBytes(v), true
	case []uint16:
		return asBytes(v), true
	}
	return nil, false
}

// region resolves p to its first count bytes.
func (c *Context) region(op string, p any, count int, site CallSite) ([]byte, error) {
	buf, ok := bytesOf(p)
	if !ok {
		return nil, c.configurationError(op, fmt.Sprintf("unsupported buffer type %T", p), site)
	}
	if count < 0 || count > len(buf) {
		return nil, c.configurationError(op, fmt.Sprintf("count %d exceeds buffer of %d bytes", count, len(buf)), site)
	}
	return buf[:count], nil
}

// region2D resolves p to the bytes spanned by height rows of pitch bytes.
func (c *Context) region2D(op string, p any, pitch, width, height int, site CallSite) ([]byte, error) {
	if height == 0 || width == 0 {
		buf, ok := bytesOf(p)
		if !ok {
			return nil, c.configurationError(op, fmt.Sprintf("unsupported buffer type %T", p), site)
		}
		return buf[:0], nil
	}
	if width > pitch {
		return nil, c.configurationError(op, fmt.Sprintf("width %d exceeds pitch %d", width, pitch), site)
	}
	return c.region(op, p, (height-1)*pitch+width, site)
}

// Malloc allocates size bytes of device memory.
func (c *Context) Malloc(size int, site CallSite) (DevicePtr, error) {
	defer c.profile.start("Malloc")()
	if size < 0 {
		return DevicePtr{}, c.configurationError("Malloc", fmt.Sprintf("negative size %d", size), site)
	}
	buf, code := c.backend.Malloc(size)
	if err := c.setRuntimeError(code, "Malloc", site, false); err != nil {
		return DevicePtr{}, err
	}
	return DevicePtr{buf: buf}, nil
}

// Free releases memory returned by Malloc.
func (c *Context) Free(p DevicePtr, site CallSite) error {
	if p.IsNil() {
		return nil
	}
	defer c.profile.start("Free")()
	return c.setRuntimeError(c.backend.Free(p.buf), "Free", site, false)
}
