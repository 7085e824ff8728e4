package accel

import (
	"fmt"
	"reflect"
	"unsafe"
)

// ReduceBufferBytes is the size of the reduction result buffers.
const ReduceBufferBytes = 64 * 1024

// Reducer owns the paired host and device buffers reductions deliver
// their results into. A context allocates it once and never reallocates.
type Reducer struct {
	host   []byte
	device DevicePtr
}

// HostBuffer returns the host-resident result buffer.
func (r *Reducer) HostBuffer() []byte { return r.host }

// DeviceBuffer returns the device-resident result buffer used by
// asynchronous reductions.
func (r *Reducer) DeviceBuffer() DevicePtr { return r.device }

// Reducer returns the context's reducer, allocating it on first use.
func (c *Context) Reducer() (*Reducer, error) {
	c.reducerMu.Lock()
	defer c.reducerMu.Unlock()
	if c.reducer != nil {
		return c.reducer, nil
	}
	dev, err := c.Malloc(ReduceBufferBytes, Here())
	if err != nil {
		return nil, err
	}
	c.reducer = &Reducer{host: make([]byte, ReduceBufferBytes), device: dev}
	return c.reducer, nil
}

// hasPointers reports whether values of t hold references the garbage
// collector must see, which rules them out of byte-backed scratch.
func hasPointers(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.String, reflect.Chan,
		reflect.Func, reflect.Interface, reflect.UnsafePointer:
		return true
	case reflect.Array:
		return t.Len() > 0 && hasPointers(t.Elem())
	case reflect.Struct:
		for i := range t.NumField() {
			if hasPointers(t.Field(i).Type) {
				return true
			}
		}
	}
	return false
}

// slotBytes validates T as a reduction element and returns the bytes n
// result slots occupy.
func slotBytes[T any](c *Context, op string, n int, site CallSite) (int, error) {
	var zero T
	size := int(unsafe.Sizeof(zero))
	if size == 0 {
		return 0, c.configurationError(op, fmt.Sprintf("zero sized reduction type %T", zero), site)
	}
	if hasPointers(reflect.TypeOf(&zero).Elem()) {
		return 0, c.configurationError(op, fmt.Sprintf("%v: %T", ErrPointerReduceType, zero), site)
	}
	if n < 0 || n*size > ReduceBufferBytes {
		return 0, c.configurationError(op, fmt.Sprintf("%d results of %T exceed the %d byte reduce buffer", n, zero, ReduceBufferBytes), site)
	}
	return n * size, nil
}

// ReduceResult returns the first n results of the last reduction. On the
// asynchronous path the caller must first synchronize the stream the
// reduction ran on.
func ReduceResult[T any](c *Context, n int) ([]T, error) {
	site := caller(2)
	bytes, err := slotBytes[T](c, "ReduceResult", n, site)
	if err != nil {
		return nil, err
	}
	r, err := c.Reducer()
	if err != nil {
		return nil, err
	}
	if c.asyncReduce {
		if err := c.Memcpy(r.host, r.device, bytes, MemcpyDeviceToHost, site); err != nil {
			return nil, err
		}
	}
	out := make([]T, n)
	copy(out, view[T](r.host))
	return out, nil
}
