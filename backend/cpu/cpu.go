// Package cpu is the goroutine-scheduled CPU backend. Streams are ordered
// worker queues, kernels are spread block-wise over the available cores,
// and all memory is host memory, so every copy kind reduces to a copy.
package cpu

import (
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/LynnColeArt/accel/backend"
	"github.com/LynnColeArt/accel/target"
)

// Name is the name the backend registers under.
const Name = "cpu"

// ConstantParamSymbol is the constant buffer every backend exposes.
const ConstantParamSymbol = "constant_param"

func init() {
	backend.Register(Name, func() (backend.Backend, error) {
		return New(), nil
	})
}

// Backend executes kernels on the host CPU.
type Backend struct {
	device   backend.DeviceInfo
	workers  int
	memory   *memoryPool
	defaultS *stream

	mu      sync.Mutex
	streams map[string]*stream
	attrs   map[string]*backend.FuncAttributes
	symbols map[string][]byte

	// fault is sticky: once a kernel faults, device state is undefined and
	// every later synchronization reports it.
	fault    atomic.Int32
	faultMsg atomic.Value
}

// New returns a CPU backend using every available core.
func New() *Backend {
	return NewWithWorkers(runtime.NumCPU())
}

// NewWithWorkers returns a CPU backend that spreads blocks over n workers.
func NewWithWorkers(n int) *Backend {
	if n <= 0 {
		n = runtime.NumCPU()
	}
	f := detectFeatures()
	b := &Backend{
		device: backend.DeviceInfo{
			Name:                   "CPU",
			Backend:                Name,
			NumCores:               runtime.NumCPU(),
			WarpSize:               target.WarpSize,
			VectorWidth:            f.vectorWidth(),
			Features:               f.names(),
			MaxThreadsPerBlock:     target.MaxThreadsPerBlock,
			MaxDefaultSharedMemory: target.MaxDefaultSharedMemory,
			MaxDynamicSharedMemory: target.MaxDynamicSharedMemory,
		},
		workers: n,
		memory:  newMemoryPool(),
		streams: make(map[string]*stream),
		attrs:   make(map[string]*backend.FuncAttributes),
		symbols: map[string][]byte{
			ConstantParamSymbol: make([]byte, target.MaxConstantParamSize),
		},
	}
	b.defaultS = newStream()
	b.streams[b.defaultS.id] = b.defaultS
	return b
}

func (b *Backend) Device() backend.DeviceInfo { return b.device }

// MemoryStats returns current and peak allocated bytes.
func (b *Backend) MemoryStats() (allocated, peak int64) { return b.memory.stats() }

// Fault returns the sticky fault code and the panic message that caused it.
func (b *Backend) Fault() (backend.Code, string) {
	msg, _ := b.faultMsg.Load().(string)
	return backend.Code(b.fault.Load()), msg
}

func (b *Backend) setFault(code backend.Code, msg string) {
	if b.fault.CompareAndSwap(int32(backend.Success), int32(code)) {
		b.faultMsg.Store(msg)
		slog.Debug("cpu backend fault", "code", code, "error", msg)
	}
}

func (b *Backend) sticky() backend.Code {
	return backend.Code(b.fault.Load())
}

func (b *Backend) stream(s backend.Stream) (*stream, backend.Code) {
	if s == nil {
		return b.defaultS, backend.Success
	}
	st, ok := s.(*stream)
	if !ok || st.destroyed.Load() {
		return nil, backend.ErrorInvalidResourceHandle
	}
	return st, backend.Success
}

func asEvent(e backend.Event) (*event, backend.Code) {
	ev, ok := e.(*event)
	if !ok || ev == nil {
		return nil, backend.ErrorInvalidResourceHandle
	}
	return ev, backend.Success
}

func validKind(kind backend.MemcpyKind) bool {
	return kind >= backend.MemcpyHostToHost && kind <= backend.MemcpyDefault
}

// Memory

func (b *Backend) Malloc(size int) ([]byte, backend.Code) {
	return b.memory.allocate(size)
}

func (b *Backend) Free(buf []byte) backend.Code {
	return b.memory.free(buf)
}

func (b *Backend) Memcpy(dst, src []byte, kind backend.MemcpyKind) backend.Code {
	if !validKind(kind) {
		return backend.ErrorInvalidMemcpyDirection
	}
	if len(dst) != len(src) {
		return backend.ErrorInvalidValue
	}
	b.defaultS.submitWait(func() { copy(dst, src) })
	return backend.Success
}

func (b *Backend) MemcpyAsync(dst, src []byte, kind backend.MemcpyKind, s backend.Stream) backend.Code {
	if !validKind(kind) {
		return backend.ErrorInvalidMemcpyDirection
	}
	if len(dst) != len(src) {
		return backend.ErrorInvalidValue
	}
	st, code := b.stream(s)
	if code != backend.Success {
		return code
	}
	st.submit(func() { copy(dst, src) })
	return backend.Success
}

func check2D(buf []byte, pitch, width, height int) bool {
	if width < 0 || height < 0 || pitch < width {
		return false
	}
	if height == 0 || width == 0 {
		return true
	}
	return len(buf) >= (height-1)*pitch+width
}

func copy2D(dst []byte, dpitch int, src []byte, spitch int, width, height int) {
	for row := 0; row < height; row++ {
		copy(dst[row*dpitch:row*dpitch+width], src[row*spitch:row*spitch+width])
	}
}

func (b *Backend) Memcpy2D(dst []byte, dpitch int, src []byte, spitch int, width, height int, kind backend.MemcpyKind) backend.Code {
	if !validKind(kind) {
		return backend.ErrorInvalidMemcpyDirection
	}
	if !check2D(dst, dpitch, width, height) || !check2D(src, spitch, width, height) {
		return backend.ErrorInvalidValue
	}
	b.defaultS.submitWait(func() { copy2D(dst, dpitch, src, spitch, width, height) })
	return backend.Success
}

func (b *Backend) Memcpy2DAsync(dst []byte, dpitch int, src []byte, spitch int, width, height int, kind backend.MemcpyKind, s backend.Stream) backend.Code {
	if !validKind(kind) {
		return backend.ErrorInvalidMemcpyDirection
	}
	if !check2D(dst, dpitch, width, height) || !check2D(src, spitch, width, height) {
		return backend.ErrorInvalidValue
	}
	st, code := b.stream(s)
	if code != backend.Success {
		return code
	}
	st.submit(func() { copy2D(dst, dpitch, src, spitch, width, height) })
	return backend.Success
}

func fill(dst []byte, value byte) {
	for i := range dst {
		dst[i] = value
	}
}

func fill2D(dst []byte, pitch int, value byte, width, height int) {
	for row := 0; row < height; row++ {
		fill(dst[row*pitch:row*pitch+width], value)
	}
}

func (b *Backend) Memset(dst []byte, value byte) backend.Code {
	b.defaultS.submitWait(func() { fill(dst, value) })
	return backend.Success
}

func (b *Backend) MemsetAsync(dst []byte, value byte, s backend.Stream) backend.Code {
	st, code := b.stream(s)
	if code != backend.Success {
		return code
	}
	st.submit(func() { fill(dst, value) })
	return backend.Success
}

func (b *Backend) Memset2D(dst []byte, pitch int, value byte, width, height int) backend.Code {
	if !check2D(dst, pitch, width, height) {
		return backend.ErrorInvalidValue
	}
	b.defaultS.submitWait(func() { fill2D(dst, pitch, value, width, height) })
	return backend.Success
}

func (b *Backend) Memset2DAsync(dst []byte, pitch int, value byte, width, height int, s backend.Stream) backend.Code {
	if !check2D(dst, pitch, width, height) {
		return backend.ErrorInvalidValue
	}
	st, code := b.stream(s)
	if code != backend.Success {
		return code
	}
	st.submit(func() { fill2D(dst, pitch, value, width, height) })
	return backend.Success
}

// Streams

func (b *Backend) DefaultStream() backend.Stream { return b.defaultS }

func (b *Backend) StreamCreate() (backend.Stream, backend.Code) {
	s := newStream()
	b.mu.Lock()
	b.streams[s.id] = s
	b.mu.Unlock()
	return s, backend.Success
}

func (b *Backend) StreamDestroy(s backend.Stream) backend.Code {
	st, code := b.stream(s)
	if code != backend.Success {
		return code
	}
	if st == b.defaultS {
		return backend.ErrorInvalidResourceHandle
	}
	st.destroyed.Store(true)
	b.mu.Lock()
	delete(b.streams, st.id)
	b.mu.Unlock()
	st.close()
	return backend.Success
}

func (b *Backend) StreamSynchronize(s backend.Stream) backend.Code {
	st, code := b.stream(s)
	if code != backend.Success {
		return code
	}
	st.synchronize()
	return b.sticky()
}

func (b *Backend) DeviceSynchronize() backend.Code {
	b.mu.Lock()
	all := make([]*stream, 0, len(b.streams))
	for _, s := range b.streams {
		all = append(all, s)
	}
	b.mu.Unlock()
	for _, s := range all {
		s.synchronize()
	}
	return b.sticky()
}

// Events

func (b *Backend) EventCreate(timing bool) (backend.Event, backend.Code) {
	return newEvent(timing), backend.Success
}

func (b *Backend) EventRecord(e backend.Event, s backend.Stream) backend.Code {
	ev, code := asEvent(e)
	if code != backend.Success {
		return code
	}
	st, code := b.stream(s)
	if code != backend.Success {
		return code
	}
	r, ok := ev.place()
	if !ok {
		return backend.ErrorInvalidResourceHandle
	}
	st.submit(func() {
		r.at = time.Now()
		close(r.done)
	})
	return backend.Success
}

func (b *Backend) EventQuery(e backend.Event) backend.Code {
	ev, code := asEvent(e)
	if code != backend.Success {
		return code
	}
	r, ok := ev.current()
	if !ok {
		return backend.ErrorInvalidResourceHandle
	}
	if r != nil && !r.complete() {
		return backend.ErrorNotReady
	}
	return b.sticky()
}

func (b *Backend) EventSynchronize(e backend.Event) backend.Code {
	ev, code := asEvent(e)
	if code != backend.Success {
		return code
	}
	r, ok := ev.current()
	if !ok {
		return backend.ErrorInvalidResourceHandle
	}
	if r != nil {
		<-r.done
	}
	return b.sticky()
}

func (b *Backend) EventElapsedTime(start, end backend.Event) (float32, backend.Code) {
	s, code := asEvent(start)
	if code != backend.Success {
		return 0, code
	}
	e, code := asEvent(end)
	if code != backend.Success {
		return 0, code
	}
	if !s.timing || !e.timing {
		return 0, backend.ErrorInvalidResourceHandle
	}
	rs, ok1 := s.current()
	re, ok2 := e.current()
	if !ok1 || !ok2 || rs == nil || re == nil {
		return 0, backend.ErrorInvalidResourceHandle
	}
	if !rs.complete() || !re.complete() {
		return 0, backend.ErrorNotReady
	}
	ms := float32(re.at.Sub(rs.at).Nanoseconds()) / 1e6
	return ms, backend.Success
}

func (b *Backend) EventDestroy(e backend.Event) backend.Code {
	ev, code := asEvent(e)
	if code != backend.Success {
		return code
	}
	ev.mu.Lock()
	defer ev.mu.Unlock()
	if ev.destroyed {
		return backend.ErrorInvalidResourceHandle
	}
	ev.destroyed = true
	return backend.Success
}

func (b *Backend) StreamWaitEvent(s backend.Stream, e backend.Event) backend.Code {
	ev, code := asEvent(e)
	if code != backend.Success {
		return code
	}
	st, code := b.stream(s)
	if code != backend.Success {
		return code
	}
	r, ok := ev.current()
	if !ok {
		return backend.ErrorInvalidResourceHandle
	}
	if r == nil {
		return backend.Success
	}
	st.submit(func() { <-r.done })
	return backend.Success
}

// Kernels

func (b *Backend) LaunchKernel(k backend.Kernel, p backend.LaunchParams, s backend.Stream) backend.Code {
	if code := b.validate(k, p); code != backend.Success {
		return code
	}
	st, code := b.stream(s)
	if code != backend.Success {
		return code
	}
	if code := b.sticky(); code != backend.Success {
		return code
	}
	st.submit(func() {
		if b.sticky() != backend.Success {
			return
		}
		if err := b.execute(k, p); err != nil {
			b.setFault(backend.ErrorLaunchFailure, err.Error())
		}
	})
	return backend.Success
}

func defaultAttributes() *backend.FuncAttributes {
	return &backend.FuncAttributes{
		MaxDynamicSharedSizeBytes: target.MaxDefaultSharedMemory,
		PreferredShmemCarveout:    -1,
		MaxThreadsPerBlock:        target.MaxThreadsPerBlock,
	}
}

func (b *Backend) attributes(kernel string) backend.FuncAttributes {
	b.mu.Lock()
	defer b.mu.Unlock()
	if a, ok := b.attrs[kernel]; ok {
		return *a
	}
	return *defaultAttributes()
}

func (b *Backend) FuncSetAttribute(kernel string, attr backend.FuncAttribute, value int) backend.Code {
	b.mu.Lock()
	defer b.mu.Unlock()
	a, ok := b.attrs[kernel]
	if !ok {
		a = defaultAttributes()
	}
	switch attr {
	case backend.FuncAttributeMaxDynamicSharedMemorySize:
		if value < 0 || value > target.MaxDynamicSharedMemory-a.SharedSizeBytes {
			return backend.ErrorInvalidValue
		}
		a.MaxDynamicSharedSizeBytes = value
	case backend.FuncAttributePreferredSharedMemoryCarveout:
		if value < -1 || value > backend.SharedmemCarveoutMaxShared {
			return backend.ErrorInvalidValue
		}
		a.PreferredShmemCarveout = value
	default:
		return backend.ErrorInvalidValue
	}
	b.attrs[kernel] = a
	return backend.Success
}

func (b *Backend) FuncGetAttributes(kernel string) (backend.FuncAttributes, backend.Code) {
	return b.attributes(kernel), backend.Success
}

// RegisterSymbol creates a named device buffer of size bytes.
func (b *Backend) RegisterSymbol(symbol string, size int) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	buf := make([]byte, size)
	b.symbols[symbol] = buf
	return buf
}

func (b *Backend) SymbolAddress(symbol string) ([]byte, backend.Code) {
	b.mu.Lock()
	defer b.mu.Unlock()
	buf, ok := b.symbols[symbol]
	if !ok {
		return nil, backend.ErrorInvalidSymbol
	}
	return buf, backend.Success
}

var _ backend.Backend = (*Backend)(nil)
