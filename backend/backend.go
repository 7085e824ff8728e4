// Package backend defines the trait every accelerator programming model
// implements: kernel submission, memory transfer and fill, and stream and
// event operations. Algorithm code depends only on this package; exactly
// one concrete implementation is selected when the binary is built.
package backend

import (
	"slices"
	"sync"

	"github.com/LynnColeArt/accel/target"
)

// MemcpyKind specifies the direction of memory transfer.
type MemcpyKind int

const (
	MemcpyHostToHost     MemcpyKind = iota // Host to host transfer
	MemcpyHostToDevice                     // Host to device transfer
	MemcpyDeviceToHost                     // Device to host transfer
	MemcpyDeviceToDevice                   // Device to device transfer
	MemcpyDefault                          // Default transfer (infer direction)
)

// FuncAttribute names a per-kernel attribute.
type FuncAttribute int

const (
	FuncAttributeMaxDynamicSharedMemorySize FuncAttribute = iota
	FuncAttributePreferredSharedMemoryCarveout
)

// SharedmemCarveoutMaxShared asks for the largest shared memory carveout.
const SharedmemCarveoutMaxShared = 100

// FuncAttributes describes a registered kernel.
type FuncAttributes struct {
	SharedSizeBytes           int // Static shared memory used by the kernel
	MaxDynamicSharedSizeBytes int // Dynamic shared memory the kernel may request
	PreferredShmemCarveout    int // Percentage of L1 given to shared memory, -1 if unset
	MaxThreadsPerBlock        int
}

// DeviceInfo describes the device a backend drives.
type DeviceInfo struct {
	Name                   string
	Backend                string
	NumCores               int
	WarpSize               int
	VectorWidth            int // float32 lanes of the widest SIMD unit
	Features               []string
	MaxThreadsPerBlock     int
	MaxDefaultSharedMemory int
	MaxDynamicSharedMemory int
}

// LaunchParams is the shape of a single kernel launch.
type LaunchParams struct {
	Grid        target.Dim3
	Block       target.Dim3
	SharedBytes int
}

// Kernel is what a backend executes. Lane runs once per launched thread.
// BlockDone, when set, runs once per block after every lane of that block
// has returned, and receives the block's shared scratch; it is the
// equivalent of code following a block-wide barrier.
type Kernel struct {
	Name      string
	Lane      func(l target.Lane, shared []byte)
	BlockDone func(block target.Dim3, shared []byte)
}

// Stream is a backend-native ordered operation queue.
type Stream interface {
	ID() string
}

// Event is a backend-native marker in a stream's order.
type Event interface {
	ID() string
}

// Backend is implemented by every execution target. Methods return Success
// or the failing code; they never panic on bad input.
type Backend interface {
	Device() DeviceInfo

	// Memory
	Malloc(size int) ([]byte, Code)
	Free(buf []byte) Code
	Memcpy(dst, src []byte, kind MemcpyKind) Code
	MemcpyAsync(dst, src []byte, kind MemcpyKind, s Stream) Code
	Memcpy2D(dst []byte, dpitch int, src []byte, spitch int, width, height int, kind MemcpyKind) Code
	Memcpy2DAsync(dst []byte, dpitch int, src []byte, spitch int, width, height int, kind MemcpyKind, s Stream) Code
	Memset(dst []byte, value byte) Code
	MemsetAsync(dst []byte, value byte, s Stream) Code
	Memset2D(dst []byte, pitch int, value byte, width, height int) Code
	Memset2DAsync(dst []byte, pitch int, value byte, width, height int, s Stream) Code

	// Streams
	DefaultStream() Stream
	StreamCreate() (Stream, Code)
	StreamDestroy(s Stream) Code
	StreamSynchronize(s Stream) Code
	DeviceSynchronize() Code

	// Events
	EventCreate(timing bool) (Event, Code)
	EventRecord(e Event, s Stream) Code
	EventQuery(e Event) Code
	EventSynchronize(e Event) Code
	EventElapsedTime(start, end Event) (float32, Code)
	EventDestroy(e Event) Code
	StreamWaitEvent(s Stream, e Event) Code

	// Kernels
	LaunchKernel(k Kernel, p LaunchParams, s Stream) Code
	FuncSetAttribute(kernel string, attr FuncAttribute, value int) Code
	FuncGetAttributes(kernel string) (FuncAttributes, Code)
	SymbolAddress(symbol string) ([]byte, Code)
}

// Prefetcher is implemented by backends that can move or warm memory ahead
// of its use on a stream.
type Prefetcher interface {
	MemPrefetchAsync(buf []byte, s Stream) Code
}

// Factory creates a backend instance.
type Factory func() (Backend, error)

var (
	registryMu  sync.RWMutex
	factories   = map[string]Factory{}
	defaultName string
)

// Register makes a backend available by name. The first registration
// becomes the default.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	factories[name] = f
	if defaultName == "" {
		defaultName = name
	}
}

// Open creates a backend by name; an empty name selects the default.
func Open(name string) (Backend, error) {
	registryMu.RLock()
	if name == "" {
		name = defaultName
	}
	f, ok := factories[name]
	registryMu.RUnlock()
	if !ok {
		return nil, ErrNoBackend
	}
	return f()
}

// Registered lists the registered backend names.
func Registered() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(factories))
	for n := range factories {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}
