package cpu

import (
	"sync"
	"unsafe"

	"github.com/LynnColeArt/accel/backend"
)

// alignment of every allocation; a cache line.
const alignment = 64

// memoryPool manages device memory allocation with efficient reuse.
// It maintains a free list of previously allocated blocks to reduce
// allocation overhead.
type memoryPool struct {
	mu         sync.Mutex
	allocated  map[uintptr]*allocation
	freeList   []*allocation
	totalAlloc int64
	peakAlloc  int64
}

type allocation struct {
	buf  []byte
	used bool
}

func newMemoryPool() *memoryPool {
	return &memoryPool{
		allocated: make(map[uintptr]*allocation),
	}
}

func base(buf []byte) uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(buf)))
}

// allocate returns size bytes of zeroed device memory.
func (mp *memoryPool) allocate(size int) ([]byte, backend.Code) {
	if size < 0 {
		return nil, backend.ErrorInvalidValue
	}
	if size == 0 {
		return nil, backend.Success
	}

	mp.mu.Lock()
	defer mp.mu.Unlock()

	alignedSize := (size + alignment - 1) &^ (alignment - 1)

	for i, alloc := range mp.freeList {
		if cap(alloc.buf) >= alignedSize {
			mp.freeList = append(mp.freeList[:i], mp.freeList[i+1:]...)
			alloc.used = true
			mp.track(cap(alloc.buf))
			buf := alloc.buf[:size:size]
			clear(buf)
			return buf, backend.Success
		}
	}

	buf := make([]byte, alignedSize)
	alloc := &allocation{buf: buf, used: true}
	mp.allocated[base(buf)] = alloc
	mp.track(alignedSize)
	return buf[:size:size], backend.Success
}

func (mp *memoryPool) track(n int) {
	mp.totalAlloc += int64(n)
	if mp.totalAlloc > mp.peakAlloc {
		mp.peakAlloc = mp.totalAlloc
	}
}

// free returns memory to the pool
func (mp *memoryPool) free(buf []byte) backend.Code {
	if buf == nil {
		return backend.Success
	}

	mp.mu.Lock()
	defer mp.mu.Unlock()

	alloc, ok := mp.allocated[base(buf)]
	if !ok || !alloc.used {
		return backend.ErrorInvalidDevicePointer
	}

	alloc.used = false
	mp.freeList = append(mp.freeList, alloc)
	mp.totalAlloc -= int64(cap(alloc.buf))
	return backend.Success
}

// stats returns current and peak allocated bytes.
func (mp *memoryPool) stats() (allocated, peak int64) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return mp.totalAlloc, mp.peakAlloc
}
