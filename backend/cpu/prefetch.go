package cpu

import "github.com/LynnColeArt/accel/backend"

// cacheLine is the stride prefetch walks buf with.
const cacheLine = 64

// MemPrefetchAsync reads one byte of every cache line of buf in stream
// order, leaving it resident for the work queued behind it.
func (b *Backend) MemPrefetchAsync(buf []byte, s backend.Stream) backend.Code {
	st, code := b.stream(s)
	if code != backend.Success {
		return code
	}
	st.submit(func() { touch(buf) })
	return backend.Success
}

func touch(buf []byte) byte {
	var sink byte
	for i := 0; i < len(buf); i += cacheLine {
		sink ^= buf[i]
	}
	if n := len(buf); n > 0 {
		sink ^= buf[n-1]
	}
	return sink
}
