package accel

import (
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/LynnColeArt/accel/backend"
	"github.com/LynnColeArt/accel/backend/cpu"
)

// fatalRecorder replaces the exiting fatal handler in tests.
type fatalRecorder struct {
	mu   sync.Mutex
	errs []*Error
}

func (f *fatalRecorder) handle(err *Error) {
	f.mu.Lock()
	f.errs = append(f.errs, err)
	f.mu.Unlock()
}

func (f *fatalRecorder) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.errs)
}

func (f *fatalRecorder) last() *Error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.errs) == 0 {
		return nil
	}
	return f.errs[len(f.errs)-1]
}

// countingBackend counts the calls the shim is expected to elide or cache.
type countingBackend struct {
	*cpu.Backend
	memcpys  atomic.Int32
	memsets  atomic.Int32
	attrSets atomic.Int32
}

func (b *countingBackend) Memcpy(dst, src []byte, kind backend.MemcpyKind) backend.Code {
	b.memcpys.Add(1)
	return b.Backend.Memcpy(dst, src, kind)
}

func (b *countingBackend) Memset(dst []byte, value byte) backend.Code {
	b.memsets.Add(1)
	return b.Backend.Memset(dst, value)
}

func (b *countingBackend) FuncSetAttribute(kernel string, attr backend.FuncAttribute, value int) backend.Code {
	b.attrSets.Add(1)
	return b.Backend.FuncSetAttribute(kernel, attr, value)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestContext(t *testing.T, opts ...Option) (*Context, *fatalRecorder) {
	t.Helper()
	rec := &fatalRecorder{}
	base := []Option{
		WithBackend(cpu.NewWithWorkers(4)),
		WithLogger(quietLogger()),
		WithFatalHandler(rec.handle),
		WithTuning(false),
		WithVerbosity(Summarize),
		WithRegistry(NewRegistry()),
		WithRecoverableCodes(DefaultRecoverableCodes...),
	}
	c, err := NewContext(append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, rec
}
