package accel

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LynnColeArt/accel/backend"
	"github.com/LynnColeArt/accel/backend/cpu"
	"github.com/LynnColeArt/accel/target"
)

func TestMemcpyRoundTrip(t *testing.T) {
	c, rec := newTestContext(t)
	const n = 1000

	src := make([]float32, n)
	for i := range src {
		src[i] = float32(i) * 0.25
	}
	d, err := c.Malloc(n*4, Here())
	require.NoError(t, err)
	defer c.Free(d, Here())

	require.NoError(t, c.Memcpy(d, src, n*4, MemcpyHostToDevice, Here()))
	assert.Equal(t, src, d.Float32())

	dst := make([]float32, n)
	require.NoError(t, c.Memcpy(dst, d, n*4, MemcpyDeviceToHost, Here()))
	if diff := cmp.Diff(src, dst); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	require.NoError(t, c.Memset(d, 0, n*4, Here()))
	assert.Zero(t, d.Float32()[n-1])
	assert.Len(t, d.Offset(8).Float64(), (n*4-8)/8)
	assert.Zero(t, rec.count())
}

func TestZeroCountIsNoop(t *testing.T) {
	b := &countingBackend{Backend: cpu.New()}
	c, rec := newTestContext(t, WithBackend(b))

	assert.NoError(t, c.Memcpy(nil, nil, 0, MemcpyKind(99), Here()))
	assert.NoError(t, c.MemcpyAsync(nil, nil, 0, MemcpyDeviceToDevice, c.DefaultStream(), Here()))
	assert.NoError(t, c.Memset(nil, 300, 0, Here()))
	assert.NoError(t, c.Memset2D(nil, 0, 1, 0, 4, Here()))
	assert.NoError(t, c.Memcpy2D(nil, 0, nil, 0, 4, 0, MemcpyDefault, Here()))

	assert.Zero(t, b.memcpys.Load())
	assert.Zero(t, b.memsets.Load())
	assert.Zero(t, rec.count())
	assert.Equal(t, LastError{}, c.GetLastError())
	assert.Zero(t, c.Registry().Len(), "zero byte copies are not tuned")
}

func TestConfigurationErrors(t *testing.T) {
	c, rec := newTestContext(t)
	buf := make([]byte, 16)

	tests := []struct {
		name string
		call func() error
	}{
		{"invalid kind", func() error { return c.Memcpy(buf, buf, 4, MemcpyKind(42), Here()) }},
		{"fill value", func() error { return c.Memset(buf, 256, 4, Here()) }},
		{"negative fill value", func() error { return c.MemsetAsync(buf, -1, 4, c.DefaultStream(), Here()) }},
		{"count past end", func() error { return c.Memcpy(buf, buf, 17, MemcpyHostToHost, Here()) }},
		{"unsupported buffer", func() error { return c.Memset("buffer", 0, 4, Here()) }},
		{"width past pitch", func() error { return c.Memset2D(buf, 4, 0, 5, 2, Here()) }},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			require.Error(t, err)
			assert.True(t, IsConfigurationError(err))
			assert.Equal(t, i+1, rec.count())
			assert.Equal(t, StatusError, c.GetLastError().Status)
		})
	}
}

func TestMemcpy2D(t *testing.T) {
	c, _ := newTestContext(t)
	src := []byte{
		1, 2, 3, 0,
		4, 5, 6, 0,
	}
	dst := make([]byte, 2*5)
	require.NoError(t, c.Memcpy2D(dst, 5, src, 4, 3, 2, MemcpyHostToHost, Here()))
	assert.Equal(t, []byte{1, 2, 3, 0, 0, 4, 5, 6, 0, 0}, dst)

	s, err := c.StreamCreate(Here())
	require.NoError(t, err)
	defer c.StreamDestroy(s, Here())
	require.NoError(t, c.Memset2DAsync(dst, 5, 9, 2, 2, s, Here()))
	require.NoError(t, c.Memcpy2DAsync(src, 4, dst, 5, 3, 2, MemcpyDeviceToDevice, s, Here()))
	require.NoError(t, c.StreamSynchronize(s, Here()))
	assert.Equal(t, []byte{9, 9, 3, 0, 9, 9, 6, 0}, src)
}

func TestLastErrorReadAndClear(t *testing.T) {
	c, rec := newTestContext(t)
	assert.Equal(t, LastError{Status: StatusSuccess}, c.GetLastError())

	ev, err := c.EventCreate(Here())
	require.NoError(t, err)
	require.NoError(t, c.EventDestroy(ev, Here()))

	err = c.EventRecord(ev, c.DefaultStream(), Here())
	require.Error(t, err)
	assert.True(t, IsFatal(err))
	assert.Equal(t, backend.ErrorInvalidResourceHandle, CodeOf(err))
	assert.Equal(t, 1, rec.count())

	last := c.GetLastError()
	assert.Equal(t, StatusError, last.Status)
	assert.Equal(t, backend.ErrorInvalidResourceHandle.Message(), last.Message)

	assert.Equal(t, LastError{}, c.GetLastError())
}

type gateFunctor struct {
	KernelArg
	gate chan struct{}
}

func (g gateFunctor) Apply(int) { <-g.gate }

func TestEventQueryAndTiming(t *testing.T) {
	c, rec := newTestContext(t)
	s, err := c.StreamCreate(Here())
	require.NoError(t, err)
	defer c.StreamDestroy(s, Here())

	start, err := c.ChronoEventCreate(Here())
	require.NoError(t, err)
	end, err := c.ChronoEventCreate(Here())
	require.NoError(t, err)

	gate := make(chan struct{})
	one := LaunchConfig{Grid: target.D3(1, 1, 1), Block: target.D3(1, 1, 1)}
	require.NoError(t, c.EventRecord(start, s, Here()))
	require.NoError(t, Launch1D(c, one, s, gateFunctor{KernelArg{Threads: target.D3(1, 1, 1)}, gate}))
	require.NoError(t, c.EventRecord(end, s, Here()))

	done, err := c.EventQuery(end, Here())
	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, LastError{}, c.GetLastError(), "not ready is not an error")

	close(gate)
	require.NoError(t, c.EventSynchronize(end, Here()))
	done, err = c.EventQuery(end, Here())
	require.NoError(t, err)
	assert.True(t, done)

	secs, err := c.EventElapsedTime(start, end, Here())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, secs, 0.0)
	assert.Less(t, secs, 60.0)

	require.NoError(t, c.EventDestroy(start, Here()))
	require.NoError(t, c.EventDestroy(end, Here()))
	assert.Zero(t, rec.count())
}

func TestStreamWaitEvent(t *testing.T) {
	c, _ := newTestContext(t)
	producer, err := c.StreamCreate(Here())
	require.NoError(t, err)
	consumer, err := c.StreamCreate(Here())
	require.NoError(t, err)

	gate := make(chan struct{})
	buf := make([]byte, 64)
	out := make([]byte, 64)
	one := LaunchConfig{Grid: target.D3(1, 1, 1), Block: target.D3(1, 1, 1)}

	ev, err := c.EventCreate(Here())
	require.NoError(t, err)
	require.NoError(t, Launch1D(c, one, producer, gateFunctor{KernelArg{Threads: target.D3(1, 1, 1)}, gate}))
	require.NoError(t, c.MemsetAsync(buf, 7, len(buf), producer, Here()))
	require.NoError(t, c.EventRecord(ev, producer, Here()))
	require.NoError(t, c.StreamWaitEvent(consumer, ev, Here()))
	require.NoError(t, c.MemcpyAsync(out, buf, len(buf), MemcpyHostToHost, consumer, Here()))

	close(gate)
	require.NoError(t, c.StreamSynchronize(consumer, Here()))
	assert.Equal(t, byte(7), out[63])
}

func TestDeviceToDeviceCopyIsTuned(t *testing.T) {
	c, rec := newTestContext(t, WithTuning(true))
	src, err := c.Malloc(256, Here())
	require.NoError(t, err)
	dst, err := c.Malloc(256, Here())
	require.NoError(t, err)
	for i := range src.Byte() {
		src.Byte()[i] = byte(i)
	}

	require.NoError(t, c.MemcpyAsync(dst, src, 256, MemcpyDeviceToDevice, c.DefaultStream(), Here()))
	require.NoError(t, c.DeviceSynchronize(Here()))
	assert.Equal(t, src.Byte(), dst.Byte())

	entries := c.Registry().Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "MemcpyAsyncDeviceToDevice", entries[0].Key.Name)
	assert.Equal(t, "bytes=256", entries[0].Key.Volume)
	assert.Contains(t, entries[0].Key.Aux, "api_test.go")
	assert.False(t, c.ActiveTuning())
	assert.Zero(t, rec.count())
}

func TestMiscShim(t *testing.T) {
	c, _ := newTestContext(t)
	buf := make([]float64, 4)
	assert.NoError(t, c.MemPrefetchAsync(buf, 32, c.DefaultStream(), Here()))
	assert.NoError(t, c.MemcpyP2PAsync(buf, []float64{1, 2, 3, 4}, 32, c.DefaultStream(), Here()))
	require.NoError(t, c.DeviceSynchronize(Here()))
	assert.Equal(t, []float64{1, 2, 3, 4}, buf)

	sym, err := c.GetSymbolAddress("constant_param", Here())
	require.NoError(t, err)
	assert.Equal(t, target.MaxConstantParamSize, sym.Size())
}

func TestAPIProfile(t *testing.T) {
	c, _ := newTestContext(t, WithAPIProfile(true))
	buf := make([]byte, 8)
	require.NoError(t, c.Memset(buf, 1, 8, Here()))
	require.NoError(t, c.Memset(buf, 2, 8, Here()))
	require.NoError(t, c.DeviceSynchronize(Here()))

	var names []string
	for _, e := range c.APIProfile().Entries() {
		names = append(names, e.Name)
		if e.Name == "Memset" {
			assert.Equal(t, int64(2), e.Calls)
		}
	}
	assert.Equal(t, []string{"DeviceSynchronize", "Memset"}, names)

	c.APIProfile().Reset()
	assert.Empty(t, c.APIProfile().Entries())

	off, _ := newTestContext(t, WithAPIProfile(false))
	assert.Nil(t, off.APIProfile())
	assert.Nil(t, off.APIProfile().Entries())
}
