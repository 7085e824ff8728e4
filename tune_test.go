package accel

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LynnColeArt/accel/target"
)

type fillOnes struct {
	KernelArg
	x []float32
}

func (f fillOnes) Apply(i int) { f.x[i] = 1 }

// fillOp is a tunable kernel whose first candidate cannot launch.
type fillOp struct {
	c       *Context
	x       []float32
	applies int
}

func (f *fillOp) TuneKey() TuneKey {
	return TuneKey{Name: "fill", Volume: VolumeString(target.D3(len(f.x), 1, 1))}
}

func (f *fillOp) Candidates() []LaunchConfig {
	bad := LaunchConfig{Grid: target.D3(1, 1, 1), Block: target.D3(2048, 1, 1)}
	return append([]LaunchConfig{bad}, Candidates1D(len(f.x), 128)...)
}

func (f *fillOp) Apply(tp LaunchConfig, s Stream) error {
	f.applies++
	return Launch1D(f.c, tp, s, fillOnes{KernelArg{Threads: target.D3(len(f.x), 1, 1)}, f.x})
}

func (f *fillOp) Bytes() int64 { return int64(4 * len(f.x)) }
func (f *fillOp) Flops() int64 { return 0 }

func TestTuneLaunchDiscardsFailingCandidates(t *testing.T) {
	c, rec := newTestContext(t, WithTuning(true))
	op := &fillOp{c: c, x: make([]float32, 1000)}

	tp, err := TuneLaunch(c, op, c.DefaultStream())
	require.NoError(t, err)
	tries := len(op.Candidates())
	assert.Equal(t, tries, op.applies, "every candidate is tried once")
	assert.LessOrEqual(t, tp.Block.X, 128)
	assert.GreaterOrEqual(t, tp.Grid.X*tp.Block.X, len(op.x))
	assert.GreaterOrEqual(t, tp.Time, 0.0)
	assert.False(t, c.ActiveTuning())
	assert.Zero(t, rec.count())
	assert.Equal(t, LastError{}, c.GetLastError(), "probe failures are cleared")
	assert.Equal(t, float32(1), op.x[999])

	cached, err := TuneLaunch(c, op, c.DefaultStream())
	require.NoError(t, err)
	assert.Equal(t, tp, cached)
	assert.Equal(t, tries, op.applies, "cached configurations are not re-measured")
}

func TestTuneLaunchDisabled(t *testing.T) {
	c, _ := newTestContext(t, WithTuning(false))
	op := &fillOp{c: c, x: make([]float32, 64)}
	tp, err := TuneLaunch(c, op, c.DefaultStream())
	require.NoError(t, err)
	assert.Equal(t, op.Candidates()[0], tp)
	assert.Zero(t, op.applies)
	assert.Zero(t, c.Registry().Len())
}

type brokenOp struct{ fillOp }

func (b *brokenOp) Candidates() []LaunchConfig {
	return []LaunchConfig{{Grid: target.D3(1, 1, 1), Block: target.D3(4096, 1, 1)}}
}

func TestTuneLaunchWithoutValidCandidate(t *testing.T) {
	c, rec := newTestContext(t, WithTuning(true))
	op := &brokenOp{fillOp{c: c, x: make([]float32, 8)}}
	_, err := TuneLaunch(c, op, c.DefaultStream())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoValidConfig)
	assert.Equal(t, 1, rec.count())
	assert.False(t, c.ActiveTuning())
}

func TestActiveTuningNests(t *testing.T) {
	c, _ := newTestContext(t)
	assert.False(t, c.ActiveTuning())
	c.SetActiveTuning(true)
	c.SetActiveTuning(true)
	c.SetActiveTuning(false)
	assert.True(t, c.ActiveTuning())
	c.SetActiveTuning(false)
	assert.False(t, c.ActiveTuning())
	c.SetActiveTuning(false)
	assert.False(t, c.ActiveTuning())
}

func TestRegistryPersistence(t *testing.T) {
	r := NewRegistry()
	r.Put(TuneKey{Name: "zeta", Volume: "8x1x1"}, LaunchConfig{Grid: target.D3(1, 1, 1), Block: target.D3(8, 1, 1)})
	r.Put(TuneKey{Name: "alpha", Volume: "1024x1x1", Aux: "main,main.go,10"},
		LaunchConfig{Grid: target.D3(8, 1, 1), Block: target.D3(128, 1, 1), Swizzle: true, SwizzleFactor: 4, Time: 1.5e-5})

	entries := r.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "alpha", entries[0].Key.Name, "entries are ordered by key")

	var buf bytes.Buffer
	require.NoError(t, r.Save(&buf))
	assert.Contains(t, buf.String(), "swizzle_factor: 4")

	loaded := NewRegistry()
	require.NoError(t, loaded.Load(&buf))
	if diff := cmp.Diff(entries, loaded.Entries()); diff != "" {
		t.Errorf("loaded registry mismatch (-want +got):\n%s", diff)
	}

	path := filepath.Join(t.TempDir(), "tunecache.yaml")
	require.NoError(t, r.SaveFile(path))
	fromFile := NewRegistry()
	require.NoError(t, fromFile.LoadFile(path))
	assert.Equal(t, 2, fromFile.Len())

	require.NoError(t, NewRegistry().Load(bytes.NewReader(nil)), "empty cache")
	assert.Error(t, NewRegistry().Load(bytes.NewBufferString("entries: [")))

	r.Clear()
	assert.Zero(t, r.Len())
}

func TestContextLoadsTuneCacheFromEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.yaml")
	r := NewRegistry()
	key := TuneKey{Name: "fill", Volume: "64x1x1"}
	want := LaunchConfig{Grid: target.D3(2, 1, 1), Block: target.D3(32, 1, 1)}
	r.Put(key, want)
	require.NoError(t, r.SaveFile(path))

	t.Setenv("ACCEL_TUNE_CACHE", path)
	c, err := NewContext(WithLogger(quietLogger()))
	require.NoError(t, err)
	got, ok := c.Registry().Get(key)
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestCandidates1D(t *testing.T) {
	cands := Candidates1D(100, 96)
	require.Len(t, cands, 96/target.WarpSize)
	for _, tp := range cands {
		assert.Zero(t, tp.Block.X%target.WarpSize)
		assert.GreaterOrEqual(t, tp.Threads(), 100)
	}
	assert.Len(t, Candidates1D(10, 4096), target.MaxThreadsPerBlock/target.WarpSize)
}
