package accel

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/floats/scalar"

	"github.com/LynnColeArt/accel/target"
)

type onesSum struct {
	KernelArg
	Plus[float64]
	mode IndexMode
}

func (f onesSum) Mode() IndexMode { return f.mode }

func (onesSum) Reduce(acc float64, _, _ int) float64 { return acc + 1 }

type harmonicSum struct {
	KernelArg
	Plus[float64]
}

func (harmonicSum) Reduce(acc float64, i, _ int) float64 { return acc + 1/float64(i+1) }

func reduceConfig() LaunchConfig {
	return LaunchConfig{Grid: target.D3(64, 1, 1), Block: target.D3(256, 1, 1)}
}

func TestReduce2DOnes(t *testing.T) {
	c, rec := newTestContext(t)
	for _, mode := range []IndexMode{IndexGridStride, IndexStaticPartition} {
		for _, m := range []int{0, 1, 1024, 1 << 20} {
			t.Run(fmt.Sprintf("%s/%d", mode, m), func(t *testing.T) {
				f := onesSum{KernelArg: KernelArg{Threads: target.Dim3{X: m, Y: 1, Z: 1}}, mode: mode}
				require.NoError(t, Reduce2D[float64](c, reduceConfig(), c.DefaultStream(), f))
				got, err := ReduceResult[float64](c, 1)
				require.NoError(t, err)
				assert.Equal(t, float64(m), got[0])
			})
		}
	}
	assert.Zero(t, rec.count())
}

func TestReduceSyncAndAsyncAgree(t *testing.T) {
	const n = 100003
	f := harmonicSum{KernelArg: KernelArg{Threads: target.D3(n, 1, 1)}}
	tp := LaunchConfig{Grid: target.D3(13, 1, 1), Block: target.D3(96, 1, 1), Swizzle: true, SwizzleFactor: 4}

	sc, _ := newTestContext(t)
	require.NoError(t, Reduce2D[float64](sc, tp, sc.DefaultStream(), f))
	syncResult, err := ReduceResult[float64](sc, 1)
	require.NoError(t, err)

	ac, _ := newTestContext(t, WithAsyncReduction(true))
	s, err := ac.StreamCreate(Here())
	require.NoError(t, err)
	require.NoError(t, Reduce2D[float64](ac, tp, s, f))
	require.NoError(t, ac.StreamSynchronize(s, Here()))
	asyncResult, err := ReduceResult[float64](ac, 1)
	require.NoError(t, err)

	assert.Equal(t, math.Float64bits(syncResult[0]), math.Float64bits(asyncResult[0]))

	terms := make([]float64, n)
	for i := range terms {
		terms[i] = 1 / float64(i+1)
	}
	assert.True(t, scalar.EqualWithinAbsOrRel(floats.Sum(terms), syncResult[0], 1e-12, 1e-12))

	// Repeated runs combine in the same order.
	require.NoError(t, Reduce2D[float64](sc, tp, sc.DefaultStream(), f))
	again, err := ReduceResult[float64](sc, 1)
	require.NoError(t, err)
	assert.Equal(t, math.Float64bits(syncResult[0]), math.Float64bits(again[0]))
}

type planeSum struct {
	KernelArg
	Plus[float64]
	data []float64
}

func (p planeSum) Reduce(acc float64, i, j int) float64 { return acc + p.data[j*p.Threads.X+i] }

func TestReduce2DFoldsThreadY(t *testing.T) {
	c, _ := newTestContext(t)
	data := make([]float64, 2*300)
	for i := range data {
		data[i] = float64(i % 7)
	}
	f := planeSum{KernelArg: KernelArg{Threads: target.D3(300, 2, 1)}, data: data}
	tp := LaunchConfig{Grid: target.D3(4, 1, 1), Block: target.D3(32, 2, 1)}
	require.NoError(t, Reduce2D[float64](c, tp, c.DefaultStream(), f))
	got, err := ReduceResult[float64](c, 1)
	require.NoError(t, err)
	assert.Equal(t, floats.Sum(data), got[0])
}

type rowSums struct {
	KernelArg
	Plus[float64]
	data []float64
}

func (r rowSums) Reduce(acc float64, i, j, _ int) float64 { return acc + r.data[j*r.Threads.X+i] }

func TestMultiReducePerRow(t *testing.T) {
	for _, async := range []bool{false, true} {
		t.Run(fmt.Sprintf("async=%v", async), func(t *testing.T) {
			c, rec := newTestContext(t, WithAsyncReduction(async))
			const rows, cols = 5, 1000
			data := make([]float64, rows*cols)
			for i := range data {
				data[i] = float64(i%13) * 0.5
			}
			f := rowSums{KernelArg: KernelArg{Threads: target.D3(cols, rows, 1)}, data: data}
			// Three y blocks of two rows cover six rows; the last is clipped.
			tp := LaunchConfig{Grid: target.D3(3, 3, 1), Block: target.D3(64, 2, 1)}
			require.NoError(t, MultiReduce[float64](c, tp, c.DefaultStream(), f))
			require.NoError(t, c.StreamSynchronize(c.DefaultStream(), Here()))

			got, err := ReduceResult[float64](c, rows)
			require.NoError(t, err)
			for j := 0; j < rows; j++ {
				assert.Equal(t, floats.Sum(data[j*cols:(j+1)*cols]), got[j], "row %d", j)
			}
			assert.Zero(t, rec.count())
		})
	}
}

type maxReduce struct {
	KernelArg
	Maximum[int32]
	data []int32
}

func (m maxReduce) Reduce(acc int32, i, _ int) int32 { return m.Combine(acc, m.data[i]) }

type minReduce struct {
	KernelArg
	Minimum[float32]
	data []float32
}

func (m minReduce) Reduce(acc float32, i, _ int) float32 { return m.Combine(acc, m.data[i]) }

func TestReduceOperators(t *testing.T) {
	c, _ := newTestContext(t)
	ints := make([]int32, 5000)
	flts := make([]float32, 5000)
	for i := range ints {
		ints[i] = int32((i * 7919) % 4999)
		flts[i] = float32(i%101) - 50.5
	}

	require.NoError(t, Reduce2D[int32](c, reduceConfig(), c.DefaultStream(), maxReduce{KernelArg: KernelArg{Threads: target.D3(len(ints), 1, 1)}, data: ints}))
	gotMax, err := ReduceResult[int32](c, 1)
	require.NoError(t, err)
	assert.Equal(t, int32(4998), gotMax[0])

	require.NoError(t, Reduce2D[float32](c, reduceConfig(), c.DefaultStream(), minReduce{KernelArg: KernelArg{Threads: target.D3(len(flts), 1, 1)}, data: flts}))
	gotMin, err := ReduceResult[float32](c, 1)
	require.NoError(t, err)
	assert.Equal(t, float32(-50.5), gotMin[0])

	assert.Equal(t, float32(math.Inf(-1)), Maximum[float32]{}.Init())
	assert.Equal(t, uint64(math.MaxUint64), Minimum[uint64]{}.Init())
}

type boxed struct{ p *int }

type boxedReduce struct{ KernelArg }

func (boxedReduce) Init() boxed { return boxed{} }

func (boxedReduce) Combine(a, _ boxed) boxed { return a }

func (boxedReduce) Reduce(acc boxed, _, _ int) boxed { return acc }

func TestReduceRejectsPointerTypes(t *testing.T) {
	c, rec := newTestContext(t)
	err := Reduce2D[boxed](c, reduceConfig(), c.DefaultStream(), boxedReduce{KernelArg{Threads: target.D3(8, 1, 1)}})
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))
	assert.Equal(t, 1, rec.count())
}

func TestReduceResultBounds(t *testing.T) {
	c, rec := newTestContext(t)
	_, err := ReduceResult[float64](c, ReduceBufferBytes/8+1)
	assert.True(t, IsConfigurationError(err))
	assert.Equal(t, 1, rec.count())

	r, err := c.Reducer()
	require.NoError(t, err)
	assert.Len(t, r.HostBuffer(), ReduceBufferBytes)
	assert.Equal(t, ReduceBufferBytes, r.DeviceBuffer().Size())
	again, err := c.Reducer()
	require.NoError(t, err)
	assert.Same(t, r, again)
}
