package accel

import (
	"sync/atomic"
	"unsafe"

	"github.com/LynnColeArt/accel/backend"
	"github.com/LynnColeArt/accel/target"
)

// ReduceFunctor2D folds the x index space into a single result. j is the
// lane's y thread index.
type ReduceFunctor2D[T any] interface {
	Arg
	Operator[T]
	Reduce(acc T, i, j int) T
}

// MultiReduceFunctor folds the x index space into one result per global
// y index. k is the lane's z thread index.
type MultiReduceFunctor[T any] interface {
	Arg
	Operator[T]
	Reduce(acc T, i, j, k int) T
}

// reduceShape describes how lanes and blocks of a launch map onto result
// slots. Each block holds rows groups of lanes, one per result slot.
type reduceShape struct {
	slots   int
	rows    int
	columns int
	laneOK  func(l target.Lane) bool
	member  func(thread target.Dim3, row int) bool
	slot    func(block target.Dim3, row int) (int, bool)
	column  func(block target.Dim3) int
}

// reduction is the state shared by the blocks of one reduction launch.
type reduction[T any] struct {
	op      Operator[T]
	shape   reduceShape
	out     []T
	partial []T // slot-major, one entry per block column
	pending atomic.Int64
}

// blockDone tree-reduces each row of a finished block and stores the row
// result. The last block to finish folds every block's contribution into
// the result slots in column order, so the outcome does not depend on
// block scheduling.
func (r *reduction[T]) blockDone(block, bdim target.Dim3, shared []byte) {
	lanes := view[T](shared)
	size := bdim.Size()
	vals := make([]T, 0, size)
	col := r.shape.column(block)
	for row := range r.shape.rows {
		slot, ok := r.shape.slot(block, row)
		if !ok {
			continue
		}
		vals = vals[:0]
		for t := range size {
			if r.shape.member(bdim.Unlinear(t), row) {
				vals = append(vals, lanes[t])
			}
		}
		r.partial[slot*r.shape.columns+col] = treeReduce(vals, r.op)
	}
	if r.pending.Add(-1) == 0 {
		r.finish()
	}
}

func (r *reduction[T]) finish() {
	for s := range r.shape.slots {
		acc := r.out[s]
		for _, v := range r.partial[s*r.shape.columns : (s+1)*r.shape.columns] {
			acc = r.op.Combine(acc, v)
		}
		r.out[s] = acc
	}
}

// treeReduce combines vals pairwise at doubling strides, the order a
// shared memory block reduction uses.
func treeReduce[T any](vals []T, op Operator[T]) T {
	if len(vals) == 0 {
		return op.Init()
	}
	for stride := 1; stride < len(vals); stride *= 2 {
		for i := 0; i+stride < len(vals); i += 2 * stride {
			vals[i] = op.Combine(vals[i], vals[i+stride])
		}
	}
	return vals[0]
}

func runReduction[T any](c *Context, kind string, tp LaunchConfig, stream Stream, f Arg, op Operator[T], shape reduceShape, fold func(l target.Lane) T, site CallSite) error {
	bytes, err := slotBytes[T](c, kind, shape.slots, site)
	if err != nil {
		return err
	}
	if shape.slots == 0 {
		return nil
	}
	argMode, err := c.stageArgument(kind, f, site)
	if err != nil {
		return err
	}
	rd, err := c.Reducer()
	if err != nil {
		return err
	}

	host := view[T](rd.host)[:shape.slots]
	for i := range host {
		host[i] = op.Init()
	}
	out := host
	if c.asyncReduce {
		if err := c.MemcpyAsync(rd.device, rd.host, bytes, MemcpyHostToDevice, stream, site); err != nil {
			return err
		}
		out = View[T](rd.device)[:shape.slots]
	}

	grid, bdim := tp.Grid.Normalize(), tp.Block.Normalize()
	r := &reduction[T]{
		op:      op,
		shape:   shape,
		out:     out,
		partial: make([]T, shape.slots*shape.columns),
	}
	for i := range r.partial {
		r.partial[i] = op.Init()
	}
	r.pending.Store(int64(grid.Size()))

	var zero T
	launch := tp
	launch.SharedBytes = max(tp.SharedBytes, bdim.Size()*int(unsafe.Sizeof(zero)))
	k := backend.Kernel{
		Name: kernelName(kind, f),
		Lane: func(l target.Lane, shared []byte) {
			if !shape.laneOK(l) {
				return
			}
			view[T](shared)[l.LinearThread()] = fold(l)
		},
		BlockDone: func(block target.Dim3, shared []byte) {
			r.blockDone(block, bdim, shared)
		},
	}
	c.diag(DebugVerbose, "launching reduction",
		"kernel", kind,
		"mode", modeOf(f, IndexGridStride),
		"grid", tp.Grid,
		"block", tp.Block,
		"threads", f.Extent(),
		"slots", shape.slots,
		"arg_size", ArgumentSize(f),
		"arg_mode", argMode,
		"async", c.asyncReduce)
	if err := c.LaunchKernel(k, launch, stream, site); err != nil {
		return err
	}
	if c.asyncReduce {
		return nil
	}
	return c.StreamSynchronize(stream, site)
}

// Reduce2D folds f over [0, f.Extent().X) into a single result. Lanes
// whose y thread index is outside f.Extent().Y do no work. On the
// synchronous path the result is ready in the host buffer on return; on
// the asynchronous path it is delivered to the device buffer in stream
// order. Either way ReduceResult retrieves it.
func Reduce2D[T any](c *Context, tp LaunchConfig, stream Stream, f ReduceFunctor2D[T]) error {
	threads := f.Extent()
	grid := tp.Grid.Normalize()
	mode := modeOf(f, IndexGridStride)
	launched := tp.Grid.X * tp.Block.X
	shape := reduceShape{
		slots:   1,
		rows:    1,
		columns: grid.Size(),
		laneOK:  func(l target.Lane) bool { return l.Thread.Y < threads.Y },
		member:  func(th target.Dim3, _ int) bool { return th.Y < threads.Y },
		slot:    func(target.Dim3, int) (int, bool) { return 0, true },
		column:  func(block target.Dim3) int { return grid.Linear(block) },
	}
	return runReduction[T](c, "Reduction2D", tp, stream, f, f, shape, func(l target.Lane) T {
		acc := f.Init()
		j := l.Thread.Y
		tid := tp.blockX(l)*l.BDim.X + l.Thread.X
		mode.forEach(tid, launched, threads.X, func(i int) { acc = f.Reduce(acc, i, j) })
		return acc
	}, caller(2))
}

// MultiReduce folds f over [0, f.Extent().X) into one result per global y
// index in [0, f.Extent().Y). Lanes with a global y outside that range are
// excluded before doing any work.
func MultiReduce[T any](c *Context, tp LaunchConfig, stream Stream, f MultiReduceFunctor[T]) error {
	threads := f.Extent()
	grid, bdim := tp.Grid.Normalize(), tp.Block.Normalize()
	mode := modeOf(f, IndexGridStride)
	launched := tp.Grid.X * tp.Block.X
	shape := reduceShape{
		slots:   threads.Y,
		rows:    bdim.Y,
		columns: grid.X * grid.Z,
		laneOK:  func(l target.Lane) bool { return l.GlobalY() < threads.Y },
		member:  func(th target.Dim3, row int) bool { return th.Y == row },
		slot: func(block target.Dim3, row int) (int, bool) {
			j := block.Y*bdim.Y + row
			return j, j < threads.Y
		},
		column: func(block target.Dim3) int { return block.X + grid.X*block.Z },
	}
	return runReduction[T](c, "MultiReduction", tp, stream, f, f, shape, func(l target.Lane) T {
		acc := f.Init()
		j, k := l.GlobalY(), l.Thread.Z
		tid := tp.blockX(l)*l.BDim.X + l.Thread.X
		mode.forEach(tid, launched, threads.X, func(i int) { acc = f.Reduce(acc, i, j, k) })
		return acc
	}, caller(2))
}
