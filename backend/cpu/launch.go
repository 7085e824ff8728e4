package cpu

import (
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/LynnColeArt/accel/backend"
	"github.com/LynnColeArt/accel/target"
)

// validate checks a launch shape against the architecture ceilings.
func (b *Backend) validate(k backend.Kernel, p backend.LaunchParams) backend.Code {
	if k.Lane == nil {
		return backend.ErrorInvalidValue
	}
	g, bl := p.Grid, p.Block
	if g.X <= 0 || g.Y <= 0 || g.Z <= 0 || bl.X <= 0 || bl.Y <= 0 || bl.Z <= 0 {
		return backend.ErrorInvalidConfiguration
	}
	if bl.X > target.MaxBlockDim.X || bl.Y > target.MaxBlockDim.Y || bl.Z > target.MaxBlockDim.Z {
		return backend.ErrorInvalidConfiguration
	}
	if bl.Size() > target.MaxThreadsPerBlock {
		return backend.ErrorInvalidConfiguration
	}
	if g.X > target.MaxGridDim.X || g.Y > target.MaxGridDim.Y || g.Z > target.MaxGridDim.Z {
		return backend.ErrorInvalidConfiguration
	}
	if p.SharedBytes < 0 {
		return backend.ErrorInvalidValue
	}
	if p.SharedBytes > b.attributes(k.Name).MaxDynamicSharedSizeBytes {
		return backend.ErrorLaunchOutOfResources
	}
	return backend.Success
}

// execute runs every block of the launch. Blocks are spread over the
// workers in contiguous runs to maximize cache reuse; the threads of a
// block run sequentially on one worker, followed by the block epilogue.
// A panic in any lane is reported as a launch failure.
func (b *Backend) execute(k backend.Kernel, p backend.LaunchParams) error {
	gridSize := p.Grid.Size()
	blockSize := p.Block.Size()

	numWorkers := min(b.workers, gridSize)
	blocksPerWorker := (gridSize + numWorkers - 1) / numWorkers

	var g errgroup.Group
	for w := 0; w < numWorkers; w++ {
		start := w * blocksPerWorker
		end := min(start+blocksPerWorker, gridSize)
		if start >= end {
			break
		}
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("kernel %q: %v", k.Name, r)
				}
			}()

			shared := make([]byte, p.SharedBytes)
			for blockID := start; blockID < end; blockID++ {
				blockIdx := p.Grid.Unlinear(blockID)
				for t := 0; t < blockSize; t++ {
					k.Lane(target.Lane{
						Block:  blockIdx,
						Thread: p.Block.Unlinear(t),
						BDim:   p.Block,
						GDim:   p.Grid,
					}, shared)
				}
				if k.BlockDone != nil {
					k.BlockDone(blockIdx, shared)
				}
			}
			return nil
		})
	}
	return g.Wait()
}
