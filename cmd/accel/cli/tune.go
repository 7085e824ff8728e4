package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/LynnColeArt/accel"
	"github.com/LynnColeArt/accel/envconfig"
	"github.com/LynnColeArt/accel/target"
)

// saxpy computes y = a*x + y.
type saxpy struct {
	accel.KernelArg
	a    float32
	x, y []float32
}

func (s *saxpy) Apply(i int) { s.y[i] += s.a * s.x[i] }

// dot folds x·y.
type dot struct {
	accel.KernelArg
	accel.Plus[float64]
	x, y []float32
}

func (d *dot) Reduce(acc float64, i, _ int) float64 {
	return acc + float64(d.x[i])*float64(d.y[i])
}

type saxpyOp struct {
	c *accel.Context
	f *saxpy
}

func (o *saxpyOp) TuneKey() accel.TuneKey {
	return accel.TuneKey{Name: "saxpy", Volume: accel.VolumeString(o.f.Threads)}
}

func (o *saxpyOp) Apply(tp accel.LaunchConfig, s accel.Stream) error {
	return accel.Launch1D(o.c, tp, s, o.f)
}

func (o *saxpyOp) Candidates() []accel.LaunchConfig {
	return accel.Candidates1D(o.f.Threads.X, target.MaxThreadsPerBlock)
}

func (o *saxpyOp) Bytes() int64 { return 12 * int64(o.f.Threads.X) }
func (o *saxpyOp) Flops() int64 { return 2 * int64(o.f.Threads.X) }

type dotOp struct {
	c *accel.Context
	f *dot
}

func (o *dotOp) TuneKey() accel.TuneKey {
	return accel.TuneKey{Name: "dot", Volume: accel.VolumeString(o.f.Threads)}
}

func (o *dotOp) Apply(tp accel.LaunchConfig, s accel.Stream) error {
	return accel.Reduce2D[float64](o.c, tp, s, o.f)
}

func (o *dotOp) Candidates() []accel.LaunchConfig {
	return accel.Candidates1D(o.f.Threads.X, target.MaxReduceBlockSize(1, 1))
}

func (o *dotOp) Bytes() int64 { return 8 * int64(o.f.Threads.X) }
func (o *dotOp) Flops() int64 { return 2 * int64(o.f.Threads.X) }

func newTuneCmd() *cobra.Command {
	var (
		size    int
		file    string
		profile bool
	)
	cmd := &cobra.Command{
		Use:   "tune",
		Short: "Tune a saxpy launch and a dot product reduction",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if size <= 0 {
				return fmt.Errorf("size must be positive, got %d", size)
			}
			c, err := accel.NewContext(accel.WithTuning(true), accel.WithAPIProfile(profile))
			if err != nil {
				return err
			}
			defer c.Close()
			return runTune(cmd.OutOrStdout(), c, size, file)
		},
	}
	cmd.Flags().IntVarP(&size, "size", "n", 1<<20, "Number of elements")
	cmd.Flags().StringVarP(&file, "file", "f", envconfig.TuneCache(), "Write the tune cache to this file")
	cmd.Flags().BoolVar(&profile, "profile", false, "Print the runtime API call profile")
	return cmd
}

func runTune(w io.Writer, c *accel.Context, size int, file string) error {
	x := make([]float32, size)
	y := make([]float32, size)
	for i := range x {
		x[i] = 1
		y[i] = 2
	}
	threads := target.D3(size, 1, 1)
	stream := c.DefaultStream()

	ax := &saxpyOp{c: c, f: &saxpy{KernelArg: accel.KernelArg{Threads: threads}, a: 0.5, x: x, y: y}}
	tp, err := accel.TuneLaunch(c, ax, stream)
	if err != nil {
		return err
	}
	if err := ax.Apply(tp, stream); err != nil {
		return err
	}

	d := &dotOp{c: c, f: &dot{KernelArg: accel.KernelArg{Threads: threads}, x: x, y: x}}
	tp, err = accel.TuneLaunch(c, d, stream)
	if err != nil {
		return err
	}
	if err := d.Apply(tp, stream); err != nil {
		return err
	}
	if err := c.StreamSynchronize(stream, accel.Here()); err != nil {
		return err
	}
	res, err := accel.ReduceResult[float64](c, 1)
	if err != nil {
		return err
	}

	printRegistry(w, c.Registry())
	fmt.Fprintf(w, "\ndot = %g\n", res[0])

	if p := c.APIProfile(); p != nil {
		fmt.Fprintln(w)
		printProfile(w, p)
	}
	if file != "" {
		return c.Registry().SaveFile(file)
	}
	return nil
}
