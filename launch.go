package accel

import (
	"fmt"
	"reflect"

	"github.com/LynnColeArt/accel/backend"
	"github.com/LynnColeArt/accel/target"
)

// LaunchConfig is the shape of a launch as chosen by a tuner.
type LaunchConfig struct {
	Grid        target.Dim3 `yaml:"grid"`
	Block       target.Dim3 `yaml:"block"`
	SharedBytes int         `yaml:"shared_bytes,omitempty"`
	// SetMaxSharedBytes opts the kernel into the largest shared memory
	// carveout the device supports.
	SetMaxSharedBytes bool   `yaml:"set_max_shared_bytes,omitempty"`
	Swizzle           bool   `yaml:"swizzle,omitempty"`
	SwizzleFactor     int    `yaml:"swizzle_factor,omitempty"`
	Aux               string `yaml:"aux,omitempty"`
	// Time is the measured duration in seconds, filled in by the tuner.
	Time float64 `yaml:"time,omitempty"`
}

// Threads returns the number of launched lanes.
func (tp LaunchConfig) Threads() int {
	return tp.Grid.Normalize().Size() * tp.Block.Normalize().Size()
}

func (tp LaunchConfig) String() string {
	s := fmt.Sprintf("grid=%s block=%s shared=%d", tp.Grid, tp.Block, tp.SharedBytes)
	if tp.Swizzle {
		s += fmt.Sprintf(" swizzle=%d", tp.SwizzleFactor)
	}
	return s
}

func (tp LaunchConfig) params() backend.LaunchParams {
	return backend.LaunchParams{Grid: tp.Grid, Block: tp.Block, SharedBytes: tp.SharedBytes}
}

// blockX returns the x block index a lane works on, after swizzling.
func (tp LaunchConfig) blockX(l target.Lane) int {
	if tp.Swizzle {
		return VirtualBlockIdx(l.Block.X, l.GDim.X, tp.SwizzleFactor)
	}
	return l.Block.X
}

// IndexMode selects how lanes are mapped to logical indices.
type IndexMode int

const (
	// IndexDirect gives each lane exactly its own global index.
	IndexDirect IndexMode = iota
	// IndexGridStride starts at the lane's global index and steps by the
	// launched width.
	IndexGridStride
	// IndexStaticPartition gives each lane one contiguous slice.
	IndexStaticPartition
)

func (m IndexMode) String() string {
	switch m {
	case IndexDirect:
		return "direct"
	case IndexGridStride:
		return "grid_stride"
	case IndexStaticPartition:
		return "static_partition"
	}
	return fmt.Sprintf("IndexMode(%d)", int(m))
}

// forEach calls fn for every index in [0, width) owned by lane tid out of
// launched lanes.
func (m IndexMode) forEach(tid, launched, width int, fn func(i int)) {
	switch m {
	case IndexGridStride:
		for i := tid; i < width; i += launched {
			fn(i)
		}
	case IndexStaticPartition:
		i1 := (tid + 1) * width / launched
		for i := tid * width / launched; i < i1; i++ {
			fn(i)
		}
	default:
		if tid < width {
			fn(tid)
		}
	}
}

// Arg is implemented by every kernel argument. Extent is the logical
// index space the kernel covers.
type Arg interface {
	Extent() target.Dim3
}

// KernelArg carries the logical extent and is meant to be embedded in
// functors.
type KernelArg struct {
	Threads target.Dim3
}

func (a KernelArg) Extent() target.Dim3 { return a.Threads }

// Moder is implemented by functors that choose their index mode.
type Moder interface {
	Mode() IndexMode
}

func modeOf(f any, def IndexMode) IndexMode {
	if m, ok := f.(Moder); ok {
		return m.Mode()
	}
	return def
}

type Functor1D interface {
	Arg
	Apply(i int)
}

type Functor2D interface {
	Arg
	Apply(i, j int)
}

type Functor3D interface {
	Arg
	Apply(i, j, k int)
}

// ArgMode is how an argument reaches the device.
type ArgMode int

const (
	// ArgInline passes the argument as a kernel parameter.
	ArgInline ArgMode = iota
	// ArgConstant stages the argument through the constant buffer.
	ArgConstant
	// ArgTooLarge cannot be passed at all.
	ArgTooLarge
)

func (m ArgMode) String() string {
	switch m {
	case ArgInline:
		return "kernel_arg"
	case ArgConstant:
		return "constant_param"
	}
	return "too_large"
}

// ArgumentSize returns the byte size of an argument value. Pointers are
// dereferenced once.
func ArgumentSize(arg any) int {
	t := reflect.TypeOf(arg)
	if t == nil {
		return 0
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return int(t.Size())
}

// ArgumentMode decides how an argument is passed.
func ArgumentMode(arg any) ArgMode {
	switch size := ArgumentSize(arg); {
	case size <= target.MaxKernelArgSize:
		return ArgInline
	case size <= target.MaxConstantParamSize:
		return ArgConstant
	}
	return ArgTooLarge
}

// constantSymbol is the constant buffer every backend exposes.
const constantSymbol = "constant_param"

// stageArgument checks that arg can reach the device and returns its
// passing mode.
func (c *Context) stageArgument(op string, arg any, site CallSite) (ArgMode, error) {
	mode := ArgumentMode(arg)
	switch mode {
	case ArgTooLarge:
		return mode, c.configurationError(op, fmt.Sprintf("argument %T of %d bytes exceeds the %d byte constant buffer",
			arg, ArgumentSize(arg), target.MaxConstantParamSize), site)
	case ArgConstant:
		buf, err := c.GetSymbolAddress(constantSymbol, site)
		if err != nil {
			return mode, err
		}
		if buf.Size() < ArgumentSize(arg) {
			return mode, c.configurationError(op, fmt.Sprintf("argument %T of %d bytes exceeds the %d byte constant buffer",
				arg, ArgumentSize(arg), buf.Size()), site)
		}
	}
	return mode, nil
}

// kernelName is stable per kernel template and functor type.
func kernelName(kind string, f any) string {
	return fmt.Sprintf("%s<%T>", kind, f)
}

func (c *Context) launch(kind string, tp LaunchConfig, stream Stream, f Arg, mode IndexMode, lane func(l target.Lane), done func(target.Dim3, []byte), site CallSite) error {
	argMode, err := c.stageArgument(kind, f, site)
	if err != nil {
		return err
	}
	k := backend.Kernel{
		Name:      kernelName(kind, f),
		Lane:      func(l target.Lane, _ []byte) { lane(l) },
		BlockDone: done,
	}
	c.diag(DebugVerbose, "launching kernel",
		"kernel", kind,
		"mode", mode,
		"functor", fmt.Sprintf("%T", f),
		"grid", tp.Grid,
		"block", tp.Block,
		"threads", f.Extent(),
		"arg_size", ArgumentSize(f),
		"arg_mode", argMode)
	if err := c.LaunchKernel(k, tp, stream, site); err != nil {
		c.diag(DebugVerbose, "kernel launch failed",
			"kernel", kind,
			"functor", fmt.Sprintf("%T", f),
			"grid", tp.Grid,
			"block", tp.Block,
			"threads", f.Extent(),
			"arg_size", ArgumentSize(f),
			"arg_mode", argMode,
			"error", err)
		return err
	}
	return nil
}

// Launch1D runs f.Apply once for every index in [0, f.Extent().X) that
// the functor's index mode assigns to a lane.
func Launch1D(c *Context, tp LaunchConfig, stream Stream, f Functor1D) error {
	mode := modeOf(f, IndexDirect)
	width := f.Extent().X
	launched := tp.Grid.X * tp.Block.X
	return c.launch("Kernel1D", tp, stream, f, mode, func(l target.Lane) {
		tid := tp.blockX(l)*l.BDim.X + l.Thread.X
		mode.forEach(tid, launched, width, f.Apply)
	}, nil, caller(2))
}

// Launch2D maps x like Launch1D; j is the lane's global y and lanes with
// j outside the extent do nothing.
func Launch2D(c *Context, tp LaunchConfig, stream Stream, f Functor2D) error {
	mode := modeOf(f, IndexDirect)
	threads := f.Extent()
	launched := tp.Grid.X * tp.Block.X
	return c.launch("Kernel2D", tp, stream, f, mode, func(l target.Lane) {
		j := l.GlobalY()
		if j >= threads.Y {
			return
		}
		tid := tp.blockX(l)*l.BDim.X + l.Thread.X
		mode.forEach(tid, launched, threads.X, func(i int) { f.Apply(i, j) })
	}, nil, caller(2))
}

// Launch3D is Launch2D with a clipped global z.
func Launch3D(c *Context, tp LaunchConfig, stream Stream, f Functor3D) error {
	mode := modeOf(f, IndexDirect)
	threads := f.Extent()
	launched := tp.Grid.X * tp.Block.X
	return c.launch("Kernel3D", tp, stream, f, mode, func(l target.Lane) {
		j, k := l.GlobalY(), l.GlobalZ()
		if j >= threads.Y || k >= threads.Z {
			return
		}
		tid := tp.blockX(l)*l.BDim.X + l.Thread.X
		mode.forEach(tid, launched, threads.X, func(i int) { f.Apply(i, j, k) })
	}, nil, caller(2))
}

// LaunchKernel submits k to stream. It is the only place a backend launch
// happens. Launch failures during a tuning probe are recoverable.
func (c *Context) LaunchKernel(k backend.Kernel, tp LaunchConfig, stream Stream, site CallSite) error {
	if tp.SetMaxSharedBytes {
		if err := c.optInSharedMemory(k.Name, site); err != nil {
			return err
		}
	}
	defer c.profile.start("LaunchKernel")()
	code := c.backend.LaunchKernel(k, tp.params(), stream.native())
	return c.setRuntimeError(code, "LaunchKernel", site, c.ActiveTuning())
}

// optInSharedMemory raises the kernel's dynamic shared memory limit to the
// device maximum, once per kernel.
func (c *Context) optInSharedMemory(kernel string, site CallSite) error {
	dev := c.backend.Device()
	if dev.MaxDynamicSharedMemory <= dev.MaxDefaultSharedMemory {
		return nil
	}
	c.carveoutMu.Lock()
	defer c.carveoutMu.Unlock()
	if _, ok := c.carveout[kernel]; ok {
		return nil
	}
	if err := c.FuncSetAttribute(kernel, backend.FuncAttributePreferredSharedMemoryCarveout, backend.SharedmemCarveoutMaxShared, site); err != nil {
		return err
	}
	attr, err := c.FuncGetAttributes(kernel, site)
	if err != nil {
		return err
	}
	if err := c.FuncSetAttribute(kernel, backend.FuncAttributeMaxDynamicSharedMemorySize, dev.MaxDynamicSharedMemory-attr.SharedSizeBytes, site); err != nil {
		return err
	}
	c.carveout[kernel] = struct{}{}
	c.diag(Verbose, "shared memory carveout", "kernel", kernel, "max_dynamic", dev.MaxDynamicSharedMemory-attr.SharedSizeBytes)
	return nil
}

// FuncSetAttribute sets a per-kernel attribute.
func (c *Context) FuncSetAttribute(kernel string, attr backend.FuncAttribute, value int, site CallSite) error {
	defer c.profile.start("FuncSetAttribute")()
	return c.setRuntimeError(c.backend.FuncSetAttribute(kernel, attr, value), "FuncSetAttribute", site, false)
}

// FuncGetAttributes returns the attributes of a kernel.
func (c *Context) FuncGetAttributes(kernel string, site CallSite) (backend.FuncAttributes, error) {
	defer c.profile.start("FuncGetAttributes")()
	attr, code := c.backend.FuncGetAttributes(kernel)
	if err := c.setRuntimeError(code, "FuncGetAttributes", site, false); err != nil {
		return backend.FuncAttributes{}, err
	}
	return attr, nil
}

// DefaultStream returns the backend's default stream.
func (c *Context) DefaultStream() Stream { return Stream{} }
