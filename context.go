package accel

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/LynnColeArt/accel/backend"
	"github.com/LynnColeArt/accel/envconfig"
	"github.com/LynnColeArt/accel/internal/logutil"
)

// Verbosity controls how much diagnostic output the layer emits.
type Verbosity int

const (
	Silent Verbosity = iota
	Summarize
	Verbose
	DebugVerbose
)

func (v Verbosity) String() string {
	switch v {
	case Silent:
		return "silent"
	case Summarize:
		return "summarize"
	case Verbose:
		return "verbose"
	case DebugVerbose:
		return "debug"
	default:
		return fmt.Sprintf("Verbosity(%d)", int(v))
	}
}

// ParseVerbosity parses a verbosity name as printed by String.
func ParseVerbosity(s string) (Verbosity, error) {
	switch strings.ToLower(s) {
	case "silent":
		return Silent, nil
	case "summarize":
		return Summarize, nil
	case "verbose":
		return Verbose, nil
	case "debug", "debug_verbose":
		return DebugVerbose, nil
	}
	return Silent, fmt.Errorf("accel: unknown verbosity %q", s)
}

// level is the slog level diagnostics at v are emitted at.
func (v Verbosity) level() slog.Level {
	switch v {
	case Silent:
		return slog.LevelError
	case Summarize:
		return slog.LevelInfo
	case Verbose:
		return slog.LevelDebug
	default:
		return logutil.LevelTrace
	}
}

// FatalHandler is invoked for failures that leave device state undefined.
// The default logs the error and exits the process. A handler that returns
// makes the failing call return the error instead.
type FatalHandler func(err *Error)

// DefaultRecoverableCodes are the codes a launch may fail with during a
// tuning probe without aborting the process.
var DefaultRecoverableCodes = []backend.Code{
	backend.ErrorInvalidConfiguration,
	backend.ErrorLaunchOutOfResources,
	backend.ErrorInvalidValue,
}

// Context binds a backend to the runtime state the execution layer keeps:
// the last error, the reduction buffers, the tune cache and the tuning flag.
type Context struct {
	backend     backend.Backend
	logger      *slog.Logger
	verbosity   Verbosity
	asyncReduce bool
	tuning      bool
	recoverable map[backend.Code]bool
	fatal       FatalHandler
	tunes       *Registry
	profile     *APIProfile

	lastMu sync.Mutex
	last   LastError

	activeTuning atomic.Int32

	carveoutMu sync.Mutex
	carveout   map[string]struct{}

	reducerMu sync.Mutex
	reducer   *Reducer
}

// Option configures a Context.
type Option func(*Context)

// WithBackend uses b instead of the backend selected by ACCEL_BACKEND.
func WithBackend(b backend.Backend) Option {
	return func(c *Context) { c.backend = b }
}

// WithLogger sets the diagnostic logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Context) { c.logger = l }
}

func WithVerbosity(v Verbosity) Option {
	return func(c *Context) { c.verbosity = v }
}

// WithAsyncReduction selects the device-resident reduction result path.
func WithAsyncReduction(on bool) Option {
	return func(c *Context) { c.asyncReduce = on }
}

// WithTuning enables or disables launch parameter search.
func WithTuning(on bool) Option {
	return func(c *Context) { c.tuning = on }
}

// WithRecoverableCodes replaces the set of codes downgraded to recoverable
// failures while tuning is active.
func WithRecoverableCodes(codes ...backend.Code) Option {
	return func(c *Context) {
		c.recoverable = make(map[backend.Code]bool, len(codes))
		for _, code := range codes {
			c.recoverable[code] = true
		}
	}
}

func WithFatalHandler(h FatalHandler) Option {
	return func(c *Context) { c.fatal = h }
}

// WithRegistry shares a tune cache between contexts.
func WithRegistry(r *Registry) Option {
	return func(c *Context) { c.tunes = r }
}

// WithAPIProfile turns per-call timing of runtime API calls on or off.
func WithAPIProfile(on bool) Option {
	return func(c *Context) {
		if on {
			c.profile = newAPIProfile()
		} else {
			c.profile = nil
		}
	}
}

// NewContext creates a context. Unset options fall back to the ACCEL_*
// environment variables.
func NewContext(opts ...Option) (*Context, error) {
	c := &Context{
		verbosity:   verbosityFromEnv(),
		asyncReduce: envconfig.AsyncReduction(),
		tuning:      envconfig.Tuning(true),
		carveout:    make(map[string]struct{}),
	}
	if envconfig.APIProfile() {
		c.profile = newAPIProfile()
	}
	if names := envconfig.RecoverableCodes(); names != nil {
		codes := make([]backend.Code, 0, len(names))
		for _, n := range names {
			code, ok := backend.ParseCode(n)
			if !ok {
				return nil, NewConfigurationError("NewContext", fmt.Sprintf("unknown backend code %q in ACCEL_RECOVERABLE_CODES", n))
			}
			codes = append(codes, code)
		}
		WithRecoverableCodes(codes...)(c)
	} else {
		WithRecoverableCodes(DefaultRecoverableCodes...)(c)
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		c.logger = logutil.NewLogger(os.Stderr, min(envconfig.LogLevel(), c.verbosity.level()))
	}
	if c.fatal == nil {
		c.fatal = c.exit
	}
	if c.tunes == nil {
		c.tunes = NewRegistry()
		if path := envconfig.TuneCache(); path != "" {
			if err := c.tunes.LoadFile(path); err != nil && !os.IsNotExist(err) {
				c.logger.Warn("ignoring tune cache", "path", path, "error", err)
			}
		}
	}
	if c.backend == nil {
		b, err := openBackend(envconfig.Backend(), int(envconfig.Workers()))
		if err != nil {
			return nil, fmt.Errorf("accel: open backend %q: %w", envconfig.Backend(), err)
		}
		c.backend = b
	}

	if c.verbosity >= Verbose {
		dev := c.backend.Device()
		c.logger.Info("accel context",
			"backend", dev.Backend,
			"device", dev.Name,
			"cores", dev.NumCores,
			"warp", dev.WarpSize,
			"async_reduction", c.asyncReduce,
			"tuning", c.tuning)
	}
	return c, nil
}

func verbosityFromEnv() Verbosity {
	if s := envconfig.Verbosity(); s != "" {
		if v, err := ParseVerbosity(s); err == nil {
			return v
		}
		slog.Warn("invalid ACCEL_VERBOSITY, using summarize", "value", s)
	}
	switch level := envconfig.LogLevel(); {
	case level <= logutil.LevelTrace:
		return DebugVerbose
	case level <= slog.LevelDebug:
		return Verbose
	}
	return Summarize
}

func (c *Context) exit(err *Error) {
	c.logger.Error("fatal accelerator error",
		"op", err.Op,
		"code", err.Code,
		"error", err.Message,
		"site", err.Site.String())
	os.Exit(1)
}

var (
	defaultOnce sync.Once
	defaultCtx  *Context
	defaultErr  error
)

// Default returns the process-wide context, creating it from the
// environment on first use.
func Default() (*Context, error) {
	defaultOnce.Do(func() {
		defaultCtx, defaultErr = NewContext()
	})
	return defaultCtx, defaultErr
}

// diag emits a diagnostic when the context verbosity is at least v.
func (c *Context) diag(v Verbosity, msg string, args ...any) {
	if c.verbosity < v {
		return
	}
	c.logger.Log(context.Background(), v.level(), msg, args...)
}

// Backend returns the backend the context drives.
func (c *Context) Backend() backend.Backend { return c.backend }

// Logger returns the diagnostic logger.
func (c *Context) Logger() *slog.Logger { return c.logger }

func (c *Context) Verbosity() Verbosity { return c.verbosity }

// Registry returns the tune cache.
func (c *Context) Registry() *Registry { return c.tunes }

// AsyncReduction reports whether reductions leave their result in device
// memory.
func (c *Context) AsyncReduction() bool { return c.asyncReduce }

// Recoverable reports whether code is downgraded while tuning.
func (c *Context) Recoverable(code backend.Code) bool { return c.recoverable[code] }

// SetActiveTuning marks the start or end of a tuning probe. Calls nest.
func (c *Context) SetActiveTuning(on bool) {
	if on {
		c.activeTuning.Add(1)
	} else if c.activeTuning.Add(-1) < 0 {
		c.activeTuning.Store(0)
	}
}

// ActiveTuning reports whether a tuning probe is in progress.
func (c *Context) ActiveTuning() bool { return c.activeTuning.Load() > 0 }

// Close releases the reduction buffers.
func (c *Context) Close() error {
	c.reducerMu.Lock()
	defer c.reducerMu.Unlock()
	if c.reducer == nil {
		return nil
	}
	r := c.reducer
	c.reducer = nil
	return c.Free(r.device, Here())
}
