package accel

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/emirpasic/gods/v2/maps/treemap"
	"gopkg.in/yaml.v3"

	"github.com/LynnColeArt/accel/target"
)

// TuneKey identifies a tunable operation instance.
type TuneKey struct {
	Name   string `yaml:"name"`
	Volume string `yaml:"volume"`
	Aux    string `yaml:"aux,omitempty"`
}

func (k TuneKey) String() string {
	return k.Name + "|" + k.Volume + "|" + k.Aux
}

// TuneEntry is a cached launch configuration.
type TuneEntry struct {
	Key   TuneKey      `yaml:"key"`
	Param LaunchConfig `yaml:"param"`
}

// Registry maps tune keys to the fastest configuration measured for them.
// It is ordered by key so saved caches are stable.
type Registry struct {
	mu sync.RWMutex
	m  *treemap.Map[string, TuneEntry]
}

func NewRegistry() *Registry {
	return &Registry{m: treemap.New[string, TuneEntry]()}
}

// Get returns the configuration stored for key.
func (r *Registry) Get(key TuneKey) (LaunchConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.m.Get(key.String())
	return e.Param, ok
}

// Put stores the configuration for key, replacing any previous one.
func (r *Registry) Put(key TuneKey, tp LaunchConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m.Put(key.String(), TuneEntry{Key: key, Param: tp})
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.m.Size()
}

// Entries returns every entry ordered by key.
func (r *Registry) Entries() []TuneEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.m.Values()
}

// Clear removes every entry.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m.Clear()
}

type tuneCache struct {
	Version string      `yaml:"version"`
	Entries []TuneEntry `yaml:"entries"`
}

// Save writes the registry as YAML.
func (r *Registry) Save(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(tuneCache{Version: root, Entries: r.Entries()}); err != nil {
		return fmt.Errorf("accel: encode tune cache: %w", err)
	}
	return enc.Close()
}

// Load merges entries read from YAML into the registry.
func (r *Registry) Load(rd io.Reader) error {
	var cache tuneCache
	if err := yaml.NewDecoder(rd).Decode(&cache); err != nil {
		if err == io.EOF {
			return nil
		}
		return fmt.Errorf("accel: decode tune cache: %w", err)
	}
	for _, e := range cache.Entries {
		r.Put(e.Key, e.Param)
	}
	return nil
}

// SaveFile writes the registry to path.
func (r *Registry) SaveFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := r.Save(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// LoadFile merges the cache stored at path.
func (r *Registry) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return r.Load(f)
}

// Tunable is an operation whose launch shape can be searched.
type Tunable interface {
	TuneKey() TuneKey
	// Apply runs the operation once with tp on stream.
	Apply(tp LaunchConfig, stream Stream) error
	// Candidates returns the shapes to try. The first is used when tuning
	// is disabled.
	Candidates() []LaunchConfig
	// Bytes and Flops describe one application, for reporting.
	Bytes() int64
	Flops() int64
}

// TuneLaunch returns the launch configuration for t. A cached entry is
// returned as is. Otherwise, when tuning is enabled and no probe is
// already running, every candidate is applied and timed with events;
// candidates that fail recoverably are discarded and the fastest is cached.
func TuneLaunch(c *Context, t Tunable, stream Stream) (LaunchConfig, error) {
	key := t.TuneKey()
	if tp, ok := c.tunes.Get(key); ok {
		return tp, nil
	}
	cands := t.Candidates()
	if len(cands) == 0 {
		return LaunchConfig{}, c.configurationError("TuneLaunch", fmt.Sprintf("%s has no launch candidates", key), caller(2))
	}
	if !c.tuning || c.ActiveTuning() {
		return cands[0], nil
	}

	site := caller(2)
	c.SetActiveTuning(true)
	defer c.SetActiveTuning(false)

	start, err := c.ChronoEventCreate(site)
	if err != nil {
		return LaunchConfig{}, err
	}
	defer c.EventDestroy(start, site)
	end, err := c.ChronoEventCreate(site)
	if err != nil {
		return LaunchConfig{}, err
	}
	defer c.EventDestroy(end, site)

	best := -1
	var bestTime float64
	for i, tp := range cands {
		if err := c.EventRecord(start, stream, site); err != nil {
			return LaunchConfig{}, err
		}
		if err := t.Apply(tp, stream); err != nil {
			if IsRecoverable(err) {
				c.diag(DebugVerbose, "discarding candidate", "key", key.String(), "param", tp.String(), "error", err)
				continue
			}
			return LaunchConfig{}, err
		}
		if err := c.EventRecord(end, stream, site); err != nil {
			return LaunchConfig{}, err
		}
		if err := c.EventSynchronize(end, site); err != nil {
			return LaunchConfig{}, err
		}
		elapsed, err := c.EventElapsedTime(start, end, site)
		if err != nil {
			return LaunchConfig{}, err
		}
		c.diag(DebugVerbose, "candidate", "key", key.String(), "param", tp.String(), "seconds", elapsed)
		if best < 0 || elapsed < bestTime {
			best, bestTime = i, elapsed
		}
	}
	// Clear failures recorded by discarded candidates.
	c.GetLastError()

	if best < 0 {
		err := &Error{Type: ErrTypeFatal, Op: "TuneLaunch", Message: fmt.Sprintf("%s: %v", key, ErrNoValidConfig), Site: site, Err: ErrNoValidConfig}
		c.fatal(err)
		return LaunchConfig{}, err
	}
	tp := cands[best]
	tp.Time = bestTime
	c.tunes.Put(key, tp)
	c.diag(Verbose, "tuned", "key", key.String(), "param", tp.String(), "seconds", bestTime,
		"gbps", rate(t.Bytes(), bestTime), "gflops", rate(t.Flops(), bestTime))
	return tp, nil
}

func rate(n int64, seconds float64) float64 {
	if seconds <= 0 {
		return 0
	}
	return float64(n) / seconds / 1e9
}

// Candidates1D enumerates block sizes from the warp width up to maxBlock
// in warp steps, each with enough blocks to cover width lanes.
func Candidates1D(width, maxBlock int) []LaunchConfig {
	maxBlock = min(maxBlock, target.MaxThreadsPerBlock)
	var out []LaunchConfig
	for b := target.WarpSize; b <= maxBlock; b += target.WarpSize {
		grid := max(1, (width+b-1)/b)
		grid = min(grid, target.MaxGridDim.X)
		out = append(out, LaunchConfig{Grid: target.D3(grid, 1, 1), Block: target.D3(b, 1, 1)})
	}
	return out
}

// VolumeString formats an extent for use in a tune key.
func VolumeString(d target.Dim3) string {
	return fmt.Sprintf("%dx%dx%d", d.X, d.Y, d.Z)
}
