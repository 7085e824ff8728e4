package accel

import (
	"slices"
	"strings"
	"sync"
	"time"
)

// ProfileEntry accumulates the calls made to one runtime API function.
type ProfileEntry struct {
	Name  string
	Calls int64
	Total time.Duration
}

// Mean returns the average duration of a call.
func (e ProfileEntry) Mean() time.Duration {
	if e.Calls == 0 {
		return 0
	}
	return e.Total / time.Duration(e.Calls)
}

// APIProfile records wall time spent in runtime API calls. A nil profile
// records nothing.
type APIProfile struct {
	mu      sync.Mutex
	entries map[string]*ProfileEntry
}

func newAPIProfile() *APIProfile {
	return &APIProfile{entries: make(map[string]*ProfileEntry)}
}

func noop() {}

// start begins timing a call to name. The returned func ends it.
func (p *APIProfile) start(name string) func() {
	if p == nil {
		return noop
	}
	t0 := time.Now()
	return func() {
		d := time.Since(t0)
		p.mu.Lock()
		e, ok := p.entries[name]
		if !ok {
			e = &ProfileEntry{Name: name}
			p.entries[name] = e
		}
		e.Calls++
		e.Total += d
		p.mu.Unlock()
	}
}

// Entries returns a snapshot sorted by name.
func (p *APIProfile) Entries() []ProfileEntry {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]ProfileEntry, 0, len(p.entries))
	for _, e := range p.entries {
		out = append(out, *e)
	}
	slices.SortFunc(out, func(a, b ProfileEntry) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// Reset discards every entry.
func (p *APIProfile) Reset() {
	if p == nil {
		return
	}
	p.mu.Lock()
	clear(p.entries)
	p.mu.Unlock()
}

// APIProfile returns the call profile, or nil when profiling is off.
func (c *Context) APIProfile() *APIProfile { return c.profile }
