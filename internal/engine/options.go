package engine

import (
	"time"

	"github.com/BTreeMap/PromptDeck/internal/selection"
)

// Engine defaults.
const (
	// DefaultFlushDelay is the batching window between a mutation and its write.
	DefaultFlushDelay = 2 * time.Second
	// DefaultCacheTTL bounds how long next-prompt and stats results are reused.
	DefaultCacheTTL = 30 * time.Second
	// MaxFlushBackoff caps the retry delay after failed flushes.
	MaxFlushBackoff = time.Minute
	// DefaultHeapLimit is the heap size above which hydrated packs are evicted.
	DefaultHeapLimit = 256 << 20
)

// Opts holds configuration options for the engine.
type Opts struct {
	FlushDelay  time.Duration
	CacheTTL    time.Duration
	MaxHydrated int // 0 means unlimited
	Monitor     MemoryMonitor
	Now         func() time.Time
	Location    *time.Location
	Rand        selection.RandSource
}

// Option defines a configuration option for the engine.
type Option func(*Opts)

// WithFlushDelay sets the batching window for progress writes.
func WithFlushDelay(d time.Duration) Option {
	return func(o *Opts) { o.FlushDelay = d }
}

// WithCacheTTL sets the lifetime of cached selection and stats results. Zero disables caching.
func WithCacheTTL(d time.Duration) Option {
	return func(o *Opts) { o.CacheTTL = d }
}

// WithMaxHydrated caps how many packs keep their progress in memory.
func WithMaxHydrated(n int) Option {
	return func(o *Opts) { o.MaxHydrated = n }
}

// WithMemoryMonitor replaces the heap-based memory pressure check.
func WithMemoryMonitor(m MemoryMonitor) Option {
	return func(o *Opts) { o.Monitor = m }
}

// WithClock overrides the engine clock.
func WithClock(now func() time.Time) Option {
	return func(o *Opts) { o.Now = now }
}

// WithLocation sets the timezone for date-based day matching.
func WithLocation(loc *time.Location) Option {
	return func(o *Opts) { o.Location = loc }
}

// WithRandSource injects the random source for random packs.
func WithRandSource(src selection.RandSource) Option {
	return func(o *Opts) { o.Rand = src }
}
