package worklet

import "time"

// Config is the explicit configuration record spec.md §9's design note
// calls for, replacing the corpus's hashtable-of-typed-values with named
// fields that are rejected at construction time if unknown (there is no way
// to express an unknown field — the struct has exactly these and no more).
type Config struct {
	// EventFreq is how many pop attempts a Scheduler makes before it calls
	// hasToStop to look at its own request bits (spec.md §4.3).
	EventFreq uint32
	// BasicFreq overrides EventFreq for the built-in "basic" scheduler kind
	// specifically; nil means "use EventFreq".
	BasicFreq *uint32
	// SleepDuration is how long the scheduler naps when a pass found no
	// work and sleep is enabled.
	SleepDuration time.Duration
	// Affinity records CPU ids as a hint. It is stored and read back by
	// Get/ForEach only; no stream or thread is pinned to these CPUs.
	Affinity []int
	// Automatic controls whether a scheduler retired by a Replace swap is
	// freed (its custom ops' Free runs) by the loop that applies the swap
	// (spec.md §3, Scheduler lifetime).
	Automatic bool
}

// ConfigOption mutates a Config under construction.
type ConfigOption func(*Config)

// WithEventFreq sets the pop-attempts-before-hasToStop threshold.
func WithEventFreq(n uint32) ConfigOption {
	return func(c *Config) { c.EventFreq = n }
}

// WithBasicFreq overrides EventFreq for the basic scheduler kind.
func WithBasicFreq(n uint32) ConfigOption {
	return func(c *Config) { c.BasicFreq = &n }
}

// WithSleep sets the idle-sleep duration.
func WithSleep(d time.Duration) ConfigOption {
	return func(c *Config) { c.SleepDuration = d }
}

// WithAffinity sets CPU affinity hints.
func WithAffinity(cpus ...int) ConfigOption {
	return func(c *Config) { c.Affinity = cpus }
}

// WithAutomatic sets whether the scheduler frees itself automatically.
func WithAutomatic(auto bool) ConfigOption {
	return func(c *Config) { c.Automatic = auto }
}

// defaultConfig matches the corpus's defaults: check events every 10 pops,
// no forced sleep, automatic cleanup on.
func defaultConfig() Config {
	return Config{
		EventFreq:     10,
		SleepDuration: 0,
		Automatic:     true,
	}
}

// NewConfig builds a Config from defaults plus the given options.
func NewConfig(opts ...ConfigOption) Config {
	c := defaultConfig()
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Get reads back a named field by key, mirroring sched_config.c's
// ABT_sched_config_read (see SPEC_FULL.md §6 supplemented features). Keys
// are event_freq, basic_freq, sleep_nsec, automatic and affinity; returns
// (value, ok).
func (c Config) Get(key string) (any, bool) {
	switch key {
	case "event_freq":
		return c.EventFreq, true
	case "basic_freq":
		if c.BasicFreq == nil {
			return nil, false
		}
		return *c.BasicFreq, true
	case "sleep_nsec":
		return c.SleepDuration.Nanoseconds(), true
	case "automatic":
		return c.Automatic, true
	case "affinity":
		return c.Affinity, true
	default:
		return nil, false
	}
}

// ForEach calls fn for every set field, in a fixed order, mirroring the
// corpus's config read-back iteration.
func (c Config) ForEach(fn func(key string, val any)) {
	fn("event_freq", c.EventFreq)
	if c.BasicFreq != nil {
		fn("basic_freq", *c.BasicFreq)
	}
	fn("sleep_nsec", c.SleepDuration.Nanoseconds())
	fn("automatic", c.Automatic)
	if len(c.Affinity) > 0 {
		fn("affinity", c.Affinity)
	}
}
