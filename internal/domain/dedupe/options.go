package dedupe

type config struct {
	maxSize int
}

// Option applies a configuration option to the in-memory deduper.
type Option func(*config)

// WithMaxSize sets the maximum number of keys kept in memory.
// If maxSize > 0: bounded mode, oldest keys are evicted first.
// If maxSize <= 0: unbounded mode.
func WithMaxSize(maxSize int) Option {
	return func(c *config) {
		c.maxSize = maxSize
	}
}
