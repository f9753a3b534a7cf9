package crowd

import "github.com/okian/ovation/pkg/logger"

// Option applies a configuration option to the Crowd.
type Option func(*Crowd)

// WithParams replaces the default tuning. New validates it.
func WithParams(p Params) Option {
	return func(c *Crowd) {
		c.params = p
	}
}

// WithPopulation overrides only the population size.
func WithPopulation(n int) Option {
	return func(c *Crowd) {
		c.params.Population = n
	}
}

// WithLogger sets a custom logger for the crowd.
func WithLogger(l logger.Logger) Option {
	return func(c *Crowd) {
		if l != nil {
			c.logger = l
		}
	}
}
