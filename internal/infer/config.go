package infer

import (
	"github.com/sirupsen/logrus"

	"github.com/yourorg/apiscout/internal/config"
	"github.com/yourorg/apiscout/internal/logging"
)

// Config holds the heuristic cutoffs of the engine.
type Config struct {
	// MultiplesThreshold is the share of values that must be divisible by a
	// candidate difference for a multiple-of domain.
	MultiplesThreshold float64
	// ArithmeticThreshold is the share of successive differences that must
	// equal the most frequent one for an arithmetic domain.
	ArithmeticThreshold float64
	// ResponseSampleSize is how many elements of an array response are kept.
	ResponseSampleSize int
	Logger             logrus.FieldLogger
}

func DefaultConfig() *Config {
	return &Config{
		MultiplesThreshold:  0.8,
		ArithmeticThreshold: 0.8,
		ResponseSampleSize:  3,
		Logger:              logging.Discard(),
	}
}

type Option func(*Config)

func WithMultiplesThreshold(threshold float64) Option {
	return func(c *Config) {
		c.MultiplesThreshold = threshold
	}
}

func WithArithmeticThreshold(threshold float64) Option {
	return func(c *Config) {
		c.ArithmeticThreshold = threshold
	}
}

func WithResponseSampleSize(n int) Option {
	return func(c *Config) {
		c.ResponseSampleSize = n
	}
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Config) {
		if l != nil {
			c.Logger = l
		}
	}
}

// FromConfig maps the inference section of the application config.
func FromConfig(cfg config.InferenceConfig) []Option {
	return []Option{
		WithMultiplesThreshold(cfg.MultiplesThreshold),
		WithArithmeticThreshold(cfg.ArithmeticThreshold),
		WithResponseSampleSize(cfg.ResponseSampleSize),
	}
}
