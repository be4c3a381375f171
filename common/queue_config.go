package common

import (
	"context"
	"time"

	"fragment-loader/internal/fetchqueue"
)

// QueueConfig is the fetch queue tuning shared by the worker and the CLI.
type QueueConfig struct {
	MaxConcurrent  int
	MaxRetries     int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	AttemptTimeout time.Duration
}

// DefaultQueueConfig mirrors fetchqueue's defaults plus a 30s attempt timeout.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		MaxConcurrent:  fetchqueue.DefaultMaxConcurrent,
		MaxRetries:     fetchqueue.DefaultMaxRetries,
		BaseDelay:      fetchqueue.DefaultBaseDelay,
		AttemptTimeout: 30 * time.Second,
	}
}

// QueueConfigFromEnv reads FETCH_MAX_CONCURRENT, FETCH_MAX_RETRIES,
// FETCH_BASE_DELAY, FETCH_MAX_DELAY and FETCH_ATTEMPT_TIMEOUT.
func QueueConfigFromEnv() QueueConfig {
	def := DefaultQueueConfig()
	return QueueConfig{
		MaxConcurrent:  ParseInt(GetEnv("FETCH_MAX_CONCURRENT", ""), def.MaxConcurrent),
		MaxRetries:     ParseInt(GetEnv("FETCH_MAX_RETRIES", ""), def.MaxRetries),
		BaseDelay:      ParseDuration(GetEnv("FETCH_BASE_DELAY", ""), def.BaseDelay),
		MaxDelay:       ParseDuration(GetEnv("FETCH_MAX_DELAY", ""), def.MaxDelay),
		AttemptTimeout: ParseDuration(GetEnv("FETCH_ATTEMPT_TIMEOUT", ""), def.AttemptTimeout),
	}
}

// Options converts the config into fetchqueue options. Invalid values are
// reported by fetchqueue.New.
func (c QueueConfig) Options() []fetchqueue.Option {
	return []fetchqueue.Option{
		fetchqueue.WithMaxConcurrent(c.MaxConcurrent),
		fetchqueue.WithMaxRetries(c.MaxRetries),
		fetchqueue.WithBaseDelay(c.BaseDelay),
		fetchqueue.WithMaxDelay(c.MaxDelay),
		fetchqueue.WithAttemptTimeout(c.AttemptTimeout),
	}
}

// Validate reports the first invalid field, using the same checks as fetchqueue.New.
func (c QueueConfig) Validate() error {
	noop := fetchqueue.FetcherFunc(func(context.Context, string) ([]byte, error) { return nil, nil })
	_, err := fetchqueue.New(noop, c.Options()...)
	return err
}
