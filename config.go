package tcpreactor

import "time"

// Config holds the tunables from spec.md §6's configuration parameter
// table, applied via functional Options following the teacher's
// options.go idiom.
type Config struct {
	NumWorkerThreads  int
	HighWaterMark     int
	LogRollSize       int64
	LogFlushInterval  time.Duration
	ReconnectInterval time.Duration
}

func defaultConfig() Config {
	return Config{
		NumWorkerThreads:  0,
		HighWaterMark:     64 * 1024 * 1024,
		LogRollSize:       defaultLogRollSize,
		LogFlushInterval:  defaultFlushInterval,
		ReconnectInterval: 3 * time.Second,
	}
}

// Option configures a Config.
type Option func(*Config)

func WithNumWorkerThreads(n int) Option {
	return func(c *Config) { c.NumWorkerThreads = n }
}

func WithHighWaterMark(bytes int) Option {
	return func(c *Config) { c.HighWaterMark = bytes }
}

func WithLogRollSize(bytes int64) Option {
	return func(c *Config) { c.LogRollSize = bytes }
}

func WithLogFlushInterval(d time.Duration) Option {
	return func(c *Config) { c.LogFlushInterval = d }
}

func WithReconnectInterval(d time.Duration) Option {
	return func(c *Config) { c.ReconnectInterval = d }
}
