package core

import (
	"time"

	"go.uber.org/zap"
)

// Options configures a DB. Use DefaultOptions and the With* helpers rather
// than filling it in by hand.
type Options struct {
	Logger     *zap.SugaredLogger
	Serializer Serializer
	Registry   *Registry

	// Default is consulted by DB.Get for missing keys. Its result is stored
	// under the key.
	Default func(key any) any

	SyncInterval      time.Duration // 0 disables periodic fsync
	CompactInterval   time.Duration // 0 disables auto compaction
	GarbageRatio      float64
	MinCompactLogsize int

	RetryDelay time.Duration
}

type Option func(*Options)

func DefaultOptions() *Options {
	return &Options{
		Logger:            zap.NewNop().Sugar(),
		Serializer:        NewTagged(),
		GarbageRatio:      DefaultGarbageRatio,
		MinCompactLogsize: DefaultMinCompactLogsize,
		RetryDelay:        DefaultRetryDelay,
	}
}

func WithLogger(log *zap.SugaredLogger) Option {
	return func(o *Options) {
		if log != nil {
			o.Logger = log
		}
	}
}

func WithSerializer(s Serializer) Option {
	return func(o *Options) {
		if s != nil {
			o.Serializer = s
		}
	}
}

// WithRegistry adds the DB to r on open. It is removed again on Close.
func WithRegistry(r *Registry) Option {
	return func(o *Options) {
		o.Registry = r
	}
}

// WithDefault makes Get return (and store) value for missing keys.
func WithDefault(value any) Option {
	return func(o *Options) {
		o.Default = func(any) any { return value }
	}
}

// WithDefaultFunc computes the value Get stores for a missing key.
func WithDefaultFunc(fn func(key any) any) Option {
	return func(o *Options) {
		o.Default = fn
	}
}

// WithSyncInterval fsyncs the journal every d. Intervals below
// MinimumSyncInterval are raised to it.
func WithSyncInterval(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 && d < MinimumSyncInterval {
			d = MinimumSyncInterval
		}
		o.SyncInterval = d
	}
}

// WithAutoCompact checks every interval whether the share of dead records in
// the log exceeds ratio, and compacts if it does. ratio is clamped to
// [MinGarbageRatio, MaxGarbageRatio].
func WithAutoCompact(interval time.Duration, ratio float64) Option {
	return func(o *Options) {
		if interval > 0 && interval < MinimumCompactInterval {
			interval = MinimumCompactInterval
		}
		o.CompactInterval = interval
		o.GarbageRatio = clampGarbageRatio(ratio)
	}
}

// WithMinCompactLogsize sets how many records the log must hold before auto
// compaction considers it.
func WithMinCompactLogsize(n int) Option {
	return func(o *Options) {
		if n >= 0 {
			o.MinCompactLogsize = n
		}
	}
}

// WithRetryDelay sets the base delay between write retries. The n-th retry
// waits n times this long.
func WithRetryDelay(d time.Duration) Option {
	return func(o *Options) {
		if d >= 0 {
			o.RetryDelay = d
		}
	}
}

func clampGarbageRatio(ratio float64) float64 {
	switch {
	case ratio < MinGarbageRatio:
		return MinGarbageRatio
	case ratio > MaxGarbageRatio:
		return MaxGarbageRatio
	default:
		return ratio
	}
}
