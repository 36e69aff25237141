package core

import "time"

const (
	OneKilobyte = 1024
	OneMegabyte = 1024 * OneKilobyte // 1024 (1KB) * 1024 => 1MB

	DefaultDatabaseFile = "daybreak.db"

	DefaultSyncInterval = 15 * time.Second
	MinimumSyncInterval = 1 * time.Second

	DefaultCompactInterval = 60 * time.Second
	MinimumCompactInterval = 1 * time.Second

	DefaultGarbageRatio = 0.4
	MinGarbageRatio     = 0.33
	MaxGarbageRatio     = 0.75

	// Auto compaction never runs on a log with fewer records than this
	DefaultMinCompactLogsize = 1000

	// Retries after the first failed append of a batch
	MaxWriteRetries   = 3
	DefaultRetryDelay = 50 * time.Millisecond

	// Tagged payloads larger than this are stored zstd compressed
	DefaultCompressAbove = 4 * OneKilobyte
)
