package core

import "time"

const (
	OneKilobyte = 1024
	OneMegabyte = 1024 * OneKilobyte // 1024 (1KB) * 1024 => 1MB

	ManifestFileName = "MANIFEST"

	DefaultDataFileSizeMB = 64
	MaximumDataFileSizeMB = 256

	DefaultSyncInterval = 15 * time.Second

	DefaultMaxKeySize   = 64 * OneKilobyte
	DefaultMaxValueSize = MaximumDataFileSizeMB * OneMegabyte

	DefaultGarbageRatio           = 0.4
	DefaultMinTotalSizeForMergeMB = 256
	DefaultCompactCheckInterval   = 5 * time.Second
)
