package spool

import (
	"fmt"

	"ilp-go/internal/config"
	"ilp-go/internal/ilp"
)

// DefaultMaxSize is the default maximum spool size (1MB).
const DefaultMaxSize int64 = 1024 * 1024

// NewSpoolFromConfig creates a Spool implementation based on the config type.
func NewSpoolFromConfig(cfg config.SpoolConfig) (ilp.Spool, error) {
	maxSize := cfg.MaxSize
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}

	switch cfg.Type {
	case "memory":
		return NewMemorySpool(maxSize), nil
	case "filesystem":
		if cfg.SpoolDir == "" {
			return nil, fmt.Errorf("filesystem spool requires spool_dir to be set")
		}
		return NewFileSystemSpool(cfg.SpoolDir, maxSize)
	default:
		return nil, fmt.Errorf("unknown spool type: %s", cfg.Type)
	}
}
