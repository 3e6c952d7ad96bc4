package archive

import (
	"fmt"

	"ilp-go/internal/config"
	"ilp-go/internal/ilp"
)

// NewArchiveFromConfig creates an Archive implementation based on the archive
// config type. Type "none" disables archiving and returns a nil Archive.
func NewArchiveFromConfig(cfg config.ArchiveConfig) (ilp.Archive, error) {
	switch cfg.Type {
	case "none":
		return nil, nil
	case "memory":
		return NewMemoryArchive(cfg.Name), nil
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("s3 archive requires s3_bucket to be set")
		}
		return NewS3Archive(cfg)
	case "filesystem":
		if cfg.FSRoot == "" {
			return nil, fmt.Errorf("filesystem archive requires fs_root to be set")
		}
		return NewFileSystemArchive(cfg.Name, cfg.FSRoot)
	default:
		return nil, fmt.Errorf("unknown archive type: %s", cfg.Type)
	}
}
