package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"ilp-go/internal/ilp"
)

// Config represents the main configuration for ilp.
type Config struct {
	InstanceID   string             `toml:"instance_id"`
	BaseDir      string             `toml:"base_dir"`
	LogDir       string             `toml:"log_dir"`
	Database     DatabaseConfig     `toml:"database"`
	Archive      ArchiveConfig      `toml:"archive"`
	Encryption   EncryptionConfig   `toml:"encryption"`
	Spool        SpoolConfig        `toml:"spool"`
	Cache        CacheConfig        `toml:"cache"`
	Provisioning ProvisioningConfig `toml:"provisioning"`
	Grading      GradingConfig      `toml:"grading"`
}

// EncryptionConfig holds paths to the age key pair used for archived payloads.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "age" (default), "test" or "none"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// ArchiveConfig represents configuration for the payload archive.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type ArchiveConfig struct {
	Type string `toml:"type"` // "memory", "filesystem", "s3" or "none"
	Name string `toml:"name"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSRoot string `toml:"fs_root,omitempty"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket          string `toml:"s3_bucket,omitempty"`
	S3Prefix          string `toml:"s3_prefix,omitempty"`
	S3Region          string `toml:"s3_region,omitempty"`
	S3Endpoint        string `toml:"s3_endpoint,omitempty"`
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`
}

// DatabaseConfig represents configuration for the course store.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// SpoolConfig represents configuration for the request spool.
type SpoolConfig struct {
	Type     string `toml:"type"`                // "memory" or "filesystem"
	SpoolDir string `toml:"spool_dir,omitempty"` // only used for type=filesystem
	MaxSize  int64  `toml:"max_size"`            // max total size in bytes; defaults to 1MB
}

// CacheConfig represents configuration for context cache invalidation.
type CacheConfig struct {
	Type      string `toml:"type"` // "memory" or "redis"
	RedisAddr string `toml:"redis_addr,omitempty"`
	RedisKey  string `toml:"redis_key,omitempty"`
}

// ProvisioningConfig holds the platform settings the course components read.
type ProvisioningConfig struct {
	DefaultCategory           int64          `toml:"default_category"`
	ModifySectionVisibility   *bool          `toml:"modify_section_visibility,omitempty"`
	ModifyCrosslistVisibility *bool          `toml:"modify_crosslist_visibility,omitempty"`
	CourseDefaults            map[string]any `toml:"course_defaults,omitempty"`
	// CategoryCutoffs maps a category id to an epoch seconds string.
	CategoryCutoffs map[string]string `toml:"category_cutoffs,omitempty"`
}

// GradingConfig controls grade display.
type GradingConfig struct {
	Decimals *int `toml:"decimals,omitempty"` // defaults to 2
}

// DefaultDecimals is the number of decimals shown for real grades.
const DefaultDecimals = 2

// NewConfig creates a new Config with the provided values and default paths.
func NewConfig(instanceID, baseDir string) *Config {
	return &Config{
		InstanceID: instanceID,
		BaseDir:    baseDir,
		LogDir:     filepath.Join(baseDir, "log"),
		Database:   DatabaseConfig{Type: "sqlite", DataDir: filepath.Join(baseDir, "db")},
		Archive:    ArchiveConfig{Type: "filesystem", Name: "local", FSRoot: filepath.Join(baseDir, "archive")},
		Encryption: EncryptionConfig{
			PublicKeyPath:  filepath.Join(baseDir, "keys", "ilp.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "ilp.key"),
		},
		Spool:        SpoolConfig{Type: "filesystem", SpoolDir: filepath.Join(baseDir, "spool")},
		Cache:        CacheConfig{Type: "memory"},
		Provisioning: ProvisioningConfig{DefaultCategory: 1},
	}
}

// Settings converts the provisioning table into ilp.Settings. Missing
// visibility toggles default to true; a missing default category to 1.
func (p ProvisioningConfig) Settings() (ilp.Settings, error) {
	s := ilp.DefaultSettings()
	if p.DefaultCategory != 0 {
		s.DefaultCategoryID = p.DefaultCategory
	}
	if p.ModifySectionVisibility != nil {
		s.ModifySectionVisibility = *p.ModifySectionVisibility
	}
	if p.ModifyCrosslistVisibility != nil {
		s.ModifyCrosslistVisibility = *p.ModifyCrosslistVisibility
	}

	if len(p.CourseDefaults) > 0 {
		s.CourseDefaults = make(map[string]string, len(p.CourseDefaults))
		for name, v := range p.CourseDefaults {
			s.CourseDefaults[strings.ToLower(name)] = fmt.Sprint(v)
		}
	}

	if len(p.CategoryCutoffs) > 0 {
		s.CategoryCutoffs = make(map[int64]int64, len(p.CategoryCutoffs))
		keys := make([]string, 0, len(p.CategoryCutoffs))
		for k := range p.CategoryCutoffs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			id, err := strconv.ParseInt(strings.TrimSpace(k), 10, 64)
			if err != nil {
				return ilp.Settings{}, fmt.Errorf("invalid category id in category_cutoffs: %q", k)
			}
			cutoff, err := strconv.ParseInt(strings.TrimSpace(p.CategoryCutoffs[k]), 10, 64)
			if err != nil {
				return ilp.Settings{}, fmt.Errorf("invalid cutoff for category %d: %q", id, p.CategoryCutoffs[k])
			}
			s.CategoryCutoffs[id] = cutoff
		}
	}
	return s, nil
}

// GradeDecimals returns the configured decimals, or DefaultDecimals.
func (g GradingConfig) GradeDecimals() int {
	if g.Decimals == nil {
		return DefaultDecimals
	}
	return *g.Decimals
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// The file may carry S3 credentials.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
