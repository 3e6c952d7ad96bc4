package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestManager_ReadWrite_RoundTrip(t *testing.T) {
	off := false
	decimals := 1
	original := &Config{
		InstanceID: "test-instance-abc",
		BaseDir:    "/home/user/.local/share/ilp",
		LogDir:     "/home/user/.local/share/ilp/log",
		Archive: ArchiveConfig{
			Type: "s3", Name: "remote", S3Bucket: "ilp-archive", S3Prefix: "payloads", S3Region: "us-east-1",
		},
		Encryption: EncryptionConfig{
			PublicKeyPath:  "/home/user/.local/share/ilp/keys/ilp.pub",
			PrivateKeyPath: "/home/user/.local/share/ilp/keys/ilp.key",
		},
		Database: DatabaseConfig{Type: "sqlite", DataDir: "/home/user/.local/share/ilp/db"},
		Spool:    SpoolConfig{Type: "memory", MaxSize: 2048},
		Cache:    CacheConfig{Type: "redis", RedisAddr: "localhost:6379", RedisKey: "ilp:dirty"},
		Provisioning: ProvisioningConfig{
			DefaultCategory:         7,
			ModifySectionVisibility: &off,
			CourseDefaults:          map[string]any{"format": "topics"},
			CategoryCutoffs:         map[string]string{"12": "1700000000"},
		},
		Grading: GradingConfig{Decimals: &decimals},
	}

	var buf bytes.Buffer
	m := &Manager{}

	if err := m.Write(&buf, original); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := m.Read(&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if got.InstanceID != original.InstanceID {
		t.Errorf("InstanceID = %q, want %q", got.InstanceID, original.InstanceID)
	}
	if got.LogDir != original.LogDir {
		t.Errorf("LogDir = %q, want %q", got.LogDir, original.LogDir)
	}
	if got.Archive.Type != "s3" || got.Archive.S3Bucket != "ilp-archive" {
		t.Errorf("Archive = %+v, want s3 bucket ilp-archive", got.Archive)
	}
	if got.Encryption.PrivateKeyPath != original.Encryption.PrivateKeyPath {
		t.Errorf("Encryption.PrivateKeyPath = %q, want %q", got.Encryption.PrivateKeyPath, original.Encryption.PrivateKeyPath)
	}
	if got.Spool.MaxSize != 2048 {
		t.Errorf("Spool.MaxSize = %d, want %d", got.Spool.MaxSize, 2048)
	}
	if got.Cache.RedisKey != "ilp:dirty" {
		t.Errorf("Cache.RedisKey = %q, want %q", got.Cache.RedisKey, "ilp:dirty")
	}
	if got.Provisioning.ModifySectionVisibility == nil || *got.Provisioning.ModifySectionVisibility {
		t.Errorf("ModifySectionVisibility = %v, want false", got.Provisioning.ModifySectionVisibility)
	}
	if got.Provisioning.ModifyCrosslistVisibility != nil {
		t.Errorf("ModifyCrosslistVisibility = %v, want unset", *got.Provisioning.ModifyCrosslistVisibility)
	}
	if got.Provisioning.CategoryCutoffs["12"] != "1700000000" {
		t.Errorf("CategoryCutoffs = %v", got.Provisioning.CategoryCutoffs)
	}
	if got.Grading.GradeDecimals() != 1 {
		t.Errorf("GradeDecimals() = %d, want 1", got.Grading.GradeDecimals())
	}
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig("instance-1", "/data/ilp")

	if cfg.InstanceID != "instance-1" {
		t.Errorf("InstanceID = %q, want %q", cfg.InstanceID, "instance-1")
	}
	if cfg.LogDir != "/data/ilp/log" {
		t.Errorf("LogDir = %q, want %q", cfg.LogDir, "/data/ilp/log")
	}
	if cfg.Database.DataDir != "/data/ilp/db" {
		t.Errorf("Database.DataDir = %q, want %q", cfg.Database.DataDir, "/data/ilp/db")
	}
	if cfg.Encryption.PublicKeyPath != "/data/ilp/keys/ilp.pub" {
		t.Errorf("Encryption.PublicKeyPath = %q, want %q", cfg.Encryption.PublicKeyPath, "/data/ilp/keys/ilp.pub")
	}
	if cfg.Spool.SpoolDir != "/data/ilp/spool" {
		t.Errorf("Spool.SpoolDir = %q, want %q", cfg.Spool.SpoolDir, "/data/ilp/spool")
	}
	if cfg.Grading.GradeDecimals() != DefaultDecimals {
		t.Errorf("GradeDecimals() = %d, want %d", cfg.Grading.GradeDecimals(), DefaultDecimals)
	}
}

func TestProvisioningConfig_Settings(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		s, err := ProvisioningConfig{}.Settings()
		if err != nil {
			t.Fatalf("Settings() error = %v", err)
		}
		if s.DefaultCategoryID != 1 {
			t.Errorf("DefaultCategoryID = %d, want 1", s.DefaultCategoryID)
		}
		if !s.ModifySectionVisibility || !s.ModifyCrosslistVisibility {
			t.Errorf("visibility toggles = %v/%v, want true/true", s.ModifySectionVisibility, s.ModifyCrosslistVisibility)
		}
	})

	t.Run("converts tables", func(t *testing.T) {
		off := false
		p := ProvisioningConfig{
			DefaultCategory:           4,
			ModifyCrosslistVisibility: &off,
			CourseDefaults:            map[string]any{"NumSections": int64(14), "format": "topics"},
			CategoryCutoffs:           map[string]string{"3": " 1700000000 "},
		}
		s, err := p.Settings()
		if err != nil {
			t.Fatalf("Settings() error = %v", err)
		}
		if s.DefaultCategoryID != 4 {
			t.Errorf("DefaultCategoryID = %d, want 4", s.DefaultCategoryID)
		}
		if s.ModifyCrosslistVisibility {
			t.Error("ModifyCrosslistVisibility = true, want false")
		}
		if s.CourseDefaults["numsections"] != "14" {
			t.Errorf("CourseDefaults[numsections] = %q, want %q", s.CourseDefaults["numsections"], "14")
		}
		if s.CategoryCutoffs[3] != 1700000000 {
			t.Errorf("CategoryCutoffs[3] = %d, want 1700000000", s.CategoryCutoffs[3])
		}
	})

	t.Run("rejects invalid cutoff", func(t *testing.T) {
		p := ProvisioningConfig{CategoryCutoffs: map[string]string{"3": "soon"}}
		_, err := p.Settings()
		if err == nil || !strings.Contains(err.Error(), "category 3") {
			t.Fatalf("Settings() error = %v, want invalid cutoff for category 3", err)
		}
	})

	t.Run("rejects invalid category id", func(t *testing.T) {
		p := ProvisioningConfig{CategoryCutoffs: map[string]string{"misc": "1"}}
		if _, err := p.Settings(); err == nil {
			t.Fatal("Settings() expected error for non-numeric category id")
		}
	})
}

func TestInit(t *testing.T) {
	t.Run("creates config file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "ilp.toml")
		cfg := NewConfig("i1", dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("config file not created: %v", err)
		}
		if info.Mode().Perm() != 0600 {
			t.Errorf("config file mode = %v, want 0600", info.Mode().Perm())
		}
	})

	t.Run("fails if file already exists", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "ilp.toml")
		cfg := NewConfig("i1", dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("first Init() error = %v", err)
		}

		if err := Init(path, cfg); err == nil {
			t.Fatal("second Init() expected error")
		}
	})
}

func TestReadFromFile(t *testing.T) {
	t.Run("reads valid config", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "ilp.toml")
		cfg := NewConfig("read-test", dir)
		cfg.Database = DatabaseConfig{Type: "memory"}

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		got, err := ReadFromFile(path)
		if err != nil {
			t.Fatalf("ReadFromFile() error = %v", err)
		}
		if got.InstanceID != "read-test" {
			t.Errorf("InstanceID = %q, want %q", got.InstanceID, "read-test")
		}
		if got.Database.Type != "memory" {
			t.Errorf("Database.Type = %q, want %q", got.Database.Type, "memory")
		}
	})

	t.Run("reads hand-written provisioning table", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "ilp.toml")
		content := `
instance_id = "hand"

[provisioning]
default_category = 2
modify_section_visibility = false

[provisioning.course_defaults]
numsections = 16
format = "topics"

[provisioning.category_cutoffs]
"5" = "1704067200"
`
		if err := os.WriteFile(path, []byte(content), 0600); err != nil {
			t.Fatal(err)
		}

		got, err := ReadFromFile(path)
		if err != nil {
			t.Fatalf("ReadFromFile() error = %v", err)
		}
		s, err := got.Provisioning.Settings()
		if err != nil {
			t.Fatalf("Settings() error = %v", err)
		}
		if s.DefaultCategoryID != 2 || s.ModifySectionVisibility {
			t.Errorf("settings = %+v", s)
		}
		if s.CourseDefaults["numsections"] != "16" || s.CourseDefaults["format"] != "topics" {
			t.Errorf("CourseDefaults = %v", s.CourseDefaults)
		}
		if s.CategoryCutoffs[5] != 1704067200 {
			t.Errorf("CategoryCutoffs = %v", s.CategoryCutoffs)
		}
	})

	t.Run("returns error for missing file", func(t *testing.T) {
		if _, err := ReadFromFile("/nonexistent/path/ilp.toml"); err == nil {
			t.Fatal("ReadFromFile() expected error for missing file")
		}
	})
}
