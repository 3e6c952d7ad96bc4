package archive

import (
	"testing"

	"ilp-go/internal/config"
)

func TestNewArchiveFromConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.ArchiveConfig
		wantErr bool
		wantNil bool
	}{
		{
			name: "memory archive",
			cfg:  config.ArchiveConfig{Type: "memory", Name: "test-memory"},
		},
		{
			name: "filesystem archive",
			cfg:  config.ArchiveConfig{Type: "filesystem", Name: "test-fs", FSRoot: t.TempDir()},
		},
		{
			name:    "filesystem archive without root",
			cfg:     config.ArchiveConfig{Type: "filesystem", Name: "test-fs"},
			wantErr: true,
			wantNil: true,
		},
		{
			name:    "s3 archive without bucket",
			cfg:     config.ArchiveConfig{Type: "s3", Name: "test-s3"},
			wantErr: true,
			wantNil: true,
		},
		{
			name:    "archiving disabled",
			cfg:     config.ArchiveConfig{Type: "none"},
			wantNil: true,
		},
		{
			name:    "unknown archive type",
			cfg:     config.ArchiveConfig{Type: "unknown", Name: "test-unknown"},
			wantErr: true,
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewArchiveFromConfig(tt.cfg)

			if (err != nil) != tt.wantErr {
				t.Errorf("NewArchiveFromConfig() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if (got == nil) != tt.wantNil {
				t.Errorf("NewArchiveFromConfig() returned nil = %v, wantNil %v", got == nil, tt.wantNil)
			}

			if !tt.wantErr && got != nil {
				if err := got.ValidateSetup(); err != nil {
					t.Errorf("ValidateSetup() error = %v", err)
				}
			}
		})
	}
}

func TestNewS3Archive_Key(t *testing.T) {
	a, err := NewS3Archive(config.ArchiveConfig{
		Type: "s3", Name: "remote", S3Bucket: "b", S3Prefix: "ilp/payloads", S3Region: "us-east-1",
		S3AccessKeyID: "AKID", S3SecretAccessKey: "secret", S3Endpoint: "http://127.0.0.1:9000",
	})
	if err != nil {
		t.Fatalf("NewS3Archive() error = %v", err)
	}
	if got, want := a.key("req-1", "request"), "ilp/payloads/req-1/request"; got != want {
		t.Errorf("key() = %q, want %q", got, want)
	}
}
