package spool

import (
	"io"
	"strings"
	"testing"

	"ilp-go/internal/config"
	"ilp-go/internal/ilp"
)

// spoolFactories runs each test against both stores.
var spoolFactories = map[string]func(t *testing.T, maxSize int64) ilp.Spool{
	"memory": func(t *testing.T, maxSize int64) ilp.Spool {
		return NewMemorySpool(maxSize)
	},
	"filesystem": func(t *testing.T, maxSize int64) ilp.Spool {
		s, err := NewFileSystemSpool(t.TempDir(), maxSize)
		if err != nil {
			t.Fatalf("NewFileSystemSpool() error = %v", err)
		}
		return s
	},
}

func addPayload(t *testing.T, s ilp.Spool, name, payload string) *ilp.SpoolItem {
	t.Helper()
	item, err := s.Add(name, strings.NewReader(payload))
	if err != nil {
		t.Fatalf("Add(%s) error = %v", name, err)
	}
	return item
}

func readItem(t *testing.T, s ilp.Spool, item *ilp.SpoolItem) string {
	t.Helper()
	r, err := s.Open(item)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("reading item: %v", err)
	}
	return string(data)
}

func TestSpool_Add(t *testing.T) {
	for name, newSpool := range spoolFactories {
		t.Run(name, func(t *testing.T) {
			t.Run("adds an item and increments count", func(t *testing.T) {
				s := newSpool(t, 1024)
				item := addPayload(t, s, "create.xml", "hello")

				if item.Size != 5 {
					t.Errorf("item.Size = %d, want 5", item.Size)
				}
				if item.QueuedAt.IsZero() {
					t.Error("item.QueuedAt is zero")
				}
				count, err := s.Count()
				if err != nil {
					t.Fatalf("Count() error = %v", err)
				}
				if count != 1 {
					t.Errorf("Count() = %d, want 1", count)
				}
			})

			t.Run("deduplicates identical content", func(t *testing.T) {
				s := newSpool(t, 1024)
				payload := "same payload"
				a := addPayload(t, s, "a.xml", payload)
				b := addPayload(t, s, "b.xml", payload)

				if a.Checksum != b.Checksum {
					t.Errorf("checksums differ: %s vs %s", a.Checksum, b.Checksum)
				}
				count, _ := s.Count()
				if count != 2 {
					t.Errorf("Count() = %d, want 2", count)
				}
				size, _ := s.Size()
				if size != int64(len(payload)) {
					t.Errorf("Size() = %d, want %d (deduped)", size, len(payload))
				}
			})

			t.Run("rejects payloads past the size limit", func(t *testing.T) {
				s := newSpool(t, 10)
				addPayload(t, s, "small.xml", "hi")

				_, err := s.Add("big.xml", strings.NewReader("this is way too big"))
				if err == nil {
					t.Fatal("Add() expected error when exceeding size limit")
				}
				if !strings.Contains(err.Error(), "spool full") {
					t.Errorf("error = %v, want 'spool full'", err)
				}
				size, _ := s.Size()
				if size != 2 {
					t.Errorf("Size() after rejection = %d, want 2", size)
				}
			})

			t.Run("rejected payload leaves earlier items intact", func(t *testing.T) {
				s := newSpool(t, 12)
				first := addPayload(t, s, "a.xml", "twelve bytes")
				if _, err := s.Add("b.xml", strings.NewReader("x")); err == nil {
					t.Fatal("Add() expected error when exceeding size limit")
				}
				if got := readItem(t, s, first); got != "twelve bytes" {
					t.Errorf("payload = %q, want %q", got, "twelve bytes")
				}
				count, _ := s.Count()
				if count != 1 {
					t.Errorf("Count() = %d, want 1", count)
				}
			})
		})
	}
}

func TestSpool_NextAndRemove(t *testing.T) {
	for name, newSpool := range spoolFactories {
		t.Run(name, func(t *testing.T) {
			t.Run("empty spool returns nil", func(t *testing.T) {
				s := newSpool(t, 1024)
				item, err := s.Next()
				if err != nil {
					t.Fatalf("Next() error = %v", err)
				}
				if item != nil {
					t.Errorf("Next() = %+v, want nil", item)
				}
			})

			t.Run("returns items oldest first", func(t *testing.T) {
				s := newSpool(t, 1024)
				addPayload(t, s, "first.xml", "one")
				addPayload(t, s, "second.xml", "two")

				item, err := s.Next()
				if err != nil {
					t.Fatalf("Next() error = %v", err)
				}
				if item.Name != "first.xml" {
					t.Fatalf("Next().Name = %q, want first.xml", item.Name)
				}
				if got := readItem(t, s, item); got != "one" {
					t.Errorf("payload = %q, want %q", got, "one")
				}

				if err := s.Remove(item); err != nil {
					t.Fatalf("Remove() error = %v", err)
				}
				item, _ = s.Next()
				if item == nil || item.Name != "second.xml" {
					t.Fatalf("Next() after Remove = %+v, want second.xml", item)
				}
			})

			t.Run("remove keeps content still referenced", func(t *testing.T) {
				s := newSpool(t, 1024)
				a := addPayload(t, s, "a.xml", "shared")
				b := addPayload(t, s, "b.xml", "shared")

				if err := s.Remove(a); err != nil {
					t.Fatalf("Remove() error = %v", err)
				}
				if got := readItem(t, s, b); got != "shared" {
					t.Errorf("payload = %q, want %q", got, "shared")
				}

				if err := s.Remove(b); err != nil {
					t.Fatalf("Remove() error = %v", err)
				}
				size, _ := s.Size()
				if size != 0 {
					t.Errorf("Size() after removing all = %d, want 0", size)
				}
			})
		})
	}
}

func TestFileSystemSpool_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileSystemSpool(dir, 1024)
	if err != nil {
		t.Fatalf("NewFileSystemSpool() error = %v", err)
	}
	addPayload(t, s, "queued.xml", "<request/>")

	reopened, err := NewFileSystemSpool(dir, 1024)
	if err != nil {
		t.Fatalf("NewFileSystemSpool() reopen error = %v", err)
	}
	item, err := reopened.Next()
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if item == nil || item.Name != "queued.xml" {
		t.Fatalf("Next() = %+v, want queued.xml", item)
	}
	if got := readItem(t, reopened, item); got != "<request/>" {
		t.Errorf("payload = %q, want %q", got, "<request/>")
	}
}

func TestNewSpoolFromConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.SpoolConfig
		wantErr bool
	}{
		{name: "memory", cfg: config.SpoolConfig{Type: "memory"}},
		{name: "filesystem", cfg: config.SpoolConfig{Type: "filesystem", SpoolDir: t.TempDir()}},
		{name: "filesystem without dir", cfg: config.SpoolConfig{Type: "filesystem"}, wantErr: true},
		{name: "unknown type", cfg: config.SpoolConfig{Type: "kafka"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewSpoolFromConfig(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewSpoolFromConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if sa, ok := s.(*spoolArea); !ok || sa.maxSize != DefaultMaxSize {
				t.Errorf("NewSpoolFromConfig() = %T with default max size, want %d", s, DefaultMaxSize)
			}
		})
	}
}
