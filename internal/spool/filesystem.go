package spool

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"ilp-go/internal/ilp"
)

// fileSystemStore keeps payloads on disk so queued requests survive restarts.
//
// Directory structure:
//
//	<spool_dir>/
//	  queue.json    (ordered list of spooled items)
//	  files/
//	    <checksum>  (payload content)
type fileSystemStore struct {
	queuePath string
	filesDir  string
}

// NewFileSystemSpool creates a filesystem-backed spool. maxSize is the
// maximum total payload size in bytes.
func NewFileSystemSpool(spoolDir string, maxSize int64) (ilp.Spool, error) {
	filesDir := filepath.Join(spoolDir, "files")
	if err := os.MkdirAll(filesDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create spool directory: %w", err)
	}
	store := &fileSystemStore{
		queuePath: filepath.Join(spoolDir, "queue.json"),
		filesDir:  filesDir,
	}
	return newSpoolArea(store, maxSize), nil
}

func (f *fileSystemStore) StoreContent(r io.Reader) (string, int64, error) {
	tmp, err := os.CreateTemp(f.filesDir, ".tmp-*")
	if err != nil {
		return "", 0, fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	h := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, h), r)
	if err != nil {
		tmp.Close()
		return "", 0, fmt.Errorf("writing content: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", 0, fmt.Errorf("closing temp file: %w", err)
	}

	checksum := hex.EncodeToString(h.Sum(nil))
	dest := filepath.Join(f.filesDir, checksum)
	if _, err := os.Stat(dest); err == nil {
		return checksum, size, nil
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return "", 0, fmt.Errorf("moving content into place: %w", err)
	}
	return checksum, size, nil
}

func (f *fileSystemStore) RemoveContent(checksum string) {
	os.Remove(filepath.Join(f.filesDir, checksum))
}

func (f *fileSystemStore) OpenContent(checksum string) (io.ReadCloser, error) {
	return os.Open(filepath.Join(f.filesDir, checksum))
}

func (f *fileSystemStore) ContentSize() (int64, error) {
	entries, err := os.ReadDir(f.filesDir)
	if err != nil {
		return 0, fmt.Errorf("reading spool files: %w", err)
	}
	var total int64
	for _, e := range entries {
		if e.IsDir() || e.Name()[0] == '.' {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return 0, fmt.Errorf("stat %s: %w", e.Name(), err)
		}
		total += info.Size()
	}
	return total, nil
}

func (f *fileSystemStore) Append(item *ilp.SpoolItem) error {
	queue, err := f.readQueue()
	if err != nil {
		return err
	}
	return f.writeQueue(append(queue, item))
}

func (f *fileSystemStore) Peek() (*ilp.SpoolItem, error) {
	queue, err := f.readQueue()
	if err != nil {
		return nil, err
	}
	if len(queue) == 0 {
		return nil, nil
	}
	return queue[0], nil
}

func (f *fileSystemStore) Pop(name, checksum string) (int, error) {
	queue, err := f.readQueue()
	if err != nil {
		return 0, err
	}
	queue = popItem(queue, name, checksum)
	if err := f.writeQueue(queue); err != nil {
		return 0, err
	}
	return countRefs(queue, checksum), nil
}

func (f *fileSystemStore) Refs(checksum string) (int, error) {
	queue, err := f.readQueue()
	if err != nil {
		return 0, err
	}
	return countRefs(queue, checksum), nil
}

func (f *fileSystemStore) Len() (int, error) {
	queue, err := f.readQueue()
	if err != nil {
		return 0, err
	}
	return len(queue), nil
}

func (f *fileSystemStore) readQueue() ([]*ilp.SpoolItem, error) {
	data, err := os.ReadFile(f.queuePath)
	if os.IsNotExist(err) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("reading queue: %w", err)
	}

	var queue []*ilp.SpoolItem
	if err := json.Unmarshal(data, &queue); err != nil {
		return nil, fmt.Errorf("decoding queue: %w", err)
	}
	return queue, nil
}

// writeQueue replaces queue.json through a temp file and rename.
func (f *fileSystemStore) writeQueue(queue []*ilp.SpoolItem) error {
	if queue == nil {
		queue = []*ilp.SpoolItem{}
	}
	data, err := json.MarshalIndent(queue, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding queue: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.queuePath), ".queue-*")
	if err != nil {
		return fmt.Errorf("creating temp queue: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing queue: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing queue: %w", err)
	}
	if err := os.Rename(tmpPath, f.queuePath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replacing queue: %w", err)
	}
	return nil
}
