package spill

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kaidoh/fluentforward/log"
)

// FileConfig configures FileStore.
type FileConfig struct {
	// Dir is the directory backup files are written to. Created if it
	// does not exist.
	Dir string
	// Prefix names this forwarder instance within Dir, so multiple
	// forwarders can share a backup directory without colliding.
	Prefix string

	Logger *log.Logger
}

// FileStore persists spilled chunks as individual files on local disk.
// Filenames encode enough metadata (tag, chunk id, creation time) to
// rehydrate without a separate index: "<prefix>#<tag>#<chunk-id-b64>#<created-at-millis>.msgpack".
type FileStore struct {
	dir    string
	prefix string
	logger *log.Logger
}

// NewFile creates a FileStore rooted at cfg.Dir, creating the directory if
// necessary.
func NewFile(cfg FileConfig) (*FileStore, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("spill: file store requires a directory")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "fluentforward"
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("spill: create backup directory: %w", err)
	}
	return &FileStore{dir: cfg.Dir, prefix: cfg.Prefix, logger: cfg.Logger}, nil
}

func (s *FileStore) filename(tag string, id uuid.UUID, createdAt time.Time) string {
	idB64 := base64.RawURLEncoding.EncodeToString(id[:])
	safeTag := strings.ReplaceAll(tag, string(filepath.Separator), "_")
	return fmt.Sprintf("%s#%s#%s#%d.msgpack", s.prefix, safeTag, idB64, createdAt.UnixMilli())
}

// Put writes data to a new file under Dir.
func (s *FileStore) Put(ctx context.Context, tag string, id uuid.UUID, createdAt time.Time, data []byte) error {
	path := filepath.Join(s.dir, s.filename(tag, id, createdAt))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("spill: write backup file %q: %w", path, err)
	}
	if s.logger != nil {
		s.logger.Info("spilled chunk to disk", map[string]any{"tag": tag, "path": path, "bytes": len(data)})
	}
	return nil
}

// List parses every backup file in Dir matching this store's prefix back
// into Entry values.
func (s *FileStore) List(ctx context.Context) ([]Entry, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, s.prefix+"#*.msgpack"))
	if err != nil {
		return nil, fmt.Errorf("spill: glob backup directory: %w", err)
	}

	entries := make([]Entry, 0, len(matches))
	for _, path := range matches {
		e, err := s.parseEntry(path)
		if err != nil {
			if s.logger != nil {
				s.logger.Warn("skipping unparsable backup file", map[string]any{"path": path, "error": err.Error()})
			}
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (s *FileStore) parseEntry(path string) (Entry, error) {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, ".msgpack")
	parts := strings.Split(base, "#")
	if len(parts) != 4 {
		return Entry{}, fmt.Errorf("unexpected filename shape %q", base)
	}

	idBytes, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil || len(idBytes) != 16 {
		return Entry{}, fmt.Errorf("invalid chunk id segment %q: %w", parts[2], err)
	}
	id, err := uuid.FromBytes(idBytes)
	if err != nil {
		return Entry{}, fmt.Errorf("invalid chunk id bytes: %w", err)
	}

	millis, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("invalid timestamp segment %q: %w", parts[3], err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Entry{}, fmt.Errorf("read backup file: %w", err)
	}

	return Entry{
		Tag:       parts[1],
		ID:        id,
		CreatedAt: time.UnixMilli(millis),
		Data:      data,
	}, nil
}

// Delete removes the backup file backing e.
func (s *FileStore) Delete(ctx context.Context, e Entry) error {
	path := filepath.Join(s.dir, s.filename(e.Tag, e.ID, e.CreatedAt))
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("spill: delete backup file %q: %w", path, err)
	}
	return nil
}

// Clear removes every backup file owned by this store's prefix.
func (s *FileStore) Clear(ctx context.Context) error {
	entries, err := s.List(ctx)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := s.Delete(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

var _ Store = (*FileStore)(nil)
