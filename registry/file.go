package registry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/medisync/recordcrypt/interfaces"
)

// FileRegistry stores one JSON file per user under a base directory. User
// IDs are hashed into file names so arbitrary identifiers cannot escape the
// directory.
type FileRegistry struct {
	baseDir string
	log     *slog.Logger
}

// NewFileRegistry creates a file-backed registry rooted at baseDir, creating
// the directory if needed.
func NewFileRegistry(baseDir string, log *slog.Logger) (*FileRegistry, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create registry directory: %w", err)
	}
	return &FileRegistry{baseDir: baseDir, log: log}, nil
}

// Fetch returns the key record stored for the user.
func (r *FileRegistry) Fetch(ctx context.Context, user interfaces.UserID) (*interfaces.KeyRecord, error) {
	path := r.recordPath(user)

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, interfaces.ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read key record: %w", err)
	}

	var record interfaces.KeyRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("stored key record is malformed: %w", err)
	}

	r.log.Debug("Fetched key record from file",
		slog.String("user", user.String()),
		slog.String("path", path))
	return &record, nil
}

// Store writes the key record for the user atomically.
func (r *FileRegistry) Store(ctx context.Context, user interfaces.UserID, record *interfaces.KeyRecord) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode key record: %w", err)
	}

	path := r.recordPath(user)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write key record: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace key record: %w", err)
	}

	r.log.Debug("Stored key record in file",
		slog.String("user", user.String()),
		slog.String("fingerprint", record.Fingerprint))
	return nil
}

// Delete removes the user's key record.
func (r *FileRegistry) Delete(ctx context.Context, user interfaces.UserID) error {
	err := os.Remove(r.recordPath(user))
	if os.IsNotExist(err) {
		return interfaces.ErrKeyNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete key record: %w", err)
	}

	r.log.Debug("Deleted key record", slog.String("user", user.String()))
	return nil
}

// Available checks that the base directory still exists.
func (r *FileRegistry) Available(ctx context.Context) bool {
	_, err := os.Stat(r.baseDir)
	return err == nil
}

// Name returns a unique identifier for this backend.
func (r *FileRegistry) Name() string {
	return fmt.Sprintf("file-%s", filepath.Base(r.baseDir))
}

func (r *FileRegistry) recordPath(user interfaces.UserID) string {
	sum := sha256.Sum256([]byte(user))
	return filepath.Join(r.baseDir, hex.EncodeToString(sum[:])+".json")
}
