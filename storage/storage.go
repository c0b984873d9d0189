// storage/storage.go

// Package storage persists collector artifacts as immutable, uniquely keyed objects.
package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/gewnthar/civicpulse/config"
	"github.com/gewnthar/civicpulse/models"
)

// System is an object store with write-once semantics.
type System interface {
	// Upload writes data to key. Returns ErrExists if the key is already taken.
	Upload(ctx context.Context, key string, reader io.Reader, contentType string) error
	// Download returns a stream for the object at key. The caller must close it.
	// Returns ErrNotFound if the object does not exist.
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	// Exists reports whether an object is stored at key.
	Exists(ctx context.Context, key string) (bool, error)
}

// New selects the backend named in cfg.Backend.
func New(cfg config.StorageConfig, logger *slog.Logger) (System, error) {
	switch cfg.Backend {
	case "azure":
		return NewAzure(cfg, logger)
	case "local", "":
		return NewLocal(cfg.LocalDir, logger)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// Put uploads data and describes the stored object.
func Put(ctx context.Context, sys System, key string, data []byte, contentType string) (models.StorageObject, error) {
	if err := sys.Upload(ctx, key, bytes.NewReader(data), contentType); err != nil {
		return models.StorageObject{}, err
	}
	sum := sha256.Sum256(data)
	return models.StorageObject{
		Key:         key,
		ContentType: contentType,
		Size:        int64(len(data)),
		Checksum:    hex.EncodeToString(sum[:]),
		WrittenAt:   time.Now().UTC(),
	}, nil
}

// Get reads a whole object into memory.
func Get(ctx context.Context, sys System, key string) ([]byte, error) {
	rc, err := sys.Download(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}
	return data, nil
}

func validateKey(key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == ".." {
			return ErrInvalidKey
		}
	}
	if strings.HasPrefix(key, "/") {
		return ErrInvalidKey
	}
	return nil
}
