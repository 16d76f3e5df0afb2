// Package storage stores generated files (vocabulary exports) on the local
// filesystem in development and in Cloudflare R2 in production.
package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Storage defines the interface for file storage operations.
type Storage interface {
	// Put stores data at key. It fails with ErrKeyExists unless
	// opts.Overwrite is set.
	Put(ctx context.Context, key string, data io.Reader, opts PutOptions) error

	// Get returns the object at key; the caller closes the reader.
	// Returns ErrNotFound if the key doesn't exist.
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)

	// Delete removes the object at key. Missing keys are not an error.
	Delete(ctx context.Context, key string) error

	// URL returns a download URL for key that stops working after expires.
	URL(ctx context.Context, key string, expires time.Duration) (string, error)

	// Exists reports whether an object is stored at key.
	Exists(ctx context.Context, key string) (bool, error)
}

// PutOptions configures how an object is stored.
type PutOptions struct {
	// ContentType is detected from the key extension when empty.
	ContentType string

	// MaxSize rejects larger payloads with ErrTooLarge. Zero means no limit.
	MaxSize int64

	// Overwrite allows replacing an existing object at the same key.
	Overwrite bool
}

// ObjectInfo contains metadata about a stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	ContentType  string
	LastModified time.Time
	ETag         string
}

// LocalConfig holds configuration for local filesystem storage.
type LocalConfig struct {
	// BasePath is the root directory, e.g. "./storage".
	BasePath string

	// BaseURL is where LocalStorage.Handler is mounted, e.g.
	// "http://localhost:8080/files".
	BaseURL string

	// SigningKey signs download URLs.
	SigningKey string
}

// R2Config holds configuration for Cloudflare R2 storage.
type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string

	// Region defaults to "auto"; R2 ignores it but the SDK requires one.
	Region string
}

// Config selects and configures a provider.
type Config struct {
	Provider string // ProviderLocal or ProviderR2
	Local    LocalConfig
	R2       R2Config
}

const (
	ProviderLocal = "local"
	ProviderR2    = "r2"
)

// New creates the Storage selected by cfg.Provider.
func New(cfg Config, logger *slog.Logger) (Storage, error) {
	switch strings.ToLower(cfg.Provider) {
	case ProviderLocal, "":
		return NewLocalStorage(cfg.Local, logger)
	case ProviderR2:
		return NewR2Storage(cfg.R2, logger)
	default:
		return nil, fmt.Errorf("unknown storage provider %q", cfg.Provider)
	}
}

// ExportKey generates the key of a vocabulary export.
// Format: exports/{userID}/{uuid}.xlsx
func ExportKey(userID uuid.UUID) string {
	return fmt.Sprintf("exports/%s/%s.xlsx", userID, uuid.New())
}

// validateKey rejects empty keys, absolute keys and path traversal.
func validateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "..") {
		return ErrInvalidKey
	}
	return nil
}
