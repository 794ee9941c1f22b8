package registry

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultCacheDir is the default cache directory relative to the user's home directory.
const DefaultCacheDir = ".stratum/cache"

// Cache keeps fetched repository documents on disk. Spec documents of
// published builds never change, so a cached copy is always valid. Index
// documents are never cached.
type Cache struct {
	// Dir is the base cache directory
	Dir string
}

// DefaultCache returns a cache using the default location (~/.stratum/cache).
func DefaultCache() (*Cache, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	return NewCache(filepath.Join(homeDir, DefaultCacheDir)), nil
}

// NewCache creates a cache at the specified directory.
// The directory is created if it doesn't exist when needed.
func NewCache(baseDir string) *Cache {
	return &Cache{Dir: baseDir}
}

// GetPath returns the cache path for a given key. Keys are hashed so that
// URLs can be used as keys.
func (c *Cache) GetPath(key string) string {
	sum := sha256.Sum256([]byte(key))
	name := hex.EncodeToString(sum[:])
	return filepath.Join(c.Dir, "docs", name[:2], name)
}

// Has returns true if the cache contains the given key.
func (c *Cache) Has(key string) bool {
	_, err := os.Stat(c.GetPath(key))
	return err == nil
}

// Get returns the cached contents of key.
func (c *Cache) Get(key string) ([]byte, bool) {
	data, err := os.ReadFile(c.GetPath(key))
	if err != nil {
		return nil, false
	}
	return data, true
}

// Put stores data under key. The write goes through a temp file so readers
// never see a partial document.
func (c *Cache) Put(key string, data []byte) error {
	p := c.GetPath(key)
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(p), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	return os.Rename(tmp.Name(), p)
}

// GetCacheDir returns the cache directory for a specific protocol.
// Git clones are kept per protocol (e.g., "git").
func (c *Cache) GetCacheDir(protocol string) string {
	return filepath.Join(c.Dir, protocol)
}

// Clear removes all cached content for a specific protocol.
// If protocol is empty, clears the entire cache.
func (c *Cache) Clear(protocol string) error {
	targetDir := c.Dir
	if protocol != "" {
		targetDir = c.GetCacheDir(protocol)
	}

	if err := os.RemoveAll(targetDir); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	return nil
}

// ComputeIntegrity computes a sha256-{base64} integrity hash of data.
//
// The hash format follows the Subresource Integrity (SRI) specification:
// "sha256-{base64-encoded-hash}"
func ComputeIntegrity(data []byte) string {
	sum := sha256.Sum256(data)
	return "sha256-" + base64.StdEncoding.EncodeToString(sum[:])
}

// VerifyIntegrity checks data against an expected integrity hash.
// Returns nil if the integrity matches or none is expected.
func VerifyIntegrity(data []byte, expected string) error {
	if expected == "" {
		return nil
	}

	if !strings.HasPrefix(expected, "sha256-") {
		return fmt.Errorf("unsupported integrity format: %s (expected sha256-{base64})", expected)
	}

	if actual := ComputeIntegrity(data); actual != expected {
		return fmt.Errorf("integrity mismatch: expected %s, got %s", expected, actual)
	}
	return nil
}
