// Package iconcache stores one PNG icon per executable under the data
// directory so window events can reference it by path.
package iconcache

import (
	"encoding/hex"
	"fmt"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/crypto/blake2b"

	"deskrec/internal/platform"
)

type entry struct {
	path string
	ok   bool
}

// Cache extracts each executable's icon at most once per run. Failures
// are remembered as well, so a process without an icon costs one attempt.
type Cache struct {
	dir    string
	icons  platform.IconExtractor
	logger *slog.Logger

	mu    sync.Mutex
	known map[string]entry
}

// New creates a cache writing into dir.
func New(dir string, icons platform.IconExtractor, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		dir:    dir,
		icons:  icons,
		logger: logger.With("component", "iconcache"),
		known:  make(map[string]entry),
	}
}

// FileName returns the cache file name for an executable path.
func FileName(processPath string) string {
	sum := blake2b.Sum256([]byte(strings.ToLower(processPath)))
	return hex.EncodeToString(sum[:])[:16] + ".png"
}

// Path returns the icon file for processPath, extracting it if needed.
func (c *Cache) Path(processPath string) (string, bool) {
	if processPath == "" || c.icons == nil {
		return "", false
	}
	key := strings.ToLower(processPath)

	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.known[key]; ok {
		return e.path, e.ok
	}

	path, err := c.materialize(processPath)
	if err != nil {
		c.logger.Debug("icon unavailable", "process", processPath, "error", err)
		c.known[key] = entry{}
		return "", false
	}
	c.known[key] = entry{path: path, ok: true}
	return path, true
}

func (c *Cache) materialize(processPath string) (string, error) {
	path := filepath.Join(c.dir, FileName(processPath))
	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		return path, nil
	}

	img, err := c.icons.Icon(processPath)
	if err != nil {
		return "", fmt.Errorf("extract icon: %w", err)
	}
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return "", fmt.Errorf("create icon directory: %w", err)
	}

	tmp, err := os.CreateTemp(c.dir, ".icon-*")
	if err != nil {
		return "", fmt.Errorf("create icon file: %w", err)
	}
	if err := png.Encode(tmp, img); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("encode icon: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write icon: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("install icon: %w", err)
	}
	return path, nil
}
