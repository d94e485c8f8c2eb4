package bsp

import (
	"crypto/md5"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xcode-build-server/xcode-build-server-go/internal/config"
)

// rootCacheDir returns the per-project cache directory
// ~/Library/Caches/xcode-build-server/<slugified-rootUri>/ (spec §4.G
// build/initialize). The slug is the raw rootUri with every "/" replaced
// by "-" (e.g. "file:///Users/dev/proj" -> "file:---Users-dev-proj"),
// matching original_source/server.py's build_initialize exactly.
func rootCacheDir(rootURI string) (string, error) {
	base, err := config.CacheDir()
	if err != nil {
		return "", err
	}
	slug := strings.ReplaceAll(rootURI, "/", "-")
	return filepath.Join(base, slug), nil
}

// resolveIndexPaths computes indexStorePath and indexDatabasePath for
// build/initialize's data payload (spec §4.G): indexStorePath comes from
// the config (the build's DataStore in xcode mode, or the configured
// value in manual mode), and indexDatabasePath is a cache-local path
// suffixed with the MD5 of indexStorePath so switching stores invalidates
// the index database cache.
func resolveIndexPaths(rootURI string, cfg *config.Config) (indexDatabasePath, indexStorePath string, err error) {
	cacheDir, err := rootCacheDir(rootURI)
	if err != nil {
		return "", "", err
	}

	switch cfg.Kind() {
	case config.KindXcode:
		indexStorePath = filepath.Join(cfg.BuildRoot(), "Index.noindex", "DataStore")
	case config.KindManual:
		indexStorePath = cfg.IndexStorePath()
	}
	if indexStorePath == "" {
		indexStorePath = filepath.Join(cacheDir, "indexStorePath")
	}

	sum := md5.Sum([]byte(indexStorePath))
	indexDatabasePath = filepath.Join(cacheDir, fmt.Sprintf("indexDatabasePath-%x", sum))
	return indexDatabasePath, indexStorePath, nil
}
