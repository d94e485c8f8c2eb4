package config

import (
	"crypto/md5"
	"fmt"
	"os"
	"path/filepath"
)

// CacheDir returns the per-user cache root all derived paths live under
// (spec §4.G: "~/Library/Caches/xcode-build-server/<slugified-root-path>/").
func CacheDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, "Library", "Caches", "xcode-build-server"), nil
}

// CompileDatabasePath returns the file this config's compile database
// lives at (spec §6): a project-root-relative ".compile_file" in manual
// mode, or an isolated name under the cache directory keyed by scheme and
// the MD5 of build_root in xcode mode, so that two schemes or two
// DerivedData roots never collide on one file.
func (c *Config) CompileDatabasePath() (string, error) {
	if c.Kind() != KindXcode {
		dir := filepath.Dir(c.Path)
		return filepath.Join(dir, ".compile_file"), nil
	}

	cacheDir, err := CacheDir()
	if err != nil {
		return "", err
	}
	sum := md5.Sum([]byte(c.BuildRoot()))
	name := fmt.Sprintf("compile_file-%s-%x", c.Scheme(), sum)
	if c.SkipValidateBin() {
		name = fmt.Sprintf("compile_file1-%s-%x", c.Scheme(), sum)
	}
	return filepath.Join(cacheDir, name), nil
}
