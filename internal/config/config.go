// Package config provides a typed view over buildServer.json, the BSP
// discovery file an editor reads to find this server (spec §4.E).
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// DefaultPath is the discovery file name editors look for in a project
// root.
const DefaultPath = "buildServer.json"

const (
	KindXcode  = "xcode"
	KindManual = "manual"
)

// fixedFields are re-stamped on every Save, overriding whatever a stale
// on-disk copy or a previous process wrote there (spec §4.E).
var fixedFields = map[string]any{
	"name":       "xcode build server",
	"version":    "0.3",
	"bspVersion": "2.0",
	"languages":  []string{"c", "cpp", "objective-c", "objective-cpp", "swift"},
}

// Config is a typed accessor over a JSON mapping persisted at Path. Getters
// return a default when a key is absent; setters delete the key when given
// the type's zero value, matching the "delete-on-null" property pattern of
// spec §4.E.
type Config struct {
	mu   sync.Mutex
	Path string
	data map[string]any
}

// Load reads path if present, or starts from an empty mapping.
func Load(path string) (*Config, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving config path: %w", err)
	}
	c := &Config{Path: abs, data: make(map[string]any)}

	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, fmt.Errorf("reading %s: %w", abs, err)
	}
	if err := json.Unmarshal(data, &c.data); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", abs, err)
	}
	return c, nil
}

var (
	sharedOnce sync.Once
	shared     *Config
	sharedErr  error
)

// Shared returns the process-wide Config loaded from DefaultPath in the
// current directory, initialized on first use (spec §4.E's shared()).
func Shared() (*Config, error) {
	sharedOnce.Do(func() {
		shared, sharedErr = Load(DefaultPath)
	})
	return shared, sharedErr
}

func (c *Config) get(key string, def any) any {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.data[key]; ok {
		return v
	}
	return def
}

func (c *Config) setOrDelete(key string, value any, isZero bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if isZero {
		delete(c.data, key)
		return
	}
	c.data[key] = value
}

func (c *Config) getString(key, def string) string {
	v := c.get(key, def)
	s, ok := v.(string)
	if !ok {
		return def
	}
	return s
}

// Kind returns "xcode" or "manual" (default "manual").
func (c *Config) Kind() string { return c.getString("kind", KindManual) }
func (c *Config) SetKind(v string) {
	c.setOrDelete("kind", v, v == "")
}

func (c *Config) Workspace() string { return c.getString("workspace", "") }
func (c *Config) SetWorkspace(v string) {
	c.setOrDelete("workspace", v, v == "")
}

func (c *Config) Scheme() string { return c.getString("scheme", "") }
func (c *Config) SetScheme(v string) {
	c.setOrDelete("scheme", v, v == "")
}

func (c *Config) BuildRoot() string { return c.getString("build_root", "") }
func (c *Config) SetBuildRoot(v string) {
	c.setOrDelete("build_root", v, v == "")
}

func (c *Config) IndexStorePath() string { return c.getString("indexStorePath", "") }
func (c *Config) SetIndexStorePath(v string) {
	c.setOrDelete("indexStorePath", v, v == "")
}

// SkipValidateBin reports whether background log-parser binary validation
// should be skipped. Unlike the string fields, a nil pointer (spec's
// "null") deletes the key; a non-nil pointer sets it explicitly.
func (c *Config) SkipValidateBin() bool {
	v := c.get("skip_validate_bin", false)
	b, _ := v.(bool)
	return b
}

func (c *Config) SetSkipValidateBin(v *bool) {
	c.setOrDelete("skip_validate_bin", v, v == nil)
	if v != nil {
		c.mu.Lock()
		c.data["skip_validate_bin"] = *v
		c.mu.Unlock()
	}
}

// Save serializes the config with tab indentation (spec §3/§4.E) to Path,
// atomically (temp file + rename in the same directory), re-stamping the
// fixed identity fields first.
func (c *Config) Save() error {
	c.mu.Lock()
	for k, v := range fixedFields {
		c.data[k] = v
	}
	if _, ok := c.data["argv"]; !ok {
		c.data["argv"] = os.Args[:1]
	}
	data, err := json.MarshalIndent(c.data, "", "\t")
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}

	dir := filepath.Dir(c.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".buildServer-*.json.tmp")
	if err != nil {
		return fmt.Errorf("creating temp config file: %w", err)
	}
	tmpPath := tmp.Name()
	closed := false
	defer func() {
		if !closed {
			_ = tmp.Close()
		}
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("writing temp config file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp config file: %w", err)
	}
	closed = true
	if err := os.Rename(tmpPath, c.Path); err != nil {
		return fmt.Errorf("renaming config file: %w", err)
	}
	return nil
}
