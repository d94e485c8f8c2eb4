package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	c, err := Load(filepath.Join(dir, "buildServer.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Kind() != KindManual {
		t.Errorf("Kind() = %q, want %q", c.Kind(), KindManual)
	}
	if c.Workspace() != "" {
		t.Errorf("Workspace() = %q, want empty", c.Workspace())
	}
}

func TestSaveWritesTabIndentAndFixedFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "buildServer.json")
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	c.SetWorkspace("/proj/App.xcworkspace")
	c.SetScheme("App")
	c.SetKind(KindXcode)

	if err := c.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !json.Valid(raw) {
		t.Fatalf("saved config is not valid JSON: %s", raw)
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	for key := range fixedFields {
		if _, ok := decoded[key]; !ok {
			t.Errorf("expected fixed field %q in saved config", key)
		}
	}
	if decoded["workspace"] != "/proj/App.xcworkspace" {
		t.Errorf("workspace = %v, want /proj/App.xcworkspace", decoded["workspace"])
	}
	if decoded["kind"] != KindXcode {
		t.Errorf("kind = %v, want %v", decoded["kind"], KindXcode)
	}

	// Tab-indented: a nested value's line starts with at least one tab.
	foundTab := false
	for _, line := range splitLines(string(raw)) {
		if len(line) > 0 && line[0] == '\t' {
			foundTab = true
			break
		}
	}
	if !foundTab {
		t.Errorf("expected tab-indented JSON, got:\n%s", raw)
	}
}

func TestSetEmptyStringDeletesKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "buildServer.json")
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	c.SetScheme("App")
	if c.Scheme() != "App" {
		t.Fatalf("Scheme() = %q, want App", c.Scheme())
	}
	c.SetScheme("")
	if c.Scheme() != "" {
		t.Fatalf("Scheme() = %q, want empty after delete", c.Scheme())
	}
	if _, ok := c.data["scheme"]; ok {
		t.Errorf("expected scheme key removed from underlying map")
	}
}

func TestSkipValidateBinNilDeletesKey(t *testing.T) {
	dir := t.TempDir()
	c, err := Load(filepath.Join(dir, "buildServer.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	yes := true
	c.SetSkipValidateBin(&yes)
	if !c.SkipValidateBin() {
		t.Fatalf("SkipValidateBin() = false, want true")
	}
	c.SetSkipValidateBin(nil)
	if c.SkipValidateBin() {
		t.Fatalf("SkipValidateBin() = true, want false after nil reset")
	}
	if _, ok := c.data["skip_validate_bin"]; ok {
		t.Errorf("expected skip_validate_bin key removed from underlying map")
	}
}

func TestLoadRoundTripsPreviouslySavedConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "buildServer.json")

	c1, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	c1.SetBuildRoot("/Users/dev/Library/Developer/Xcode/DerivedData/App-abc")
	c1.SetIndexStorePath("/Users/dev/Library/Developer/Xcode/DerivedData/App-abc/Index.noindex/DataStore")
	if err := c1.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	c2, err := Load(path)
	if err != nil {
		t.Fatalf("reload Load: %v", err)
	}
	if c2.BuildRoot() != c1.BuildRoot() {
		t.Errorf("BuildRoot() = %q, want %q", c2.BuildRoot(), c1.BuildRoot())
	}
	if c2.IndexStorePath() != c1.IndexStorePath() {
		t.Errorf("IndexStorePath() = %q, want %q", c2.IndexStorePath(), c1.IndexStorePath())
	}
}

func splitLines(s string) []string {
	var out []string
	start := 0
	for i, r := range s {
		if r == '\n' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}
