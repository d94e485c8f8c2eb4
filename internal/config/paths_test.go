package config

import (
	"path/filepath"
	"testing"
)

func TestCompileDatabasePathManual(t *testing.T) {
	dir := t.TempDir()
	c, err := Load(filepath.Join(dir, "buildServer.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	got, err := c.CompileDatabasePath()
	if err != nil {
		t.Fatalf("CompileDatabasePath: %v", err)
	}
	want := filepath.Join(dir, ".compile_file")
	if got != want {
		t.Errorf("CompileDatabasePath() = %q, want %q", got, want)
	}
}

func TestCompileDatabasePathXcodeVariesBySchemeAndBuildRoot(t *testing.T) {
	dir := t.TempDir()
	c, err := Load(filepath.Join(dir, "buildServer.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	c.SetKind(KindXcode)
	c.SetScheme("App")
	c.SetBuildRoot("/Users/dev/Library/Developer/Xcode/DerivedData/App-abc")

	p1, err := c.CompileDatabasePath()
	if err != nil {
		t.Fatalf("CompileDatabasePath: %v", err)
	}

	c.SetScheme("OtherScheme")
	p2, err := c.CompileDatabasePath()
	if err != nil {
		t.Fatalf("CompileDatabasePath: %v", err)
	}
	if p1 == p2 {
		t.Errorf("expected different paths for different schemes, both %q", p1)
	}

	c.SetScheme("App")
	c.SetBuildRoot("/Users/dev/Library/Developer/Xcode/DerivedData/App-xyz")
	p3, err := c.CompileDatabasePath()
	if err != nil {
		t.Fatalf("CompileDatabasePath: %v", err)
	}
	if p1 == p3 {
		t.Errorf("expected different paths for different build roots, both %q", p1)
	}
}

func TestCompileDatabasePathSkipValidateBinSuffix(t *testing.T) {
	dir := t.TempDir()
	c, err := Load(filepath.Join(dir, "buildServer.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	c.SetKind(KindXcode)
	c.SetScheme("App")
	c.SetBuildRoot("/Users/dev/DerivedData/App-abc")

	without, err := c.CompileDatabasePath()
	if err != nil {
		t.Fatalf("CompileDatabasePath: %v", err)
	}
	yes := true
	c.SetSkipValidateBin(&yes)
	with, err := c.CompileDatabasePath()
	if err != nil {
		t.Fatalf("CompileDatabasePath: %v", err)
	}
	if filepath.Base(without) == filepath.Base(with) {
		t.Errorf("expected skip_validate_bin to change the file name, got %q and %q", without, with)
	}
	if filepath.Dir(without) != filepath.Dir(with) {
		t.Errorf("expected same cache directory, got %q and %q", without, with)
	}
}
