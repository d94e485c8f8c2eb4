package flags

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/xcode-build-server/xcode-build-server-go/internal/compiledb"
)

func storeFromRecords(t *testing.T, dir string, records []compiledb.Record) *compiledb.Store {
	t.Helper()
	path := filepath.Join(dir, "compile.json")
	if err := compiledb.SaveRaw(path, records); err != nil {
		t.Fatalf("SaveRaw: %v", err)
	}
	store, err := compiledb.Load(path, compiledb.NewArgFileCache())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return store
}

func TestGetFlagsFiltersAndExpands(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "Foo.swift")
	if err := os.WriteFile(src, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	listPath := filepath.Join(dir, "extra.txt")
	if err := os.WriteFile(listPath, []byte("-DFOO -DBAR"), 0o644); err != nil {
		t.Fatal(err)
	}

	command := "swiftc -module-name Mod -emit-localized-strings-path /tmp/strings " +
		"-use-frontend-parseable-output -filelist " + listPath + " " + src
	store := storeFromRecords(t, dir, []compiledb.Record{
		{Command: command, Files: []string{src}},
	})

	got, ok, err := GetFlags(src, store, NewResponseFileCache())
	if err != nil {
		t.Fatalf("GetFlags: %v", err)
	}
	if !ok {
		t.Fatal("expected a flag list")
	}
	want := []string{"-module-name", "Mod", "-DFOO", "-DBAR", src}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("flag %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestGetFlagsSplicesNewFileBeforeFallingBackToInference(t *testing.T) {
	dir := t.TempDir()
	neighbor := filepath.Join(dir, "Existing.swift")
	newFile := filepath.Join(dir, "Brand.swift")
	for _, p := range []string{neighbor, newFile} {
		if err := os.WriteFile(p, nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	command := "swiftc -module-name Mod " + neighbor
	store := storeFromRecords(t, dir, []compiledb.Record{
		{Command: command, Files: []string{neighbor}},
	})

	got, ok, err := GetFlags(newFile, store, NewResponseFileCache())
	if err != nil {
		t.Fatalf("GetFlags: %v", err)
	}
	if !ok {
		t.Fatal("expected the spliced neighbor command to resolve")
	}
	joined := make(map[string]bool, len(got))
	for _, f := range got {
		joined[f] = true
	}
	if !joined["-module-name"] || !joined["Mod"] {
		t.Errorf("expected the neighbor's flags carried over, got %v", got)
	}
	if !joined[newFile] {
		t.Errorf("expected the new file spliced into the command, got %v", got)
	}
}

func TestGetFlagsMissingCommandFallsBackToSDK(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, ".git"), 0o755); err != nil {
		t.Fatal(err)
	}
	orphan := filepath.Join(dir, "Orphan.swift")
	if err := os.WriteFile(orphan, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	store := storeFromRecords(t, dir, nil)

	got, ok, err := GetFlags(orphan, store, NewResponseFileCache())
	if err != nil {
		t.Fatalf("GetFlags: %v", err)
	}
	if !ok {
		t.Fatal("expected the universal fallback to apply")
	}
	if len(got) < 2 || got[len(got)-2] != "-sdk" {
		t.Fatalf("expected a trailing -sdk flag, got %v", got)
	}
}

func TestInferSwiftFlagsUsesSwiftflagsDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, ".git"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".swiftflags"), []byte("-DDEBUG\n# comment\n\n-Onone\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	a := filepath.Join(dir, "A.swift")
	b := filepath.Join(dir, "B.swift")
	for _, p := range []string{a, b} {
		if err := os.WriteFile(p, nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	flags, err := inferSwiftFlags(a, NewResponseFileCache())
	if err != nil {
		t.Fatalf("inferSwiftFlags: %v", err)
	}
	joined := make(map[string]bool, len(flags))
	for _, f := range flags {
		joined[f] = true
	}
	if !joined["-DDEBUG"] || !joined["-Onone"] {
		t.Errorf("expected .swiftflags contents in result: %v", flags)
	}
	if !joined[a] || !joined[b] {
		t.Errorf("expected harvested swift files in result: %v", flags)
	}
}
