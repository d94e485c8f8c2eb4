package compiledb

import (
	"os"
	"path/filepath"
	"testing"
)

func writeDB(t *testing.T, dir string, records []Record) string {
	t.Helper()
	path := filepath.Join(dir, "compile.json")
	if err := SaveRaw(path, records); err != nil {
		t.Fatalf("SaveRaw: %v", err)
	}
	return path
}

func TestLoadSingleFileRecord(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "Foo.m")
	if err := os.WriteFile(src, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	path := writeDB(t, dir, []Record{
		{Command: "clang -c Foo.m", Directory: dir, File: src, Output: "Foo.o"},
	})

	store, err := Load(path, NewArgFileCache())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cmd, ok := store.Lookup(Canonicalize(src))
	if !ok || cmd != "clang -c Foo.m" {
		t.Fatalf("Lookup: got (%q, %v)", cmd, ok)
	}
	wd, ok := store.LookupWorkingDirectory(Canonicalize(src))
	if !ok || wd != dir {
		t.Fatalf("LookupWorkingDirectory: got (%q, %v)", wd, ok)
	}
}

func TestLookupAppliesEscapeFixup(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "Foo.swift")
	if err := os.WriteFile(src, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	path := writeDB(t, dir, []Record{
		{Command: `swiftc -Xcc -DFOO\=1`, Files: []string{src}},
	})

	store, err := Load(path, NewArgFileCache())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cmd, ok := store.Lookup(Canonicalize(src))
	if !ok {
		t.Fatal("expected a lookup hit")
	}
	if want := "swiftc -Xcc -DFOO=1"; cmd != want {
		t.Fatalf("got %q, want %q", cmd, want)
	}
}

func TestLoadModuleRecordWithFileList(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "A.swift")
	b := filepath.Join(dir, "B.swift")
	for _, p := range []string{a, b} {
		if err := os.WriteFile(p, nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	listPath := filepath.Join(dir, "files.SwiftFileList")
	if err := os.WriteFile(listPath, []byte(a+"\n"+b+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	path := writeDB(t, dir, []Record{
		{Command: "swiftc -module-name Mod", FileLists: []string{listPath}, ModuleName: "Mod"},
	})

	store, err := Load(path, NewArgFileCache())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	for _, p := range []string{a, b} {
		if _, ok := store.Lookup(Canonicalize(p)); !ok {
			t.Errorf("expected %s to be present via fileList expansion", p)
		}
	}
}

func TestMergeIsIdempotent(t *testing.T) {
	records := []Record{
		{Command: "clang -c A.m", File: "/proj/A.m", Output: "A.o"},
		{Command: "swiftc -module-name Mod", ModuleName: "Mod", Files: []string{"/proj/B.swift"}},
	}
	once := Merge(records, records)
	twice := Merge(once, records)
	if len(once) != len(records) || len(twice) != len(records) {
		t.Fatalf("merge should not grow: once=%d twice=%d want=%d", len(once), len(twice), len(records))
	}
}

func TestMergeReplacesByIdentityAndAppendsNew(t *testing.T) {
	old := []Record{
		{Command: "clang -c A.m -old", File: "/proj/A.m"},
		{Command: "clang -c B.m", File: "/proj/B.m"},
	}
	fresh := []Record{
		{Command: "clang -c A.m -new", File: "/proj/A.m"},
		{Command: "clang -c C.m", File: "/proj/C.m"},
	}
	merged := Merge(old, fresh)
	if len(merged) != 3 {
		t.Fatalf("got %d records, want 3: %+v", len(merged), merged)
	}
	byFile := make(map[string]Record, len(merged))
	for _, r := range merged {
		byFile[r.File] = r
	}
	if byFile["/proj/A.m"].Command != "clang -c A.m -new" {
		t.Errorf("A.m not replaced: %+v", byFile["/proj/A.m"])
	}
	if byFile["/proj/B.m"].Command != "clang -c B.m" {
		t.Errorf("B.m should be preserved: %+v", byFile["/proj/B.m"])
	}
	if byFile["/proj/C.m"].Command != "clang -c C.m" {
		t.Errorf("C.m should be appended: %+v", byFile["/proj/C.m"])
	}
}

func TestNewFileSplicesNeighborCommand(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, ".git"), 0o755); err != nil {
		t.Fatal(err)
	}
	existing := filepath.Join(dir, "A.swift")
	if err := os.WriteFile(existing, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	path := writeDB(t, dir, []Record{
		{Command: "swiftc -module-name Mod " + existing, ModuleName: "Mod", Files: []string{existing}},
	})
	store, err := Load(path, NewArgFileCache())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	newSrc := filepath.Join(dir, "New.swift")
	if err := os.WriteFile(newSrc, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	affected, ok := store.NewFile(newSrc)
	if !ok {
		t.Fatal("expected NewFile to find a neighbor")
	}
	if len(affected) != 2 {
		t.Fatalf("got %d affected paths, want 2: %v", len(affected), affected)
	}
	cmd, ok := store.Lookup(Canonicalize(newSrc))
	if !ok {
		t.Fatal("expected the new file to now have a command")
	}
	if cmd != store.fileInfo[Canonicalize(existing)] {
		t.Fatalf("new file's command %q should match neighbor's %q", cmd, store.fileInfo[Canonicalize(existing)])
	}
}

func TestNewFileReturnsFalseWithoutNeighbor(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, ".git"), 0o755); err != nil {
		t.Fatal(err)
	}
	store := newStore()
	lonely := filepath.Join(dir, "Lonely.swift")
	if err := os.WriteFile(lonely, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, ok := store.NewFile(lonely); ok {
		t.Fatal("expected no neighbor to be found in an empty store")
	}
}

func TestNewFileDisabledByFeatureGate(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, ".git"), 0o755); err != nil {
		t.Fatal(err)
	}
	existing := filepath.Join(dir, "A.swift")
	if err := os.WriteFile(existing, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	path := writeDB(t, dir, []Record{
		{Command: "swiftc -module-name Mod " + existing, ModuleName: "Mod", Files: []string{existing}},
	})
	store, err := Load(path, NewArgFileCache())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	newSrc := filepath.Join(dir, "New.swift")
	if err := os.WriteFile(newSrc, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	featNewFileEnabled = false
	defer func() { featNewFileEnabled = true }()

	if _, ok := store.NewFile(newSrc); ok {
		t.Fatal("expected NewFile to be a no-op while XBS_FEAT_NEWFILE is off")
	}
}
