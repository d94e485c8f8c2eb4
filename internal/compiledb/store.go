package compiledb

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	shellquote "github.com/kballard/go-shellquote"
)

// Canonicalize resolves symlinks and case-folds a path the way every index
// in Store keys its entries (spec §3's "canonical-path-lowercased").
// Paths that don't exist yet (e.g. a file the editor just created) fall
// back to filepath.Clean so lookups on brand-new files still work.
func Canonicalize(path string) string {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		resolved = filepath.Clean(path)
	}
	return strings.ToLower(resolved)
}

// ArgFileCache memoizes shell-split response-file contents by path, shared
// across the records of one load (spec §4.C).
type ArgFileCache struct {
	files map[string][]string
}

func NewArgFileCache() *ArgFileCache {
	return &ArgFileCache{files: make(map[string][]string)}
}

func (c *ArgFileCache) load(path string) ([]string, error) {
	if toks, ok := c.files[path]; ok {
		return toks, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	toks, err := shellquote.Split(string(data))
	if err != nil {
		return nil, fmt.Errorf("splitting response file %s: %w", path, err)
	}
	abs := make([]string, len(toks))
	for i, t := range toks {
		if resolved, err := filepath.EvalSymlinks(t); err == nil {
			abs[i] = resolved
		} else {
			abs[i] = t
		}
	}
	c.files[path] = abs
	return abs, nil
}

// Store is the in-memory compile database (spec §3). Every map is keyed by
// Canonicalize'd path, except command_index which is keyed by the raw
// command string.
type Store struct {
	fileInfo         map[string]string
	directoryIndex   map[string]map[string]bool
	commandIndex     map[string]map[string]bool
	workingDirectory map[string]string

	dirBuilt bool
	cmdBuilt bool
}

func newStore() *Store {
	return &Store{
		fileInfo:         make(map[string]string),
		directoryIndex:   make(map[string]map[string]bool),
		commandIndex:     make(map[string]map[string]bool),
		workingDirectory: make(map[string]string),
	}
}

// Load reads a JSON compile database and builds an in-memory Store per
// spec §4.C: file records map every File directly, module records expand
// Files and FileLists (via argCache) to the module's Command.
func Load(path string, argCache *ArgFileCache) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening compile database: %w", err)
	}
	defer f.Close()

	records, err := decodeRecords(f)
	if err != nil {
		return nil, fmt.Errorf("decoding compile database %s: %w", path, err)
	}
	return build(records, argCache), nil
}

func decodeRecords(r io.Reader) ([]Record, error) {
	var records []Record
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, err
	}
	return records, nil
}

func build(records []Record, argCache *ArgFileCache) *Store {
	s := newStore()
	for _, rec := range records {
		s.absorb(rec, argCache)
	}
	return s
}

func (s *Store) absorb(rec Record, argCache *ArgFileCache) {
	if rec.File != "" {
		p := Canonicalize(rec.File)
		s.fileInfo[p] = rec.Command
		if rec.Directory != "" {
			s.workingDirectory[p] = rec.Directory
		}
		return
	}

	for _, f := range rec.Files {
		p := Canonicalize(f)
		s.fileInfo[p] = rec.Command
		if rec.Directory != "" {
			s.workingDirectory[p] = rec.Directory
		}
	}
	for _, list := range rec.FileLists {
		toks, err := argCache.load(list)
		if err != nil {
			// A missing/unreadable response file shouldn't abort the whole
			// load; the files it would have listed are simply absent.
			continue
		}
		for _, f := range toks {
			p := Canonicalize(f)
			s.fileInfo[p] = rec.Command
			if rec.Directory != "" {
				s.workingDirectory[p] = rec.Directory
			}
		}
	}
}

// Lookup returns the stored command for a canonical path, applying the
// Xcode-12 "\=" -> "=" quoting fixup (spec §4.C).
func (s *Store) Lookup(canonicalPath string) (string, bool) {
	cmd, ok := s.fileInfo[canonicalPath]
	if !ok {
		return "", false
	}
	return strings.ReplaceAll(cmd, `\=`, "="), true
}

// LookupWorkingDirectory returns the directory a record was compiled in, if
// known.
func (s *Store) LookupWorkingDirectory(canonicalPath string) (string, bool) {
	dir, ok := s.workingDirectory[canonicalPath]
	return dir, ok
}

// Merge combines an existing set of raw records with freshly parsed ones
// using the identity-keyed replacement rule of spec §3: a record whose
// identity matches an existing one replaces it in place; unmatched
// identities append; records with no identity are always appended.
func Merge(oldRecords, newRecords []Record) []Record {
	newByIdentity := make(map[string]Record, len(newRecords))
	for _, rec := range newRecords {
		if id, ok := rec.identity(); ok {
			newByIdentity[id] = rec
		}
	}

	dealt := make(map[string]bool, len(newRecords))
	merged := make([]Record, 0, len(oldRecords)+len(newRecords))
	for _, rec := range oldRecords {
		id, ok := rec.identity()
		if !ok {
			merged = append(merged, rec)
			continue
		}
		if replacement, found := newByIdentity[id]; found {
			merged = append(merged, replacement)
			dealt[id] = true
			continue
		}
		merged = append(merged, rec)
	}
	for _, rec := range newRecords {
		id, ok := rec.identity()
		if !ok || !dealt[id] {
			merged = append(merged, rec)
			if ok {
				dealt[id] = true
			}
		}
	}
	return merged
}

// LoadRaw reads the on-disk JSON array without building a Store; used by
// Merge callers that need the previous file's raw records.
func LoadRaw(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening compile database: %w", err)
	}
	defer f.Close()
	return decodeRecords(f)
}

// SaveRaw writes records as a tab-indented JSON array atomically (temp file
// + rename in the same directory), matching the human-readable-indent
// requirement of spec §3.
func SaveRaw(path string, records []Record) error {
	if records == nil {
		records = []Record{}
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".compiledb-*.json.tmp")
	if err != nil {
		return fmt.Errorf("creating temp compile database: %w", err)
	}
	tmpPath := tmp.Name()
	closed := false
	defer func() {
		if !closed {
			_ = tmp.Close()
		}
		_ = os.Remove(tmpPath)
	}()

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "\t")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("encoding compile database: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp compile database: %w", err)
	}
	closed = true
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming compile database: %w", err)
	}
	return nil
}
