package compiledb

import (
	"os"
	"path/filepath"
	"strings"

	shellquote "github.com/kballard/go-shellquote"
)

// buildDirectoryIndex lazily groups file_info keys by their parent
// directory (spec §3's directory_index), used by NewFile to find a
// compiled neighbor of a brand-new source file.
func (s *Store) buildDirectoryIndex() {
	if s.dirBuilt {
		return
	}
	for p := range s.fileInfo {
		dir := filepath.Dir(p)
		set := s.directoryIndex[dir]
		if set == nil {
			set = make(map[string]bool)
			s.directoryIndex[dir] = set
		}
		set[p] = true
	}
	s.dirBuilt = true
}

// buildCommandIndex lazily groups file_info keys by their command string
// (spec §3's command_index), used by NewFile to rewrite an entire module's
// invocation in one pass.
func (s *Store) buildCommandIndex() {
	if s.cmdBuilt {
		return
	}
	for p, c := range s.fileInfo {
		set := s.commandIndex[c]
		if set == nil {
			set = make(map[string]bool)
			s.commandIndex[c] = set
		}
		set[p] = true
	}
	s.cmdBuilt = true
}

// isProjectRoot reports whether dir looks like the top of a checkout
// (spec §4.C step 2, §4.D fallback): the presence of a ".git" entry.
func isProjectRoot(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ".git"))
	return err == nil
}

// findNeighborSwiftFile looks for an already-known .swift file starting at
// startDir and walking upward, stopping after checking the project root
// (spec §4.C step 2).
func (s *Store) findNeighborSwiftFile(startDir string) string {
	current := startDir
	for {
		if set, ok := s.directoryIndex[current]; ok {
			for p := range set {
				if strings.HasSuffix(p, ".swift") {
					return p
				}
			}
		}
		if isProjectRoot(current) {
			return ""
		}
		parent := filepath.Dir(current)
		if parent == current {
			return ""
		}
		current = parent
	}
}

// NewFile implements the "hack-in a new file" contract (spec §4.C): when an
// editor opens a .swift file the database has never seen, borrow a
// neighbor's compiler command and splice the new path into its argument
// list. Returns the set of canonical paths now sharing the rewritten
// command, or ok=false if no neighbor could be found. Disabled entirely
// when XBS_FEAT_NEWFILE is off (see env.go).
func (s *Store) NewFile(path string) (affected []string, ok bool) {
	if !featNewFileEnabled {
		return nil, false
	}
	p := Canonicalize(path)
	if _, known := s.fileInfo[p]; known {
		return []string{p}, true
	}

	s.buildDirectoryIndex()
	dir := filepath.Dir(p)
	neighbor := s.findNeighborSwiftFile(dir)
	if neighbor == "" {
		return nil, false
	}

	oldCmd := s.fileInfo[neighbor]
	newCmd := spliceNewFile(oldCmd, path)

	s.buildCommandIndex()
	members := s.commandIndex[oldCmd]
	if members == nil {
		members = map[string]bool{neighbor: true}
	}
	delete(s.commandIndex, oldCmd)

	newMembers := make(map[string]bool, len(members)+1)
	for existing := range members {
		newMembers[existing] = true
		s.fileInfo[existing] = newCmd
		affected = append(affected, existing)
	}
	newMembers[p] = true
	s.fileInfo[p] = newCmd
	affected = append(affected, p)
	s.commandIndex[newCmd] = newMembers

	pdir := filepath.Dir(p)
	if s.directoryIndex[pdir] == nil {
		s.directoryIndex[pdir] = make(map[string]bool)
	}
	s.directoryIndex[pdir][p] = true

	return affected, true
}

// spliceNewFile inserts a shell-quoted path right after the command's
// executable token (spec §4.C step 4).
func spliceNewFile(cmd, path string) string {
	end := firstTokenEnd(cmd)
	return cmd[:end] + " " + shellquote.Join(path) + cmd[end:]
}

// firstTokenEnd returns the byte offset just past the first shell token in
// s, honoring single/double quoting and backslash escapes the same way
// go-shellquote's Split does.
func firstTokenEnd(s string) int {
	inSingle, inDouble, escaped := false, false, false
	for i, r := range s {
		if escaped {
			escaped = false
			continue
		}
		switch r {
		case '\\':
			if !inSingle {
				escaped = true
			}
		case '\'':
			if !inDouble {
				inSingle = !inSingle
			}
		case '"':
			if !inSingle {
				inDouble = !inDouble
			}
		default:
			if !inSingle && !inDouble && (r == ' ' || r == '\t') {
				return i
			}
		}
	}
	return len(s)
}
