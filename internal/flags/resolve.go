// Package flags resolves the final SourceKit-facing compiler flag list for
// a source file (spec §4.D): a compile-database lookup followed by a
// filter pass that strips Xcode-only arguments and expands response
// files, with a best-effort fallback for Swift files the database has
// never heard of.
package flags

import (
	"fmt"
	"strings"

	shellquote "github.com/kballard/go-shellquote"

	"github.com/xcode-build-server/xcode-build-server-go/internal/compiledb"
)

// GetFlags resolves path's compiler flags. ok is false when the compile
// database has no command for path and either path is not a .swift file
// or Swift fallback inference also produced nothing (the caller then has
// no flags to offer SourceKit).
func GetFlags(path string, store *compiledb.Store, cache *ResponseFileCache) (result []string, ok bool, err error) {
	canonical := compiledb.Canonicalize(path)
	if command, found := store.Lookup(canonical); found {
		return resolveCommand(path, command, cache)
	}

	if !strings.HasSuffix(path, ".swift") {
		return nil, false, nil
	}

	// spec §4.C new_file: before falling back to heuristic inference,
	// try hacking a brand-new .swift file into a neighbor's command.
	if _, spliced := store.NewFile(path); spliced {
		if command, found := store.Lookup(canonical); found {
			return resolveCommand(path, command, cache)
		}
	}

	flags, err := inferSwiftFlags(path, cache)
	if err != nil {
		return nil, false, err
	}
	if len(flags) == 0 {
		return nil, false, nil
	}
	return flags, true, nil
}

// resolveCommand shell-splits a database command and applies the
// Xcode-only-argument filter (spec §4.D).
func resolveCommand(path, command string, cache *ResponseFileCache) (result []string, ok bool, err error) {
	toks, err := shellquote.Split(command)
	if err != nil {
		return nil, false, fmt.Errorf("splitting command for %s: %w", path, err)
	}
	if len(toks) == 0 {
		return nil, false, nil
	}
	filtered, err := filterArgs(toks[1:], cache)
	if err != nil {
		return nil, false, err
	}
	return filtered, true, nil
}

// filterArgs applies the per-arg rewrite rules of spec §4.D.
func filterArgs(args []string, cache *ResponseFileCache) ([]string, error) {
	var out []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "-emit-localized-strings-path":
			i++ // also drop the path that follows

		case arg == "-use-frontend-parseable-output", arg == "-emit-localized-strings":
			// drop, no accompanying arg

		case arg == "-filelist":
			i++
			if i >= len(args) {
				return nil, fmt.Errorf("-filelist with no following path")
			}
			toks, err := cache.load(args[i])
			if err != nil {
				return nil, err
			}
			out = append(out, toks...)

		case strings.HasPrefix(arg, "@"):
			toks, err := cache.load(arg[1:])
			if err != nil {
				return nil, err
			}
			out = append(out, toks...)

		default:
			out = append(out, arg)
		}
	}
	return out, nil
}
