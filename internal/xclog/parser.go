// Package xclog recognizes compiler-invocation sections inside an Xcode
// activity log's token stream and turns them into compiledb.Records (spec
// §4.B).
package xclog

import (
	"io"
	"log/slog"
	"strings"

	"github.com/xcode-build-server/xcode-build-server-go/internal/activitylog"
	"github.com/xcode-build-server/xcode-build-server-go/internal/compiledb"
)

// Result is everything a log parse run discovers.
type Result struct {
	Records         []compiledb.Record
	IndexStorePaths map[string]bool
}

// Parse drains tok, recognizing CompileSwiftSources, SwiftDriver
// Compilation, CompileC and ProcessPCH sections and emitting records for
// the first three. skipValidateBin disables the "does this command
// actually invoke swiftc/clang" sanity check (spec §4.B).
func Parse(tok *activitylog.Tokenizer, skipValidateBin bool) (*Result, error) {
	res := &Result{IndexStorePaths: make(map[string]bool)}
	pchByCondition := make(map[string]string)

	for {
		t, err := tok.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if t.Kind != activitylog.KindString {
			continue
		}
		lines := strings.Split(t.Str, "\n")
		if len(lines) == 0 {
			continue
		}

		switch recognizeSection(lines[0]) {
		case sectionCompileSwiftSources:
			rec, idxPath, err := parseCompileSwiftSources(lines, skipValidateBin)
			if err != nil {
				slog.Warn("skipping malformed CompileSwiftSources section", "error", err)
				continue
			}
			if rec != nil {
				res.Records = append(res.Records, *rec)
				if idxPath != "" {
					res.IndexStorePaths[idxPath] = true
				}
			}

		case sectionSwiftDriverCompilation:
			rec, idxPath, err := parseSwiftDriverCompilation(lines, skipValidateBin)
			if err != nil {
				slog.Warn("skipping malformed SwiftDriver Compilation section", "error", err)
				continue
			}
			if rec != nil {
				res.Records = append(res.Records, *rec)
				if idxPath != "" {
					res.IndexStorePaths[idxPath] = true
				}
			}

		case sectionCompileC:
			rec, err := parseCompileC(lines, pchByCondition, skipValidateBin)
			if err != nil {
				slog.Warn("skipping malformed CompileC section", "error", err)
				continue
			}
			res.Records = append(res.Records, *rec)

		case sectionProcessPCH:
			if err := recordProcessPCH(lines, pchByCondition); err != nil {
				slog.Warn("skipping malformed ProcessPCH section", "error", err)
			}
		}
	}

	return res, nil
}
