package xclog

import (
	"fmt"
	"path/filepath"
	"strings"

	shellquote "github.com/kballard/go-shellquote"

	"github.com/xcode-build-server/xcode-build-server-go/internal/compiledb"
)

type sectionKind int

const (
	sectionNone sectionKind = iota
	sectionCompileSwiftSources
	sectionSwiftDriverCompilation
	sectionCompileC
	sectionProcessPCH
)

// recognizeSection matches a section's first line against the recognized
// prefixes (spec §4.B), in first-match-wins order.
func recognizeSection(firstLine string) sectionKind {
	switch {
	case strings.HasPrefix(firstLine, "CompileSwiftSources"):
		return sectionCompileSwiftSources
	case strings.HasPrefix(firstLine, "SwiftDriver Compilation"), strings.HasPrefix(firstLine, `SwiftDriver\ Compilation`):
		return sectionSwiftDriverCompilation
	case strings.HasPrefix(firstLine, "CompileC "):
		return sectionCompileC
	case strings.HasPrefix(firstLine, "ProcessPCH"):
		return sectionProcessPCH
	default:
		return sectionNone
	}
}

// blockAfterHeader returns the trimmed, non-empty lines following lines[0]
// up to (not including) the first blank line — the body python's
// read_until_empty_line collects.
func blockAfterHeader(lines []string) []string {
	var out []string
	for _, l := range lines[1:] {
		trimmed := strings.TrimSpace(l)
		if trimmed == "" {
			break
		}
		out = append(out, trimmed)
	}
	return out
}

func directoryFromBlock(block []string) string {
	for _, l := range block {
		if strings.HasPrefix(l, "cd ") {
			return strings.TrimSpace(strings.TrimPrefix(l, "cd "))
		}
	}
	return ""
}

func tokenAfter(toks []string, flag string) string {
	for i, t := range toks {
		if t == flag && i+1 < len(toks) {
			return toks[i+1]
		}
	}
	return ""
}

// moduleRecordFromCommand builds a Module record from an already-isolated
// compiler command plus the surrounding block (for the "cd " directory
// line), per spec §4.B's CompileSwiftSources/SwiftDriver handling.
func moduleRecordFromCommand(command string, block []string, requireSwiftc bool) (*compiledb.Record, string, error) {
	if requireSwiftc && !strings.Contains(command, "bin/swiftc ") {
		return nil, "", fmt.Errorf("%w: command does not invoke swiftc: %.80s", errMalformedSection, command)
	}

	toks, err := shellquote.Split(command)
	if err != nil {
		return nil, "", fmt.Errorf("%w: splitting command: %v", errMalformedSection, err)
	}

	moduleName := tokenAfter(toks, "-module-name")
	indexStorePath := tokenAfter(toks, "-index-store-path")

	var files, fileLists []string
	for _, a := range toks {
		switch {
		case strings.HasSuffix(a, ".swift"):
			files = append(files, compiledb.Canonicalize(a))
		case strings.HasSuffix(a, ".SwiftFileList"):
			fileLists = append(fileLists, strings.TrimPrefix(a, "@"))
		}
	}

	rec := &compiledb.Record{
		Command:    command,
		Directory:  directoryFromBlock(block),
		ModuleName: moduleName,
		Files:      files,
		FileLists:  fileLists,
	}
	return rec, indexStorePath, nil
}

// parseCompileSwiftSources handles the CompileSwiftSources section (spec
// §4.B).
func parseCompileSwiftSources(lines []string, skipValidateBin bool) (*compiledb.Record, string, error) {
	block := blockAfterHeader(lines)
	if len(block) == 0 {
		return nil, "", fmt.Errorf("%w: CompileSwiftSources has no command", errMalformedSection)
	}
	command := block[len(block)-1]
	return moduleRecordFromCommand(command, block, !skipValidateBin)
}

// parseSwiftDriverCompilation handles the SwiftDriver Compilation section,
// stripping its builtin-* prefix and ignoring the Requirements phase (spec
// §4.B).
func parseSwiftDriverCompilation(lines []string, skipValidateBin bool) (*compiledb.Record, string, error) {
	block := blockAfterHeader(lines)
	if len(block) == 0 {
		return nil, "", fmt.Errorf("%w: SwiftDriver Compilation has no command", errMalformedSection)
	}
	command := block[len(block)-1]

	switch {
	case strings.HasPrefix(command, "builtin-Swift-Compilation-Requirements"):
		return nil, "", nil
	case strings.HasPrefix(command, "builtin-Swift-Compilation -- "):
		command = strings.TrimPrefix(command, "builtin-Swift-Compilation -- ")
	case strings.HasPrefix(command, "builtin-SwiftDriver -- "):
		command = strings.TrimPrefix(command, "builtin-SwiftDriver -- ")
	}
	return moduleRecordFromCommand(command, block, !skipValidateBin)
}

func hasClangExecutable(command string) bool {
	toks, err := shellquote.Split(command)
	if err != nil || len(toks) == 0 {
		return false
	}
	return strings.HasSuffix(filepath.Base(toks[0]), "clang")
}

// rewriteInclude replaces the argument following every "-include" flag with
// pchOutput (spec §4.B CompileC step: splice in the discovered PCH output).
func rewriteInclude(command, pchOutput string) string {
	toks, err := shellquote.Split(command)
	if err != nil {
		return command
	}
	out := make([]string, 0, len(toks))
	for i := 0; i < len(toks); i++ {
		if toks[i] == "-include" && i+1 < len(toks) {
			out = append(out, toks[i], pchOutput)
			i++
			continue
		}
		out = append(out, toks[i])
	}
	return shellquote.Join(out...)
}

// parseCompileC handles the CompileC section (spec §4.B): positional header
// arguments, then the clang command, rewritten if a matching ProcessPCH was
// seen earlier in the stream.
func parseCompileC(lines []string, pchByCondition map[string]string, skipValidateBin bool) (*compiledb.Record, error) {
	header, err := shellquote.Split(lines[0])
	if err != nil || len(header) < 3 {
		return nil, fmt.Errorf("%w: CompileC header %q", errMalformedSection, lines[0])
	}
	output := header[1]
	file := header[2]
	condition := strings.Join(header[3:], " ")

	block := blockAfterHeader(lines)
	if len(block) == 0 {
		return nil, fmt.Errorf("%w: CompileC has no command", errMalformedSection)
	}
	command := block[len(block)-1]
	if !skipValidateBin && !hasClangExecutable(command) {
		return nil, fmt.Errorf("%w: command does not invoke a clang executable: %.80s", errMalformedSection, command)
	}

	if pchOutput, ok := pchByCondition[condition]; ok {
		command = rewriteInclude(command, pchOutput)
	}

	return &compiledb.Record{
		Command:   command,
		Directory: directoryFromBlock(block),
		File:      compiledb.Canonicalize(file),
		Output:    output,
	}, nil
}

// recordProcessPCH handles ProcessPCH/ProcessPCH++ sections: not emitted,
// just remembered for a later CompileC's -include rewrite (spec §4.B).
func recordProcessPCH(lines []string, pchByCondition map[string]string) error {
	header, err := shellquote.Split(lines[0])
	if err != nil || len(header) < 3 {
		return fmt.Errorf("%w: ProcessPCH header %q", errMalformedSection, lines[0])
	}
	output := header[1]
	// header[2] is the PCH input; condition starts after it, mirroring
	// CompileC's <output> <file> <condition…> layout so the two line up.
	condition := strings.Join(header[3:], " ")
	pchByCondition[condition] = output
	return nil
}
