package flags

import (
	"encoding/json"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	shellquote "github.com/kballard/go-shellquote"
)

// fallbackDeveloperDir is used when `xcode-select -p` fails (spec §9: "SDK
// fallback path is hard-coded macOS only, no cross-platform SDK selection").
const fallbackDeveloperDir = "/Applications/Xcode.app/Contents/Developer"

// macosSDKPath returns the MacOSX SDK path under the active developer
// directory, asking xcode-select first and falling back to the hard-coded
// Xcode.app location on any failure (spec §4.D, §9).
func macosSDKPath() string {
	devDir := fallbackDeveloperDir
	if out, err := exec.Command("xcode-select", "-p").Output(); err == nil {
		if trimmed := strings.TrimSpace(string(out)); trimmed != "" {
			devDir = trimmed
		}
	}
	return filepath.Join(devDir, "Platforms/MacOSX.platform/Developer/SDKs/MacOSX.sdk") + string(filepath.Separator)
}

func isProjectRoot(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ".git"))
	return err == nil
}

// findModuleRoot walks upward from filename's directory looking for a
// ".swiftflags" (preferred) or ".compile" file, stopping at the first
// ".git"-marked project root (spec §4.D).
func findModuleRoot(filename string) (root, flagsFile, compileFile string) {
	dir := filepath.Dir(filename)
	for dir != "" && dir != string(filepath.Separator) {
		p := filepath.Join(dir, ".swiftflags")
		if fileExists(p) {
			return dir, p, compileFile
		}
		if compileFile == "" {
			p := filepath.Join(dir, ".compile")
			if fileExists(p) {
				compileFile = p
			}
		}
		if isProjectRoot(dir) {
			return dir, "", compileFile
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", "", compileFile
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}

type compileFileEntry struct {
	Files     []string `json:"files,omitempty"`
	FileLists []string `json:"fileLists,omitempty"`
	File      string   `json:"file,omitempty"`
	Command   string   `json:"command,omitempty"`
}

// compileCommand returns the stored command for filename out of a
// ".compile" JSON manifest (spec §4.D / original_source's
// CommandForSwiftInCompile), caching the parsed manifest by path.
func (c *ResponseFileCache) compileCommand(compileFile, filenameLower string) (string, error) {
	entries, ok := c.compileEntries[compileFile]
	if !ok {
		parsed, err := parseCompileFile(compileFile, c)
		if err != nil {
			return "", err
		}
		entries = parsed
		c.compileEntries[compileFile] = entries
	}
	return entries[filenameLower], nil
}

func parseCompileFile(compileFile string, cache *ResponseFileCache) (map[string]string, error) {
	data, err := os.ReadFile(compileFile)
	if err != nil {
		return nil, err
	}
	var items []compileFileEntry
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, err
	}

	out := make(map[string]string)
	for _, item := range items {
		for _, f := range item.Files {
			out[strings.ToLower(f)] = item.Command
		}
		for _, list := range item.FileLists {
			toks, err := cache.load(list)
			if err != nil {
				continue // missing file list: skip, don't abort the whole manifest
			}
			for _, f := range toks {
				out[strings.ToLower(strings.TrimSpace(f))] = item.Command
			}
		}
		if item.File != "" {
			out[strings.ToLower(item.File)] = item.Command
		}
	}
	return out, nil
}

// additionalFlags reads a .swiftflags file, dropping blank lines and
// comments (spec §4.D).
func additionalFlags(flagsFile string) ([]string, error) {
	data, err := os.ReadFile(flagsFile)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out, nil
}

// findAllSwiftFiles returns every *.swift file under root.
func findAllSwiftFiles(root string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip unreadable subtrees rather than aborting the whole walk
		}
		if !d.IsDir() && strings.HasSuffix(path, ".swift") {
			if resolved, err := filepath.EvalSymlinks(path); err == nil {
				out = append(out, resolved)
			} else {
				out = append(out, path)
			}
		}
		return nil
	})
	return out, err
}

// findAllHeaderDirectories walks root for *.h files, grouping the parent of
// any ".framework" component separately from plain header directories
// (spec §4.D).
func findAllHeaderDirectories(root string) (headerDirs, frameworkDirs []string, err error) {
	headerSet := make(map[string]bool)
	frameworkSet := make(map[string]bool)
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() || !strings.HasSuffix(path, ".h") {
			return nil
		}
		if idx := strings.Index(path, ".framework"); idx != -1 {
			frameworkSet[filepath.Dir(path[:idx])] = true
			return nil
		}
		headerSet[filepath.Dir(path)] = true
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	for d := range headerSet {
		headerDirs = append(headerDirs, d)
	}
	for d := range frameworkSet {
		frameworkDirs = append(frameworkDirs, d)
	}
	return headerDirs, frameworkDirs, nil
}

// inferSwiftFlags is the last-resort flag guesser for a Swift file with no
// compile-database entry (spec §4.D).
func inferSwiftFlags(filename string, cache *ResponseFileCache) ([]string, error) {
	resolved, err := filepath.EvalSymlinks(filename)
	if err != nil {
		resolved = filename
	}

	root, flagsFile, compileFile := findModuleRoot(resolved)

	var final []string
	if compileFile != "" {
		command, err := cache.compileCommand(compileFile, strings.ToLower(resolved))
		if err != nil {
			return nil, err
		}
		if command != "" {
			toks, err := shellquote.Split(command)
			if err != nil {
				return nil, err
			}
			if len(toks) > 0 {
				final, err = filterArgs(toks[1:], cache)
				if err != nil {
					return nil, err
				}
			}
		}
	}

	if len(final) == 0 && flagsFile != "" {
		headerDirs, frameworkDirs, err := findAllHeaderDirectories(root)
		if err != nil {
			return nil, err
		}
		for _, h := range headerDirs {
			final = append(final, "-Xcc", "-I"+h)
		}
		for _, f := range frameworkDirs {
			final = append(final, "-F"+f)
		}
		swiftFiles, err := findAllSwiftFiles(root)
		if err != nil {
			return nil, err
		}
		final = append(final, swiftFiles...)

		extra, err := additionalFlags(flagsFile)
		if err != nil {
			return nil, err
		}
		if len(extra) > 0 {
			swiftNames := make(map[string]bool, len(swiftFiles))
			for _, f := range swiftFiles {
				swiftNames[filepath.Base(f)] = true
			}
			filtered, err := filterArgs(extra, cache)
			if err != nil {
				return nil, err
			}
			for _, arg := range filtered {
				if !swiftNames[filepath.Base(arg)] {
					final = append(final, arg)
				}
			}
		} else {
			final = append(final, "-sdk", macosSDKPath())
		}
	}

	if len(final) == 0 {
		final = []string{resolved, "-sdk", macosSDKPath()}
	}
	return final, nil
}
