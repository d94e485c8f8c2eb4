package flags

import (
	"fmt"
	"os"

	shellquote "github.com/kballard/go-shellquote"
)

// ResponseFileCache memoizes the shell-split contents of @-style response
// files and -filelist targets (spec §4.D), shared across one query session
// so repeated lookups for files in the same module don't re-read and
// re-split the same list. It also caches the per-file command maps parsed
// out of a ".compile" JSON file used by Swift fallback inference.
type ResponseFileCache struct {
	files          map[string][]string
	compileEntries map[string]map[string]string // compileFile path -> lowercased filename -> command
}

func NewResponseFileCache() *ResponseFileCache {
	return &ResponseFileCache{
		files:          make(map[string][]string),
		compileEntries: make(map[string]map[string]string),
	}
}

func (c *ResponseFileCache) load(path string) ([]string, error) {
	if toks, ok := c.files[path]; ok {
		return toks, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading response file %s: %w", path, err)
	}
	toks, err := shellquote.Split(string(data))
	if err != nil {
		return nil, fmt.Errorf("splitting response file %s: %w", path, err)
	}
	c.files[path] = toks
	return toks, nil
}
