package compiledb

import (
	"os"
	"strings"
)

// featNewFileEnabled gates Store.NewFile's "hack-in a new file" splice,
// read once at startup from XBS_FEAT_NEWFILE (default on), grounded on
// original_source/config/env.py's Env.on_key("XBS_FEAT_NEWFILE", default=True).
var featNewFileEnabled = parseFeatureFlag(os.Getenv("XBS_FEAT_NEWFILE"), true)

// parseFeatureFlag mirrors env.py's Env.on: a leading digit is truthy iff
// nonzero, otherwise a leading t/T/y/Y is truthy. An empty value falls
// back to def.
func parseFeatureFlag(value string, def bool) bool {
	if value == "" {
		return def
	}
	switch c := value[0]; {
	case c >= '0' && c <= '9':
		return c != '0'
	default:
		return strings.ContainsRune("tTyY", rune(c))
	}
}
