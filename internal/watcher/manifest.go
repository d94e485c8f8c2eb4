package watcher

import (
	"fmt"
	"os"
	"path/filepath"

	"howett.net/plist"
)

// manifestEntry is one value in LogStoreManifest.plist's "logs" mapping
// (spec §6). The scheme key is literally named "schemeIdentifier-schemeName"
// in Apple's plist.
type manifestEntry struct {
	FileName              string  `plist:"fileName"`
	TimeStoppedRecording  float64 `plist:"timeStoppedRecording"`
	SchemeIdentifierScheme string `plist:"schemeIdentifier-schemeName"`
}

type logStoreManifest struct {
	Logs map[string]manifestEntry `plist:"logs"`
}

// NewestActivityLog reads manifestPath (a LogStoreManifest.plist) and
// returns the absolute path of the newest .xcactivitylog for scheme
// (descending timeStoppedRecording). When scheme is empty, the newest log
// across all schemes is returned. ok is false if no entry matches.
func NewestActivityLog(manifestPath, scheme string) (path string, ok bool, err error) {
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return "", false, fmt.Errorf("reading %s: %w", manifestPath, err)
	}

	var m logStoreManifest
	if _, err := plist.Unmarshal(data, &m); err != nil {
		return "", false, fmt.Errorf("parsing %s: %w", manifestPath, err)
	}

	var best *manifestEntry
	for id := range m.Logs {
		entry := m.Logs[id]
		if scheme != "" && entry.SchemeIdentifierScheme != scheme {
			continue
		}
		if best == nil || entry.TimeStoppedRecording > best.TimeStoppedRecording {
			e := entry
			best = &e
		}
	}
	if best == nil || best.FileName == "" {
		return "", false, nil
	}

	dir := filepath.Dir(manifestPath)
	return filepath.Join(dir, best.FileName), true, nil
}
