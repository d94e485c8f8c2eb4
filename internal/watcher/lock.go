package watcher

import (
	"os"
	"time"
)

// reparseLockStaleAfter is the stale-after policy for a reparse lockfile
// (spec §4.F step 3a, §5 "Cancellation / timeouts").
const reparseLockStaleAfter = 180 * time.Second

// acquireReparseLock creates path exclusively, the sentinel that guards a
// concurrent rewrite of the compile database (spec §5 "Shared resources").
// If the sentinel already exists and is younger than the stale-after
// window, acquired is false (caller must skip this tick). An older
// sentinel is force-removed and the acquisition retried once.
func acquireReparseLock(path string) (acquired bool, err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err == nil {
		_ = f.Close()
		return true, nil
	}
	if !os.IsExist(err) {
		return false, err
	}

	info, statErr := os.Stat(path)
	if statErr != nil {
		if os.IsNotExist(statErr) {
			return acquireReparseLock(path) // raced with whoever released it
		}
		return false, statErr
	}
	if time.Since(info.ModTime()) < reparseLockStaleAfter {
		return false, nil
	}
	if removeErr := os.Remove(path); removeErr != nil && !os.IsNotExist(removeErr) {
		return false, removeErr
	}
	return acquireReparseLock(path)
}

func releaseReparseLock(path string) error {
	err := os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
