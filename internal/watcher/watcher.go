// Package watcher runs the background poll loop that keeps the compile
// database fresh and pushes change notifications to a connected editor
// (spec §4.F).
package watcher

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/xcode-build-server/xcode-build-server-go/internal/activitylog"
	"github.com/xcode-build-server/xcode-build-server-go/internal/compiledb"
	"github.com/xcode-build-server/xcode-build-server-go/internal/config"
	"github.com/xcode-build-server/xcode-build-server-go/internal/xclog"
)

// TickInterval is the poll period (spec §4.F: "polling once per second").
const TickInterval = 1 * time.Second

// Notifier sends a JSON-RPC notification over the BSP wire. Implemented by
// the dispatcher (component G); kept as a narrow interface so this package
// never imports internal/bsp.
type Notifier interface {
	Notify(method string, params any) error
}

// FlagsResolver resolves the sourceKitOptions payload for a subscribed URI
// against the current database. ok is false when resolution failed (the
// watcher logs and leaves the subscription in place per spec §4.F).
type FlagsResolver func(uri string, store *compiledb.Store, cfg *config.Config) (options []string, workingDirectory string, ok bool)

// Watcher holds every piece of mutable server state the spec assigns to
// the watcher thread (§3 "Watcher state"): observed mtimes, the reparse
// lock flag, and the set of editor-subscribed URIs. A single mutex,
// shared with the BSP dispatcher, serializes all of it plus every stdout
// write (spec §5).
type Watcher struct {
	mu *sync.Mutex

	cfgPath string
	cfg     *config.Config

	dbPath string
	store  *compiledb.Store

	observedMtimes map[string]time.Time
	observedURIs   map[string]bool
	lockingOutput  bool

	argCache *compiledb.ArgFileCache

	notifier Notifier
	resolve  FlagsResolver

	alive   bool
	aliveMu sync.Mutex

	fsw      *fsnotify.Watcher
	skipFsWd string // Logs/Build directory currently under fsnotify watch
}

// New creates a Watcher over cfg (already loaded from cfgPath). The caller
// must hold mu while touching anything the watcher also touches (the
// Store/Config accessors below do their own locking, so callers normally
// just call those instead of taking mu directly).
func New(mu *sync.Mutex, cfgPath string, cfg *config.Config, notifier Notifier, resolve FlagsResolver) *Watcher {
	w := &Watcher{
		mu:             mu,
		cfgPath:        cfgPath,
		cfg:            cfg,
		observedMtimes: make(map[string]time.Time),
		observedURIs:   make(map[string]bool),
		argCache:       compiledb.NewArgFileCache(),
		notifier:       notifier,
		resolve:        resolve,
	}
	if cfg != nil {
		if dbPath, err := cfg.CompileDatabasePath(); err == nil {
			w.dbPath = dbPath
		}
	}
	return w
}

// Start launches the poll loop on its own goroutine. Safe to call once.
func (w *Watcher) Start() {
	w.aliveMu.Lock()
	w.alive = true
	w.aliveMu.Unlock()
	go w.run()
}

// Stop sets the "alive" marker to false; the loop exits on its next tick
// (spec §4.F "Shutdown").
func (w *Watcher) Stop() {
	w.aliveMu.Lock()
	w.alive = false
	w.aliveMu.Unlock()
}

func (w *Watcher) isAlive() bool {
	w.aliveMu.Lock()
	defer w.aliveMu.Unlock()
	return w.alive
}

// Subscribe adds uri to the set notified after every database reload, and
// is also expected by the caller to have already pushed the initial
// sourceKitOptionsChanged notification for it (spec §4.G registerForChanges).
func (w *Watcher) Subscribe(uri string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.observedURIs[uri] = true
}

// Unsubscribe removes uri from the notified set.
func (w *Watcher) Unsubscribe(uri string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.observedURIs, uri)
}

// CurrentConfig returns the active config under lock.
func (w *Watcher) CurrentConfig() *config.Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cfg
}

// CurrentStore returns the active in-memory database, or nil if none has
// been loaded yet.
func (w *Watcher) CurrentStore() *compiledb.Store {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.store
}

func (w *Watcher) run() {
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()

	wake := make(chan struct{}, 1)
	if fsw, err := fsnotify.NewWatcher(); err == nil {
		w.fsw = fsw
		defer func() { _ = w.fsw.Close() }()
		w.refreshFsWatches()
		go w.pumpFsEvents(wake)
	} else {
		slog.Debug("fsnotify unavailable, falling back to poll-only", "err", err)
	}

	for w.isAlive() {
		select {
		case <-ticker.C:
		case <-wake:
		}
		if !w.isAlive() {
			return
		}
		if err := w.Tick(); err != nil {
			slog.Warn("watcher tick failed", "err", err)
		}
		w.refreshFsWatches()
	}
}

func (w *Watcher) pumpFsEvents(wake chan<- struct{}) {
	for {
		select {
		case _, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			select {
			case wake <- struct{}{}:
			default:
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Debug("fsnotify error", "err", err)
		}
	}
}

// refreshFsWatches (re)subscribes fsnotify to the config file, the current
// compile-database file, and the build's Logs/Build directory. This is a
// best-effort wake-up optimization only; the 1s poll tick above remains
// authoritative (spec §2 domain-stack note on fsnotify).
func (w *Watcher) refreshFsWatches() {
	if w.fsw == nil {
		return
	}
	w.mu.Lock()
	dbPath := w.dbPath
	cfg := w.cfg
	w.mu.Unlock()

	_ = w.fsw.Add(w.cfgPath)
	if dbPath != "" {
		_ = w.fsw.Add(dbPath)
	}
	if cfg != nil && cfg.Kind() == config.KindXcode && cfg.BuildRoot() != "" {
		logsDir := filepath.Join(cfg.BuildRoot(), "Logs", "Build")
		if logsDir != w.skipFsWd {
			_ = w.fsw.Add(logsDir)
			w.skipFsWd = logsDir
		}
	}
}

// Tick runs one poll iteration: reload config/db on mtime advance, then
// (in xcode mode) look for a fresher activity log to parse (spec §4.F).
func (w *Watcher) Tick() error {
	if err := w.reloadConfigIfChanged(); err != nil {
		return fmt.Errorf("reloading config: %w", err)
	}
	if err := w.reloadDatabaseIfChanged(); err != nil {
		return fmt.Errorf("reloading compile database: %w", err)
	}

	w.mu.Lock()
	cfg := w.cfg
	w.mu.Unlock()
	if cfg == nil || cfg.Kind() != config.KindXcode {
		return nil
	}
	return w.maybeReparseLog(cfg)
}

func (w *Watcher) mtimeAdvanced(path string) (advanced bool, mtime time.Time, err error) {
	info, statErr := os.Stat(path)
	if statErr != nil {
		if os.IsNotExist(statErr) {
			return false, time.Time{}, nil
		}
		return false, time.Time{}, statErr
	}
	mtime = info.ModTime()
	w.mu.Lock()
	prev, seen := w.observedMtimes[path]
	w.mu.Unlock()
	if seen && !mtime.After(prev) {
		return false, mtime, nil
	}
	return true, mtime, nil
}

func (w *Watcher) recordMtime(path string, mtime time.Time) {
	w.mu.Lock()
	w.observedMtimes[path] = mtime
	w.mu.Unlock()
}

func (w *Watcher) reloadConfigIfChanged() error {
	advanced, mtime, err := w.mtimeAdvanced(w.cfgPath)
	if err != nil || !advanced {
		return err
	}

	newCfg, err := config.Load(w.cfgPath)
	if err != nil {
		return err
	}
	newDBPath, err := newCfg.CompileDatabasePath()
	if err != nil {
		return err
	}

	w.mu.Lock()
	oldDBPath := w.dbPath
	w.cfg = newCfg
	changed := newDBPath != oldDBPath
	if changed {
		w.dbPath = newDBPath
		w.store = nil
		delete(w.observedMtimes, oldDBPath)
	}
	w.mu.Unlock()

	w.recordMtime(w.cfgPath, mtime)
	return nil
}

func (w *Watcher) reloadDatabaseIfChanged() error {
	w.mu.Lock()
	dbPath := w.dbPath
	w.mu.Unlock()
	if dbPath == "" {
		return nil
	}

	advanced, mtime, err := w.mtimeAdvanced(dbPath)
	if err != nil || !advanced {
		return err
	}

	store, err := compiledb.Load(dbPath, compiledb.NewArgFileCache())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	w.mu.Lock()
	w.store = store
	w.mu.Unlock()
	w.recordMtime(dbPath, mtime)
	w.notifySubscribers()
	return nil
}

// notifySubscribers pushes sourceKitOptionsChanged to every subscribed URI
// after a database reload (spec §4.F "Notification"). A resolution
// failure is logged and the URI stays subscribed.
func (w *Watcher) notifySubscribers() {
	w.mu.Lock()
	store := w.store
	cfg := w.cfg
	uris := make([]string, 0, len(w.observedURIs))
	for uri := range w.observedURIs {
		uris = append(uris, uri)
	}
	w.mu.Unlock()

	for _, uri := range uris {
		options, workDir, ok := w.resolve(uri, store, cfg)
		if !ok {
			slog.Warn("failed to resolve flags for subscribed URI", "uri", uri)
			continue
		}
		err := w.notifier.Notify("build/sourceKitOptionsChanged", map[string]any{
			"uri":              uri,
			"options":          options,
			"workingDirectory": workDir,
		})
		if err != nil {
			slog.Warn("failed to send sourceKitOptionsChanged", "uri", uri, "err", err)
		}
	}
}

func (w *Watcher) maybeReparseLog(cfg *config.Config) error {
	if cfg.BuildRoot() == "" {
		return nil
	}
	manifestPath := filepath.Join(cfg.BuildRoot(), "Logs", "Build", "LogStoreManifest.plist")

	w.mu.Lock()
	dbPath := w.dbPath
	w.mu.Unlock()
	if dbPath == "" {
		return nil
	}
	lockPath := dbPath + ".lock"

	manifestInfo, err := os.Stat(manifestPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	logPath, ok, err := NewestActivityLog(manifestPath, cfg.Scheme())
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	logInfo, err := os.Stat(logPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	lastLog, haveLastLog := w.observedMtimes[logPath]
	lastManifest, haveLastManifest := w.observedMtimes[manifestPath]
	if haveLastLog && haveLastManifest &&
		!logInfo.ModTime().After(lastLog) && !manifestInfo.ModTime().After(lastManifest) {
		return nil
	}

	acquired, err := acquireReparseLock(lockPath)
	if err != nil {
		return err
	}
	if !acquired {
		w.mu.Lock()
		w.lockingOutput = true
		w.mu.Unlock()
		return nil
	}
	defer func() {
		_ = releaseReparseLock(lockPath)
		w.mu.Lock()
		w.lockingOutput = false
		w.mu.Unlock()
	}()

	if err := w.reparse(logPath, dbPath, cfg.SkipValidateBin()); err != nil {
		return err
	}

	w.recordMtime(logPath, logInfo.ModTime())
	w.recordMtime(manifestPath, manifestInfo.ModTime())
	return nil
}

func (w *Watcher) reparse(logPath, dbPath string, skipValidateBin bool) error {
	f, err := os.Open(logPath)
	if err != nil {
		return fmt.Errorf("opening activity log: %w", err)
	}
	defer f.Close()

	tok, err := activitylog.New(f)
	if err != nil {
		return fmt.Errorf("decoding activity log: %w", err)
	}
	result, err := xclog.Parse(tok, skipValidateBin)
	if err != nil {
		return fmt.Errorf("parsing activity log: %w", err)
	}

	oldRecords, err := compiledb.LoadRaw(dbPath)
	if err != nil {
		return fmt.Errorf("loading previous compile database: %w", err)
	}
	merged := compiledb.Merge(oldRecords, result.Records)
	if err := compiledb.SaveRaw(dbPath, merged); err != nil {
		return fmt.Errorf("saving compile database: %w", err)
	}

	store, err := compiledb.Load(dbPath, compiledb.NewArgFileCache())
	if err != nil {
		return fmt.Errorf("reloading compile database: %w", err)
	}
	w.mu.Lock()
	w.store = store
	w.mu.Unlock()
	w.notifySubscribers()
	return nil
}
