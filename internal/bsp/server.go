// Package bsp implements the Build Server Protocol dispatcher: a framed
// JSON-RPC 2.0 loop over stdio, method routing, and the background
// watcher that keeps answers fresh (spec §4.G).
package bsp

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"syscall"

	"github.com/xcode-build-server/xcode-build-server-go/internal/compiledb"
	"github.com/xcode-build-server/xcode-build-server-go/internal/config"
	"github.com/xcode-build-server/xcode-build-server-go/internal/flags"
	"github.com/xcode-build-server/xcode-build-server-go/internal/watcher"
)

// Server dispatches BSP requests read from a Conn, sharing one mutex with
// its watcher for every state mutation and stdout write (spec §5).
type Server struct {
	mu   sync.Mutex
	conn *Conn

	cfgPath   string
	cfg       *config.Config
	w         *watcher.Watcher
	respCache *flags.ResponseFileCache

	rootPath          string
	indexDatabasePath string
	indexStorePath    string

	initialized bool
	exit        bool
}

// NewServer loads cfgPath and wires a dispatcher reading from r and
// writing framed responses/notifications to out.
func NewServer(cfgPath string, r io.Reader, out io.Writer) (*Server, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	s := &Server{
		cfgPath:   cfgPath,
		cfg:       cfg,
		respCache: flags.NewResponseFileCache(),
	}
	s.conn = NewConn(r, out, &s.mu)
	s.w = watcher.New(&s.mu, cfgPath, cfg, s.conn, s.resolveFlagsForURI)
	return s, nil
}

// Run processes requests until the input stream closes or build/exit is
// received. A write that finds stdout closed ends Run with an error
// immediately (spec §4.G "write failure on closed output exits the
// process"); other handler errors are logged and the loop continues.
func (s *Server) Run() error {
	for {
		msg, err := s.conn.ReadMessage()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("reading request: %w", err)
		}

		if err := s.dispatch(msg); err != nil {
			if errors.Is(err, syscall.EPIPE) || errors.Is(err, os.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
				return fmt.Errorf("writing to client: %w", err)
			}
			slog.Warn("request handling failed", "method", msg.Method, "err", err)
		}
		if s.hasExited() {
			return nil
		}
	}
}

func (s *Server) hasExited() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exit
}

func (s *Server) dispatch(msg *rpcMessage) error {
	switch msg.Method {
	case "build/initialize":
		return s.handleInitialize(msg)
	case "build/initialized":
		return s.handleInitialized(msg)
	case "textDocument/registerForChanges":
		return s.handleRegisterForChanges(msg)
	case "textDocument/sourceKitOptions":
		return s.handleSourceKitOptions(msg)
	case "workspace/buildTargets":
		return s.conn.WriteResult(msg.ID, map[string]any{"targets": []any{}})
	case "buildTarget/sources":
		return s.conn.WriteResult(msg.ID, map[string]any{"items": []any{}})
	case "build/shutdown":
		return s.handleShutdown(msg)
	case "build/exit":
		s.mu.Lock()
		s.exit = true
		s.mu.Unlock()
		return nil
	default:
		if len(msg.ID) == 0 {
			// Unknown notification: ignored silently (spec §4.G).
			return nil
		}
		return s.conn.WriteError(msg.ID, 123, fmt.Sprintf("%s %s", errUnknownMethod, msg.Method))
	}
}

type initializeParams struct {
	RootURI string `json:"rootUri"`
}

func (s *Server) handleInitialize(msg *rpcMessage) error {
	var params initializeParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return fmt.Errorf("decoding build/initialize params: %w", err)
	}
	rootPath, err := pathFromURI(params.RootURI)
	if err != nil {
		rootPath = params.RootURI // best-effort: still produce a cache dir
	}

	s.mu.Lock()
	s.rootPath = rootPath
	cfg := s.cfg
	s.mu.Unlock()

	indexDatabasePath, indexStorePath, err := resolveIndexPaths(params.RootURI, cfg)
	if err != nil {
		return fmt.Errorf("resolving index paths: %w", err)
	}
	s.mu.Lock()
	s.indexDatabasePath = indexDatabasePath
	s.indexStorePath = indexStorePath
	s.mu.Unlock()

	return s.conn.WriteResult(msg.ID, map[string]any{
		"displayName": "xcode build server",
		"version":     "0.3",
		"bspVersion":  "2.0",
		"rootUri":     params.RootURI,
		"capabilities": map[string]any{
			"languageIds": []string{"c", "cpp", "objective-c", "objective-cpp", "swift"},
		},
		"data": map[string]any{
			"indexDatabasePath": indexDatabasePath,
			"indexStorePath":    indexStorePath,
		},
	})
}

func (s *Server) handleInitialized(msg *rpcMessage) error {
	s.mu.Lock()
	already := s.initialized
	s.initialized = true
	s.mu.Unlock()
	if !already {
		s.w.Start()
	}
	return nil
}

type registerParams struct {
	URI    string `json:"uri"`
	Action string `json:"action"`
}

func (s *Server) handleRegisterForChanges(msg *rpcMessage) error {
	var params registerParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return fmt.Errorf("decoding registerForChanges params: %w", err)
	}

	// Respond first, then (for "register") emit the initial
	// sourceKitOptionsChanged — spec §4.G / §5 ordering guarantee (P6).
	if err := s.conn.WriteResult(msg.ID, nil); err != nil {
		return err
	}

	switch params.Action {
	case "register":
		store := s.w.CurrentStore()
		cfg := s.w.CurrentConfig()
		options, workDir, ok := s.resolveFlagsForURI(params.URI, store, cfg)
		if !ok {
			slog.Warn("could not resolve flags on register, leaving unsubscribed", "uri", params.URI)
			return nil
		}
		s.w.Subscribe(params.URI)
		return s.conn.Notify("build/sourceKitOptionsChanged", map[string]any{
			"uri":              params.URI,
			"options":          options,
			"workingDirectory": workDir,
		})
	case "unregister":
		s.w.Unsubscribe(params.URI)
	}
	return nil
}

type sourceKitOptionsParams struct {
	URI string `json:"uri"`
}

func (s *Server) handleSourceKitOptions(msg *rpcMessage) error {
	var params sourceKitOptionsParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return fmt.Errorf("decoding sourceKitOptions params: %w", err)
	}

	store := s.w.CurrentStore()
	cfg := s.w.CurrentConfig()
	options, workDir, ok := s.resolveFlagsForURI(params.URI, store, cfg)
	if !ok {
		// spec §7 MissingCommand: editor gets empty flags, not an error.
		return s.conn.WriteResult(msg.ID, map[string]any{
			"options":          []string{},
			"workingDirectory": "",
			"do_cache":         false,
		})
	}
	return s.conn.WriteResult(msg.ID, map[string]any{
		"options":          options,
		"workingDirectory": workDir,
	})
}

func (s *Server) handleShutdown(msg *rpcMessage) error {
	s.w.Stop()
	return s.conn.WriteResult(msg.ID, nil)
}

// resolveFlagsForURI is shared by registerForChanges, sourceKitOptions,
// and the watcher's own post-reload notifications (watcher.FlagsResolver).
func (s *Server) resolveFlagsForURI(uri string, store *compiledb.Store, cfg *config.Config) ([]string, string, bool) {
	path, err := pathFromURI(uri)
	if err != nil {
		slog.Warn("ignoring non-file uri", "uri", uri, "err", err)
		return nil, "", false
	}
	if store == nil {
		return nil, "", false
	}

	options, ok, err := flags.GetFlags(path, store, s.respCache)
	if err != nil {
		slog.Warn("flag resolution failed", "uri", uri, "err", err)
		return nil, "", false
	}
	if !ok {
		return nil, "", false
	}
	return options, workingDirectoryFrom(options), true
}

// workingDirectoryFrom returns the value following -working-directory in
// options, or the process's current directory (spec §4.G
// textDocument/sourceKitOptions).
func workingDirectoryFrom(options []string) string {
	for i, opt := range options {
		if opt == "-working-directory" && i+1 < len(options) {
			return options[i+1]
		}
	}
	wd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return wd
}
