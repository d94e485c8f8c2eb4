// Command xcode-build-server serves Xcode compiler flags and index-store
// paths to SourceKit-LSP over the Build Server Protocol.
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	verbose    bool
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "xcode-build-server",
	Short: "Build Server Protocol daemon for Xcode projects",
	Long: `xcode-build-server bridges SourceKit-LSP to an Xcode build by reading
compiler invocations out of .xcactivitylog files and answering
textDocument/sourceKitOptions over stdio.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initLogging)
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to buildServer.json (defaults to ./buildServer.json)")
}

func initLogging() {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))
}
