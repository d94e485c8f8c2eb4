package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/xcode-build-server/xcode-build-server-go/internal/bsp"
	"github.com/xcode-build-server/xcode-build-server-go/internal/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Build Server Protocol daemon over stdio",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfgPath := configPath
	if cfgPath == "" {
		cfgPath = config.DefaultPath
	}

	s, err := bsp.NewServer(cfgPath, os.Stdin, os.Stdout)
	if err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return s.Run()
}
