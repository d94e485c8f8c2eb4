package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/xcode-build-server/xcode-build-server-go/internal/activitylog"
	"github.com/xcode-build-server/xcode-build-server-go/internal/compiledb"
	"github.com/xcode-build-server/xcode-build-server-go/internal/xclog"
)

var (
	parseOutput          string
	parseAppend          bool
	parseSkipValidateBin bool
)

var parseCmd = &cobra.Command{
	Use:   "parse [xcactivitylog]",
	Short: "Decode an .xcactivitylog and print its compile database",
	Long: `parse is a debugging aid: it tokenizes a single .xcactivitylog (reading
stdin if no path is given) and prints the compile-command records it finds,
without touching buildServer.json or running the BSP loop.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runParse,
}

func init() {
	parseCmd.Flags().StringVarP(&parseOutput, "output", "o", "-", "output file, default stdout")
	parseCmd.Flags().BoolVarP(&parseAppend, "append", "a", false, "merge into an existing compile database instead of replacing it")
	parseCmd.Flags().BoolVar(&parseSkipValidateBin, "skip-validate-bin", false, "skip the swiftc/clang binary sanity check")
	rootCmd.AddCommand(parseCmd)
}

func runParse(cmd *cobra.Command, args []string) error {
	in := os.Stdin
	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("opening %s: %w", args[0], err)
		}
		defer f.Close()
		in = f
	}

	tok, err := activitylog.New(in)
	if err != nil {
		return fmt.Errorf("reading activity log: %w", err)
	}
	result, err := xclog.Parse(tok, parseSkipValidateBin)
	if err != nil {
		return fmt.Errorf("parsing activity log: %w", err)
	}

	records := result.Records
	if parseAppend && parseOutput != "-" {
		existing, err := compiledb.LoadRaw(parseOutput)
		if err != nil {
			return fmt.Errorf("loading existing compile database: %w", err)
		}
		records = compiledb.Merge(existing, records)
	}

	if parseOutput == "-" {
		return encodeRecords(os.Stdout, records)
	}
	return compiledb.SaveRaw(parseOutput, records)
}

func encodeRecords(w io.Writer, records []compiledb.Record) error {
	if records == nil {
		records = []compiledb.Record{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "\t")
	return enc.Encode(records)
}
