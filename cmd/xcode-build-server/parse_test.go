package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/xcode-build-server/xcode-build-server-go/internal/compiledb"
)

func TestEncodeRecordsTabIndented(t *testing.T) {
	var buf bytes.Buffer
	records := []compiledb.Record{{File: "/x/y.m", Command: "clang -c /x/y.m"}}
	if err := encodeRecords(&buf, records); err != nil {
		t.Fatalf("encodeRecords: %v", err)
	}
	if !strings.Contains(buf.String(), "\t\"file\"") {
		t.Errorf("expected tab-indented JSON, got %q", buf.String())
	}
}

func TestEncodeRecordsEmptyYieldsEmptyArray(t *testing.T) {
	var buf bytes.Buffer
	if err := encodeRecords(&buf, nil); err != nil {
		t.Fatalf("encodeRecords: %v", err)
	}
	if strings.TrimSpace(buf.String()) != "[]" {
		t.Errorf("expected an empty array, got %q", buf.String())
	}
}
