package main

import (
	"testing"
	"time"

	"github.com/0xRadioAc7iv/go-daybreak/core"
)

func TestParseFlagsDefaults(t *testing.T) {
	f, err := parseFlags(nil)
	if err != nil {
		t.Fatal(err)
	}
	if f.file != core.DefaultDatabaseFile {
		t.Errorf("file = %q", f.file)
	}
	if len(f.options()) != 2 {
		t.Errorf("expected sync and auto compaction options, got %d", len(f.options()))
	}
}

func TestParseFlags(t *testing.T) {
	f, err := parseFlags([]string{"-file", "x.db", "-port", "7000", "-sync=false", "-compact-interval", "0", "-sync-interval", "2s"})
	if err != nil {
		t.Fatal(err)
	}
	if f.file != "x.db" || f.port != 7000 || f.syncInterval != 2*time.Second {
		t.Errorf("unexpected flags %+v", f)
	}
	if len(f.options()) != 0 {
		t.Errorf("expected no options, got %d", len(f.options()))
	}

	if _, err := parseFlags([]string{"stray"}); err == nil {
		t.Error("expected error for positional argument")
	}
}
