package utils

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSplitStringIntoCommandAndArguments(t *testing.T) {
	tests := []struct {
		name, line      string
		cmd, key, value string
		wantErr         bool
	}{
		{name: "command only", line: "COUNT", cmd: "count"},
		{name: "key", line: "get foo", cmd: "get", key: "foo"},
		{name: "value", line: "set foo bar", cmd: "set", key: "foo", value: "bar"},
		{name: "joined value", line: "set foo hello world", cmd: "set", key: "foo", value: "hello world"},
		{name: "quoted", line: `set "my key" 'a  b'`, cmd: "set", key: "my key", value: "a  b"},
		{name: "unterminated quote", line: `set foo "bar`, wantErr: true},
		{name: "blank", line: "   ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, key, value, err := SplitStringIntoCommandAndArguments(tt.line)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.line)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cmd != tt.cmd || key != tt.key || value != tt.value {
				t.Fatalf("got (%q, %q, %q), want (%q, %q, %q)", cmd, key, value, tt.cmd, tt.key, tt.value)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		if _, err := NewLogger(level); err != nil {
			t.Errorf("NewLogger(%q): %v", level, err)
		}
	}
	if _, err := NewLogger("loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestTruncateAt(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "trunc")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	if _, err := f.WriteString("0123456789"); err != nil {
		t.Fatal(err)
	}
	if err := TruncateAt(f, 4); err != nil {
		t.Fatal(err)
	}
	info, err := f.Stat()
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() != 4 {
		t.Fatalf("size = %d, want 4", info.Size())
	}
}

func TestEnsureDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	for i := 0; i < 2; i++ {
		if err := EnsureDir(dir); err != nil {
			t.Fatalf("EnsureDir() call %d: %v", i+1, err)
		}
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		t.Fatalf("expected directory %s: %v", dir, err)
	}
}
