package utils

import (
	"flag"
	"io"
	"testing"

	"github.com/omriShneor/rustdex/errors"
)

func TestSplitStringIntoCommandAndArguments(t *testing.T) {
	tests := []struct {
		line            string
		cmd, key, value string
	}{
		{"ping", "ping", "", ""},
		{"get foo", "get", "foo", ""},
		{"set foo bar", "set", "foo", "bar"},
		{"set city new york", "set", "city", "new york"},
		{`set "two words" 'a  b'`, "set", "two words", "a  b"},
		{`  list  `, "list", "", ""},
	}

	for _, tt := range tests {
		cmd, key, value, err := SplitStringIntoCommandAndArguments(tt.line)
		if err != nil {
			t.Fatalf("%q: %v", tt.line, err)
		}
		if cmd != tt.cmd || key != tt.key || value != tt.value {
			t.Errorf("%q: got (%q, %q, %q), want (%q, %q, %q)", tt.line, cmd, key, value, tt.cmd, tt.key, tt.value)
		}
	}
}

func TestSplitStringIntoCommandAndArgumentsErrors(t *testing.T) {
	for _, line := range []string{"", "   ", `set "unterminated`} {
		if _, _, _, err := SplitStringIntoCommandAndArguments(line); !errors.Is(errors.Invalid, err) {
			t.Errorf("%q: expected Invalid, got %v", line, err)
		}
	}
}

func TestParseServerFlags(t *testing.T) {
	newFlagSet := func() *flag.FlagSet {
		fs := flag.NewFlagSet("bitcask", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		return fs
	}

	f, err := parseServerFlags(newFlagSet(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if f.Directory != DefaultDirectoryPath || f.Port != DefaultPort || f.LogLevel != DefaultLogLevel {
		t.Fatalf("unexpected defaults: %+v", f)
	}
	if f.DataFileSizeSet {
		t.Fatal("dfsize should not be marked as set")
	}

	f, err = parseServerFlags(newFlagSet(), []string{"-dir", "/tmp/data", "-dfsize", "8", "-port", "7000", "-config", "bk.yaml"})
	if err != nil {
		t.Fatal(err)
	}
	if f.Directory != "/tmp/data" || f.Port != 7000 || f.Config != "bk.yaml" {
		t.Fatalf("unexpected flags: %+v", f)
	}
	if !f.DataFileSizeSet || f.DataFileSizeMB != 8 {
		t.Fatalf("dfsize not applied: %+v", f)
	}

	if _, err := parseServerFlags(newFlagSet(), []string{"-port", "nope"}); err == nil {
		t.Fatal("expected an error for a bad port")
	}
}
