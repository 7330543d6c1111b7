package utils

import (
	"flag"
	"os"
	"strings"

	"github.com/kballard/go-shellquote"

	"github.com/omriShneor/rustdex/errors"
)

const DefaultDirectoryPath = "./"
const DefaultDataFileSizeMB = 64
const DefaultPort = 6969
const DefaultLogLevel = "info"

// ServerFlags are the command-line settings of the server binary.
type ServerFlags struct {
	Directory string
	Config    string
	Port      int
	LogLevel  string

	// DataFileSizeMB is only meaningful when DataFileSizeSet is true, so a
	// config file value is not overridden by the flag default.
	DataFileSizeMB  int
	DataFileSizeSet bool
}

func HandleCLIInputs() *ServerFlags {
	f, _ := parseServerFlags(flag.CommandLine, os.Args[1:])
	return f
}

func parseServerFlags(fs *flag.FlagSet, args []string) (*ServerFlags, error) {
	f := &ServerFlags{}

	fs.StringVar(&f.Directory, "dir", DefaultDirectoryPath, "Directory Path to be used for this instance")
	fs.StringVar(&f.Config, "config", "", "Optional YAML config file for the storage engine")
	fs.IntVar(&f.DataFileSizeMB, "dfsize", DefaultDataFileSizeMB, "Max Datafile Size (in MB)")
	fs.IntVar(&f.Port, "port", DefaultPort, "Port to use for the TCP Server")
	fs.StringVar(&f.LogLevel, "log-level", DefaultLogLevel, "Log level (debug, info, warn, error)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	fs.Visit(func(fl *flag.Flag) {
		if fl.Name == "dfsize" {
			f.DataFileSizeSet = true
		}
	})

	return f, nil
}

// SplitStringIntoCommandAndArguments splits a CLI line into a command, a key
// and a value. Quoting follows shell rules, and everything after the key is
// joined back into the value so `set city new york` stores "new york".
func SplitStringIntoCommandAndArguments(line string) (cmd, key, value string, err error) {
	words, err := shellquote.Split(line)
	if err != nil {
		return "", "", "", errors.E("utils.SplitStringIntoCommandAndArguments", errors.Invalid, err)
	}

	switch len(words) {
	case 0:
		return "", "", "", errors.E("utils.SplitStringIntoCommandAndArguments", errors.Invalid, errors.Str("empty command"))
	case 1:
		return words[0], "", "", nil
	case 2:
		return words[0], words[1], "", nil
	}
	return words[0], words[1], strings.Join(words[2:], " "), nil
}
