package segment

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/omriShneor/rustdex/errors"
)

const (
	DataFilePrefix   = "bk_"
	MergedFilePrefix = "merged_"
	DataFileExt      = ".data"
	HintFileExt      = ".hint"
)

// DataFileName is the name of the data file of segment id, e.g. "bk_7.data".
func DataFileName(id uint32) string {
	return fmt.Sprintf("%s%d%s", DataFilePrefix, id, DataFileExt)
}

// HintFileName is the name of the hint file of segment id.
func HintFileName(id uint32) string {
	return fmt.Sprintf("%s%d%s", DataFilePrefix, id, HintFileExt)
}

// MergedFileName is the temporary name of a compaction output.
func MergedFileName(id uint32) string {
	return fmt.Sprintf("%s%d%s", MergedFilePrefix, id, DataFileExt)
}

// parseName extracts the id from names of the form <prefix><id><ext>.
func parseName(name, prefix, ext string) (uint32, bool) {
	if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ext) {
		return 0, false
	}
	digits := strings.TrimSuffix(strings.TrimPrefix(name, prefix), ext)
	if digits == "" {
		return 0, false
	}
	id, err := strconv.ParseUint(digits, 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(id), true
}

// Listing is what a directory scan found.
type Listing struct {
	Segments []uint32 // data file ids, ascending
	Hints    []uint32 // hint file ids, ascending
	Merged   []string // leftover compaction outputs
}

// List scans dir for segment files.
func List(dir string) (*Listing, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.E("segment.List", errors.IO, err)
	}

	l := &Listing{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if id, ok := parseName(name, DataFilePrefix, DataFileExt); ok {
			l.Segments = append(l.Segments, id)
		} else if id, ok := parseName(name, DataFilePrefix, HintFileExt); ok {
			l.Hints = append(l.Hints, id)
		} else if _, ok := parseName(name, MergedFilePrefix, DataFileExt); ok {
			l.Merged = append(l.Merged, name)
		}
	}

	// os.ReadDir sorts by name, which puts bk_10 before bk_9.
	slices.Sort(l.Segments)
	slices.Sort(l.Hints)
	return l, nil
}
