package scan

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Dir identifies one numbered scan directory within an exam tree.
type Dir struct {
	// Path is the absolute path to the scan directory.
	Path string
	// Name is the directory basename as it appears on disk, e.g. "0005".
	Name string
	// Number is the parsed scan number used for output naming.
	Number int
}

// Discover lists the numbered scan directories under examDir in ascending
// numeric order. Directories whose names are not pure digits are ignored;
// scanner consoles drop helper directories like "medata" alongside scans.
func Discover(examDir string) ([]Dir, error) {
	entries, err := os.ReadDir(examDir)
	if err != nil {
		return nil, fmt.Errorf("read exam directory: %w", err)
	}

	dirs := make([]Dir, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() || !isDigits(entry.Name()) {
			continue
		}
		number, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}
		path, err := filepath.Abs(filepath.Join(examDir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("resolve scan path: %w", err)
		}
		dirs = append(dirs, Dir{Path: path, Name: entry.Name(), Number: number})
	}

	sort.Slice(dirs, func(i, j int) bool { return dirs[i].Number < dirs[j].Number })
	return dirs, nil
}

// ListDICOMs returns the sorted absolute paths of the DICOM files directly
// inside dir. Case-insensitive on the extension.
func ListDICOMs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read scan directory: %w", err)
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !strings.EqualFold(filepath.Ext(entry.Name()), ".dcm") {
			continue
		}
		path, err := filepath.Abs(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("resolve dicom path: %w", err)
		}
		files = append(files, path)
	}

	sort.Strings(files)
	return files, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
