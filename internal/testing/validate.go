package testing

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// ContainsNonASCIIPrintable returns true if the string has any
// characters outside ASCII [32..126], i.e., not a standard printable.
func ContainsNonASCIIPrintable(s string) bool {
	for _, r := range s {
		if r < 32 || r > 126 {
			return true
		}
	}
	return false
}

// GroundTruthEntry is one expected entry of an image.
type GroundTruthEntry struct {
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	IsDirectory bool   `json:"is_directory"`
}

// Validate compares the entries of an image against the ground truth JSON at gtPath. Missing entries, extra entries
// and size or type mismatches are reported together in the returned error.
func Validate(entries []*Entry, gtPath string) error {
	groundTruth, err := LoadGroundTruth(gtPath)
	if err != nil {
		return err
	}

	found := make(map[string]*Entry)
	for _, e := range entries {
		if ContainsNonASCIIPrintable(e.FullPath) {
			return fmt.Errorf("non-ASCII printable characters in entry: %q", e.FullPath)
		}
		found[e.FullPath] = e
	}

	var problems []string
	expected := make(map[string]bool)
	for _, gt := range groundTruth {
		expected[gt.Name] = true
		e, ok := found[gt.Name]
		switch {
		case !ok:
			problems = append(problems, "missing "+gt.Name)
		case e.IsDir() != gt.IsDirectory:
			problems = append(problems, fmt.Sprintf("%s: directory is %t, want %t", gt.Name, e.IsDir(), gt.IsDirectory))
		case !gt.IsDirectory && int64(e.Record.DataLength) != gt.Size:
			problems = append(problems, fmt.Sprintf("%s: size %d, want %d", gt.Name, e.Record.DataLength, gt.Size))
		}
	}
	for name := range found {
		if !expected[name] {
			problems = append(problems, "extra "+name)
		}
	}

	if len(problems) > 0 {
		sort.Strings(problems)
		return fmt.Errorf("image does not match %s:\n  %s", gtPath, strings.Join(problems, "\n  "))
	}
	return nil
}

// LoadGroundTruth reads the JSON from a file and unmarshals it into a slice.
func LoadGroundTruth(filePath string) ([]GroundTruthEntry, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var entries []GroundTruthEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON: %w", err)
	}

	return entries, nil
}
