package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"mepipe/internal/config"
)

// resolveExamDir turns an exam argument into an existing directory: an
// absolute or relative path is used as-is, a bare exam name is looked up
// under the configured data directory.
func resolveExamDir(cfg *config.Config, arg string) (string, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return "", fmt.Errorf("exam is required")
	}

	expanded, err := config.ExpandPath(arg)
	if err != nil {
		return "", err
	}
	if info, err := os.Stat(expanded); err == nil && info.IsDir() {
		return expanded, nil
	}

	candidate := filepath.Join(cfg.Paths.DataDir, arg)
	if info, err := os.Stat(candidate); err == nil && info.IsDir() {
		return candidate, nil
	}
	return "", fmt.Errorf("exam directory not found: tried %s and %s", expanded, candidate)
}

// readListFile reads one entry per line, skipping blanks and # comments.
func readListFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open list file: %w", err)
	}
	defer file.Close()

	var entries []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		entries = append(entries, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read list file: %w", err)
	}
	return entries, nil
}

// mergeList combines inline flag values with the contents of an optional
// list file.
func mergeList(inline []string, file string) ([]string, error) {
	merged := append([]string(nil), inline...)
	if strings.TrimSpace(file) == "" {
		return merged, nil
	}
	fromFile, err := readListFile(file)
	if err != nil {
		return nil, err
	}
	return append(merged, fromFile...), nil
}
