package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"
)

var unsafePathChars = regexp.MustCompile(`[^a-zA-Z0-9.\-]+`)

// SanitizeTarget replaces characters unsafe for filesystem paths
// Allows alphanumeric, dots, and hyphens. Replaces everything else with underscore.
func SanitizeTarget(target string) string {
	return unsafePathChars.ReplaceAllString(target, "_")
}

// RunDirPath generates a consistent directory path for a run
// Format: {baseDir}/{target}_{YYYYMMDD}_{HHMMSS}
func RunDirPath(baseDir string, target string, startedAt time.Time) string {
	sanitized := SanitizeTarget(target)
	timestamp := startedAt.Format("20060102_150405")
	return filepath.Join(baseDir, fmt.Sprintf("%s_%s", sanitized, timestamp))
}

// CreateRunDir creates a run directory with subdirectories for reports and raw output
func CreateRunDir(baseDir string, target string, startedAt time.Time) (string, error) {
	runPath := RunDirPath(baseDir, target, startedAt)

	for _, dir := range []string{runPath, ReportsDir(runPath), RawDir(runPath)} {
		if err := EnsureDir(dir); err != nil {
			return "", fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	return runPath, nil
}

// ReportsDir is where rendered reports of a run are written.
func ReportsDir(runDir string) string {
	return filepath.Join(runDir, "reports")
}

// RawDir is where per-stage JSON output of a run is written.
func RawDir(runDir string) string {
	return filepath.Join(runDir, "raw")
}

// WriteRawJSON writes v as indented JSON to {runDir}/raw/{name}.
func WriteRawJSON(runDir, name string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", name, err)
	}
	path := filepath.Join(RawDir(runDir), name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// EnsureDir creates a directory and all parent directories if they don't exist
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}
