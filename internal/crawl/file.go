package crawl

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/git-pkgs/plugins/internal/pypi"
)

// IsFile reports whether location names an existing local file rather than
// an index URL. A file holds release documents previously written by Capture.
func IsFile(location string) bool {
	info, err := os.Stat(location)
	return err == nil && !info.IsDir()
}

// LoadFile reads release documents written by Capture.
func LoadFile(path string) ([]*pypi.Release, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading releases: %w", err)
	}

	var releases []*pypi.Release
	if err := json.Unmarshal(data, &releases); err != nil {
		return nil, fmt.Errorf("parsing releases %s: %w", path, err)
	}
	return releases, nil
}

// Capture writes release documents to path so they can be replayed with
// LoadFile.
func Capture(path string, releases []*pypi.Release) error {
	if releases == nil {
		releases = []*pypi.Release{}
	}
	// Maps marshal with sorted keys.
	data, err := json.MarshalIndent(releases, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling releases: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing releases: %w", err)
	}
	return nil
}
