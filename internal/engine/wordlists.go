package engine

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadWordLists reads a YAML word-list override file and merges it over the
// given base lists. Only the lists present in the file are replaced. A
// missing file is not an error; the base lists are returned unchanged.
func LoadWordLists(path string, base WordLists, logger *slog.Logger) (WordLists, error) {
	if path == "" {
		return base, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Debug("word list file does not exist, using defaults", "path", path)
			return base, nil
		}
		return base, fmt.Errorf("read word list file: %w", err)
	}

	var overrides WordLists
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return base, fmt.Errorf("parse word list file %s: %w", path, err)
	}

	logger.Info("loaded word list overrides", "path", path)
	return base.Merge(overrides), nil
}
