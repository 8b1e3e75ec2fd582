// Package output exports batch reports to files.
package output

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/law-makers/harvest/pkg/models"
)

// Save picks the format from the file extension: .csv, .md or .json (default)
func Save(report *models.BatchReport, path string) error {
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		err = SaveCSV(report, path)
	case ".md", ".markdown":
		err = SaveMarkdown(report, path)
	default:
		err = SaveJSON(report, path)
	}
	if err != nil {
		return fmt.Errorf("failed to write report %s: %w", path, err)
	}
	return nil
}
