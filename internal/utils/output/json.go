package output

import (
	"bytes"
	"encoding/json"
	"os"

	"github.com/law-makers/harvest/pkg/models"
)

// SaveJSON writes the full batch report, indented, to filepath
func SaveJSON(report *models.BatchReport, filepath string) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return err
	}
	return os.WriteFile(filepath, buf.Bytes(), 0644)
}
