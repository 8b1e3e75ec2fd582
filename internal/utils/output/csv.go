package output

import (
	"encoding/csv"
	"os"
	"strconv"
	"strings"

	"github.com/law-makers/harvest/pkg/models"
)

var csvHeader = []string{
	"index", "source_kind", "key", "state", "failed_at", "failure_kind",
	"error", "attempts", "records", "skipped", "identifiers", "duration_ms",
}

// SaveCSV writes one row per target outcome. Returns an error on failure.
func SaveCSV(report *models.BatchReport, filepath string) error {
	file, err := os.Create(filepath)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(csvHeader); err != nil {
		return err
	}
	for _, out := range report.Outcomes {
		row := []string{
			strconv.Itoa(out.Index),
			string(out.Target.SourceKind),
			out.Target.Key,
			string(out.State),
			string(out.FailedAt),
			out.FailureKind,
			out.Error,
			strconv.Itoa(out.Attempts),
			strconv.Itoa(out.Records),
			strconv.Itoa(out.Skipped),
			strings.Join(out.Identifiers, " "),
			strconv.FormatInt(out.Duration.Milliseconds(), 10),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}
