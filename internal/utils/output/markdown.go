package output

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/law-makers/harvest/pkg/models"
)

// SaveMarkdown writes the report as a summary plus an outcome table
func SaveMarkdown(report *models.BatchReport, filepath string) error {
	var b strings.Builder

	fmt.Fprintf(&b, "# Run %s\n\n", report.RunID)
	fmt.Fprintf(&b, "- Started: %s\n", report.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "- Duration: %s\n", report.Duration().Round(time.Millisecond))
	fmt.Fprintf(&b, "- Done: %d, Failed: %d, Records: %d\n", report.Done(), report.Failed(), report.Records())

	if kinds := report.FailureKinds(); len(kinds) > 0 {
		byKind := report.FailuresByKind()
		b.WriteString("\n## Failures by kind\n\n")
		for _, k := range kinds {
			fmt.Fprintf(&b, "- `%s`: %d\n", k, byKind[k])
		}
	}

	b.WriteString("\n## Targets\n\n")
	b.WriteString("| # | Target | State | Records | Attempts | Detail |\n")
	b.WriteString("|---|--------|-------|---------|----------|--------|\n")
	for _, out := range report.Outcomes {
		detail := ""
		if !out.Succeeded() {
			detail = fmt.Sprintf("%s at %s: %s", out.FailureKind, out.FailedAt, out.Error)
		} else if out.Skipped > 0 {
			detail = fmt.Sprintf("%d items skipped", out.Skipped)
		}
		fmt.Fprintf(&b, "| %d | %s | %s | %d | %d | %s |\n",
			out.Index+1, cell(out.Target.String()), out.State, out.Records, out.Attempts, cell(detail))
	}

	return os.WriteFile(filepath, []byte(b.String()), 0644)
}

// cell escapes text for a markdown table cell
func cell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}
