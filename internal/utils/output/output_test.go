package output

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/law-makers/harvest/pkg/models"
)

func sampleReport() *models.BatchReport {
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	return &models.BatchReport{
		RunID:      "run-1",
		StartedAt:  start,
		FinishedAt: start.Add(1500 * time.Millisecond),
		Outcomes: []models.TargetOutcome{
			{
				Index:       0,
				Target:      models.ExtractionTarget{SourceKind: models.KindStaticForm, Key: "C1"},
				State:       models.StateDone,
				Attempts:    1,
				Records:     1,
				Identifiers: []string{"C1"},
			},
			{
				Index:       1,
				Target:      models.ExtractionTarget{SourceKind: models.KindStaticForm, Key: "C|2"},
				State:       models.StateFailed,
				FailedAt:    models.StateFetching,
				FailureKind: "NOT_FOUND",
				Error:       "result table not found",
				Attempts:    1,
			},
		},
	}
}

func TestSave_CSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.csv")
	if err := Save(sampleReport(), path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("invalid csv: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d", len(rows))
	}
	if rows[1][2] != "C1" || rows[1][3] != "DONE" || rows[1][10] != "C1" {
		t.Errorf("unexpected first row %v", rows[1])
	}
	if rows[2][5] != "NOT_FOUND" || rows[2][4] != "FETCHING" {
		t.Errorf("unexpected failure row %v", rows[2])
	}
}

func TestSave_Markdown(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.md")
	if err := Save(sampleReport(), path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	data, _ := os.ReadFile(path)
	md := string(data)

	for _, want := range []string{
		"# Run run-1",
		"- Done: 1, Failed: 1, Records: 1",
		"- `NOT_FOUND`: 1",
		`| 2 | STATIC_FORM:C\|2 | FAILED | 0 | 1 | NOT_FOUND at FETCHING: result table not found |`,
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q:\n%s", want, md)
		}
	}
}

func TestSave_DefaultsToJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.out")
	if err := Save(sampleReport(), path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	data, _ := os.ReadFile(path)

	var got models.BatchReport
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if got.RunID != "run-1" || len(got.Outcomes) != 2 {
		t.Errorf("unexpected report %+v", got)
	}
}

func TestSave_UnwritablePath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "report.csv")
	if err := Save(sampleReport(), path); err == nil {
		t.Error("expected an error for a missing directory")
	}
}
