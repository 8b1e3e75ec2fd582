package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/law-makers/harvest/pkg/models"
)

func TestCollectTargets_MergesSourcesInOrder(t *testing.T) {
	file := filepath.Join(t.TempDir(), "keys.txt")
	require.NoError(t, os.WriteFile(file, []byte("C3\n# comment\n\nC4\n"), 0644))

	got, err := collectTargets(models.KindStaticForm, []string{"C1"}, "C2, C1", file, nil)
	require.NoError(t, err)

	keys := make([]string, len(got))
	for i, tgt := range got {
		keys[i] = tgt.Key
		assert.Equal(t, models.KindStaticForm, tgt.SourceKind)
	}
	assert.Equal(t, []string{"C1", "C2", "C1", "C3", "C4"}, keys, "duplicates are kept")
}

func TestCollectTargets_Stdin(t *testing.T) {
	got, err := collectTargets(models.KindPagedAPI, nil, "", "-", strings.NewReader("octocat\ntorvalds\n"))
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestCollectTargets_MissingFile(t *testing.T) {
	_, err := collectTargets(models.KindPagedAPI, nil, "", filepath.Join(t.TempDir(), "nope"), nil)
	assert.Error(t, err)
}

func TestPrintReport(t *testing.T) {
	start := time.Now()
	report := &models.BatchReport{
		StartedAt:  start,
		FinishedAt: start.Add(time.Second),
		Outcomes: []models.TargetOutcome{
			{Index: 0, Target: models.ExtractionTarget{SourceKind: models.KindPagedAPI, Key: "octocat"}, State: models.StateDone, Attempts: 1, Records: 1},
			{Index: 1, Target: models.ExtractionTarget{SourceKind: models.KindPagedAPI, Key: "ghost"}, State: models.StateFailed,
				FailedAt: models.StateFetching, FailureKind: "NOT_FOUND", Error: "user not found", Attempts: 1},
		},
	}

	var buf bytes.Buffer
	printReport(&buf, report)
	out := buf.String()

	assert.Contains(t, out, "octocat")
	assert.Contains(t, out, "NOT_FOUND")
	assert.Contains(t, out, "user not found")
	assert.Contains(t, out, "NOT_FOUND:")
}
