package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/law-makers/harvest/internal/app"
	"github.com/law-makers/harvest/internal/fault"
	"github.com/law-makers/harvest/internal/pipeline"
	"github.com/law-makers/harvest/internal/ratelimit"
	"github.com/law-makers/harvest/internal/store"
	"github.com/law-makers/harvest/pkg/models"
)

func TestHelp_ListsCommandsByGroup(t *testing.T) {
	var buf bytes.Buffer
	writeHelp(&buf, rootCmd)
	out := buf.String()

	for _, want := range []string{"Extraction commands", "Lookup commands", "Setup commands", "run", "get", "serve", "token", "--store string", "-H, --header stringArray"} {
		assert.Contains(t, out, want)
	}
	assert.Less(t, strings.Index(out, "Extraction commands"), strings.Index(out, "Setup commands"))
}

func TestHelp_RunShowsExamplesAndGlobalFlags(t *testing.T) {
	var buf bytes.Buffer
	writeHelp(&buf, runCmd)
	out := buf.String()

	assert.Contains(t, out, "$ harvest run --kind static")
	assert.Contains(t, out, "# Look up two companies by CIN")
	assert.Contains(t, out, "-k, --kind string")
	assert.Contains(t, out, "(default static)")
	assert.Contains(t, out, "Global flags")
	assert.Contains(t, out, "--json")
}

type closeTrackingStore struct {
	store.Store
	closed int
}

func (s *closeTrackingStore) Close() error {
	s.closed++
	return s.Store.Close()
}

type notFoundStrategy struct{}

func (notFoundStrategy) Name() string            { return "not-found" }
func (notFoundStrategy) Kind() models.SourceKind { return models.KindStaticForm }
func (notFoundStrategy) Extract(context.Context, models.ExtractionTarget) ([]*models.CanonicalRecord, error) {
	return nil, fault.Extraction(fault.KindNotFound, "no result table", nil)
}

func TestRunRun_FailedBatchStillClosesStore(t *testing.T) {
	st := &closeTrackingStore{Store: store.NewMemory()}
	logger := zerolog.Nop()
	a := &app.Application{
		Logger:   &logger,
		Governor: ratelimit.NewGovernor(nil),
		Store:    st,
		Pipeline: pipeline.New(st, pipeline.Config{Workers: 1}, notFoundStrategy{}),
	}

	cmd := &cobra.Command{}
	cmd.Flags().Bool("quiet", true, "")
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetContext(context.Background())
	SetApp(cmd, a)

	runKind, runTargets, runFromFile, runReport = "static", "", "", ""
	err := runRun(cmd, []string{"BAD1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 1 targets failed")
	assert.Equal(t, 1, st.closed)
	assert.Nil(t, GetApp(cmd))

	closeApp(cmd)
	assert.Equal(t, 1, st.closed, "a second close is a no-op")
}
