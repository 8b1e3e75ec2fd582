package cli

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/law-makers/harvest/internal/ui"
	"github.com/law-makers/harvest/pkg/models"
)

var getSave bool

// getCmd runs a single target and prints what was stored
var getCmd = &cobra.Command{
	Use:   "get <kind> [key]",
	Short: "Extract one target and print the stored document",
	Long: `Runs one target through the same pipeline as "run" and prints the resulting
documents as JSON. Records go to a throwaway in-memory store unless --save is
given, in which case they are upserted into the configured store.`,
	Example: `  # Company master data
  harvest get static U72200KA2009PTC049889

  # Developer profile with repositories, saved to the store
  harvest get api octocat --save

  # Jobs from a listing page
  harvest get dynamic https://careers.example.com/jobs`,
	GroupID:     groupExtract,
	Args:        cobra.RangeArgs(1, 2),
	Annotations: map[string]string{annotationEphemeral: "true"},
	RunE:        runGet,
}

func init() {
	rootCmd.AddCommand(getCmd)

	getCmd.Flags().BoolVarP(&getSave, "save", "s", false, "Upsert into the configured store instead of memory")
}

func runGet(cmd *cobra.Command, args []string) error {
	a := GetApp(cmd)
	if a == nil {
		return fmt.Errorf("application not initialized")
	}
	defer closeApp(cmd)

	kind, err := models.ParseSourceKind(args[0])
	if err != nil {
		return err
	}
	target := models.ExtractionTarget{SourceKind: kind}
	if len(args) == 2 {
		target.Key = args[1]
	}
	if target.Key == "" && kind != models.KindDynamicList {
		return fmt.Errorf("%s targets need a key", kind)
	}

	out := a.Pipeline.RunOne(cmd.Context(), target)
	if !out.Succeeded() {
		return fmt.Errorf("%s failed at %s (%s): %s", target, out.FailedAt, out.FailureKind, out.Error)
	}

	docs := make([]*models.Attributes, 0, len(out.Identifiers))
	for _, id := range out.Identifiers {
		doc, err := a.Store.Get(cmd.Context(), kind, id)
		if err != nil {
			return fmt.Errorf("failed to read back %s: %w", id, err)
		}
		docs = append(docs, doc.Document())
	}

	log.Debug().Int("records", len(docs)).Dur("took", out.Duration).Msg("Target extracted")
	if out.Skipped > 0 {
		jsonOut, quiet := outputFlags(cmd)
		if !jsonOut && !quiet {
			fmt.Fprintln(cmd.ErrOrStderr(), ui.Info(fmt.Sprintf("%d items skipped", out.Skipped)))
		}
	}

	if len(docs) == 1 {
		return printJSON(cmd.OutOrStdout(), docs[0])
	}
	return printJSON(cmd.OutOrStdout(), docs)
}
