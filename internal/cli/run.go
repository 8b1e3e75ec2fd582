package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/law-makers/harvest/internal/pipeline"
	"github.com/law-makers/harvest/internal/ui"
	"github.com/law-makers/harvest/internal/utils/output"
	"github.com/law-makers/harvest/pkg/models"
)

var (
	runKind     string
	runTargets  string
	runFromFile string
	runReport   string
)

// runCmd extracts a batch of targets of one source kind
var runCmd = &cobra.Command{
	Use:   "run [keys...]",
	Short: "Extract a batch of targets into the store",
	Long: `Runs every target through its source strategy and upserts the resulting
records into the configured store. A failing target never aborts the batch;
the report at the end lists the outcome of each target in input order.

Keys can be given as arguments, as a comma separated --targets list or one per
line in --from-file (use - for stdin). Dynamic targets are page URLs; without
a key the configured listing page is used.`,
	Example: `  # Look up two companies by CIN
  harvest run --kind static U72200KA2009PTC049889 L17110MH1973PLC019786

  # Fetch developer profiles listed in a file
  harvest run --kind api --from-file logins.txt

  # Scrape the configured job board and also export JSON files
  harvest run --kind dynamic --export-dir ./out

  # Machine readable report
  harvest run --kind api octocat --json`,
	GroupID: groupExtract,
	RunE:    runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runKind, "kind", "k", "static", "Source kind: static, api or dynamic")
	runCmd.Flags().StringVarP(&runTargets, "targets", "t", "", "Comma separated target keys")
	runCmd.Flags().StringVarP(&runFromFile, "from-file", "f", "", "File with one target key per line (- for stdin)")
	runCmd.Flags().StringVar(&runReport, "report", "", "Also write the batch report to this file (.json, .csv or .md)")
}

func runRun(cmd *cobra.Command, args []string) error {
	a := GetApp(cmd)
	if a == nil {
		return fmt.Errorf("application not initialized")
	}
	defer closeApp(cmd)

	kind, err := models.ParseSourceKind(runKind)
	if err != nil {
		return err
	}
	targets, err := collectTargets(kind, args, runTargets, runFromFile, cmd.InOrStdin())
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		if kind != models.KindDynamicList {
			return fmt.Errorf("no targets given")
		}
		targets = []models.ExtractionTarget{{SourceKind: kind}}
	}

	jsonOut, quiet := outputFlags(cmd)
	var bar *progressbar.ProgressBar
	if !jsonOut && !quiet {
		bar = progressbar.NewOptions(len(targets),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("Extracting "+kind.Collection()),
			progressbar.OptionShowCount(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionClearOnFinish(),
		)
	}

	opts := []pipeline.Option{
		pipeline.WithObserver(func(out models.TargetOutcome) {
			if bar != nil {
				bar.Add(1)
			}
			if !out.Succeeded() {
				log.Warn().
					Str("target", out.Target.String()).
					Str("failed_at", string(out.FailedAt)).
					Str("kind", out.FailureKind).
					Msg(out.Error)
			}
		}),
	}
	if w, ok := a.ErrorSink(); ok {
		opts = append(opts, pipeline.WithErrorSink(w))
	}

	log.Info().Int("targets", len(targets)).Str("kind", string(kind)).Msg("Starting batch")
	report := a.Pipeline.Run(cmd.Context(), targets, opts...)
	if bar != nil {
		bar.Finish()
	}
	if q, ok := a.Governor.Snapshot(kind); ok {
		log.Info().Int("remaining", q.Remaining).Int("limit", q.Limit).Time("reset_at", q.ResetAt).Msg("API quota after batch")
	}

	if runReport != "" {
		if err := output.Save(report, runReport); err != nil {
			return err
		}
		log.Info().Str("file", runReport).Msg("Report saved")
	}

	if jsonOut {
		if err := printJSON(cmd.OutOrStdout(), report); err != nil {
			return err
		}
	} else if !quiet {
		printReport(cmd.OutOrStdout(), report)
	}

	if failed := report.Failed(); failed > 0 {
		return fmt.Errorf("%d of %d targets failed", failed, len(report.Outcomes))
	}
	return nil
}

// collectTargets merges positional keys, the --targets list and the lines of
// --from-file, in that order
func collectTargets(kind models.SourceKind, args []string, list, file string, stdin io.Reader) ([]models.ExtractionTarget, error) {
	targets := models.ParseTargets(kind, strings.Join(args, ","))
	targets = append(targets, models.ParseTargets(kind, list)...)

	if file == "" {
		return targets, nil
	}
	var data []byte
	var err error
	if file == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(file)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read targets: %w", err)
	}
	return append(targets, models.ParseTargets(kind, string(data))...), nil
}

func printReport(w io.Writer, report *models.BatchReport) {
	width := len("TARGET")
	for _, out := range report.Outcomes {
		if n := len(out.Target.Key); n > width {
			width = n
		}
	}
	if width > 60 {
		width = 60
	}

	fmt.Fprintf(w, "\n%s\n", ui.Bold(fmt.Sprintf("%-4s %-*s  %-8s %7s %8s  %s", "#", width, "TARGET", "STATE", "RECORDS", "ATTEMPTS", "DETAIL")))
	for _, out := range report.Outcomes {
		key := out.Target.Key
		if len(key) > width {
			key = key[:width-3] + "..."
		}
		state := string(out.State)
		pad := strings.Repeat(" ", max(0, 8-len(state)))

		detail := ""
		if !out.Succeeded() {
			detail = ui.Error(out.FailureKind) + " at " + string(out.FailedAt) + ": " + out.Error
		} else if out.Skipped > 0 {
			detail = ui.Info(fmt.Sprintf("%d items skipped", out.Skipped))
		}
		fmt.Fprintf(w, "%-4d %-*s  %s%s %7d %8d  %s\n",
			out.Index+1, width, key, ui.State(out.State), pad, out.Records, out.Attempts, detail)
	}

	fmt.Fprintf(w, "\n%s %d   %s %d   %s %d   %s %s\n",
		ui.Success("Done:"), report.Done(),
		ui.Error("Failed:"), report.Failed(),
		ui.Bold("Records:"), report.Records(),
		ui.Bold("Took:"), report.Duration().Round(time.Millisecond))

	byKind := report.FailuresByKind()
	for _, k := range report.FailureKinds() {
		fmt.Fprintf(w, "  %s %d\n", ui.Info(k+":"), byKind[k])
	}
	fmt.Fprintln(w)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
