package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/law-makers/harvest/internal/app"
	"github.com/law-makers/harvest/internal/config"
	"github.com/law-makers/harvest/internal/store"
	"github.com/law-makers/harvest/internal/transport"
	"github.com/law-makers/harvest/internal/ui"
)

// Command annotations read by the root pre-run hook
const (
	// annotationNoApp marks commands that run without an Application
	annotationNoApp = "harvest/no-app"
	// annotationEphemeral marks commands that use an in-memory store unless --save is given
	annotationEphemeral = "harvest/ephemeral-store"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "harvest",
	Short: "Extract company, developer and job records into one store",
	Long: `Harvest pulls records from three kinds of sources and upserts them into a
single document store keyed by their natural identifier.

- static:  company master data from a form POST (keyed by CIN)
- api:     developer profiles and repositories from a paged REST API (keyed by login)
- dynamic: job listings from a JavaScript-rendered page (keyed by URL)

Stored records can be served with the lookup API.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command under ctx. It is called by main.main().
func Execute(ctx context.Context) error {
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", ui.Error("Error:"), err)
	}
	return err
}

func init() {
	// Lazily initialize the application before running commands (avoid starting app for -h/help)
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if GetApp(cmd) != nil {
			return nil
		}

		cfg, err := config.Load(cmd)
		if err != nil {
			return err
		}
		if hdrs, _ := cmd.Flags().GetStringArray("header"); len(hdrs) > 0 {
			cfg.HTTP.Headers = transport.MergeHeaders(cfg.HTTP.Headers, transport.ParseHeaders(hdrs))
		}
		if cmd.Annotations[annotationNoApp] != "" {
			app.ConfigureLogging(cfg.Log, os.Stderr)
			return nil
		}

		var opts []app.Option
		if cmd.Annotations[annotationEphemeral] != "" {
			if save, _ := cmd.Flags().GetBool("save"); !save {
				opts = append(opts, app.WithStore(store.NewMemory()))
			}
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()
		a, err := app.New(ctx, cfg, opts...)
		if err != nil {
			return err
		}
		log.Debug().Str("command", cmd.Name()).Msg("Configuration loaded")

		SetApp(cmd, a)
		return nil
	}

	// Commands close the app themselves; this covers any that do not
	rootCmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		closeApp(cmd)
	}
}

func init() {
	// Register centralized flags
	config.RegisterFlags(rootCmd)

	// Customize help and version flag descriptions
	rootCmd.Flags().BoolP("help", "h", false, "Help for Harvest")
	rootCmd.Flags().Bool("version", false, "Version for Harvest")
}

// outputFlags reports whether the user asked for JSON output or quiet mode
func outputFlags(cmd *cobra.Command) (jsonOut, quiet bool) {
	jsonOut, _ = cmd.Flags().GetBool("json")
	quiet, _ = cmd.Flags().GetBool("quiet")
	return jsonOut, quiet
}

func init() {
	// Disable the default completion command
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.SetHelpFunc(helpFunc)
	rootCmd.SetUsageFunc(usageFunc)
}
