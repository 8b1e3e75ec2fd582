package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/law-makers/harvest/internal/lookup"
)

var serveAddr string

// serveCmd exposes the store over HTTP
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve stored records over HTTP",
	Long: `Starts the lookup API on top of the configured store.

- GET /api/company/{cin}        company document or {"error": "Company not found"}
- GET /api/records/{kind}/{id}  any stored document; use ?id= for URL identifiers
- GET /health`,
	Example: `  # Serve the default sqlite store on :5000
  harvest serve

  # Serve a postgres store on another port
  harvest serve --store postgres --dsn postgres://localhost/harvest --addr :8080`,
	GroupID: groupServe,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a := GetApp(cmd)
		if a == nil {
			return fmt.Errorf("application not initialized")
		}
		defer closeApp(cmd)
		addr := a.Config.Server.Addr
		if serveAddr != "" {
			addr = serveAddr
		}
		return lookup.New(a.Store).ListenAndServe(cmd.Context(), addr)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from config, :5000)")
}
