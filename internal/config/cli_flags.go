package config

import "github.com/spf13/cobra"

// RegisterFlags registers common CLI flags on the provided root command
func RegisterFlags(cmd *cobra.Command) {
	if cmd == nil {
		return
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")
	cmd.PersistentFlags().BoolP("quiet", "q", false, "Suppress all output except errors")
	cmd.PersistentFlags().Bool("json", false, "Output in JSON format only")
	cmd.PersistentFlags().String("proxy", "", "Set HTTP/SOCKS5 proxy (e.g., http://localhost:8080)")
	cmd.PersistentFlags().String("timeout", "30s", "Set hard timeout for requests")
	cmd.PersistentFlags().String("user-agent", "", "Custom user agent string")
	cmd.PersistentFlags().StringArrayP("header", "H", nil, "Extra request header for every source (e.g., -H \"Accept-Language: en\")")
	cmd.PersistentFlags().String("config", "", "Path to configuration file (optional)")
	cmd.PersistentFlags().String("store", "", "Storage backend: memory, sqlite, postgres or json")
	cmd.PersistentFlags().String("dsn", "", "Storage DSN (sqlite path, postgres URL or json directory)")
	cmd.PersistentFlags().Int("workers", DefaultWorkers, "Number of targets processed concurrently")
	cmd.PersistentFlags().Int("retries", DefaultMaxRetries, "Retries for transient failures")
	cmd.PersistentFlags().String("export-dir", "", "Also write one JSON file per record into this directory")
}
