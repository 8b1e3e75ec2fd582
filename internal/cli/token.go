package cli

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/law-makers/harvest/internal/auth"
	"github.com/law-makers/harvest/internal/ui"
)

// tokenCmd manages stored API tokens
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage stored API tokens",
	Long: `Stores API tokens in the OS keyring (or ~/.harvest/tokens where no keyring
is available). The developer API reads the token named "github" when neither
api.token nor GITHUB_TOKEN is set.`,
	GroupID:     groupSetup,
	Annotations: map[string]string{annotationNoApp: "true"},
}

var tokenSetCmd = &cobra.Command{
	Use:   "set <name> [token]",
	Short: "Store a token (read from stdin when omitted)",
	Example: `  harvest token set github ghp_xxxxxxxx
  echo $TOKEN | harvest token set github`,
	Args:        cobra.RangeArgs(1, 2),
	Annotations: map[string]string{annotationNoApp: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		var token string
		if len(args) == 2 {
			token = args[1]
		} else {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("failed to read token from stdin: %w", err)
			}
			token = line
		}
		if err := auth.SaveToken(args[0], strings.TrimSpace(token)); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s Token %q saved\n", ui.Success("✓"), args[0])
		return nil
	},
}

var tokenDeleteCmd = &cobra.Command{
	Use:         "delete <name>",
	Short:       "Delete a stored token",
	Args:        cobra.ExactArgs(1),
	Annotations: map[string]string{annotationNoApp: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := auth.DeleteToken(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s Token %q deleted\n", ui.Success("✓"), args[0])
		return nil
	},
}

var tokenListCmd = &cobra.Command{
	Use:         "list",
	Short:       "List stored token names",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{annotationNoApp: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		names, err := auth.ListTokens()
		if err != nil {
			return err
		}
		if len(names) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), ui.Info("No tokens stored"))
			return nil
		}
		for _, name := range names {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.AddCommand(tokenSetCmd, tokenDeleteCmd, tokenListCmd)
}
