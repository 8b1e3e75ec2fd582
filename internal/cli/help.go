package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/law-makers/harvest/internal/ui"
)

// Command groups shown in the root help
const (
	groupExtract = "extract"
	groupServe   = "serve"
	groupSetup   = "setup"
)

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: groupExtract, Title: "Extraction"},
		&cobra.Group{ID: groupServe, Title: "Lookup"},
		&cobra.Group{ID: groupSetup, Title: "Setup"},
	)
}

func helpFunc(cmd *cobra.Command, _ []string) {
	writeHelp(cmd.OutOrStdout(), cmd)
}

func usageFunc(cmd *cobra.Command) error {
	w := cmd.ErrOrStderr()
	writeUsageLine(w, cmd)
	writeCommands(w, cmd)
	writeFlags(w, "Flags", cmd.LocalFlags())
	fmt.Fprintf(w, "\n%s\n", ui.Info(fmt.Sprintf("Run %q for details.", cmd.CommandPath()+" --help")))
	return nil
}

// writeHelp renders the full help page of cmd: description, usage, examples,
// subcommands by group and flags
func writeHelp(w io.Writer, cmd *cobra.Command) {
	fmt.Fprintf(w, "\n%s", ui.Bold(ui.ColorCyan+cmd.CommandPath()))
	if cmd.Short != "" {
		fmt.Fprintf(w, "  %s", cmd.Short)
	}
	fmt.Fprintln(w)
	if cmd.Long != "" {
		fmt.Fprintf(w, "\n%s\n", indent(strings.TrimSpace(cmd.Long), "  "))
	}

	writeUsageLine(w, cmd)
	writeExamples(w, cmd.Example)
	writeCommands(w, cmd)
	writeFlags(w, "Flags", cmd.LocalFlags())
	writeFlags(w, "Global flags", cmd.InheritedFlags())

	if cmd.HasAvailableSubCommands() {
		fmt.Fprintf(w, "\n%s\n", ui.Info(fmt.Sprintf("Run %q for more about a command.", cmd.CommandPath()+" <command> --help")))
	}
	fmt.Fprintln(w)
}

func section(w io.Writer, title string) {
	fmt.Fprintf(w, "\n%s\n", ui.Bold(title))
}

func writeUsageLine(w io.Writer, cmd *cobra.Command) {
	section(w, "Usage")
	if cmd.Runnable() {
		fmt.Fprintf(w, "  %s\n", cmd.UseLine())
	}
	if cmd.HasAvailableSubCommands() {
		fmt.Fprintf(w, "  %s <command> [flags]\n", cmd.CommandPath())
	}
}

// writeExamples prints comment lines dimmed and commands with a prompt
func writeExamples(w io.Writer, example string) {
	if strings.TrimSpace(example) == "" {
		return
	}
	section(w, "Examples")
	blank := false
	for _, line := range strings.Split(example, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
			blank = true
		case strings.HasPrefix(line, "#"):
			if blank {
				fmt.Fprintln(w)
			}
			fmt.Fprintf(w, "  %s\n", ui.Info(line))
			blank = false
		default:
			fmt.Fprintf(w, "  %s\n", ui.Success("$ "+line))
			blank = false
		}
	}
}

// writeCommands lists subcommands under their group titles. Commands
// without a group are listed last under "Other".
func writeCommands(w io.Writer, cmd *cobra.Command) {
	if !cmd.HasAvailableSubCommands() {
		return
	}
	byGroup := map[string][]*cobra.Command{}
	for _, c := range cmd.Commands() {
		if c.IsAvailableCommand() && c.Name() != "help" {
			byGroup[c.GroupID] = append(byGroup[c.GroupID], c)
		}
	}

	titles := make([]string, 0, len(cmd.Groups())+1)
	ids := make([]string, 0, len(cmd.Groups())+1)
	for _, g := range cmd.Groups() {
		titles = append(titles, g.Title)
		ids = append(ids, g.ID)
	}
	titles = append(titles, "Other")
	ids = append(ids, "")

	for i, id := range ids {
		cmds := byGroup[id]
		if len(cmds) == 0 {
			continue
		}
		if len(ids) == 1 {
			section(w, "Commands")
		} else {
			section(w, titles[i]+" commands")
		}
		tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
		for _, c := range cmds {
			fmt.Fprintf(tw, "  %s\t%s\n", c.Name(), c.Short)
		}
		tw.Flush()
	}
}

// writeFlags prints one line per visible flag: short and long name, value
// type, usage and a non-empty default
func writeFlags(w io.Writer, title string, flags *pflag.FlagSet) {
	if !flags.HasAvailableFlags() {
		return
	}
	section(w, title)
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	flags.VisitAll(func(f *pflag.Flag) {
		if f.Hidden {
			return
		}
		name := "    --" + f.Name
		if f.Shorthand != "" {
			name = "-" + f.Shorthand + ", --" + f.Name
		}
		if t := f.Value.Type(); t != "bool" {
			name += " " + t
		}
		usage := f.Usage
		if f.DefValue != "" && f.DefValue != "false" && f.DefValue != "[]" && f.DefValue != "0" {
			usage += fmt.Sprintf(" (default %s)", f.DefValue)
		}
		fmt.Fprintf(tw, "  %s\t%s\n", name, usage)
	})
	tw.Flush()
}

func indent(text, prefix string) string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		if l != "" {
			lines[i] = prefix + l
		}
	}
	return strings.Join(lines, "\n")
}
