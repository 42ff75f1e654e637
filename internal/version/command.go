package version

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Command returns the `version` subcommand printing the full build info.
func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and build information.",
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), Full())
		},
	}
}
