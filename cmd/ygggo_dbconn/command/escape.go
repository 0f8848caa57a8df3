package command

import (
	"fmt"

	"github.com/spf13/cobra"

	dbc "github.com/yggai/ygggo_dbconn"
)

func newEscapeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "escape <text>",
		Short: "Print text escaped for a quoted SQL literal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), dbc.EscapeString(args[0]))
			return err
		},
	}
}
