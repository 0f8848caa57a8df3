package command

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newQueryCommand(dc *DBCommand) *cobra.Command {
	return &cobra.Command{
		Use:   "query <sql>",
		Short: "Execute a statement and print its rows as yaml",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := dc.open(cmd.Context())
			if err != nil {
				return err
			}
			rs, err := db.Query(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("query failed: %w", err)
			}

			cols := rs.Columns()
			out := make([]map[string]any, 0, rs.RowsCount())
			for rs.Next() {
				row := make(map[string]any, len(cols))
				for i, col := range cols {
					v, err := rs.Get(i)
					if err != nil {
						return err
					}
					row[col] = v
				}
				out = append(out, row)
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			defer enc.Close()
			return enc.Encode(out)
		},
	}
}
