package command

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// serverInfo is the output of the info command.
type serverInfo struct {
	Schema     string `yaml:"schema"`
	Version    string `yaml:"version"`
	Driver     string `yaml:"driver"`
	Autocommit bool   `yaml:"autocommit"`
}

func newInfoCommand(dc *DBCommand) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Print server details and warn about a non-utf8 charset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := dc.open(ctx)
			if err != nil {
				return err
			}

			db.CheckCharset(ctx)
			info := serverInfo{
				Schema:     db.DatabaseSchema(ctx),
				Version:    db.DatabaseVersion(ctx),
				Driver:     db.DriverVersion(ctx),
				Autocommit: db.GetAutoCommit(ctx),
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			defer enc.Close()
			return enc.Encode(info)
		},
	}
}
