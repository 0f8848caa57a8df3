// ygggo_dbconn is a command line client for a managed MySQL connection. It
// reads the same settings as the library and is mostly useful for checking
// connectivity and server configuration.
package main

import (
	"log/slog"
	"os"

	"github.com/yggai/ygggo_dbconn/cmd/ygggo_dbconn/command"
)

func main() {
	if err := command.GetRootCommand(nil).Execute(); err != nil {
		slog.Error("Command execution failed", "error", err)
		os.Exit(1)
	}
}
