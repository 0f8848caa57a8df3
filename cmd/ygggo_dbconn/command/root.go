package command

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	dbc "github.com/yggai/ygggo_dbconn"
)

// DBCommand holds the state shared by all subcommands.
type DBCommand struct {
	driver dbc.Driver

	configFile string
	logLevel   string
	wait       bool
	trace      bool

	settings *viper.Viper
	tracer   *sdktrace.TracerProvider
	logger   *slog.Logger
	db       *dbc.DB
}

// flagBindings maps command line flags onto setting keys.
var flagBindings = map[string]string{
	"host":     dbc.KeySQLHost,
	"port":     dbc.KeySQLPort,
	"login":    dbc.KeySQLLogin,
	"password": dbc.KeySQLPassword,
	"database": dbc.KeySQLDatabase,
	"debug":    dbc.KeySQLDebug,
}

// GetRootCommand creates the root command with all subcommands. A nil
// driver selects the MySQL driver.
func GetRootCommand(driver dbc.Driver) *cobra.Command {
	dc := &DBCommand{driver: driver}

	root := &cobra.Command{
		Use:   "ygggo_dbconn",
		Short: "Run statements over a managed MySQL connection",
		Long: `ygggo_dbconn opens the connection described by its settings and runs
one operation on it.

Settings are read from, in increasing priority:
  1. built-in defaults
  2. the file given by --config (yaml, toml or json)
  3. YGGGO_DBCONN_* environment variables, e.g. YGGGO_DBCONN_NETWORK_SQL_HOST
  4. command line flags`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			if err := dc.loadSettings(cmd.Flags()); err != nil {
				return err
			}
			return dc.startTracing(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return dc.close()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&dc.configFile, "config", "", "path to a settings file")
	flags.StringVar(&dc.logLevel, "log-level", "info", "log level: debug, info, warn or error")
	flags.BoolVar(&dc.wait, "wait", false, "retry with backoff until the database accepts connections")
	flags.BoolVar(&dc.trace, "trace", false, "print OpenTelemetry spans to stderr")
	flags.String("host", "", "database host")
	flags.Int("port", 0, "database port")
	flags.String("login", "", "database user")
	flags.String("password", "", "database password")
	flags.String("database", "", "schema to select")
	flags.Bool("debug", false, "log every statement")

	root.AddCommand(
		newQueryCommand(dc),
		newInfoCommand(dc),
		newKeepAliveCommand(dc),
		newEscapeCommand(),
	)
	return root
}

func (dc *DBCommand) loadSettings(flags *pflag.FlagSet) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(dc.logLevel)); err != nil {
		return fmt.Errorf("invalid --log-level %q: %w", dc.logLevel, err)
	}
	dc.logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	v, err := dbc.NewSettings(dc.configFile)
	if err != nil {
		return err
	}
	for name, key := range flagBindings {
		// Only explicitly set flags override; unset ones keep lower layers.
		if f := flags.Lookup(name); f != nil && f.Changed {
			if err := v.BindPFlag(key, f); err != nil {
				return fmt.Errorf("binding --%s: %w", name, err)
			}
		}
	}
	if dc.configFile != "" {
		dbc.WatchSettings(v, dc.logger)
	}
	dc.settings = v
	return nil
}

// startTracing installs a stdout span exporter when --trace is set.
func (dc *DBCommand) startTracing(cmd *cobra.Command) error {
	if !dc.trace {
		return nil
	}
	exporter, err := stdouttrace.New(
		stdouttrace.WithWriter(cmd.ErrOrStderr()),
		stdouttrace.WithPrettyPrint(),
	)
	if err != nil {
		return fmt.Errorf("failed to create span exporter: %w", err)
	}
	dc.tracer = sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	return nil
}

// open returns the DB, creating it on first use.
func (dc *DBCommand) open(ctx context.Context) (*dbc.DB, error) {
	if dc.db != nil {
		return dc.db, nil
	}
	opts := dbc.Options{Driver: dc.driver, Logger: dc.logger}
	if dc.tracer != nil {
		opts.TracerProvider = dc.tracer
		if opts.Driver == nil {
			opts.Driver = &dbc.MySQLDriver{TracerProvider: dc.tracer}
		}
	}
	dc.db = dbc.New(dc.settings, opts)
	if dc.wait {
		if err := dc.db.WaitForConnection(ctx, dbc.DefaultReconnectPolicy()); err != nil {
			return nil, err
		}
	}
	return dc.db, nil
}

func (dc *DBCommand) close() error {
	var err error
	if dc.db != nil {
		err = dc.db.Close()
		dc.db = nil
	}
	if dc.tracer != nil {
		// Flush spans before the process exits.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := dc.tracer.Shutdown(ctx); shutdownErr != nil && err == nil {
			err = fmt.Errorf("failed to shutdown OpenTelemetry: %w", shutdownErr)
		}
		dc.tracer = nil
	}
	return err
}
