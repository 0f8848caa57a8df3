package ygggo_dbconn

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Setting keys. Values are looked up on every use, so a reloaded config file
// or a changed override takes effect on the next operation.
const (
	KeySQLHost     = "network.SQL_HOST"
	KeySQLPort     = "network.SQL_PORT"
	KeySQLLogin    = "network.SQL_LOGIN"
	KeySQLPassword = "network.SQL_PASSWORD"
	KeySQLDatabase = "network.SQL_DATABASE"

	KeySlowQueryLogEnable   = "logging.SQL_SLOW_QUERY_LOG_ENABLE"
	KeySlowQueryWarningTime = "logging.SQL_SLOW_QUERY_WARNING_TIME"
	KeySlowQueryErrorTime   = "logging.SQL_SLOW_QUERY_ERROR_TIME"
	KeySQLDebug             = "logging.DEBUG_SQL"
)

// EnvPrefix prefixes environment overrides, e.g. YGGGO_DBCONN_NETWORK_SQL_HOST.
const EnvPrefix = "YGGGO_DBCONN"

// Settings is a typed key lookup. *viper.Viper satisfies it.
type Settings interface {
	GetString(key string) string
	GetInt(key string) int
	GetBool(key string) bool
}

// SetDefaults registers the default value of every key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeySQLHost, "127.0.0.1")
	v.SetDefault(KeySQLPort, 3306)
	v.SetDefault(KeySQLLogin, "root")
	v.SetDefault(KeySQLPassword, "")
	v.SetDefault(KeySQLDatabase, "xidb")

	v.SetDefault(KeySlowQueryLogEnable, true)
	v.SetDefault(KeySlowQueryWarningTime, 100)
	v.SetDefault(KeySlowQueryErrorTime, 500)
	v.SetDefault(KeySQLDebug, false)
}

// NewSettings returns a viper instance with defaults, environment overrides
// and, when configFile is non-empty, the contents of that file.
func NewSettings(configFile string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if strings.TrimSpace(configFile) != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", configFile, err)
		}
	}
	return v, nil
}

// WatchSettings reloads the config file backing v whenever it changes.
func WatchSettings(v *viper.Viper, logger *slog.Logger) {
	if logger == nil {
		logger = defaultLogger
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		logger.Info("settings reloaded",
			slog.String("file", e.Name),
			slog.String("op", e.Op.String()),
		)
	})
	v.WatchConfig()
}
