package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

type Config struct {
	App struct {
		Env      string
		Timezone string
	} `mapstructure:"app"`

	HTTP struct {
		Addr            string
		ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	} `mapstructure:"http"`

	Storage struct {
		// Driver is "postgres" or "memory".
		Driver string
	} `mapstructure:"storage"`

	Postgres struct {
		DSN         string
		MaxConns    int32         `mapstructure:"max_conns"`
		LockTimeout time.Duration `mapstructure:"lock_timeout"`
	} `mapstructure:"postgres"`

	Metrics struct {
		Enabled bool
	} `mapstructure:"metrics"`

	Notify struct {
		TelegramToken     string `mapstructure:"telegram_token"`
		AdminChatID       int64  `mapstructure:"admin_chat_id"`
		LowStockThreshold int64  `mapstructure:"low_stock_threshold"`
	} `mapstructure:"notify"`

	Events struct {
		Brokers []string
		Topic   string
	} `mapstructure:"events"`

	Tracing struct {
		Endpoint    string
		Insecure    bool
		ServiceName string `mapstructure:"service_name"`
	} `mapstructure:"tracing"`
}

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "prod")
	v.SetDefault("app.timezone", "UTC")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.shutdown_timeout", 5*time.Second)
	v.SetDefault("storage.driver", DriverPostgres)
	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.lock_timeout", 3*time.Second)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("notify.telegram_token", "")
	v.SetDefault("notify.admin_chat_id", 0)
	v.SetDefault("notify.low_stock_threshold", 50)
	v.SetDefault("events.brokers", []string{})
	v.SetDefault("events.topic", "assemblyos.production")
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.insecure", false)
	v.SetDefault("tracing.service_name", "assemblyos")
}

// Load reads path (may be empty) and then APP_* env vars, e.g.
// APP_POSTGRES_DSN. A .env file in the working directory is loaded first
// if it exists.
func Load(path string) (Config, error) {
	if err := gotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, err
	}
	return c, c.Validate()
}

func (c Config) Validate() error {
	switch c.Storage.Driver {
	case DriverPostgres:
		if c.Postgres.DSN == "" {
			return errors.New("postgres.dsn is required when storage.driver is postgres")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown storage.driver %q", c.Storage.Driver)
	}
	if c.Notify.LowStockThreshold < 0 {
		return errors.New("notify.low_stock_threshold must be >= 0")
	}
	if len(c.Events.Brokers) > 0 && c.Events.Topic == "" {
		return errors.New("events.topic is required when events.brokers is set")
	}
	return nil
}
