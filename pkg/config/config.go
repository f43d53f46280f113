package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var config = viper.New()

type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	AppName    string `mapstructure:"APP_NAME"`
	AppVersion string `mapstructure:"APP_VERSION"`
	NodeID     int64  `mapstructure:"NODE_ID"`
	TLS        struct {
		Enable   bool   `mapstructure:"ENABLE"`
		CertPath string `mapstructure:"CERT_PATH"`
		KeyPath  string `mapstructure:"KEY_PATH"`
	} `mapstructure:"TLS"`
	Otel struct {
		Addr     string `mapstructure:"ADDR"`
		Protocol string `mapstructure:"PROTOCOL"`
	} `mapstructure:"OTEL"`
	Pyroscope struct {
		Addr string `mapstructure:"ADDR"`
	} `mapstructure:"PYROSCOPE"`
	Server struct {
		Addr           string        `mapstructure:"ADDR"`
		ReadTimeout    time.Duration `mapstructure:"READ_TIMEOUT"`
		WriteTimeout   time.Duration `mapstructure:"WRITE_TIMEOUT"`
		IdleTimeout    time.Duration `mapstructure:"IDLE_TIMEOUT"`
		UseUnixSocket  bool          `mapstructure:"USE_UNIX_SOCKET"`
		UnixSocketPath string        `mapstructure:"UNIX_SOCKET_PATH"`
	} `mapstructure:"HTTP_SERVER"`
	Database struct {
		Type           string `mapstructure:"TYPE"`
		Host           string `mapstructure:"HOST"`
		Port           string `mapstructure:"PORT"`
		DBNAME         string `mapstructure:"DBNAME"`
		User           string `mapstructure:"USER"`
		Password       string `mapstructure:"PASSWORD"`
		SSLMode        string `mapstructure:"SSLMODE"`
		Timezone       string `mapstructure:"TIMEZONE"`
		Metrics        bool   `mapstructure:"METRICS"`
		ConnectionPool struct {
			MaxIdleConn     int           `mapstructure:"MAX_IDLE_CONN"`
			MaxOpenConns    int           `mapstructure:"MAX_OPEN_CONNS"`
			ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
			ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
		} `mapstructure:"CONNECTION_POOL"`
	} `mapstructure:"DATABASE"`
	Redis struct {
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
	} `mapstructure:"REDIS"`
	Catalog struct {
		BaseURL     string        `mapstructure:"BASE_URL"`
		AccessToken string        `mapstructure:"ACCESS_TOKEN"`
		Timeout     time.Duration `mapstructure:"TIMEOUT"`
		MaxRetries  uint64        `mapstructure:"MAX_RETRIES"`
	} `mapstructure:"CATALOG"`
	Rotation struct {
		// Cron spec for the in-process tick. Empty disables it and leaves
		// rotation to the external trigger endpoint.
		Schedule string `mapstructure:"SCHEDULE"`
	} `mapstructure:"ROTATION"`
	Stats struct {
		Schedule    string `mapstructure:"SCHEDULE"`
		Concurrency int    `mapstructure:"CONCURRENCY"`
	} `mapstructure:"STATS"`
	Storefront struct {
		CacheTTL       time.Duration `mapstructure:"CACHE_TTL"`
		AllowedOrigins []string      `mapstructure:"ALLOWED_ORIGINS"`
	} `mapstructure:"STOREFRONT"`
	Auth struct {
		RotationSecret string `mapstructure:"ROTATION_SECRET"`
		AdminSecret    string `mapstructure:"ADMIN_SECRET"`
	} `mapstructure:"AUTH"`
	Worker struct {
		Concurrency int `mapstructure:"CONCURRENCY"`
	} `mapstructure:"WORKER"`
}

var Module = fx.Module("config", fx.Provide(LoadConfig))

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_NAME", "pixelswap")
	v.SetDefault("NODE_ID", 1)
	v.SetDefault("HTTP_SERVER.ADDR", ":8080")
	v.SetDefault("HTTP_SERVER.READ_TIMEOUT", 10*time.Second)
	v.SetDefault("HTTP_SERVER.WRITE_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_SERVER.IDLE_TIMEOUT", 60*time.Second)
	v.SetDefault("OTEL.PROTOCOL", "http")
	v.SetDefault("DATABASE.TYPE", "postgres")
	v.SetDefault("DATABASE.SSLMODE", "disable")
	v.SetDefault("DATABASE.TIMEZONE", "UTC")
	v.SetDefault("CATALOG.TIMEOUT", 10*time.Second)
	v.SetDefault("CATALOG.MAX_RETRIES", 3)
	v.SetDefault("ROTATION.SCHEDULE", "@every 1m")
	v.SetDefault("STATS.SCHEDULE", "15 0 * * *")
	v.SetDefault("STATS.CONCURRENCY", 4)
	v.SetDefault("STOREFRONT.CACHE_TTL", 30*time.Second)
	v.SetDefault("STOREFRONT.ALLOWED_ORIGINS", []string{"*"})
	v.SetDefault("WORKER.CONCURRENCY", 10)
}

func LoadConfig() *Config {
	config.SetConfigName("config")
	config.SetConfigType("yaml")
	config.AddConfigPath(".")

	config.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	config.AutomaticEnv()
	setDefaults(config)

	if err := config.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			zap.L().Error("failed to read config file", zap.Error(err))
			os.Exit(1)
		}
	}

	var cfg Config
	if err := config.Unmarshal(&cfg); err != nil {
		zap.L().Error("failed to unmarshal config", zap.Error(err))
		os.Exit(1)
	}

	return &cfg
}
