package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const EnvPrefix = "MEIRO"

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Game     GameConfig     `mapstructure:"game"`
}

type ServerConfig struct {
	HTTPAddress    string `mapstructure:"http_address"`
	RPCAddress     string `mapstructure:"rpc_address"`
	MetricsAddress string `mapstructure:"metrics_address"`
}

// Driver 取值 memory / postgres / gorm
type DatabaseConfig struct {
	Driver   string         `mapstructure:"driver"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

type GameConfig struct {
	ExploreDuration time.Duration `mapstructure:"explore_duration"`
	LobbyTimeout    time.Duration `mapstructure:"lobby_timeout"`
	MazeAttempts    int           `mapstructure:"maze_attempts"`
	Seed            int64         `mapstructure:"seed"`
}

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverGorm     = "gorm"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_address", ":8080")
	v.SetDefault("server.rpc_address", ":9090")
	v.SetDefault("server.metrics_address", ":9100")

	v.SetDefault("database.driver", DriverMemory)
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "postgres")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.dbname", "meiro")

	v.SetDefault("game.explore_duration", 5*time.Minute)
	v.SetDefault("game.lobby_timeout", 5*time.Minute)
	v.SetDefault("game.maze_attempts", 50)
	v.SetDefault("game.seed", 0)
}

// LoadConfig 读取 path 下的 .env 与 config.yaml，两者都可缺省。
// 环境变量 MEIRO_SERVER_HTTP_ADDRESS 之类覆盖文件中的值。
func LoadConfig(path string) (*Config, error) {
	envFile := path + string(os.PathSeparator) + ".env"
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverMemory, DriverPostgres, DriverGorm:
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	if c.Game.ExploreDuration <= 0 {
		return fmt.Errorf("game.explore_duration must be positive")
	}
	if c.Game.LobbyTimeout <= 0 {
		return fmt.Errorf("game.lobby_timeout must be positive")
	}
	if c.Game.MazeAttempts <= 0 {
		return fmt.Errorf("game.maze_attempts must be positive")
	}
	return nil
}
