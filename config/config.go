package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/wfunc/dominoserver/domino"
	"github.com/wfunc/dominoserver/game"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Game     GameConfig     `mapstructure:"game"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type ServerConfig struct {
	HTTPAddress    string        `mapstructure:"http_address"`
	RPCAddress     string        `mapstructure:"rpc_address"`
	MetricsAddress string        `mapstructure:"metrics_address"`
	ServerID       string        `mapstructure:"server_id"`
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	MaxMissedPongs int           `mapstructure:"max_missed_pongs"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type GameConfig struct {
	MinPlayers   int           `mapstructure:"min_players"`
	MaxPlayers   int           `mapstructure:"max_players"`
	HandSize     int           `mapstructure:"hand_size"`
	TurnDuration time.Duration `mapstructure:"turn_duration"`
	StrictDraw   bool          `mapstructure:"strict_draw"`
	BoardWidth   float64       `mapstructure:"board_width"`
	BoardHeight  float64       `mapstructure:"board_height"`
	BoardMargin  float64       `mapstructure:"board_margin"`
}

// Rules converts the game section into match rules.
func (g GameConfig) Rules() game.Rules {
	return game.Rules{
		MinPlayers: g.MinPlayers,
		MaxPlayers: g.MaxPlayers,
		HandSize:   g.HandSize,
		StrictDraw: g.StrictDraw,
		Bounds: domino.Bounds{
			Width:  g.BoardWidth,
			Height: g.BoardHeight,
			Margin: g.BoardMargin,
		},
	}
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type DatabaseConfig struct {
	// Driver is one of gorm, postgres or memory.
	Driver   string         `mapstructure:"driver"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN 返回 lib/pq 与 gorm postgres 驱动通用的连接串
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DBName, p.SSLMode)
}

type RedisConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	URL         string        `mapstructure:"url"`
	Channel     string        `mapstructure:"channel"`
	SnapshotTTL time.Duration `mapstructure:"snapshot_ttl"`
}

var ErrInvalid = errors.New("invalid configuration")

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_address", ":8080")
	v.SetDefault("server.rpc_address", ":8081")
	v.SetDefault("server.metrics_address", ":9090")
	v.SetDefault("server.server_id", "domino-1")
	v.SetDefault("server.ping_interval", 10*time.Second)
	v.SetDefault("server.max_missed_pongs", 3)
	v.SetDefault("server.allowed_origins", []string{})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetDefault("game.min_players", 2)
	v.SetDefault("game.max_players", 4)
	v.SetDefault("game.hand_size", 7)
	v.SetDefault("game.turn_duration", 30*time.Second)
	v.SetDefault("game.strict_draw", false)
	v.SetDefault("game.board_width", 23.0)
	v.SetDefault("game.board_height", 14.0)
	v.SetDefault("game.board_margin", 1.0)

	v.SetDefault("auth.jwt_secret", "")

	v.SetDefault("database.driver", "memory")
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "postgres")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.dbname", "domino")
	v.SetDefault("database.postgres.sslmode", "disable")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.channel", "game-events")
	v.SetDefault("redis.snapshot_ttl", 24*time.Hour)
}

// LoadConfig reads config.yaml from path. A missing file leaves the
// defaults in place; DOMINO_* environment variables override both.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("DOMINO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate rejects settings a match cannot be played with.
func (c *Config) Validate() error {
	g := c.Game
	switch {
	case g.MinPlayers < 2:
		return errors.Join(ErrInvalid, errors.New("game.min_players must be at least 2"))
	case g.MaxPlayers < g.MinPlayers:
		return errors.Join(ErrInvalid, errors.New("game.max_players is below game.min_players"))
	case g.HandSize < 1 || g.MaxPlayers*g.HandSize > domino.SetSize:
		return errors.Join(ErrInvalid, errors.New("game.hand_size does not fit the set for max_players"))
	case g.TurnDuration <= 0:
		return errors.Join(ErrInvalid, errors.New("game.turn_duration must be positive"))
	}
	if id := c.Server.ServerID; id == "" || strings.Contains(id, ":") {
		return errors.Join(ErrInvalid, errors.New("server.server_id must be non-empty and must not contain ':'"))
	}
	switch c.Database.Driver {
	case "gorm", "postgres", "memory":
	default:
		return errors.Join(ErrInvalid, errors.New("database.driver must be gorm, postgres or memory"))
	}
	return nil
}
