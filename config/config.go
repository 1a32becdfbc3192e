package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type HTTP struct {
	Addr string `yaml:"addr"`
}

type Logging struct {
	Env       string `yaml:"env"`       // dev|stage|prod
	Service   string `yaml:"service"`   // room-service
	Version   string `yaml:"version"`   // v0.1.0
	Backend   string `yaml:"backend"`   // std|zap
	AddSource bool   `yaml:"addSource"` // false|true
	Debug     bool   `yaml:"debug"`     // false|true
}

type Store struct {
	Backend  string `yaml:"backend"` // badger|postgres
	Path     string `yaml:"path"`    // каталог badger
	DSN      string `yaml:"dsn"`     // postgres DSN
	Migrate  bool   `yaml:"migrate"` // прогнать миграции на старте (postgres)
}

type Auth struct {
	JWTSecret string `yaml:"jwtSecret"`
}

type Room struct {
	DefaultMaxParticipants int `yaml:"defaultMaxParticipants"`
	MaxMessageLen          int `yaml:"maxMessageLen"`
}

type WS struct {
	SendBuffer int    `yaml:"sendBuffer"` // исходящий буфер сессии
	PingEvery  string `yaml:"pingEvery"`  // например "15s"
}

type Config struct {
	HTTP    HTTP    `yaml:"http"`
	Logging Logging `yaml:"logging"`
	Store   Store   `yaml:"store"`
	Auth    Auth    `yaml:"auth"`
	Room    Room    `yaml:"room"`
	WS      WS      `yaml:"ws"`
}

func LoadConfig() (*Config, error) {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "./config/config.yaml"
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.HTTP.Addr == "" {
		return errors.New("http.addr is required")
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwtSecret is required")
	}

	switch c.Store.Backend {
	case "":
		c.Store.Backend = "badger"
	case "badger", "postgres":
	default:
		return fmt.Errorf("store.backend must be badger or postgres, got %q", c.Store.Backend)
	}
	if c.Store.Backend == "badger" && c.Store.Path == "" {
		c.Store.Path = "./data/rooms"
	}
	if c.Store.Backend == "postgres" && c.Store.DSN == "" {
		return errors.New("store.dsn is required for the postgres backend")
	}

	// дефолты, если значения не указаны
	if c.Logging.Service == "" {
		c.Logging.Service = "room-service"
	}
	if c.Logging.Env == "" {
		c.Logging.Env = "dev"
	}
	if c.Logging.Version == "" {
		c.Logging.Version = "v0.1.0"
	}
	if c.Logging.Backend == "" {
		c.Logging.Backend = "std"
	}
	if c.Room.DefaultMaxParticipants <= 0 {
		c.Room.DefaultMaxParticipants = 10
	}
	if c.Room.MaxMessageLen <= 0 {
		c.Room.MaxMessageLen = 4000
	}
	if c.WS.SendBuffer <= 0 {
		c.WS.SendBuffer = 64
	}
	if c.WS.PingEvery == "" {
		c.WS.PingEvery = "15s"
	}
	return nil
}

// PingInterval парсит ws.pingEvery с дефолтом.
func (c *Config) PingInterval() time.Duration {
	if d, err := time.ParseDuration(c.WS.PingEvery); err == nil && d > 0 {
		return d
	}
	return 15 * time.Second
}
