package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

type ServerConfig struct {
	Name      string          `yaml:"name"`
	Port      string          `yaml:"port,omitempty"` // Server port, e.g. ":8080"
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Chat      ChatConfig      `yaml:"chat"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Log       LogConfig       `yaml:"log"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "postgres"
	DSN    string `yaml:"dsn"`
}

// RedisConfig enables cross-instance event relay. An empty URL disables it.
type RedisConfig struct {
	URL     string `yaml:"url,omitempty"`
	Channel string `yaml:"channel,omitempty"`
}

type ChatConfig struct {
	MaxMessageLength int `yaml:"max_message_length"`
	MaxReplyDepth    int `yaml:"max_reply_depth"`
	DefaultPageSize  int `yaml:"default_page_size"`
}

type WebSocketConfig struct {
	SendBuffer     int `yaml:"send_buffer"`
	BroadcastQueue int `yaml:"broadcast_queue"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "console" or "json"
}

var Conf = Default()

// Default returns a configuration with every default applied.
func Default() ServerConfig {
	var c ServerConfig
	c.applyDefaults()
	return c
}

// LoadConfig reads the YAML file at path (a missing file means defaults only),
// applies defaults and CHAT_* environment overrides, and stores the result in Conf.
func LoadConfig(path string) (*ServerConfig, error) {
	var c ServerConfig

	f, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(f, &c); err != nil {
			return nil, err
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, err
	}

	// .env is optional
	_ = godotenv.Load()
	c.applyEnv()
	c.applyDefaults()

	Conf = c
	return &c, nil
}

// SaveConfig saves the current configuration to file
func SaveConfig(path string) error {
	data, err := yaml.Marshal(&Conf)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

func (c *ServerConfig) applyDefaults() {
	if c.Name == "" {
		c.Name = "chatroom-server"
	}
	if c.Port == "" {
		c.Port = ":8080"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.DSN == "" && c.Database.Driver == "sqlite" {
		c.Database.DSN = "file:data/chat.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	if c.Redis.Channel == "" {
		c.Redis.Channel = "chatroom:events"
	}
	if c.Chat.MaxMessageLength == 0 {
		c.Chat.MaxMessageLength = 4000
	}
	if c.Chat.MaxReplyDepth == 0 {
		c.Chat.MaxReplyDepth = 1000
	}
	if c.Chat.DefaultPageSize == 0 {
		c.Chat.DefaultPageSize = 50
	}
	if c.WebSocket.SendBuffer == 0 {
		c.WebSocket.SendBuffer = 32
	}
	if c.WebSocket.BroadcastQueue == 0 {
		c.WebSocket.BroadcastQueue = 512
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
}

func (c *ServerConfig) applyEnv() {
	setString(&c.Port, "CHAT_PORT")
	setString(&c.Database.Driver, "CHAT_DATABASE_DRIVER")
	setString(&c.Database.DSN, "CHAT_DATABASE_DSN")
	setString(&c.Redis.URL, "CHAT_REDIS_URL")
	setString(&c.Redis.Channel, "CHAT_REDIS_CHANNEL")
	setString(&c.Log.Level, "CHAT_LOG_LEVEL")
	setString(&c.Log.Format, "CHAT_LOG_FORMAT")
	setInt(&c.Chat.MaxMessageLength, "CHAT_MAX_MESSAGE_LENGTH")
	setInt(&c.Chat.MaxReplyDepth, "CHAT_MAX_REPLY_DEPTH")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			*dst = n
		}
	}
}
