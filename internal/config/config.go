package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// DevelopmentJWTSecret is the signing secret used when none is configured
const DevelopmentJWTSecret = "bankchat-development-secret"

// Config is the complete service configuration
type Config struct {
	Database  *DatabaseConfig  `json:"database"`
	HTTP      *HTTPConfig      `json:"http"`
	WebSocket *WebSocketConfig `json:"websocket"`
	Auth      *AuthConfig      `json:"auth"`
	Chat      *ChatConfig      `json:"chat"`
}

type DatabaseConfig struct {
	Path           string        `json:"path"`
	Timeout        time.Duration `json:"timeout"`
	MaxConnections int           `json:"max_connections"`
}

type HTTPConfig struct {
	Port           int           `json:"port"`
	ReadTimeout    time.Duration `json:"read_timeout"`
	WriteTimeout   time.Duration `json:"write_timeout"`
	Host           string        `json:"host"`
	AllowedOrigins []string      `json:"allowed_origins"`
}

type WebSocketConfig struct {
	PingInterval time.Duration `json:"ping_interval"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	BufferSize   int           `json:"buffer_size"`
}

// AuthConfig controls JWT verification
type AuthConfig struct {
	JWTSecret  string        `json:"jwt_secret"`
	CookieName string        `json:"cookie_name"`
	TokenTTL   time.Duration `json:"token_ttl"`
}

// ChatConfig holds chat policy limits
type ChatConfig struct {
	MaxMessageLength  int `json:"max_message_length"`
	MessagesPerMinute int `json:"messages_per_minute"`
}

// DefaultConfig returns settings suitable for local development
func DefaultConfig() *Config {
	return &Config{
		Database: &DatabaseConfig{
			Path:           "./data/bankchat.db",
			Timeout:        10 * time.Second,
			MaxConnections: 10,
		},
		HTTP: &HTTPConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			Host:         "0.0.0.0",
		},
		WebSocket: &WebSocketConfig{
			PingInterval: 30 * time.Second,
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 10 * time.Second,
			BufferSize:   100,
		},
		Auth: &AuthConfig{
			JWTSecret:  DevelopmentJWTSecret,
			CookieName: "token",
			TokenTTL:   24 * time.Hour,
		},
		Chat: &ChatConfig{
			MaxMessageLength:  2000,
			MessagesPerMinute: 30,
		},
	}
}

// Validate rejects configurations the service cannot run with
func (c *Config) Validate() error {
	if c.Database == nil {
		return fmt.Errorf("database configuration is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.Database.Timeout <= 0 {
		return fmt.Errorf("database timeout must be positive")
	}
	if c.Database.MaxConnections <= 0 {
		return fmt.Errorf("database max connections must be positive")
	}

	if c.HTTP == nil {
		return fmt.Errorf("HTTP configuration is required")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
	}
	if c.HTTP.ReadTimeout <= 0 {
		return fmt.Errorf("HTTP read timeout must be positive")
	}
	if c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP write timeout must be positive")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}

	if c.WebSocket == nil {
		return fmt.Errorf("WebSocket configuration is required")
	}
	if c.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("WebSocket ping interval must be positive")
	}
	if c.WebSocket.ReadTimeout <= c.WebSocket.PingInterval {
		return fmt.Errorf("WebSocket read timeout must exceed the ping interval")
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("WebSocket write timeout must be positive")
	}
	if c.WebSocket.BufferSize <= 0 {
		return fmt.Errorf("WebSocket buffer size must be positive")
	}

	if c.Auth == nil {
		return fmt.Errorf("auth configuration is required")
	}
	if len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("JWT secret must be at least 16 characters")
	}
	if c.Auth.CookieName == "" {
		return fmt.Errorf("auth cookie name cannot be empty")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("token TTL must be positive")
	}

	if c.Chat == nil {
		return fmt.Errorf("chat configuration is required")
	}
	if c.Chat.MaxMessageLength <= 0 {
		return fmt.Errorf("max message length must be positive")
	}
	if c.Chat.MessagesPerMinute < 0 {
		return fmt.Errorf("messages per minute cannot be negative")
	}

	return nil
}

// Address returns the host:port the HTTP server listens on
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Host, c.HTTP.Port)
}

// UsesDevelopmentSecret reports whether tokens are signed with the built-in secret
func (c *Config) UsesDevelopmentSecret() bool {
	return c.Auth != nil && c.Auth.JWTSecret == DevelopmentJWTSecret
}

// LoadFromEnv applies BANKCHAT_* environment variables over the defaults
func LoadFromEnv() *Config {
	config := DefaultConfig()
	applyEnv(config)
	return config
}

func applyEnv(config *Config) {
	setString(&config.Database.Path, "BANKCHAT_DATABASE_PATH")
	setDuration(&config.Database.Timeout, "BANKCHAT_DATABASE_TIMEOUT")
	setInt(&config.Database.MaxConnections, "BANKCHAT_DATABASE_MAX_CONNECTIONS")

	setString(&config.HTTP.Host, "BANKCHAT_HTTP_HOST")
	setInt(&config.HTTP.Port, "BANKCHAT_HTTP_PORT")
	setDuration(&config.HTTP.ReadTimeout, "BANKCHAT_HTTP_READ_TIMEOUT")
	setDuration(&config.HTTP.WriteTimeout, "BANKCHAT_HTTP_WRITE_TIMEOUT")
	if origins := os.Getenv("BANKCHAT_HTTP_ALLOWED_ORIGINS"); origins != "" {
		config.HTTP.AllowedOrigins = splitList(origins)
	}

	setDuration(&config.WebSocket.PingInterval, "BANKCHAT_WEBSOCKET_PING_INTERVAL")
	setDuration(&config.WebSocket.ReadTimeout, "BANKCHAT_WEBSOCKET_READ_TIMEOUT")
	setDuration(&config.WebSocket.WriteTimeout, "BANKCHAT_WEBSOCKET_WRITE_TIMEOUT")
	setInt(&config.WebSocket.BufferSize, "BANKCHAT_WEBSOCKET_BUFFER_SIZE")

	setString(&config.Auth.JWTSecret, "BANKCHAT_JWT_SECRET")
	setString(&config.Auth.CookieName, "BANKCHAT_AUTH_COOKIE_NAME")
	setDuration(&config.Auth.TokenTTL, "BANKCHAT_AUTH_TOKEN_TTL")

	setInt(&config.Chat.MaxMessageLength, "BANKCHAT_CHAT_MAX_MESSAGE_LENGTH")
	setInt(&config.Chat.MessagesPerMinute, "BANKCHAT_CHAT_MESSAGES_PER_MINUTE")
}

// Malformed values are ignored so the previous layer's value stands
func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ConfigFile represents the JSON structure for file-based configuration.
// Durations are strings such as "30s".
type ConfigFile struct {
	Database  *DatabaseConfigFile  `json:"database"`
	HTTP      *HTTPConfigFile      `json:"http"`
	WebSocket *WebSocketConfigFile `json:"websocket"`
	Auth      *AuthConfigFile      `json:"auth"`
	Chat      *ChatConfig          `json:"chat"`
}

type DatabaseConfigFile struct {
	Path           string `json:"path"`
	Timeout        string `json:"timeout"`
	MaxConnections int    `json:"max_connections"`
}

type HTTPConfigFile struct {
	Port           int      `json:"port"`
	ReadTimeout    string   `json:"read_timeout"`
	WriteTimeout   string   `json:"write_timeout"`
	Host           string   `json:"host"`
	AllowedOrigins []string `json:"allowed_origins"`
}

type WebSocketConfigFile struct {
	PingInterval string `json:"ping_interval"`
	ReadTimeout  string `json:"read_timeout"`
	WriteTimeout string `json:"write_timeout"`
	BufferSize   int    `json:"buffer_size"`
}

type AuthConfigFile struct {
	JWTSecret  string `json:"jwt_secret"`
	CookieName string `json:"cookie_name"`
	TokenTTL   string `json:"token_ttl"`
}

// LoadFromFile reads a JSON config file over the defaults
func LoadFromFile(filepath string) (*Config, error) {
	config := DefaultConfig()
	if err := applyFile(config, filepath); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", filepath, err)
	}
	return config, nil
}

func applyFile(config *Config, filepath string) error {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", filepath, err)
	}

	var file ConfigFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", filepath, err)
	}

	var parseErr error
	duration := func(dst *time.Duration, field, value string) {
		if value == "" || parseErr != nil {
			return
		}
		d, err := time.ParseDuration(value)
		if err != nil {
			parseErr = fmt.Errorf("invalid %s %q in %s: %w", field, value, filepath, err)
			return
		}
		*dst = d
	}

	if f := file.Database; f != nil {
		if f.Path != "" {
			config.Database.Path = f.Path
		}
		if f.MaxConnections > 0 {
			config.Database.MaxConnections = f.MaxConnections
		}
		duration(&config.Database.Timeout, "database.timeout", f.Timeout)
	}

	if f := file.HTTP; f != nil {
		if f.Port > 0 {
			config.HTTP.Port = f.Port
		}
		if f.Host != "" {
			config.HTTP.Host = f.Host
		}
		if len(f.AllowedOrigins) > 0 {
			config.HTTP.AllowedOrigins = f.AllowedOrigins
		}
		duration(&config.HTTP.ReadTimeout, "http.read_timeout", f.ReadTimeout)
		duration(&config.HTTP.WriteTimeout, "http.write_timeout", f.WriteTimeout)
	}

	if f := file.WebSocket; f != nil {
		if f.BufferSize > 0 {
			config.WebSocket.BufferSize = f.BufferSize
		}
		duration(&config.WebSocket.PingInterval, "websocket.ping_interval", f.PingInterval)
		duration(&config.WebSocket.ReadTimeout, "websocket.read_timeout", f.ReadTimeout)
		duration(&config.WebSocket.WriteTimeout, "websocket.write_timeout", f.WriteTimeout)
	}

	if f := file.Auth; f != nil {
		if f.JWTSecret != "" {
			config.Auth.JWTSecret = f.JWTSecret
		}
		if f.CookieName != "" {
			config.Auth.CookieName = f.CookieName
		}
		duration(&config.Auth.TokenTTL, "auth.token_ttl", f.TokenTTL)
	}

	if f := file.Chat; f != nil {
		if f.MaxMessageLength > 0 {
			config.Chat.MaxMessageLength = f.MaxMessageLength
		}
		if f.MessagesPerMinute > 0 {
			config.Chat.MessagesPerMinute = f.MessagesPerMinute
		}
	}

	return parseErr
}

// Load layers defaults, then BANKCHAT_* environment variables, then the JSON file at
// filepath (or BANKCHAT_CONFIG_FILE when filepath is empty), and validates the result
func Load(filepath string) (*Config, error) {
	config := DefaultConfig()
	applyEnv(config)

	if filepath == "" {
		filepath = os.Getenv("BANKCHAT_CONFIG_FILE")
	}
	if filepath != "" {
		if err := applyFile(config, filepath); err != nil {
			return nil, err
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}
