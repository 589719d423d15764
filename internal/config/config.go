package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds bridge configuration values.
type Config struct {
	LogLevel  string         `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string         `mapstructure:"log_format" yaml:"log_format"`
	Talk      TalkConfig     `mapstructure:"talk" yaml:"talk"`
	Telegram  TelegramConfig `mapstructure:"telegram" yaml:"telegram"`
	Database  DatabaseConfig `mapstructure:"database" yaml:"database"`
	HTTP      HTTPConfig     `mapstructure:"http" yaml:"http"`
}

// TalkConfig describes the talk-server session and the gateway used to reach it.
type TalkConfig struct {
	GatewayURL    string `mapstructure:"gateway_url" yaml:"gateway_url"`
	GatewaySecret string `mapstructure:"gateway_secret" yaml:"gateway_secret"`
	Host          string `mapstructure:"host" yaml:"host"`
	TCPPort       int    `mapstructure:"tcp_port" yaml:"tcp_port"`
	UDPPort       int    `mapstructure:"udp_port" yaml:"udp_port"`
	Encrypted     bool   `mapstructure:"encrypted" yaml:"encrypted"`

	Nickname        string   `mapstructure:"nickname" yaml:"nickname"`
	Username        string   `mapstructure:"username" yaml:"username"`
	Password        string   `mapstructure:"password" yaml:"password"`
	ClientName      string   `mapstructure:"client_name" yaml:"client_name"`
	Channel         string   `mapstructure:"channel" yaml:"channel"`
	ChannelPassword string   `mapstructure:"channel_password" yaml:"channel_password"`
	StatusText      string   `mapstructure:"status_text" yaml:"status_text"`
	ServerName      string   `mapstructure:"server_name" yaml:"server_name"`
	IgnoreUsernames []string `mapstructure:"ignore_usernames" yaml:"ignore_usernames"`

	Warmup             time.Duration `mapstructure:"warmup" yaml:"warmup"`
	LoginTimeout       time.Duration `mapstructure:"login_timeout" yaml:"login_timeout"`
	ReconnectMin       time.Duration `mapstructure:"reconnect_min" yaml:"reconnect_min"`
	ReconnectMax       time.Duration `mapstructure:"reconnect_max" yaml:"reconnect_max"`
	ReconnectStability time.Duration `mapstructure:"reconnect_stability" yaml:"reconnect_stability"`
	PollBatch          int           `mapstructure:"poll_batch" yaml:"poll_batch"`
	PollTimeout        time.Duration `mapstructure:"poll_timeout" yaml:"poll_timeout"`

	CleanupGrace    time.Duration `mapstructure:"cleanup_grace" yaml:"cleanup_grace"`
	CleanupAttempts int           `mapstructure:"cleanup_attempts" yaml:"cleanup_attempts"`
	CleanupBackoff  time.Duration `mapstructure:"cleanup_backoff" yaml:"cleanup_backoff"`
	StreamVolume    int           `mapstructure:"stream_volume" yaml:"stream_volume"`

	CommandBuffer int           `mapstructure:"command_buffer" yaml:"command_buffer"`
	EventBuffer   int           `mapstructure:"event_buffer" yaml:"event_buffer"`
	DeeplinkTTL   time.Duration `mapstructure:"deeplink_ttl" yaml:"deeplink_ttl"`
}

// TelegramConfig describes the bot account.
type TelegramConfig struct {
	Token           string  `mapstructure:"token" yaml:"token"`
	BotUsername     string  `mapstructure:"bot_username" yaml:"bot_username"`
	WebhookURL      string  `mapstructure:"webhook_url" yaml:"webhook_url"`
	PollTimeout     int     `mapstructure:"poll_timeout" yaml:"poll_timeout"`
	MediaDir        string  `mapstructure:"media_dir" yaml:"media_dir"`
	AdminIDs        []int64 `mapstructure:"admin_ids" yaml:"admin_ids"`
	SendConcurrency int     `mapstructure:"send_concurrency" yaml:"send_concurrency"`
	DefaultLang     string  `mapstructure:"default_lang" yaml:"default_lang"`
}

// DatabaseConfig locates the sqlite database.
type DatabaseConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// HTTPConfig configures the admin API.
type HTTPConfig struct {
	Enabled           bool          `mapstructure:"enabled" yaml:"enabled"`
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	JWTSecret         string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer         string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience       string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	TokenTTL          time.Duration `mapstructure:"token_ttl" yaml:"token_ttl"`
	AdminUsername     string        `mapstructure:"admin_username" yaml:"admin_username"`
	AdminPasswordHash string        `mapstructure:"admin_password_hash" yaml:"admin_password_hash"`
	LoginRateLimit    int           `mapstructure:"login_rate_limit" yaml:"login_rate_limit"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		LogLevel:  "info",
		LogFormat: "console",
		Talk: TalkConfig{
			GatewayURL:         "ws://127.0.0.1:9000/ws",
			Host:               "127.0.0.1",
			TCPPort:            10333,
			UDPPort:            10333,
			Nickname:           "Telegram bridge",
			ClientName:         "ttbridge",
			Channel:            "/",
			Warmup:             2 * time.Second,
			LoginTimeout:       30 * time.Second,
			ReconnectMin:       5 * time.Second,
			ReconnectMax:       5 * time.Minute,
			ReconnectStability: time.Minute,
			PollBatch:          50,
			PollTimeout:        100 * time.Millisecond,
			CleanupGrace:       10 * time.Second,
			CleanupAttempts:    10,
			CleanupBackoff:     30 * time.Second,
			StreamVolume:       1000,
			CommandBuffer:      256,
			EventBuffer:        1024,
			DeeplinkTTL:        10 * time.Minute,
		},
		Telegram: TelegramConfig{
			PollTimeout:     60,
			MediaDir:        "media",
			SendConcurrency: 16,
			DefaultLang:     "en",
		},
		Database: DatabaseConfig{
			Path: "ttbridge.db",
		},
		HTTP: HTTPConfig{
			Enabled:           true,
			Addr:              ":8080",
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   5 * time.Second,
			JWTIssuer:         "ttbridge",
			JWTAudience:       "ttbridge-admin",
			TokenTTL:          12 * time.Hour,
			AdminUsername:     "admin",
			LoginRateLimit:    10,
		},
	}
}

// Validate reports settings the bridge cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.Talk.GatewayURL == "" {
		errs = append(errs, errors.New("talk.gateway_url is required"))
	}
	if c.Talk.Nickname == "" || c.Talk.Username == "" {
		errs = append(errs, errors.New("talk.nickname and talk.username are required"))
	}
	if c.Telegram.Token == "" {
		errs = append(errs, errors.New("telegram.token is required"))
	}
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	if c.Talk.PollBatch > 0 {
		if c.Talk.CommandBuffer > 0 && c.Talk.CommandBuffer < c.Talk.PollBatch {
			errs = append(errs, fmt.Errorf("talk.command_buffer (%d) must not be below talk.poll_batch (%d)", c.Talk.CommandBuffer, c.Talk.PollBatch))
		}
		if c.Talk.EventBuffer > 0 && c.Talk.EventBuffer < c.Talk.PollBatch {
			errs = append(errs, fmt.Errorf("talk.event_buffer (%d) must not be below talk.poll_batch (%d)", c.Talk.EventBuffer, c.Talk.PollBatch))
		}
	}
	if c.Talk.ReconnectMin <= 0 || c.Talk.ReconnectMax < c.Talk.ReconnectMin {
		errs = append(errs, fmt.Errorf("talk.reconnect_min (%s) must be positive and not above reconnect_max (%s)", c.Talk.ReconnectMin, c.Talk.ReconnectMax))
	}
	if c.HTTP.Enabled && c.HTTP.AdminPasswordHash != "" && len(c.HTTP.JWTSecret) < 16 {
		errs = append(errs, errors.New("http.jwt_secret must be at least 16 bytes when admin login is enabled"))
	}
	if c.Telegram.WebhookURL != "" && !c.HTTP.Enabled {
		errs = append(errs, errors.New("telegram.webhook_url needs http.enabled"))
	}
	return errors.Join(errs...)
}
