package config

import "time"

type Config struct {
	Server     ServerConfig
	Transport  TransportConfig
	Dispatcher DispatcherConfig
	Bus        BusConfig
	Cache      CacheConfig
	Rules      RulesConfig
	SMTP       SMTPConfig
	LogLevel   string `mapstructure:"logLevel"`
}

type ServerConfig struct {
	Address          string
	Auth             AuthConfig
	SweepInterval    time.Duration `mapstructure:"sweepInterval"`
	HeartbeatTimeout time.Duration `mapstructure:"heartbeatTimeout"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwtSecret"`
}

type TransportConfig struct {
	ReadTimeout time.Duration `mapstructure:"readTimeout"`
	SendBuffer  int           `mapstructure:"sendBuffer"`
}

type DispatcherConfig struct {
	Tick time.Duration `mapstructure:"tick"`
}

type BusConfig struct {
	HistoryCapacity int `mapstructure:"historyCapacity"`
}

type CacheConfig struct {
	DefaultTTL time.Duration            `mapstructure:"defaultTTL"`
	Categories map[string]time.Duration `mapstructure:"categories"`
}

type RulesConfig struct {
	HistoryCapacity int `mapstructure:"historyCapacity"`
}

// SMTPConfig configures the email delivery channel. When Host is empty the
// channel is disabled and email deliveries log a warning instead of sending.
type SMTPConfig struct {
	Host       string
	Port       int
	Username   string
	Password   string
	From       string
	AdminEmail string `mapstructure:"adminEmail"`
}
