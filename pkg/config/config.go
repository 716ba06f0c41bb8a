package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultBindHost       = "127.0.0.1"
	DefaultTCPPort        = 9000
	DefaultUDPPort        = 44555
	DefaultAPIPort        = 9100
	DefaultReadBufferSize = 1024
	DefaultForwardURL     = "http://127.0.0.1:8080/api/chair/"
	DefaultForwardTimeout = 5 * time.Second
	DefaultEmitInterval   = 5 * time.Second
)

// Config holds the configuration for a chairgate instance.
type Config struct {
	Stream   StreamConfig   `mapstructure:"stream" yaml:"stream"`
	Datagram DatagramConfig `mapstructure:"datagram" yaml:"datagram"`
	Forward  ForwardConfig  `mapstructure:"forward" yaml:"forward"`
	API      APIConfig      `mapstructure:"api" yaml:"api"`
	Redis    RedisConfig    `mapstructure:"redis" yaml:"redis"`
	Emitter  EmitterConfig  `mapstructure:"emitter" yaml:"emitter"`

	// ConfigPath is the file the config was read from, if any.
	ConfigPath string `mapstructure:"-" yaml:"-"`
}

type StreamConfig struct {
	Enabled        bool   `mapstructure:"enabled" yaml:"enabled"`
	BindAddress    string `mapstructure:"bind-address" yaml:"bind-address"`
	BindPort       int    `mapstructure:"bind-port" yaml:"bind-port"`
	ReadBufferSize int    `mapstructure:"read-buffer-size" yaml:"read-buffer-size"`
	Framing        string `mapstructure:"framing" yaml:"framing"`
	MaxConnections int    `mapstructure:"max-connections" yaml:"max-connections"`
}

type DatagramConfig struct {
	Enabled        bool   `mapstructure:"enabled" yaml:"enabled"`
	BindAddress    string `mapstructure:"bind-address" yaml:"bind-address"`
	BindPort       int    `mapstructure:"bind-port" yaml:"bind-port"`
	ReadBufferSize int    `mapstructure:"read-buffer-size" yaml:"read-buffer-size"`
}

type ForwardConfig struct {
	URL       string            `mapstructure:"url" yaml:"url"`
	Timeout   time.Duration     `mapstructure:"timeout" yaml:"timeout"`
	NameField string            `mapstructure:"name-field" yaml:"name-field"`
	Headers   map[string]string `mapstructure:"headers" yaml:"headers"`
}

type APIConfig struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled"`
	BindAddress string `mapstructure:"bind-address" yaml:"bind-address"`
	BindPort    int    `mapstructure:"bind-port" yaml:"bind-port"`
}

type RedisConfig struct {
	// Address enables the control watcher and the publish sink when set.
	Address        string `mapstructure:"address" yaml:"address"`
	Password       string `mapstructure:"password" yaml:"password"`
	DB             int    `mapstructure:"db" yaml:"db"`
	ConfigKey      string `mapstructure:"config-key" yaml:"config-key"`
	UpdateChannel  string `mapstructure:"update-channel" yaml:"update-channel"`
	PublishChannel string `mapstructure:"publish-channel" yaml:"publish-channel"`
}

type EmitterConfig struct {
	Transport string        `mapstructure:"transport" yaml:"transport"`
	Target    string        `mapstructure:"target" yaml:"target"`
	Interval  time.Duration `mapstructure:"interval" yaml:"interval"`
	Count     int           `mapstructure:"count" yaml:"count"`
	NameField string        `mapstructure:"name-field" yaml:"name-field"`
}

// StreamAddr is the host:port the stream server binds.
func (c Config) StreamAddr() string {
	return net.JoinHostPort(c.Stream.BindAddress, strconv.Itoa(c.Stream.BindPort))
}

// DatagramAddr is the host:port the datagram listener binds.
func (c Config) DatagramAddr() string {
	return net.JoinHostPort(c.Datagram.BindAddress, strconv.Itoa(c.Datagram.BindPort))
}

// APIAddr is the host:port the status API binds.
func (c Config) APIAddr() string {
	return net.JoinHostPort(c.API.BindAddress, strconv.Itoa(c.API.BindPort))
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("stream.enabled", true)
	v.SetDefault("stream.bind-address", DefaultBindHost)
	v.SetDefault("stream.bind-port", DefaultTCPPort)
	v.SetDefault("stream.read-buffer-size", DefaultReadBufferSize)
	v.SetDefault("stream.framing", "read")
	v.SetDefault("stream.max-connections", 0)

	v.SetDefault("datagram.enabled", true)
	v.SetDefault("datagram.bind-address", DefaultBindHost)
	v.SetDefault("datagram.bind-port", DefaultUDPPort)
	v.SetDefault("datagram.read-buffer-size", DefaultReadBufferSize)

	v.SetDefault("forward.url", DefaultForwardURL)
	v.SetDefault("forward.timeout", DefaultForwardTimeout)
	v.SetDefault("forward.name-field", "Model")
	v.SetDefault("forward.headers", map[string]string{})

	v.SetDefault("api.enabled", true)
	v.SetDefault("api.bind-address", DefaultBindHost)
	v.SetDefault("api.bind-port", DefaultAPIPort)

	v.SetDefault("redis.address", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.config-key", "chairgate_config")
	v.SetDefault("redis.update-channel", "chairgate_updates")
	v.SetDefault("redis.publish-channel", "")

	v.SetDefault("emitter.transport", "udp")
	v.SetDefault("emitter.target", "")
	v.SetDefault("emitter.interval", DefaultEmitInterval)
	v.SetDefault("emitter.count", 0)
	v.SetDefault("emitter.name-field", "Model")
}

// DefaultConfig returns the configuration used when nothing is overridden.
// Environment variables are not consulted.
func DefaultConfig() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Load reads configuration from defaults, the optional YAML file at path and
// CHAIRGATE_* environment variables, in increasing precedence.
// Nested keys map to env names with '.' and '-' replaced by '_', e.g.
// CHAIRGATE_STREAM_BIND_PORT.
func Load(path string) (*Config, error) {
	return LoadWith(viper.New(), path)
}

// LoadWith is Load on a caller-provided viper instance, so that command-line
// flags bound to v take precedence over file and env values.
func LoadWith(v *viper.Viper, path string) (*Config, error) {
	v.SetEnvPrefix("CHAIRGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.As(err, &notFound) || os.IsNotExist(err) {
				return nil, fmt.Errorf("config file %s not found", path)
			}
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	cfg.ConfigPath = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	for name, port := range map[string]int{
		"stream.bind-port":   c.Stream.BindPort,
		"datagram.bind-port": c.Datagram.BindPort,
		"api.bind-port":      c.API.BindPort,
	} {
		if port < 0 || port > 65535 {
			return fmt.Errorf("invalid %s: %d", name, port)
		}
	}
	if c.Stream.ReadBufferSize <= 0 {
		return fmt.Errorf("invalid stream.read-buffer-size: %d", c.Stream.ReadBufferSize)
	}
	if c.Datagram.ReadBufferSize <= 0 || c.Datagram.ReadBufferSize > 65535 {
		return fmt.Errorf("invalid datagram.read-buffer-size: %d", c.Datagram.ReadBufferSize)
	}
	switch c.Stream.Framing {
	case "read", "newline":
	default:
		return fmt.Errorf("invalid stream.framing %q: want read or newline", c.Stream.Framing)
	}
	if c.Stream.MaxConnections < 0 {
		return fmt.Errorf("invalid stream.max-connections: %d", c.Stream.MaxConnections)
	}
	if c.Datagram.Enabled {
		u, err := url.Parse(c.Forward.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid forward.url %q", c.Forward.URL)
		}
	}
	if c.Forward.Timeout <= 0 {
		return fmt.Errorf("invalid forward.timeout: %s", c.Forward.Timeout)
	}
	switch c.Emitter.Transport {
	case "tcp", "udp":
	default:
		return fmt.Errorf("invalid emitter.transport %q: want tcp or udp", c.Emitter.Transport)
	}
	if c.Emitter.Interval <= 0 {
		return fmt.Errorf("invalid emitter.interval: %s", c.Emitter.Interval)
	}
	return nil
}
