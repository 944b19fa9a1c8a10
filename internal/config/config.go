package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "BRIDGE"

// Config is the full bridge configuration, read from configs/config.yml and
// overridable through BRIDGE_* environment variables.
type Config struct {
	Log     LogConfig      `mapstructure:"log"`
	HTTP    HTTPConfig     `mapstructure:"http"`
	DB      DBConfig       `mapstructure:"db"`
	Auth    AuthConfig     `mapstructure:"auth"`
	Gateway GatewayConfig  `mapstructure:"gateway"`
	Bridge  BridgeConfig   `mapstructure:"bridge"`
	HomeKit HomeKitConfig  `mapstructure:"homekit"`
	MQTT    MQTTConfig     `mapstructure:"mqtt"`
	Devices []DeviceConfig `mapstructure:"devices"`
}

type LogConfig struct {
	Level    string `mapstructure:"level"`
	Encoding string `mapstructure:"encoding"`
}

type HTTPConfig struct {
	Port string `mapstructure:"port"`
}

type DBConfig struct {
	Path string `mapstructure:"path"`
}

type AuthConfig struct {
	SigningKey string        `mapstructure:"signing_key"`
	TokenTTL   time.Duration `mapstructure:"token_ttl"`
}

// GatewayConfig describes how to reach the device gateway.
type GatewayConfig struct {
	URL            string        `mapstructure:"url"`
	SecurityCode   string        `mapstructure:"security_code"`
	Identity       string        `mapstructure:"identity"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	CommandTimeout time.Duration `mapstructure:"command_timeout"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
}

type BridgeConfig struct {
	StopDebounce time.Duration `mapstructure:"stop_debounce"`
}

type HomeKitConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Name         string `mapstructure:"name"`
	Pin          string `mapstructure:"pin"`
	StoragePath  string `mapstructure:"storage_path"`
	Addr         string `mapstructure:"addr"`
	Manufacturer string `mapstructure:"manufacturer"`
	Model        string `mapstructure:"model"`
}

type MQTTConfig struct {
	Broker      string `mapstructure:"broker"`
	ClientID    string `mapstructure:"client_id"`
	TopicPrefix string `mapstructure:"topic_prefix"`
}

// DeviceConfig registers one actuator with the bridge.
type DeviceConfig struct {
	ID                  string `mapstructure:"id"`
	Name                string `mapstructure:"name"`
	SerialNumber        string `mapstructure:"serial_number"`
	LowBatteryThreshold int    `mapstructure:"low_battery_threshold"`
}

var (
	errNoDevices       = errors.New("config: at least one device must be configured")
	errNoGatewayURL    = errors.New("config: gateway.url is required")
	errBadThreshold    = errors.New("config: low_battery_threshold must be within [0,100]")
	errDuplicateDevice = errors.New("config: duplicate device id")
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("http.port", "8080")
	v.SetDefault("db.path", "bridge.db")
	v.SetDefault("auth.token_ttl", time.Hour)
	v.SetDefault("gateway.identity", "blinds-bridge")
	v.SetDefault("gateway.connect_timeout", 10*time.Second)
	v.SetDefault("gateway.command_timeout", 5*time.Second)
	v.SetDefault("gateway.max_backoff", time.Minute)
	v.SetDefault("bridge.stop_debounce", 2*time.Second)
	v.SetDefault("homekit.enabled", true)
	v.SetDefault("homekit.name", "Blinds Bridge")
	v.SetDefault("homekit.pin", "03145154")
	v.SetDefault("homekit.storage_path", "hap-db")
	v.SetDefault("homekit.manufacturer", "IKEA of Sweden")
	v.SetDefault("homekit.model", "FYRTUR block-out roller blind")
	v.SetDefault("mqtt.client_id", "blinds-bridge")
	v.SetDefault("mqtt.topic_prefix", "blinds")
}

// Load reads .env (if present), then the YAML file from dir, then BRIDGE_*
// environment overrides. A missing config file is not an error.
func Load(dir string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.AddConfigPath(dir)
	v.SetConfigName("config")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required settings and fills per-device defaults.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Gateway.URL) == "" {
		return errNoGatewayURL
	}
	if len(c.Devices) == 0 {
		return errNoDevices
	}
	seen := make(map[string]struct{}, len(c.Devices))
	for i := range c.Devices {
		d := &c.Devices[i]
		if _, dup := seen[d.ID]; dup {
			return fmt.Errorf("%w: %q", errDuplicateDevice, d.ID)
		}
		seen[d.ID] = struct{}{}
		if d.Name == "" {
			d.Name = d.ID
		}
		if d.LowBatteryThreshold == 0 {
			d.LowBatteryThreshold = 10
		}
		if d.LowBatteryThreshold < 0 || d.LowBatteryThreshold > 100 {
			return fmt.Errorf("%w: device %q", errBadThreshold, d.ID)
		}
	}
	return nil
}
