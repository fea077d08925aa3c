package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sagikazarmark/locafero"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var errViperConfigNotFound viper.ConfigFileNotFoundError

type DroneConfig struct {
	DroneID            string     `mapstructure:"drone-id" yaml:"drone-id"`
	ServerAddress      string     `mapstructure:"server-address" yaml:"server-address"`
	ServerPort         string     `mapstructure:"server-port" yaml:"server-port"`
	SessionKey         string     `mapstructure:"session-key" yaml:"session-key"`
	ReconnectDelay     int        `mapstructure:"reconnect-delay" yaml:"reconnect-delay"`
	CheckInInterval    int        `mapstructure:"check-in-interval" yaml:"check-in-interval"`
	MaxConcurrentTasks int        `mapstructure:"max-concurrent-tasks" yaml:"max-concurrent-tasks"`
	MTLS               MTLSConfig `mapstructure:"mtls" yaml:"mtls"`
}

type MTLSConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Key      string `mapstructure:"key" yaml:"key"`
	Cert     string `mapstructure:"cert" yaml:"cert"`
	ServerCA string `mapstructure:"server-ca-cert" yaml:"server-ca-cert"`
}

type ServerConfig struct {
	ConfigDir     string           `mapstructure:"config-dir" yaml:"config-dir"`
	ListenAddress string           `mapstructure:"address" yaml:"address"`
	ListenPort    string           `mapstructure:"port" yaml:"port"`
	DatabaseDir   string           `mapstructure:"database-dir" yaml:"database-dir"`
	SessionKey    string           `mapstructure:"session-key" yaml:"session-key"`
	MTLS          ServerMTLSConfig `mapstructure:"mtls" yaml:"mtls"`
	API           APIConfig        `mapstructure:"api" yaml:"api"`
	Kafka         KafkaConfig      `mapstructure:"kafka" yaml:"kafka"`
}

type ServerMTLSConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Key     string `mapstructure:"key" yaml:"key"`
	Cert    string `mapstructure:"cert" yaml:"cert"`
	DroneCA string `mapstructure:"drone-ca-cert" yaml:"drone-ca-cert"`
}

type APIConfig struct {
	Enabled  bool         `mapstructure:"enabled" yaml:"enabled"`
	Address  string       `mapstructure:"address" yaml:"address"`
	Port     string       `mapstructure:"port" yaml:"port"`
	HTPasswd string       `mapstructure:"htpasswd" yaml:"htpasswd"`
	TLS      APITLSConfig `mapstructure:"tls" yaml:"tls"`
}

type APITLSConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Cert    string `mapstructure:"cert" yaml:"cert"`
	Key     string `mapstructure:"key" yaml:"key"`
}

// KafkaConfig configures the task event relay.
type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled" yaml:"enabled"`
	Brokers []string `mapstructure:"brokers" yaml:"brokers"`
	Topic   string   `mapstructure:"topic" yaml:"topic"`
}

func SetupDroneFlags() {
	pflag.String("id", "", "set drone ID")
	pflag.String("server-address", DefaultServerAddress, "set team server address")
	pflag.String("server-port", DefaultServerPort, "set team server port")
	pflag.String("session-key", "", "session key shared with the team server (base64 or hex)")
	pflag.Int("reconnect-delay", int(DefaultReconnectDelay.Seconds()), "delay between reconnect attempts to the team server, in seconds")
	pflag.Int("check-in-interval", int(DefaultCheckInInterval.Seconds()), "delay between two check-ins, in seconds")
	pflag.Int("max-concurrent-tasks", DefaultMaxConcurrentTasks, "maximum number of tasks that can run concurrently")
	pflag.Bool("mtls.enabled", true, "secure connection to the team server using mTLS, recommended: true")
	pflag.String("mtls.key", "", "drone TLS key filepath")
	pflag.String("mtls.cert", "", "drone TLS certificate filepath")
	pflag.String("mtls.server-ca-cert", "", "team server CA certificate filepath")
	pflag.String("config", "", "config file path")
}

func SetupServerFlags() {
	pflag.String("config-dir", DefaultConfigDir, "configuration directory")
	pflag.String("address", DefaultServerAddress, "set team server address")
	pflag.String("port", DefaultServerPort, "set team server port")
	pflag.String("database-dir", DefaultDatabaseDir, "task database directory")
	pflag.String("session-key", "", "session key shared with drones (base64 or hex)")
	pflag.Bool("mtls.enabled", true, "secure connections to drones using mTLS, recommended: true")
	pflag.String("mtls.key", "", "team server TLS key filepath")
	pflag.String("mtls.cert", "", "team server TLS certificate filepath")
	pflag.String("mtls.drone-ca-cert", "", "drone CA certificate filepath")
	pflag.Bool("api.enabled", true, "enable HTTP API")
	pflag.String("api.address", DefaultAPIAddress, "HTTP API listen address")
	pflag.String("api.port", DefaultAPIPort, "HTTP API listen port")
	pflag.String("api.htpasswd", "", "API credentials file (default: <config-dir>/htpasswd)")
	pflag.Bool("api.tls.enabled", false, "enable TLS for HTTP API")
	pflag.String("api.tls.cert", "", "API TLS certificate filepath")
	pflag.String("api.tls.key", "", "API TLS key filepath")
	pflag.Bool("kafka.enabled", false, "publish task events to Kafka")
	pflag.StringSlice("kafka.brokers", []string{DefaultKafkaBrokers}, "Kafka brokers (comma-separated)")
	pflag.String("kafka.topic", DefaultKafkaTopic, "Kafka topic of task events")
	pflag.String("config", "", "config file path")
}

func GetConfigFile(v *viper.Viper) string {
	configFile := v.GetString("config")
	if configFile != "" {
		return configFile
	}
	return ""
}

func LoadDroneConfig(configFile string) (*DroneConfig, error) {
	v := viper.New()

	v.SetDefault("drone-id", "")
	v.SetDefault("server-address", DefaultServerAddress)
	v.SetDefault("server-port", DefaultServerPort)
	v.SetDefault("session-key", "")
	v.SetDefault("reconnect-delay", int(DefaultReconnectDelay.Seconds()))
	v.SetDefault("check-in-interval", int(DefaultCheckInInterval.Seconds()))
	v.SetDefault("max-concurrent-tasks", DefaultMaxConcurrentTasks)

	v.SetDefault("mtls.enabled", true)
	v.SetDefault("mtls.key", "")
	v.SetDefault("mtls.cert", "")
	v.SetDefault("mtls.server-ca-cert", "")

	v.SetEnvPrefix("HIVE_DRONE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
	} else {
		v.SetConfigName("drone")
		v.SetConfigType("yaml")
		v.AddConfigPath(DefaultConfigDir)
		v.AddConfigPath(".")

		if err := v.ReadInConfig(); err != nil {
			if !errors.As(err, &errViperConfigNotFound) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	if err := v.BindPFlags(pflag.CommandLine); err != nil {
		return nil, fmt.Errorf("error binding flags: %w", err)
	}

	v.RegisterAlias("drone-id", "id")

	var config DroneConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if config.DroneID == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("failed to get hostname, please set the drone-id")
		}
		config.DroneID = hostname
	}

	if config.MaxConcurrentTasks <= 0 {
		config.MaxConcurrentTasks = DefaultMaxConcurrentTasks
	}

	return &config, nil
}

func LoadServerConfig(configFile string) (*ServerConfig, error) {
	finder := locafero.Finder{
		Paths: []string{".", DefaultConfigDir},
		Names: locafero.NameWithExtensions("server", viper.SupportedExts...),
		Type:  locafero.FileTypeFile,
	}

	if configFile != "" {
		path, file := filepath.Split(configFile)
		finder.Paths = []string{path}
		finder.Names = locafero.NameWithExtensions(file, viper.SupportedExts...)
	}

	v := viper.NewWithOptions(viper.WithFinder(finder))

	v.SetDefault("config-dir", DefaultConfigDir)
	v.SetDefault("address", DefaultServerAddress)
	v.SetDefault("port", DefaultServerPort)
	v.SetDefault("database-dir", DefaultDatabaseDir)
	v.SetDefault("session-key", "")

	v.SetDefault("mtls.enabled", true)
	v.SetDefault("mtls.cert", "")
	v.SetDefault("mtls.key", "")
	v.SetDefault("mtls.drone-ca-cert", "")

	v.SetDefault("api.enabled", true)
	v.SetDefault("api.address", DefaultAPIAddress)
	v.SetDefault("api.port", DefaultAPIPort)
	v.SetDefault("api.htpasswd", "")
	v.SetDefault("api.tls.enabled", false)
	v.SetDefault("api.tls.cert", "")
	v.SetDefault("api.tls.key", "")

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{DefaultKafkaBrokers})
	v.SetDefault("kafka.topic", DefaultKafkaTopic)

	v.SetEnvPrefix("HIVE_SERVER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if !errors.As(err, &errViperConfigNotFound) {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	if err := v.BindPFlags(pflag.CommandLine); err != nil {
		return nil, fmt.Errorf("error binding flags: %w", err)
	}

	var config ServerConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}
