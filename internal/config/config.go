package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Devices  DevicesConfig  `mapstructure:"devices"`
	PLC      PLCConfig      `mapstructure:"plc"`
	Process  ProcessConfig  `mapstructure:"process"`
	Profiles ProfilesConfig `mapstructure:"cell_profiles"`
	Catalog  CatalogConfig  `mapstructure:"catalog"`
}

type ServerConfig struct {
	HTTPPort        int           `mapstructure:"http_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DevicesConfig is the network address block shared with the rest of
// the cell. The control core only consumes the PLC entry; the vision
// host and robot controller addresses live here for the other tools.
type DevicesConfig struct {
	PLC DeviceAddress `mapstructure:"plc"`
}

type DeviceAddress struct {
	IP   string `mapstructure:"ip"`
	Port int    `mapstructure:"port"`
}

type PLCConfig struct {
	UnitID         int           `mapstructure:"unit_id"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	RetryInterval  time.Duration `mapstructure:"retry_interval"`
	StopTimeout    time.Duration `mapstructure:"stop_timeout"`
}

type ProcessConfig struct {
	TickInterval  time.Duration `mapstructure:"tick_interval"`
	MarksInterval time.Duration `mapstructure:"marks_interval"`
	StopTimeout   time.Duration `mapstructure:"stop_timeout"`
	Profile       string        `mapstructure:"profile"`
}

type ProfilesConfig struct {
	SearchPaths []string `mapstructure:"search_paths"`
}

type CatalogConfig struct {
	Path string `mapstructure:"path"`
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Defaults setzen
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("devices.plc.ip", "192.168.0.10")
	v.SetDefault("devices.plc.port", 502)
	v.SetDefault("plc.unit_id", 1)
	v.SetDefault("plc.connect_timeout", "3s")
	v.SetDefault("plc.retry_interval", "5s")
	v.SetDefault("plc.stop_timeout", "2s")
	v.SetDefault("process.tick_interval", "10ms")
	v.SetDefault("process.marks_interval", "500ms")
	v.SetDefault("process.stop_timeout", "2s")
	v.SetDefault("process.profile", "cell-default")
	v.SetDefault("cell_profiles.search_paths", []string{"configs/profiles"})
	v.SetDefault("catalog.path", "configs/catalog.yaml")

	// Environment Variables automatisch binden
	v.AutomaticEnv()
	v.SetEnvPrefix("OCC")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}
