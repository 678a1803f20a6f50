// Package config loads impactsim.cfg.json through viper and exposes typed views of it.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// FileName is the config file looked up in the config directory.
const FileName = "impactsim.cfg.json"

// ErrConfigNotFound is returned by Load when no config file exists; defaults still apply.
var ErrConfigNotFound = errors.New("config file not found")

// ServerConfig holds HTTP listener settings
type ServerConfig struct {
	Address string `json:"address" mapstructure:"address"`
	Mode    string `json:"mode" mapstructure:"mode"`
}

// MapConfig holds the initial view and fit behaviour
type MapConfig struct {
	CenterLat       float64 `json:"centerLat"`
	CenterLng       float64 `json:"centerLng"`
	Zoom            int     `json:"zoom"`
	FitPaddingPx    int     `json:"fitPaddingPx"`
	QuickLaunchZoom int     `json:"quickLaunchZoom"`
}

// ControlsConfig holds the initial slider values
type ControlsConfig struct {
	Diameter float64 `json:"diameter" mapstructure:"diameter"`
	Velocity float64 `json:"velocity" mapstructure:"velocity"`
	Angle    float64 `json:"angle" mapstructure:"angle"`
	Material string  `json:"material" mapstructure:"material"`
}

// MemoryConfig holds in-memory/JSON storage backend settings
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// SQLiteConfig holds sqlite backend settings
type SQLiteConfig struct {
	Path         string        `json:"path" mapstructure:"path"`
	DumpInterval time.Duration `json:"dumpInterval" mapstructure:"dumpInterval"`
}

// CollectorConfig holds the remote history collector settings
type CollectorConfig struct {
	URL    string `json:"url" mapstructure:"url"`
	Secret string `json:"secret" mapstructure:"secret"`
}

// StorageConfig selects and configures the impact history backend
type StorageConfig struct {
	Type      string          `json:"type" mapstructure:"type"`
	Memory    MemoryConfig    `json:"memory" mapstructure:"memory"`
	SQLite    SQLiteConfig    `json:"sqlite" mapstructure:"sqlite"`
	WebSocket CollectorConfig `json:"websocket" mapstructure:"websocket"`
}

// DBConfig holds postgres connection settings
type DBConfig struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	Database string `json:"database" mapstructure:"database"`
}

// InfluxConfig holds InfluxDB settings
type InfluxConfig struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Protocol string `json:"protocol" mapstructure:"protocol"`
	Token    string `json:"token" mapstructure:"token"`
	Org      string `json:"org" mapstructure:"org"`
	Bucket   string `json:"bucket" mapstructure:"bucket"`
}

// URL returns the server URL built from protocol, host and port.
func (c InfluxConfig) URL() string {
	return fmt.Sprintf("%s://%s:%s", c.Protocol, c.Host, c.Port)
}

// UploadConfig holds the history upload target
type UploadConfig struct {
	Enabled   bool   `json:"enabled" mapstructure:"enabled"`
	ServerURL string `json:"serverUrl" mapstructure:"serverUrl"`
	APIKey    string `json:"apiKey" mapstructure:"apiKey"`
	Tag       string `json:"tag" mapstructure:"tag"`
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName  string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	Endpoint     string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure     bool          `json:"insecure" mapstructure:"insecure"`
	Tracing      bool          `json:"tracing" mapstructure:"tracing"`
}

// QuickLaunchPreset is a named one-click target
type QuickLaunchPreset struct {
	Name string  `json:"name" mapstructure:"name"`
	Lat  float64 `json:"lat" mapstructure:"lat"`
	Lng  float64 `json:"lng" mapstructure:"lng"`
}

// DefaultQuickLaunch are the cities offered when the config names none.
var DefaultQuickLaunch = []QuickLaunchPreset{
	{Name: "New York", Lat: 40.7128, Lng: -74.0060},
	{Name: "London", Lat: 51.5074, Lng: -0.1278},
	{Name: "Tokyo", Lat: 35.6762, Lng: 139.6503},
	{Name: "Paris", Lat: 48.8566, Lng: 2.3522},
	{Name: "LA", Lat: 34.0522, Lng: -118.2437},
	{Name: "Sydney", Lat: -33.8688, Lng: 151.2093},
}

// SetDefaults registers the default value of every key.
func SetDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./logs")

	viper.SetDefault("server.address", ":8080")
	viper.SetDefault("server.mode", "release")

	viper.SetDefault("map.center.lat", 40.7128)
	viper.SetDefault("map.center.lng", -74.0060)
	viper.SetDefault("map.zoom", 11)
	viper.SetDefault("map.fitPaddingPx", 50)
	viper.SetDefault("map.quickLaunchZoom", 11)

	viper.SetDefault("controls.diameter", 100)
	viper.SetDefault("controls.velocity", 20)
	viper.SetDefault("controls.angle", 45)
	viper.SetDefault("controls.material", "rock")

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.memory.outputDir", "./impacts")
	viper.SetDefault("storage.memory.compressOutput", true)
	viper.SetDefault("storage.sqlite.path", "./impacts.db")
	viper.SetDefault("storage.sqlite.dumpInterval", "3m")
	viper.SetDefault("storage.websocket.url", "ws://localhost:5000/api/impacts")
	viper.SetDefault("storage.websocket.secret", "")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "impactsim")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "impactsim")
	viper.SetDefault("influx.bucket", "impacts")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("metrics.enabled", true)

	viper.SetDefault("upload.enabled", false)
	viper.SetDefault("upload.serverUrl", "http://localhost:5000")
	viper.SetDefault("upload.apiKey", "")
	viper.SetDefault("upload.tag", "")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "impactsim")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)
	viper.SetDefault("otel.tracing", false)
}

// Load sets defaults and reads impactsim.cfg.json from configDir. A missing
// file yields ErrConfigNotFound with defaults in effect; a malformed one is an error.
func Load(configDir string) error {
	SetDefaults()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return fmt.Errorf("%w in %s", ErrConfigNotFound, configDir)
		}
		return fmt.Errorf("error reading config file: %w", err)
	}
	return nil
}

// BindFlags binds command-line flags into viper. Flag names are config keys,
// e.g. --server.address, so an explicitly set flag overrides the file.
func BindFlags(fs *pflag.FlagSet) error {
	return viper.BindPFlags(fs)
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

func GetServerConfig() ServerConfig {
	return ServerConfig{
		Address: viper.GetString("server.address"),
		Mode:    viper.GetString("server.mode"),
	}
}

func GetMapConfig() MapConfig {
	return MapConfig{
		CenterLat:       viper.GetFloat64("map.center.lat"),
		CenterLng:       viper.GetFloat64("map.center.lng"),
		Zoom:            viper.GetInt("map.zoom"),
		FitPaddingPx:    viper.GetInt("map.fitPaddingPx"),
		QuickLaunchZoom: viper.GetInt("map.quickLaunchZoom"),
	}
}

func GetControlsConfig() ControlsConfig {
	return ControlsConfig{
		Diameter: viper.GetFloat64("controls.diameter"),
		Velocity: viper.GetFloat64("controls.velocity"),
		Angle:    viper.GetFloat64("controls.angle"),
		Material: viper.GetString("controls.material"),
	}
}

func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type: viper.GetString("storage.type"),
		Memory: MemoryConfig{
			OutputDir:      viper.GetString("storage.memory.outputDir"),
			CompressOutput: viper.GetBool("storage.memory.compressOutput"),
		},
		SQLite: SQLiteConfig{
			Path:         viper.GetString("storage.sqlite.path"),
			DumpInterval: viper.GetDuration("storage.sqlite.dumpInterval"),
		},
		WebSocket: CollectorConfig{
			URL:    viper.GetString("storage.websocket.url"),
			Secret: viper.GetString("storage.websocket.secret"),
		},
	}
}

func GetDBConfig() DBConfig {
	return DBConfig{
		Host:     viper.GetString("db.host"),
		Port:     viper.GetString("db.port"),
		Username: viper.GetString("db.username"),
		Password: viper.GetString("db.password"),
		Database: viper.GetString("db.database"),
	}
}

func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:  viper.GetBool("influx.enabled"),
		Host:     viper.GetString("influx.host"),
		Port:     viper.GetString("influx.port"),
		Protocol: viper.GetString("influx.protocol"),
		Token:    viper.GetString("influx.token"),
		Org:      viper.GetString("influx.org"),
		Bucket:   viper.GetString("influx.bucket"),
	}
}

func GetUploadConfig() UploadConfig {
	return UploadConfig{
		Enabled:   viper.GetBool("upload.enabled"),
		ServerURL: viper.GetString("upload.serverUrl"),
		APIKey:    viper.GetString("upload.apiKey"),
		Tag:       viper.GetString("upload.tag"),
	}
}

func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
		Tracing:      viper.GetBool("otel.tracing"),
	}
}

// GetQuickLaunchPresets returns the configured targets, or DefaultQuickLaunch
// when the "quickLaunch" key is unset or unreadable.
func GetQuickLaunchPresets() []QuickLaunchPreset {
	if !viper.IsSet("quickLaunch") {
		return append([]QuickLaunchPreset(nil), DefaultQuickLaunch...)
	}
	var presets []QuickLaunchPreset
	if err := viper.UnmarshalKey("quickLaunch", &presets); err != nil || len(presets) == 0 {
		return append([]QuickLaunchPreset(nil), DefaultQuickLaunch...)
	}
	return presets
}
