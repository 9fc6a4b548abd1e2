package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// ConfigFileName is the file Load looks for in the config directory.
const ConfigFileName = "hunt.cfg.json"

// MemoryConfig holds in-memory storage backend settings
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
	SeedFile       string `json:"seedFile" mapstructure:"seedFile"`
}

// SQLiteConfig holds SQLite storage backend settings
type SQLiteConfig struct {
	Path         string        `json:"path" mapstructure:"path"`
	DumpInterval time.Duration `json:"dumpInterval" mapstructure:"dumpInterval"`
}

// StorageConfig selects and configures the storage backend
type StorageConfig struct {
	Type   string       `json:"type" mapstructure:"type"`
	Memory MemoryConfig `json:"memory" mapstructure:"memory"`
	SQLite SQLiteConfig `json:"sqlite" mapstructure:"sqlite"`
}

// RoundConfig holds the round rules
type RoundConfig struct {
	AttemptBudget int
	MaxDuration   time.Duration
	DefaultRadius float64
	Language      string
	Style         string
}

// ConeConfig holds the default view cone shape
type ConeConfig struct {
	HalfSpanDeg  float64
	RadiusMeters float64
	Resolution   int
}

// AgentConfig holds the puzzle and landmark metadata service settings
type AgentConfig struct {
	PuzzleURL       string
	LandmarkMetaURL string
	Timeout         time.Duration
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled      bool
	ServiceName  string
	BatchTimeout time.Duration
	Endpoint     string
	Insecure     bool
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	setDefaults()

	viper.SetConfigName(ConfigFileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

func setDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./logs")

	viper.SetDefault("server.address", ":8080")
	viper.SetDefault("server.readTimeout", "15s")
	viper.SetDefault("server.writeTimeout", "30s")

	viper.SetDefault("round.attemptBudget", 3)
	viper.SetDefault("round.maxDuration", "30m")
	viper.SetDefault("round.defaultRadius", 500)
	viper.SetDefault("round.language", "English")
	viper.SetDefault("round.style", "Medieval")

	viper.SetDefault("cone.halfSpanDeg", 15)
	viper.SetDefault("cone.radiusMeters", 50)
	viper.SetDefault("cone.resolution", 50)

	viper.SetDefault("agent.puzzleUrl", "http://localhost:5001")
	viper.SetDefault("agent.landmarkMetaUrl", "http://localhost:5002")
	viper.SetDefault("agent.timeout", "10s")

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.memory.outputDir", "./records")
	viper.SetDefault("storage.memory.compressOutput", true)
	viper.SetDefault("storage.memory.seedFile", "")
	viper.SetDefault("storage.sqlite.path", "")
	viper.SetDefault("storage.sqlite.dumpInterval", "3m")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "hunt")
	viper.SetDefault("db.sslmode", "disable")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "")
	viper.SetDefault("influx.org", "hunt-metrics")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "hunt-server")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)
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

// GetStorageConfig returns the storage backend settings.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type: viper.GetString("storage.type"),
		Memory: MemoryConfig{
			OutputDir:      viper.GetString("storage.memory.outputDir"),
			CompressOutput: viper.GetBool("storage.memory.compressOutput"),
			SeedFile:       viper.GetString("storage.memory.seedFile"),
		},
		SQLite: SQLiteConfig{
			Path:         viper.GetString("storage.sqlite.path"),
			DumpInterval: viper.GetDuration("storage.sqlite.dumpInterval"),
		},
	}
}

// GetRoundConfig returns the round rules.
func GetRoundConfig() RoundConfig {
	return RoundConfig{
		AttemptBudget: viper.GetInt("round.attemptBudget"),
		MaxDuration:   viper.GetDuration("round.maxDuration"),
		DefaultRadius: viper.GetFloat64("round.defaultRadius"),
		Language:      viper.GetString("round.language"),
		Style:         viper.GetString("round.style"),
	}
}

// GetConeConfig returns the default view cone shape.
func GetConeConfig() ConeConfig {
	return ConeConfig{
		HalfSpanDeg:  viper.GetFloat64("cone.halfSpanDeg"),
		RadiusMeters: viper.GetFloat64("cone.radiusMeters"),
		Resolution:   viper.GetInt("cone.resolution"),
	}
}

// GetAgentConfig returns the puzzle and metadata service settings.
func GetAgentConfig() AgentConfig {
	return AgentConfig{
		PuzzleURL:       viper.GetString("agent.puzzleUrl"),
		LandmarkMetaURL: viper.GetString("agent.landmarkMetaUrl"),
		Timeout:         viper.GetDuration("agent.timeout"),
	}
}

// GetServerConfig returns the HTTP server settings.
func GetServerConfig() ServerConfig {
	return ServerConfig{
		Address:      viper.GetString("server.address"),
		ReadTimeout:  viper.GetDuration("server.readTimeout"),
		WriteTimeout: viper.GetDuration("server.writeTimeout"),
	}
}

// GetOTelConfig returns the OpenTelemetry settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}
