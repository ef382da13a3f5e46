package cfg

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Settings struct {
	NumRep        int
	DatasetIDs    []string
	MetricNames   []string
	Kind          string
	OutputDir     string
	CheckpointDir string

	MonitorEnabled bool
	MonitorPort    int

	TrackerURL     string
	TrackerAPIKey  string
	TrackerTimeout time.Duration

	ArchivePath string

	LogLevel string
}

type ConfigFile struct {
	Experiment struct {
		NumRep        int      `yaml:"numRep"`
		DatasetIDs    []string `yaml:"datasetIDs"`
		MetricNames   []string `yaml:"metricNames"`
		Kind          string   `yaml:"kind"`
		OutputDir     string   `yaml:"outputDir"`
		CheckpointDir string   `yaml:"checkpointDir"`
	} `yaml:"experiment"`

	Monitor struct {
		Enabled bool `yaml:"enabled"`
		Port    int  `yaml:"port"`
	} `yaml:"monitor"`

	Tracker struct {
		BaseURL string `yaml:"baseURL"`
		APIKey  string `yaml:"apiKey"`
		Timeout string `yaml:"timeout"`
	} `yaml:"tracker"`

	Archive struct {
		Path string `yaml:"path"`
	} `yaml:"archive"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

func Load() (Settings, error) {
	// Try to load from YAML file first
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromYAML(configPath)
	}

	// Fallback to environment variables
	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	trackerTimeout, err := time.ParseDuration(config.Tracker.Timeout)
	if err != nil {
		trackerTimeout = 5 * time.Second
	}

	settings := Settings{
		NumRep:         getIntFromEnvOrConfig("PSY_NUM_REP", config.Experiment.NumRep, 10),
		DatasetIDs:     getListFromEnvOrConfig("PSY_DATASET_IDS", config.Experiment.DatasetIDs),
		MetricNames:    getListFromEnvOrConfig("PSY_METRIC_NAMES", config.Experiment.MetricNames),
		Kind:           getEnvOrDefault("PSY_KIND", orDefault(config.Experiment.Kind, "classify")),
		OutputDir:      getEnvOrDefault("PSY_OUTPUT_DIR", orDefault(config.Experiment.OutputDir, "out")),
		CheckpointDir:  getEnvOrDefault("PSY_CHECKPOINT_DIR", config.Experiment.CheckpointDir),
		MonitorEnabled: getBoolFromEnvOrConfig("PSY_MONITOR_ENABLED", config.Monitor.Enabled),
		MonitorPort:    getIntFromEnvOrConfig("PSY_MONITOR_PORT", config.Monitor.Port, 8080),
		TrackerURL:     getEnvOrDefault("PSY_TRACKER_URL", config.Tracker.BaseURL),
		TrackerAPIKey:  getEnvOrDefault("PSY_TRACKER_API_KEY", config.Tracker.APIKey),
		TrackerTimeout: trackerTimeout,
		ArchivePath:    getEnvOrDefault("PSY_ARCHIVE_PATH", config.Archive.Path),
		LogLevel:       getEnvOrDefault("PSY_LOG_LEVEL", orDefault(config.Logging.Level, "info")),
	}
	fillDerivedPaths(&settings)

	// Validate configuration
	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func loadFromEnv() (Settings, error) {
	settings := Settings{
		NumRep:         getIntOrDefault("PSY_NUM_REP", 10),
		DatasetIDs:     splitOrDefault(os.Getenv("PSY_DATASET_IDS"), nil),
		MetricNames:    splitOrDefault(os.Getenv("PSY_METRIC_NAMES"), nil),
		Kind:           getEnvOrDefault("PSY_KIND", "classify"),
		OutputDir:      getEnvOrDefault("PSY_OUTPUT_DIR", "out"),
		CheckpointDir:  os.Getenv("PSY_CHECKPOINT_DIR"), // optional
		MonitorEnabled: getBoolOrDefault("PSY_MONITOR_ENABLED", false),
		MonitorPort:    getIntOrDefault("PSY_MONITOR_PORT", 8080),
		TrackerURL:     os.Getenv("PSY_TRACKER_URL"), // optional
		TrackerAPIKey:  os.Getenv("PSY_TRACKER_API_KEY"),
		TrackerTimeout: getDurationOrDefault("PSY_TRACKER_TIMEOUT", 5*time.Second),
		ArchivePath:    os.Getenv("PSY_ARCHIVE_PATH"), // optional
		LogLevel:       getEnvOrDefault("PSY_LOG_LEVEL", "info"),
	}
	fillDerivedPaths(&settings)

	// Validate configuration
	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

// fillDerivedPaths resolves the paths that default relative to the output
// directory when not set explicitly.
func fillDerivedPaths(settings *Settings) {
	if settings.CheckpointDir == "" {
		settings.CheckpointDir = filepath.Join(settings.OutputDir, "checkpoints")
	}
	if settings.ArchivePath == "" {
		settings.ArchivePath = filepath.Join(settings.OutputDir, "experiments.db")
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func orDefault(v, defaultValue string) string {
	if v != "" {
		return v
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func splitOrDefault(v string, def []string) []string {
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func getListFromEnvOrConfig(key string, configValue []string) []string {
	if env := os.Getenv(key); env != "" {
		return splitOrDefault(env, nil)
	}
	return configValue
}

func getIntFromEnvOrConfig(key string, configValue, defaultValue int) int {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.Atoi(env); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

func getBoolFromEnvOrConfig(key string, configValue bool) bool {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.ParseBool(env); err == nil {
			return val
		}
	}
	return configValue
}

// validateSettings performs comprehensive validation of configuration values
func validateSettings(settings *Settings) error {
	if settings.NumRep < 1 {
		return fmt.Errorf("number of repetitions must be at least 1, got %d", settings.NumRep)
	}

	if settings.Kind != "classify" && settings.Kind != "regress" {
		return fmt.Errorf("experiment kind must be classify or regress, got %q", settings.Kind)
	}

	if settings.OutputDir == "" {
		return fmt.Errorf("output directory cannot be empty")
	}

	for _, id := range settings.DatasetIDs {
		if id == "" {
			return fmt.Errorf("dataset ids must be non-empty")
		}
	}

	if settings.MonitorEnabled {
		if settings.MonitorPort < 1024 || settings.MonitorPort > 65535 {
			return fmt.Errorf("monitor port must be between 1024 and 65535, got %d", settings.MonitorPort)
		}
	}

	if settings.TrackerTimeout <= 0 || settings.TrackerTimeout > 2*time.Minute {
		return fmt.Errorf("tracker timeout must be between 0 and 2m, got %v", settings.TrackerTimeout)
	}

	return nil
}
