// config.go: settings struct and functions to load and save the settings for
// the FieldQuest identification service.
package conf

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

//go:embed config.yaml
var configFiles embed.FS

// LogConfig contains settings for log rotation.
type LogConfig struct {
	Enabled bool   // true to enable file logging
	Path    string // path to log directory
}

// MainSettings contains top level application settings.
type MainSettings struct {
	Name string    // instance name, used in log attribution
	Log  LogConfig // log rotation settings
}

// ThresholdSettings holds per-target confidence thresholds for auto-accept
// routing. Values are in the [0,1] range.
type ThresholdSettings struct {
	Species float64 // general species identification (images)
	Bird    float64 // bird call identification (audio)
	Macro   float64 // macro-invertebrate identification (images)
}

// RetrySettings configures the retry executor wrapping provider calls.
type RetrySettings struct {
	MaxAttempts int    // maximum attempts per provider call
	DelayMS     int    // base delay in milliseconds
	MaxDelayMS  int    // delay cap in milliseconds
	Backoff     string // "fixed", "linear" or "exponential"
	Jitter      bool   // apply +-20% jitter to computed delays
}

// IdentifySettings contains the pipeline-level settings.
type IdentifySettings struct {
	Thresholds ThresholdSettings // per-target auto-accept thresholds
	Retry      RetrySettings     // provider call retry policy
	TimeoutMS  int               // overall submission deadline in milliseconds
}

// INaturalistSettings contains settings for the iNaturalist computer vision API.
type INaturalistSettings struct {
	Enabled     bool   // true to enable the iNaturalist provider
	ClientID    string // iNaturalist application client id
	Endpoint    string // score_image endpoint
	RateLimitMS int    // minimum milliseconds between requests
	CacheTTLMin int    // taxa cache TTL in minutes
}

// BirdWeatherSettings contains settings for the BirdWeather sound ID API.
type BirdWeatherSettings struct {
	Enabled     bool   // true to enable the BirdWeather provider
	APIKey      string // BirdWeather API key
	Endpoint    string // identify endpoint
	RateLimitMS int    // minimum milliseconds between requests
}

// MacroSettings contains settings for the macro-invertebrate API.
type MacroSettings struct {
	Enabled         bool   // true to enable the macro provider
	APIKey          string // remote API key, empty to run offline only
	Endpoint        string // identify endpoint
	OfflineFallback bool   // fall back to the on-host heuristic model
	RateLimitMS     int    // minimum milliseconds between requests
}

// ProviderSettings groups all external classification providers.
type ProviderSettings struct {
	INaturalist INaturalistSettings
	BirdWeather BirdWeatherSettings
	Macro       MacroSettings
}

// SQLiteSettings contains settings for the SQLite moderation store.
type SQLiteSettings struct {
	Enabled bool   // true to enable SQLite
	Path    string // path to SQLite database file
}

// MySQLSettings contains settings for the MySQL moderation store.
type MySQLSettings struct {
	Enabled  bool   // true to enable MySQL
	Username string // MySQL username
	Password string // MySQL password
	Database string // MySQL database name
	Host     string // MySQL host
	Port     string // MySQL port
}

// OutputSettings contains settings for the moderation store backends.
type OutputSettings struct {
	SQLite SQLiteSettings
	MySQL  MySQLSettings
}

// WebServerSettings contains settings for the HTTP API and metrics listeners.
type WebServerSettings struct {
	Enabled     bool   // true to run the HTTP API
	Port        string // API listen port
	MetricsPort string // Prometheus metrics listen port, empty to disable
}

// SecuritySettings contains the reviewer privilege configuration used by the
// static authorizer. Production deployments replace this with an external
// identity provider behind the same interface.
type SecuritySettings struct {
	ReviewerRole string   // role name required to drive review transitions
	Reviewers    []string // actor ids granted the reviewer role
}

// Settings contains all configuration for the application.
type Settings struct {
	Debug bool // true to enable debug logging

	Main      MainSettings
	Identify  IdentifySettings
	Providers ProviderSettings
	Output    OutputSettings
	WebServer WebServerSettings
	Security  SecuritySettings
}

// settingsInstance is the current settings instance
var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables into Settings.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper initializes viper with default values and reads the configuration file.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}

	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	// Set default values for each configuration parameter
	// function defined in defaults.go
	setDefaultConfig()

	err = viper.ReadInConfig()
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			// Config file not found, create config with defaults
			return createDefaultConfig()
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// createDefaultConfig writes the embedded default config to the first default
// config path and loads it.
func createDefaultConfig() error {
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	configPath := filepath.Join(configPaths[0], "config.yaml")

	defaultConfig, err := configFiles.ReadFile("config.yaml")
	if err != nil {
		return fmt.Errorf("error reading embedded default config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, defaultConfig, 0o644); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	return viper.ReadInConfig()
}

// GetDefaultConfigPaths returns the list of directories searched for config.yaml.
func GetDefaultConfigPaths() ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("error getting user home directory: %w", err)
	}

	return []string{
		".",
		filepath.Join(homeDir, ".config", "fieldquest"),
		"/etc/fieldquest",
	}, nil
}

// GetBasePath expands and normalizes a directory path, creating the
// directory if it does not exist yet.
func GetBasePath(path string) string {
	expandedPath := os.ExpandEnv(path)
	basePath := filepath.Clean(expandedPath)

	if _, err := os.Stat(basePath); os.IsNotExist(err) {
		if err := os.MkdirAll(basePath, 0o750); err != nil {
			fmt.Printf("failed to create directory '%s': %v\n", basePath, err)
		}
	}

	return basePath
}

// GetSettings returns the current settings instance, or nil if Load has not
// been called.
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// SaveYAMLConfig serializes the current settings to the given path. Used by
// tests and the CLI to capture an effective configuration.
func SaveYAMLConfig(settings *Settings, path string) error {
	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("error writing settings file: %w", err)
	}
	return nil
}
