// config.go: This file contains the configuration for the HerbID-Go application. It defines the settings struct and functions to load and save the settings.
package conf

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

//go:embed config.yaml
var configFiles embed.FS

// LogConfig contains settings for application logging.
type LogConfig struct {
	Enabled bool   // true to enable logging to file
	Path    string // path to log file
}

// MainSettings contains top level application settings.
type MainSettings struct {
	Name string    // application name
	Log  LogConfig // logging settings
}

// PlantIDSettings contains settings for the Plant.id recognition provider.
type PlantIDSettings struct {
	APIKey   string `yaml:"apikey"`   // Plant.id API key, empty disables the provider
	Endpoint string `yaml:"endpoint"` // identification endpoint URL
}

// PlantNetSettings contains settings for the PlantNet recognition provider.
type PlantNetSettings struct {
	APIKey   string `yaml:"apikey"`   // PlantNet API key, empty disables the provider
	Endpoint string `yaml:"endpoint"` // identification endpoint URL
	Project  string `yaml:"project"`  // PlantNet project, "all" by default
}

// ProviderSettings selects and configures the species recognition provider.
type ProviderSettings struct {
	Name     string // "plantid" or "plantnet"
	PlantID  PlantIDSettings
	PlantNet PlantNetSettings
}

// UsesSettings configures the uses-resolution chain.
type UsesSettings struct {
	// Order lists resolution sources in priority order. Valid entries:
	// "spreadsheet", "catalog", "wikipedia", "provider".
	Order []string
}

// SpreadsheetSettings configures the optional tabular uses source.
type SpreadsheetSettings struct {
	Path string // path to .xlsx or .csv file, empty disables the source
}

// WikipediaSettings configures the encyclopedia summary source.
type WikipediaSettings struct {
	Endpoint string // REST summary endpoint base URL
	Debug    bool   // true to enable debug logging of API traffic
}

// SimilaritySettings configures the image-similarity fallback identifier.
type SimilaritySettings struct {
	ModelPath string  // path to the feature extractor tflite model
	Threshold float64 // minimum cosine similarity for a confident match
}

// OutputSettings selects the catalog database backend.
type OutputSettings struct {
	SQLite struct {
		Enabled bool   // true to enable SQLite catalog
		Path    string // path to SQLite database file
	}
	MySQL struct {
		Enabled  bool   // true to enable MySQL catalog
		Username string // MySQL username
		Password string // MySQL password
		Database string // MySQL database name
		Host     string // MySQL host
		Port     string // MySQL port
	}
}

// WebServerSettings contains settings for the REST API server.
type WebServerSettings struct {
	Enabled bool   // true to enable the HTTP server
	Port    string // port to listen on
	Debug   bool   // true to enable debug logging of requests
}

// Settings contains all runtime settings for the application.
type Settings struct {
	Debug bool // true to enable debug mode

	Version string // application version, runtime value

	Main        MainSettings
	Provider    ProviderSettings
	Uses        UsesSettings
	Spreadsheet SpreadsheetSettings
	Wikipedia   WikipediaSettings
	Similarity  SimilaritySettings
	Output      OutputSettings
	WebServer   WebServerSettings
}

// settingsInstance is the current settings instance
var (
	settingsInstance *Settings
	once             sync.Once
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables into a Settings struct.
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

	// Environment variables take precedence over the config file,
	// e.g. HERBID_PROVIDER_PLANTID_APIKEY.
	viper.SetEnvPrefix("herbid")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

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

// createDefaultConfig creates a default config file and writes it to the default config path
func createDefaultConfig() error {
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	configPath := filepath.Join(configPaths[0], "config.yaml")
	defaultConfig := getDefaultConfig()

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(defaultConfig), 0o644); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	fmt.Println("Created default config file at:", configPath)
	return viper.ReadInConfig()
}

// getDefaultConfig reads the default configuration from the embedded config.yaml file.
func getDefaultConfig() string {
	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		log.Fatalf("Error reading config file: %v", err)
	}
	return string(data)
}

// GetSettings returns the current settings instance
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// Setting returns the current settings instance, initializing it if necessary
func Setting() *Settings {
	once.Do(func() {
		if settingsInstance == nil {
			_, err := Load()
			if err != nil {
				log.Fatalf("Error loading settings: %v", err)
			}
		}
	})
	return GetSettings()
}

// SetTestSettings replaces the settings singleton, used by tests only.
func SetTestSettings(settings *Settings) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()
	settingsInstance = settings
}

// SaveSettings saves the current settings to the configuration file.
func SaveSettings() error {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()

	settingsCopy := *settingsInstance

	configPath, err := FindConfigFile()
	if err != nil {
		return fmt.Errorf("error finding config file: %w", err)
	}

	if err := SaveYAMLConfig(configPath, &settingsCopy); err != nil {
		return fmt.Errorf("error saving config: %w", err)
	}

	log.Printf("Settings saved successfully to %s", configPath)
	return nil
}

// FindConfigFile returns the path of the config file in use, or the default
// location when no config file exists yet.
func FindConfigFile() (string, error) {
	if used := viper.ConfigFileUsed(); used != "" {
		return used, nil
	}
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return "", err
	}
	return filepath.Join(configPaths[0], "config.yaml"), nil
}

// SaveYAMLConfig updates the YAML configuration file with new settings.
// It overwrites the existing file, not preserving comments or structure.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	// Write to a temporary file first for an atomic replace
	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary config file: %w", err)
	}
	tempName := tempFile.Name()

	if _, err := tempFile.Write(yamlData); err != nil {
		tempFile.Close()
		os.Remove(tempName)
		return fmt.Errorf("error writing temporary config file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		os.Remove(tempName)
		return fmt.Errorf("error closing temporary config file: %w", err)
	}

	if err := os.Rename(tempName, configPath); err != nil {
		os.Remove(tempName)
		return fmt.Errorf("error replacing config file: %w", err)
	}
	return nil
}

// GetDefaultConfigPaths returns the directories searched for config.yaml,
// most specific first.
func GetDefaultConfigPaths() ([]string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		// Fall back to working directory only
		return []string{"."}, nil //nolint:nilerr // missing HOME is not fatal
	}
	return []string{
		filepath.Join(configDir, "herbid"),
		".",
	}, nil
}
