package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for stencil
type Config struct {
	// Template is the template repository root (local path).
	Template string `mapstructure:"template"`
	// Project is the materialized reference project, relative to Template when not absolute.
	Project string        `mapstructure:"project"`
	Unsafe  bool          `mapstructure:"unsafe"`
	Checks  []CheckConfig `mapstructure:"checks"`
	Extract ExtractConfig `mapstructure:"extract"`
	Schemas SchemasConfig `mapstructure:"schemas"`
}

// CheckConfig describes one lint/format command run inside the project.
type CheckConfig struct {
	Name  string   `mapstructure:"name"`
	Dir   string   `mapstructure:"dir"`
	Check []string `mapstructure:"check"`
	Fix   []string `mapstructure:"fix"`
}

// ExtractConfig holds the extraction workflow settings
type ExtractConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	APIKey     string        `mapstructure:"api_key"`
	ProjectID  string        `mapstructure:"project_id"`
	AgentName  string        `mapstructure:"agent_name"`
	Collection string        `mapstructure:"collection"`
	Schema     string        `mapstructure:"schema"`
	Attempts   int           `mapstructure:"attempts"`
	Delay      time.Duration `mapstructure:"delay"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// SchemasConfig controls schema export
type SchemasConfig struct {
	Output string `mapstructure:"output"`
}

var defaultConfig = Config{
	Template: ".",
	Project:  "test-proj",
	Unsafe:   true,
	Extract: ExtractConfig{
		BaseURL:    "https://api.cloud.llamaindex.ai",
		AgentName:  "extraction-review",
		Collection: "extraction-review",
		Schema:     "ExtractionSchema",
		Attempts:   3,
		Delay:      10 * time.Second,
		Timeout:    60 * time.Second,
	},
	Schemas: SchemasConfig{Output: "ui/src/schemas"},
}

var defaultChecks = []map[string]interface{}{
	{
		"name":  "python",
		"dir":   ".",
		"check": []string{"uv", "run", "hatch", "run", "all-check"},
		"fix":   []string{"uv", "run", "hatch", "run", "all-fix"},
	},
	{
		"name":  "javascript",
		"dir":   "ui",
		"check": []string{"npm", "run", "all-check"},
		"fix":   []string{"npm", "run", "all-fix"},
	},
}

// LoadConfig loads configuration from defaults, config files, .env files and environment.
func LoadConfig() (*Config, error) {
	v, err := newViper()
	if err != nil {
		return nil, err
	}
	return unmarshal(v)
}

// LoadProjectConfig loads the global config, then merges the first project config file found
// in the working directory. Lists in the project file replace the defaults.
func LoadProjectConfig() (*Config, error) {
	v, err := newViper()
	if err != nil {
		return nil, err
	}

	projectConfigs := []string{
		".stencil.yaml",
		".stencil.yml",
		".stencil.json",
	}

	for _, configFile := range projectConfigs {
		data, err := os.ReadFile(configFile) // #nosec G304 -- fixed candidate names in the working directory
		if err != nil {
			continue
		}
		if err := ValidateConfig(data); err != nil {
			return nil, fmt.Errorf("%s: %w", configFile, err)
		}
		v.SetConfigFile(configFile)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("error reading %s: %w", configFile, err)
		}
		break
	}

	return unmarshal(v)
}

func newViper() (*viper.Viper, error) {
	loadEnvFiles()

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("stencil.config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME")
	if configDir, err := GetConfigDir(); err == nil {
		v.AddConfigPath(configDir)
	}

	v.SetEnvPrefix("STENCIL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindExtractEnv(v)

	// Config file is optional
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return v, nil
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("template", defaultConfig.Template)
	v.SetDefault("project", defaultConfig.Project)
	v.SetDefault("unsafe", defaultConfig.Unsafe)
	v.SetDefault("checks", defaultChecks)

	v.SetDefault("extract.base_url", defaultConfig.Extract.BaseURL)
	v.SetDefault("extract.agent_name", defaultConfig.Extract.AgentName)
	v.SetDefault("extract.collection", defaultConfig.Extract.Collection)
	v.SetDefault("extract.schema", defaultConfig.Extract.Schema)
	v.SetDefault("extract.attempts", defaultConfig.Extract.Attempts)
	v.SetDefault("extract.delay", defaultConfig.Extract.Delay)
	v.SetDefault("extract.timeout", defaultConfig.Extract.Timeout)

	v.SetDefault("schemas.output", defaultConfig.Schemas.Output)
}

// bindExtractEnv lets deployments keep the unprefixed variable names they already export.
func bindExtractEnv(v *viper.Viper) {
	_ = v.BindEnv("extract.api_key", "STENCIL_EXTRACT_API_KEY", "LLAMA_CLOUD_API_KEY")
	_ = v.BindEnv("extract.base_url", "STENCIL_EXTRACT_BASE_URL", "LLAMA_CLOUD_BASE_URL")
	_ = v.BindEnv("extract.project_id", "STENCIL_EXTRACT_PROJECT_ID", "LLAMA_DEPLOY_PROJECT_ID")
	_ = v.BindEnv("extract.agent_name", "STENCIL_EXTRACT_AGENT_NAME", "LLAMA_DEPLOY_DEPLOYMENT_NAME")
}

// loadEnvFiles loads .env then .env.local; existing environment variables win.
func loadEnvFiles() {
	for _, envFile := range []string{".env", ".env.local"} {
		_ = godotenv.Load(envFile)
	}
}

// ProjectDir resolves the project directory against the template root.
func (c *Config) ProjectDir() string {
	if filepath.IsAbs(c.Project) {
		return c.Project
	}
	return filepath.Join(c.Template, c.Project)
}

// FindCheck returns the named check, if configured.
func (c *Config) FindCheck(name string) (CheckConfig, bool) {
	for _, ch := range c.Checks {
		if ch.Name == name {
			return ch, true
		}
	}
	return CheckConfig{}, false
}

// GetStencilHome returns the stencil home directory
func GetStencilHome() (string, error) {
	if home := os.Getenv("STENCIL_HOME"); home != "" {
		return home, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %v", err)
	}

	return filepath.Join(homeDir, ".stencil"), nil
}

// EnsureStencilHome creates the stencil home directory if it doesn't exist
func EnsureStencilHome() (string, error) {
	homeDir, err := GetStencilHome()
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(homeDir, 0750); err != nil {
		return "", fmt.Errorf("failed to create stencil home directory: %v", err)
	}

	return homeDir, nil
}

// GetConfigDir returns the config directory
func GetConfigDir() (string, error) {
	homeDir, err := EnsureStencilHome()
	if err != nil {
		return "", err
	}
	configDir := filepath.Join(homeDir, "config")
	if err := os.MkdirAll(configDir, 0750); err != nil {
		return "", fmt.Errorf("failed to create config directory: %v", err)
	}
	return configDir, nil
}
