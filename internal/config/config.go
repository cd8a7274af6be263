// Package config loads the YAML bootstrap configuration. Runtime tunables
// live in the database (internal/settings); this file only carries what is
// needed before the database is reachable.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/salesdock/automation/internal/util"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the config filename resolved against the working path.
const DefaultConfigFile = "config.yaml"

// AppConfig holds process-level options passed from the command line.
type AppConfig struct {
	ConfigPath string
}

// FileConfig is the on-disk YAML layout.
type FileConfig struct {
	Database struct {
		DSN string `yaml:"dsn"`
	} `yaml:"database"`
	Redis struct {
		Addr string `yaml:"addr"`
	} `yaml:"redis"`
	Collaborators struct {
		ConditionEndpoint string `yaml:"condition-endpoint"`
		RenderEndpoint    string `yaml:"render-endpoint"`
		MailEndpoint      string `yaml:"mail-endpoint"`
	} `yaml:"collaborators"`
	Server struct {
		Listen string `yaml:"listen"`
	} `yaml:"server"`
	Log struct {
		File  string `yaml:"file"`
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// ResolveConfigPath returns the effective config file path, preferring the
// explicit flag value, then the writable path, then the working directory.
func ResolveConfigPath(flagValue string) string {
	trimmed := strings.TrimSpace(flagValue)
	if trimmed != "" {
		return filepath.Clean(trimmed)
	}
	if base := util.WritablePath(); base != "" {
		return filepath.Join(base, DefaultConfigFile)
	}
	return DefaultConfigFile
}

// Load reads and parses the YAML config file.
func Load(path string) (*FileConfig, error) {
	data, errRead := os.ReadFile(path)
	if errRead != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, errRead)
	}
	var cfg FileConfig
	if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, errUnmarshal)
	}
	return &cfg, nil
}

// LoadDatabaseDSN loads the config file and returns the database DSN,
// allowing the DATABASE_DSN environment variable to override it.
func LoadDatabaseDSN(path string) (string, error) {
	if env := strings.TrimSpace(os.Getenv("DATABASE_DSN")); env != "" {
		return env, nil
	}
	cfg, errLoad := Load(path)
	if errLoad != nil {
		return "", errLoad
	}
	dsn := strings.TrimSpace(cfg.Database.DSN)
	if dsn == "" {
		return "", fmt.Errorf("config: %s has no database.dsn", path)
	}
	return dsn, nil
}
