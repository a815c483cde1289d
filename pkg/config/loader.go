package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Default file names for the layered sources. Precedence, highest first:
// process environment, .env.local, .env, j2o.yml, code defaults.
const (
	LocalEnvFile  = ".env.local"
	SharedEnvFile = ".env"
	YAMLFile      = "j2o.yml"
)

// OSEnvLoader implements EnvLoader using the os package.
type OSEnvLoader struct{}

func (o *OSEnvLoader) Getenv(key string) string {
	return os.Getenv(key)
}

func (o *OSEnvLoader) LookupEnv(key string) (string, bool) {
	return os.LookupEnv(key)
}

// Loader assembles the configuration from its layered sources.
type Loader struct {
	envLoader EnvLoader
	yamlFile  string
	envFiles  []string
}

// NewLoader creates a loader over the default file locations.
func NewLoader() Provider {
	return &Loader{
		envLoader: &OSEnvLoader{},
		yamlFile:  YAMLFile,
		envFiles:  []string{LocalEnvFile, SharedEnvFile},
	}
}

// NewLoaderWithSources creates a loader with explicit sources (for testing).
func NewLoaderWithSources(envLoader EnvLoader, yamlFile string, envFiles ...string) Provider {
	return &Loader{
		envLoader: envLoader,
		yamlFile:  yamlFile,
		envFiles:  envFiles,
	}
}

// Load assembles the configuration: defaults, then the YAML file, then env
// files merged into the process environment, then the environment overlay.
// godotenv.Load never overwrites variables that are already set, so listing
// .env.local before .env gives the local file precedence, and real
// environment variables beat both.
func (l *Loader) Load() (*Config, error) {
	cfg := Defaults()

	if l.yamlFile != "" {
		if data, err := os.ReadFile(l.yamlFile); err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, &EnvFileError{FilePath: l.yamlFile, Err: fmt.Errorf("failed to parse YAML config: %w", err)}
			}
		} else if !os.IsNotExist(err) {
			return nil, &EnvFileError{FilePath: l.yamlFile, Err: err}
		}
	}

	var existing []string
	for _, f := range l.envFiles {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) > 0 {
		if err := godotenv.Load(existing...); err != nil {
			return nil, &EnvFileError{FilePath: existing[0], Err: err}
		}
	}

	applyEnv(cfg, l.envLoader)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate implements Provider.
func (l *Loader) Validate(cfg *Config) error {
	return Validate(cfg)
}

// EnvFileError represents an error loading a configuration file layer.
type EnvFileError struct {
	FilePath string
	Err      error
}

func (e *EnvFileError) Error() string {
	return fmt.Sprintf("failed to load config file %s: %v", e.FilePath, e.Err)
}

func (e *EnvFileError) Unwrap() error {
	return e.Err
}
