package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Fallback strategies for user references that cannot be resolved in the
// target instance.
const (
	FallbackSkip              = "skip"
	FallbackAssignAdmin       = "assign_admin"
	FallbackCreatePlaceholder = "create_placeholder"
)

// JiraConfig addresses the source Jira instance.
type JiraConfig struct {
	URL       string   `yaml:"url"`
	Username  string   `yaml:"username"`
	APIToken  string   `yaml:"api_token"`
	Projects  []string `yaml:"projects"`
	BatchSize int      `yaml:"batch_size"`
}

// OpenProjectConfig addresses the target OpenProject instance, both its REST
// API and the SSH/container path used by the Rails console.
type OpenProjectConfig struct {
	URL         string `yaml:"url"`
	APIToken    string `yaml:"api_token"`
	Host        string `yaml:"host"`
	User        string `yaml:"user"`
	SSHKeyPath  string `yaml:"ssh_key_path"`
	KnownHosts  string `yaml:"known_hosts"`
	Container   string `yaml:"container"`
	TmuxSession string `yaml:"tmux_session"`
	RemoteTemp  string `yaml:"remote_temp"`
}

// MappingConfig tunes the provenance mapping cache and user fallback policy.
type MappingConfig struct {
	RefreshInterval  time.Duration `yaml:"refresh_interval"`
	FallbackStrategy string        `yaml:"fallback_strategy"`
}

// MigrationConfig tunes the engine itself.
type MigrationConfig struct {
	ComponentOrder       []string      `yaml:"component_order"`
	BatchSize            int           `yaml:"batch_size"`
	SkipExisting         bool          `yaml:"skip_existing"`
	SSLVerify            bool          `yaml:"ssl_verify"`
	Mapping              MappingConfig `yaml:"mapping"`
	FallbackAdminUserID  int           `yaml:"fallback_admin_user_id"`
	EnableRunnerFallback bool          `yaml:"enable_runner_fallback"`
	MigrateAvatars       bool          `yaml:"migrate_avatars"`
	ExecuteTimeout       time.Duration `yaml:"execute_timeout"`
	Concurrency          int           `yaml:"concurrency"`
	ParentProject        string        `yaml:"parent_project"`

	// TransformationRequireMapping controls whether transformation-only
	// components (attachments, time entries, relations) fail hard when the
	// work-package mapping is missing, or skip with a warning.
	TransformationRequireMapping bool `yaml:"transformation_components_require_mapping"`
}

// Config is the value-typed configuration for the whole engine. It is built
// once at startup and passed by reference; nothing mutates it afterwards.
type Config struct {
	Jira        JiraConfig        `yaml:"jira"`
	OpenProject OpenProjectConfig `yaml:"openproject"`
	Migration   MigrationConfig   `yaml:"migration"`

	DataDir   string `yaml:"data_dir"`
	LogDir    string `yaml:"log_dir"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Provider defines the interface for configuration management.
// This enables dependency injection and testing with mock environments.
type Provider interface {
	Load() (*Config, error)
	Validate(*Config) error
}

// EnvLoader defines the interface for environment variable access.
// This allows testing with mock environment variables.
type EnvLoader interface {
	Getenv(key string) string
	LookupEnv(key string) (string, bool)
}

// Defaults returns the code-default layer of the configuration.
func Defaults() *Config {
	return &Config{
		Jira: JiraConfig{
			BatchSize: 100,
		},
		OpenProject: OpenProjectConfig{
			User:        "root",
			Container:   "openproject",
			TmuxSession: "rails_console",
			RemoteTemp:  "/tmp",
		},
		Migration: MigrationConfig{
			BatchSize:    100,
			SSLVerify:    true,
			SkipExisting: true,
			Mapping: MappingConfig{
				RefreshInterval:  1 * time.Hour,
				FallbackStrategy: FallbackSkip,
			},
			ExecuteTimeout:               120 * time.Second,
			Concurrency:                  4,
			TransformationRequireMapping: true,
		},
		DataDir:   "data",
		LogDir:    "logs",
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// applyEnv overlays environment variables onto a config. Environment values
// always win over file-provided values; unset variables leave the config
// untouched, so neither source may assume the other's presence.
func applyEnv(cfg *Config, env EnvLoader) {
	setString := func(key string, dst *string) {
		if v, ok := env.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v, ok := env.LookupEnv(key); ok {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setBool := func(key string, dst *bool) {
		if v, ok := env.LookupEnv(key); ok {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}
	setDuration := func(key string, dst *time.Duration) {
		if v, ok := env.LookupEnv(key); ok {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = d
			}
		}
	}

	setString("J2O_JIRA_URL", &cfg.Jira.URL)
	setString("J2O_JIRA_USERNAME", &cfg.Jira.Username)
	setString("J2O_JIRA_API_TOKEN", &cfg.Jira.APIToken)
	setInt("J2O_JIRA_BATCH_SIZE", &cfg.Jira.BatchSize)
	if v, ok := env.LookupEnv("J2O_JIRA_PROJECTS"); ok && v != "" {
		cfg.Jira.Projects = splitList(v)
	}

	setString("J2O_OPENPROJECT_URL", &cfg.OpenProject.URL)
	setString("J2O_OPENPROJECT_API_TOKEN", &cfg.OpenProject.APIToken)
	setString("J2O_OPENPROJECT_HOST", &cfg.OpenProject.Host)
	setString("J2O_OPENPROJECT_USER", &cfg.OpenProject.User)
	setString("J2O_OPENPROJECT_SSH_KEY", &cfg.OpenProject.SSHKeyPath)
	setString("J2O_OPENPROJECT_KNOWN_HOSTS", &cfg.OpenProject.KnownHosts)
	setString("J2O_OPENPROJECT_CONTAINER", &cfg.OpenProject.Container)
	setString("J2O_OPENPROJECT_TMUX_SESSION", &cfg.OpenProject.TmuxSession)
	setString("J2O_OPENPROJECT_REMOTE_TEMP", &cfg.OpenProject.RemoteTemp)

	if v, ok := env.LookupEnv("J2O_COMPONENT_ORDER"); ok && v != "" {
		cfg.Migration.ComponentOrder = splitList(v)
	}
	setInt("J2O_BATCH_SIZE", &cfg.Migration.BatchSize)
	setBool("J2O_SKIP_EXISTING", &cfg.Migration.SkipExisting)
	setBool("J2O_SSL_VERIFY", &cfg.Migration.SSLVerify)
	setDuration("J2O_MAPPING_REFRESH_INTERVAL", &cfg.Migration.Mapping.RefreshInterval)
	setString("J2O_MAPPING_FALLBACK_STRATEGY", &cfg.Migration.Mapping.FallbackStrategy)
	setInt("J2O_FALLBACK_ADMIN_USER_ID", &cfg.Migration.FallbackAdminUserID)
	setBool("J2O_ENABLE_RUNNER_FALLBACK", &cfg.Migration.EnableRunnerFallback)
	setBool("J2O_MIGRATE_AVATARS", &cfg.Migration.MigrateAvatars)
	setDuration("J2O_EXECUTE_TIMEOUT", &cfg.Migration.ExecuteTimeout)
	setInt("J2O_CONCURRENCY", &cfg.Migration.Concurrency)
	setString("J2O_PARENT_PROJECT", &cfg.Migration.ParentProject)
	setBool("J2O_TRANSFORMATION_REQUIRE_MAPPING", &cfg.Migration.TransformationRequireMapping)

	setString("J2O_DATA_DIR", &cfg.DataDir)
	setString("J2O_LOG_DIR", &cfg.LogDir)
	setString("LOG_LEVEL", &cfg.LogLevel)
	setString("LOG_FORMAT", &cfg.LogFormat)
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// Validate validates the assembled configuration.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.Jira.URL == "" {
		errs = append(errs, "jira.url is required")
	} else if err := validateURL(cfg.Jira.URL); err != nil {
		errs = append(errs, fmt.Sprintf("jira.url is invalid: %v", err))
	}
	if cfg.Jira.Username == "" {
		errs = append(errs, "jira.username is required")
	}
	if cfg.Jira.APIToken == "" {
		errs = append(errs, "jira.api_token is required")
	}
	if cfg.Jira.BatchSize < 1 {
		errs = append(errs, "jira.batch_size must be at least 1")
	}

	if cfg.OpenProject.URL == "" {
		errs = append(errs, "openproject.url is required")
	} else if err := validateURL(cfg.OpenProject.URL); err != nil {
		errs = append(errs, fmt.Sprintf("openproject.url is invalid: %v", err))
	}
	if cfg.OpenProject.Host == "" {
		errs = append(errs, "openproject.host is required")
	}
	if cfg.OpenProject.Container == "" {
		errs = append(errs, "openproject.container is required")
	}
	if cfg.OpenProject.TmuxSession == "" {
		errs = append(errs, "openproject.tmux_session is required")
	}

	switch cfg.Migration.Mapping.FallbackStrategy {
	case FallbackSkip, FallbackAssignAdmin, FallbackCreatePlaceholder:
	default:
		errs = append(errs, fmt.Sprintf("migration.mapping.fallback_strategy must be one of: %s, %s, %s",
			FallbackSkip, FallbackAssignAdmin, FallbackCreatePlaceholder))
	}
	if cfg.Migration.Mapping.FallbackStrategy == FallbackAssignAdmin && cfg.Migration.FallbackAdminUserID == 0 {
		errs = append(errs, "migration.fallback_admin_user_id is required for the assign_admin strategy")
	}
	if cfg.Migration.BatchSize < 1 {
		errs = append(errs, "migration.batch_size must be at least 1")
	}
	if cfg.Migration.Concurrency < 1 {
		errs = append(errs, "migration.concurrency must be at least 1")
	}
	if cfg.Migration.ExecuteTimeout < 1*time.Second || cfg.Migration.ExecuteTimeout > 600*time.Second {
		errs = append(errs, "migration.execute_timeout must be between 1s and 600s")
	}

	if err := validateOneOf(cfg.LogLevel, "debug", "info", "warn", "error"); err != nil {
		errs = append(errs, fmt.Sprintf("log_level is invalid: %v", err))
	}
	if err := validateOneOf(cfg.LogFormat, "text", "json"); err != nil {
		errs = append(errs, fmt.Sprintf("log_format is invalid: %v", err))
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// ValidationError represents configuration validation errors.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

func validateURL(urlStr string) error {
	u, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL must use http or https scheme")
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}

func validateOneOf(value string, valid ...string) error {
	for _, v := range valid {
		if value == v {
			return nil
		}
	}
	return fmt.Errorf("must be one of: %s", strings.Join(valid, ", "))
}
