package cli

import (
	"path/filepath"
	"time"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"github.com/j2o/migrate/pkg/checkpoint"
	"github.com/j2o/migrate/pkg/config"
	"github.com/j2o/migrate/pkg/datadir"
	"github.com/j2o/migrate/pkg/jira"
	"github.com/j2o/migrate/pkg/logging"
	"github.com/j2o/migrate/pkg/migration"
	"github.com/j2o/migrate/pkg/openproject"
	"github.com/j2o/migrate/pkg/provenance"
	"github.com/j2o/migrate/pkg/railscript"
	"github.com/j2o/migrate/pkg/remote"
)

// railsAppDir is the Rails root inside the OpenProject container, used by
// the one-shot runner fallback.
const railsAppDir = "/app"

// checkpointDBFile is the checkpoint database name under the data directory.
const checkpointDBFile = "checkpoints.db"

// loadConfig assembles the layered configuration, honoring the global flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	yamlFile, _ := cmd.Flags().GetString("config")
	if yamlFile == "" {
		yamlFile = config.YAMLFile
	}
	loader := config.NewLoaderWithSources(&config.OSEnvLoader{}, yamlFile,
		config.LocalEnvFile, config.SharedEnvFile)
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.LogLevel = level
	}
	if format, _ := cmd.Flags().GetString("log-format"); format != "" {
		cfg.LogFormat = format
	}
	return cfg, nil
}

// buildLogger creates the engine logger from the configuration.
func buildLogger(cfg *config.Config) (logr.Logger, func(), error) {
	return logging.New(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		LogDir: cfg.LogDir,
	})
}

// services bundles everything a command needs to run migrations, plus the
// handles that must be closed afterwards.
type services struct {
	Env         *migration.Env
	Transport   *remote.SSHTransport
	Checkpoints *checkpoint.SQLiteStore
}

// Close releases the SSH connection and the checkpoint database.
func (s *services) Close() {
	if s.Checkpoints != nil {
		_ = s.Checkpoints.Close()
	}
	if s.Transport != nil {
		_ = s.Transport.Close()
	}
}

// buildServices wires the full stack: Jira client, SSH transport, container,
// console evaluator (with optional one-shot fallback), provenance store,
// data directory, and checkpoints.
func buildServices(cfg *config.Config, log logr.Logger, dryRun, force bool) (*services, error) {
	data, err := datadir.New(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	checkpoints, err := checkpoint.NewSQLiteStore(filepath.Join(cfg.DataDir, checkpointDBFile))
	if err != nil {
		return nil, err
	}

	jiraClient, err := jira.NewClient(cfg.Jira.URL, cfg.Jira.APIToken, cfg.Migration.SSLVerify)
	if err != nil {
		_ = checkpoints.Close()
		return nil, err
	}
	opClient := openproject.NewAPIClient(cfg.OpenProject.URL, cfg.OpenProject.APIToken, cfg.Migration.SSLVerify)

	transport, err := remote.NewSSHTransport(remote.SSHOptions{
		Host:       cfg.OpenProject.Host,
		User:       cfg.OpenProject.User,
		KeyPath:    cfg.OpenProject.SSHKeyPath,
		KnownHosts: cfg.OpenProject.KnownHosts,
		Timeout:    15 * time.Second,
	})
	if err != nil {
		_ = checkpoints.Close()
		return nil, err
	}
	container := remote.NewContainer(transport, cfg.OpenProject.Container)
	session := remote.NewConsoleSession(transport, cfg.OpenProject.TmuxSession)

	var evaluator remote.Evaluator = remote.NewConsoleEvaluator(container, session, cfg.OpenProject.RemoteTemp)
	if cfg.Migration.EnableRunnerFallback {
		evaluator = &remote.FallbackEvaluator{
			Primary:   evaluator,
			Secondary: remote.NewOneShotRunner(container, cfg.OpenProject.RemoteTemp, railsAppDir),
			Log:       log,
		}
	}

	composer, err := railscript.NewComposer()
	if err != nil {
		_ = checkpoints.Close()
		_ = transport.Close()
		return nil, err
	}

	env := &migration.Env{
		Cfg:         cfg,
		Log:         log,
		Jira:        jiraClient,
		OpenProject: opClient,
		Evaluator:   evaluator,
		Composer:    composer,
		Provenance:  provenance.NewRemoteStore(evaluator, composer, cfg.Migration.ExecuteTimeout, log),
		Data:        data,
		Checkpoints: checkpoints,
		DryRun:      dryRun,
		Force:       force,
	}
	return &services{Env: env, Transport: transport, Checkpoints: checkpoints}, nil
}
