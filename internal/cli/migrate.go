package cli

import (
	"bufio"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/j2o/migrate/pkg/migration"
	"github.com/j2o/migrate/pkg/orchestrator"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run the migration",
	Long: `Run the migration for the configured Jira projects.

Components run in dependency order: users and groups first, then projects
with their metadata, versions, and components, then work packages in two
phases (skeletons for the key mapping, then content and journals), and
finally attachments, time entries, relations, watchers, labels, and remote
links.

Re-runs are safe: extracted data is cached, loads are idempotent via origin
tags, and fresh checkpoints fast-forward past completed batches.`,
	Example: `  # Full migration of the configured projects
  j2o migrate

  # Only rebuild work package content and journals
  j2o migrate --components=work_packages_content

  # Restrict to one Jira project, previewing without writes
  j2o migrate --jira-project-filter=NRS --dry-run

  # Replay the work package phases from scratch
  j2o migrate --reset-wp-checkpoints --force`,
	RunE: runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	components, _ := cmd.Flags().GetStringSlice("components")
	projectFilter, _ := cmd.Flags().GetStringSlice("jira-project-filter")
	resetWP, _ := cmd.Flags().GetBool("reset-wp-checkpoints")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	force, _ := cmd.Flags().GetBool("force")
	noConfirm, _ := cmd.Flags().GetBool("no-confirm")
	noBackup, _ := cmd.Flags().GetBool("no-backup")
	continueOnError, _ := cmd.Flags().GetBool("continue-on-error")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if len(projectFilter) > 0 {
		cfg.Jira.Projects = projectFilter
	}
	if len(cfg.Jira.Projects) == 0 {
		return fmt.Errorf("no Jira projects configured; set jira.projects or pass --jira-project-filter")
	}

	if !dryRun && !noConfirm {
		if !confirmRun(cfg.OpenProject.URL, noBackup) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	log, flush, err := buildLogger(cfg)
	if err != nil {
		return err
	}
	defer flush()

	svc, err := buildServices(cfg, log, dryRun, force)
	if err != nil {
		return err
	}
	defer svc.Close()

	if resetWP {
		for _, name := range []string{"work_packages_skeleton", "work_packages_content"} {
			if err := svc.Checkpoints.Reset(cmd.Context(), name, true); err != nil {
				return fmt.Errorf("resetting %s checkpoint: %w", name, err)
			}
		}
		fmt.Println("Work package checkpoints reset.")
	}

	registry := prometheus.NewRegistry()
	metrics := orchestrator.NewMetrics(registry)
	if metricsAddr != "" {
		go serveMetrics(metricsAddr, registry)
	}

	all := orchestrator.Components(svc.Env)
	selected, err := orchestrator.Filter(all, components)
	if err != nil {
		return err
	}
	ordered, err := orchestrator.Order(selected, cfg.Migration.ComponentOrder)
	if err != nil {
		return err
	}

	orch := &orchestrator.Orchestrator{
		Env:             svc.Env,
		ContinueOnError: continueOnError,
		Metrics:         metrics,
		Sink:            progressSink(),
	}
	summary, runErr := orch.Run(cmd.Context(), ordered)
	printSummary(summary)
	return runErr
}

// confirmRun asks the operator before the first write. Migrations mutate the
// target database directly, so a current backup is part of the checklist.
func confirmRun(targetURL string, noBackup bool) bool {
	fmt.Printf("This will write to the OpenProject instance at %s.\n", targetURL)
	if !noBackup {
		fmt.Println("Make sure a current database backup exists before continuing.")
	}
	fmt.Print("Continue? [y/N]: ")
	reader := bufio.NewReader(os.Stdin)
	answer, _ := reader.ReadString('\n')
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

func progressSink() migration.Sink {
	return func(ev migration.Event) {
		switch ev.Type {
		case migration.EventComponentStarted:
			fmt.Printf("==> %s\n", ev.Component)
		case migration.EventBatchCompleted:
			fmt.Printf("    batch %d done\n", ev.Batch)
		case migration.EventComponentFinished:
			r := ev.Report
			fmt.Printf("    %s: %d created, %d updated, %d failed, %d batches skipped\n",
				ev.Component, r.Created, r.Updated, r.Failed, r.Skipped)
		case migration.EventError:
			fmt.Printf("    %s failed: %v\n", ev.Component, ev.Err)
		}
	}
}

func printSummary(summary *orchestrator.Summary) {
	if summary == nil {
		return
	}
	fmt.Println()
	fmt.Printf("Migration finished in %s.\n", summary.FinishedAt.Sub(summary.StartedAt).Round(time.Second))
	for _, c := range summary.Components {
		status := "ok"
		if c.Error != "" {
			status = "FAILED: " + c.Error
		}
		fmt.Printf("  %-24s %s\n", c.Component, status)
	}
	if summary.Interrupted {
		fmt.Println("Run was interrupted; rerun to resume from the checkpoints.")
	}
	if summary.ResultPath != "" {
		fmt.Printf("Summary written to %s\n", summary.ResultPath)
	}
}

func serveMetrics(addr string, registry *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	_ = http.ListenAndServe(addr, mux)
}

func init() {
	migrateCmd.Flags().StringSlice("components", nil, "Comma-separated component subset to run")
	migrateCmd.Flags().StringSlice("jira-project-filter", nil, "Migrate only these Jira project keys")
	migrateCmd.Flags().Bool("reset-wp-checkpoints", false, "Reset the work package checkpoints before running")
	migrateCmd.Flags().Bool("dry-run", false, "Extract and map everything, load nothing")
	migrateCmd.Flags().Bool("force", false, "Re-extract over existing caches and replay checkpointed batches")
	migrateCmd.Flags().Bool("no-confirm", false, "Skip the interactive confirmation")
	migrateCmd.Flags().Bool("no-backup", false, "Skip the backup reminder")
	migrateCmd.Flags().Bool("continue-on-error", false, "Keep running remaining components after a failure")
	migrateCmd.Flags().String("metrics-addr", "", "Serve prometheus metrics on this address during the run")
	rootCmd.AddCommand(migrateCmd)
}
