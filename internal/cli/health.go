package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/j2o/migrate/pkg/migration"
	"github.com/j2o/migrate/pkg/railscript"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check connectivity to Jira and OpenProject",
	Long: `Check every dependency the migration needs: Jira authentication,
the OpenProject REST API, and the SSH/container/Rails-console path used for
bulk loading. Exits nonzero if any probe fails.`,
	RunE: runHealth,
}

func runHealth(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log, flush, err := buildLogger(cfg)
	if err != nil {
		return err
	}
	defer flush()

	svc, err := buildServices(cfg, log, false, false)
	if err != nil {
		return err
	}
	defer svc.Close()

	ctx := cmd.Context()
	failed := 0
	probe := func(name string, err error) {
		if err != nil {
			failed++
			fmt.Printf("  %-24s FAILED: %v\n", name, err)
			return
		}
		fmt.Printf("  %-24s ok\n", name)
	}

	fmt.Println("Checking dependencies:")
	probe("jira api", svc.Env.Jira.Authenticate(ctx))
	probe("openproject api", svc.Env.OpenProject.Health(ctx))
	probe("rails console", consolePing(ctx, svc.Env))

	if failed > 0 {
		return fmt.Errorf("%d of 3 probes failed", failed)
	}
	fmt.Println("All probes passed.")
	return nil
}

// consolePing verifies the whole bulk-load path, not just the console
// prompt: a minimal script must round-trip through the evaluator and come
// back as a parsed result.
func consolePing(ctx context.Context, env *migration.Env) error {
	if err := env.Evaluator.HealthCheck(ctx); err != nil {
		return err
	}
	script, err := env.Composer.Compose("ping", railscript.Params{Component: "health"})
	if err != nil {
		return err
	}
	_, err = env.Evaluator.Execute(ctx, script.Render, nil, 30*time.Second)
	return err
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
