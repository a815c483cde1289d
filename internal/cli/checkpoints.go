package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/j2o/migrate/pkg/checkpoint"
)

var checkpointsCmd = &cobra.Command{
	Use:   "checkpoints",
	Short: "Inspect and manage migration checkpoints",
}

var checkpointsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored checkpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openCheckpoints(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		checkpoints, err := store.List(cmd.Context())
		if err != nil {
			return err
		}
		if len(checkpoints) == 0 {
			fmt.Println("No checkpoints stored.")
			return nil
		}
		for _, cp := range checkpoints {
			fmt.Printf("  %-24s batch %d  (%s)", cp.Component, cp.LastBatch, cp.UpdatedAt.Format("2006-01-02 15:04:05"))
			if cp.ResumeToken != "" {
				fmt.Printf("  %s", cp.ResumeToken)
			}
			fmt.Println()
		}
		return nil
	},
}

var checkpointsResetCmd = &cobra.Command{
	Use:   "reset [component...]",
	Short: "Reset checkpoints so the next run replays from the start",
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		if !force {
			return fmt.Errorf("resetting replays every batch on the next run; pass --force to confirm")
		}
		if len(args) == 0 {
			return fmt.Errorf("name the components to reset")
		}
		store, err := openCheckpoints(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		for _, name := range args {
			if err := store.Reset(cmd.Context(), name, true); err != nil {
				return err
			}
			fmt.Printf("  %s reset\n", name)
		}
		return nil
	},
}

func openCheckpoints(cmd *cobra.Command) (*checkpoint.SQLiteStore, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return checkpoint.NewSQLiteStore(filepath.Join(cfg.DataDir, checkpointDBFile))
}

func init() {
	checkpointsResetCmd.Flags().Bool("force", false, "Confirm the reset")
	checkpointsCmd.AddCommand(checkpointsListCmd)
	checkpointsCmd.AddCommand(checkpointsResetCmd)
	rootCmd.AddCommand(checkpointsCmd)
}
