package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/agentcore/internal/trajectory"
)

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect recorded runs",
	}
	cmd.AddCommand(historyListCmd())
	cmd.AddCommand(historyShowCmd())
	return cmd
}

func historyListCmd() *cobra.Command {
	var (
		limit      int
		jsonOutput bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openTrajectoryStore()
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.ListRuns(context.Background(), limit)
			if err != nil {
				return err
			}

			if jsonOutput {
				data, _ := json.MarshalIndent(runs, "", "  ")
				fmt.Println(string(data))
				return nil
			}
			if len(runs) == 0 {
				fmt.Println("No recorded runs.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RUN ID\tSTATUS\tSTEPS\tTOKENS\tSTARTED\tINSTRUCTION")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\n",
					r.RunID, r.Status, r.Steps, r.InputTokens+r.OutputTokens,
					r.StartedAt.Local().Format(time.DateTime), truncateCell(r.Instruction, 48))
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to list")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func historyShowCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run with its steps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openTrajectoryStore()
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := context.Background()
			run, err := store.GetRun(ctx, args[0])
			if err != nil {
				return err
			}
			steps, err := store.GetSteps(ctx, args[0])
			if err != nil {
				return err
			}

			if jsonOutput {
				data, _ := json.MarshalIndent(map[string]interface{}{
					"run":   run,
					"steps": steps,
				}, "", "  ")
				fmt.Println(string(data))
				return nil
			}

			fmt.Printf("run %s  [%s]\n", run.RunID, run.Status)
			fmt.Printf("task: %s (%s)\n", run.TaskName, run.Instruction)
			fmt.Printf("steps: %d  tokens: %d in / %d out\n\n",
				run.Steps, run.InputTokens, run.OutputTokens)
			for _, s := range steps {
				fmt.Printf("step %d  %-13s %4dms", s.Number, s.State, s.DurationMS)
				if s.ToolCalls != "" {
					fmt.Printf("  tools: %s", truncateCell(s.ToolCalls, 60))
				}
				if s.Error != "" {
					fmt.Printf("  error: %s", truncateCell(s.Error, 60))
				}
				fmt.Println()
			}
			if run.Result != "" {
				fmt.Printf("\nresult: %s\n", run.Result)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func openTrajectoryStore() (*trajectory.SQLiteStore, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if !cfg.Trajectory.Enabled {
		return nil, fmt.Errorf("trajectory recording is disabled in the config")
	}
	return trajectory.NewSQLiteStore(cfg.Trajectory.Path)
}

func truncateCell(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
