package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/muhammadolammi/coverletter/internal/config"
	"github.com/muhammadolammi/coverletter/internal/runstore"
)

func newStatusCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "status <run-id>",
		Short: "Show the recorded status of a run",
		Long: `Reads a run back from the status database (DB_URL) and prints the last
state of each of its tasks. Generated text is never stored.`,
		Example: `  $ coverletter status 0b6f3c1e-8a4d-4f6e-9a57-2f1d7c9e4b10`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := printer{w: cmd.ErrOrStderr()}

			runID, err := uuid.Parse(args[0])
			if err != nil {
				out.Error("invalid run id %q", args[0])
				return fmt.Errorf("invalid run id: %w", err)
			}

			cfg, err := config.Load(configPath, cmd.Flags())
			if err != nil {
				out.Error("failed to load config: %v", err)
				return err
			}
			if cfg.DBURL == "" {
				out.Error("DB_URL is not set, no run status is recorded")
				return errors.New("no status database configured")
			}

			store, err := runstore.Open(cmd.Context(), cfg.DBURL, cfg.Backend)
			if err != nil {
				out.Error("%v", err)
				return err
			}
			defer store.Close()

			status, err := store.Run(cmd.Context(), runID)
			if err != nil {
				out.Error("%v", err)
				return err
			}
			printRunStatus(cmd.OutOrStdout(), status)
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "config file (yaml, json or toml)")
	return cmd
}

func printRunStatus(w io.Writer, st runstore.RunStatus) {
	boldColor.Fprintf(w, "Run %s\n", st.Run.ID)
	fmt.Fprintf(w, "  backend  %s\n", st.Run.Backend)
	fmt.Fprintf(w, "  model    %s\n", st.Run.Model)
	if !st.Run.CreatedAt.IsZero() {
		fmt.Fprintf(w, "  started  %s\n", st.Run.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	if len(st.Tasks) == 0 {
		fmt.Fprintln(w, "\n  no task status recorded")
		return
	}
	fmt.Fprintln(w)
	for _, task := range st.Tasks {
		line := fmt.Sprintf("  %-14s %s", task.Name, task.Status)
		if task.ErrorCode.Valid {
			line += "  " + task.ErrorCode.String
		}
		switch task.Status {
		case "completed":
			successColor.Fprintln(w, line)
		case "failed", "rejected_too_long":
			errorColor.Fprintln(w, line)
		default:
			fmt.Fprintln(w, line)
		}
	}
}
