// Command jobctl triggers and inspects finance background jobs by hand.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/medconsult-liberia/medconsult/internal/app"
	"github.com/medconsult-liberia/medconsult/jobs"
)

// jobsBackend is what the commands need from the queue.
type jobsBackend interface {
	Trigger(ctx context.Context, name, period string) (*asynq.TaskInfo, error)
	Inspect() ([]queueStats, error)
	ListRetry(queue string, size int) ([]*asynq.TaskInfo, error)
	Close() error
}

type backendFactory func() (jobsBackend, error)

func main() {
	if app.InTestMode() {
		return
	}
	open := func() (jobsBackend, error) {
		cfg, err := app.LoadBaseConfig()
		if err != nil {
			return nil, err
		}
		return newJobsCLI(cfg.RedisAddr), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := newRootCmd(open).ExecuteContext(ctx); err != nil {
		slog.Default().Error("jobctl", slog.Any("error", err))
		os.Exit(1)
	}
}

func newRootCmd(open backendFactory) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "jobctl",
		Short:         "Trigger and inspect finance background jobs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(triggerCmd(open))
	rootCmd.AddCommand(statsCmd(open))
	rootCmd.AddCommand(retriesCmd(open))
	return rootCmd
}

func withBackend(open backendFactory, fn func(jobsBackend) error) error {
	backend, err := open()
	if err != nil {
		return err
	}
	defer func() {
		if err := backend.Close(); err != nil {
			slog.Default().Warn("jobctl close", slog.Any("error", err))
		}
	}()
	return fn(backend)
}

func triggerCmd(open backendFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trigger <job>",
		Short: "Enqueue a job by task name",
		Long: fmt.Sprintf("Enqueue one of %s, %s or %s.",
			jobs.TaskReconciliationScan, jobs.TaskIdempotencyCleanup, jobs.TaskReportArchive),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			period, _ := cmd.Flags().GetString("period")
			return withBackend(open, func(b jobsBackend) error {
				info, err := b.Trigger(cmd.Context(), args[0], period)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintf(w, "enqueued\t%s\t%s\n", info.Type, info.ID)
				return w.Flush()
			})
		},
	}
	cmd.Flags().String("period", "", "Report archive period (YYYY-MM)")
	return cmd
}

func statsCmd(open backendFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show queue sizes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(open, func(b jobsBackend) error {
				stats, err := b.Inspect()
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "QUEUE\tPENDING\tACTIVE\tSCHEDULED\tRETRY\tARCHIVED")
				for _, s := range stats {
					fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\n", s.Queue, s.Pending, s.Active, s.Scheduled, s.Retry, s.Archived)
				}
				return w.Flush()
			})
		},
	}
}

func retriesCmd(open backendFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retries",
		Short: "List tasks waiting for a retry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			queue, _ := cmd.Flags().GetString("queue")
			size, _ := cmd.Flags().GetInt("size")
			return withBackend(open, func(b jobsBackend) error {
				tasks, err := b.ListRetry(queue, size)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tTYPE\tRETRIED\tLAST ERROR")
				for _, t := range tasks {
					fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", t.ID, t.Type, t.Retried, t.LastErr)
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().String("queue", jobs.QueueNotifications, "Queue to list")
	cmd.Flags().Int("size", 20, "Maximum tasks to list")
	return cmd
}
