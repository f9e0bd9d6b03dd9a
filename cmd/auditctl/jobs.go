package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/snapgallery/backoffice/jobs"
)

// jobsCLI wraps manual management helpers for Asynq jobs.
type jobsCLI struct {
	client    *asynq.Client
	inspector *asynq.Inspector
}

func newJobsCLI(redisAddr string) *jobsCLI {
	opts := asynq.RedisClientOpt{Addr: redisAddr}
	return &jobsCLI{client: asynq.NewClient(opts), inspector: asynq.NewInspector(opts)}
}

func (c *jobsCLI) Close() error {
	var err error
	if c.inspector != nil {
		err = c.inspector.Close()
	}
	if c.client != nil {
		if closeErr := c.client.Close(); closeErr != nil {
			err = closeErr
		}
	}
	return err
}

// trigger enqueues a supported job by its CLI name.
func (c *jobsCLI) trigger(ctx context.Context, name string, payload jobs.StatsWarmupPayload) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	var task *asynq.Task
	var err error
	switch name {
	case "stats-warmup", jobs.TaskStatsWarmup:
		task, err = jobs.NewStatsWarmupTask(payload)
	default:
		return nil, fmt.Errorf("jobs cli: unsupported job %s", name)
	}
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, asynq.Queue(jobs.QueueDefault), asynq.MaxRetry(3))
}

type queueStats struct {
	Queue     string
	Pending   int
	Active    int
	Scheduled int
	Retry     int
}

func (c *jobsCLI) inspectQueue() (queueStats, error) {
	if c == nil || c.inspector == nil {
		return queueStats{}, errors.New("jobs cli: inspector not configured")
	}
	info, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
	if err != nil {
		return queueStats{}, err
	}
	stats := queueStats{Queue: jobs.QueueDefault}
	if info != nil {
		stats.Pending = info.Pending
		stats.Active = info.Active
		stats.Scheduled = info.Scheduled
		stats.Retry = info.Retry
	}
	return stats, nil
}

func newJobsCmd() *cobra.Command {
	var redisAddr string

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Trigger and inspect background jobs",
	}
	cmd.PersistentFlags().StringVar(&redisAddr, "redis", envOr("REDIS_ADDR", "127.0.0.1:6379"), "Redis address")

	var (
		windows    []int
		maxEntries int
		refresh    bool
	)
	trigger := &cobra.Command{
		Use:   "trigger <job>",
		Short: "Enqueue a job (stats-warmup)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cli := newJobsCLI(redisAddr)
			defer cli.Close()
			info, err := cli.trigger(cmd.Context(), args[0], jobs.StatsWarmupPayload{
				Windows:    windows,
				MaxEntries: maxEntries,
				Refresh:    refresh,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
			return nil
		},
	}
	trigger.Flags().IntSliceVar(&windows, "windows", []int{1, 7, 30}, "Day windows to warm")
	trigger.Flags().IntVar(&maxEntries, "max-entries", 0, "Summary size (0 uses the service default)")
	trigger.Flags().BoolVar(&refresh, "refresh", true, "Drop cached summaries first")

	status := &cobra.Command{
		Use:   "status",
		Short: "Show default queue depth",
		RunE: func(cmd *cobra.Command, args []string) error {
			cli := newJobsCLI(redisAddr)
			defer cli.Close()
			stats, err := cli.inspectQueue()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queue=%s pending=%d active=%d scheduled=%d retry=%d\n",
				stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
			return nil
		},
	}

	cmd.AddCommand(trigger, status)
	return cmd
}
