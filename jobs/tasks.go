package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskStatsWarmup precomputes activity summaries into the stats cache.
	TaskStatsWarmup = "audit:stats_warmup"
)

// StatsWarmupPayload describes one warm-up run.
type StatsWarmupPayload struct {
	RunID string `json:"run_id"`
	// Windows lists the trailing day windows to precompute.
	Windows []int `json:"windows"`
	// MaxEntries bounds each summary; zero uses the service default.
	MaxEntries int `json:"max_entries"`
	// Refresh drops cached summaries before recomputing them.
	Refresh bool `json:"refresh"`
}

// NewStatsWarmupTask constructs an Asynq task. Payloads without a RunID get
// a fresh one per execution, which suits cron registrations.
func NewStatsWarmupTask(payload StatsWarmupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStatsWarmup, data), nil
}
