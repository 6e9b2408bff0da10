package scheduler

import (
	"context"
	"fmt"
	"time"

	"closing_backend/platform/config"
	"closing_backend/platform/logger"

	"github.com/hibiken/asynq"
)

// ProcessDueDispatcher periodically enqueues the due-task processing job.
// The job itself claims work with skipped row locks, so running more than
// one dispatcher never double-sends.
type ProcessDueDispatcher struct {
	client    *asynq.Client
	queue     string
	interval  time.Duration
	batchSize int
	log       *logger.Logger
}

func NewProcessDueDispatcher(cfg config.SchedulerConfig, log *logger.Logger) (*ProcessDueDispatcher, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	interval := cfg.GetProcessDueInterval()
	if interval <= 0 {
		interval = 30 * time.Second
	}

	batchSize := cfg.GetProcessDueBatchSize()
	if batchSize < 1 {
		batchSize = 50
	}

	return &ProcessDueDispatcher{
		client:    asynq.NewClient(opt),
		queue:     queue,
		interval:  interval,
		batchSize: batchSize,
		log:       log,
	}, nil
}

func (d *ProcessDueDispatcher) Close() error {
	if d == nil || d.client == nil {
		return nil
	}
	return d.client.Close()
}

func (d *ProcessDueDispatcher) Run(ctx context.Context) {
	if d == nil || d.client == nil {
		return
	}

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		task, err := NewNurturingProcessDueTask(NurturingProcessDuePayload{BatchSize: d.batchSize})
		if err != nil {
			d.log.Warn("build process-due task failed", "error", err)
			continue
		}

		_, err = d.client.EnqueueContext(ctx, task, asynq.Queue(d.queue))
		if err != nil {
			d.log.Warn("enqueue process-due task failed", "error", err)
		}
	}
}
