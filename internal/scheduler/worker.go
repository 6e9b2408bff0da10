package scheduler

import (
	"context"
	"fmt"

	nurturing "closing_backend/internal/nurturing/service"
	"closing_backend/platform/config"
	"closing_backend/platform/logger"

	"github.com/hibiken/asynq"
)

type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	nurturing *nurturing.Service
	log       *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, svc *nurturing.Service, log *logger.Logger) (*Worker, error) {
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

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:    server,
		mux:       mux,
		nurturing: svc,
		log:       log,
	}

	mux.HandleFunc(TaskNurturingProcessDue, w.handleNurturingProcessDue)

	return w, nil
}

func (w *Worker) handleNurturingProcessDue(ctx context.Context, task *asynq.Task) error {
	if w.nurturing == nil {
		return nil
	}

	payload, err := ParseNurturingProcessDuePayload(task)
	if err != nil {
		return err
	}

	result, err := w.nurturing.ProcessDueTasks(ctx, payload.BatchSize)
	if err != nil {
		return err
	}

	if result.Claimed > 0 {
		w.log.Info("nurturing dispatch pass",
			"claimed", result.Claimed,
			"sent", result.Sent,
			"failed", result.Failed,
			"skipped", result.Skipped,
		)
	}

	return nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}
