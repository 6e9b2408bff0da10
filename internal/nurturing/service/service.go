// Package service implements the nurturing engine: sequence enrollment,
// due-task dispatch, suppression, and campaign reporting.
package service

import (
	"context"
	"fmt"
	"time"

	"closing_backend/internal/events"
	leadsdomain "closing_backend/internal/leads/domain"
	"closing_backend/internal/nurturing/channel"
	"closing_backend/internal/nurturing/repository"
	"closing_backend/platform/apperr"
	"closing_backend/platform/config"
	"closing_backend/platform/logger"

	"github.com/google/uuid"
)

// Cancellation reasons written to enrollments and published on the bus.
const (
	ReasonLeadConverted = "lead_converted"
	ReasonLeadLost      = "lead_lost"
	ReasonOptedOut      = "opted_out"
)

// Contact is the slice of a lead the dispatcher needs.
type Contact struct {
	LeadID   uuid.UUID
	Phone    string
	Email    string
	OptedOut bool
}

// LeadDirectory is the port into the leads context: contact lookup for
// dispatch and the suppression flag for opt-out handling.
type LeadDirectory interface {
	GetContact(ctx context.Context, leadID uuid.UUID) (Contact, error)
	SetOptedOut(ctx context.Context, leadID uuid.UUID, optedOut bool) error
}

// DispatchTrigger pushes an immediate dispatch pass onto the work queue.
// The scheduler client satisfies this; without one, triggers run inline.
type DispatchTrigger interface {
	EnqueueProcessDue(ctx context.Context, batchSize int) error
}

type Service struct {
	repo     repository.NurturingRepository
	leads    LeadDirectory
	channels *channel.Registry
	guard    *channel.IdempotencyGuard
	bus      events.Bus
	log      *logger.Logger

	trigger DispatchTrigger

	now             func() time.Time
	dispatchTimeout time.Duration
}

func NewService(repo repository.NurturingRepository, leads LeadDirectory, channels *channel.Registry,
	guard *channel.IdempotencyGuard, bus events.Bus, cfg config.NurturingConfig, log *logger.Logger) *Service {
	timeout := 10 * time.Second
	if cfg != nil && cfg.GetDispatchTimeout() > 0 {
		timeout = cfg.GetDispatchTimeout()
	}

	return &Service{
		repo:            repo,
		leads:           leads,
		channels:        channels,
		guard:           guard,
		bus:             bus,
		log:             log,
		now:             time.Now,
		dispatchTimeout: timeout,
	}
}

// SetClock overrides the time source. Tests use this to make scheduling
// deterministic.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// SetDispatchTrigger wires the queue client used by TriggerDispatch.
func (s *Service) SetDispatchTrigger(trigger DispatchTrigger) {
	s.trigger = trigger
}

// TriggerDispatch requests a dispatch pass without waiting for the next
// scheduler tick. With a queue client wired it enqueues; otherwise the pass
// runs inline and its result is returned.
func (s *Service) TriggerDispatch(ctx context.Context, batchSize int) (*ProcessResult, error) {
	if batchSize < 1 {
		batchSize = 50
	}

	if s.trigger != nil {
		if err := s.trigger.EnqueueProcessDue(ctx, batchSize); err != nil {
			return nil, err
		}
		return nil, nil
	}

	result, err := s.ProcessDueTasks(ctx, batchSize)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Enroll puts a lead into a named sequence, creating every scheduled task
// up front. Inactive sequences and suppressed leads are rejected.
func (s *Service) Enroll(ctx context.Context, leadID uuid.UUID, sequenceName string) (repository.Enrollment, []repository.Task, error) {
	seq, err := s.repo.GetSequenceByName(ctx, sequenceName)
	if err != nil {
		return repository.Enrollment{}, nil, err
	}
	if !seq.Active {
		return repository.Enrollment{}, nil, apperr.Conflict(fmt.Sprintf("sequence %s is not active", sequenceName))
	}

	contact, err := s.leads.GetContact(ctx, leadID)
	if err != nil {
		return repository.Enrollment{}, nil, err
	}
	if contact.OptedOut {
		return repository.Enrollment{}, nil, apperr.Conflict("lead has opted out of nurturing")
	}

	return s.repo.Enroll(ctx, leadID, seq.ID, s.now())
}

// ProcessResult summarizes one dispatch pass.
type ProcessResult struct {
	Claimed int
	Sent    int
	Failed  int
	Skipped int
}

// ProcessDueTasks claims up to batchSize due tasks and dispatches them.
// Claiming is atomic across concurrent schedulers; the redis guard catches
// queue-level redeliveries on top of that. Each outcome is written to the
// dispatch audit.
func (s *Service) ProcessDueTasks(ctx context.Context, batchSize int) (ProcessResult, error) {
	var result ProcessResult

	tasks, err := s.repo.ClaimDue(ctx, s.now(), batchSize)
	if err != nil {
		return result, err
	}
	result.Claimed = len(tasks)

	for _, task := range tasks {
		switch s.dispatchTask(ctx, task) {
		case dispatchSent:
			result.Sent++
		case dispatchFailed:
			result.Failed++
		case dispatchSkipped:
			result.Skipped++
		}
	}

	return result, nil
}

type dispatchOutcome int

const (
	dispatchSent dispatchOutcome = iota
	dispatchFailed
	dispatchSkipped
)

func (s *Service) dispatchTask(ctx context.Context, task repository.Task) dispatchOutcome {
	contact, err := s.leads.GetContact(ctx, task.LeadID)
	if err != nil {
		return s.settleFailure(ctx, task, fmt.Errorf("load lead contact: %w", err))
	}

	// Suppression is re-checked at dispatch time: the lead may have opted
	// out after the task was scheduled.
	if contact.OptedOut {
		_ = s.repo.MarkTaskSkipped(ctx, task.ID, ReasonOptedOut)
		s.audit(ctx, task, repository.TaskSkipped, ReasonOptedOut)
		_ = s.repo.CompleteEnrollmentIfDone(ctx, task.EnrollmentID)
		return dispatchSkipped
	}

	claimed, err := s.guard.Claim(ctx, task.ID.String())
	if err != nil {
		// Redis being down must not stop the drip entirely; the database
		// claim already guarantees single delivery per process pass.
		if s.log != nil {
			s.log.Warn("idempotency guard unavailable", "taskId", task.ID.String(), "error", err.Error())
		}
	} else if !claimed {
		_ = s.repo.MarkTaskSent(ctx, task.ID)
		s.audit(ctx, task, repository.TaskSent, "duplicate delivery skipped")
		_ = s.repo.CompleteEnrollmentIfDone(ctx, task.EnrollmentID)
		return dispatchSkipped
	}

	adapter, err := s.channels.Get(task.Channel)
	if err != nil {
		_ = s.repo.MarkTaskFailed(ctx, task.ID, err.Error())
		s.audit(ctx, task, repository.TaskFailed, err.Error())
		_ = s.repo.CompleteEnrollmentIfDone(ctx, task.EnrollmentID)
		return dispatchFailed
	}

	msg := channel.Message{
		Subject: task.Subject,
		Body:    task.Body,
	}
	switch task.Channel {
	case repository.ChannelEmail:
		msg.To = contact.Email
	case repository.ChannelSMS:
		msg.To = contact.Phone
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.dispatchTimeout)
	err = adapter.Send(sendCtx, msg)
	cancel()

	if s.log != nil {
		status := repository.TaskSent
		if err != nil {
			status = repository.TaskFailed
		}
		s.log.DispatchResult(task.ID.String(), task.Channel, status, err)
	}

	if err != nil {
		_ = s.guard.Release(ctx, task.ID.String())
		return s.settleFailure(ctx, task, err)
	}

	_ = s.repo.MarkTaskSent(ctx, task.ID)
	s.audit(ctx, task, repository.TaskSent, "")
	_ = s.repo.CompleteEnrollmentIfDone(ctx, task.EnrollmentID)
	return dispatchSent
}

// settleFailure fails the task permanently. A failed step does not block
// the rest of the sequence and is not retried; the dispatch audit keeps the
// cause for manual follow-up.
func (s *Service) settleFailure(ctx context.Context, task repository.Task, cause error) dispatchOutcome {
	_ = s.repo.MarkTaskFailed(ctx, task.ID, cause.Error())
	s.audit(ctx, task, repository.TaskFailed, cause.Error())
	_ = s.repo.CompleteEnrollmentIfDone(ctx, task.EnrollmentID)
	return dispatchFailed
}

func (s *Service) audit(ctx context.Context, task repository.Task, status, detail string) {
	err := s.repo.InsertDispatchAudit(ctx, repository.DispatchAudit{
		TaskID:  task.ID,
		LeadID:  task.LeadID,
		Channel: task.Channel,
		Status:  status,
		Detail:  detail,
	})
	if err != nil && s.log != nil {
		s.log.Warn("dispatch audit write failed", "taskId", task.ID.String(), "error", err.Error())
	}
}

// CancelLeadEnrollments cancels every active enrollment of the lead.
func (s *Service) CancelLeadEnrollments(ctx context.Context, leadID uuid.UUID, reason string) (int, error) {
	cancelled, err := s.repo.CancelActiveEnrollments(ctx, leadID, reason)
	if err != nil {
		return 0, err
	}

	if cancelled > 0 && s.bus != nil {
		s.bus.Publish(ctx, events.EnrollmentsCancelled{
			BaseEvent: events.NewBaseEvent(),
			LeadID:    leadID,
			Cancelled: cancelled,
			Reason:    reason,
		})
	}
	return cancelled, nil
}

// OptOutLead suppresses the lead from all nurturing and cancels what is
// already scheduled.
func (s *Service) OptOutLead(ctx context.Context, leadID uuid.UUID) error {
	if err := s.leads.SetOptedOut(ctx, leadID, true); err != nil {
		return err
	}
	if _, err := s.CancelLeadEnrollments(ctx, leadID, ReasonOptedOut); err != nil {
		return err
	}

	if s.bus != nil {
		s.bus.Publish(ctx, events.LeadOptedOut{
			BaseEvent: events.NewBaseEvent(),
			LeadID:    leadID,
		})
	}
	return nil
}

// OptInLead lifts the suppression flag. Past cancellations stay cancelled;
// the lead can be enrolled again.
func (s *Service) OptInLead(ctx context.Context, leadID uuid.UUID) error {
	return s.leads.SetOptedOut(ctx, leadID, false)
}

// ListEnrollments returns all enrollments of a lead.
func (s *Service) ListEnrollments(ctx context.Context, leadID uuid.UUID) ([]repository.Enrollment, error) {
	return s.repo.ListEnrollments(ctx, leadID)
}

// ListSequences returns every configured sequence.
func (s *Service) ListSequences(ctx context.Context) ([]repository.Sequence, error) {
	return s.repo.ListSequences(ctx)
}

// Report returns per-sequence enrollment and conversion aggregates.
func (s *Service) Report(ctx context.Context) ([]repository.SequenceReport, error) {
	return s.repo.SequenceReports(ctx)
}

// RegisterEventHandlers subscribes the engine to lead lifecycle events.
// Reaching a terminal sales stage ends all drip activity for the lead: a
// converted lead must not receive nurturing messages, nor must a lost one.
func (s *Service) RegisterEventHandlers(bus events.Bus) {
	bus.Subscribe(events.LeadStageChanged{}.EventName(), events.HandlerFunc(func(ctx context.Context, event events.Event) error {
		changed, ok := event.(events.LeadStageChanged)
		if !ok {
			return nil
		}

		stage := leadsdomain.Stage(changed.NewStage)
		if !leadsdomain.IsTerminal(stage) {
			return nil
		}

		reason := ReasonLeadLost
		if stage == leadsdomain.StageEnrolled {
			reason = ReasonLeadConverted
		}

		_, err := s.CancelLeadEnrollments(ctx, changed.LeadID, reason)
		return err
	}))
}
