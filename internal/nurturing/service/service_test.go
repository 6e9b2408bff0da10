package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"closing_backend/internal/events"
	"closing_backend/internal/leads/domain"
	"closing_backend/internal/nurturing/channel"
	"closing_backend/internal/nurturing/repository"
	"closing_backend/platform/apperr"

	"github.com/google/uuid"
)

// fakeRepo is an in-memory NurturingRepository mirroring the transactional
// semantics of the pgx implementation: claiming moves tasks to processing
// and bumps attempts, and a second active enrollment conflicts.
type fakeRepo struct {
	sequences   map[string]repository.Sequence
	enrollments map[uuid.UUID]*repository.Enrollment
	tasks       map[uuid.UUID]*repository.Task
	audits      []repository.DispatchAudit
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		sequences:   make(map[string]repository.Sequence),
		enrollments: make(map[uuid.UUID]*repository.Enrollment),
		tasks:       make(map[uuid.UUID]*repository.Task),
	}
}

func (r *fakeRepo) UpsertSequence(_ context.Context, seq repository.Sequence) (uuid.UUID, error) {
	if existing, ok := r.sequences[seq.Name]; ok {
		seq.ID = existing.ID
	} else if seq.ID == uuid.Nil {
		seq.ID = uuid.New()
	}
	for i := range seq.Steps {
		if seq.Steps[i].ID == uuid.Nil {
			seq.Steps[i].ID = uuid.New()
		}
		seq.Steps[i].SequenceID = seq.ID
	}
	r.sequences[seq.Name] = seq
	return seq.ID, nil
}

func (r *fakeRepo) GetSequenceByName(_ context.Context, name string) (repository.Sequence, error) {
	seq, ok := r.sequences[name]
	if !ok {
		return repository.Sequence{}, repository.ErrSequenceNotFound
	}
	return seq, nil
}

func (r *fakeRepo) ListSequences(_ context.Context) ([]repository.Sequence, error) {
	out := make([]repository.Sequence, 0, len(r.sequences))
	for _, seq := range r.sequences {
		out = append(out, seq)
	}
	return out, nil
}

func (r *fakeRepo) Enroll(_ context.Context, leadID, sequenceID uuid.UUID, now time.Time) (repository.Enrollment, []repository.Task, error) {
	for _, e := range r.enrollments {
		if e.LeadID == leadID && e.SequenceID == sequenceID && e.Status == repository.EnrollmentActive {
			return repository.Enrollment{}, nil, repository.ErrAlreadyEnrolled
		}
	}

	var seq repository.Sequence
	found := false
	for _, s := range r.sequences {
		if s.ID == sequenceID {
			seq = s
			found = true
		}
	}
	if !found {
		return repository.Enrollment{}, nil, repository.ErrSequenceNotFound
	}

	enrollment := &repository.Enrollment{
		ID:         uuid.New(),
		LeadID:     leadID,
		SequenceID: sequenceID,
		Status:     repository.EnrollmentActive,
		EnrolledAt: now,
	}
	r.enrollments[enrollment.ID] = enrollment

	tasks := make([]repository.Task, 0, len(seq.Steps))
	for _, step := range seq.Steps {
		task := &repository.Task{
			ID:           uuid.New(),
			EnrollmentID: enrollment.ID,
			LeadID:       leadID,
			StepID:       step.ID,
			Channel:      step.Channel,
			Subject:      step.Subject,
			Body:         step.Body,
			RunAt:        now.Add(time.Duration(step.OffsetHours) * time.Hour),
			Status:       repository.TaskPending,
		}
		r.tasks[task.ID] = task
		tasks = append(tasks, *task)
	}
	return *enrollment, tasks, nil
}

func (r *fakeRepo) ClaimDue(_ context.Context, now time.Time, limit int) ([]repository.Task, error) {
	var claimed []repository.Task
	for _, task := range r.tasks {
		if len(claimed) >= limit {
			break
		}
		if task.Status == repository.TaskPending && !task.RunAt.After(now) {
			task.Status = repository.TaskProcessing
			task.Attempts++
			claimed = append(claimed, *task)
		}
	}
	return claimed, nil
}

func (r *fakeRepo) setTaskStatus(id uuid.UUID, status string, lastError string) error {
	task, ok := r.tasks[id]
	if !ok {
		return errors.New("task not found")
	}
	task.Status = status
	if lastError == "" {
		task.LastError = nil
	} else {
		task.LastError = &lastError
	}
	return nil
}

func (r *fakeRepo) MarkTaskSent(_ context.Context, id uuid.UUID) error {
	if err := r.setTaskStatus(id, repository.TaskSent, ""); err != nil {
		return err
	}
	now := time.Now()
	r.tasks[id].ExecutedAt = &now
	return nil
}

func (r *fakeRepo) MarkTaskFailed(_ context.Context, id uuid.UUID, lastError string) error {
	if err := r.setTaskStatus(id, repository.TaskFailed, lastError); err != nil {
		return err
	}
	now := time.Now()
	r.tasks[id].ExecutedAt = &now
	return nil
}

func (r *fakeRepo) MarkTaskSkipped(_ context.Context, id uuid.UUID, reason string) error {
	return r.setTaskStatus(id, repository.TaskSkipped, reason)
}

func (r *fakeRepo) CompleteEnrollmentIfDone(_ context.Context, enrollmentID uuid.UUID) error {
	enrollment, ok := r.enrollments[enrollmentID]
	if !ok || enrollment.Status != repository.EnrollmentActive {
		return nil
	}
	for _, task := range r.tasks {
		if task.EnrollmentID == enrollmentID &&
			(task.Status == repository.TaskPending || task.Status == repository.TaskProcessing) {
			return nil
		}
	}
	enrollment.Status = repository.EnrollmentCompleted
	return nil
}

func (r *fakeRepo) CancelActiveEnrollments(_ context.Context, leadID uuid.UUID, reason string) (int, error) {
	cancelled := 0
	for _, enrollment := range r.enrollments {
		if enrollment.LeadID == leadID && enrollment.Status == repository.EnrollmentActive {
			enrollment.Status = repository.EnrollmentCancelled
			enrollment.CancelReason = &reason
			cancelled++
		}
	}
	for _, task := range r.tasks {
		if task.LeadID == leadID && task.Status == repository.TaskPending {
			task.Status = repository.TaskSkipped
			task.LastError = &reason
		}
	}
	return cancelled, nil
}

func (r *fakeRepo) ListEnrollments(_ context.Context, leadID uuid.UUID) ([]repository.Enrollment, error) {
	out := make([]repository.Enrollment, 0)
	for _, enrollment := range r.enrollments {
		if enrollment.LeadID == leadID {
			out = append(out, *enrollment)
		}
	}
	return out, nil
}

func (r *fakeRepo) InsertDispatchAudit(_ context.Context, audit repository.DispatchAudit) error {
	r.audits = append(r.audits, audit)
	return nil
}

func (r *fakeRepo) SequenceReports(_ context.Context) ([]repository.SequenceReport, error) {
	return nil, nil
}

func (r *fakeRepo) tasksByStatus(status string) []repository.Task {
	var out []repository.Task
	for _, task := range r.tasks {
		if task.Status == status {
			out = append(out, *task)
		}
	}
	return out
}

// fakeDirectory is an in-memory LeadDirectory.
type fakeDirectory struct {
	contacts map[uuid.UUID]*Contact
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{contacts: make(map[uuid.UUID]*Contact)}
}

func (d *fakeDirectory) addLead(phone, email string) uuid.UUID {
	id := uuid.New()
	d.contacts[id] = &Contact{LeadID: id, Phone: phone, Email: email}
	return id
}

func (d *fakeDirectory) GetContact(_ context.Context, leadID uuid.UUID) (Contact, error) {
	contact, ok := d.contacts[leadID]
	if !ok {
		return Contact{}, apperr.NotFound("lead not found")
	}
	return *contact, nil
}

func (d *fakeDirectory) SetOptedOut(_ context.Context, leadID uuid.UUID, optedOut bool) error {
	contact, ok := d.contacts[leadID]
	if !ok {
		return apperr.NotFound("lead not found")
	}
	contact.OptedOut = optedOut
	return nil
}

// fakeAdapter records sends and optionally fails.
type fakeAdapter struct {
	name string
	sent []channel.Message
	fail error
}

func (a *fakeAdapter) Name() string { return a.name }

func (a *fakeAdapter) Send(_ context.Context, msg channel.Message) error {
	if a.fail != nil {
		return a.fail
	}
	a.sent = append(a.sent, msg)
	return nil
}

// recordingBus captures published events.
type recordingBus struct {
	published []events.Event
	handlers  map[string][]events.Handler
}

func newRecordingBus() *recordingBus {
	return &recordingBus{handlers: make(map[string][]events.Handler)}
}

func (b *recordingBus) Publish(ctx context.Context, event events.Event) {
	b.published = append(b.published, event)
	for _, h := range b.handlers[event.EventName()] {
		_ = h.Handle(ctx, event)
	}
}

func (b *recordingBus) PublishSync(ctx context.Context, event events.Event) error {
	b.Publish(ctx, event)
	return nil
}

func (b *recordingBus) Subscribe(eventName string, handler events.Handler) {
	b.handlers[eventName] = append(b.handlers[eventName], handler)
}

type fixture struct {
	svc   *Service
	repo  *fakeRepo
	dir   *fakeDirectory
	email *fakeAdapter
	sms   *fakeAdapter
	bus   *recordingBus
	clock time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		repo:  newFakeRepo(),
		dir:   newFakeDirectory(),
		email: &fakeAdapter{name: repository.ChannelEmail},
		sms:   &fakeAdapter{name: repository.ChannelSMS},
		bus:   newRecordingBus(),
		clock: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}

	f.svc = NewService(f.repo, f.dir, channel.NewRegistry(f.email, f.sms), nil, f.bus, nil, nil)
	f.svc.SetClock(func() time.Time { return f.clock })
	return f
}

func (f *fixture) advance(d time.Duration) { f.clock = f.clock.Add(d) }

func (f *fixture) seedSequence(t *testing.T, name string, active bool) repository.Sequence {
	t.Helper()
	seq := repository.Sequence{
		Name:   name,
		Active: active,
		Steps: []repository.Step{
			{StepOrder: 1, OffsetHours: 0, Channel: repository.ChannelEmail, Subject: "Bienvenue", Body: "first touch"},
			{StepOrder: 2, OffsetHours: 24, Channel: repository.ChannelSMS, Body: "second touch"},
			{StepOrder: 3, OffsetHours: 48, Channel: repository.ChannelEmail, Subject: "Relance", Body: "third touch"},
		},
	}
	if _, err := f.repo.UpsertSequence(context.Background(), seq); err != nil {
		t.Fatalf("seed sequence: %v", err)
	}
	stored, err := f.repo.GetSequenceByName(context.Background(), name)
	if err != nil {
		t.Fatalf("load seeded sequence: %v", err)
	}
	return stored
}

func TestEnrollSchedulesTasksAtStepOffsets(t *testing.T) {
	f := newFixture(t)
	f.seedSequence(t, "relance-standard", true)
	leadID := f.dir.addLead("+33612345678", "lead@example.fr")

	enrollment, tasks, err := f.svc.Enroll(context.Background(), leadID, "relance-standard")
	if err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	if enrollment.Status != repository.EnrollmentActive {
		t.Fatalf("expected active enrollment, got %s", enrollment.Status)
	}
	if len(tasks) != 3 {
		t.Fatalf("expected 3 scheduled tasks, got %d", len(tasks))
	}

	wantOffsets := []time.Duration{0, 24 * time.Hour, 48 * time.Hour}
	for i, task := range tasks {
		want := f.clock.Add(wantOffsets[i])
		if !task.RunAt.Equal(want) {
			t.Errorf("task %d: run at %v, want %v", i, task.RunAt, want)
		}
		if task.Status != repository.TaskPending {
			t.Errorf("task %d: status %s, want pending", i, task.Status)
		}
	}
}

func TestEnrollDuplicateActiveConflicts(t *testing.T) {
	f := newFixture(t)
	f.seedSequence(t, "relance-standard", true)
	leadID := f.dir.addLead("+33612345678", "lead@example.fr")

	if _, _, err := f.svc.Enroll(context.Background(), leadID, "relance-standard"); err != nil {
		t.Fatalf("first enrollment: %v", err)
	}

	_, _, err := f.svc.Enroll(context.Background(), leadID, "relance-standard")
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict on duplicate enrollment, got %v", err)
	}
}

func TestEnrollRejectsInactiveSequence(t *testing.T) {
	f := newFixture(t)
	f.seedSequence(t, "archived", false)
	leadID := f.dir.addLead("+33612345678", "lead@example.fr")

	_, _, err := f.svc.Enroll(context.Background(), leadID, "archived")
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict for inactive sequence, got %v", err)
	}
}

func TestEnrollRejectsOptedOutLead(t *testing.T) {
	f := newFixture(t)
	f.seedSequence(t, "relance-standard", true)
	leadID := f.dir.addLead("+33612345678", "lead@example.fr")
	f.dir.contacts[leadID].OptedOut = true

	_, _, err := f.svc.Enroll(context.Background(), leadID, "relance-standard")
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict for suppressed lead, got %v", err)
	}
}

func TestProcessDueTasksDispatchesOnlyDue(t *testing.T) {
	f := newFixture(t)
	f.seedSequence(t, "relance-standard", true)
	leadID := f.dir.addLead("+33612345678", "lead@example.fr")

	if _, _, err := f.svc.Enroll(context.Background(), leadID, "relance-standard"); err != nil {
		t.Fatalf("Enroll: %v", err)
	}

	// At enrollment time only the immediate step is due.
	result, err := f.svc.ProcessDueTasks(context.Background(), 50)
	if err != nil {
		t.Fatalf("ProcessDueTasks: %v", err)
	}
	if result.Claimed != 1 || result.Sent != 1 {
		t.Fatalf("expected 1 claimed and sent, got %+v", result)
	}
	if len(f.email.sent) != 1 {
		t.Fatalf("expected 1 email, got %d", len(f.email.sent))
	}
	if f.email.sent[0].To != "lead@example.fr" {
		t.Fatalf("email sent to %q", f.email.sent[0].To)
	}

	// A second immediate pass finds nothing.
	result, err = f.svc.ProcessDueTasks(context.Background(), 50)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if result.Claimed != 0 {
		t.Fatalf("second pass claimed %d tasks", result.Claimed)
	}

	// One day later the SMS step is due.
	f.advance(24 * time.Hour)
	result, err = f.svc.ProcessDueTasks(context.Background(), 50)
	if err != nil {
		t.Fatalf("day-two pass: %v", err)
	}
	if result.Sent != 1 {
		t.Fatalf("expected 1 sent on day two, got %+v", result)
	}
	if len(f.sms.sent) != 1 || f.sms.sent[0].To != "+33612345678" {
		t.Fatalf("expected 1 sms to the lead's phone, got %v", f.sms.sent)
	}
}

func TestProcessDueTasksCompletesEnrollment(t *testing.T) {
	f := newFixture(t)
	f.seedSequence(t, "relance-standard", true)
	leadID := f.dir.addLead("+33612345678", "lead@example.fr")

	enrollment, _, err := f.svc.Enroll(context.Background(), leadID, "relance-standard")
	if err != nil {
		t.Fatalf("Enroll: %v", err)
	}

	f.advance(72 * time.Hour)
	result, err := f.svc.ProcessDueTasks(context.Background(), 50)
	if err != nil {
		t.Fatalf("ProcessDueTasks: %v", err)
	}
	if result.Sent != 3 {
		t.Fatalf("expected all 3 tasks sent, got %+v", result)
	}

	if got := f.repo.enrollments[enrollment.ID].Status; got != repository.EnrollmentCompleted {
		t.Fatalf("expected completed enrollment, got %s", got)
	}
}

func TestProcessDueTasksFailsWithoutRetry(t *testing.T) {
	f := newFixture(t)
	f.seedSequence(t, "relance-standard", true)
	leadID := f.dir.addLead("+33612345678", "lead@example.fr")
	f.email.fail = fmt.Errorf("smtp connection refused")

	if _, _, err := f.svc.Enroll(context.Background(), leadID, "relance-standard"); err != nil {
		t.Fatalf("Enroll: %v", err)
	}

	result, err := f.svc.ProcessDueTasks(context.Background(), 50)
	if err != nil {
		t.Fatalf("ProcessDueTasks: %v", err)
	}
	if result.Failed != 1 {
		t.Fatalf("expected a permanent failure, got %+v", result)
	}

	failed := f.repo.tasksByStatus(repository.TaskFailed)
	if len(failed) != 1 {
		t.Fatalf("expected 1 failed task, got %d", len(failed))
	}
	if failed[0].LastError == nil || *failed[0].LastError != "smtp connection refused" {
		t.Fatalf("expected the cause on the task, got %v", failed[0].LastError)
	}

	// The failed step stays failed; a later pass does not pick it up again.
	result, err = f.svc.ProcessDueTasks(context.Background(), 50)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if result.Claimed != 0 {
		t.Fatalf("a failed task must not be reclaimed, got %+v", result)
	}

	// The rest of the sequence is unaffected: the day-two SMS still goes out.
	f.email.fail = nil
	f.advance(24 * time.Hour)
	result, err = f.svc.ProcessDueTasks(context.Background(), 50)
	if err != nil {
		t.Fatalf("day-two pass: %v", err)
	}
	if result.Sent != 1 {
		t.Fatalf("expected the next step to dispatch, got %+v", result)
	}
}

func TestProcessDueTasksSkipsOptedOutLead(t *testing.T) {
	f := newFixture(t)
	f.seedSequence(t, "relance-standard", true)
	leadID := f.dir.addLead("+33612345678", "lead@example.fr")

	if _, _, err := f.svc.Enroll(context.Background(), leadID, "relance-standard"); err != nil {
		t.Fatalf("Enroll: %v", err)
	}

	// The lead opts out between scheduling and dispatch.
	f.dir.contacts[leadID].OptedOut = true

	result, err := f.svc.ProcessDueTasks(context.Background(), 50)
	if err != nil {
		t.Fatalf("ProcessDueTasks: %v", err)
	}
	if result.Skipped != 1 || result.Sent != 0 {
		t.Fatalf("expected the task to be skipped, got %+v", result)
	}
	if len(f.email.sent) != 0 {
		t.Fatal("no message may reach a suppressed lead")
	}
}

func TestOptOutCancelsEnrollments(t *testing.T) {
	f := newFixture(t)
	f.seedSequence(t, "relance-standard", true)
	leadID := f.dir.addLead("+33612345678", "lead@example.fr")

	enrollment, _, err := f.svc.Enroll(context.Background(), leadID, "relance-standard")
	if err != nil {
		t.Fatalf("Enroll: %v", err)
	}

	if err := f.svc.OptOutLead(context.Background(), leadID); err != nil {
		t.Fatalf("OptOutLead: %v", err)
	}

	if !f.dir.contacts[leadID].OptedOut {
		t.Fatal("expected suppression flag on the lead")
	}
	stored := f.repo.enrollments[enrollment.ID]
	if stored.Status != repository.EnrollmentCancelled {
		t.Fatalf("expected cancelled enrollment, got %s", stored.Status)
	}
	if stored.CancelReason == nil || *stored.CancelReason != ReasonOptedOut {
		t.Fatalf("expected cancel reason %q, got %v", ReasonOptedOut, stored.CancelReason)
	}
	if pending := f.repo.tasksByStatus(repository.TaskPending); len(pending) != 0 {
		t.Fatalf("expected no pending tasks, got %d", len(pending))
	}

	var optedOut, cancelled bool
	for _, event := range f.bus.published {
		switch event.(type) {
		case events.LeadOptedOut:
			optedOut = true
		case events.EnrollmentsCancelled:
			cancelled = true
		}
	}
	if !optedOut || !cancelled {
		t.Fatal("expected opt-out and cancellation events on the bus")
	}
}

func TestCancelEnrollmentsKeepsSentTasks(t *testing.T) {
	f := newFixture(t)
	f.seedSequence(t, "relance-standard", true)
	leadID := f.dir.addLead("+33612345678", "lead@example.fr")

	enrollment, _, err := f.svc.Enroll(context.Background(), leadID, "relance-standard")
	if err != nil {
		t.Fatalf("Enroll: %v", err)
	}

	// Dispatch the first two steps, leaving the 48h step pending.
	if _, err := f.svc.ProcessDueTasks(context.Background(), 50); err != nil {
		t.Fatalf("first pass: %v", err)
	}
	f.advance(24 * time.Hour)
	if _, err := f.svc.ProcessDueTasks(context.Background(), 50); err != nil {
		t.Fatalf("second pass: %v", err)
	}

	cancelled, err := f.svc.CancelLeadEnrollments(context.Background(), leadID, "agent request")
	if err != nil {
		t.Fatalf("CancelLeadEnrollments: %v", err)
	}
	if cancelled != 1 {
		t.Fatalf("expected 1 cancelled enrollment, got %d", cancelled)
	}
	if got := f.repo.enrollments[enrollment.ID].Status; got != repository.EnrollmentCancelled {
		t.Fatalf("expected cancelled enrollment, got %s", got)
	}

	sent := f.repo.tasksByStatus(repository.TaskSent)
	if len(sent) != 2 {
		t.Fatalf("expected the 2 dispatched tasks to stay sent, got %d", len(sent))
	}
	for _, task := range sent {
		if task.ExecutedAt == nil {
			t.Errorf("sent task %s lost its execution timestamp", task.ID)
		}
	}

	skipped := f.repo.tasksByStatus(repository.TaskSkipped)
	if len(skipped) != 1 {
		t.Fatalf("expected the pending task to be skipped, got %d", len(skipped))
	}
	if skipped[0].LastError == nil || *skipped[0].LastError != "agent request" {
		t.Fatalf("expected the cancel reason on the skipped task, got %v", skipped[0].LastError)
	}
	if pending := f.repo.tasksByStatus(repository.TaskPending); len(pending) != 0 {
		t.Fatalf("expected no pending tasks after cancellation, got %d", len(pending))
	}
}

func TestTerminalStageEventCancelsEnrollments(t *testing.T) {
	tests := []struct {
		stage      domain.Stage
		wantReason string
	}{
		{domain.StageEnrolled, ReasonLeadConverted},
		{domain.StageLostNotInterested, ReasonLeadLost},
		{domain.StageLostUnreachable, ReasonLeadLost},
	}

	for _, tt := range tests {
		t.Run(string(tt.stage), func(t *testing.T) {
			f := newFixture(t)
			f.seedSequence(t, "relance-standard", true)
			f.svc.RegisterEventHandlers(f.bus)
			leadID := f.dir.addLead("+33612345678", "lead@example.fr")

			enrollment, _, err := f.svc.Enroll(context.Background(), leadID, "relance-standard")
			if err != nil {
				t.Fatalf("Enroll: %v", err)
			}

			f.bus.Publish(context.Background(), events.LeadStageChanged{
				BaseEvent: events.NewBaseEvent(),
				LeadID:    leadID,
				NewStage:  string(tt.stage),
			})

			stored := f.repo.enrollments[enrollment.ID]
			if stored.Status != repository.EnrollmentCancelled {
				t.Fatalf("expected cancelled enrollment, got %s", stored.Status)
			}
			if stored.CancelReason == nil || *stored.CancelReason != tt.wantReason {
				t.Fatalf("expected reason %q, got %v", tt.wantReason, stored.CancelReason)
			}
		})
	}
}

func TestNonTerminalStageEventKeepsEnrollments(t *testing.T) {
	f := newFixture(t)
	f.seedSequence(t, "relance-standard", true)
	f.svc.RegisterEventHandlers(f.bus)
	leadID := f.dir.addLead("+33612345678", "lead@example.fr")

	enrollment, _, err := f.svc.Enroll(context.Background(), leadID, "relance-standard")
	if err != nil {
		t.Fatalf("Enroll: %v", err)
	}

	f.bus.Publish(context.Background(), events.LeadStageChanged{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    leadID,
		NewStage:  string(domain.StageFundingChoice),
	})

	if got := f.repo.enrollments[enrollment.ID].Status; got != repository.EnrollmentActive {
		t.Fatalf("a mid-funnel transition must not cancel the drip, got %s", got)
	}
}

type fakeTrigger struct {
	batches []int
}

func (f *fakeTrigger) EnqueueProcessDue(_ context.Context, batchSize int) error {
	f.batches = append(f.batches, batchSize)
	return nil
}

func TestTriggerDispatchEnqueuesWhenClientWired(t *testing.T) {
	f := newFixture(t)
	trigger := &fakeTrigger{}
	f.svc.SetDispatchTrigger(trigger)

	result, err := f.svc.TriggerDispatch(context.Background(), 25)
	if err != nil {
		t.Fatalf("TriggerDispatch: %v", err)
	}
	if result != nil {
		t.Fatalf("queued trigger must not return an inline result, got %+v", result)
	}
	if len(trigger.batches) != 1 || trigger.batches[0] != 25 {
		t.Fatalf("expected one enqueue with batch 25, got %v", trigger.batches)
	}
}

func TestTriggerDispatchRunsInlineWithoutClient(t *testing.T) {
	f := newFixture(t)
	f.seedSequence(t, "relance-standard", true)
	leadID := f.dir.addLead("+33612345678", "lead@example.fr")

	if _, _, err := f.svc.Enroll(context.Background(), leadID, "relance-standard"); err != nil {
		t.Fatalf("Enroll: %v", err)
	}

	result, err := f.svc.TriggerDispatch(context.Background(), 0)
	if err != nil {
		t.Fatalf("TriggerDispatch: %v", err)
	}
	if result == nil {
		t.Fatal("inline trigger must return the pass result")
	}
	if result.Claimed != 1 || result.Sent != 1 {
		t.Fatalf("expected the due task to be sent inline, got %+v", result)
	}
}
