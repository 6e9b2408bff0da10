// Package transport defines request/response DTOs for the nurturing module.
package transport

import (
	"math"
	"time"

	"closing_backend/internal/nurturing/repository"
	"closing_backend/internal/nurturing/service"

	"github.com/google/uuid"
)

// EnrollRequest puts a lead into a sequence.
type EnrollRequest struct {
	LeadID       uuid.UUID `json:"leadId" validate:"required"`
	SequenceName string    `json:"sequenceName" validate:"required"`
}

// CancelRequest cancels a lead's active enrollments.
type CancelRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// DispatchRequest asks for a dispatch pass outside the scheduler cadence.
type DispatchRequest struct {
	BatchSize int `json:"batchSize" validate:"omitempty,min=1,max=500"`
}

// ProcessResultResponse summarizes an inline dispatch pass.
type ProcessResultResponse struct {
	Claimed int `json:"claimed"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// EnrollmentResponse is the API representation of an enrollment.
type EnrollmentResponse struct {
	ID           uuid.UUID `json:"id"`
	LeadID       uuid.UUID `json:"leadId"`
	SequenceID   uuid.UUID `json:"sequenceId"`
	Status       string    `json:"status"`
	EnrolledAt   time.Time `json:"enrolledAt"`
	CancelReason *string   `json:"cancelReason,omitempty"`
}

// TaskResponse is one scheduled dispatch.
type TaskResponse struct {
	ID         uuid.UUID  `json:"id"`
	Channel    string     `json:"channel"`
	RunAt      time.Time  `json:"runAt"`
	Status     string     `json:"status"`
	ExecutedAt *time.Time `json:"executedAt,omitempty"`
}

// EnrollResponse is returned by the enroll operation.
type EnrollResponse struct {
	Enrollment EnrollmentResponse `json:"enrollment"`
	Tasks      []TaskResponse     `json:"tasks"`
}

// SequenceResponse is the API representation of a sequence.
type SequenceResponse struct {
	ID          uuid.UUID      `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Active      bool           `json:"active"`
	Steps       []StepResponse `json:"steps"`
}

// StepResponse is one sequence step.
type StepResponse struct {
	StepOrder   int    `json:"stepOrder"`
	OffsetHours int    `json:"offsetHours"`
	Channel     string `json:"channel"`
	Subject     string `json:"subject,omitempty"`
}

// ReportRow is one sequence of the campaign report. ConversionRate is the
// share of enrollments whose lead converted, rounded to a whole percent.
type ReportRow struct {
	SequenceID     uuid.UUID `json:"sequenceId"`
	SequenceName   string    `json:"sequenceName"`
	Enrolled       int       `json:"enrolled"`
	Active         int       `json:"active"`
	Completed      int       `json:"completed"`
	Cancelled      int       `json:"cancelled"`
	Converted      int       `json:"converted"`
	TasksSent      int       `json:"tasksSent"`
	TasksFailed    int       `json:"tasksFailed"`
	ConversionRate int       `json:"conversionRate"`
}

// ToProcessResultResponse maps a dispatch pass summary.
func ToProcessResultResponse(result service.ProcessResult) ProcessResultResponse {
	return ProcessResultResponse{
		Claimed: result.Claimed,
		Sent:    result.Sent,
		Failed:  result.Failed,
		Skipped: result.Skipped,
	}
}

// ToEnrollmentResponse maps an enrollment to its API representation.
func ToEnrollmentResponse(e repository.Enrollment) EnrollmentResponse {
	return EnrollmentResponse{
		ID:           e.ID,
		LeadID:       e.LeadID,
		SequenceID:   e.SequenceID,
		Status:       e.Status,
		EnrolledAt:   e.EnrolledAt,
		CancelReason: e.CancelReason,
	}
}

// ToTaskResponse maps a task to its API representation.
func ToTaskResponse(t repository.Task) TaskResponse {
	return TaskResponse{
		ID:         t.ID,
		Channel:    t.Channel,
		RunAt:      t.RunAt,
		Status:     t.Status,
		ExecutedAt: t.ExecutedAt,
	}
}

// ToSequenceResponse maps a sequence to its API representation.
func ToSequenceResponse(seq repository.Sequence) SequenceResponse {
	resp := SequenceResponse{
		ID:          seq.ID,
		Name:        seq.Name,
		Description: seq.Description,
		Active:      seq.Active,
		Steps:       make([]StepResponse, 0, len(seq.Steps)),
	}
	for _, step := range seq.Steps {
		resp.Steps = append(resp.Steps, StepResponse{
			StepOrder:   step.StepOrder,
			OffsetHours: step.OffsetHours,
			Channel:     step.Channel,
			Subject:     step.Subject,
		})
	}
	return resp
}

// ToReportRow maps an aggregate to its API representation, computing the
// conversion rate. A sequence with no enrollments reports a zero rate.
func ToReportRow(report repository.SequenceReport) ReportRow {
	row := ReportRow{
		SequenceID:   report.SequenceID,
		SequenceName: report.SequenceName,
		Enrolled:     report.Enrolled,
		Active:       report.Active,
		Completed:    report.Completed,
		Cancelled:    report.Cancelled,
		Converted:    report.Converted,
		TasksSent:    report.TasksSent,
		TasksFailed:  report.TasksFailed,
	}
	if report.Enrolled > 0 {
		row.ConversionRate = int(math.Round(float64(report.Converted) / float64(report.Enrolled) * 100))
	}
	return row
}
