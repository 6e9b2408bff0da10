// Package handler exposes the nurturing HTTP API.
package handler

import (
	"errors"
	"io"
	"net/http"

	"closing_backend/internal/nurturing/service"
	"closing_backend/internal/nurturing/transport"
	"closing_backend/platform/apperr"
	"closing_backend/platform/httpkit"
	"closing_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Handler struct {
	svc      *service.Service
	validate *validator.Validator
}

func New(svc *service.Service, validate *validator.Validator) *Handler {
	return &Handler{svc: svc, validate: validate}
}

// RegisterRoutes mounts the nurturing routes on the given group.
func (h *Handler) RegisterRoutes(group *gin.RouterGroup) {
	group.GET("/sequences", h.ListSequences)
	group.POST("/enrollments", h.Enroll)
	group.GET("/leads/:leadId/enrollments", h.ListEnrollments)
	group.POST("/leads/:leadId/cancel", h.CancelEnrollments)
	group.POST("/leads/:leadId/opt-out", h.OptOut)
	group.POST("/leads/:leadId/opt-in", h.OptIn)
	group.GET("/report", h.Report)
	group.POST("/dispatch", h.TriggerDispatch)
}

func (h *Handler) TriggerDispatch(c *gin.Context) {
	var req transport.DispatchRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	result, err := h.svc.TriggerDispatch(c.Request.Context(), req.BatchSize)
	if httpkit.HandleError(c, err) {
		return
	}

	if result == nil {
		httpkit.JSON(c, http.StatusAccepted, gin.H{"queued": true})
		return
	}
	httpkit.OK(c, transport.ToProcessResultResponse(*result))
}

func (h *Handler) ListSequences(c *gin.Context) {
	sequences, err := h.svc.ListSequences(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}

	out := make([]transport.SequenceResponse, 0, len(sequences))
	for _, seq := range sequences {
		out = append(out, transport.ToSequenceResponse(seq))
	}
	httpkit.OK(c, out)
}

func (h *Handler) Enroll(c *gin.Context) {
	var req transport.EnrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	enrollment, tasks, err := h.svc.Enroll(c.Request.Context(), req.LeadID, req.SequenceName)
	if httpkit.HandleError(c, err) {
		return
	}

	resp := transport.EnrollResponse{
		Enrollment: transport.ToEnrollmentResponse(enrollment),
		Tasks:      make([]transport.TaskResponse, 0, len(tasks)),
	}
	for _, task := range tasks {
		resp.Tasks = append(resp.Tasks, transport.ToTaskResponse(task))
	}
	httpkit.JSON(c, http.StatusCreated, resp)
}

func (h *Handler) ListEnrollments(c *gin.Context) {
	leadID, ok := h.leadID(c)
	if !ok {
		return
	}

	enrollments, err := h.svc.ListEnrollments(c.Request.Context(), leadID)
	if httpkit.HandleError(c, err) {
		return
	}

	out := make([]transport.EnrollmentResponse, 0, len(enrollments))
	for _, enrollment := range enrollments {
		out = append(out, transport.ToEnrollmentResponse(enrollment))
	}
	httpkit.OK(c, out)
}

func (h *Handler) CancelEnrollments(c *gin.Context) {
	leadID, ok := h.leadID(c)
	if !ok {
		return
	}

	var req transport.CancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	cancelled, err := h.svc.CancelLeadEnrollments(c.Request.Context(), leadID, req.Reason)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"cancelled": cancelled})
}

func (h *Handler) OptOut(c *gin.Context) {
	leadID, ok := h.leadID(c)
	if !ok {
		return
	}

	if err := h.svc.OptOutLead(c.Request.Context(), leadID); httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"optedOut": true})
}

func (h *Handler) OptIn(c *gin.Context) {
	leadID, ok := h.leadID(c)
	if !ok {
		return
	}

	if err := h.svc.OptInLead(c.Request.Context(), leadID); httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"optedOut": false})
}

func (h *Handler) Report(c *gin.Context) {
	reports, err := h.svc.Report(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}

	out := make([]transport.ReportRow, 0, len(reports))
	for _, report := range reports {
		out = append(out, transport.ToReportRow(report))
	}
	httpkit.OK(c, out)
}

func (h *Handler) leadID(c *gin.Context) (uuid.UUID, bool) {
	leadID, err := uuid.Parse(c.Param("leadId"))
	if err != nil {
		httpkit.HandleError(c, apperr.BadRequest("invalid lead id"))
		return uuid.Nil, false
	}
	return leadID, true
}
