// Package handler exposes the leads HTTP API.
package handler

import (
	"net/http"

	"closing_backend/internal/leads/service"
	"closing_backend/internal/leads/transport"
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

// RegisterRoutes mounts the leads routes on the given group.
func (h *Handler) RegisterRoutes(group *gin.RouterGroup) {
	group.POST("", h.CreateLead)
	group.GET("/:id", h.GetLead)
	group.GET("/:id/audit", h.ListAudit)
	group.POST("/:id/rescore", h.Rescore)

	group.POST("/:id/appointment", h.ScheduleAppointment)
	group.POST("/:id/appointment/qualification", h.QualifyAppointment)
	group.POST("/:id/decision", h.HandleDecision)
	group.POST("/:id/financing", h.ChooseFinancing)
	group.POST("/:id/offer", h.ValidateOffer)
	group.POST("/:id/payments", h.RecordPayment)

	group.POST("/:id/cpf/account", h.SetAccountStatus)
	group.POST("/:id/cpf/identity", h.ValidateIdentity)
	group.POST("/:id/cpf/placement-test", h.ValidatePlacementTest)
	group.POST("/:id/cpf/validation", h.ValidateExternalFile)

	group.POST("/:id/opco/agreement", h.SignOPCOAgreement)
	group.POST("/:id/opco/file", h.SendOPCOFile)
	group.POST("/:id/opco/validation", h.ValidateOPCOFile)

	group.POST("/:id/recalls", h.RecordRecall)
	group.POST("/:id/calls", h.RecordCall)
}

func (h *Handler) CreateLead(c *gin.Context) {
	var req transport.CreateLeadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	lead, err := h.svc.CreateLead(c.Request.Context(), service.CreateLeadInput{
		AgencyID:  req.AgencyID,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
		Email:     req.Email,
		Source:    req.Source,
	})
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.JSON(c, http.StatusCreated, transport.ToLeadResponse(lead))
}

func (h *Handler) GetLead(c *gin.Context) {
	leadID, ok := h.leadID(c)
	if !ok {
		return
	}

	lead, err := h.svc.GetLead(c.Request.Context(), leadID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToLeadResponse(lead))
}

func (h *Handler) ListAudit(c *gin.Context) {
	leadID, ok := h.leadID(c)
	if !ok {
		return
	}

	entries, err := h.svc.ListAudit(c.Request.Context(), leadID)
	if httpkit.HandleError(c, err) {
		return
	}

	out := make([]transport.AuditEntryResponse, 0, len(entries))
	for _, entry := range entries {
		out = append(out, transport.ToAuditResponse(entry))
	}
	httpkit.OK(c, out)
}

func (h *Handler) Rescore(c *gin.Context) {
	leadID, ok := h.leadID(c)
	if !ok {
		return
	}

	lead, err := h.svc.Rescore(c.Request.Context(), leadID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToLeadResponse(lead))
}

func (h *Handler) ScheduleAppointment(c *gin.Context) {
	leadID, actorID, ok := h.leadAndActor(c)
	if !ok {
		return
	}

	lead, err := h.svc.ScheduleAppointment(c.Request.Context(), leadID, actorID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToLeadResponse(lead))
}

func (h *Handler) QualifyAppointment(c *gin.Context) {
	leadID, actorID, ok := h.leadAndActor(c)
	if !ok {
		return
	}

	var req transport.QualifyAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	lead, err := h.svc.QualifyAppointment(c.Request.Context(), leadID, actorID, req.Honored, req.Reason)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToLeadResponse(lead))
}

func (h *Handler) HandleDecision(c *gin.Context) {
	leadID, actorID, ok := h.leadAndActor(c)
	if !ok {
		return
	}

	var req transport.DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	lead, err := h.svc.HandleQualificationDecision(c.Request.Context(), leadID, actorID, req.Decision)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToLeadResponse(lead))
}

func (h *Handler) ChooseFinancing(c *gin.Context) {
	leadID, actorID, ok := h.leadAndActor(c)
	if !ok {
		return
	}

	var req transport.ChooseFinancingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	method, valid := transport.ParseFundingMethod(req.Method)
	if !valid {
		httpkit.Error(c, http.StatusBadRequest, "unknown financing method", req.Method)
		return
	}

	lead, err := h.svc.ChooseFinancingMethod(c.Request.Context(), leadID, actorID, method)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToLeadResponse(lead))
}

func (h *Handler) ValidateOffer(c *gin.Context) {
	leadID, actorID, ok := h.leadAndActor(c)
	if !ok {
		return
	}

	var req transport.ValidateOfferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	lead, err := h.svc.ValidatePersonalOffer(c.Request.Context(), leadID, actorID, req.PriceCents, req.ThresholdPercent)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToLeadResponse(lead))
}

func (h *Handler) RecordPayment(c *gin.Context) {
	leadID, actorID, ok := h.leadAndActor(c)
	if !ok {
		return
	}

	var req transport.RecordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	result, err := h.svc.RecordPersonalPayment(c.Request.Context(), leadID, actorID, req.AmountCents)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.PaymentResponse{
		Lead:           transport.ToLeadResponse(result.Lead),
		Enrolled:       result.Enrolled,
		RemainingCents: result.RemainingCents,
	})
}

func (h *Handler) SetAccountStatus(c *gin.Context) {
	leadID, actorID, ok := h.leadAndActor(c)
	if !ok {
		return
	}

	var req transport.AccountStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	lead, err := h.svc.SetFundingAccountStatus(c.Request.Context(), leadID, actorID, req.Verified)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToLeadResponse(lead))
}

func (h *Handler) ValidateIdentity(c *gin.Context) {
	leadID, actorID, ok := h.leadAndActor(c)
	if !ok {
		return
	}

	lead, err := h.svc.ValidateIdentity(c.Request.Context(), leadID, actorID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToLeadResponse(lead))
}

func (h *Handler) ValidatePlacementTest(c *gin.Context) {
	leadID, actorID, ok := h.leadAndActor(c)
	if !ok {
		return
	}

	var req transport.PlacementTestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	lead, err := h.svc.ValidatePlacementTest(c.Request.Context(), leadID, actorID, req.Score)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToLeadResponse(lead))
}

func (h *Handler) ValidateExternalFile(c *gin.Context) {
	leadID, actorID, ok := h.leadAndActor(c)
	if !ok {
		return
	}

	lead, err := h.svc.ValidateExternalFile(c.Request.Context(), leadID, actorID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToLeadResponse(lead))
}

func (h *Handler) SignOPCOAgreement(c *gin.Context) {
	leadID, actorID, ok := h.leadAndActor(c)
	if !ok {
		return
	}

	lead, err := h.svc.SignOPCOAgreement(c.Request.Context(), leadID, actorID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToLeadResponse(lead))
}

func (h *Handler) SendOPCOFile(c *gin.Context) {
	leadID, actorID, ok := h.leadAndActor(c)
	if !ok {
		return
	}

	var req transport.OPCOFileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	lead, err := h.svc.SendOPCOFile(c.Request.Context(), leadID, actorID, req.FileReference)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToLeadResponse(lead))
}

func (h *Handler) ValidateOPCOFile(c *gin.Context) {
	leadID, actorID, ok := h.leadAndActor(c)
	if !ok {
		return
	}

	lead, err := h.svc.ValidateOPCOFile(c.Request.Context(), leadID, actorID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToLeadResponse(lead))
}

func (h *Handler) RecordRecall(c *gin.Context) {
	leadID, actorID, ok := h.leadAndActor(c)
	if !ok {
		return
	}

	result, err := h.svc.ProcessRecallAttempt(c.Request.Context(), leadID, actorID)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.RecallResponse{
		Lead:         transport.ToLeadResponse(result.Lead),
		RelanceCount: result.RelanceCount,
		Lost:         result.Lost,
	})
}

func (h *Handler) RecordCall(c *gin.Context) {
	leadID, actorID, ok := h.leadAndActor(c)
	if !ok {
		return
	}

	lead, err := h.svc.RecordCallAttempt(c.Request.Context(), leadID, actorID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToLeadResponse(lead))
}

func (h *Handler) leadID(c *gin.Context) (uuid.UUID, bool) {
	leadID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.HandleError(c, apperr.BadRequest("invalid lead id"))
		return uuid.Nil, false
	}
	return leadID, true
}

func (h *Handler) leadAndActor(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	leadID, ok := h.leadID(c)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}

	actorID, ok := httpkit.ActorID(c)
	if !ok {
		httpkit.HandleError(c, apperr.Unauthorized("missing authenticated agent"))
		return uuid.Nil, uuid.Nil, false
	}
	return leadID, actorID, true
}
