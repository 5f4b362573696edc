package handlers

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/interlocutor"
	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/models"
	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/reconciliation"
	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/repositories"
	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/tenant"
)

// Reconciler is the reconciliation engine as seen by the API.
type Reconciler interface {
	Reconcile(ctx context.Context, tc *tenant.TenantContext, rawPhone string) (*reconciliation.Result, error)
	Refresh(ctx context.Context, tc *tenant.TenantContext, patientID uuid.UUID) (*reconciliation.Result, error)
	CreateLead(ctx context.Context, tenantID uuid.UUID, req reconciliation.LeadRequest) (*models.PatientRecord, error)
}

// PatientHandler handles identification and patient lookups
type PatientHandler struct {
	engine   Reconciler
	patients repositories.PatientRepo
	analyzer *interlocutor.Analyzer
	logger   ectologger.Logger
}

func NewPatientHandler(engine Reconciler, patients repositories.PatientRepo, analyzer *interlocutor.Analyzer, logger ectologger.Logger) *PatientHandler {
	return &PatientHandler{
		engine:   engine,
		patients: patients,
		analyzer: analyzer,
		logger:   logger,
	}
}

// IdentifyRequest is the request body for POST /identify
type IdentifyRequest struct {
	Phone string `json:"phone" validate:"required"`
}

// IdentifyResponse pairs the reconciliation outcome with the addressing context.
// Interlocutor is omitted when no patient was found.
type IdentifyResponse struct {
	Reconciliation *reconciliation.Result `json:"reconciliation"`
	Interlocutor   *interlocutor.Context  `json:"interlocutor,omitempty"`
}

// RegisterRoutes registers the patient routes, each wrapped in m.
func (h *PatientHandler) RegisterRoutes(g *echo.Group, m ...echo.MiddlewareFunc) {
	g.POST("/identify", h.Identify, m...)

	patients := g.Group("/patients")
	patients.POST("/leads", h.CreateLead, m...)
	patients.GET("/:id/interlocutor", h.Interlocutor, m...)
	patients.POST("/:id/refresh", h.Refresh, m...)
}

// Identify handles POST /identify
func (h *PatientHandler) Identify(c echo.Context) error {
	ctx := c.Request().Context()

	tc, err := GetTenant(c)
	if err != nil {
		return err
	}

	req, err := BindRequest[IdentifyRequest](c)
	if err != nil {
		return err
	}

	result, err := h.engine.Reconcile(ctx, tc, req.Phone)
	if err != nil {
		return err
	}

	return SuccessResponse(c, h.identifyResponse(ctx, result))
}

// Refresh handles POST /patients/:id/refresh
func (h *PatientHandler) Refresh(c echo.Context) error {
	ctx := c.Request().Context()

	tc, err := GetTenant(c)
	if err != nil {
		return err
	}

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	result, err := h.engine.Refresh(ctx, tc, id)
	if err != nil {
		return err
	}

	return SuccessResponse(c, h.identifyResponse(ctx, result))
}

func (h *PatientHandler) identifyResponse(ctx context.Context, result *reconciliation.Result) IdentifyResponse {
	resp := IdentifyResponse{Reconciliation: result}
	if result.Record != nil {
		analysis := h.analyzer.Analyze(ctx, result.Record)
		resp.Interlocutor = &analysis
	}
	return resp
}

// CreateLead handles POST /patients/leads
func (h *PatientHandler) CreateLead(c echo.Context) error {
	ctx := c.Request().Context()

	tc, err := GetTenant(c)
	if err != nil {
		return err
	}

	var req reconciliation.LeadRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}

	record, err := h.engine.CreateLead(ctx, tc.ID(), req)
	if err != nil {
		return err
	}

	return CreatedResponse(c, record)
}

// Interlocutor handles GET /patients/:id/interlocutor
func (h *PatientHandler) Interlocutor(c echo.Context) error {
	ctx := c.Request().Context()

	tc, err := GetTenant(c)
	if err != nil {
		return err
	}

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	record, err := h.patients.GetByID(ctx, tc.ID(), id)
	if err != nil {
		return err
	}

	return SuccessResponse(c, h.analyzer.Analyze(ctx, record))
}
