package api

import (
	"errors"
	"net/http"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/konsulta/domain"
	"github.com/satriahrh/konsulta/domain/entities"
	"github.com/satriahrh/konsulta/domain/repositories"
	"github.com/satriahrh/konsulta/internal/auth"
	"github.com/satriahrh/konsulta/internal/consultation"
	"github.com/satriahrh/konsulta/internal/websocket"
)

const (
	contextClaims = "claims"
	contextToken  = "token"

	defaultRecordLimit = 20
	maxRecordLimit     = 100
)

var errForbidden = errors.New("consultation belongs to another clinician")

// MicrophoneAttacher connects a microphone announced at open time
type MicrophoneAttacher interface {
	Attach(consultationID string, config repositories.AudioConfig)
}

// Handler serves the consultation API
type Handler struct {
	registry    *consultation.Registry
	hub         *websocket.Hub
	microphones MicrophoneAttacher
	records     repositories.ConsultationRepository
	validator   *auth.Validator
	logger      *zap.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

// session binds an open consultation to the clinician who opened it and
// carries their latest bearer token to outbound calls
type session struct {
	clinicianID string
	token       *auth.SessionToken
}

// NewHandler creates the API handler
func NewHandler(
	registry *consultation.Registry,
	hub *websocket.Hub,
	microphones MicrophoneAttacher,
	records repositories.ConsultationRepository,
	validator *auth.Validator,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		registry:    registry,
		hub:         hub,
		microphones: microphones,
		records:     records,
		validator:   validator,
		logger:      logger,
		sessions:    make(map[string]*session),
	}
}

// InitRoutes initializes all API routes
func InitRoutes(e *echo.Echo, h *Handler) {
	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":        "ok",
			"service":       "konsulta",
			"consultations": h.registry.Len(),
		})
	})

	// API v1 routes
	v1 := e.Group("/api/v1", h.authenticate)

	v1.POST("/consultations", h.openConsultation)
	v1.GET("/consultations/:id", h.getConsultation)
	v1.DELETE("/consultations/:id", h.closeConsultation)

	// Recording
	v1.POST("/consultations/:id/recording/start", h.startRecording)
	v1.POST("/consultations/:id/recording/stop", h.stopRecording)
	v1.POST("/consultations/:id/skip", h.skipToBilling)

	// Billing
	v1.PUT("/consultations/:id/bill/base-fee", h.setBaseFee)
	v1.POST("/consultations/:id/bill/items", h.addLineItem)
	v1.DELETE("/consultations/:id/bill/items/:index", h.removeLineItem)
	v1.POST("/consultations/:id/bill/submit", h.submitBill)

	// Stored records
	v1.GET("/records/:id", h.getRecord)
	v1.GET("/patients/:id/records", h.listPatientRecords)

	// WebSocket endpoint with JWT validation
	e.GET("/ws", h.serveWebSocket, h.authenticate)
}

// authenticate validates the clinician bearer token
func (h *Handler) authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token, err := auth.BearerToken(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.JSON(http.StatusUnauthorized, ErrorResponse{
				Error:   "missing_token",
				Message: "JWT token is required in Authorization header",
			})
		}

		claims, err := h.validator.ValidateToken(token)
		if errors.Is(err, auth.ErrInvalidRole) {
			h.logger.Warn("Request rejected: invalid role", zap.Error(err))
			return c.JSON(http.StatusForbidden, ErrorResponse{
				Error:   "invalid_role",
				Message: "Only clinician tokens are allowed",
			})
		}
		if err != nil {
			h.logger.Warn("Request rejected: invalid token", zap.Error(err))
			return c.JSON(http.StatusUnauthorized, ErrorResponse{
				Error:   "invalid_token",
				Message: "Invalid or expired JWT token",
			})
		}

		c.Set(contextClaims, claims)
		c.Set(contextToken, token)
		return next(c)
	}
}

func (h *Handler) openConsultation(c echo.Context) error {
	var req OpenConsultationRequest
	if err := c.Bind(&req); err != nil {
		h.logger.Error("Failed to bind open consultation request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}
	msg := req.validate()
	if msg == "" && req.Microphone != nil {
		if err := h.hub.ValidateMicrophone(req.Microphone.audioConfig()); err != nil {
			msg = "microphone: " + err.Error()
		}
	}
	if msg != "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: msg,
		})
	}

	if req.ID == "" {
		req.ID = uuid.New().String()
	} else if _, err := h.registry.Get(req.ID); err == nil {
		return c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "already_open",
			Message: "Consultation is already open",
		})
	}

	if req.Microphone != nil {
		h.microphones.Attach(req.ID, req.Microphone.audioConfig())
	}

	claims := c.Get(contextClaims).(*auth.JWTClaims)
	tokens := auth.NewSessionToken(c.Get(contextToken).(string))
	o, err := h.registry.Open(c.Request().Context(), consultation.Info{
		ID:            req.ID,
		AppointmentID: req.AppointmentID,
		PatientID:     req.PatientID,
		Mode:          req.Mode,
		BaseFee:       req.BaseFee,
	}, tokens)
	if err != nil {
		return h.respondError(c, err)
	}

	// Only the request that won the registry slot may own the session.
	h.mu.Lock()
	h.sessions[o.ID()] = &session{clinicianID: claims.ClinicianID, token: tokens}
	h.mu.Unlock()

	h.logger.Info("Consultation opened by clinician",
		zap.String("consultationID", o.ID()),
		zap.String("clinicianID", claims.ClinicianID),
		zap.String("mode", string(req.Mode)))
	return c.JSON(http.StatusCreated, o.Snapshot())
}

func (r *OpenConsultationRequest) validate() string {
	switch {
	case r.AppointmentID == "" || r.PatientID == "":
		return "appointment_id and patient_id are required"
	case r.Mode != entities.ConsultationModeOnline && r.Mode != entities.ConsultationModeOffline:
		return "mode must be online or offline"
	case r.BaseFee < 0:
		return "base_fee cannot be negative"
	}
	return ""
}

func (h *Handler) getConsultation(c echo.Context) error {
	o, err := h.bind(c, c.Param("id"))
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, o.Snapshot())
}

func (h *Handler) closeConsultation(c echo.Context) error {
	id := c.Param("id")
	if _, err := h.bind(c, id); err != nil {
		return h.respondError(c, err)
	}
	if err := h.registry.Close(id); err != nil {
		return h.respondError(c, err)
	}
	h.forget(id)
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) startRecording(c echo.Context) error {
	return h.act(c, func(o *consultation.Orchestrator) error {
		return o.StartRecording(c.Request().Context())
	})
}

func (h *Handler) stopRecording(c echo.Context) error {
	return h.act(c, func(o *consultation.Orchestrator) error {
		return o.StopRecording(c.Request().Context())
	})
}

func (h *Handler) skipToBilling(c echo.Context) error {
	return h.act(c, func(o *consultation.Orchestrator) error {
		return o.SkipToBilling()
	})
}

func (h *Handler) setBaseFee(c echo.Context) error {
	var req BaseFeeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}
	return h.act(c, func(o *consultation.Orchestrator) error {
		return o.SetBaseFee(req.BaseFee)
	})
}

func (h *Handler) addLineItem(c echo.Context) error {
	var req LineItemRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}
	return h.act(c, func(o *consultation.Orchestrator) error {
		return o.AddLineItem(req.Description, req.Amount)
	})
}

func (h *Handler) removeLineItem(c echo.Context) error {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Line item index must be a number",
		})
	}
	return h.act(c, func(o *consultation.Orchestrator) error {
		return o.RemoveLineItem(index)
	})
}

func (h *Handler) submitBill(c echo.Context) error {
	o, err := h.bind(c, c.Param("id"))
	if err != nil {
		return h.respondError(c, err)
	}

	recordID, err := o.SubmitBill(c.Request().Context())
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, SubmitBillResponse{
		BillingRecordID: recordID,
		Consultation:    o.Snapshot(),
	})
}

func (h *Handler) getRecord(c echo.Context) error {
	record, err := h.records.GetByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, record)
}

func (h *Handler) listPatientRecords(c echo.Context) error {
	limit := defaultRecordLimit
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_request",
				Message: "limit must be a positive number",
			})
		}
		limit = min(n, maxRecordLimit)
	}

	patientID := c.Param("id")
	records, err := h.records.ListByPatientID(c.Request().Context(), patientID, limit)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, RecordListResponse{PatientID: patientID, Records: records})
}

// serveWebSocket attaches the clinician's microphone socket to a consultation
func (h *Handler) serveWebSocket(c echo.Context) error {
	id := c.QueryParam("consultation_id")
	if id == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_consultation",
			Message: "consultation_id query parameter is required",
		})
	}
	if _, err := h.bind(c, id); err != nil {
		return h.respondError(c, err)
	}

	if err := h.hub.HandleWebSocket(c, id); err != nil {
		if c.Response().Committed {
			return nil
		}
		return h.respondError(c, err)
	}
	return nil
}

// act runs one clinician action and responds with the resulting snapshot
func (h *Handler) act(c echo.Context, action func(o *consultation.Orchestrator) error) error {
	o, err := h.bind(c, c.Param("id"))
	if err != nil {
		return h.respondError(c, err)
	}
	if err := action(o); err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, o.Snapshot())
}

// bind resolves the consultation, checks ownership and refreshes the
// session token with the one on this request
func (h *Handler) bind(c echo.Context, id string) (*consultation.Orchestrator, error) {
	o, err := h.registry.Get(id)
	if err != nil {
		h.forget(id)
		return nil, err
	}

	h.mu.Lock()
	s, ok := h.sessions[id]
	h.mu.Unlock()
	if !ok {
		return nil, domain.ErrConsultationNotFound
	}

	claims := c.Get(contextClaims).(*auth.JWTClaims)
	if s.clinicianID != claims.ClinicianID {
		return nil, errForbidden
	}
	s.token.Set(c.Get(contextToken).(string))
	return o, nil
}

func (h *Handler) forget(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, id)
}

func (h *Handler) respondError(c echo.Context, err error) error {
	status, code := errorStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.String("path", c.Path()), zap.Error(err))
	} else {
		h.logger.Warn("Request rejected", zap.String("path", c.Path()), zap.Error(err))
	}
	return c.JSON(status, ErrorResponse{
		Error:   code,
		Message: err.Error(),
	})
}

func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrConsultationNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, errForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, domain.ErrInvalidAmount):
		return http.StatusBadRequest, "invalid_amount"
	case errors.Is(err, domain.ErrAlreadyRecording):
		return http.StatusConflict, "already_recording"
	case errors.Is(err, domain.ErrDeviceUnavailable):
		return http.StatusConflict, "device_unavailable"
	case errors.Is(err, domain.ErrRequestInFlight):
		return http.StatusConflict, "request_in_flight"
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, domain.ErrConsultationClosed):
		return http.StatusGone, "consultation_closed"
	case errors.Is(err, domain.ErrBillingSubmissionFailed):
		return http.StatusBadGateway, "billing_failed"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
