package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hangarlabs/aw139-certainty/internal/application"
	"github.com/hangarlabs/aw139-certainty/internal/certainty"
	"github.com/hangarlabs/aw139-certainty/internal/domain"
	"github.com/hangarlabs/aw139-certainty/internal/logger"
)

// CertaintyRequest is the body of POST /api/v1/certainty. It scores a
// diagnosis that was produced elsewhere against its supporting documents.
type CertaintyRequest struct {
	Documents []domain.RetrievedDocument `json:"documents"`
	Diagnosis string                     `json:"diagnosis"`
	Query     string                     `json:"query"`
	ATACode   string                     `json:"ata_code"`
	TaskType  string                     `json:"task_type"`
	HasAWDP   bool                       `json:"has_awdp"`
}

// Input converts the request to scorer input.
func (r CertaintyRequest) Input() certainty.Input {
	return certainty.Input{
		Documents: r.Documents,
		Diagnosis: r.Diagnosis,
		Query:     r.Query,
		Filter:    domain.ParseManualFilter(r.ATACode),
		TaskType:  domain.ParseTaskType(r.TaskType),
		HasAWDP:   r.HasAWDP,
	}
}

// ErrorBody is the JSON error envelope.
type ErrorBody struct {
	Code      string   `json:"code"`
	Message   string   `json:"message"`
	Details   []string `json:"details,omitempty"`
	RequestID string   `json:"request_id,omitempty"`
}

// ErrorResponse wraps ErrorBody.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status       string    `json:"status"`
	Pipeline     string    `json:"pipeline,omitempty"`
	PipelineHash string    `json:"pipeline_hash,omitempty"`
	Units        []string  `json:"units,omitempty"`
	Documents    int       `json:"documents"`
	IndexLoaded  time.Time `json:"index_loaded_at"`
	LLMEnabled   bool      `json:"llm_enabled"`
	Threshold    int       `json:"certainty_threshold"`
}

func (s *Server) handleDiagnose(c *gin.Context) {
	var req domain.DiagnosisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.abortBadJSON(c, err)
		return
	}

	report, err := s.service.Diagnose(c.Request.Context(), req)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) handleCertainty(c *gin.Context) {
	var req CertaintyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.abortBadJSON(c, err)
		return
	}

	res, err := s.service.Score(c.Request.Context(), req.Input())
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleHealth(c *gin.Context) {
	resp := HealthResponse{Status: "ok"}
	if s.app.Config != nil {
		resp.LLMEnabled = s.app.Config.LLM.Enabled
		resp.Threshold = s.app.Config.Certainty.Threshold
	}
	if p := s.app.Pipeline; p != nil {
		resp.Pipeline = p.Definition.Metadata.Name
		resp.PipelineHash = p.Hash
		resp.Units = p.Order
	}
	if store := s.app.Store; store != nil {
		resp.Documents = store.Len()
		resp.IndexLoaded = store.LoadedAt()
	}
	if resp.Pipeline == "" || resp.Documents == 0 {
		resp.Status = "degraded"
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) abortBadJSON(c *gin.Context, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(http.StatusBadRequest, s.errorResponse(c, "invalid_json", "request body is not valid JSON", nil))
}

// abortWithError maps service errors to HTTP statuses.
func (s *Server) abortWithError(c *gin.Context, err error) {
	_ = c.Error(err)

	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		c.AbortWithStatusJSON(http.StatusBadRequest,
			s.errorResponse(c, "invalid_request", "request validation failed", verr.Errors))
	case errors.Is(err, context.DeadlineExceeded):
		c.AbortWithStatusJSON(http.StatusGatewayTimeout,
			s.errorResponse(c, "timeout", "diagnosis did not finish in time", nil))
	case errors.Is(err, context.Canceled):
		// The client went away; nobody reads this.
		c.AbortWithStatus(499)
	case errors.Is(err, domain.ErrBudgetExceeded):
		c.AbortWithStatusJSON(http.StatusTooManyRequests,
			s.errorResponse(c, "budget_exceeded", err.Error(), nil))
	case errors.Is(err, domain.ErrRetrievalUnavailable), errors.Is(err, application.ErrServiceNotConfigured):
		c.AbortWithStatusJSON(http.StatusServiceUnavailable,
			s.errorResponse(c, "unavailable", err.Error(), nil))
	default:
		logger.FromContext(c.Request.Context()).Error("request failed", "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError,
			s.errorResponse(c, "internal", "internal server error", nil))
	}
}

func (s *Server) errorResponse(c *gin.Context, code, msg string, details []string) ErrorResponse {
	id, _ := application.RequestIDFromContext(c.Request.Context())
	return ErrorResponse{Error: ErrorBody{Code: code, Message: msg, Details: details, RequestID: id}}
}
