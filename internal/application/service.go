package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/hangarlabs/aw139-certainty/internal/certainty"
	"github.com/hangarlabs/aw139-certainty/internal/domain"
	"github.com/hangarlabs/aw139-certainty/internal/logger"
	"github.com/hangarlabs/aw139-certainty/internal/ports"
)

// Metric names recorded by the diagnosis service.
const (
	MetricDiagnosisLatency  = "diagnosis_latency"
	MetricDiagnosisRequests = "diagnosis_requests"
)

// ErrServiceNotConfigured is returned by Diagnose when the service was built
// without a pipeline.
var ErrServiceNotConfigured = errors.New("diagnosis pipeline not configured")

type requestIDKey struct{}

// ContextWithRequestID returns a context carrying the correlation id of the
// request. Diagnose uses it instead of generating one.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the correlation id set by
// ContextWithRequestID.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey{}).(string)
	return id, ok && id != ""
}

// DiagnosisService answers diagnosis requests with the loaded pipeline and
// scores standalone diagnoses with the certainty scorer.
type DiagnosisService struct {
	loaded   *LoadedPipeline
	scorer   *certainty.Scorer
	validate *validator.Validate
	metrics  ports.MetricsCollector
	timeout  time.Duration
	now      func() time.Time
}

// ServiceOption configures a DiagnosisService.
type ServiceOption func(*DiagnosisService)

// WithServiceMetrics records request latency and outcome counters.
func WithServiceMetrics(m ports.MetricsCollector) ServiceOption {
	return func(s *DiagnosisService) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithRequestTimeout bounds each pipeline run. Zero disables the bound.
func WithRequestTimeout(d time.Duration) ServiceOption {
	return func(s *DiagnosisService) { s.timeout = d }
}

// NewDiagnosisService creates a service. loaded may be nil for a scoring
// only service; scorer nil uses the default scorer.
func NewDiagnosisService(loaded *LoadedPipeline, scorer *certainty.Scorer, opts ...ServiceOption) *DiagnosisService {
	if scorer == nil {
		scorer = certainty.Default()
	}
	s := &DiagnosisService{
		loaded:   loaded,
		scorer:   scorer,
		validate: validator.New(),
		metrics:  ports.NopMetrics{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Pipeline returns the loaded pipeline, or nil.
func (s *DiagnosisService) Pipeline() *LoadedPipeline { return s.loaded }

// Scorer returns the certainty scorer.
func (s *DiagnosisService) Scorer() *certainty.Scorer { return s.scorer }

// Diagnose validates req, runs the diagnosis pipeline and returns the
// assembled report. Invalid requests return a *domain.ValidationError.
func (s *DiagnosisService) Diagnose(ctx context.Context, req domain.DiagnosisRequest) (domain.DiagnosisReport, error) {
	if s.loaded == nil || s.loaded.Pipeline == nil {
		return domain.DiagnosisReport{}, ErrServiceNotConfigured
	}

	req = req.Normalized()
	if err := s.validateRequest(req); err != nil {
		s.record("invalid", 0)
		return domain.DiagnosisReport{}, err
	}

	requestID, ok := RequestIDFromContext(ctx)
	if !ok {
		requestID = uuid.NewString()
	}
	log := logger.FromContext(ctx).With("request_id", requestID)
	ctx = logger.ContextWithLogger(ctx, log)

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := s.now()
	state := domain.NewState().
		WithExecutionContext(domain.ExecutionContext{
			PipelineID: s.loaded.Pipeline.ID(),
			RequestID:  requestID,
		})
	state = domain.With(state, domain.KeyRequest, req)

	log.Debug("diagnosis started", "task_type", req.TaskType, "ata_code", req.ATACode)

	out, err := s.loaded.Pipeline.Execute(ctx, state)
	elapsed := s.now().Sub(start)
	if err != nil {
		s.record("error", elapsed)
		log.Error("diagnosis failed", "error", err, "duration", elapsed)
		return domain.DiagnosisReport{}, fmt.Errorf("diagnose %s: %w", requestID, err)
	}

	report, err := domain.MustGet(out, domain.KeyReport)
	if err != nil {
		s.record("error", elapsed)
		return domain.DiagnosisReport{}, fmt.Errorf("diagnose %s: %w", requestID, err)
	}
	report.RequestID = requestID
	report.ProcessingTimeMs = float64(elapsed.Microseconds()) / 1000

	s.record(string(report.CertaintyStatus), elapsed)
	log.Info("diagnosis finished",
		"certainty_score", report.CertaintyScore,
		"certainty_status", report.CertaintyStatus,
		"caps", len(report.CapsApplied),
		"tokens", report.TokensUsed,
		"duration", elapsed,
	)
	return report, nil
}

// Score runs the certainty scorer on a caller supplied diagnosis.
func (s *DiagnosisService) Score(ctx context.Context, in certainty.Input) (domain.CertaintyResult, error) {
	verr := domain.NewValidationError("certainty_input")
	if strings.TrimSpace(in.Diagnosis) == "" {
		verr.AddError("diagnosis is required")
	}
	for i, doc := range in.Documents {
		if doc.DocPath == "" && doc.Content == "" {
			verr.AddError(fmt.Sprintf("documents[%d] has neither doc_path nor content", i))
		}
	}
	if verr.HasErrors() {
		return domain.CertaintyResult{}, verr
	}

	res := s.scorer.Score(in)
	logger.FromContext(ctx).Debug("diagnosis scored",
		"certainty_score", res.Score,
		"certainty_status", res.Status,
		"caps", len(res.CapsApplied),
	)
	return res, nil
}

func (s *DiagnosisService) validateRequest(req domain.DiagnosisRequest) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}
	verr := domain.NewValidationError("diagnosis_request")
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		verr.AddError(err.Error())
		return verr
	}
	for _, fe := range fieldErrs {
		verr.AddError(fmt.Sprintf("%s failed on %s", fieldName(fe), fe.Tag()))
	}
	return verr
}

// fieldName maps a validator field to its JSON name.
func fieldName(fe validator.FieldError) string {
	switch fe.Field() {
	case "Query":
		return "query"
	case "SerialNumber":
		return "serial_number"
	case "ATACode":
		return "ata_code"
	case "TaskType":
		return "task_type"
	case "AircraftConfiguration":
		return "aircraft_configuration"
	case "ConfigurationName":
		return "configuration_name"
	}
	return fe.Field()
}

func (s *DiagnosisService) record(status string, elapsed time.Duration) {
	labels := map[string]string{"status": status}
	s.metrics.RecordCounter(MetricDiagnosisRequests, 1, labels)
	if elapsed > 0 {
		s.metrics.RecordLatency(MetricDiagnosisLatency, elapsed, labels)
	}
}
