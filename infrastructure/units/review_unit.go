package units

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/hangarlabs/aw139-certainty/internal/certainty"
	"github.com/hangarlabs/aw139-certainty/internal/domain"
	"github.com/hangarlabs/aw139-certainty/internal/evidence"
	"github.com/hangarlabs/aw139-certainty/internal/logger"
	"github.com/hangarlabs/aw139-certainty/internal/ports"
)

var _ ports.Unit = (*ReviewUnit)(nil)

// Post-scoring caps applied by the review stage.
const (
	DefaultFaultWithoutCausesCap       = 80
	DefaultRemoveInstallWithoutStepCap = 75
)

// ReviewConfig configures the ReviewUnit.
type ReviewConfig struct {
	// Threshold is the score at which a diagnosis is safe to proceed.
	Threshold int `yaml:"threshold" json:"threshold" validate:"min=1,max=100"`

	// FaultWithoutCausesCap bounds fault isolation diagnoses that name no
	// likely cause.
	FaultWithoutCausesCap int `yaml:"fault_without_causes_cap" json:"fault_without_causes_cap" validate:"min=40,max=100"`

	// RemoveInstallWithoutStepsCap bounds remove and install procedures
	// without numbered steps.
	RemoveInstallWithoutStepsCap int `yaml:"remove_install_without_steps_cap" json:"remove_install_without_steps_cap" validate:"min=40,max=100"`
}

func defaultReviewConfig() ReviewConfig {
	return ReviewConfig{
		Threshold:                    domain.DefaultCertaintyThreshold,
		FaultWithoutCausesCap:        DefaultFaultWithoutCausesCap,
		RemoveInstallWithoutStepsCap: DefaultRemoveInstallWithoutStepCap,
	}
}

// ReviewUnit is the supervisor stage. It applies the task specific caps
// that depend on extraction results, writes the supervisor notes, records
// certainty metrics and assembles the DiagnosisReport.
type ReviewUnit struct {
	name    string
	config  ReviewConfig
	metrics ports.MetricsCollector
	tracer  trace.Tracer
}

// NewReviewUnit creates a ReviewUnit. A nil metrics collector discards
// observations.
func NewReviewUnit(name string, metrics ports.MetricsCollector, config ReviewConfig) (*ReviewUnit, error) {
	if name == "" {
		return nil, ErrEmptyUnitName
	}
	if err := validateConfig(config); err != nil {
		return nil, err
	}
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	return &ReviewUnit{name: name, config: config, metrics: metrics, tracer: otel.Tracer("review-unit")}, nil
}

// Name returns the unit's identifier.
func (ru *ReviewUnit) Name() string { return ru.name }

// Execute stores the capped certainty result and the report.
func (ru *ReviewUnit) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	ctx, span := ru.tracer.Start(ctx, "ReviewUnit.Execute",
		trace.WithAttributes(
			attribute.String("unit.type", "review"),
			attribute.String("unit.id", ru.name),
			attribute.Int("config.threshold", ru.config.Threshold),
		),
	)
	defer span.End()

	req, err := domain.MustGet(state, domain.KeyRequest)
	if err != nil {
		return state, ru.fail(span, err)
	}
	text, err := domain.MustGet(state, domain.KeyDiagnosis)
	if err != nil {
		return state, ru.fail(span, err)
	}
	res, err := domain.MustGet(state, domain.KeyCertainty)
	if err != nil {
		return state, ru.fail(span, err)
	}
	ex, err := domain.MustGet(state, domain.KeyExtraction)
	if err != nil {
		return state, ru.fail(span, err)
	}
	cc, _ := domain.Get(state, domain.KeyCrossCheck)
	ata, _ := domain.Get(state, domain.KeyATAChapter)
	source, _ := domain.Get(state, domain.KeyDiagnosisSource)
	requestID, _ := domain.Get(state, domain.KeyRequestID)

	task := req.Task()
	before := len(res.CapsApplied)
	if task == domain.TaskFaultIsolation && len(ex.LikelyCauses) == 0 {
		res.ApplyCap(ru.config.FaultWithoutCausesCap, ru.config.Threshold,
			fmt.Sprintf("CAP %d%%: Fault isolation without likely causes", ru.config.FaultWithoutCausesCap))
	}
	if task.IsRemoveInstall() && !cc.HasProcedureSteps {
		res.ApplyCap(ru.config.RemoveInstallWithoutStepsCap, ru.config.Threshold,
			fmt.Sprintf("CAP %d%%: Remove/install procedure without procedure steps", ru.config.RemoveInstallWithoutStepsCap))
	}
	res.Status = domain.StatusFor(res.Score, ru.config.Threshold)

	ru.recordMetrics(task, res)

	report := domain.DiagnosisReport{
		RequestID:          requestID,
		Query:              req.Query,
		SerialNumber:       req.SerialNumber,
		TaskType:           task,
		Diagnosis:          text,
		ATAChapter:         ata,
		CertaintyScore:     res.Score,
		CertaintyStatus:    res.Status,
		CertaintyBreakdown: res.Breakdown,
		CapsApplied:        res.CapsApplied,
		AffectedParts:      ex.AffectedParts,
		LikelyCauses:       ex.LikelyCauses,
		RecommendedTests:   ex.RecommendedTests,
		References:         ex.References,
		CrossCheckStatus:   cc.Status,
		SupervisorNotes:    evidence.SupervisorNotes(res.Score, ru.config.Threshold, task),
		Source:             source,
		TokensUsed:         state.Usage().Tokens,
	}

	span.SetAttributes(
		attribute.Int("certainty.score", res.Score),
		attribute.String("certainty.status", string(res.Status)),
		attribute.Int("review.caps_added", len(res.CapsApplied)-before),
	)
	logger.FromContext(ctx).Info("diagnosis reviewed",
		"unit", ru.name,
		"task_type", task,
		"score", res.Score,
		"status", res.Status,
		"cross_check", cc.Status,
		"caps", len(res.CapsApplied),
	)

	return state.WithMultiple(map[string]any{
		domain.KeyCertainty.Name(): res,
		domain.KeyReport.Name():    report,
	}), nil
}

func (ru *ReviewUnit) fail(span trace.Span, err error) error {
	err = fmt.Errorf("unit %s: %w", ru.name, err)
	span.RecordError(err)
	return err
}

func (ru *ReviewUnit) recordMetrics(task domain.TaskType, res domain.CertaintyResult) {
	ru.metrics.RecordHistogram("certainty_score", float64(res.Score), map[string]string{
		"task_type": string(task),
	})
	ru.metrics.RecordCounter("certainty_status_total", 1, map[string]string{
		"task_type": string(task),
		"status":    string(res.Status),
	})
	for _, reason := range res.CapsApplied {
		ru.metrics.RecordCounter("certainty_caps_applied_total", 1, map[string]string{
			"cap": capLabel(reason),
		})
	}
}

// capLabel reduces a cap reason such as "CAP 85%: ..." to its limit so the
// metric label stays low-cardinality.
func capLabel(reason string) string {
	head, _, _ := strings.Cut(reason, ":")
	head = strings.TrimSuffix(strings.TrimPrefix(head, "CAP "), "%")
	if _, err := strconv.Atoi(head); err != nil {
		return "other"
	}
	return head
}

// Validate checks that the unit is properly configured.
func (ru *ReviewUnit) Validate() error { return validateConfig(ru.config) }

// CreateReviewUnit builds a ReviewUnit from a parameter map. The metrics
// collector is taken from params[DepMetrics]. When a scorer is injected
// under params[DepScorer] its threshold is the default.
func CreateReviewUnit(id string, params map[string]any) (ports.Unit, error) {
	metrics, _ := params[DepMetrics].(ports.MetricsCollector)
	defaults := defaultReviewConfig()
	if scorer, ok := params[DepScorer].(*certainty.Scorer); ok && scorer != nil {
		defaults.Threshold = scorer.Threshold()
	}
	cfg, err := decodeConfig(withoutDependencies(params), defaults)
	if err != nil {
		return nil, err
	}
	return NewReviewUnit(id, metrics, cfg)
}
