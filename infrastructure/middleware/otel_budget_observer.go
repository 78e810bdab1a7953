package middleware

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hangarlabs/aw139-certainty/internal/domain"
	"github.com/hangarlabs/aw139-certainty/internal/ports"
)

var _ BudgetObserver = (*OTelBudgetObserver)(nil)

// Usage ratios at which a span event flags a budget nearing its limit.
const (
	budgetWarningRatio  = 0.8
	budgetCriticalRatio = 0.9
)

// OTelBudgetObserver traces budget checks with OpenTelemetry and reports
// usage to a MetricsCollector. The span lives in the context returned by
// PreCheck, so one observer can serve concurrent requests.
type OTelBudgetObserver struct {
	metrics  ports.MetricsCollector
	unitName string
	tracer   trace.Tracer
}

// NewOTelBudgetObserver creates an observer for unitName. metrics may be
// nil.
func NewOTelBudgetObserver(metrics ports.MetricsCollector, unitName string) *OTelBudgetObserver {
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	return &OTelBudgetObserver{
		metrics:  metrics,
		unitName: unitName,
		tracer:   otel.Tracer("budget-manager"),
	}
}

// WithTracerProvider replaces the global tracer provider.
func (o *OTelBudgetObserver) WithTracerProvider(tp trace.TracerProvider) *OTelBudgetObserver {
	o.tracer = tp.Tracer("budget-manager")
	return o
}

// PreCheck starts the budget span and flags usage close to a limit.
func (o *OTelBudgetObserver) PreCheck(ctx context.Context, usage domain.Usage, budget Budget) context.Context {
	ctx, span := o.tracer.Start(ctx, "BudgetManager.Execute")
	o.addSpanAttributes(span, usage, budget)
	o.checkBudgetThresholds(span, "tokens", usage.Tokens, budget.MaxTokens)
	o.checkBudgetThresholds(span, "calls", usage.Calls, budget.MaxCalls)
	return ctx
}

// PostCheck finalizes the span started by PreCheck and records metrics.
func (o *OTelBudgetObserver) PostCheck(ctx context.Context, usage domain.Usage, budget Budget, elapsed time.Duration, err error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	o.addSpanAttributes(span, usage, budget)
	labels := o.metricLabels(budget)
	o.metrics.RecordLatency("budget_manager_execution", elapsed, labels)

	if err != nil {
		var budgetErr *domain.BudgetExceededError
		if errors.As(err, &budgetErr) {
			span.AddEvent("budget.exceeded", trace.WithAttributes(
				attribute.String("limit_type", budgetErr.LimitType),
				attribute.Int("limit_value", budgetErr.Limit),
				attribute.Int("used_value", budgetErr.Used),
			))
			span.SetStatus(codes.Error, "budget limit exceeded")
			o.metrics.RecordCounter(MetricBudgetExceeded, 1, map[string]string{
				"limit_type": budgetErr.LimitType,
				"unit":       o.unitName,
			})
			return
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}

	span.AddEvent("budget.usage_tracked", trace.WithAttributes(
		attribute.Int64("tokens_consumed", usage.Tokens),
		attribute.Int64("calls_made", usage.Calls),
	))
	o.updateMetrics(usage, budget, labels)
	span.SetStatus(codes.Ok, "")
}

func (o *OTelBudgetObserver) addSpanAttributes(span trace.Span, usage domain.Usage, budget Budget) {
	span.SetAttributes(
		attribute.String("budget.unit", o.unitName),
		attribute.Int64("budget.tokens_used", usage.Tokens),
		attribute.Int64("budget.calls_made", usage.Calls),
	)
	if budget.MaxTokens > 0 {
		span.SetAttributes(
			attribute.Int64("budget.max_tokens", budget.MaxTokens),
			attribute.Int64("budget.remaining_tokens", budget.MaxTokens-usage.Tokens),
		)
	}
	if budget.MaxCalls > 0 {
		span.SetAttributes(
			attribute.Int64("budget.max_calls", budget.MaxCalls),
			attribute.Int64("budget.remaining_calls", budget.MaxCalls-usage.Calls),
		)
	}
}

func (o *OTelBudgetObserver) checkBudgetThresholds(span trace.Span, resource string, used, limit int64) {
	if limit <= 0 {
		return
	}
	ratio := float64(used) / float64(limit)
	var event string
	switch {
	case ratio >= budgetCriticalRatio:
		event = "budget.threshold.critical"
	case ratio >= budgetWarningRatio:
		event = "budget.threshold.warning"
	default:
		return
	}
	span.AddEvent(event, trace.WithAttributes(
		attribute.String("resource_type", resource),
		attribute.Float64("usage_percentage", ratio*100),
	))
}

func (o *OTelBudgetObserver) updateMetrics(usage domain.Usage, budget Budget, labels map[string]string) {
	o.metrics.RecordGauge("budget_tokens_used", float64(usage.Tokens), labels)
	o.metrics.RecordGauge("budget_calls_used", float64(usage.Calls), labels)
	if budget.MaxTokens > 0 {
		o.metrics.RecordGauge("budget_remaining_tokens", float64(budget.MaxTokens-usage.Tokens), labels)
	}
	if budget.MaxCalls > 0 {
		o.metrics.RecordGauge("budget_remaining_calls", float64(budget.MaxCalls-usage.Calls), labels)
	}
}

func (o *OTelBudgetObserver) metricLabels(budget Budget) map[string]string {
	return map[string]string{
		"budget_limit": budgetLimitLabel(budget),
		"unit":         o.unitName,
	}
}

func budgetLimitLabel(budget Budget) string {
	switch {
	case budget.MaxTokens > 0 && budget.MaxCalls > 0:
		return "tokens_and_calls"
	case budget.MaxTokens > 0:
		return "tokens_only"
	case budget.MaxCalls > 0:
		return "calls_only"
	}
	return "unlimited"
}
