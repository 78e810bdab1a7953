package application

import (
	"context"
	"time"

	"github.com/hangarlabs/aw139-certainty/internal/domain"
	"github.com/hangarlabs/aw139-certainty/internal/ports"
)

// Metric names recorded for every stage run through a UnitAdapter.
const (
	MetricUnitExecution = "unit_execution"
	MetricUnitRuns      = "unit_runs"
)

// UnitAdapter wraps a ports.Unit so it can take part in pipelines and
// layers, and records how long the unit ran and whether it failed.
type UnitAdapter struct {
	unit    ports.Unit
	id      string
	metrics ports.MetricsCollector
}

// NewUnitAdapter wraps unit under id. An empty id falls back to the unit
// name. metrics may be nil.
func NewUnitAdapter(unit ports.Unit, id string, metrics ports.MetricsCollector) *UnitAdapter {
	if id == "" {
		id = unit.Name()
	}
	return &UnitAdapter{unit: unit, id: id, metrics: metrics}
}

// Execute delegates to the wrapped unit.
func (ua *UnitAdapter) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	start := time.Now()
	out, err := ua.unit.Execute(ctx, state)
	if ua.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		labels := map[string]string{"unit": ua.id}
		ua.metrics.RecordLatency(MetricUnitExecution, time.Since(start), labels)
		ua.metrics.RecordCounter(MetricUnitRuns, 1, map[string]string{"unit": ua.id, "status": status})
	}
	return out, err
}

// ID returns the adapter identifier.
func (ua *UnitAdapter) ID() string { return ua.id }

// Unit returns the wrapped unit.
func (ua *UnitAdapter) Unit() ports.Unit { return ua.unit }
