package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "swarmgate"

// Metrics holds all SwarmGate metric instruments.
type Metrics struct {
	DelegationsStarted   metric.Int64Counter
	DelegationsCompleted metric.Int64Counter
	DelegationsFailed    metric.Int64Counter
	ApprovalsRequested   metric.Int64Counter
	ApprovalsTimedOut    metric.Int64Counter
	DelegationDuration   metric.Float64Histogram
	ResponseConfidence   metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.DelegationsStarted, err = meter.Int64Counter("swarmgate.delegations.started",
		metric.WithDescription("Number of delegations dispatched"))
	if err != nil {
		return nil, err
	}

	m.DelegationsCompleted, err = meter.Int64Counter("swarmgate.delegations.completed",
		metric.WithDescription("Number of delegations completed"))
	if err != nil {
		return nil, err
	}

	m.DelegationsFailed, err = meter.Int64Counter("swarmgate.delegations.failed",
		metric.WithDescription("Number of delegations failed"))
	if err != nil {
		return nil, err
	}

	m.ApprovalsRequested, err = meter.Int64Counter("swarmgate.approvals.requested",
		metric.WithDescription("Number of approval requests raised"))
	if err != nil {
		return nil, err
	}

	m.ApprovalsTimedOut, err = meter.Int64Counter("swarmgate.approvals.timed_out",
		metric.WithDescription("Number of approvals that expired unanswered"))
	if err != nil {
		return nil, err
	}

	m.DelegationDuration, err = meter.Float64Histogram("swarmgate.delegation.duration_seconds",
		metric.WithDescription("End-to-end delegation duration in seconds"))
	if err != nil {
		return nil, err
	}

	m.ResponseConfidence, err = meter.Float64Histogram("swarmgate.response.confidence",
		metric.WithDescription("Specialist-reported confidence distribution"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
