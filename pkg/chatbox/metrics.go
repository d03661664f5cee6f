// Copyright 2024-2026 Aiku AI

package chatbox

import (
	"github.com/hashicorp/go-metrics"
)

var (
	MetricRelayedCount            = []string{"chatbox", "broker", "relayed", "count"}
	MetricPersistErrorCount       = []string{"chatbox", "broker", "persist", "error", "count"}
	MetricConnectionCreatedCount  = []string{"chatbox", "connection", "created", "count"}
	MetricConnectionResolvedCount = []string{"chatbox", "connection", "resolved", "count"}
	MetricAllocationErrorCount    = []string{"chatbox", "allocation", "error", "count"}
	MetricDeactivationCount       = []string{"chatbox", "connection", "deactivated", "count"}
)

type TelemetryLabel string

var (
	LabelSide   TelemetryLabel = "side"
	LabelOrigin TelemetryLabel = "origin"
	LabelBox    TelemetryLabel = "chatbox"
)

func (lab TelemetryLabel) M(val string) metrics.Label {
	return metrics.Label{Name: string(lab), Value: val}
}
