package domain

import "time"

// Hit is one recorded probe outcome. It is created once and never updated.
type Hit struct {
	ID                string         `json:"id"`
	ServiceID         ServiceID      `json:"serviceId"`
	WorkspaceID       string         `json:"workspaceId"`
	Timestamp         int64          `json:"timestamp"` // epoch millis
	StatusCode        *int           `json:"statusCode"`
	LatencyMs         *float64       `json:"latencyMs"`
	OK                bool           `json:"ok"`
	Success           bool           `json:"success"` // mirrors OK for older readers
	ExpectedLatencyMs *float64       `json:"expectedLatencyMs"`
	Reason            string         `json:"reason,omitempty"`
	Error             *string        `json:"error"`
	Type              ServiceType    `json:"type"`
	Details           map[string]any `json:"details"`
}

func (h Hit) Time() time.Time {
	return time.UnixMilli(h.Timestamp).UTC()
}

type Bucket struct {
	Bucket            int       `json:"bucket"`
	StartingTime      time.Time `json:"starting_time"`
	EndingTime        time.Time `json:"ending_time"`
	SuccessCount      int       `json:"success_count"`
	FailureCount      int       `json:"failure_count"`
	Total             int       `json:"total"`
	SuccessPercentage float64   `json:"success_percentage"`
	MinLatency        float64   `json:"min_latency"`
	MaxLatency        float64   `json:"max_latency"`
	MedianLatency     float64   `json:"median_latency"`
	Q1Latency         float64   `json:"q1_latency"`
	Q3Latency         float64   `json:"q3_latency"`
	AvgLatency        float64   `json:"avg_latency"`
}

type OutageStatus string

const (
	OutageOpen     OutageStatus = "OPEN"
	OutageResolved OutageStatus = "RESOLVED"
)

type OutageFailure struct {
	Timestamp  time.Time `json:"timestamp"`
	Reason     string    `json:"reason"`
	StatusCode *int      `json:"statusCode"`
	LatencyMs  *float64  `json:"latencyMs"`
	Error      *string   `json:"error"`
}

// Outage is derived from the hit stream on demand; it is never persisted.
type Outage struct {
	ID         string          `json:"id"`
	ServiceID  ServiceID       `json:"serviceId"`
	Status     OutageStatus    `json:"status"`
	Start      time.Time       `json:"start"`
	End        time.Time       `json:"end"`
	CreatedAt  time.Time       `json:"createdAt"`
	ResolvedAt *time.Time      `json:"resolvedAt"`
	Comments   []string        `json:"comments"`
	Title      *string         `json:"title"`
	Failures   []OutageFailure `json:"failures"`
}

type OutageAlert struct {
	Active    bool   `json:"active"`
	MessageID string `json:"messageId,omitempty"`
	StartedAt int64  `json:"startedAt,omitempty"`
}

type DegradedAlert struct {
	Active    bool  `json:"active"`
	StartedAt int64 `json:"startedAt,omitempty"`
}

// NotificationState is the per-service alerting state persisted between probes.
type NotificationState struct {
	Outage              OutageAlert   `json:"outage"`
	Degraded            DegradedAlert `json:"degraded"`
	ConsecutiveFailures int           `json:"consecutiveFailures"`
}
