package domain

import "strings"

type ServiceID string

type ServiceType string

const (
	TypeHTTP     ServiceType = "http"
	TypePostgres ServiceType = "postgres"
	TypeMySQL    ServiceType = "mysql"
	TypeRedis    ServiceType = "redis"
	TypeRabbitMQ ServiceType = "rabbitmq"
	TypeNATS     ServiceType = "nats"
)

// NormalizeType lowercases t and folds known aliases. Unknown names are
// returned as-is so the caller can report them.
func NormalizeType(t string) ServiceType {
	s := strings.ToLower(strings.TrimSpace(t))
	switch s {
	case "postgresql", "pg":
		return TypePostgres
	case "amqp", "amqps":
		return TypeRabbitMQ
	case "https":
		return TypeHTTP
	}
	return ServiceType(s)
}

func (t ServiceType) Valid() bool {
	switch t {
	case TypeHTTP, TypePostgres, TypeMySQL, TypeRedis, TypeRabbitMQ, TypeNATS:
		return true
	}
	return false
}

// Failure reason codes carried on hits and outage failures.
const (
	ReasonStatusCode           = "STATUS_CODE"
	ReasonLatency              = "LATENCY"
	ReasonExpectedText         = "EXPECTED_TEXT"
	ReasonRowCount             = "ROW_COUNT"
	ReasonUnexpectedResponse   = "UNEXPECTED_RESPONSE"
	ReasonRequestFailure       = "REQUEST_FAILURE"
	ReasonUndecipherableSource = "UNDECIPHERABLE_SOURCE"
	ReasonUnknown              = "UNKNOWN"
)

type RowBounds struct {
	Exact *int `yaml:"exact" json:"exact,omitempty"`
	Min   *int `yaml:"min" json:"min,omitempty"`
	Max   *int `yaml:"max" json:"max,omitempty"`
}

// Satisfied reports whether n rows meet every configured bound.
func (b RowBounds) Satisfied(n int) bool {
	if b.Exact != nil && n != *b.Exact {
		return false
	}
	if b.Min != nil && n < *b.Min {
		return false
	}
	if b.Max != nil && n > *b.Max {
		return false
	}
	return true
}

type NotificationPrefs struct {
	Outage              bool     `yaml:"outage" json:"outage"`
	Recovery            bool     `yaml:"recovery" json:"recovery"`
	Degraded            bool     `yaml:"degraded" json:"degraded"`
	DegradedThresholdMs *float64 `yaml:"degradedThresholdMs" json:"degradedThresholdMs,omitempty"`
	Recipients          []string `yaml:"recipients" json:"recipients,omitempty"`
}

func (p NotificationPrefs) AnyEnabled() bool {
	return p.Outage || p.Recovery || p.Degraded
}

// ManualOutage is operator-authored metadata attached to a computed outage by id.
type ManualOutage struct {
	ID       string   `yaml:"id" json:"id"`
	Title    string   `yaml:"title" json:"title,omitempty"`
	Comments []string `yaml:"comments" json:"comments,omitempty"`
}

type Service struct {
	ID               ServiceID          `yaml:"id" json:"id"`
	Name             string             `yaml:"name" json:"name"`
	Type             string             `yaml:"type" json:"type"`
	Target           string             `yaml:"target" json:"-"`
	Method           string             `yaml:"method" json:"method,omitempty"`
	Headers          map[string]string  `yaml:"headers" json:"-"`
	Body             string             `yaml:"body" json:"-"`
	Query            string             `yaml:"query" json:"-"`
	ExpectedStatus   *int               `yaml:"expectedStatus" json:"expectedStatus,omitempty"`
	ExpectedText     string             `yaml:"expectedText" json:"expectedText,omitempty"`
	ExpectedResponse string             `yaml:"expectedResponse" json:"expectedResponse,omitempty"`
	ExpectedRows     RowBounds          `yaml:"expectedRows" json:"expectedRows"`
	MaxLatencyMs     *float64           `yaml:"maxLatencyMs" json:"maxLatencyMs,omitempty"`
	FollowRedirects  bool               `yaml:"followRedirects" json:"followRedirects"`
	IntervalMs       int64              `yaml:"intervalMs" json:"intervalMs,omitempty"`
	TimeoutMs        int64              `yaml:"timeoutMs" json:"timeoutMs,omitempty"`
	Retention        int64              `yaml:"retention" json:"retention,omitempty"`
	Notifications    *NotificationPrefs `yaml:"notifications" json:"notifications,omitempty"`
	Outages          []ManualOutage     `yaml:"outages" json:"-"`
}

type Defaults struct {
	Type         string   `yaml:"type" json:"type,omitempty"`
	IntervalMs   int64    `yaml:"intervalMs" json:"intervalMs"`
	TimeoutMs    int64    `yaml:"timeoutMs" json:"timeoutMs"`
	MaxLatencyMs *float64 `yaml:"maxLatencyMs" json:"maxLatencyMs,omitempty"`
	Retention    int64    `yaml:"retention" json:"retention"`
	MinOutageMs  int64    `yaml:"minOutageMs" json:"minOutageMs"`
}

type Workspace struct {
	ID            string            `yaml:"id" json:"id"`
	Name          string            `yaml:"name" json:"name"`
	Notifications NotificationPrefs `yaml:"notifications" json:"notifications"`
}

// Fleet is one immutable snapshot of the monitored configuration.
type Fleet struct {
	Workspace Workspace `yaml:"workspace" json:"workspace"`
	Defaults  Defaults  `yaml:"defaults" json:"defaults"`
	Services  []Service `yaml:"services" json:"services"`
}

func (f *Fleet) Service(id ServiceID) (Service, bool) {
	for _, s := range f.Services {
		if s.ID == id {
			return s, true
		}
	}
	return Service{}, false
}

func (s Service) EffectiveInterval(d Defaults) int64 {
	if s.IntervalMs > 0 {
		return s.IntervalMs
	}
	return d.IntervalMs
}

func (s Service) EffectiveTimeout(d Defaults) int64 {
	if s.TimeoutMs > 0 {
		return s.TimeoutMs
	}
	return d.TimeoutMs
}

func (s Service) EffectiveRetention(d Defaults) int64 {
	if s.Retention > 0 {
		return s.Retention
	}
	return d.Retention
}

func (s Service) EffectiveMaxLatency(d Defaults) *float64 {
	if s.MaxLatencyMs != nil {
		return s.MaxLatencyMs
	}
	return d.MaxLatencyMs
}

// EffectiveNotifications picks the service preferences when present, else the workspace's.
func (s Service) EffectiveNotifications(w Workspace) NotificationPrefs {
	if s.Notifications != nil {
		p := *s.Notifications
		if len(p.Recipients) == 0 {
			p.Recipients = w.Notifications.Recipients
		}
		return p
	}
	return w.Notifications
}
