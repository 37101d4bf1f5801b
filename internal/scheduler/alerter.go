package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hamed0406/pulsewatch/internal/domain"
	"github.com/hamed0406/pulsewatch/internal/metrics"
	"github.com/hamed0406/pulsewatch/internal/notify"
	"github.com/hamed0406/pulsewatch/internal/repo"
)

const DefaultFailureThreshold = 2

// Alerter turns the hit stream into outage, recovery and degraded alerts.
// State is loaded and stored per service; the scheduler guarantees a single
// writer per service.
type Alerter struct {
	States    repo.StateStore
	Transport notify.Transport
	Logger    *zap.Logger
	Threshold int
	// MessageDomain is the right-hand side of generated Message-IDs.
	MessageDomain string
}

func NewAlerter(states repo.StateStore, transport notify.Transport, logger *zap.Logger) *Alerter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Alerter{
		States:        states,
		Transport:     transport,
		Logger:        logger,
		Threshold:     DefaultFailureThreshold,
		MessageDomain: "pulsewatch",
	}
}

// Handle applies one hit. Without a transport, or with every category
// disabled, it does nothing and writes no state.
func (a *Alerter) Handle(ctx context.Context, svc domain.Service, prefs domain.NotificationPrefs, hit domain.Hit) error {
	if a.Transport == nil || !prefs.AnyEnabled() {
		return nil
	}
	st, err := a.States.GetState(ctx, svc.ID)
	if err != nil {
		return fmt.Errorf("load notification state: %w", err)
	}

	next, sendErr := a.step(ctx, svc, prefs, hit, st)
	if next != st {
		if err := a.States.PutState(ctx, svc.ID, next); err != nil {
			return fmt.Errorf("store notification state: %w", err)
		}
	}
	return sendErr
}

// step returns the next state. A transition whose alert could not be sent is
// not committed, so the next hit retries it.
func (a *Alerter) step(ctx context.Context, svc domain.Service, prefs domain.NotificationPrefs, hit domain.Hit, st domain.NotificationState) (domain.NotificationState, error) {
	threshold := a.Threshold
	if threshold < 1 {
		threshold = DefaultFailureThreshold
	}

	if !hit.OK {
		if st.Outage.Active {
			return st, nil
		}
		st.ConsecutiveFailures++
		if st.ConsecutiveFailures < threshold {
			return st, nil
		}
		var id string
		if prefs.Outage {
			msg := outageMessage(svc, hit, prefs.Recipients)
			msg.MessageID = a.newMessageID()
			sent, err := a.send(ctx, msg)
			if err != nil {
				return st, err
			}
			id = sent
		}
		st.Outage = domain.OutageAlert{Active: true, MessageID: id, StartedAt: hit.Timestamp}
		st.ConsecutiveFailures = 0
		st.Degraded = domain.DegradedAlert{}
		return st, nil
	}

	if st.Outage.Active {
		if prefs.Recovery {
			msg := recoveryMessage(svc, hit, st.Outage, prefs.Recipients)
			msg.MessageID = a.newMessageID()
			msg.InReplyTo = st.Outage.MessageID
			if _, err := a.send(ctx, msg); err != nil {
				return st, err
			}
		}
		st.Outage = domain.OutageAlert{}
		st.ConsecutiveFailures = 0
		return st, nil
	}

	st.ConsecutiveFailures = 0
	if prefs.DegradedThresholdMs == nil || hit.LatencyMs == nil {
		return st, nil
	}
	limit, lat := *prefs.DegradedThresholdMs, *hit.LatencyMs
	switch {
	case lat > limit && !st.Degraded.Active:
		if prefs.Degraded {
			msg := degradedMessage(svc, hit, limit, prefs.Recipients)
			msg.MessageID = a.newMessageID()
			if _, err := a.send(ctx, msg); err != nil {
				return st, err
			}
		}
		st.Degraded = domain.DegradedAlert{Active: true, StartedAt: hit.Timestamp}
	case lat <= limit && st.Degraded.Active:
		st.Degraded = domain.DegradedAlert{}
	}
	return st, nil
}

func (a *Alerter) send(ctx context.Context, msg notify.Message) (string, error) {
	id, err := a.Transport.Send(ctx, msg)
	delivered := notify.Delivered(err)
	metrics.ObserveAlert(string(msg.Kind), delivered)
	if !delivered {
		return "", fmt.Errorf("send %s alert: %w", msg.Kind, err)
	}
	if err != nil {
		a.Logger.Warn("notify_partial_delivery",
			zap.String("service_id", msg.ServiceID),
			zap.String("kind", string(msg.Kind)),
			zap.Error(err),
		)
	}
	a.Logger.Info("alert_sent",
		zap.String("service_id", msg.ServiceID),
		zap.String("kind", string(msg.Kind)),
		zap.String("message_id", id),
	)
	if id == "" {
		id = msg.MessageID
	}
	return id, nil
}

func (a *Alerter) newMessageID() string {
	return fmt.Sprintf("<%s@%s>", uuid.NewString(), a.MessageDomain)
}

func serviceName(svc domain.Service) string {
	if svc.Name != "" {
		return svc.Name
	}
	return string(svc.ID)
}

func hitSummary(svc domain.Service, hit domain.Hit) string {
	httpTxt := "n/a"
	if hit.StatusCode != nil {
		httpTxt = fmt.Sprintf("%d", *hit.StatusCode)
	}
	latencyTxt := "n/a"
	if hit.LatencyMs != nil {
		latencyTxt = fmt.Sprintf("%.0f ms", *hit.LatencyMs)
	}
	reason := hit.Reason
	if reason == "" {
		reason = "ok"
	}
	text := fmt.Sprintf(
		"Service: %s (%s)\nType: %s\nHTTP: %s\nLatency: %s\nReason: %s\nChecked: %s",
		serviceName(svc), svc.ID, hit.Type, httpTxt, latencyTxt, reason, hit.Time().Format(time.RFC3339),
	)
	if hit.Error != nil && *hit.Error != "" {
		text += "\nError: " + *hit.Error
	}
	return text
}

func outageMessage(svc domain.Service, hit domain.Hit, to []string) notify.Message {
	return notify.Message{
		Kind:      notify.KindOutage,
		ServiceID: string(svc.ID),
		Subject:   "🔴 Outage: " + serviceName(svc),
		Text:      hitSummary(svc, hit),
		To:        to,
	}
}

func recoveryMessage(svc domain.Service, hit domain.Hit, o domain.OutageAlert, to []string) notify.Message {
	text := hitSummary(svc, hit)
	if o.StartedAt > 0 {
		down := time.Duration(hit.Timestamp-o.StartedAt) * time.Millisecond
		text += "\nDown for: " + down.Round(time.Second).String()
	}
	return notify.Message{
		Kind:      notify.KindRecovery,
		ServiceID: string(svc.ID),
		Subject:   "🟢 Recovered: " + serviceName(svc),
		Text:      text,
		To:        to,
	}
}

func degradedMessage(svc domain.Service, hit domain.Hit, limit float64, to []string) notify.Message {
	return notify.Message{
		Kind:      notify.KindDegraded,
		ServiceID: string(svc.ID),
		Subject:   "🟡 Degraded: " + serviceName(svc),
		Text:      hitSummary(svc, hit) + fmt.Sprintf("\nThreshold: %.0f ms", limit),
		To:        to,
	}
}
