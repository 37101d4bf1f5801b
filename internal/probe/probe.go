package probe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/pulsewatch/internal/domain"
	"github.com/hamed0406/pulsewatch/internal/secrets"
)

const defaultTimeout = 10 * time.Second

// Outcome is the normalized result every protocol handler returns.
//
// Fields:
//   - StatusCode: HTTP status when there was a response; nil otherwise.
//   - Reason: one of the domain.Reason* codes when OK is false.
//   - Details: protocol-specific payload, see the Details implementations.
type Outcome struct {
	StatusCode *int
	LatencyMs  float64
	OK         bool
	Reason     string
	Error      string
	Details    Details
}

// Result pairs an outcome with the effective service type it was probed as.
type Result struct {
	Type    domain.ServiceType
	Outcome Outcome
}

// ConfigError is a bad service definition. It is fatal for that service's
// check only.
type ConfigError struct {
	ServiceID domain.ServiceID
	Field     string
	Msg       string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("service %q: %s: %s", e.ServiceID, e.Field, e.Msg)
}

// Resolver turns a stored target into a usable one. *secrets.Keyring
// implements it.
type Resolver interface {
	Resolve(raw string, shape secrets.ShapeDetector) (string, error)
}

// Request is what a handler needs to run one probe.
type Request struct {
	Service      domain.Service
	Target       string
	Timeout      time.Duration
	MaxLatencyMs *float64
}

type handler func(ctx context.Context, rel *releaser, req Request) Outcome

// Engine dispatches a service to its protocol handler.
type Engine struct {
	Secrets  Resolver
	Logger   *zap.Logger
	handlers map[domain.ServiceType]handler
}

func NewEngine(res Resolver, httpChecker *HTTPChecker, logger *zap.Logger) *Engine {
	if httpChecker == nil {
		httpChecker = NewHTTPChecker(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		Secrets: res,
		Logger:  logger,
		handlers: map[domain.ServiceType]handler{
			domain.TypeHTTP:     httpChecker.check,
			domain.TypePostgres: checkPostgres,
			domain.TypeMySQL:    checkMySQL,
			domain.TypeRedis:    checkRedis,
			domain.TypeRabbitMQ: checkRabbitMQ,
			domain.TypeNATS:     checkNATS,
		},
	}
}

// EffectiveType resolves the service type: service override, then defaults,
// then http.
func EffectiveType(svc domain.Service, d domain.Defaults) domain.ServiceType {
	if t := domain.NormalizeType(svc.Type); t != "" {
		return t
	}
	if t := domain.NormalizeType(d.Type); t != "" {
		return t
	}
	return domain.TypeHTTP
}

// Check runs one probe. Probe failures are reported in the outcome; only a
// bad service definition, a handler panic or cancellation of ctx return an
// error.
func (e *Engine) Check(ctx context.Context, svc domain.Service, d domain.Defaults) (Result, error) {
	typ := EffectiveType(svc, d)
	h, ok := e.handlers[typ]
	if !ok {
		return Result{Type: typ}, &ConfigError{ServiceID: svc.ID, Field: "type", Msg: fmt.Sprintf("unsupported type %q", typ)}
	}
	if strings.TrimSpace(svc.Target) == "" {
		return Result{Type: typ}, &ConfigError{ServiceID: svc.ID, Field: "target", Msg: "missing"}
	}

	target, err := e.resolve(svc.Target, typ)
	if err != nil {
		e.Logger.Warn("probe_undecipherable_target",
			zap.String("service_id", string(svc.ID)),
			zap.Error(err),
		)
		return Result{Type: typ, Outcome: Outcome{
			OK:     false,
			Reason: domain.ReasonUndecipherableSource,
			Error:  err.Error(),
		}}, nil
	}

	timeout := time.Duration(svc.EffectiveTimeout(d)) * time.Millisecond
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	req := Request{
		Service:      svc,
		Target:       target,
		Timeout:      timeout,
		MaxLatencyMs: svc.EffectiveMaxLatency(d),
	}

	start := time.Now()
	out, err := timebox(ctx, timeout, func(ctx context.Context, rel *releaser) Outcome {
		return h(ctx, rel, req)
	})
	switch {
	case errors.Is(err, errTimedOut):
		out = Outcome{
			OK:        false,
			Reason:    domain.ReasonRequestFailure,
			LatencyMs: sinceMs(start),
			Error:     fmt.Sprintf("timeout after %dms", timeout.Milliseconds()),
			Details:   TimeoutDetails{TimeoutMs: timeout.Milliseconds()},
		}
	case err != nil:
		return Result{Type: typ}, err
	}
	return Result{Type: typ, Outcome: out}, nil
}

func (e *Engine) resolve(raw string, typ domain.ServiceType) (string, error) {
	shape := secrets.DetectorFor(typ)
	if e.Secrets == nil {
		v := strings.TrimSpace(raw)
		if !shape(v) {
			return "", fmt.Errorf("%w: no keyring configured", secrets.ErrUndecipherable)
		}
		return v, nil
	}
	return e.Secrets.Resolve(raw, shape)
}

func sinceMs(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}

func overLatency(latencyMs float64, max *float64) bool {
	return max != nil && latencyMs > *max
}

func failure(reason string, latency float64, err error) Outcome {
	return Outcome{OK: false, Reason: reason, LatencyMs: latency, Error: err.Error()}
}
