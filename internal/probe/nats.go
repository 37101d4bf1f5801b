package probe

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/hamed0406/pulsewatch/internal/domain"
)

func checkNATS(ctx context.Context, rel *releaser, req Request) Outcome {
	start := time.Now()
	nc, err := nats.Connect(req.Target,
		nats.Name("pulsewatch-probe"),
		nats.Timeout(req.Timeout),
		nats.NoReconnect(),
	)
	if err != nil {
		return failure(domain.ReasonRequestFailure, sinceMs(start), fmt.Errorf("connect nats: %w", err))
	}
	rel.onRelease(nc.Close)

	rtt, err := nc.RTT()
	if err != nil {
		return failure(domain.ReasonRequestFailure, sinceMs(start), fmt.Errorf("nats rtt: %w", err))
	}
	if ctx.Err() != nil {
		return failure(domain.ReasonRequestFailure, sinceMs(start), ctx.Err())
	}

	latency := sinceMs(start)
	out := Outcome{OK: true, LatencyMs: latency, Details: NATSDetails{
		ServerID: nc.ConnectedServerId(),
		RTTMs:    float64(rtt.Microseconds()) / 1000,
	}}
	if overLatency(latency, req.MaxLatencyMs) {
		out.OK, out.Reason = false, domain.ReasonLatency
		out.Error = fmt.Sprintf("latency %.2fms over %.2fms", latency, *req.MaxLatencyMs)
	}
	return out
}
