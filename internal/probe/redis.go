package probe

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hamed0406/pulsewatch/internal/domain"
)

func normalizeReply(s string) string { return strings.ToUpper(strings.TrimSpace(s)) }

func checkRedis(ctx context.Context, rel *releaser, req Request) Outcome {
	start := time.Now()
	opts, err := redis.ParseURL(req.Target)
	if err != nil {
		return failure(domain.ReasonRequestFailure, sinceMs(start), fmt.Errorf("parse redis target: %w", err))
	}
	opts.DialTimeout = req.Timeout
	opts.ReadTimeout = req.Timeout
	opts.WriteTimeout = req.Timeout
	opts.MaxRetries = -1
	opts.PoolSize = 1

	client := redis.NewClient(opts)
	rel.onRelease(func() { _ = client.Close() })

	reply, err := client.Ping(ctx).Result()
	latency := sinceMs(start)
	if err != nil {
		return failure(domain.ReasonRequestFailure, latency, fmt.Errorf("redis ping: %w", err))
	}

	out := Outcome{OK: true, LatencyMs: latency, Details: RedisDetails{Response: reply}}
	want := req.Service.ExpectedResponse
	if strings.TrimSpace(want) == "" {
		want = "PONG"
	}
	switch {
	case normalizeReply(reply) != normalizeReply(want):
		out.OK, out.Reason = false, domain.ReasonUnexpectedResponse
		out.Error = fmt.Sprintf("unexpected reply %q", reply)
	case overLatency(latency, req.MaxLatencyMs):
		out.OK, out.Reason = false, domain.ReasonLatency
		out.Error = fmt.Sprintf("latency %.2fms over %.2fms", latency, *req.MaxLatencyMs)
	}
	return out
}
