package probe

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/hamed0406/pulsewatch/internal/domain"
)

// checkRabbitMQ connects, opens a channel and declares a server-named
// exclusive queue. The queue goes away with the connection.
func checkRabbitMQ(ctx context.Context, rel *releaser, req Request) Outcome {
	start := time.Now()
	conn, err := amqp.DialConfig(req.Target, amqp.Config{
		Dial:       amqp.DefaultDial(req.Timeout),
		Properties: amqp.Table{"connection_name": "pulsewatch-probe"},
	})
	if err != nil {
		return failure(domain.ReasonRequestFailure, sinceMs(start), fmt.Errorf("connect amqp: %w", err))
	}
	rel.onRelease(func() { _ = conn.Close() })

	ch, err := conn.Channel()
	if err != nil {
		return failure(domain.ReasonRequestFailure, sinceMs(start), fmt.Errorf("open amqp channel: %w", err))
	}
	rel.onRelease(func() { _ = ch.Close() })

	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return failure(domain.ReasonRequestFailure, sinceMs(start), fmt.Errorf("declare amqp queue: %w", err))
	}
	if ctx.Err() != nil {
		return failure(domain.ReasonRequestFailure, sinceMs(start), ctx.Err())
	}

	latency := sinceMs(start)
	out := Outcome{OK: true, LatencyMs: latency, Details: AMQPDetails{Queue: q.Name}}
	if overLatency(latency, req.MaxLatencyMs) {
		out.OK, out.Reason = false, domain.ReasonLatency
		out.Error = fmt.Sprintf("latency %.2fms over %.2fms", latency, *req.MaxLatencyMs)
	}
	return out
}
