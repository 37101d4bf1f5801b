package probe

// Details is the protocol-specific part of an outcome. Each handler has its
// own payload type; Map renders it for the stored hit.
type Details interface {
	Map() map[string]any
}

type HTTPDetails struct {
	Method    string
	BodyBytes int
	Truncated bool
	DNS       string // DNS classification, only set on transport failures
}

func (d HTTPDetails) Map() map[string]any {
	m := map[string]any{"method": d.Method, "bodyBytes": d.BodyBytes}
	if d.Truncated {
		m["truncated"] = true
	}
	if d.DNS != "" {
		m["dns"] = d.DNS
	}
	return m
}

type SQLDetails struct {
	RowCount int
}

func (d SQLDetails) Map() map[string]any { return map[string]any{"rowCount": d.RowCount} }

type RedisDetails struct {
	Response string
}

func (d RedisDetails) Map() map[string]any { return map[string]any{"response": d.Response} }

type AMQPDetails struct {
	Queue string
}

func (d AMQPDetails) Map() map[string]any { return map[string]any{"queue": d.Queue} }

type NATSDetails struct {
	ServerID string
	RTTMs    float64
}

func (d NATSDetails) Map() map[string]any {
	return map[string]any{"serverId": d.ServerID, "rttMs": d.RTTMs}
}

type TimeoutDetails struct {
	TimeoutMs int64
}

func (d TimeoutDetails) Map() map[string]any { return map[string]any{"timeoutMs": d.TimeoutMs} }
