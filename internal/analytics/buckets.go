package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/hamed0406/pulsewatch/internal/domain"
)

// Averaged holds the mean of each non-empty bucket's own aggregates.
type Averaged struct {
	SuccessPercentage float64 `json:"success_percentage"`
	MinLatency        float64 `json:"min_latency"`
	MaxLatency        float64 `json:"max_latency"`
	MedianLatency     float64 `json:"median_latency"`
	Q1Latency         float64 `json:"q1_latency"`
	Q3Latency         float64 `json:"q3_latency"`
	AvgLatency        float64 `json:"avg_latency"`
}

type Summary struct {
	Buckets           []domain.Bucket `json:"buckets"`
	Averaged          Averaged        `json:"averaged_data"`
	Total             int             `json:"total"`
	SuccessCount      int             `json:"success_count"`
	FailureCount      int             `json:"failure_count"`
	SuccessPercentage float64         `json:"success_percentage"`
}

// Bucketize splits [rangeEndMs-intervalMs, rangeEndMs] into bucketCount equal
// windows. Every hit lands in exactly one bucket; offsets outside the range
// are clamped to the first or last bucket.
func Bucketize(hits []domain.Hit, bucketCount int, intervalMs, rangeEndMs int64) Summary {
	sum := Summary{Buckets: []domain.Bucket{}, SuccessPercentage: 100}
	if bucketCount <= 0 || intervalMs <= 0 {
		return sum
	}

	start := rangeEndMs - intervalMs
	width := float64(intervalMs) / float64(bucketCount)

	type acc struct {
		ok, fail  int
		latencies []float64
	}
	accs := make([]acc, bucketCount)
	for _, h := range sortedCopy(hits) {
		idx := int(math.Floor(float64(h.Timestamp-start) / width))
		if idx < 0 {
			idx = 0
		}
		if idx > bucketCount-1 {
			idx = bucketCount - 1
		}
		a := &accs[idx]
		if h.OK {
			a.ok++
		} else {
			a.fail++
		}
		if h.LatencyMs != nil {
			a.latencies = append(a.latencies, *h.LatencyMs)
		}
	}

	var avg Averaged
	nonEmpty := 0
	for i, a := range accs {
		b := domain.Bucket{
			Bucket:            i,
			StartingTime:      msTime(float64(start) + float64(i)*width),
			EndingTime:        msTime(float64(start) + float64(i+1)*width),
			SuccessCount:      a.ok,
			FailureCount:      a.fail,
			Total:             a.ok + a.fail,
			SuccessPercentage: 100,
		}
		if b.Total > 0 {
			b.SuccessPercentage = round2(100 * float64(a.ok) / float64(b.Total))
		}
		if len(a.latencies) > 0 {
			sort.Float64s(a.latencies)
			b.MinLatency = round2(a.latencies[0])
			b.MaxLatency = round2(a.latencies[len(a.latencies)-1])
			b.Q1Latency = round2(Percentile(a.latencies, 0.25))
			b.MedianLatency = round2(Percentile(a.latencies, 0.5))
			b.Q3Latency = round2(Percentile(a.latencies, 0.75))
			b.AvgLatency = round2(mean(a.latencies))
		}
		sum.Buckets = append(sum.Buckets, b)

		sum.Total += b.Total
		sum.SuccessCount += b.SuccessCount
		sum.FailureCount += b.FailureCount
		if b.Total == 0 {
			continue
		}
		nonEmpty++
		avg.SuccessPercentage += b.SuccessPercentage
		avg.MinLatency += b.MinLatency
		avg.MaxLatency += b.MaxLatency
		avg.MedianLatency += b.MedianLatency
		avg.Q1Latency += b.Q1Latency
		avg.Q3Latency += b.Q3Latency
		avg.AvgLatency += b.AvgLatency
	}

	if nonEmpty > 0 {
		n := float64(nonEmpty)
		sum.Averaged = Averaged{
			SuccessPercentage: round2(avg.SuccessPercentage / n),
			MinLatency:        round2(avg.MinLatency / n),
			MaxLatency:        round2(avg.MaxLatency / n),
			MedianLatency:     round2(avg.MedianLatency / n),
			Q1Latency:         round2(avg.Q1Latency / n),
			Q3Latency:         round2(avg.Q3Latency / n),
			AvgLatency:        round2(avg.AvgLatency / n),
		}
	} else {
		sum.Averaged.SuccessPercentage = 100
	}
	if sum.Total > 0 {
		sum.SuccessPercentage = round2(100 * float64(sum.SuccessCount) / float64(sum.Total))
	}
	return sum
}

// Percentile interpolates linearly at position (n-1)*p over sorted values.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}
	pos := float64(n-1) * p
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if hi >= n {
		hi = n - 1
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

func mean(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	s := 0.0
	for _, x := range v {
		s += x
	}
	return s / float64(len(v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func msTime(ms float64) time.Time {
	return time.UnixMilli(int64(math.Round(ms))).UTC()
}

func sortedCopy(hits []domain.Hit) []domain.Hit {
	out := make([]domain.Hit, len(hits))
	copy(out, hits)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out
}
