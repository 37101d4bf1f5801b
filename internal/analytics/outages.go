package analytics

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/hamed0406/pulsewatch/internal/domain"
)

// outageNamespace scopes outage ids; changing it changes every id.
var outageNamespace = uuid.MustParse("6f1c2a4e-9d3b-5e8f-a7c1-2b4d6e8f0a13")

// OutageID is stable for a given service and failure-run start.
func OutageID(serviceID domain.ServiceID, startMs int64) string {
	return uuid.NewSHA1(outageNamespace, []byte(fmt.Sprintf("%s:%d", serviceID, startMs))).String()
}

// FailureReason picks the reason reported for a failing hit.
func FailureReason(h domain.Hit) string {
	switch {
	case h.Reason != "":
		return h.Reason
	case h.Error != nil && *h.Error != "":
		return domain.ReasonRequestFailure
	case h.StatusCode != nil && *h.StatusCode >= 400:
		return domain.ReasonStatusCode
	case h.LatencyMs != nil && h.ExpectedLatencyMs != nil && *h.LatencyMs > *h.ExpectedLatencyMs:
		return domain.ReasonLatency
	default:
		return domain.ReasonUnknown
	}
}

// BuildOutages derives outages from the hit stream. A run of failing hits
// opens an outage; the next passing hit resolves it. A run still failing at
// the end of the stream is OPEN and ends at its last failure. Outages shorter
// than minimumDurationMs are dropped; OPEN ones are measured up to now.
func BuildOutages(hits []domain.Hit, serviceID domain.ServiceID, manual []domain.ManualOutage, minimumDurationMs int64, now time.Time) []domain.Outage {
	byID := make(map[string]domain.ManualOutage, len(manual))
	for _, m := range manual {
		byID[m.ID] = m
	}

	var (
		out      []domain.Outage
		cur      *domain.Outage
		lastFail int64
	)
	for _, h := range sortedCopy(hits) {
		if !h.OK {
			if cur == nil {
				cur = &domain.Outage{
					ID:        OutageID(serviceID, h.Timestamp),
					ServiceID: serviceID,
					Start:     h.Time(),
					CreatedAt: h.Time(),
					Comments:  []string{},
				}
			}
			cur.Failures = append(cur.Failures, domain.OutageFailure{
				Timestamp:  h.Time(),
				Reason:     FailureReason(h),
				StatusCode: h.StatusCode,
				LatencyMs:  h.LatencyMs,
				Error:      h.Error,
			})
			lastFail = h.Timestamp
			continue
		}
		if cur != nil {
			end := h.Time()
			cur.Status = domain.OutageResolved
			cur.End = end
			cur.ResolvedAt = &end
			out = append(out, *cur)
			cur = nil
		}
	}
	if cur != nil {
		cur.Status = domain.OutageOpen
		cur.End = time.UnixMilli(lastFail).UTC()
		out = append(out, *cur)
	}

	kept := make([]domain.Outage, 0, len(out))
	for _, o := range out {
		if m, ok := byID[o.ID]; ok {
			if m.Title != "" {
				title := m.Title
				o.Title = &title
			}
			if len(m.Comments) > 0 {
				o.Comments = append([]string(nil), m.Comments...)
			}
		}
		dur := o.End.Sub(o.Start)
		if o.Status == domain.OutageOpen {
			dur = now.Sub(o.Start)
		}
		if dur.Milliseconds() < minimumDurationMs {
			continue
		}
		kept = append(kept, o)
	}
	return kept
}

// NewestFirst orders outages by start, most recent first.
func NewestFirst(outages []domain.Outage) []domain.Outage {
	sort.SliceStable(outages, func(i, j int) bool { return outages[i].Start.After(outages[j].Start) })
	return outages
}
