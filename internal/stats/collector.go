package stats

import (
	"sort"
	"strings"
	"time"

	"tasknlp/internal/audit"
)

type Stats struct {
	Status        string          `json:"status"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	Port          int             `json:"port"`
	Requests      RequestStats    `json:"requests"`
	Entities      EntityStats     `json:"entities"`
	Types         []TypeStats     `json:"types"`
	Latency       LatencyStats    `json:"latency"`
	Recent        []RecentRequest `json:"recent,omitempty"`
}

type RequestStats struct {
	Total       int            `json:"total"`
	Failed      int            `json:"failed"`
	ByOperation map[string]int `json:"by_operation"`
	PerMinute   float64        `json:"per_minute"`
	Last5Minute []int          `json:"last_5_minute"`
}

type EntityStats struct {
	Total  int            `json:"total"`
	ByType map[string]int `json:"by_type"`
}

type TypeStats struct {
	Type          string  `json:"type"`
	Requests      int     `json:"requests"`
	AvgConfidence float64 `json:"avg_confidence"`
}

type LatencyStats struct {
	ClassifyMs float64 `json:"classify_ms"`
	ExtractMs  float64 `json:"extract_ms"`
	TotalMs    float64 `json:"total_ms"`
}

type RecentRequest struct {
	Timestamp  string         `json:"timestamp"`
	ID         string         `json:"id"`
	Operation  string         `json:"operation"`
	StatusCode int            `json:"status_code"`
	Type       string         `json:"type,omitempty"`
	Entities   map[string]int `json:"entities,omitempty"`
	TotalMs    float64        `json:"total_ms"`
}

type Options struct {
	Now     time.Time
	Status  string
	Uptime  time.Duration
	Port    int
	RecentN int
}

type mean struct {
	sum float64
	n   int
}

func (m *mean) add(v float64) {
	if v > 0 {
		m.sum += v
		m.n++
	}
}

func (m mean) value() float64 {
	if m.n == 0 {
		return 0
	}
	return m.sum / float64(m.n)
}

// CollectFromEntries aggregates audit entries, oldest first, into Stats.
func CollectFromEntries(entries []audit.Entry, opts Options) Stats {
	now := opts.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	recentN := opts.RecentN
	if recentN <= 0 {
		recentN = 20
	}

	out := Stats{
		Status:        opts.Status,
		UptimeSeconds: int64(opts.Uptime.Seconds()),
		Port:          opts.Port,
		Requests:      RequestStats{ByOperation: map[string]int{}, Last5Minute: make([]int, 5)},
		Entities:      EntityStats{ByType: map[string]int{}},
		Types:         []TypeStats{},
	}
	if out.Status == "" {
		out.Status = "stopped"
	}

	types := map[string]*TypeStats{}
	confidence := map[string]*mean{}
	var classify, extract, total mean

	for _, e := range entries {
		out.Requests.Total++
		out.Requests.ByOperation[e.Operation]++
		if e.StatusCode >= 400 || e.Error != "" {
			out.Requests.Failed++
		}

		for typ, n := range e.Entities {
			typ = strings.ToUpper(strings.TrimSpace(typ))
			if typ == "" || n <= 0 {
				continue
			}
			out.Entities.ByType[typ] += n
			out.Entities.Total += n
		}

		if e.Type != "" {
			ts, ok := types[e.Type]
			if !ok {
				ts = &TypeStats{Type: e.Type}
				types[e.Type] = ts
				confidence[e.Type] = &mean{}
			}
			ts.Requests++
			confidence[e.Type].add(e.Confidence)
		}

		if !opts.Now.IsZero() && e.Timestamp != "" {
			if ts, err := time.Parse(time.RFC3339Nano, e.Timestamp); err == nil {
				delta := now.Sub(ts)
				if delta >= 0 && delta < 5*time.Minute {
					idx := int(delta / time.Minute)
					out.Requests.Last5Minute[4-idx]++
				}
			}
		}

		classify.add(e.ClassifyLatencyMs)
		extract.add(e.ExtractLatencyMs)
		total.add(e.TotalLatencyMs)
	}

	sum5 := 0
	for _, n := range out.Requests.Last5Minute {
		sum5 += n
	}
	out.Requests.PerMinute = float64(sum5) / 5

	out.Latency = LatencyStats{ClassifyMs: classify.value(), ExtractMs: extract.value(), TotalMs: total.value()}

	for typ, ts := range types {
		ts.AvgConfidence = confidence[typ].value()
		out.Types = append(out.Types, *ts)
	}
	sort.Slice(out.Types, func(i, j int) bool {
		if out.Types[i].Requests == out.Types[j].Requests {
			return out.Types[i].Type < out.Types[j].Type
		}
		return out.Types[i].Requests > out.Types[j].Requests
	})

	for i := len(entries) - 1; i >= 0 && len(out.Recent) < recentN; i-- {
		e := entries[i]
		out.Recent = append(out.Recent, RecentRequest{
			Timestamp:  e.Timestamp,
			ID:         e.ID,
			Operation:  e.Operation,
			StatusCode: e.StatusCode,
			Type:       e.Type,
			Entities:   e.Entities,
			TotalMs:    e.TotalLatencyMs,
		})
	}
	return out
}
