package trace

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"tasknlp/internal/logger"
)

type requestTraceContextKey string

const traceContextKey requestTraceContextKey = "trace"

// DefaultSampleRate is the fraction of requests whose phase timings are logged.
const DefaultSampleRate = 0.1

// RequestTrace records phase timings of one request. Classify and Extract
// fields are written by different goroutines and read only after both finish.
type RequestTrace struct {
	ID        string
	Operation string

	Start time.Time

	ClassifyStart time.Time
	ClassifyEnd   time.Time

	ExtractStart time.Time
	ExtractEnd   time.Time

	Sampled bool

	logOnce sync.Once
}

func NewRequestTrace(operation string) *RequestTrace {
	return newRequestTrace(operation, DefaultSampleRate)
}

func newRequestTrace(operation string, rate float64) *RequestTrace {
	return &RequestTrace{
		ID:        uuid.NewString(),
		Operation: operation,
		Start:     time.Now(),
		Sampled:   rand.Float64() < rate,
	}
}

func WithContext(ctx context.Context, tr *RequestTrace) context.Context {
	if tr == nil {
		return ctx
	}
	return context.WithValue(ctx, traceContextKey, tr)
}

func FromContext(ctx context.Context) (*RequestTrace, bool) {
	if ctx == nil {
		return nil, false
	}
	tr, ok := ctx.Value(traceContextKey).(*RequestTrace)
	return tr, ok
}

// Fields returns the phase durations measured up to end.
func (t *RequestTrace) Fields(end time.Time) logrus.Fields {
	return logrus.Fields{
		"trace":     t.ID,
		"operation": t.Operation,
		"total":     durationBetween(t.Start, end),
		"classify":  durationBetween(t.ClassifyStart, t.ClassifyEnd),
		"extract":   durationBetween(t.ExtractStart, t.ExtractEnd),
	}
}

func (t *RequestTrace) LogAt(end time.Time) {
	if t == nil || !t.Sampled {
		return
	}
	t.logOnce.Do(func() {
		logger.GetLogger().WithFields(t.Fields(end)).Info("request trace")
	})
}

func durationBetween(start, end time.Time) time.Duration {
	if start.IsZero() || end.IsZero() || end.Before(start) {
		return 0
	}
	return end.Sub(start)
}
