package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Operation names recorded in entries.
const (
	OpPredictType     = "predict_type"
	OpExtractEntities = "extract_entities"
	OpAnalyzeText     = "analyze_text"
)

// Entry is one served request. Only the entity counts are kept, never the
// request text or entity surface forms.
type Entry struct {
	ID                string         `json:"id"`
	Timestamp         string         `json:"timestamp"`
	RequestID         string         `json:"request_id,omitempty"`
	Operation         string         `json:"operation"`
	StatusCode        int            `json:"status_code"`
	TextLength        int            `json:"text_length"`
	Type              string         `json:"type,omitempty"`
	Confidence        float64        `json:"confidence,omitempty"`
	Entities          map[string]int `json:"entities,omitempty"`
	ClassifyLatencyMs float64        `json:"classify_latency_ms,omitempty"`
	ExtractLatencyMs  float64        `json:"extract_latency_ms,omitempty"`
	TotalLatencyMs    float64        `json:"total_latency_ms"`
	Error             string         `json:"error,omitempty"`
}

type Logger interface {
	Log(entry Entry) error
}

// Discard drops every entry.
type Discard struct{}

func (Discard) Log(Entry) error { return nil }

type JSONLLogger struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

func NewJSONLLogger(path string) (*JSONLLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create audit log: %w", err)
	}
	_ = f.Close()
	return &JSONLLogger{path: path, now: time.Now}, nil
}

func (l *JSONLLogger) Path() string {
	return l.path
}

// Log stamps entry with an ID and timestamp and appends it as one JSON line.
func (l *JSONLLogger) Log(entry Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now().UTC()
	if entry.ID == "" {
		entry.ID = ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String()
	}
	entry.Timestamp = now.Format(time.RFC3339Nano)

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	if err := enc.Encode(entry); err != nil {
		return fmt.Errorf("write audit log: %w", err)
	}
	return nil
}
