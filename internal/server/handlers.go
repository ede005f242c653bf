package server

import (
	"context"
	"fmt"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"tasknlp/internal/audit"
	"tasknlp/internal/ner"
	"tasknlp/internal/stats"
	"tasknlp/internal/trace"
)

var validate = validator.New()

// RootMessage is matched verbatim by clients of the earlier deployment.
const RootMessage = "FastAPI NLP Model is running!"

// TextRequest is the body accepted by every model operation.
type TextRequest struct {
	Text string `json:"text" validate:"required"`
}

type EntitiesResponse struct {
	Entities ner.EntityCollection `json:"entities"`
}

func RootHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_ = EncodeJSON(w, http.StatusOK, map[string]string{"message": RootMessage})
	}
}

// operation runs one model call for a decoded request and fills the audit
// entry with what it produced.
type operation func(ctx context.Context, text string, entry *audit.Entry) (interface{}, error)

func PredictTypeHandler(state *State) http.HandlerFunc {
	return handleOperation(state, audit.OpPredictType, func(ctx context.Context, text string, entry *audit.Entry) (interface{}, error) {
		res, err := state.Analyzer.PredictType(ctx, text)
		if err != nil {
			return nil, err
		}
		entry.Type, entry.Confidence = res.Type, res.Confidence
		return res, nil
	})
}

func ExtractEntitiesHandler(state *State) http.HandlerFunc {
	return handleOperation(state, audit.OpExtractEntities, func(ctx context.Context, text string, entry *audit.Entry) (interface{}, error) {
		entities, err := state.Analyzer.ExtractEntities(ctx, text)
		if err != nil {
			return nil, err
		}
		entry.Entities = entities.CountByType()
		return EntitiesResponse{Entities: entities}, nil
	})
}

func AnalyzeTextHandler(state *State) http.HandlerFunc {
	return handleOperation(state, audit.OpAnalyzeText, func(ctx context.Context, text string, entry *audit.Entry) (interface{}, error) {
		res, err := state.Analyzer.Analyze(ctx, text)
		if err != nil {
			return nil, err
		}
		entry.Type, entry.Confidence = res.Type, res.Confidence
		entry.Entities = res.Entities.CountByType()
		return res, nil
	})
}

func handleOperation(state *State, name string, op operation) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tr := trace.NewRequestTrace(name)
		w.Header().Set("X-Trace-Id", tr.ID)
		entry := audit.Entry{RequestID: middleware.GetReqID(r.Context()), Operation: name}

		status := http.StatusOK
		var body interface{}
		text, err := decodeText(w, r, state.Config.MaxBodyBytes)
		if err == nil {
			ctx := trace.WithContext(r.Context(), tr)
			if state.Timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, state.Timeout)
				defer cancel()
			}
			body, err = op(ctx, text, &entry)
		}
		if err != nil {
			status = statusFor(err)
			entry.Error = err.Error()
		}

		end := time.Now()
		tr.LogAt(end)
		entry.StatusCode = status
		entry.TextLength = utf8.RuneCountInString(text)
		entry.ClassifyLatencyMs = millis(tr.ClassifyStart, tr.ClassifyEnd)
		entry.ExtractLatencyMs = millis(tr.ExtractStart, tr.ExtractEnd)
		entry.TotalLatencyMs = millis(tr.Start, end)
		if err := state.Audit.Log(entry); err != nil {
			log.Warnf("audit log: %v", err)
		}

		if err != nil {
			RenderError(w, err)
			return
		}
		if err := EncodeJSON(w, status, body); err != nil {
			log.Warnf("write %s response: %v", name, err)
		}
	}
}

func decodeText(w http.ResponseWriter, r *http.Request, maxBytes int64) (string, error) {
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	}
	var req TextRequest
	if err := DecodeJSON(r, &req); err != nil {
		return "", err
	}
	if err := validate.Struct(req); err != nil {
		return "", fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return req.Text, nil
}

func StatsHandler(state *State) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var entries []audit.Entry
		if state.AuditFile != "" {
			var err error
			entries, err = audit.ParseFile(state.AuditFile)
			if err != nil {
				RenderError(w, fmt.Errorf("read audit log: %w", err))
				return
			}
		}
		now := time.Now().UTC()
		st := stats.CollectFromEntries(entries, stats.Options{
			Now:    now,
			Status: "running",
			Uptime: now.Sub(state.Started),
			Port:   state.Config.Port,
		})
		_ = EncodeJSON(w, http.StatusOK, st)
	}
}

func millis(start, end time.Time) float64 {
	if start.IsZero() || end.IsZero() || end.Before(start) {
		return 0
	}
	return float64(end.Sub(start).Microseconds()) / 1000
}
