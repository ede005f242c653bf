package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tasknlp/internal/analyze"
	"tasknlp/internal/audit"
	"tasknlp/internal/classify"
	"tasknlp/internal/config"
	"tasknlp/internal/ner"
	"tasknlp/internal/stats"
)

type fakeClassifier struct {
	err error
}

func (f fakeClassifier) Classify(context.Context, string) (classify.Result, error) {
	if f.err != nil {
		return classify.Result{}, f.err
	}
	return classify.Result{Type: "event", Confidence: 0.75}, nil
}

type fakeExtractor struct {
	err error
}

func (f fakeExtractor) Extract(context.Context, string) (ner.EntityCollection, error) {
	if f.err != nil {
		return nil, f.err
	}
	return ner.EntityCollection{"PER": {"Jean Dupont"}, "LOC": {"Paris"}}, nil
}

func newTestServer(t *testing.T, a Analyzer) (*httptest.Server, *State) {
	t.Helper()
	dir := t.TempDir()
	auditFile := filepath.Join(dir, "audit.log")
	al, err := audit.NewJSONLLogger(auditFile)
	require.NoError(t, err)

	state := &State{
		Analyzer:  a,
		Audit:     al,
		AuditFile: auditFile,
		Config:    config.ServerConfig{Port: 8000, CORSOrigins: []string{"*"}, MaxBodyBytes: 1024},
	}
	ts := httptest.NewServer(NewRouter(state))
	t.Cleanup(ts.Close)
	return ts, state
}

func post(t *testing.T, url, body string) (*http.Response, map[string]interface{}) {
	t.Helper()
	res, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer res.Body.Close()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&out))
	return res, out
}

func TestRoot(t *testing.T) {
	ts, _ := newTestServer(t, analyze.New(fakeClassifier{}, fakeExtractor{}))

	res, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	defer res.Body.Close()
	var out map[string]string
	require.NoError(t, json.NewDecoder(res.Body).Decode(&out))
	assert.Equal(t, map[string]string{"message": "FastAPI NLP Model is running!"}, out)

	hb, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	hb.Body.Close()
	assert.Equal(t, http.StatusOK, hb.StatusCode)
}

func TestOperations(t *testing.T) {
	ts, _ := newTestServer(t, analyze.New(fakeClassifier{}, fakeExtractor{}))
	body := `{"text":"Jean Dupont habite Paris"}`
	entities := map[string]interface{}{
		"PER": []interface{}{"Jean Dupont"},
		"LOC": []interface{}{"Paris"},
	}

	for _, suffix := range []string{"/", ""} {
		res, out := post(t, ts.URL+"/predict-type"+suffix, body)
		assert.Equal(t, http.StatusOK, res.StatusCode)
		assert.Equal(t, "event", out["type"])
		assert.InDelta(t, 0.75, out["confidence"], 1e-9)
		assert.NotEmpty(t, res.Header.Get("X-Trace-Id"))

		res, out = post(t, ts.URL+"/extract-entities"+suffix, body)
		assert.Equal(t, http.StatusOK, res.StatusCode)
		assert.Equal(t, entities, out["entities"])

		res, out = post(t, ts.URL+"/analyze-text"+suffix, body)
		assert.Equal(t, http.StatusOK, res.StatusCode)
		assert.Equal(t, "event", out["type"])
		assert.Equal(t, entities, out["entities"])
	}
}

func TestRequestErrors(t *testing.T) {
	boom := errors.New("inference crashed")
	tests := []struct {
		name     string
		analyzer Analyzer
		path     string
		body     string
		status   int
		contains string
	}{
		{"missing text", analyze.New(fakeClassifier{}, fakeExtractor{}), "/predict-type/", `{}`, http.StatusBadRequest, "required"},
		{"whitespace text", analyze.New(fakeClassifier{}, fakeExtractor{}), "/analyze-text/", `{"text":"   "}`, http.StatusBadRequest, analyze.ErrEmptyText.Error()},
		{"bad json", analyze.New(fakeClassifier{}, fakeExtractor{}), "/extract-entities/", `{"text":`, http.StatusBadRequest, "invalid JSON"},
		{"too large", analyze.New(fakeClassifier{}, fakeExtractor{}), "/predict-type/", `{"text":"` + strings.Repeat("a", 2048) + `"}`, http.StatusRequestEntityTooLarge, "too large"},
		{"no tagger", analyze.New(fakeClassifier{}, nil), "/extract-entities/", `{"text":"Jean"}`, http.StatusServiceUnavailable, "unavailable"},
		{"no classifier", analyze.New(nil, fakeExtractor{}), "/analyze-text/", `{"text":"Jean"}`, http.StatusServiceUnavailable, "unavailable"},
		{"collaborator failure", analyze.New(fakeClassifier{}, fakeExtractor{err: boom}), "/analyze-text/", `{"text":"Jean"}`, http.StatusInternalServerError, boom.Error()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, _ := newTestServer(t, tt.analyzer)
			res, out := post(t, ts.URL+tt.path, tt.body)
			assert.Equal(t, tt.status, res.StatusCode)
			assert.Contains(t, out["error"], tt.contains)
			assert.NotContains(t, out, "type")
			assert.NotContains(t, out, "entities")
		})
	}
}

func TestStatsFromAudit(t *testing.T) {
	ts, state := newTestServer(t, analyze.New(fakeClassifier{}, fakeExtractor{}))
	post(t, ts.URL+"/predict-type/", `{"text":"x"}`)
	post(t, ts.URL+"/analyze-text/", `{"text":"Jean Dupont habite Paris"}`)
	post(t, ts.URL+"/analyze-text/", `{"text":" "}`)

	entries, err := audit.ParseFile(state.AuditFile)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, audit.OpPredictType, entries[0].Operation)
	assert.NotEmpty(t, entries[0].ID)
	assert.NotEmpty(t, entries[0].RequestID)
	assert.Equal(t, map[string]int{"PER": 1, "LOC": 1}, entries[1].Entities)
	assert.Equal(t, 24, entries[1].TextLength)
	assert.Equal(t, http.StatusBadRequest, entries[2].StatusCode)

	res, err := http.Get(ts.URL + "/api/stats")
	require.NoError(t, err)
	defer res.Body.Close()
	var st stats.Stats
	require.NoError(t, json.NewDecoder(res.Body).Decode(&st))
	assert.Equal(t, "running", st.Status)
	assert.Equal(t, 3, st.Requests.Total)
	assert.Equal(t, 1, st.Requests.Failed)
	assert.Equal(t, 2, st.Requests.ByOperation[audit.OpAnalyzeText])
	assert.Equal(t, 2, st.Entities.Total)
	require.Len(t, st.Types, 1)
	assert.Equal(t, 2, st.Types[0].Requests)
}

func TestCORS(t *testing.T) {
	ts, _ := newTestServer(t, analyze.New(fakeClassifier{}, fakeExtractor{}))

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/analyze-text/", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	res.Body.Close()
	assert.NotEmpty(t, res.Header.Get("Access-Control-Allow-Origin"))
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(analyze.ErrEmptyText))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(ner.ErrTaggerUnavailable))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(classify.ErrClassifierUnavailable))
	assert.Equal(t, http.StatusRequestEntityTooLarge, statusFor(&http.MaxBytesError{Limit: 1}))
	assert.Equal(t, http.StatusInternalServerError, statusFor(context.DeadlineExceeded))
}
