package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	return home
}

func TestLoadDefaults(t *testing.T) {
	home := isolate(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:8000", cfg.Server.Addr())
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.EqualValues(t, 1<<20, cfg.Server.MaxBodyBytes)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, filepath.Join(home, ".tasknlp", "audit.log"), cfg.Log.AuditFile)
	assert.Equal(t, filepath.Join(home, ".tasknlp", "models"), cfg.Models.Root)
	assert.Equal(t, "./models", cfg.Models.LocalDir)
	assert.Equal(t, "tasks-ner", cfg.Models.NER)
	assert.Equal(t, "tasks-type", cfg.Models.Type)
	assert.Equal(t, "tasks-tokenizer", cfg.Models.Tokenizer)
	assert.Equal(t, "camembert-base", cfg.Models.Baseline)
	assert.True(t, cfg.Models.AllowDownload)
	assert.Equal(t, "python", cfg.Inference.Backend)
	assert.Equal(t, 512, cfg.Inference.MaxSeqLen)
	assert.Equal(t, 30*time.Second, cfg.Inference.Timeout)
}

func TestLoadFile(t *testing.T) {
	isolate(t)
	p := filepath.Join(t.TempDir(), "tasknlp.yaml")
	require.NoError(t, os.WriteFile(p, []byte(`server:
  port: 9001
  cors_origins:
    - https://app.example.com
models:
  ner: custom-ner
  allow_download: false
inference:
  backend: native
  timeout: 5s
`), 0o644))

	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, 9001, cfg.Server.Port)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "custom-ner", cfg.Models.NER)
	assert.False(t, cfg.Models.AllowDownload)
	assert.Equal(t, "native", cfg.Inference.Backend)
	assert.Equal(t, 5*time.Second, cfg.Inference.Timeout)
	assert.Equal(t, "tasks-type", cfg.Models.Type)
}

func TestLoadFromHomeDir(t *testing.T) {
	home := isolate(t)
	require.NoError(t, os.MkdirAll(filepath.Join(home, ".tasknlp"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(home, ".tasknlp", "config.yaml"), []byte("log:\n  level: debug\n"), 0o644))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadEnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("TASKNLP_SERVER_PORT", "9100")
	t.Setenv("TASKNLP_MODELS_BASELINE", "bert-base-multilingual")
	t.Setenv("TASKNLP_INFERENCE_TIMEOUT", "2m")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "bert-base-multilingual", cfg.Models.Baseline)
	assert.Equal(t, 2*time.Minute, cfg.Inference.Timeout)
}

func TestLoadErrors(t *testing.T) {
	isolate(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read config")

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("server:\n  port: 0\n"), 0o644))
	_, err = Load(bad)
	assert.ErrorContains(t, err, "invalid server.port")

	short := filepath.Join(t.TempDir(), "short.yaml")
	require.NoError(t, os.WriteFile(short, []byte("inference:\n  max_seq_len: 2\n"), 0o644))
	_, err = Load(short)
	assert.ErrorContains(t, err, "invalid inference.max_seq_len")
}

func TestExpandHome(t *testing.T) {
	home := isolate(t)
	assert.Equal(t, home, expandHome("~"))
	assert.Equal(t, filepath.Join(home, "x", "y"), expandHome("~/x/y"))
	assert.Equal(t, "/abs/path", expandHome("/abs/path"))
	assert.Equal(t, "~user/x", expandHome("~user/x"))
}
