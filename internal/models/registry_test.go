package models

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedRegistry(t *testing.T) {
	reg, err := LoadEmbeddedRegistry()
	require.NoError(t, err)
	for _, name := range []string{"tasks-tokenizer", "tasks-ner", "tasks-type", "camembert-base"} {
		_, ok := reg.Find(name)
		assert.True(t, ok, "missing %s", name)
	}
	base, _ := reg.Find("camembert-base")
	assert.True(t, base.Baseline)
	assert.Equal(t, KindBundle, base.Kind)
}

func TestLoadRegistryFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"models":[{"name":"b"},{"name":"a"}]}`), 0o644))
	reg, err := LoadRegistry(path)
	require.NoError(t, err)
	require.Len(t, reg.Models, 2)
	assert.Equal(t, "a", reg.Models[0].Name)

	_, err = LoadRegistry(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestLoadLabels(t *testing.T) {
	t.Run("labels.json", func(t *testing.T) {
		dir := t.TempDir()
		writeModelDir(t, dir, map[string]string{"labels.json": `{"0":"O","1":"B-PER"}`})
		labels, err := LoadLabels(dir)
		require.NoError(t, err)
		assert.Equal(t, map[int]string{0: "O", 1: "B-PER"}, labels)
	})
	t.Run("config.json id2label", func(t *testing.T) {
		dir := t.TempDir()
		writeModelDir(t, dir, map[string]string{"config.json": `{"id2label":{"0":"task","1":"event"}}`})
		labels, err := LoadLabels(dir)
		require.NoError(t, err)
		assert.Equal(t, "event", labels[1])
	})
	t.Run("no label files", func(t *testing.T) {
		labels, err := LoadLabels(t.TempDir())
		require.NoError(t, err)
		assert.Empty(t, labels)
	})
	t.Run("invalid json", func(t *testing.T) {
		dir := t.TempDir()
		writeModelDir(t, dir, map[string]string{"labels.json": `{`})
		_, err := LoadLabels(dir)
		assert.ErrorContains(t, err, "load labels")
	})
	t.Run("bad id", func(t *testing.T) {
		dir := t.TempDir()
		writeModelDir(t, dir, map[string]string{"labels.json": `{"zero":"O"}`})
		_, err := LoadLabels(dir)
		assert.ErrorContains(t, err, "bad label id")
	})
}

func TestLabelName(t *testing.T) {
	labels := map[int]string{0: "task"}
	assert.Equal(t, "task", LabelName(labels, 0))
	assert.Equal(t, "LABEL_3", LabelName(labels, 3))
}

func TestLocateModelDir(t *testing.T) {
	flat := t.TempDir()
	writeModelDir(t, flat, map[string]string{"model.onnx": "x"})
	got, err := LocateModelDir(flat, KindSequenceClassification)
	require.NoError(t, err)
	assert.Equal(t, flat, got)

	wrapped := t.TempDir()
	writeModelDir(t, filepath.Join(wrapped, "tasks-type"), map[string]string{"model.onnx": "x", "labels.json": "{}"})
	got, err = LocateModelDir(wrapped, KindSequenceClassification)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(wrapped, "tasks-type"), got)

	ambiguous := t.TempDir()
	writeModelDir(t, filepath.Join(ambiguous, "a"), map[string]string{"model.onnx": "x"})
	writeModelDir(t, filepath.Join(ambiguous, "b"), map[string]string{"model.onnx": "x"})
	_, err = LocateModelDir(ambiguous, KindSequenceClassification)
	assert.ErrorContains(t, err, "missing model.onnx")

	_, err = LocateModelDir(t.TempDir(), KindTokenizer)
	assert.ErrorContains(t, err, "missing tokenizer.json")
}

func TestEmbeddedRegistryChecksumsArePublishedOrEmpty(t *testing.T) {
	reg, err := LoadEmbeddedRegistry()
	require.NoError(t, err)
	for _, m := range reg.Models {
		_, err := ParseChecksum(m.Checksum)
		assert.NoError(t, err, m.Name)
	}
}
