package models

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

//go:embed registry.json
var embeddedRegistry []byte

var ErrModelNotFound = errors.New("model not found")

// Kind is the role a model directory can serve.
type Kind string

const (
	KindTokenizer              Kind = "tokenizer"
	KindTokenClassification    Kind = "token-classification"
	KindSequenceClassification Kind = "sequence-classification"
	KindBundle                 Kind = "bundle"
)

// RequiredFiles lists the files a directory must hold to serve kind.
func RequiredFiles(kind Kind) []string {
	switch kind {
	case KindTokenizer:
		return []string{"tokenizer.json"}
	case KindTokenClassification, KindSequenceClassification:
		return []string{"model.onnx"}
	default:
		return []string{"model.onnx", "tokenizer.json"}
	}
}

type Registry struct {
	Version string      `json:"version"`
	Models  []ModelSpec `json:"models"`
}

type ModelSpec struct {
	Name         string   `json:"name"`
	DisplayName  string   `json:"display_name"`
	Version      string   `json:"version"`
	Kind         Kind     `json:"kind"`
	Language     string   `json:"language"`
	URL          string   `json:"url"`
	Checksum     string   `json:"checksum"`
	SizeBytes    int64    `json:"size_bytes"`
	Labels       []string `json:"labels"`
	Description  string   `json:"description"`
	Architecture string   `json:"architecture"`
	License      string   `json:"license"`
	Recommended  bool     `json:"recommended"`
	Baseline     bool     `json:"baseline"`
}

func LoadEmbeddedRegistry() (Registry, error) {
	return parseRegistry(embeddedRegistry)
}

// LoadRegistry reads a registry file, falling back to the embedded registry
// when path is empty.
func LoadRegistry(path string) (Registry, error) {
	if path == "" {
		return LoadEmbeddedRegistry()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Registry{}, fmt.Errorf("read model registry: %w", err)
	}
	return parseRegistry(data)
}

func parseRegistry(data []byte) (Registry, error) {
	var reg Registry
	if err := json.Unmarshal(data, &reg); err != nil {
		return Registry{}, fmt.Errorf("parse model registry: %w", err)
	}
	sort.Slice(reg.Models, func(i, j int) bool { return reg.Models[i].Name < reg.Models[j].Name })
	return reg, nil
}

func (r Registry) Find(name string) (ModelSpec, bool) {
	for _, m := range r.Models {
		if m.Name == name {
			return m, true
		}
	}
	return ModelSpec{}, false
}

func DefaultModelsRoot() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".tasknlp", "models"), nil
}

func ModelInstallPath(root string, name string) string {
	return filepath.Join(root, name)
}

// HasFiles reports whether dir holds every file kind requires.
func HasFiles(dir string, kind Kind) bool {
	for _, f := range RequiredFiles(kind) {
		if _, err := os.Stat(filepath.Join(dir, f)); err != nil {
			return false
		}
	}
	return true
}

func IsInstalled(root string, model ModelSpec) bool {
	return HasFiles(ModelInstallPath(root, model.Name), model.Kind)
}
