package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// LoadLabels reads the id-to-label mapping of the model in dir, from
// labels.json or, failing that, the id2label field of config.json. A model
// without either yields an empty mapping.
func LoadLabels(dir string) (map[int]string, error) {
	raw, err := os.ReadFile(filepath.Join(dir, "labels.json"))
	if err == nil {
		var labels map[string]string
		if err := json.Unmarshal(raw, &labels); err != nil {
			return nil, fmt.Errorf("load labels: %w", err)
		}
		return toIDMap(labels)
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load labels: %w", err)
	}

	raw, err = os.ReadFile(filepath.Join(dir, "config.json"))
	if errors.Is(err, os.ErrNotExist) {
		return map[int]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load labels: %w", err)
	}
	var cfg struct {
		ID2Label map[string]string `json:"id2label"`
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("load labels from config.json: %w", err)
	}
	return toIDMap(cfg.ID2Label)
}

func toIDMap(labels map[string]string) (map[int]string, error) {
	out := make(map[int]string, len(labels))
	for k, v := range labels {
		idx, err := strconv.Atoi(k)
		if err != nil {
			return nil, fmt.Errorf("load labels: bad label id %q", k)
		}
		out[idx] = v
	}
	return out, nil
}

// LabelName returns the label for id, or the generic LABEL_<id> name used by
// untuned checkpoints.
func LabelName(labels map[int]string, id int) string {
	if l, ok := labels[id]; ok {
		return l
	}
	return fmt.Sprintf("LABEL_%d", id)
}
