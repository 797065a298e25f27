package lora

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Adapter describes one LoRA weight file discovered under the adapter
// directory, plus optional training metadata from its sidecar JSON.
type Adapter struct {
	Name     string `json:"name"`
	Domain   string `json:"domain"`
	Path     string `json:"path"`
	FileSize int64  `json:"file_size"`

	RecommendedWeight float64 `json:"recommended_weight"`
	TrainingRunID     string  `json:"training_run_id,omitempty"`
	TrainingSteps     int     `json:"training_steps,omitempty"`
	TrainingLoss      float64 `json:"training_loss,omitempty"`

	CompatibleWith []string `json:"compatible_with,omitempty"`
	ConflictsWith  []string `json:"conflicts_with,omitempty"`

	LoadCount int        `json:"load_count"`
	LastUsed  *time.Time `json:"last_used,omitempty"`
}

// FullName is the registry key: "{domain}/{name}".
func (a *Adapter) FullName() string {
	return a.Domain + "/" + a.Name
}

// FileSizeMB reports the weight file size in megabytes for API views.
func (a *Adapter) FileSizeMB() float64 {
	return float64(a.FileSize) / (1024 * 1024)
}

type sidecarMetadata struct {
	RecommendedWeight float64  `json:"recommended_weight"`
	TrainingRunID     string   `json:"training_run_id"`
	TrainingSteps     int      `json:"training_steps"`
	TrainingLoss      float64  `json:"training_loss"`
	CompatibleWith    []string `json:"compatible_with"`
	ConflictsWith     []string `json:"conflicts_with"`
}

// adapterFromFile builds an Adapter from a weight file, merging the sidecar
// "<name>.json" metadata when present. A broken sidecar is ignored.
func adapterFromFile(path, domain string) (*Adapter, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat adapter %s: %w", path, err)
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	adapter := &Adapter{
		Name:              name,
		Domain:            domain,
		Path:              path,
		FileSize:          info.Size(),
		RecommendedWeight: 1.0,
	}

	sidecar := strings.TrimSuffix(path, filepath.Ext(path)) + ".json"
	if data, err := os.ReadFile(sidecar); err == nil {
		var meta sidecarMetadata
		if err := json.Unmarshal(data, &meta); err == nil {
			if meta.RecommendedWeight > 0 {
				adapter.RecommendedWeight = meta.RecommendedWeight
			}
			adapter.TrainingRunID = meta.TrainingRunID
			adapter.TrainingSteps = meta.TrainingSteps
			adapter.TrainingLoss = meta.TrainingLoss
			adapter.CompatibleWith = meta.CompatibleWith
			adapter.ConflictsWith = meta.ConflictsWith
		}
	}
	return adapter, nil
}
