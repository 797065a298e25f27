package imagegen

import (
	"fmt"
	"strings"
)

const (
	DefaultWidth    = 1024
	DefaultHeight   = 768
	DefaultSteps    = 30
	DefaultGuidance = 7.5

	defaultMaxPrompt  = 1000
	maxNegativeLength = 500
	minDimension      = 256
	maxDimension      = 2048
	maxPixels         = 2097152
	maxSteps          = 100
)

// ValidationError reports a rejected request parameter.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// GenerateRequest describes one generation job. Zero-valued dimension and
// sampler fields are filled in by ApplyDefaults before validation.
type GenerateRequest struct {
	Prompt           string    `json:"prompt"`
	NegativePrompt   string    `json:"negative_prompt"`
	Width            int       `json:"width"`
	Height           int       `json:"height"`
	Steps            int       `json:"steps"`
	GuidanceScale    float64   `json:"guidance_scale"`
	Seed             int64     `json:"seed"`
	Adapters         []string  `json:"adapters"`
	AdapterWeights   []float64 `json:"adapter_weights"`
	NormalizeWeights *bool     `json:"normalize_weights"`
}

// ApplyDefaults fills unset parameters with the service defaults. Absent JSON
// fields decode to 0, which is not a valid value for dimensions, steps or
// guidance, so 0 means "use the default" there. Seed 0 stays 0; pass -1 for a
// random seed.
func (r *GenerateRequest) ApplyDefaults() {
	if r.Width == 0 {
		r.Width = DefaultWidth
	}
	if r.Height == 0 {
		r.Height = DefaultHeight
	}
	if r.Steps == 0 {
		r.Steps = DefaultSteps
	}
	if r.GuidanceScale == 0 {
		r.GuidanceScale = DefaultGuidance
	}
	if r.NormalizeWeights == nil {
		v := true
		r.NormalizeWeights = &v
	}
}

// SafetyPolicy carries the configurable prompt limits. The zero value falls
// back to the built-in limits with no blocked words.
type SafetyPolicy struct {
	MaxPromptLength int
	BlockedWords    []string
}

func (p SafetyPolicy) promptLimit() int {
	if p.MaxPromptLength > 0 {
		return p.MaxPromptLength
	}
	return defaultMaxPrompt
}

// blocked reports the first blocked word found in text, matching the
// lowercased substring semantics of the prompt safety check.
func (p SafetyPolicy) blocked(text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, word := range p.BlockedWords {
		w := strings.ToLower(strings.TrimSpace(word))
		if w == "" {
			continue
		}
		if strings.Contains(lower, w) {
			return w, true
		}
	}
	return "", false
}

// Validate checks the request against the generation limits and the safety
// policy.
func (r *GenerateRequest) Validate(policy SafetyPolicy) error {
	if strings.TrimSpace(r.Prompt) == "" {
		return &ValidationError{Field: "prompt", Message: "cannot be empty"}
	}
	if limit := policy.promptLimit(); len(r.Prompt) > limit {
		return &ValidationError{Field: "prompt", Message: fmt.Sprintf("too long (max %d chars)", limit)}
	}
	if _, found := policy.blocked(r.Prompt); found {
		return &ValidationError{Field: "prompt", Message: "contains blocked content"}
	}
	if _, found := policy.blocked(r.NegativePrompt); found {
		return &ValidationError{Field: "negative_prompt", Message: "contains blocked content"}
	}
	if len(r.NegativePrompt) > maxNegativeLength {
		return &ValidationError{Field: "negative_prompt", Message: fmt.Sprintf("too long (max %d chars)", maxNegativeLength)}
	}
	if r.Width < minDimension || r.Width > maxDimension {
		return &ValidationError{Field: "width", Message: fmt.Sprintf("%d out of range (%d-%d)", r.Width, minDimension, maxDimension)}
	}
	if r.Height < minDimension || r.Height > maxDimension {
		return &ValidationError{Field: "height", Message: fmt.Sprintf("%d out of range (%d-%d)", r.Height, minDimension, maxDimension)}
	}
	if r.Width*r.Height > maxPixels {
		return &ValidationError{Field: "resolution", Message: "too high (max 2MP)"}
	}
	if r.Steps < 1 || r.Steps > maxSteps {
		return &ValidationError{Field: "steps", Message: fmt.Sprintf("%d out of range (1-%d)", r.Steps, maxSteps)}
	}
	if r.GuidanceScale < 1 || r.GuidanceScale > 20 {
		return &ValidationError{Field: "guidance_scale", Message: fmt.Sprintf("%g out of range (1-20)", r.GuidanceScale)}
	}
	if len(r.Adapters) != len(r.AdapterWeights) && len(r.AdapterWeights) != 0 {
		return &ValidationError{Field: "adapter_weights", Message: "count does not match adapters"}
	}
	return nil
}

// Result is a finished generation: the encoded PNG plus the parameters that
// produced it.
type Result struct {
	PNG              []byte
	Seed             int64
	Prompt           string
	NegativePrompt   string
	Width            int
	Height           int
	Steps            int
	GuidanceScale    float64
	Adapters         []string
	AdapterWeights   []float64
	GenerationTimeMS int64
}

// Metadata returns the serializable parameter record for the result.
func (r *Result) Metadata() map[string]any {
	return map[string]any{
		"seed":               r.Seed,
		"prompt":             r.Prompt,
		"negative_prompt":    r.NegativePrompt,
		"width":              r.Width,
		"height":             r.Height,
		"steps":              r.Steps,
		"guidance_scale":     r.GuidanceScale,
		"adapters":           r.Adapters,
		"adapter_weights":    r.AdapterWeights,
		"generation_time_ms": r.GenerationTimeMS,
	}
}
