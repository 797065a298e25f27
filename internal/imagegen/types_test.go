package imagegen

import (
	"strings"
	"testing"
)

func TestApplyDefaults(t *testing.T) {
	req := GenerateRequest{Prompt: "acme sign"}
	req.ApplyDefaults()
	if req.Width != DefaultWidth || req.Height != DefaultHeight {
		t.Fatalf("dimensions = %dx%d, want %dx%d", req.Width, req.Height, DefaultWidth, DefaultHeight)
	}
	if req.Steps != DefaultSteps || req.GuidanceScale != DefaultGuidance {
		t.Fatalf("sampler = %d steps, guidance %g", req.Steps, req.GuidanceScale)
	}
	if req.NormalizeWeights == nil || !*req.NormalizeWeights {
		t.Fatal("normalize_weights default should be true")
	}

	// Explicit values survive.
	req = GenerateRequest{Prompt: "x", Width: 512, Height: 640, Steps: 12, GuidanceScale: 3}
	req.ApplyDefaults()
	if req.Width != 512 || req.Height != 640 || req.Steps != 12 || req.GuidanceScale != 3 {
		t.Fatalf("explicit values overwritten: %+v", req)
	}
}

func TestValidate(t *testing.T) {
	valid := func() GenerateRequest {
		r := GenerateRequest{Prompt: "channel letters on brick"}
		r.ApplyDefaults()
		return r
	}

	tests := []struct {
		name      string
		mutate    func(*GenerateRequest)
		wantField string
	}{
		{"valid", func(r *GenerateRequest) {}, ""},
		{"empty prompt", func(r *GenerateRequest) { r.Prompt = "  " }, "prompt"},
		{"prompt over built-in limit", func(r *GenerateRequest) { r.Prompt = strings.Repeat("a", 1001) }, "prompt"},
		{"negative too long", func(r *GenerateRequest) { r.NegativePrompt = strings.Repeat("b", 501) }, "negative_prompt"},
		{"width too small", func(r *GenerateRequest) { r.Width = 128 }, "width"},
		{"width too large", func(r *GenerateRequest) { r.Width = 4096 }, "width"},
		{"height too small", func(r *GenerateRequest) { r.Height = 255 }, "height"},
		{"too many pixels", func(r *GenerateRequest) { r.Width, r.Height = 2048, 2048 }, "resolution"},
		{"zero steps", func(r *GenerateRequest) { r.Steps = 0 }, "steps"},
		{"too many steps", func(r *GenerateRequest) { r.Steps = 101 }, "steps"},
		{"guidance too low", func(r *GenerateRequest) { r.GuidanceScale = 0.5 }, "guidance_scale"},
		{"guidance too high", func(r *GenerateRequest) { r.GuidanceScale = 25 }, "guidance_scale"},
		{"weight count mismatch", func(r *GenerateRequest) {
			r.Adapters = []string{"a", "b"}
			r.AdapterWeights = []float64{1.0}
		}, "adapter_weights"},
		{"weights omitted entirely is fine", func(r *GenerateRequest) {
			r.Adapters = []string{"a", "b"}
		}, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := valid()
			tc.mutate(&req)
			err := req.Validate(SafetyPolicy{})
			if tc.wantField == "" {
				if err != nil {
					t.Fatalf("Validate() error: %v", err)
				}
				return
			}
			ve, ok := err.(*ValidationError)
			if !ok {
				t.Fatalf("Validate() error = %v, want *ValidationError", err)
			}
			if ve.Field != tc.wantField {
				t.Fatalf("Validate() field = %q, want %q", ve.Field, tc.wantField)
			}
		})
	}
}

func TestValidateSafetyPolicy(t *testing.T) {
	valid := func() GenerateRequest {
		r := GenerateRequest{Prompt: "channel letters on brick"}
		r.ApplyDefaults()
		return r
	}

	t.Run("configured prompt limit overrides built-in", func(t *testing.T) {
		req := valid()
		req.Prompt = strings.Repeat("a", 60)
		err := req.Validate(SafetyPolicy{MaxPromptLength: 50})
		ve, ok := err.(*ValidationError)
		if !ok || ve.Field != "prompt" {
			t.Fatalf("Validate() = %v, want prompt length error", err)
		}
		req.Prompt = strings.Repeat("a", 50)
		if err := req.Validate(SafetyPolicy{MaxPromptLength: 50}); err != nil {
			t.Fatalf("Validate() rejected a prompt at the configured limit: %v", err)
		}
	})

	t.Run("blocked words match case-insensitively", func(t *testing.T) {
		policy := SafetyPolicy{BlockedWords: []string{"Gambling", "  weapons "}}

		req := valid()
		req.Prompt = "sign for a GAMBLING den"
		err := req.Validate(policy)
		ve, ok := err.(*ValidationError)
		if !ok || ve.Field != "prompt" {
			t.Fatalf("Validate() = %v, want blocked prompt error", err)
		}

		req = valid()
		req.NegativePrompt = "no weapons please"
		err = req.Validate(policy)
		ve, ok = err.(*ValidationError)
		if !ok || ve.Field != "negative_prompt" {
			t.Fatalf("Validate() = %v, want blocked negative_prompt error", err)
		}

		req = valid()
		if err := req.Validate(policy); err != nil {
			t.Fatalf("Validate() rejected a clean prompt: %v", err)
		}
	})

	t.Run("empty policy allows anything wordwise", func(t *testing.T) {
		req := valid()
		req.Prompt = "gambling weapons whatever"
		if err := req.Validate(SafetyPolicy{}); err != nil {
			t.Fatalf("Validate() error: %v", err)
		}
	})
}
