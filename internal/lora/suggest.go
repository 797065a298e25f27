package lora

import "strings"

// Suggestion is a keyword-derived adapter composition for a prompt.
type Suggestion struct {
	Adapters       []string          `json:"adapters"`
	Weights        []float64         `json:"weights"`
	ByDomain       map[string]string `json:"suggestions"`
	PromptAnalyzed string            `json:"prompt_analyzed"`
}

// Keyword tables mapping prompt vocabulary to adapter concepts. Order
// matters: the first matching keyword wins per domain.
var signTypeKeywords = []struct{ keyword, concept string }{
	{"channel", "channel_letters"},
	{"letter", "channel_letters"},
	{"box", "box_sign"},
	{"cabinet", "box_sign"},
	{"halo", "halo_lit"},
	{"backlit", "halo_lit"},
	{"blade", "blade"},
	{"flag", "blade"},
	{"monument", "monument"},
	{"ground", "monument"},
	{"pylon", "pylon"},
	{"pole", "pylon"},
	{"neon", "neon"},
}

var environmentKeywords = []struct{ keyword, concept string }{
	{"urban", "urban_storefront"},
	{"city", "urban_storefront"},
	{"storefront", "urban_storefront"},
	{"mall", "mall_interior"},
	{"interior", "mall_interior"},
	{"indoor", "mall_interior"},
	{"night", "night"},
	{"evening", "night"},
	{"dark", "night"},
	{"day", "daytime"},
	{"daylight", "daytime"},
	{"sunny", "daytime"},
}

// Suggest proposes adapters for a prompt by keyword detection against the
// registered adapter set.
func (r *Registry) Suggest(prompt string) Suggestion {
	lower := strings.ToLower(prompt)
	byDomain := make(map[string]string)

	for _, entry := range signTypeKeywords {
		if strings.Contains(lower, entry.keyword) {
			full := "sign_type/" + entry.concept
			if _, ok := r.Get(full); ok {
				byDomain["sign_type"] = full
				break
			}
		}
	}
	for _, entry := range environmentKeywords {
		if strings.Contains(lower, entry.keyword) {
			full := "environment/" + entry.concept
			if _, ok := r.Get(full); ok {
				byDomain["environment"] = full
				break
			}
		}
	}

	s := Suggestion{ByDomain: byDomain, PromptAnalyzed: truncate(prompt, 100)}
	for _, domain := range []string{"sign_type", "environment"} {
		if name, ok := byDomain[domain]; ok {
			weight := 1.0
			if dw, ok := r.defaultWeights[domain]; ok {
				weight = dw
			}
			s.Adapters = append(s.Adapters, name)
			s.Weights = append(s.Weights, weight)
		}
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
