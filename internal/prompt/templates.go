// Package prompt holds the signage prompt template library used by the UI to
// build consistent mockup prompts.
package prompt

import (
	"sort"
	"strings"
)

// Template is a prompt with named {placeholder} variables.
type Template struct {
	Name              string   `json:"name"`
	Template          string   `json:"template"`
	Description       string   `json:"description"`
	Variables         []string `json:"variables"`
	NegativePrompt    string   `json:"negative_prompt"`
	SuggestedAdapters []string `json:"suggested_adapters"`
}

// Render substitutes the provided values into the template. Missing
// variables render as empty strings.
func (t *Template) Render(values map[string]string) string {
	result := t.Template
	for _, v := range t.Variables {
		result = strings.ReplaceAll(result, "{"+v+"}", values[v])
	}
	return strings.TrimSpace(result)
}

var library = map[string]*Template{
	"channel_letters": {
		Name: "channel_letters",
		Template: "Professional photograph of channel letter signage reading '{text}', " +
			"{material} letters with {lighting} illumination, " +
			"mounted on {surface}, {perspective} view, " +
			"{environment} setting, commercial photography, high quality",
		Description:       "Channel letter signs with customizable text and style",
		Variables:         []string{"text", "material", "lighting", "surface", "perspective", "environment"},
		NegativePrompt:    "blurry, low quality, distorted text, misspelled, amateur, poorly lit, bad perspective",
		SuggestedAdapters: []string{"sign_type/channel_letters"},
	},
	"box_sign": {
		Name: "box_sign",
		Template: "Commercial photograph of illuminated box sign displaying '{text}', " +
			"{color} acrylic face with aluminum cabinet, " +
			"{mounting} mounting, {perspective} angle, " +
			"{environment}, professional signage photography",
		Description:       "Cabinet/box signs with internal illumination",
		Variables:         []string{"text", "color", "mounting", "perspective", "environment"},
		NegativePrompt:    "blurry, pixelated, incorrect lighting, dim, damaged sign, dirty, old",
		SuggestedAdapters: []string{"sign_type/box_sign"},
	},
	"neon_sign": {
		Name: "neon_sign",
		Template: "Atmospheric photograph of vintage neon sign reading '{text}', " +
			"{color} neon tubes glowing brightly, " +
			"{style} style, {environment}, " +
			"night photography, bokeh lights, moody atmosphere",
		Description:       "Classic neon tube signs",
		Variables:         []string{"text", "color", "style", "environment"},
		NegativePrompt:    "modern LED, digital display, daylight, broken tubes, dim, not glowing",
		SuggestedAdapters: []string{"sign_type/neon", "environment/night"},
	},
	"monument_sign": {
		Name: "monument_sign",
		Template: "Professional photograph of monument sign for '{text}', " +
			"{material} construction with {finish} finish, " +
			"ground-mounted entrance sign, {landscaping}, " +
			"{time_of_day} lighting, corporate architecture photography",
		Description:       "Ground-mounted monument/entrance signs",
		Variables:         []string{"text", "material", "finish", "landscaping", "time_of_day"},
		NegativePrompt:    "floating sign, wall mounted, cheap materials, poor landscaping, dark",
		SuggestedAdapters: []string{"sign_type/monument"},
	},
	"storefront": {
		Name: "storefront",
		Template: "Street-level photograph of {business_type} storefront with '{text}' signage, " +
			"{sign_type} sign above entrance, " +
			"{style} architecture, {environment}, " +
			"urban photography, inviting atmosphere",
		Description:       "Complete storefront scenes with signage",
		Variables:         []string{"business_type", "text", "sign_type", "style", "environment"},
		NegativePrompt:    "empty street, closed business, damaged, dirty windows, poor neighborhood",
		SuggestedAdapters: []string{"environment/urban_storefront"},
	},
	"minimal": {
		Name:           "minimal",
		Template:       "{text} sign, {style}, high quality photograph",
		Description:    "Minimal template for custom prompts",
		Variables:      []string{"text", "style"},
		NegativePrompt: "blurry, low quality",
	},
}

// Get returns a template by name.
func Get(name string) (*Template, bool) {
	t, ok := library[name]
	return t, ok
}

// List returns all templates, ordered by name.
func List() []*Template {
	names := make([]string, 0, len(library))
	for name := range library {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]*Template, 0, len(names))
	for _, name := range names {
		out = append(out, library[name])
	}
	return out
}

// Vocabulary returns the suggestion lists for prompt building.
func Vocabulary() map[string][]string {
	return map[string][]string{
		"materials": {
			"brushed aluminum", "polished stainless steel", "painted metal",
			"acrylic", "wood", "bronze", "copper", "chrome",
		},
		"lighting": {
			"front-lit LED", "halo-lit", "backlit", "edge-lit",
			"neon tube", "warm white", "cool white", "RGB LED",
		},
		"mounting": {
			"flush mounted", "raceway mounted", "standoff mounted",
			"suspended hanging", "pole mounted",
		},
		"perspectives": {
			"straight-on front", "45-degree angle", "street level looking up",
			"wide establishing shot", "close-up detail",
		},
		"environments": {
			"busy urban street", "upscale shopping district", "indoor mall corridor",
			"office building lobby", "suburban shopping center", "historic downtown",
		},
	}
}
