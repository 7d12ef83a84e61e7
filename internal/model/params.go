package model

import "math"

// Generation parameter bounds.
const (
	MinTemperature      = 0.0
	MaxTemperature      = 2.0
	MinMaxTokens        = 1
	MaxMaxTokens        = 4095
	MinTopP             = 0.0
	MaxTopP             = 1.0
	MinFrequencyPenalty = -2.0
	MaxFrequencyPenalty = 2.0
)

// GenerationParams are the sampling settings of a session. They are reset at
// session start and never persisted.
type GenerationParams struct {
	Temperature      float64 `json:"temperature"`
	MaxTokens        int     `json:"max_tokens"`
	TopP             float64 `json:"top_p"`
	FrequencyPenalty float64 `json:"frequency_penalty"`
}

// DefaultGenerationParams returns the settings every session starts with.
func DefaultGenerationParams() GenerationParams {
	return GenerationParams{
		Temperature:      1.0,
		MaxTokens:        1024,
		TopP:             1.0,
		FrequencyPenalty: 0.0,
	}
}

// Clamp returns p with every field forced into its allowed range. NaN values
// fall back to the defaults.
func (p GenerationParams) Clamp() GenerationParams {
	def := DefaultGenerationParams()
	return GenerationParams{
		Temperature:      clampFloat(p.Temperature, MinTemperature, MaxTemperature, def.Temperature),
		MaxTokens:        clampInt(p.MaxTokens, MinMaxTokens, MaxMaxTokens),
		TopP:             clampFloat(p.TopP, MinTopP, MaxTopP, def.TopP),
		FrequencyPenalty: clampFloat(p.FrequencyPenalty, MinFrequencyPenalty, MaxFrequencyPenalty, def.FrequencyPenalty),
	}
}

func clampFloat(v, lo, hi, fallback float64) float64 {
	if math.IsNaN(v) {
		return fallback
	}
	return math.Min(math.Max(v, lo), hi)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
