package model

import (
	"math"
	"testing"
)

func TestGenerationParamsClamp(t *testing.T) {
	tests := []struct {
		name string
		in   GenerationParams
		want GenerationParams
	}{
		{
			name: "in range",
			in:   GenerationParams{Temperature: 0.5, MaxTokens: 200, TopP: 0.9, FrequencyPenalty: -1},
			want: GenerationParams{Temperature: 0.5, MaxTokens: 200, TopP: 0.9, FrequencyPenalty: -1},
		},
		{
			name: "above range",
			in:   GenerationParams{Temperature: 3, MaxTokens: 10000, TopP: 1.5, FrequencyPenalty: 5},
			want: GenerationParams{Temperature: 2, MaxTokens: 4095, TopP: 1, FrequencyPenalty: 2},
		},
		{
			name: "below range",
			in:   GenerationParams{Temperature: -1, MaxTokens: 0, TopP: -0.1, FrequencyPenalty: -3},
			want: GenerationParams{Temperature: 0, MaxTokens: 1, TopP: 0, FrequencyPenalty: -2},
		},
		{
			name: "nan falls back to defaults",
			in:   GenerationParams{Temperature: math.NaN(), MaxTokens: 5, TopP: math.NaN(), FrequencyPenalty: math.NaN()},
			want: GenerationParams{Temperature: 1, MaxTokens: 5, TopP: 1, FrequencyPenalty: 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.in.Clamp(); got != tt.want {
				t.Fatalf("Clamp() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestSessionDocumentCloneIsDeep(t *testing.T) {
	doc := NewSessionDocument()
	doc.Conversations["Chat 1"] = &Conversation{
		Messages:      []Message{{Role: RoleUser, Content: "hello"}},
		SelectedModel: BaselineModel,
	}
	doc.Order = append(doc.Order, "Chat 1")

	clone := doc.Clone()
	clone.Conversations["Chat 1"].Messages[0].Content = "changed"
	clone.Order[0] = "other"

	if doc.Conversations["Chat 1"].Messages[0].Content != "hello" {
		t.Fatalf("clone shares message storage with the original")
	}
	if doc.Order[0] != "Chat 1" {
		t.Fatalf("clone shares order storage with the original")
	}
}
