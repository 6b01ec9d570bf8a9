package nutrition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEstimate(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		want    Estimate
		wantErr bool
	}{
		{
			name:  "bare object",
			reply: `{"calories": 450, "protein_g": 20.5, "carbs_g": 60, "fat_g": 12}`,
			want:  Estimate{Calories: 450, Protein: 20.5, Carbs: 60, Fat: 12},
		},
		{
			name:  "fenced with prose",
			reply: "Here you go:\n```json\n{\"calories\": 300}\n```\nEnjoy!",
			want:  Estimate{Calories: 300},
		},
		{name: "no object", reply: "I can't tell", wantErr: true},
		{name: "malformed", reply: `{"calories": "lots"}`, wantErr: true},
		{name: "negative", reply: `{"calories": -5}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseEstimate(tt.reply)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewEstimator(t *testing.T) {
	anthropicEst, err := NewEstimator(EstimatorConfig{Provider: "anthropic", APIKey: "sk-ant-test", Model: "claude-sonnet-4-20250514"})
	require.NoError(t, err)
	assert.IsType(t, &AnthropicEstimator{}, anthropicEst)
	assert.Equal(t, 1024, anthropicEst.(*AnthropicEstimator).maxTokens)

	openaiEst, err := NewEstimator(EstimatorConfig{Provider: "openai", APIKey: "sk-test", Model: "gpt-4o-mini", MaxTokens: 256})
	require.NoError(t, err)
	assert.IsType(t, &OpenAIEstimator{}, openaiEst)

	_, err = NewEstimator(EstimatorConfig{Provider: "anthropic"})
	assert.ErrorContains(t, err, "API key")

	_, err = NewEstimator(EstimatorConfig{Provider: "gemini", APIKey: "k"})
	assert.ErrorContains(t, err, "unsupported")
}
