package rerank

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		provider string
		want     Classification
	}{
		{
			name:     "rate limit via api message",
			err:      errors.New("API request failed: 429 Too Many Requests"),
			provider: "cohere",
			want:     Classification{ErrorTypeRateLimit, SeverityMedium, true, true},
		},
		{
			name:     "rate limit via provider name",
			err:      errors.New("cohere rate limit exceeded"),
			provider: "cohere",
			want:     Classification{ErrorTypeRateLimit, SeverityMedium, true, true},
		},
		{
			name:     "api timeout",
			err:      errors.New("api call timed out after 30s"),
			provider: "cohere",
			want:     Classification{ErrorTypeTimeout, SeverityMedium, true, true},
		},
		{
			name:     "plain api error",
			err:      errors.New("API returned status 500"),
			provider: "cohere",
			want:     Classification{ErrorTypeAPI, SeverityHigh, true, true},
		},
		{
			name: "network error",
			err:  errors.New("network unreachable"),
			want: Classification{ErrorTypeNetwork, SeverityHigh, true, true},
		},
		{
			name: "connection refused",
			err:  errors.New("connection refused"),
			want: Classification{ErrorTypeNetwork, SeverityHigh, true, true},
		},
		{
			name: "validation error",
			err:  errors.New("invalid request: query is required"),
			want: Classification{ErrorTypeValidation, SeverityLow, false, false},
		},
		{
			name: "missing field",
			err:  errors.New("missing userId"),
			want: Classification{ErrorTypeValidation, SeverityLow, false, false},
		},
		{
			name: "unknown error is system",
			err:  errors.New("something unexpected happened"),
			want: Classification{ErrorTypeSystem, SeverityCritical, true, true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err, tt.provider))
		})
	}
}

func TestClassify_ProviderMatchTakesPriorityOverNetwork(t *testing.T) {
	// "api" beats the network branch even when both substrings appear.
	got := Classify(errors.New("api fetch failed"), "")
	assert.Equal(t, ErrorTypeAPI, got.Type)
}
