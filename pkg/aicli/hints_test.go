package aicli

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractAuthHint(t *testing.T) {
	tests := []struct {
		name     string
		chunk    string
		wantNil  bool
		wantURL  string
		wantCode string
	}{
		{
			name:    "login url",
			chunk:   "Open https://auth.openai.com/device?user_code=abc to continue.",
			wantURL: "https://auth.openai.com/device?user_code=abc",
		},
		{
			name:    "url stops at quote",
			chunk:   `<a href="https://example.com/login">sign in</a>`,
			wantURL: "https://example.com/login",
		},
		{
			name:     "device code",
			chunk:    "Enter the code WDJB-MJHT when prompted.",
			wantCode: "WDJB-MJHT",
		},
		{
			name:     "longer grouped code",
			chunk:    "code: ABCD-1234-EFGH",
			wantCode: "ABCD-1234-EFGH",
		},
		{
			name:     "url and code together",
			chunk:    "Visit https://example.com/activate and enter ABCD-1234",
			wantURL:  "https://example.com/activate",
			wantCode: "ABCD-1234",
		},
		{
			name:    "lowercase code ignored",
			chunk:   "wdjb-mjht is not a device code",
			wantNil: true,
		},
		{
			name:    "plain output",
			chunk:   "Welcome back.",
			wantNil: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hint := ExtractAuthHint(tt.chunk)
			if tt.wantNil {
				assert.Nil(t, hint)
				return
			}
			require.NotNil(t, hint)
			assert.Equal(t, tt.wantURL, hint.URL)
			assert.Equal(t, tt.wantCode, hint.Code)
			assert.Equal(t, tt.chunk, hint.Text)
		})
	}
}

func TestExtractAuthHintTextCapped(t *testing.T) {
	chunk := "https://example.com/login " + strings.Repeat("x", 1000)
	hint := ExtractAuthHint(chunk)
	require.NotNil(t, hint)
	assert.Len(t, hint.Text, hintTextLimit)
}
