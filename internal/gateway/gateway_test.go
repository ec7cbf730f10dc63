package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultGenAIConfig(t *testing.T) {
	cfg := DefaultGenAIConfig("key-123")
	assert.Equal(t, "key-123", cfg.APIKey)
	assert.Equal(t, "gemini-2.5-flash", cfg.Model)
	assert.Equal(t, 5*time.Minute, cfg.Timeout)
}

func TestNewGenAIGatewayRequiresAPIKey(t *testing.T) {
	_, err := NewGenAIGateway(GenAIConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key")
}
