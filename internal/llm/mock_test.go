package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockAdapter(t *testing.T) {
	mock := NewMockAdapter("openai", Response{Category: "travel", Confidence: 0.7})

	resp, err := mock.Invoke(context.Background(), Prompt{Capability: CapabilityCategorization})
	require.NoError(t, err)
	assert.Equal(t, "travel", resp.Category)
	assert.Equal(t, "openai", resp.Provider)
	assert.Equal(t, 1, mock.CallCount())
	assert.Equal(t, CapabilityCategorization, mock.Calls()[0].Capability)
}

func TestMockAdapter_Failing(t *testing.T) {
	boom := errors.New("boom")
	mock := NewFailingMockAdapter("gemini", boom)

	_, err := mock.Invoke(context.Background(), Prompt{})
	assert.ErrorIs(t, err, boom)
}

func TestMockAdapter_DelayHonorsContext(t *testing.T) {
	mock := NewMockAdapter("anthropic", Response{Category: "meals", Confidence: 0.6})
	mock.Delay = time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := mock.Invoke(ctx, Prompt{})
	assert.True(t, IsTimeout(err))
}
