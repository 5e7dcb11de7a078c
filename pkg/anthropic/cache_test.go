package anthropic

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildCachedSystemBlocks(t *testing.T) {
	text := "You are a legal document analyst. Extract structured case data as JSON."

	blocks := BuildCachedSystemBlocks(text)

	require.Len(t, blocks, 1)
	assert.Equal(t, text, blocks[0].Text)
	require.NotNil(t, blocks[0].CacheControl)
	assert.Equal(t, "1h", blocks[0].CacheControl.TTL)
}

func TestBuildCachedSystemBlocks_EmptyText(t *testing.T) {
	blocks := BuildCachedSystemBlocks("")

	require.Len(t, blocks, 1)
	assert.Equal(t, "", blocks[0].Text)
	require.NotNil(t, blocks[0].CacheControl)
	assert.Equal(t, "1h", blocks[0].CacheControl.TTL)
}

func TestCachedSystemBlocks_ReusedAcrossRequests(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	system := BuildCachedSystemBlocks("Extraction system prompt shared by every document.")

	req1 := MessageRequest{
		Model:     "claude-sonnet-4-5-20250929",
		MaxTokens: 8192,
		System:    system,
		Messages:  []Message{{Role: "user", Content: "Extract.", Document: []byte("%PDF-1.4 first")}},
	}
	req2 := MessageRequest{
		Model:     "claude-sonnet-4-5-20250929",
		MaxTokens: 8192,
		System:    system,
		Messages:  []Message{{Role: "user", Content: "Extract.", Document: []byte("%PDF-1.4 second")}},
	}

	// First document pays the cache write, the second reads it back.
	mc.On("CreateMessage", ctx, req1).Return(&MessageResponse{
		ID:    "msg_1",
		Usage: TokenUsage{InputTokens: 9000, CacheCreationInputTokens: 2400},
	}, nil)
	mc.On("CreateMessage", ctx, req2).Return(&MessageResponse{
		ID:    "msg_2",
		Usage: TokenUsage{InputTokens: 9000, CacheReadInputTokens: 2400},
	}, nil)

	resp1, err := mc.CreateMessage(ctx, req1)
	require.NoError(t, err)
	assert.Equal(t, int64(2400), resp1.Usage.CacheCreationInputTokens)
	assert.Equal(t, int64(0), resp1.Usage.CacheReadInputTokens)

	resp2, err := mc.CreateMessage(ctx, req2)
	require.NoError(t, err)
	assert.Equal(t, int64(0), resp2.Usage.CacheCreationInputTokens)
	assert.Equal(t, int64(2400), resp2.Usage.CacheReadInputTokens)

	mc.AssertExpectations(t)
}
