package anthropic

import (
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient_ReturnsNonNil(t *testing.T) {
	c := NewClient("test-api-key")
	require.NotNil(t, c)
}

func TestToSDKMessages_Roles(t *testing.T) {
	msgs := []Message{
		{Role: "user", Content: "question"},
		{Role: "assistant", Content: "answer"},
		{Role: "", Content: "defaults to user"},
	}

	out := toSDKMessages(msgs)
	require.Len(t, out, 3)
	assert.Equal(t, "user", string(out[0].Role))
	assert.Equal(t, "assistant", string(out[1].Role))
	assert.Equal(t, "user", string(out[2].Role))
}

func TestToSDKMessages_TextOnly(t *testing.T) {
	out := toSDKMessages([]Message{{Role: "user", Content: "no attachment"}})

	require.Len(t, out, 1)
	require.Len(t, out[0].Content, 1)
	require.NotNil(t, out[0].Content[0].OfText)
	assert.Equal(t, "no attachment", out[0].Content[0].OfText.Text)
}

func TestToSDKMessages_DocumentBlock(t *testing.T) {
	pdf := []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\n%%EOF")

	out := toSDKMessages([]Message{{
		Role:     "user",
		Content:  "Extract the structured data from this document.",
		Document: pdf,
	}})

	// The document block travels first so the model reads the PDF before
	// the instruction text.
	require.Len(t, out, 1)
	require.Len(t, out[0].Content, 2)
	assert.NotNil(t, out[0].Content[0].OfDocument)
	require.NotNil(t, out[0].Content[1].OfText)
	assert.Equal(t, "Extract the structured data from this document.", out[0].Content[1].OfText.Text)
}

func TestToSDKMessages_DocumentOnly(t *testing.T) {
	out := toSDKMessages([]Message{{Role: "user", Document: []byte("%PDF-1.4")}})

	require.Len(t, out, 1)
	require.Len(t, out[0].Content, 1)
	assert.NotNil(t, out[0].Content[0].OfDocument)
	assert.Nil(t, out[0].Content[0].OfText)
}

func TestToSDKMessages_EmptyMessage(t *testing.T) {
	out := toSDKMessages([]Message{{Role: "user"}})

	// An empty message still carries one text block so the request stays valid.
	require.Len(t, out, 1)
	require.Len(t, out[0].Content, 1)
	require.NotNil(t, out[0].Content[0].OfText)
	assert.Equal(t, "", out[0].Content[0].OfText.Text)
}

func TestToSDKSystemBlocks_Plain(t *testing.T) {
	blocks := toSDKSystemBlocks([]SystemBlock{{Text: "plain system prompt"}})

	require.Len(t, blocks, 1)
	assert.Equal(t, "plain system prompt", blocks[0].Text)
	assert.Zero(t, blocks[0].CacheControl.TTL)
}

func TestToSDKSystemBlocks_CacheControl(t *testing.T) {
	blocks := toSDKSystemBlocks(BuildCachedSystemBlocks("extraction system prompt"))

	require.Len(t, blocks, 1)
	assert.Equal(t, "extraction system prompt", blocks[0].Text)
	assert.Equal(t, sdk.CacheControlEphemeralTTL("1h"), blocks[0].CacheControl.TTL)
}

func TestFromSDKMessage(t *testing.T) {
	msg := &sdk.Message{
		ID:    "msg_abc",
		Model: "claude-sonnet-4-5-20250929",
		Content: []sdk.ContentBlockUnion{
			{Type: "text", Text: `{"resume": "Mandado de segurança contra ato administrativo."}`},
		},
		StopReason: "end_turn",
		Usage: sdk.Usage{
			InputTokens:              1200,
			OutputTokens:             340,
			CacheCreationInputTokens: 600,
			CacheReadInputTokens:     100,
		},
	}

	out := fromSDKMessage(msg)
	require.NotNil(t, out)
	assert.Equal(t, "msg_abc", out.ID)
	assert.Equal(t, "claude-sonnet-4-5-20250929", out.Model)
	assert.Equal(t, "end_turn", out.StopReason)
	require.Len(t, out.Content, 1)
	assert.Equal(t, "text", out.Content[0].Type)
	assert.Contains(t, out.Content[0].Text, "Mandado de segurança")
	assert.Equal(t, int64(1200), out.Usage.InputTokens)
	assert.Equal(t, int64(340), out.Usage.OutputTokens)
	assert.Equal(t, int64(600), out.Usage.CacheCreationInputTokens)
	assert.Equal(t, int64(100), out.Usage.CacheReadInputTokens)
}

func TestFromSDKMessage_EmptyContent(t *testing.T) {
	out := fromSDKMessage(&sdk.Message{ID: "msg_empty"})

	require.NotNil(t, out)
	assert.Equal(t, "msg_empty", out.ID)
	assert.Empty(t, out.Content)
	assert.Equal(t, "", out.Text())
}
