package inspect

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/dgellow/b2c-front/internal/b64url"
	"github.com/dgellow/b2c-front/internal/identity"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func callTool(t *testing.T, handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), name string, args map[string]any) (string, bool) {
	t.Helper()
	result, err := handler(context.Background(), mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: name, Arguments: args},
	})
	require.NoError(t, err)
	require.Len(t, result.Content, 1)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text, result.IsError
}

func TestResolveRedirect(t *testing.T) {
	ci := b64url.Encode([]byte(`{"email":"a@b.com","name":"A","uid":"u1","utid":"t1"}`))

	out, err := ResolveRedirect("https://app.example.com/auth-callback#state=s1&code=abc&client_info=" + ci)
	require.NoError(t, err)

	report, ok := out.(Report)
	require.True(t, ok)
	assert.Equal(t, identity.SourceClientInfo, report.Identity.Source)
	assert.Equal(t, "a@b.com", report.Identity.Email)
	assert.False(t, report.NeedsTokenExchange)
	assert.Equal(t, []string{"client_info", "code", "state"}, report.FragmentKeys)
	assert.Contains(t, report.CallbackQuery, "needsTokenExchange=false")
	require.NotEmpty(t, report.Attempts)
	assert.True(t, report.Attempts[0].Matched)
}

func TestResolveRedirect_Fallback(t *testing.T) {
	out, err := ResolveRedirect("https://app.example.com/auth-callback#state=s1&code=opaque")
	require.NoError(t, err)

	report := out.(Report)
	assert.Equal(t, identity.SourceFallbackBackend, report.Identity.Source)
	assert.Equal(t, "s1", report.Identity.UserID)
	assert.True(t, report.NeedsTokenExchange)
}

func TestResolveRedirect_ProviderError(t *testing.T) {
	out, err := ResolveRedirect("https://app.example.com/cb#error=access_denied&error_description=User+cancelled")
	require.NoError(t, err)

	assert.Equal(t, ProviderErrorReport{Error: "access_denied", Description: "User cancelled"}, out)
}

func TestResolveRedirectTool(t *testing.T) {
	text, isError := callTool(t, handleResolveRedirect, ToolResolveRedirect, map[string]any{
		"url": "https://app.example.com/cb#state=s1&code=opaque",
	})
	assert.False(t, isError)

	var report map[string]any
	require.NoError(t, json.Unmarshal([]byte(text), &report))
	assert.Equal(t, true, report["needsTokenExchange"])
	assert.Equal(t, "fallback_backend", report["userInfo"].(map[string]any)["source"])

	text, isError = callTool(t, handleResolveRedirect, ToolResolveRedirect, map[string]any{
		"url": "https://app.example.com/cb",
	})
	assert.True(t, isError)
	assert.Contains(t, text, "no #fragment")

	_, isError = callTool(t, handleResolveRedirect, ToolResolveRedirect, map[string]any{})
	assert.True(t, isError)
}

func TestDecodeSegmentTool(t *testing.T) {
	text, isError := callTool(t, handleDecodeSegment, ToolDecodeSegment, map[string]any{
		"segment": b64url.Encode([]byte(`{"alg":"RS256","zip":"Deflate"}`)),
	})
	assert.False(t, isError)
	assert.JSONEq(t, `{"alg":"RS256","zip":"Deflate"}`, text)

	text, isError = callTool(t, handleDecodeSegment, ToolDecodeSegment, map[string]any{
		"segment": "!!!",
	})
	assert.True(t, isError)
	assert.Contains(t, text, "decode segment")
}

func TestNewServerListsTools(t *testing.T) {
	s := NewServer("b2c-front", "test")

	resp := s.HandleMessage(context.Background(), json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	data, err := json.Marshal(resp)
	require.NoError(t, err)

	assert.Contains(t, string(data), ToolResolveRedirect)
	assert.Contains(t, string(data), ToolDecodeSegment)
}
