// Package inspect exposes fragment resolution as MCP tools so a redirect URL
// captured from a browser can be diagnosed without running a login.
package inspect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgellow/b2c-front/internal/b64url"
	"github.com/dgellow/b2c-front/internal/backend"
	"github.com/dgellow/b2c-front/internal/fragment"
	"github.com/dgellow/b2c-front/internal/identity"
	"github.com/dgellow/b2c-front/internal/log"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

const (
	ToolResolveRedirect = "resolve_redirect"
	ToolDecodeSegment   = "decode_segment"
)

// Report is the outcome of resolving one redirect URL
type Report struct {
	Identity           identity.Identity  `json:"userInfo"`
	Attempts           []identity.Attempt `json:"attempts"`
	NeedsTokenExchange bool               `json:"needsTokenExchange"`
	FragmentKeys       []string           `json:"fragmentKeys"`
	// CallbackQuery is the query the backend callback would receive
	CallbackQuery string `json:"callbackQuery"`
}

// ProviderErrorReport is returned instead of a Report when the redirect
// carries an error from the provider
type ProviderErrorReport struct {
	Error       string `json:"error"`
	Description string `json:"errorDescription,omitempty"`
}

// ResolveRedirect parses rawURL and runs identity resolution on its fragment
func ResolveRedirect(rawURL string) (any, error) {
	f, err := fragment.Parse(rawURL)
	if err != nil {
		return nil, err
	}

	if perr := f.ProviderError(); perr != nil {
		return ProviderErrorReport{Error: perr.Code(), Description: perr.Description()}, nil
	}

	res := identity.NewResolver().Resolve(f)
	params, err := backend.Params(f, res.Identity)
	if err != nil {
		return nil, err
	}

	return Report{
		Identity:           res.Identity,
		Attempts:           res.Attempts,
		NeedsTokenExchange: res.Identity.Source.NeedsTokenExchange(),
		FragmentKeys:       f.Keys(),
		CallbackQuery:      params.Encode(),
	}, nil
}

// NewServer creates an MCP server with the inspection tools registered
func NewServer(name, version string) *mcpserver.MCPServer {
	s := mcpserver.NewMCPServer(name, version,
		mcpserver.WithToolCapabilities(true),
	)

	s.AddTool(mcp.NewTool(ToolResolveRedirect,
		mcp.WithDescription("Resolve the user identity carried in the fragment of an Azure AD B2C redirect URL"),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("Full redirect URL including the #fragment"),
		),
	), handleResolveRedirect)

	s.AddTool(mcp.NewTool(ToolDecodeSegment,
		mcp.WithDescription("Decode one base64url segment, such as client_info or a token part, as JSON"),
		mcp.WithString("segment",
			mcp.Required(),
			mcp.Description("Base64url encoded segment, padding optional"),
		),
	), handleDecodeSegment)

	return s
}

// ServeStdio runs the inspection tools over stdin and stdout
func ServeStdio(name, version string) error {
	log.LogInfoWithFields("inspect", "Serving inspection tools over stdio", map[string]any{
		"tools": []string{ToolResolveRedirect, ToolDecodeSegment},
	})
	return mcpserver.ServeStdio(NewServer(name, version))
}

func handleResolveRedirect(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rawURL, err := request.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	report, err := ResolveRedirect(rawURL)
	if errors.Is(err, fragment.ErrMissing) {
		return mcp.NewToolResultError("the URL has no #fragment; copy it from the address bar before the page loads"), nil
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(report)
}

func handleDecodeSegment(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	segment, err := request.RequireString("segment")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	decoded, err := b64url.DecodeJSON(segment)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(decoded)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
