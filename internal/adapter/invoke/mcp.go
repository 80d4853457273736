package invoke

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"unisearch/internal/domain"
)

// mcpClient abstracts the MCP client interface for testability.
type mcpClient interface {
	CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

// mcpDialer opens an initialized MCP session for a descriptor.
type mcpDialer func(ctx context.Context, inv domain.InvocationDescriptor) (mcpClient, error)

// MCPTransport calls a tool on an MCP server. A fresh session is opened per
// call, over stdio when a command is configured, else streamable HTTP.
type MCPTransport struct {
	dial   mcpDialer
	logger *slog.Logger
}

// NewMCPTransport creates an mcp transport backed by mcp-go.
func NewMCPTransport(logger *slog.Logger) *MCPTransport {
	return &MCPTransport{dial: dialMCP, logger: logger}
}

func newMCPTransportWithDialer(dial mcpDialer, logger *slog.Logger) *MCPTransport {
	return &MCPTransport{dial: dial, logger: logger}
}

func (t *MCPTransport) Call(ctx context.Context, spec domain.ProviderSpec, params domain.Params) (Response, error) {
	inv := spec.Invocation
	c, err := t.dial(ctx, inv)
	if err != nil {
		return Response{Status: -1}, domain.WrapOp("mcp connect", err)
	}
	defer func() {
		if err := c.Close(); err != nil {
			t.logger.Debug("mcp session close error", "provider", spec.ID, "error", err)
		}
	}()

	callReq := mcp.CallToolRequest{}
	callReq.Params.Name = inv.Tool
	callReq.Params.Arguments = typedFields(spec, params, nil)

	t.logger.Debug("mcp tool call", "provider", spec.ID, "tool", inv.Tool)

	result, err := c.CallTool(ctx, callReq)
	if err != nil {
		return Response{Status: -1}, fmt.Errorf("call tool %q: %w", inv.Tool, err)
	}

	content := extractMCPContent(result)
	resp := Response{Output: content, OK: !result.IsError}
	if result.IsError {
		resp.Status = 1
		resp.Diagnostic = content
	}
	return resp, nil
}

func dialMCP(ctx context.Context, inv domain.InvocationDescriptor) (mcpClient, error) {
	var c *mcpclient.Client
	switch {
	case inv.Command != "":
		stdio, err := mcpclient.NewStdioMCPClientWithOptions(inv.Command, inv.Env, inv.Args,
			transport.WithCommandFunc(stdioCommand(inv.Dir)))
		if err != nil {
			return nil, fmt.Errorf("create stdio client: %w", err)
		}
		c = stdio
	case inv.URL != "":
		var opts []transport.StreamableHTTPCOption
		if len(inv.Headers) > 0 {
			opts = append(opts, transport.WithHTTPHeaders(inv.Headers))
		}
		t, err := transport.NewStreamableHTTP(inv.URL, opts...)
		if err != nil {
			return nil, fmt.Errorf("create http transport: %w", err)
		}
		c = mcpclient.NewClient(t)
		if err := c.Start(ctx); err != nil {
			return nil, fmt.Errorf("start http client: %w", err)
		}
	default:
		return nil, fmt.Errorf("mcp provider needs a command or url")
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    "unisearch",
		Version: "1.0.0",
	}
	if _, err := c.Initialize(ctx, initReq); err != nil {
		c.Close()
		return nil, domain.WrapOp("initialize", err)
	}
	return c, nil
}

// stdioCommand launches the MCP server subprocess in dir.
func stdioCommand(dir string) transport.CommandFunc {
	return func(ctx context.Context, command string, env []string, args []string) (*exec.Cmd, error) {
		cmd := exec.CommandContext(ctx, command, args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(), env...)
		return cmd, nil
	}
}

// extractMCPContent converts MCP CallToolResult content to a string.
func extractMCPContent(result *mcp.CallToolResult) string {
	var parts []string
	for _, c := range result.Content {
		switch v := c.(type) {
		case mcp.TextContent:
			parts = append(parts, v.Text)
		case *mcp.TextContent:
			parts = append(parts, v.Text)
		default:
			if data, err := json.Marshal(v); err == nil {
				parts = append(parts, string(data))
			}
		}
	}
	return strings.Join(parts, "\n")
}
