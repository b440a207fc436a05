package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const (
	mcpServerName    = "RemoteRun"
	mcpServerVersion = "0.1.0"
	runCodeTool      = "run_code"
)

const runCodeDescription = `Run a function defined by its source code string with the given arguments.

function_source must be a single, valid Go function that can be executed directly with no imports,
for example: func add(a, b int) int { return a + b }
hostname is the remote host to execute the function on (host, user@host or user@host:port).
function_args are keyword arguments bound to the function's parameters by name.

Returns {"Result": "<string form of the return value>"} or {"Error": "<message>"}.`

// NewMCPServer registers run_code as the server's only tool
func NewMCPServer(runner CodeRunner) *server.MCPServer {
	s := server.NewMCPServer(
		mcpServerName,
		mcpServerVersion,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	s.AddTool(newToolRunCode(), handleRunCode(runner))
	return s
}

func newToolRunCode() mcp.Tool {
	return mcp.NewTool(
		runCodeTool,
		mcp.WithDescription(runCodeDescription),
		mcp.WithDestructiveHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(false),
		mcp.WithString("function_source", mcp.Description("Source of a single self-contained Go function"), mcp.Required(), mcp.MinLength(1)),
		mcp.WithString("hostname", mcp.Description("Remote host to run the function on"), mcp.Required(), mcp.MinLength(1)),
		mcp.WithObject("function_args", mcp.Description("Keyword arguments passed to the function, keyed by parameter name")),
	)
}

func handleRunCode(runner CodeRunner) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		source, err := request.RequireString("function_source")
		if err != nil {
			return mcp.NewToolResultErrorFromErr("missing function_source", err), nil
		}
		hostname, err := request.RequireString("hostname")
		if err != nil {
			return mcp.NewToolResultErrorFromErr("missing hostname", err), nil
		}
		args, err := parseArgs(request.GetArguments()["function_args"])
		if err != nil {
			return mcp.NewToolResultErrorFromErr("invalid function_args", err), nil
		}

		resp := runner.RunCode(ctx, source, hostname, args)
		body, err := json.Marshal(resp)
		if err != nil {
			return mcp.NewToolResultErrorFromErr("encode result failed", err), nil
		}
		if resp.IsError() {
			return mcp.NewToolResultError(string(body)), nil
		}
		return mcp.NewToolResultText(string(body)), nil
	}
}

// parseArgs accepts an object or a JSON-encoded object string
func parseArgs(raw interface{}) (map[string]interface{}, error) {
	switch v := raw.(type) {
	case nil:
		return map[string]interface{}{}, nil
	case map[string]interface{}:
		return v, nil
	case string:
		if v == "" {
			return map[string]interface{}{}, nil
		}
		var out map[string]interface{}
		if err := json.Unmarshal([]byte(v), &out); err != nil {
			return nil, err
		}
		if out == nil {
			out = map[string]interface{}{}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected an object, got %T", raw)
	}
}
