// Package toolserver exposes the therapist's assessment tools over MCP so an
// external model client can record assessments into a room.
package toolserver

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/bytedance/sonic"
	"github.com/code-100-precent/LingCare/internal/therapist"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
)

const ServerName = "lingcare"

// New registers every therapist tool, in the order the agent offers them.
func New(t *therapist.Therapist, version string, lg *zap.Logger) (*server.MCPServer, error) {
	if lg == nil {
		lg = zap.L()
	}
	s := server.NewMCPServer(ServerName, version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	for _, def := range t.Tools() {
		schema, err := sonic.Marshal(def.Parameters)
		if err != nil {
			return nil, fmt.Errorf("schema for %s: %w", def.Name, err)
		}
		tool := mcp.NewToolWithRawSchema(def.Name, def.Description, schema)
		callback := def.Callback
		name := def.Name
		s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			out, err := callback(ctx, req.GetArguments())
			if err != nil {
				lg.Warn("mcp tool call rejected", zap.String("tool", name), zap.Error(err))
				return mcp.NewToolResultError(err.Error()), nil
			}
			return mcp.NewToolResultText(out), nil
		})
	}
	return s, nil
}

// ServeStdio answers MCP requests on in/out until ctx ends.
func ServeStdio(ctx context.Context, s *server.MCPServer, in io.Reader, out io.Writer, lg *zap.Logger) error {
	stdio := server.NewStdioServer(s)
	errLog, err := zap.NewStdLogAt(lg, zap.WarnLevel)
	if err != nil {
		errLog = log.New(io.Discard, "", 0)
	}
	stdio.SetErrorLogger(errLog)
	return stdio.Listen(ctx, in, out)
}
