// Package mcp provides an MCP (Model Context Protocol) server exposing strata
// maintenance as agent tools.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/strata/pkg/maintenance"
	"github.com/papercomputeco/strata/pkg/memory"
	"github.com/papercomputeco/strata/pkg/quality"
	"github.com/papercomputeco/strata/pkg/tier"
	"github.com/papercomputeco/strata/pkg/utils"
)

// Maintainer is the part of *maintenance.Orchestrator the tools drive.
type Maintainer interface {
	RunCycle(ctx context.Context, triggeredBy string) *maintenance.Report
	EvaluateQuality(ctx context.Context) (*quality.Report, error)
	GetLastQualityReport() *quality.Report
	Telemetry() maintenance.Telemetry
	NextDelay() time.Duration
}

// Signaler sends access and strength signals to stored items.
type Signaler interface {
	Signal(ctx context.Context, name memory.TierName, signal tier.Signal, id string, amount float64) (tier.SignalResult, error)
}

type Config struct {
	// Maintainer runs cycles and evaluates quality.
	Maintainer Maintainer

	// Signals backs the memory_signal tool. The tool is not registered
	// without it.
	Signals Signaler

	// Noop for empty MCP server
	Noop bool

	Logger *slog.Logger
}

type Server struct {
	config    Config
	mcpServer *mcp.Server
	handler   *mcp.StreamableHTTPHandler
}

// NewServer creates a new MCP server with the maintenance tools.
func NewServer(c Config) (*Server, error) {
	s := &Server{
		config: c,
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "strata",
			Version: utils.Version,
		},
		&mcp.ServerOptions{},
	)

	if !c.Noop {
		if c.Maintainer == nil {
			return nil, errors.New("maintainer is required")
		}
		if c.Logger == nil {
			return nil, errors.New("logger is required")
		}

		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        runMaintenanceToolName,
			Description: runMaintenanceDescription,
		}, s.handleRunMaintenance)

		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        qualityReportToolName,
			Description: qualityReportDescription,
		}, s.handleQualityReport)

		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        statusToolName,
			Description: statusDescription,
		}, s.handleStatus)

		if c.Signals != nil {
			mcp.AddTool(mcpServer, &mcp.Tool{
				Name:        signalToolName,
				Description: signalDescription,
			}, s.handleSignal)
		}
	}

	s.mcpServer = mcpServer

	// Create a streamable HTTP net/http handler for stateless operations
	s.handler = mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server {
			return mcpServer
		},
		&mcp.StreamableHTTPOptions{
			Stateless: true,
		},
	)

	return s, nil
}

// Handler returns the HTTP handler for the MCP server.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// textResult serializes output as JSON into a TextContent block, alongside
// the structured output, for clients that only read text.
func textResult[T any](output T) (*mcp.CallToolResult, T, error) {
	jsonBytes, err := json.Marshal(output)
	if err != nil {
		var zero T
		return errorResult(fmt.Sprintf("Failed to serialize results: %v", err)), zero, nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(jsonBytes)},
		},
	}, output, nil
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: msg},
		},
	}
}
