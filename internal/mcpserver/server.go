// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes safeguard tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/safeguard/internal/apperr"
	"github.com/starford/safeguard/internal/catalog"
	"github.com/starford/safeguard/internal/download"
	"github.com/starford/safeguard/internal/models"
	"github.com/starford/safeguard/internal/safeguard"
)

const formatURI = "safeguard://snapshot-format"

// Service is the safeguard surface the tools call into.
type Service interface {
	EnsureFreshSnapshot(ctx context.Context) (download.Outcome, error)
	GetCachedTransactions(ctx context.Context) ([]models.Transaction, error)
	Status(ctx context.Context) (safeguard.Status, error)
	Snapshots(ctx context.Context) ([]catalog.Row, error)
}

// Server wraps the MCP server with safeguard tools.
type Server struct {
	mcp *server.MCPServer
	svc Service
}

// New creates a new MCP server with all safeguard tools registered.
func New(svc Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Safeguard",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("ensure_fresh_snapshot",
		mcp.WithDescription("Make sure today's safeguard snapshot is cached, downloading it from the "+
			"remote node if missing. Returns the cycle outcome (cached, written, empty, fetch_failed, ...)."),
	), s.ensureFreshSnapshot)

	s.mcp.AddTool(mcp.NewTool("get_cached_transactions",
		mcp.WithDescription("Return the transactions of the latest cached snapshot as JSON, in random order. "+
			"Never contacts the remote node."),
		mcp.WithNumber("limit", mcp.Description("Optional maximum number of transactions (0 for all)")),
	), s.getCachedTransactions)

	s.mcp.AddTool(mcp.NewTool("download_status",
		mcp.WithDescription("Report whether a download is in flight, which day should be cached and what is cached."),
	), s.downloadStatus)

	s.mcp.AddTool(mcp.NewTool("list_snapshots",
		mcp.WithDescription("List cached snapshots, newest first, with size, checksum and counts."),
	), s.listSnapshots)

	s.mcp.AddTool(mcp.NewTool("get_snapshot_format",
		mcp.WithDescription("Returns the on-disk safeguard snapshot format. "+
			"Read this before inspecting cache files directly."),
	), s.getSnapshotFormat)

	// Resource: snapshot format contract.
	s.mcp.AddResource(
		mcp.NewResource(formatURI, "Snapshot Format",
			mcp.WithResourceDescription("File naming and MessagePack layout of cached safeguard snapshots."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readSnapshotFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) ensureFreshSnapshot(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	outcome, err := s.svc.EnsureFreshSnapshot(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if outcome.Failed() {
		return mcp.NewToolResultError(fmt.Sprintf("cycle failed: %s", outcome)), nil
	}
	return mcp.NewToolResultText(string(outcome)), nil
}

func (s *Server) getCachedTransactions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := req.GetInt("limit", 0)

	txs, err := s.svc.GetCachedTransactions(ctx)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return mcp.NewToolResultError("no snapshot cached yet; call ensure_fresh_snapshot first"), nil
	case errors.Is(err, apperr.ErrDeserialization):
		return mcp.NewToolResultError("cache corrupt: " + err.Error()), nil
	case err != nil:
		return mcp.NewToolResultError(err.Error()), nil
	}
	if limit > 0 && limit < len(txs) {
		txs = txs[:limit]
	}
	out, _ := json.MarshalIndent(txs, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) downloadStatus(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, err := s.svc.Status(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(st, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listSnapshots(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rows, err := s.svc.Snapshots(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(rows) == 0 {
		return mcp.NewToolResultText("no snapshots cached"), nil
	}
	out, _ := json.MarshalIndent(rows, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getSnapshotFormat(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(SnapshotFormatContract), nil
}

func (s *Server) readSnapshotFormatResource(context.Context, mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      formatURI,
			MIMEType: "text/markdown",
			Text:     SnapshotFormatContract,
		},
	}, nil
}
