// Package mcp exposes the parsing service's three dispatch entry points —
// parse, reparse, ensure_parsed — as MCP tools over stdio, mirroring the
// teacher's tool-registration idiom trimmed to this service's surface.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/standardbeagle/flowparse/internal/debug"
	"github.com/standardbeagle/flowparse/internal/dispatch"
	"github.com/standardbeagle/flowparse/internal/fkey"
)

// Server wraps the go-sdk MCP server bound to one Dispatch Driver.
type Server struct {
	server *mcp.Server
	driver *dispatch.Driver
}

// NewServer builds a Server with every tool registered, ready for Start.
func NewServer(driver *dispatch.Driver) *Server {
	s := &Server{
		driver: driver,
		server: mcp.NewServer(&mcp.Implementation{
			Name:    "flowparse-mcp-server",
			Version: "0.1.0",
		}, nil),
	}
	s.registerTools()
	return s
}

// Start runs the server over stdio until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	debug.LogMCP("starting stdio transport\n")
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) registerTools() {
	filesSchema := &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"files": {
				Type:        "array",
				Items:       &jsonschema.Schema{Type: "string"},
				Description: "File paths to process, classified by extension into source/json/resource",
			},
		},
		Required: []string{"files"},
	}

	s.server.AddTool(&mcp.Tool{
		Name:        "parse",
		Description: "Cold parse: classify every listed file and write fresh heap entries, skipping nothing.",
		InputSchema: filesSchema,
	}, s.handleParse)

	s.server.AddTool(&mcp.Tool{
		Name:        "reparse",
		Description: "Incremental reparse: skip files whose content hash is unchanged, commit via a transaction.",
		InputSchema: filesSchema,
	}, s.handleReparse)

	s.server.AddTool(&mcp.Tool{
		Name:        "ensure_parsed",
		Description: "Parse only files that currently lack a heap AST; report changed/not-found for the rest.",
		InputSchema: filesSchema,
	}, s.handleEnsureParsed)
}

type filesParams struct {
	Files []string `json:"files"`
}

func parseFileKeys(args json.RawMessage) ([]fkey.FileKey, error) {
	var p filesParams
	if err := json.Unmarshal(args, &p); err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}
	keys := make([]fkey.FileKey, len(p.Files))
	for i, path := range p.Files {
		keys[i] = ClassifyPath(path)
	}
	return keys, nil
}

// ClassifyPath maps a raw filesystem path to the FileKey variant the rest
// of the service dispatches on (§3.1's three FileKey kinds).
func ClassifyPath(path string) fkey.FileKey {
	if fkey.HasExt(path, "json") {
		return fkey.NewJSON(path)
	}
	if fkey.HasExt(path, "js", "jsx", "mjs", "cjs", "ts", "tsx") {
		return fkey.NewSource(path)
	}
	return fkey.NewResource(path)
}

func (s *Server) handleParse(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	keys, err := parseFileKeys(req.Params.Arguments)
	if err != nil {
		return errorResponse("parse", err)
	}
	res, err := s.driver.Parse(ctx, keys)
	return summaryResponse("parse", res, err)
}

func (s *Server) handleReparse(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	keys, err := parseFileKeys(req.Params.Arguments)
	if err != nil {
		return errorResponse("reparse", err)
	}
	res, err := s.driver.Reparse(ctx, keys)
	return summaryResponse("reparse", res, err)
}

func (s *Server) handleEnsureParsed(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	keys, err := parseFileKeys(req.Params.Arguments)
	if err != nil {
		return errorResponse("ensure_parsed", err)
	}
	res, err := s.driver.EnsureParsed(ctx, keys)
	return summaryResponse("ensure_parsed", res, err)
}
