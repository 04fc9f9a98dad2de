package mcp

import (
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/standardbeagle/flowparse/internal/results"
)

func createJSONResponse(data interface{}) (*mcp.CallToolResult, error) {
	content, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response data: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(content)}},
	}, nil
}

func errorResponse(operation string, err error) (*mcp.CallToolResult, error) {
	return createJSONResponse(map[string]interface{}{
		"success":   false,
		"operation": operation,
		"error":     err.Error(),
	})
}

// summaryResponse renders a Results value as the bucket-count summary the
// caller actually wants over the wire; full FileKey lists stay out of the
// payload to keep large batches cheap to transmit.
func summaryResponse(operation string, res *results.Results, runErr error) (*mcp.CallToolResult, error) {
	if res == nil {
		return errorResponse(operation, runErr)
	}

	payload := map[string]interface{}{
		"success":      runErr == nil,
		"operation":    operation,
		"parsed":       len(res.Parsed),
		"unparsed":     len(res.Unparsed),
		"changed":      len(res.Changed),
		"unchanged":    len(res.Unchanged),
		"not_found":    len(res.NotFound),
		"package_json": len(res.PackageKeys),
		"failed":       len(res.FailedKeys),
		"dirty_modules": len(res.DirtyModules),
	}
	if runErr != nil {
		payload["error"] = runErr.Error()
	}
	return createJSONResponse(payload)
}
