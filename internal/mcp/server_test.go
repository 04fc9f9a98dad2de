package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/flowparse/internal/dispatch"
	"github.com/standardbeagle/flowparse/internal/fkey"
	"github.com/standardbeagle/flowparse/internal/heap"
	"github.com/standardbeagle/flowparse/internal/popts"
	"github.com/standardbeagle/flowparse/internal/reducer"
)

func TestClassifyPath(t *testing.T) {
	assert.Equal(t, fkey.Json, ClassifyPath("package.json").Kind())
	assert.Equal(t, fkey.Source, ClassifyPath("src/app.tsx").Kind())
	assert.Equal(t, fkey.Resource, ClassifyPath("assets/logo.svg").Kind())
}

func newTestServer(files map[fkey.FileKey][]byte) *Server {
	h := heap.New()
	driver := &dispatch.Driver{
		Heap: h,
		Read: func(key fkey.FileKey) ([]byte, error) {
			b, ok := files[key]
			if !ok {
				return nil, errors.New("not found")
			}
			return b, nil
		},
		Workers:    2,
		BucketSize: 8,
		Options:    popts.ParsingOptions{TypesMode: popts.TypesAllowed},
		ResolveMod: func(key fkey.FileKey, hint reducer.Hint) fkey.ModuleName { return fkey.ModuleName(key.Path()) },
	}
	return NewServer(driver)
}

func argsRequest(t *testing.T, files []string) *mcp.CallToolRequest {
	t.Helper()
	b, err := json.Marshal(filesParams{Files: files})
	require.NoError(t, err)
	return &mcp.CallToolRequest{Params: &mcp.CallToolParamsRaw{Arguments: b}}
}

func TestHandleParse_ReturnsSummary(t *testing.T) {
	key := fkey.NewSource("a.js")
	s := newTestServer(map[fkey.FileKey][]byte{key: []byte("export const x = 1;\n")})

	result, err := s.handleParse(context.Background(), argsRequest(t, []string{"a.js"}))
	require.NoError(t, err)
	require.Len(t, result.Content, 1)

	text, ok := result.Content[0].(*mcp.TextContent)
	require.True(t, ok)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(text.Text), &payload))
	assert.Equal(t, true, payload["success"])
	assert.Equal(t, float64(1), payload["parsed"])
}

func TestHandleParse_InvalidArgumentsReportsError(t *testing.T) {
	s := newTestServer(nil)
	req := &mcp.CallToolRequest{Params: &mcp.CallToolParamsRaw{Arguments: json.RawMessage(`not json`)}}

	result, err := s.handleParse(context.Background(), req)
	require.NoError(t, err)

	text := result.Content[0].(*mcp.TextContent)
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(text.Text), &payload))
	assert.Equal(t, false, payload["success"])
}
