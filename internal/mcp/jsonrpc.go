package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"go.uber.org/zap"
)

const protocolVersion = "2024-11-05"

// JSON-RPC 2.0 error codes.
const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
)

// maxLine bounds a single request line.
const maxLine = 4 << 20

// Server answers MCP requests over newline-delimited JSON-RPC 2.0. Each
// tools/call is dispatched to a registered tool.
type Server struct {
	tools    []toolDef
	byName   map[string]int
	analyzer Analyzer
	cohorts  CohortLister
	version  string
	logger   *zap.Logger
}

type toolDef struct {
	Name        string
	Description string
	InputSchema json.RawMessage
	Handler     toolHandler
}

// toolHandler receives the raw "arguments" object of a tools/call request.
type toolHandler func(ctx context.Context, args json.RawMessage) (any, error)

type jsonrpcRequest struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      *json.RawMessage `json:"id,omitempty"`
	Method  string           `json:"method"`
	Params  json.RawMessage  `json:"params,omitempty"`
}

type jsonrpcResponse struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      *json.RawMessage `json:"id,omitempty"`
	Result  any              `json:"result,omitempty"`
	Error   *jsonrpcError    `json:"error,omitempty"`
}

type jsonrpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type toolsCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// toolsCallResult carries a tool's JSON output as a single text item.
// Tool failures are reported here with IsError set, not as JSON-RPC errors.
type toolsCallResult struct {
	Content []mcpContent `json:"content"`
	IsError bool         `json:"isError"`
}

type mcpContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type toolListEntry struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// NewServer constructs a Server answering from a. cohorts may be nil, in
// which case list_cohorts reports an error. A nil logger discards output.
func NewServer(a Analyzer, cohorts CohortLister, version string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		byName:   map[string]int{},
		analyzer: a,
		cohorts:  cohorts,
		version:  version,
		logger:   logger,
	}
	addTools(s)
	return s
}

// registerTool adds def, replacing any tool with the same name.
func (s *Server) registerTool(def toolDef) {
	if i, ok := s.byName[def.Name]; ok {
		s.tools[i] = def
		return
	}
	s.byName[def.Name] = len(s.tools)
	s.tools = append(s.tools, def)
}

// Run serves requests read from r until ctx is cancelled or r reaches EOF,
// both of which return nil. Read and write failures are returned.
func (s *Server) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	bw := bufio.NewWriter(w)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)

	lines := make(chan []byte)
	errCh := make(chan error, 1)

	go func() {
		defer close(lines)
		for scanner.Scan() {
			line := append([]byte(nil), scanner.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			errCh <- err
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-errCh:
					return fmt.Errorf("reading request: %w", err)
				default:
					return nil
				}
			}
			resp, reply := s.handle(ctx, line)
			if !reply {
				continue
			}
			if err := writeResponse(bw, resp); err != nil {
				return fmt.Errorf("writing response: %w", err)
			}
		}
	}
}

// handle decodes one request line. reply is false for notifications.
func (s *Server) handle(ctx context.Context, line []byte) (resp jsonrpcResponse, reply bool) {
	resp.JSONRPC = "2.0"

	var req jsonrpcRequest
	if err := json.Unmarshal(line, &req); err != nil {
		resp.Error = &jsonrpcError{Code: codeParseError, Message: "Parse error"}
		return resp, true
	}
	if req.ID == nil {
		s.logger.Debug("notification", zap.String("method", req.Method))
		return resp, false
	}
	resp.ID = req.ID

	switch req.Method {
	case "initialize":
		resp.Result = s.initialize()
	case "ping":
		resp.Result = struct{}{}
	case "tools/list":
		resp.Result = s.listTools()
	case "tools/call":
		var params toolsCallParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			resp.Error = &jsonrpcError{Code: codeInvalidParams, Message: "Invalid params"}
			break
		}
		resp.Result = s.callTool(ctx, params)
	default:
		resp.Error = &jsonrpcError{Code: codeMethodNotFound, Message: "Method not found"}
	}
	return resp, true
}

func (s *Server) initialize() map[string]any {
	return map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]any{"tools": map[string]any{}},
		"serverInfo": map[string]any{
			"name":    "cohortwatch",
			"version": s.version,
		},
	}
}

func (s *Server) listTools() map[string]any {
	entries := make([]toolListEntry, 0, len(s.tools))
	for _, t := range s.tools {
		entries = append(entries, toolListEntry{Name: t.Name, Description: t.Description, InputSchema: t.InputSchema})
	}
	return map[string]any{"tools": entries}
}

func (s *Server) callTool(ctx context.Context, params toolsCallParams) toolsCallResult {
	i, ok := s.byName[params.Name]
	if !ok {
		return textResult(fmt.Sprintf("unknown tool: %s", params.Name), true)
	}

	args := params.Arguments
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}

	result, err := s.tools[i].Handler(ctx, args)
	if err != nil {
		s.logger.Debug("tool call failed", zap.String("tool", params.Name), zap.Error(err))
		return textResult(err.Error(), true)
	}
	data, err := json.Marshal(result)
	if err != nil {
		return textResult(err.Error(), true)
	}
	return textResult(string(data), false)
}

func textResult(text string, isError bool) toolsCallResult {
	return toolsCallResult{Content: []mcpContent{{Type: "text", Text: text}}, IsError: isError}
}

// writeResponse writes resp as one JSON line and flushes.
func writeResponse(bw *bufio.Writer, resp jsonrpcResponse) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if _, err := bw.Write(data); err != nil {
		return err
	}
	return bw.Flush()
}
