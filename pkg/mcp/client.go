// Package mcp implements a JSON-RPC-over-stdio client for Model Context
// Protocol auxiliary tool servers (§4.6): one subprocess per server,
// newline-delimited JSON framing, monotonic request ids, and a
// response-dispatch map guarded by a mutex.
package mcp

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const requestTimeout = 120 * time.Second

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  jsoniter.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string { return fmt.Sprintf("mcp error %d: %s", e.Code, e.Message) }

// ToolSchema describes one tool exposed by the server.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema jsoniter.RawMessage `json:"inputSchema"`
}

// CallToolResult is the result of a tools/call RPC.
type CallToolResult struct {
	Content []ToolContent `json:"content"`
	IsError bool          `json:"isError"`
}

// ToolContent is one content block of a tool call's result.
type ToolContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Client manages one MCP server subprocess and its request/response
// traffic.
type Client struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	nextID atomic.Int64

	mu      sync.Mutex
	pending map[int64]chan rpcResponse

	Tools []ToolSchema
}

// Start spawns program, performs the initialize/initialized/tools-list
// handshake, and returns a ready Client.
func Start(ctx context.Context, program string, args ...string) (*Client, error) {
	cmd := exec.Command(program, args...)
	cmd.Stderr = io.Discard

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("mcp: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("mcp: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("mcp: start %s: %w", program, err)
	}

	c := &Client{
		cmd:     cmd,
		stdin:   stdin,
		pending: make(map[int64]chan rpcResponse),
	}
	go c.readLoop(stdout)

	if err := c.handshake(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) handshake(ctx context.Context) error {
	initParams := map[string]any{
		"protocolVersion": "2024-11-05",
		"clientInfo":      map[string]string{"name": "omega", "version": "1"},
	}
	if _, err := c.call(ctx, "initialize", initParams); err != nil {
		return fmt.Errorf("mcp: initialize: %w", err)
	}
	if err := c.notify("notifications/initialized", nil); err != nil {
		return fmt.Errorf("mcp: initialized notification: %w", err)
	}

	result, err := c.call(ctx, "tools/list", nil)
	if err != nil {
		return fmt.Errorf("mcp: tools/list: %w", err)
	}
	var listed struct {
		Tools []ToolSchema `json:"tools"`
	}
	if err := json.Unmarshal(result, &listed); err != nil {
		return fmt.Errorf("mcp: parse tools/list: %w", err)
	}
	c.Tools = listed.Tools
	return nil
}

// CallTool invokes a tool by name with the given arguments.
func (c *Client) CallTool(ctx context.Context, name string, arguments map[string]any) (CallToolResult, error) {
	result, err := c.call(ctx, "tools/call", map[string]any{"name": name, "arguments": arguments})
	if err != nil {
		return CallToolResult{}, err
	}
	var out CallToolResult
	if err := json.Unmarshal(result, &out); err != nil {
		return CallToolResult{}, fmt.Errorf("mcp: parse tools/call result: %w", err)
	}
	return out, nil
}

func (c *Client) call(ctx context.Context, method string, params any) (jsoniter.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	id := c.nextID.Add(1)
	ch := make(chan rpcResponse, 1)
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	req := rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}
	line, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	if err := c.writeLine(line); err != nil {
		return nil, err
	}

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("mcp: request %q timed out: %w", method, ctx.Err())
	}
}

func (c *Client) notify(method string, params any) error {
	req := rpcRequest{JSONRPC: "2.0", Method: method, Params: params}
	line, err := json.Marshal(req)
	if err != nil {
		return err
	}
	return c.writeLine(line)
}

func (c *Client) writeLine(line []byte) error {
	line = append(line, '\n')
	_, err := c.stdin.Write(line)
	return err
}

// readLoop dispatches each newline-delimited response to the pending
// channel matching its id; unmatched lines (notifications, diagnostics)
// are skipped.
func (c *Client) readLoop(stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		var resp rpcResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			continue
		}
		c.mu.Lock()
		ch, ok := c.pending[resp.ID]
		c.mu.Unlock()
		if !ok {
			continue
		}
		ch <- resp
	}
	if err := scanner.Err(); err != nil {
		slog.Debug("mcp: read loop ended", "error", err)
	}
}

// Close kills the server process and waits up to 5s for it to exit.
func (c *Client) Close() error {
	_ = c.stdin.Close()
	if c.cmd.Process != nil {
		_ = c.cmd.Process.Kill()
	}
	done := make(chan error, 1)
	go func() { done <- c.cmd.Wait() }()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		return fmt.Errorf("mcp: server process did not exit within 5s")
	}
}
