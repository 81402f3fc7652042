package command

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	uuid "github.com/satori/go.uuid"
)

// UDSClient is a JSON-RPC client over the admin Unix domain socket.
type UDSClient struct {
	socketPath string
	timeout    time.Duration
}

// NewUDSClient creates a client dialing socketPath, defaulting timeout
// to 10s when zero.
func NewUDSClient(socketPath string, timeout time.Duration) *UDSClient {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &UDSClient{socketPath: socketPath, timeout: timeout}
}

// Call sends method/params as a JSON-RPC request and waits for the
// matching response. Each call opens and closes its own connection,
// since admin commands are infrequent and one-shot.
func (c *UDSClient) Call(ctx context.Context, method string, params interface{}) (*Response, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("uds client: dial %s: %w", c.socketPath, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(c.timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	conn.SetDeadline(deadline)

	var paramsJSON json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("uds client: marshal params: %w", err)
		}
		paramsJSON = data
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("uds client: generate request id: %w", err)
	}
	reqID := id.String()
	req := JSONRPCRequest{JSONRPC: "2.0", Method: method, Params: paramsJSON, ID: reqID}

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return nil, fmt.Errorf("uds client: send request: %w", err)
	}

	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("uds client: read response: %w", err)
		}
		return nil, fmt.Errorf("uds client: connection closed without response")
	}

	var jsonrpcResp JSONRPCResponse
	if err := json.Unmarshal(scanner.Bytes(), &jsonrpcResp); err != nil {
		return nil, fmt.Errorf("uds client: parse response: %w", err)
	}

	respIDStr := fmt.Sprintf("%v", jsonrpcResp.ID)
	if respIDStr != reqID {
		return nil, fmt.Errorf("uds client: response id mismatch: want %s got %s", reqID, respIDStr)
	}

	return &Response{ID: respIDStr, Result: jsonrpcResp.Result, Error: jsonrpcResp.Error}, nil
}

// Noop pings the daemon; its only effect is a CommandCount increment.
func (c *UDSClient) Noop(ctx context.Context) (*Response, error) { return c.Call(ctx, "noop", nil) }

// ResetCounters zeros the bus's HK counters, CommandCount included.
func (c *UDSClient) ResetCounters(ctx context.Context) (*Response, error) {
	return c.Call(ctx, "reset_counters", nil)
}

// Stats fetches STATS_TLM.
func (c *UDSClient) Stats(ctx context.Context) (*Response, error) { return c.Call(ctx, "stats", nil) }

// WriteRoutingInfo/WritePipeInfo/WriteMapInfo dump the matching file.
func (c *UDSClient) WriteRoutingInfo(ctx context.Context) (*Response, error) {
	return c.Call(ctx, "write_routing_info", nil)
}

func (c *UDSClient) WritePipeInfo(ctx context.Context) (*Response, error) {
	return c.Call(ctx, "write_pipe_info", nil)
}

func (c *UDSClient) WriteMapInfo(ctx context.Context) (*Response, error) {
	return c.Call(ctx, "write_map_info", nil)
}

// EnableRoute/DisableRoute toggle one destination by MsgId and pipe name.
func (c *UDSClient) EnableRoute(ctx context.Context, msgID uint32, pipeName string) (*Response, error) {
	return c.Call(ctx, "enable_route", RouteToggleParams{MsgID: msgID, PipeName: pipeName})
}

func (c *UDSClient) DisableRoute(ctx context.Context, msgID uint32, pipeName string) (*Response, error) {
	return c.Call(ctx, "disable_route", RouteToggleParams{MsgID: msgID, PipeName: pipeName})
}

// EnableSubReporting/DisableSubReporting toggle ONESUB_TLM emission.
func (c *UDSClient) EnableSubReporting(ctx context.Context) (*Response, error) {
	return c.Call(ctx, "enable_sub_reporting", nil)
}

func (c *UDSClient) DisableSubReporting(ctx context.Context) (*Response, error) {
	return c.Call(ctx, "disable_sub_reporting", nil)
}

// SendPrevSubs requests a segmented ALLSUBS_TLM replay with one entry
// per MsgId that has a global-scope destination.
func (c *UDSClient) SendPrevSubs(ctx context.Context) (*Response, error) {
	return c.Call(ctx, "send_prev_subs", nil)
}
