package erp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
)

// JSONRPCClient talks JSON-RPC 2.0 to the ERP's /jsonrpc endpoint.
type JSONRPCClient struct {
	opts       Options
	httpClient *http.Client
	nextID     int64

	mu  sync.Mutex
	uid int
}

func NewJSONRPCClient(opts Options) *JSONRPCClient {
	return &JSONRPCClient{
		opts: opts,
		httpClient: &http.Client{
			Timeout: opts.timeout(),
		},
	}
}

type jsonrpcRequest struct {
	JSONRPC string                 `json:"jsonrpc"`
	Method  string                 `json:"method"`
	Params  map[string]interface{} `json:"params"`
	ID      int64                  `json:"id"`
}

type jsonrpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Name    string `json:"name"`
		Message string `json:"message"`
	} `json:"data"`
}

type jsonrpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *jsonrpcError   `json:"error"`
}

// Authenticate logs in against the common service and stores the session uid.
func (c *JSONRPCClient) Authenticate(ctx context.Context) error {
	result, err := c.call(ctx, "common", "login",
		[]interface{}{c.opts.Database, c.opts.Username, c.opts.Password})
	if err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}

	var uid float64
	if err := json.Unmarshal(result, &uid); err != nil || uid == 0 {
		return &ValidationError{Err: fmt.Errorf("login rejected for user %s", c.opts.Username)}
	}

	c.mu.Lock()
	c.uid = int(uid)
	c.mu.Unlock()
	return nil
}

// ExecuteKw invokes a model method through the object service,
// authenticating first if no session is held.
func (c *JSONRPCClient) ExecuteKw(ctx context.Context, model, method string, args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
	uid := c.SessionUID()
	if uid == 0 {
		if err := c.Authenticate(ctx); err != nil {
			return nil, err
		}
		uid = c.SessionUID()
	}

	if kwargs == nil {
		kwargs = map[string]interface{}{}
	}

	result, err := c.call(ctx, "object", "execute_kw",
		[]interface{}{c.opts.Database, uid, c.opts.Password, model, method, args, kwargs})
	if err != nil {
		return nil, err
	}

	var decoded interface{}
	if err := json.Unmarshal(result, &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode result: %w", err)
	}
	return decoded, nil
}

func (c *JSONRPCClient) SessionUID() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.uid
}

func (c *JSONRPCClient) call(ctx context.Context, service, method string, args []interface{}) (json.RawMessage, error) {
	reqBody := jsonrpcRequest{
		JSONRPC: "2.0",
		Method:  "call",
		Params: map[string]interface{}{
			"service": service,
			"method":  method,
			"args":    args,
		},
		ID: atomic.AddInt64(&c.nextID, 1),
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.opts.URL+"/jsonrpc", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyNetErr(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyNetErr(err)
	}

	if resp.StatusCode >= 500 {
		return nil, &TransientError{Err: fmt.Errorf("remote error (status %d): %s", resp.StatusCode, body)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &ValidationError{Err: fmt.Errorf("API error (status %d): %s", resp.StatusCode, body)}
	}

	var rpcResp jsonrpcResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if rpcResp.Error != nil {
		// Session-expiry faults carry a dedicated code alongside the
		// exception name.
		if rpcResp.Error.Code == 100 {
			return nil, &AuthExpiredError{Err: fmt.Errorf("%s", rpcResp.Error.Message)}
		}
		return nil, classifyFault(rpcResp.Error.Data.Name, rpcResp.Error.Data.Message)
	}

	return rpcResp.Result, nil
}
