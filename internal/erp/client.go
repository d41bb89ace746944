package erp

import (
	"context"
	"fmt"
	"time"
)

const (
	ProtocolJSONRPC = "jsonrpc"
	ProtocolXMLRPC  = "xmlrpc"

	defaultCallTimeout = 60 * time.Second
)

// Call is a fully translated remote operation, produced by a module handler
// and executed by a Client.
type Call struct {
	Model  string
	Method string
	Args   []interface{}
	Kwargs map[string]interface{}
}

// Client is the wire-protocol contract against the ERP. Both protocol
// variants implement the same remote semantics; choosing one is
// configuration, not behavior.
type Client interface {
	// Authenticate acquires a session. Called lazily by ExecuteKw when no
	// session is held, and again by the retry wrapper on session expiry.
	Authenticate(ctx context.Context) error
	// ExecuteKw invokes method on model with positional args and keyword
	// kwargs, returning the decoded result.
	ExecuteKw(ctx context.Context, model, method string, args []interface{}, kwargs map[string]interface{}) (interface{}, error)
	// SessionUID returns the authenticated user id, or 0 when no session is
	// held.
	SessionUID() int
}

// Options configures a protocol client.
type Options struct {
	URL      string
	Database string
	Username string
	Password string
	Timeout  time.Duration // per-call; defaults to defaultCallTimeout
}

func (o Options) timeout() time.Duration {
	if o.Timeout > 0 {
		return o.Timeout
	}
	return defaultCallTimeout
}

// NewClient builds the configured protocol client wrapped with the
// transport-level retry policy.
func NewClient(protocol string, opts Options) (Client, error) {
	var inner Client
	switch protocol {
	case ProtocolJSONRPC:
		inner = NewJSONRPCClient(opts)
	case ProtocolXMLRPC:
		inner = NewXMLRPCClient(opts)
	default:
		return nil, fmt.Errorf("unknown ERP protocol %q", protocol)
	}
	return NewRetryClient(inner), nil
}
