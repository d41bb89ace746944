package erp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/kolo/xmlrpc"
)

// XMLRPCClient talks XML-RPC to the ERP's /xmlrpc/2/common and
// /xmlrpc/2/object endpoints. Same remote semantics as the JSON-RPC variant.
type XMLRPCClient struct {
	opts Options

	mu     sync.Mutex
	uid    int
	common *xmlrpc.Client
	object *xmlrpc.Client
}

func NewXMLRPCClient(opts Options) *XMLRPCClient {
	return &XMLRPCClient{opts: opts}
}

// Authenticate logs in against the common endpoint and stores the session uid.
func (c *XMLRPCClient) Authenticate(ctx context.Context) error {
	client, err := c.endpoint("common")
	if err != nil {
		return err
	}

	var result interface{}
	err = c.call(ctx, client, "authenticate",
		[]interface{}{c.opts.Database, c.opts.Username, c.opts.Password, map[string]interface{}{}},
		&result)
	if err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}

	uid, ok := result.(int64)
	if !ok || uid == 0 {
		return &ValidationError{Err: fmt.Errorf("login rejected for user %s", c.opts.Username)}
	}

	c.mu.Lock()
	c.uid = int(uid)
	c.mu.Unlock()
	return nil
}

// ExecuteKw invokes a model method through the object endpoint,
// authenticating first if no session is held.
func (c *XMLRPCClient) ExecuteKw(ctx context.Context, model, method string, args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
	uid := c.SessionUID()
	if uid == 0 {
		if err := c.Authenticate(ctx); err != nil {
			return nil, err
		}
		uid = c.SessionUID()
	}

	client, err := c.endpoint("object")
	if err != nil {
		return nil, err
	}

	if kwargs == nil {
		kwargs = map[string]interface{}{}
	}

	var result interface{}
	err = c.call(ctx, client, "execute_kw",
		[]interface{}{c.opts.Database, uid, c.opts.Password, model, method, args, kwargs},
		&result)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *XMLRPCClient) SessionUID() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.uid
}

// endpoint lazily builds the xmlrpc client for one of the two RPC paths.
func (c *XMLRPCClient) endpoint(name string) (*xmlrpc.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cached := &c.common
	if name == "object" {
		cached = &c.object
	}
	if *cached != nil {
		return *cached, nil
	}

	transport := &http.Transport{
		ResponseHeaderTimeout: c.opts.timeout(),
	}
	client, err := xmlrpc.NewClient(c.opts.URL+"/xmlrpc/2/"+name, transport)
	if err != nil {
		return nil, fmt.Errorf("failed to create xmlrpc client: %w", err)
	}
	*cached = client
	return client, nil
}

// call runs a blocking xmlrpc call bounded by the context. The underlying
// library does not take a context, so the wait is bounded here and a timeout
// surfaces as a transient failure.
func (c *XMLRPCClient) call(ctx context.Context, client *xmlrpc.Client, method string, args []interface{}, result interface{}) error {
	done := make(chan error, 1)
	go func() {
		done <- client.Call(method, args, result)
	}()

	select {
	case <-ctx.Done():
		return &TransientError{Err: ctx.Err()}
	case err := <-done:
		if err == nil {
			return nil
		}
		var fault xmlrpc.FaultError
		if errors.As(err, &fault) {
			return classifyFault(fault.String, fault.String)
		}
		return classifyNetErr(err)
	}
}
