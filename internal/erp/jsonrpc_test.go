package erp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func jsonrpcTestServer(t *testing.T, handler func(service, method string, args []interface{}) (interface{}, *jsonrpcError)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/jsonrpc" {
			t.Errorf("unexpected path %s", r.URL.Path)
			http.NotFound(w, r)
			return
		}

		var req jsonrpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
			return
		}

		service := req.Params["service"].(string)
		method := req.Params["method"].(string)
		args, _ := req.Params["args"].([]interface{})

		result, rpcErr := handler(service, method, args)
		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
		if rpcErr != nil {
			resp["error"] = rpcErr
		} else {
			resp["result"] = result
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func testOptions(url string) Options {
	return Options{
		URL:      url,
		Database: "production",
		Username: "sync-bot",
		Password: "secret",
	}
}

func TestJSONRPC_AuthenticateStoresUID(t *testing.T) {
	server := jsonrpcTestServer(t, func(service, method string, args []interface{}) (interface{}, *jsonrpcError) {
		if service != "common" || method != "login" {
			t.Errorf("unexpected call %s.%s", service, method)
		}
		if len(args) != 3 || args[0] != "production" || args[1] != "sync-bot" {
			t.Errorf("unexpected login args %v", args)
		}
		return 7, nil
	})
	defer server.Close()

	client := NewJSONRPCClient(testOptions(server.URL))
	if err := client.Authenticate(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if client.SessionUID() != 7 {
		t.Errorf("expected session uid 7, got %d", client.SessionUID())
	}
}

func TestJSONRPC_AuthenticateRejected(t *testing.T) {
	server := jsonrpcTestServer(t, func(service, method string, args []interface{}) (interface{}, *jsonrpcError) {
		return false, nil
	})
	defer server.Close()

	client := NewJSONRPCClient(testOptions(server.URL))
	err := client.Authenticate(context.Background())
	if err == nil {
		t.Fatal("expected error for rejected login, got nil")
	}
	if !IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestJSONRPC_ExecuteKwAuthenticatesLazily(t *testing.T) {
	calls := []string{}
	server := jsonrpcTestServer(t, func(service, method string, args []interface{}) (interface{}, *jsonrpcError) {
		calls = append(calls, service+"."+method)
		if service == "common" {
			return 7, nil
		}
		// args: [db, uid, password, model, method, args, kwargs]
		if args[1].(float64) != 7 {
			t.Errorf("expected uid 7 in call, got %v", args[1])
		}
		if args[3] != "res.partner" || args[4] != "create" {
			t.Errorf("unexpected model call %v.%v", args[3], args[4])
		}
		return 1042, nil
	})
	defer server.Close()

	client := NewJSONRPCClient(testOptions(server.URL))
	result, err := client.ExecuteKw(context.Background(), "res.partner", "create",
		[]interface{}{map[string]interface{}{"name": "Acme"}}, nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result.(float64) != 1042 {
		t.Errorf("expected result 1042, got %v", result)
	}
	if len(calls) != 2 || calls[0] != "common.login" || calls[1] != "object.execute_kw" {
		t.Errorf("expected lazy login before execute, got %v", calls)
	}
}

func TestJSONRPC_FaultClassification(t *testing.T) {
	tests := []struct {
		name    string
		rpcErr  *jsonrpcError
		check   func(error) bool
		checked string
	}{
		{
			name: "validation fault",
			rpcErr: &jsonrpcError{
				Code:    200,
				Message: "Odoo Server Error",
				Data: struct {
					Name    string `json:"name"`
					Message string `json:"message"`
				}{Name: "odoo.exceptions.ValidationError", Message: "missing partner"},
			},
			check:   IsValidation,
			checked: "validation",
		},
		{
			name: "session expired code",
			rpcErr: &jsonrpcError{
				Code:    100,
				Message: "Odoo Session Expired",
			},
			check:   IsAuthExpired,
			checked: "auth expired",
		},
		{
			name: "operational fault is transient",
			rpcErr: &jsonrpcError{
				Code:    200,
				Message: "Odoo Server Error",
				Data: struct {
					Name    string `json:"name"`
					Message string `json:"message"`
				}{Name: "psycopg2.OperationalError", Message: "deadlock detected"},
			},
			check:   IsTransient,
			checked: "transient",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := jsonrpcTestServer(t, func(service, method string, args []interface{}) (interface{}, *jsonrpcError) {
				if service == "common" {
					return 7, nil
				}
				return nil, tt.rpcErr
			})
			defer server.Close()

			client := NewJSONRPCClient(testOptions(server.URL))
			_, err := client.ExecuteKw(context.Background(), "res.partner", "create", nil, nil)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !tt.check(err) {
				t.Errorf("expected %s error, got %v", tt.checked, err)
			}
		})
	}
}

func TestJSONRPC_ServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewJSONRPCClient(testOptions(server.URL))
	err := client.Authenticate(context.Background())
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !IsTransient(err) {
		t.Errorf("expected transient error for 5xx, got %v", err)
	}
}

func TestJSONRPC_ConnectionRefusedIsTransient(t *testing.T) {
	// Grab a port nothing listens on.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := NewJSONRPCClient(testOptions(url))
	_, err := client.ExecuteKw(context.Background(), "res.partner", "read", nil, nil)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !IsTransient(err) {
		t.Errorf("expected transient error for refused connection, got %v", err)
	}
}
