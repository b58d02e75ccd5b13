package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
)

// Transport performs a single JSON-RPC call against one node.
//
// Implementations must return a *TransportError when the node could not be
// reached or its response could not be parsed, and a *RemoteError when the
// node answered with an error object. Any other error is passed through to
// the caller untouched.
type Transport interface {
	Call(ctx context.Context, node string, method string, params any, result any) error
}

type rpcRequest struct {
	ID      int32  `json:"id"`
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type rpcResponse struct {
	ID     json.RawMessage `json:"id,omitempty"`
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// HTTPTransport sends JSON-RPC 2.0 requests as HTTP POST bodies.
type HTTPTransport struct {
	client *http.Client
	header http.Header
}

// NewHTTPTransport creates a transport using client, or http.DefaultClient when nil.
func NewHTTPTransport(client *http.Client, header http.Header) *HTTPTransport {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPTransport{client: client, header: header}
}

func (t *HTTPTransport) Call(ctx context.Context, node string, method string, params any, result any) error {
	if params == nil {
		params = struct{}{}
	}
	body, err := json.Marshal(rpcRequest{
		ID:      rand.Int31(),
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, node, bytes.NewReader(body))
	if err != nil {
		return &TransportError{Node: node, Err: err}
	}
	for k, v := range t.header {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := t.client.Do(req)
	if err != nil {
		return &TransportError{Node: node, Err: err}
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return &TransportError{Node: node, Err: fmt.Errorf("failed to read %s response: %w", method, err)}
	}
	// The status code is only reported when the body is not a JSON-RPC
	// response; some nodes send error objects with non 200 codes.
	var rpcRes rpcResponse
	if err := json.Unmarshal(raw, &rpcRes); err != nil {
		return &TransportError{
			Node: node,
			Err:  fmt.Errorf("failed to decode %s response (HTTP %d): %w", method, res.StatusCode, err),
		}
	}
	if rpcRes.Error != nil {
		return &RemoteError{
			Node:    node,
			Method:  method,
			Code:    rpcRes.Error.Code,
			Message: rpcRes.Error.Message,
			Data:    rpcRes.Error.Data,
		}
	}
	if len(rpcRes.Result) == 0 {
		return &TransportError{Node: node, Err: fmt.Errorf("%s: %w", method, ErrMalformedResponse)}
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(rpcRes.Result, result); err != nil {
		return &TransportError{Node: node, Err: fmt.Errorf("failed to decode %s result: %w", method, err)}
	}
	return nil
}
