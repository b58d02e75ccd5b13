package core

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestNode(t *testing.T, body string) *httptest.Server {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestHTTPTransportRequest(t *testing.T) {
	var req map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		_, _ = io.WriteString(w, `{"jsonrpc":"2.0","id":1,"result":{"nonce":"3"}}`)
	}))
	defer server.Close()

	var res nonceResponse
	err := NewHTTPTransport(nil, nil).Call(context.Background(), server.URL, MethodGetAccountNonce, accountRequest{Account: "1Bob"}, &res)
	require.NoError(t, err)
	assert.Equal(t, "3", res.Nonce)

	assert.Equal(t, "2.0", req["jsonrpc"])
	assert.Equal(t, MethodGetAccountNonce, req["method"])
	assert.Equal(t, map[string]any{"account": "1Bob"}, req["params"])
	assert.IsType(t, float64(0), req["id"])
}

func TestHTTPTransportNilParams(t *testing.T) {
	var params json.RawMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Params json.RawMessage `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		params = req.Params
		_, _ = io.WriteString(w, `{"result":{}}`)
	}))
	defer server.Close()

	err := NewHTTPTransport(nil, nil).Call(context.Background(), server.URL, MethodGetHeadInfo, nil, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(params))
}

func TestHTTPTransportHeader(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		_, _ = io.WriteString(w, `{"result":{}}`)
	}))
	defer server.Close()

	header := http.Header{}
	header.Set("X-Api-Key", "secret")
	err := NewHTTPTransport(server.Client(), header).Call(context.Background(), server.URL, MethodGetHeadInfo, nil, nil)
	require.NoError(t, err)
}

func TestHTTPTransportRemoteError(t *testing.T) {
	server := newTestNode(t, `{"jsonrpc":"2.0","id":1,"error":{"code":-32603,"message":"transaction reverted"}}`)

	err := NewHTTPTransport(nil, nil).Call(context.Background(), server.URL, MethodSubmitTransaction, nil, nil)
	var remoteErr *RemoteError
	require.True(t, errors.As(err, &remoteErr))
	assert.Equal(t, "transaction reverted", remoteErr.Message)
	assert.Equal(t, -32603, remoteErr.Code)
	assert.Equal(t, server.URL, remoteErr.Node)
	assert.Equal(t, MethodSubmitTransaction, remoteErr.Method)
	assert.False(t, IsTransportError(err))
}

func TestHTTPTransportRemoteErrorWithoutMessage(t *testing.T) {
	server := newTestNode(t, `{"error":{}}`)

	err := NewHTTPTransport(nil, nil).Call(context.Background(), server.URL, MethodGetHeadInfo, nil, nil)
	assert.True(t, IsRemoteError(err))
}

func TestHTTPTransportMalformedResponses(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"no result and no error", `{"jsonrpc":"2.0","id":1}`},
		{"not json", `<html>bad gateway</html>`},
		{"empty body", ``},
		{"result of wrong type", `{"result":{"nonce":5}}`},
		{"trailing garbage", `{"result":{"nonce":"5"}}garbage`},
		{"second value", `{"result":{"nonce":"5"}} {"result":{}}`},
		{"error with trailing garbage", `{"error":{"code":1,"message":"x"}}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newTestNode(t, tt.body)

			var res nonceResponse
			err := NewHTTPTransport(nil, nil).Call(context.Background(), server.URL, MethodGetAccountNonce, nil, &res)
			var transportErr *TransportError
			require.True(t, errors.As(err, &transportErr), "%v", err)
			assert.Equal(t, server.URL, transportErr.Node)
		})
	}

	server := newTestNode(t, `{"id":1}`)
	err := NewHTTPTransport(nil, nil).Call(context.Background(), server.URL, MethodGetHeadInfo, nil, nil)
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestHTTPTransportTrailingWhitespace(t *testing.T) {
	server := newTestNode(t, "{\"result\":{\"nonce\":\"5\"}}\n")

	var res nonceResponse
	err := NewHTTPTransport(nil, nil).Call(context.Background(), server.URL, MethodGetAccountNonce, nil, &res)
	require.NoError(t, err)
	assert.Equal(t, "5", res.Nonce)
}

func TestHTTPTransportNullResult(t *testing.T) {
	server := newTestNode(t, `{"result":null}`)

	var res nonceResponse
	err := NewHTTPTransport(nil, nil).Call(context.Background(), server.URL, MethodGetAccountNonce, nil, &res)
	require.NoError(t, err)
	assert.Equal(t, "", res.Nonce)
}

func TestHTTPTransportUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	err := NewHTTPTransport(nil, nil).Call(context.Background(), url, MethodGetHeadInfo, nil, nil)
	assert.True(t, IsTransportError(err))
}

// A provider on top of real HTTP nodes: the first one is down, the second
// answers garbage, the third works.
func TestProviderFailoverOverHTTP(t *testing.T) {
	down := httptest.NewServer(http.NotFoundHandler())
	downURL := down.URL
	down.Close()
	garbage := newTestNode(t, `{}`)
	healthy := newTestNode(t, `{"result":{"nonce":"11"}}`)

	var switches [][2]string
	p, err := NewProvider([]string{downURL, garbage.URL, healthy.URL},
		WithOnError(func(err error, currentNode, newNode string) bool {
			assert.True(t, IsTransportError(err))
			switches = append(switches, [2]string{currentNode, newNode})
			return false
		}),
	)
	require.NoError(t, err)

	nonce, err := p.GetNonce(context.Background(), "1Carol")
	require.NoError(t, err)
	assert.Equal(t, uint64(11), nonce)
	assert.Equal(t, [][2]string{{downURL, garbage.URL}, {garbage.URL, healthy.URL}}, switches)
	assert.Equal(t, healthy.URL, p.CurrentNode())
}
