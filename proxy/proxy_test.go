package proxy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dhyansraj/mcp-mesh/mesh"
	"github.com/dhyansraj/mcp-mesh/trace"
)

func TestProxy_Call_Success(t *testing.T) {
	var gotBody map[string]any
	var gotTraceHeader, gotParentHeader string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTraceHeader = r.Header.Get(trace.HeaderTraceID)
		gotParentHeader = r.Header.Get(trace.HeaderParentSpan)
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"content":[{"type":"text","text":"42"}]}}`))
	}))
	defer srv.Close()

	p := New(srv.URL, "greet", "hello", mesh.DependencyKwargs{TimeoutSeconds: 5, MaxAttempts: 1})

	ctx := trace.WithTraceScope(context.Background(), mesh.TraceContext{TraceID: "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"})
	result, err := p.Call(ctx, map[string]any{"who": "x"})

	require.NoError(t, err)
	require.Equal(t, float64(42), result)
	require.Equal(t, "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", gotTraceHeader)
	require.Len(t, gotParentHeader, 16)

	params := gotBody["params"].(map[string]any)
	args := params["arguments"].(map[string]any)
	require.Equal(t, "x", args["who"])
	require.Equal(t, "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", args["_trace_id"])
	require.Equal(t, gotParentHeader, args["_parent_span"])
}

func TestProxy_Call_SSEFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("event: message\ndata: {\"jsonrpc\":\"2.0\",\"id\":1,\"result\":{\"content\":[{\"type\":\"text\",\"text\":\"42\"}]}}\n"))
	}))
	defer srv.Close()

	p := New(srv.URL, "greet", "hello", mesh.DependencyKwargs{TimeoutSeconds: 5, MaxAttempts: 1})
	result, err := p.Call(context.Background(), map[string]any{})

	require.NoError(t, err)
	require.Equal(t, float64(42), result)
}

func TestProxy_Call_RemoteErrorNotRetried(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32000,"message":"boom"}}`))
	}))
	defer srv.Close()

	p := New(srv.URL, "greet", "hello", mesh.DependencyKwargs{TimeoutSeconds: 5, MaxAttempts: 3})
	_, err := p.Call(context.Background(), map[string]any{})

	require.Error(t, err)
	var remoteErr *mesh.RemoteError
	require.ErrorAs(t, err, &remoteErr)
	require.Equal(t, 1, attempts, "RemoteError must never be retried")
}

func TestProxy_Call_TransportErrorRetried(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"content":[{"type":"text","text":"ok"}]}}`))
	}))
	defer srv.Close()

	p := New(srv.URL, "greet", "hello", mesh.DependencyKwargs{TimeoutSeconds: 5, MaxAttempts: 3})
	_, err := p.Call(context.Background(), map[string]any{})

	// A 500 is a TransportError carrying a status code, which is retried;
	// the third attempt succeeds.
	require.NoError(t, err)
	require.Equal(t, 3, attempts)
}
