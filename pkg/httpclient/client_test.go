package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func getTestLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func TestClient_Get(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "api", user)
		assert.Equal(t, "secret", pass)
		assert.Equal(t, "85996201636", r.URL.Query().Get("phone_filter"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[{"id":1}]}`))
	}))
	defer server.Close()

	client := NewClient(DefaultConfig(), getTestLogger())
	resp, err := client.Get(context.Background(), server.URL,
		WithBasicAuth("api", "secret"),
		WithQueryParam("phone_filter", "85996201636"),
	)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, ParseJSON(resp))
	body, ok := resp.BodyJSON.(map[string]any)
	require.True(t, ok)
	assert.Len(t, body["data"], 1)
}

func TestClient_Get_RetriesUnavailable(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	cfg := DefaultConfig()
	cfg.RetryWait = time.Millisecond
	cfg.RetryMaxWait = 5 * time.Millisecond
	client := NewClient(cfg, getTestLogger())

	resp, err := client.Get(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_Get_NonSuccessIsNotError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewClient(DefaultConfig(), getTestLogger())
	resp, err := client.Get(context.Background(), server.URL)
	require.NoError(t, err)
	assert.False(t, IsSuccessStatus(resp.StatusCode))
}

func TestParseJSON(t *testing.T) {
	resp := &Response{Body: []byte(`<html>oops</html>`), ContentType: "text/html"}
	assert.ErrorIs(t, ParseJSON(resp), ErrNotJSON)

	resp = &Response{Body: []byte(`{broken`), ContentType: "application/json"}
	assert.ErrorIs(t, ParseJSON(resp), ErrNotJSON)

	resp = &Response{}
	assert.NoError(t, ParseJSON(resp))
	assert.Nil(t, resp.BodyJSON)
}
