package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, c *Checker, path string) (int, Response) {
	t.Helper()
	e := echo.New()
	c.RegisterRoutes(e)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var body Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func ok(context.Context) error { return nil }

func failing(context.Context) error { return errors.New("connection refused") }

func TestLiveness(t *testing.T) {
	c := NewChecker("1.0.0")
	c.AddCheck("database", failing)

	code, body := serve(t, c, "/api/v1/health/live")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, StatusHealthy, body.Status)
	assert.Equal(t, "1.0.0", body.Version)
}

func TestReadiness_NotReady(t *testing.T) {
	c := NewChecker("1.0.0")
	c.AddCheck("database", ok)

	code, body := serve(t, c, "/api/v1/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, body.Checks, "startup")
}

func TestHealth_Statuses(t *testing.T) {
	tests := []struct {
		name     string
		database PingFunc
		redis    PingFunc
		code     int
		status   Status
	}{
		{name: "all healthy", database: ok, redis: ok, code: http.StatusOK, status: StatusHealthy},
		{name: "redis down", database: ok, redis: failing, code: http.StatusOK, status: StatusDegraded},
		{name: "database down", database: failing, redis: ok, code: http.StatusServiceUnavailable, status: StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker("1.0.0")
			c.AddCheck("database", tt.database)
			c.AddOptionalCheck("redis", tt.redis)
			c.SetReady(true)

			code, body := serve(t, c, "/api/v1/health/ready")
			assert.Equal(t, tt.code, code)
			assert.Equal(t, tt.status, body.Status)
			assert.Len(t, body.Checks, 2)
		})
	}
}
