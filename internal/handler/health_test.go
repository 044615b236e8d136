package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthHandler_Health(t *testing.T) {
	s := newTestServer(t, false, fakeDB{}, fakeRedis{})

	rec := s.serve(httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthHandler_Ready(t *testing.T) {
	tests := []struct {
		name           string
		db             fakeDB
		cache          fakeRedis
		expectedStatus int
		expectedState  string
	}{
		{name: "all up", expectedStatus: http.StatusOK, expectedState: "ok"},
		{name: "database down", db: fakeDB{err: errors.New("refused")}, expectedStatus: http.StatusServiceUnavailable, expectedState: "error"},
		{name: "redis down", cache: fakeRedis{err: errors.New("refused")}, expectedStatus: http.StatusOK, expectedState: "degraded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, false, tt.db, tt.cache)

			rec := s.serve(httptest.NewRequest(http.MethodGet, "/health/ready", nil))

			assert.Equal(t, tt.expectedStatus, rec.Code)
			var body struct {
				Data HealthStatus `json:"data"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.expectedState, body.Data.Status)
		})
	}
}
