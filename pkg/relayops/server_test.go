package relayops

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHealthzHandler(t *testing.T) {
	tests := []struct {
		name           string
		method         string
		markReady      bool
		expectedStatus int
	}{
		{name: "not ready yet", method: http.MethodGet, markReady: false, expectedStatus: http.StatusServiceUnavailable},
		{name: "ready", method: http.MethodGet, markReady: true, expectedStatus: http.StatusOK},
		{name: "POST not allowed", method: http.MethodPost, markReady: true, expectedStatus: http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer()
			if tt.markReady {
				s.MarkReady()
			}

			req := httptest.NewRequest(tt.method, "/healthz", nil)
			w := httptest.NewRecorder()

			s.healthzHandler(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}
