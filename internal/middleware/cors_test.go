package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCorsMiddleware(t *testing.T) {
	testCases := []struct {
		name           string
		method         string
		origin         string
		userAgent      string
		expectCors     bool
		expectNext     bool
		expectedStatus int
	}{
		{
			name:           "AllowedOrigin",
			origin:         "https://gymstats.example.com",
			expectCors:     true,
			expectNext:     true,
			expectedStatus: http.StatusOK,
		},
		{
			name:           "NotAllowedOrigin",
			origin:         "https://www.notallowed.com",
			expectedStatus: http.StatusForbidden,
		},
		{
			name:           "AllowedUserAgent",
			userAgent:      "GymStats/1.0",
			expectCors:     true,
			expectNext:     true,
			expectedStatus: http.StatusOK,
		},
		{
			name:           "CurlUserAgent",
			userAgent:      "curl/8.4.0",
			expectCors:     true,
			expectNext:     true,
			expectedStatus: http.StatusOK,
		},
		{
			name:           "NotAllowedUserAgent",
			userAgent:      "UnknownAgent/1.0",
			expectedStatus: http.StatusForbidden,
		},
		{
			name:           "PreflightFromAllowedOrigin",
			method:         http.MethodOptions,
			origin:         "http://localhost:8080",
			expectCors:     true,
			expectedStatus: http.StatusOK,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			method := tc.method
			if method == "" {
				method = http.MethodGet
			}

			rr := httptest.NewRecorder()
			req, err := http.NewRequest(method, "/predictions/squat", nil)
			require.NoError(t, err)
			req.Header.Set("Origin", tc.origin)
			req.Header.Set("User-Agent", tc.userAgent)

			nextCalled := false
			nextHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				nextCalled = true
			})
			handler := Cors("https://gymstats.example.com", "http://localhost:8080")(nextHandler)

			handler.ServeHTTP(rr, req)

			assert.Equal(t, tc.expectedStatus, rr.Code)
			assert.Equal(t, tc.expectNext, nextCalled)
			if tc.expectCors {
				assert.Equal(t, tc.origin, rr.Header().Get("Access-Control-Allow-Origin"))
				assert.NotEmpty(t, rr.Header().Get("Access-Control-Allow-Methods"))
			}
		})
	}
}
