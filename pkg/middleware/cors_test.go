package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"quickcap-auth-backend/pkg/config"
)

func TestOriginAllowed(t *testing.T) {
	allowed := []string{"https://quickcap.app", "chrome-extension://*"}

	assert.True(t, originAllowed("https://quickcap.app", allowed))
	assert.True(t, originAllowed("chrome-extension://abcdef", allowed))
	assert.False(t, originAllowed("https://evil.example", allowed))
	assert.True(t, originAllowed("https://anything", []string{"*"}))
	assert.True(t, originAllowed("https://anything", nil))
}

func TestCORSEchoesOriginWithCredentials(t *testing.T) {
	cfg := &config.Config{AllowedOrigins: []string{"https://quickcap.app"}}
	h := CORS(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/org", nil)
	req.Header.Set("Origin", "https://quickcap.app")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "https://quickcap.app", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodGet, "/org", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
