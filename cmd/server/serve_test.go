package main

import (
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quickcap-auth-backend/pkg/config"
)

func TestShutdownDrainsInFlightRequests(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	ctxErr := make(chan error, 1)

	srv := newHTTPServer(&config.Config{Port: "0"}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-release
		ctxErr <- r.Context().Err()
		w.WriteHeader(http.StatusNoContent)
	}))
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go srv.Serve(ln) //nolint:errcheck

	respCh := make(chan *http.Response, 1)
	go func() {
		resp, err := http.Get("http://" + ln.Addr().String() + "/slow")
		if err == nil {
			respCh <- resp
		}
		close(respCh)
	}()
	<-started

	done := make(chan error, 1)
	go func() { done <- shutdown(srv, 5*time.Second) }()

	// Shutdown 开始后请求仍在处理
	time.Sleep(50 * time.Millisecond)
	close(release)

	require.NoError(t, <-done)
	assert.NoError(t, <-ctxErr)
	resp, ok := <-respCh
	require.True(t, ok)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}
