package middleware

import (
	"context"
	"sync"
)

// callerHolder 让外层中间件拿到内层认证出的调用方
type callerHolder struct {
	mu    sync.Mutex
	value string
}

type holderKey struct{}

func withCallerHolder(ctx context.Context, h *callerHolder) context.Context {
	return context.WithValue(ctx, holderKey{}, h)
}

func setCallerEmail(ctx context.Context, email string) {
	if h, ok := ctx.Value(holderKey{}).(*callerHolder); ok {
		h.mu.Lock()
		h.value = email
		h.mu.Unlock()
	}
}

func (h *callerHolder) email() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.value == "" {
		return "anonymous"
	}
	return h.value
}
