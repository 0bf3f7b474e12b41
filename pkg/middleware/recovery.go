package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"quickcap-auth-backend/pkg/apperror"
	"quickcap-auth-backend/pkg/utils"
)

// Recovery 恢复中间件，处理panic并返回统一的错误结构
func Recovery(logger *zap.Logger, exposeDetails bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.Error("panic recovered",
					zap.Any("panic", rec),
					zap.String("request_id", middleware.GetReqID(r.Context())),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.ByteString("stack", debug.Stack()),
				)

				err := apperror.Internal("Internal server error", fmt.Errorf("panic: %v", rec))
				if exposeDetails {
					utils.WriteErrorWithDetails(w, err)
					return
				}
				utils.WriteError(w, err)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
