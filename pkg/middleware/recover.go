// pkg/middleware/recover.go
package middleware

import (
	"net/http"
	"runtime/debug"

	"stead/pkg/problems"

	"go.uber.org/zap"
)

func Recover(log *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					log.Errorw("panic", "err", rec, "request_id", RequestIDFrom(r.Context()), "stack", string(debug.Stack()))
					problems.Write(w, problems.Problem{
						Type:   problems.Type("internal"),
						Title:  "Internal Server Error",
						Status: http.StatusInternalServerError,
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
