package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/zintix-labs/gachalab/errs"
	"github.com/zintix-labs/gachalab/server/httperr"
)

// Recover 攔截 handler 的 panic：記錄堆疊並回 500 JSON。
//
// http.ErrAbortHandler 照原樣往上拋，讓 net/http 中止連線。
// log 為 nil 時退回 chi 的 Recoverer。
func Recover(log *slog.Logger) func(http.Handler) http.Handler {
	if log == nil {
		return chimidRecoverer
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				v := recover()
				if v == nil {
					return
				}
				if v == http.ErrAbortHandler {
					panic(v)
				}
				log.LogAttrs(r.Context(), slog.LevelError, "http.panic",
					slog.String("req_id", GetReqId(r)),
					slog.String("path", r.URL.Path),
					slog.Any("panic", v),
					slog.String("stack", string(debug.Stack())),
				)
				if isWebSocketUpgrade(r) {
					return
				}
				httperr.Errs(w, errs.NewFatal(fmt.Sprintf("internal error (request %s)", GetReqIdNumPart(r))))
			}()
			next.ServeHTTP(w, r)
		})
	}
}
