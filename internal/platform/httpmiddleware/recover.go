package httpmiddleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"strings"
)

// stack trace for the panic log line
func stackTrace(message string) string {
	var pcs [32]uintptr
	n := runtime.Callers(4, pcs[:])

	var str strings.Builder
	str.WriteString(message + "\nTraceback:")
	for _, pc := range pcs[:n] {
		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}
		file, line := fn.FileLine(pc)
		str.WriteString(fmt.Sprintf("\n\t%s:%d", file, line))
	}
	return str.String()
}

// Recovery turns a handler panic into a 500 unless the response was already started.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := NewResponseWriter(w)
		defer func() {
			if err := recover(); err != nil {
				if err == http.ErrAbortHandler {
					panic(err)
				}
				message := fmt.Sprintf("%v", err)
				slog.Error("panic recovered",
					"request_id", GetRequestID(r.Context()),
					"method", r.Method,
					"path", r.URL.Path,
					"panic", message,
					"stack", stackTrace(message),
				)
				if rw.Written() {
					return
				}
				WriteJSON(rw, http.StatusInternalServerError, ErrorBody{Message: "Internal Server Error"})
			}
		}()
		next.ServeHTTP(rw, r)
	})
}
