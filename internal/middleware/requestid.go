package middleware

import (
	"net/http"

	"github.com/rs/xid"
	"github.com/templui/pixelplan/internal/ctxkeys"
)

const RequestIDHeader = "X-Request-ID"

// RequestID tags each request with an id, reusing a sane incoming header.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > 64 {
			id = xid.New().String()
		}

		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(ctxkeys.WithRequestID(r.Context(), id)))
	})
}
