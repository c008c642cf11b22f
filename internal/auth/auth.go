// Package auth carries the verified caller identity through the request.
//
// Credential verification happens upstream (gateway / auth middleware); this
// service trusts the X-User-ID header it is handed and only resolves the ID
// against the user table where business rules require it.
package auth

import (
	"context"
	"net/http"
)

type ctxKey struct{}

// HeaderUserID is the header the upstream identity provider sets.
const HeaderUserID = "X-User-ID"

// Middleware extracts the caller's user ID into the request context.
// Requests without an identity still pass; handlers that need one reject
// them with their own error taxonomy.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := r.Header.Get(HeaderUserID); id != "" {
			r = r.WithContext(context.WithValue(r.Context(), ctxKey{}, id))
		}
		next.ServeHTTP(w, r)
	})
}

// UserID returns the caller's user ID, or "" when the request was anonymous.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}
