// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

package server

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// publicPathPrefixes lists routes that never require auth: the health check
// and the self-describing OpenAPI surface.
var publicPathPrefixes = []string{"/healthz", "/openapi", "/docs", "/schemas"}

// NewAuthMiddleware returns a middleware enforcing a static bearer token on
// every route outside publicPrefixes. An empty token disables the check.
func NewAuthMiddleware(token string, publicPrefixes []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, prefix := range publicPrefixes {
				if strings.HasPrefix(r.URL.Path, prefix) {
					next.ServeHTTP(w, r)
					return
				}
			}

			header := r.Header.Get("Authorization")
			if header == "" {
				writeError(w, http.StatusUnauthorized, "authorization header required")
				return
			}
			presented, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || presented == "" {
				writeError(w, http.StatusUnauthorized, "authorization header must be a bearer token")
				return
			}
			if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
