package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"relay/internal/platform/config"
)

type CORSMiddleware struct {
	allowOrigins string
	allowMethods string
	allowHeaders string
	maxAge       string
}

func NewCORSMiddleware(cfg config.CORSConfig) *CORSMiddleware {
	origins := "*"
	if len(cfg.AllowedOrigins) > 0 {
		origins = strings.Join(cfg.AllowedOrigins, ", ")
	}
	methods := "GET, POST, PUT, PATCH, DELETE, OPTIONS"
	if len(cfg.AllowedMethods) > 0 {
		methods = strings.Join(cfg.AllowedMethods, ", ")
	}
	headers := "authorization, x-client-info, apikey, content-type, x-webhook-signature"
	if len(cfg.AllowedHeaders) > 0 {
		headers = strings.Join(cfg.AllowedHeaders, ", ")
	}

	maxAge := "86400"
	if cfg.MaxAge > 0 {
		maxAge = strconv.Itoa(cfg.MaxAge)
	}

	return &CORSMiddleware{
		allowOrigins: origins,
		allowMethods: methods,
		allowHeaders: headers,
		maxAge:       maxAge,
	}
}

func (m *CORSMiddleware) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", m.allowOrigins)
		w.Header().Set("Access-Control-Allow-Methods", m.allowMethods)
		w.Header().Set("Access-Control-Allow-Headers", m.allowHeaders)

		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Max-Age", m.maxAge)
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
