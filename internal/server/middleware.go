package server

import (
	"crypto/subtle"
	"net/http"

	"go.uber.org/zap"
)

const cronSecretHeader = "X-Cron-Secret"

// Error codes returned in the envelope.
const (
	CodeConfig     = "CONFIG_ERROR"
	CodeForbidden  = "FORBIDDEN"
	CodeNotFound   = "NOT_FOUND"
	CodeBadRequest = "BAD_REQUEST"
	CodeValidation = "VALIDATION_ERROR"
	CodeInternal   = "INTERNAL_ERROR"
)

// requireCronSecret fails closed: with no configured secret every request is
// rejected.
func (s *Server) requireCronSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.opts.Secret == "" {
			zap.L().Error("server: cron secret not configured")
			writeError(w, http.StatusForbidden, CodeConfig, "Cron not configured: CRON_SECRET is required")
			return
		}
		provided := r.Header.Get(cronSecretHeader)
		if subtle.ConstantTimeCompare([]byte(provided), []byte(s.opts.Secret)) != 1 {
			zap.L().Warn("server: invalid cron secret", zap.String("remote", r.RemoteAddr))
			writeError(w, http.StatusForbidden, CodeForbidden, "Invalid cron secret")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func maxBody(n int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, n)
			next.ServeHTTP(w, r)
		})
	}
}
