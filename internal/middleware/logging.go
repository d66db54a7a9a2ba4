package middleware

import (
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/2beens/gymstats-predictor/pkg"
)

func LogRequest() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userAgent := r.Header.Get("User-Agent")
			log.Tracef(" ====> request [%s] path: [%s] [UA: %s] [IP: %s]", r.Method, r.URL.Path, userAgent, pkg.ClientIP(r))
			next.ServeHTTP(w, r)
		})
	}
}
