package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument logs each request and feeds the request metrics. Session ids
// are folded out of the path label to keep its cardinality bounded.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		elapsed := time.Since(start)

		status := strconv.Itoa(rec.status)
		s.metrics.ObserveRequest(r.Method, routeLabel(r.URL.Path), status, elapsed)
		s.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"duration": elapsed,
		}).Debug("http request")
	})
}

var (
	fixedRoutes  = map[string]bool{"/": true, "/metrics": true, "/api/sessions": true, "/api/analyze": true}
	sessionTails = map[string]bool{"": true, "records": true, "analyze": true, "openapi": true, "markdown": true, "text": true}
)

// routeLabel maps a request path onto a bounded set of labels. Anything
// the mux does not route becomes "other".
func routeLabel(p string) string {
	if fixedRoutes[p] {
		return p
	}
	if strings.HasPrefix(p, "/docs/") {
		return "/docs/*"
	}
	if id, tail, ok := splitPath(p, "/api/sessions/"); ok && id != "" && sessionTails[tail] {
		if tail == "" {
			return "/api/sessions/:id"
		}
		return "/api/sessions/:id/" + tail
	}
	if id, tail, ok := splitPath(p, "/session/"); ok && id != "" && tail == "" {
		return "/session/:id"
	}
	return "other"
}
