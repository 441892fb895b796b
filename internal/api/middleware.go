package api

import (
    "bufio"
    "errors"
    "net"
    "net/http"
    "strconv"
    "strings"
    "time"

    "github.com/sirupsen/logrus"

    "shelterroute/internal/metrics"
)

// statusWriter captures the final HTTP status code and number of bytes written.
type statusWriter struct {
    http.ResponseWriter
    status int
    bytes  int
}

func (w *statusWriter) WriteHeader(code int) {
    w.status = code
    w.ResponseWriter.WriteHeader(code)
}

// Record implicit 200 responses when handlers write without calling WriteHeader.
func (w *statusWriter) Write(b []byte) (int, error) {
    if w.status == 0 {
        w.status = http.StatusOK
    }
    n, err := w.ResponseWriter.Write(b)
    w.bytes += n
    return n, err
}

// Flush keeps SSE working behind the middleware.
func (w *statusWriter) Flush() {
    if f, ok := w.ResponseWriter.(http.Flusher); ok {
        f.Flush()
    }
}

// Hijack lets the websocket upgrader take over the connection.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
    h, ok := w.ResponseWriter.(http.Hijacker)
    if !ok {
        return nil, nil, errors.New("hijack not supported")
    }
    if w.status == 0 {
        w.status = http.StatusSwitchingProtocols
    }
    return h.Hijack()
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// metricPath collapses ids so the path label stays bounded.
func metricPath(p string) string {
    if strings.HasPrefix(p, "/v1/solves/") {
        return "/v1/solves/{id}/events"
    }
    return p
}

// logMiddleware logs each request and records it in the HTTP metrics.
func (s *Server) logMiddleware(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        start := time.Now()
        sw := &statusWriter{ResponseWriter: w}
        next.ServeHTTP(sw, r)
        dur := time.Since(start)
        if sw.status == 0 {
            sw.status = http.StatusOK
        }

        path := metricPath(r.URL.Path)
        status := strconv.Itoa(sw.status)
        metrics.HTTPRequests.WithLabelValues(r.Method, path, status).Inc()
        metrics.HTTPDuration.WithLabelValues(r.Method, path, status).Observe(dur.Seconds())

        entry := s.Log.WithFields(logrus.Fields{
            "method": r.Method,
            "path":   r.URL.RequestURI(),
            "status": sw.status,
            "bytes":  sw.bytes,
            "dur_ms": dur.Milliseconds(),
            "remote": r.RemoteAddr,
        })
        switch {
        case sw.status >= 500:
            entry.Error("request")
        case sw.status >= 400:
            entry.Warn("request")
        default:
            entry.Info("request")
        }
    })
}
