package api

import (
    "net/http"
    "sort"
    "time"

    "github.com/go-chi/chi/v5"
    "github.com/go-chi/chi/v5/middleware"
    "go.uber.org/zap"
    "go.uber.org/zap/zapcore"
)

func (s *Server) logEvent(event string, fields map[string]any) {
    s.logAt(zapcore.InfoLevel, event, fields)
}

// logFailure logs client mistakes at warn and everything else at error.
func (s *Server) logFailure(event, reason string, err error, fields map[string]any) {
    level := zapcore.WarnLevel
    if reason == "internal_error" {
        level = zapcore.ErrorLevel
    }
    if fields == nil {
        fields = map[string]any{}
    }
    fields["reason"] = reason
    if err != nil {
        fields["error"] = err.Error()
    }
    s.logAt(level, event, fields)
}

func (s *Server) logAt(level zapcore.Level, event string, fields map[string]any) {
    ce := s.logger.Check(level, event)
    if ce == nil {
        return
    }
    keys := make([]string, 0, len(fields))
    for k := range fields {
        keys = append(keys, k)
    }
    sort.Strings(keys)

    zf := make([]zap.Field, 0, len(fields)+1)
    zf = append(zf, zap.String("event", event))
    for _, k := range keys {
        zf = append(zf, zap.Any(k, fields[k]))
    }
    ce.Write(zf...)
}

func (s *Server) accessLog(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        start := time.Now()
        ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
        next.ServeHTTP(ww, r)

        status := ww.Status()
        if status == 0 {
            status = http.StatusOK
        }
        route := r.URL.Path
        if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
            route = rctx.RoutePattern()
        }
        elapsed := time.Since(start)
        s.metrics.ObserveRequest(r.Method, route, status, elapsed)
        s.logger.Info("http_request",
            zap.String("method", r.Method),
            zap.String("path", r.URL.Path),
            zap.String("route", route),
            zap.Int("status", status),
            zap.Int("bytes", ww.BytesWritten()),
            zap.Duration("duration", elapsed),
            zap.String("request_id", middleware.GetReqID(r.Context())),
        )
    })
}
