package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const (
	requestIDHeader   = "X-Request-ID"
	maxAuditBodyBytes = 1024
)

// AuditMiddleware tags every request with an id, reusing a well-formed
// inbound X-Request-ID, and echoes it back. Mutations are written to the
// audit log at info level; reads only at debug.
func AuditMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	auditLogger := logger.With("component", "api_audit")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get(requestIDHeader)
		if _, err := uuid.Parse(requestID); err != nil {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)

		mutating := r.Method == http.MethodPost || r.Method == http.MethodDelete
		var body string
		if mutating && r.Body != nil {
			body = captureBody(r)
		}

		sw := &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(sw, r)

		if !mutating {
			auditLogger.Debug("api request",
				"request_id", requestID,
				"method", r.Method,
				"path", r.URL.Path,
				"response_status", sw.statusCode,
			)
			return
		}
		auditLogger.Info("api audit",
			"request_id", requestID,
			"timestamp", start.UTC().Format(time.RFC3339),
			"remote_addr", r.RemoteAddr,
			"method", r.Method,
			"path", r.URL.Path,
			"body_summary", body,
			"response_status", sw.statusCode,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// captureBody returns a summary of the request body and leaves r.Body
// readable from the start. JSON bodies are compacted before truncation.
func captureBody(r *http.Request) string {
	head, err := io.ReadAll(io.LimitReader(r.Body, maxAuditBodyBytes+1))
	if err != nil {
		return ""
	}
	r.Body = io.NopCloser(io.MultiReader(bytes.NewReader(head), r.Body))

	if len(head) > maxAuditBodyBytes {
		return string(head[:maxAuditBodyBytes]) + "...(truncated)"
	}
	var compact bytes.Buffer
	if json.Compact(&compact, head) == nil {
		return compact.String()
	}
	return string(head)
}

type statusWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (sw *statusWriter) WriteHeader(code int) {
	if !sw.written {
		sw.statusCode = code
		sw.written = true
	}
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	sw.written = true
	return sw.ResponseWriter.Write(b)
}
