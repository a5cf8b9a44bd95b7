package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/emperorhan/recycle-trace/internal/domain/model"
	"github.com/emperorhan/recycle-trace/internal/ledger"
	"github.com/emperorhan/recycle-trace/internal/metrics"
	"github.com/emperorhan/recycle-trace/internal/traceability"
	"github.com/emperorhan/recycle-trace/internal/wallet"
)

type errorResponse struct {
	Error     string      `json:"error"`
	Kind      ledger.Kind `json:"kind,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
}

// statusFor maps an operation failure onto an HTTP status and the message
// shown to the caller.
func statusFor(err error) (int, errorResponse) {
	switch {
	case errors.Is(err, traceability.ErrInvalidInput), errors.Is(err, model.ErrInvalidRole):
		return http.StatusBadRequest, errorResponse{Error: err.Error()}
	case errors.Is(err, wallet.ErrNotConnected), errors.Is(err, wallet.ErrNoAccounts):
		return http.StatusUnauthorized, errorResponse{Error: err.Error()}
	}

	kind := ledger.Classify(err).Kind
	resp := errorResponse{Error: ledger.Describe(err), Kind: kind}
	switch kind {
	case ledger.KindReverted:
		return http.StatusUnprocessableEntity, resp
	case ledger.KindUserDeclined:
		return http.StatusForbidden, resp
	case ledger.KindNotBound, ledger.KindProviderUnavailable:
		return http.StatusServiceUnavailable, resp
	case ledger.KindDecode:
		return http.StatusBadGateway, resp
	case ledger.KindTransient, ledger.KindCanceled:
		return http.StatusGatewayTimeout, resp
	default:
		return http.StatusInternalServerError, errorResponse{Error: "internal server error", Kind: kind}
	}
}

func (s *Server) writeError(w http.ResponseWriter, op string, err error) {
	status, resp := statusFor(err)
	resp.RequestID = w.Header().Get(requestIDHeader)
	if status >= http.StatusInternalServerError {
		s.logger.Error(op+" failed", "error", err, "kind", resp.Kind, "request_id", resp.RequestID)
	} else {
		s.logger.Warn(op+" failed", "error", err, "status", status, "request_id", resp.RequestID)
	}
	writeJSON(w, status, resp)
}

// instrument counts requests per route pattern and status code.
func instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(sw, r)
		metrics.APIRequestsTotal.WithLabelValues(route, strconv.Itoa(sw.statusCode)).Inc()
	})
}
