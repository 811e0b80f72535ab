package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"paywall/native/paywall"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "failed to encode response", nil)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, status int, code, message string, details map[string]any) {
	if details == nil {
		details = map[string]any{}
	}
	payload := map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
			"details": details,
		},
	}
	body, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// statusFor maps an engine error onto an HTTP status and a stable error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, paywall.ErrFeeConfigMissing):
		return http.StatusConflict, "fee_config_missing"
	case paywall.IsNotFound(err):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, paywall.ErrInsufficientPayment):
		return http.StatusPaymentRequired, "insufficient_payment"
	case errors.Is(err, paywall.ErrNotRentExempt):
		return http.StatusPaymentRequired, "not_rent_exempt"
	}
	switch paywall.Classify(err) {
	case paywall.KindValidation:
		return http.StatusBadRequest, "invalid_request"
	case paywall.KindAuthorization:
		return http.StatusForbidden, "forbidden"
	case paywall.KindState:
		return http.StatusConflict, "conflict"
	case paywall.KindArithmetic:
		return http.StatusUnprocessableEntity, "arithmetic_overflow"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (s *Server) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("paywall operation failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err)
		writeError(w, status, code, "internal error", nil)
		return
	}
	writeError(w, status, code, err.Error(), map[string]any{"kind": paywall.Classify(err).String()})
}
