package server

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/drm-lab/urbanrisk/internal/apperr"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("write response", zap.Error(err))
	}
}

// statusFor maps an error kind to its HTTP status.
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindInvalid:
		return http.StatusBadRequest
	case apperr.KindNotFound, apperr.KindUnavailable:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes the user-facing view of err. Errors users cannot act
// on are logged with their full chain and answered with a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := statusFor(kind)
	log := zap.L().With(
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("kind", string(kind)),
	)
	if status >= http.StatusInternalServerError {
		log.Error("request failed", zap.Error(err))
	} else {
		log.Debug("request rejected", zap.Error(err))
	}
	writeJSON(w, status, errorBody{Error: string(kind), Message: apperr.UserMessage(err)})
}
