package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	logger "github.com/sirupsen/logrus"

	"tradepilot/src/model"
	"tradepilot/src/session"
)

type confirmer interface {
	Confirm(ctx context.Context, userID uint, sessionID, decision string) (model.OrderResult, error)
}

type confirmationRequest struct {
	UserID    uint   `json:"user_id"`
	SessionID string `json:"session_id"`
	Decision  string `json:"decision"`
}

// ConfirmationHandler resolves a pending trade with a confirm or cancel
// decision. A stale or already-consumed session answers 410.
func ConfirmationHandler(eng confirmer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req confirmationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if req.UserID == 0 || req.SessionID == "" {
			http.Error(w, "user_id and session_id are required", http.StatusBadRequest)
			return
		}
		if req.Decision != model.DecisionConfirm && req.Decision != model.DecisionCancel {
			http.Error(w, "decision must be confirm or cancel", http.StatusBadRequest)
			return
		}

		result, err := eng.Confirm(r.Context(), req.UserID, req.SessionID, req.Decision)
		if err != nil {
			switch {
			case errors.Is(err, session.ErrSessionBusy):
				http.Error(w, "previous command still executing", http.StatusConflict)
			case errors.Is(err, session.ErrSessionExpired):
				http.Error(w, "session expired or already resolved", http.StatusGone)
			default:
				logger.WithError(err).Error("failed to resolve confirmation")
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(result); err != nil {
			logger.WithError(err).Error("failed to encode confirmation response")
		}
	}
}
