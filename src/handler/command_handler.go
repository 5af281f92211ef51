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

type commandHandler interface {
	HandleCommand(ctx context.Context, userID uint, text string) (model.CommandReply, error)
}

type commandRequest struct {
	UserID uint   `json:"user_id"`
	Text   string `json:"text"`
}

// CommandHandler accepts one natural-language message and returns the
// engine's reply. A busy session answers 409 rather than queueing.
func CommandHandler(eng commandHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req commandRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if req.UserID == 0 {
			http.Error(w, "user_id is required", http.StatusBadRequest)
			return
		}

		reply, err := eng.HandleCommand(r.Context(), req.UserID, req.Text)
		if err != nil {
			if errors.Is(err, session.ErrSessionBusy) {
				http.Error(w, "previous command still executing", http.StatusConflict)
				return
			}

			logger.WithError(err).Error("failed to handle command")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(reply); err != nil {
			logger.WithError(err).Error("failed to encode command response")
		}
	}
}
