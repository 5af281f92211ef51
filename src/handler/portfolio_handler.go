package handler

import (
	"encoding/json"
	"net/http"

	logger "github.com/sirupsen/logrus"

	"tradepilot/src/model"
)

type portfolioReader interface {
	Snapshot(userID uint) model.Portfolio
}

// PortfolioHandler returns the user's current portfolio snapshot.
func PortfolioHandler(ledger portfolioReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := userIDParam(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		portfolio := ledger.Snapshot(userID)

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(portfolio); err != nil {
			logger.WithError(err).Error("failed to encode portfolio response")
		}
	}
}
