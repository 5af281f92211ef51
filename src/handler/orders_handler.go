package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"

	"tradepilot/src/engine"
	"tradepilot/src/model"
	"tradepilot/src/repository"
)

type orderSearcher interface {
	Search(ctx context.Context, options repository.OrderSearchOptions) ([]model.Order, error)
}

type orderCanceler interface {
	CancelOrder(ctx context.Context, userID, orderID uint) error
}

// SearchOrdersHandler lists a user's orders newest first.
// Supports pagination and filters (venue, symbol, status, createdFrom, createdTo).
func SearchOrdersHandler(repo orderSearcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := userIDParam(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		var venue, symbol, status *string
		if venueParam := r.URL.Query().Get("venue"); venueParam != "" {
			venue = &venueParam
		}
		if symbolParam := r.URL.Query().Get("symbol"); symbolParam != "" {
			symbol = &symbolParam
		}
		if statusParam := r.URL.Query().Get("status"); statusParam != "" {
			status = &statusParam
		}

		var createdFrom, createdTo *time.Time
		if createdFromParam := r.URL.Query().Get("createdFrom"); createdFromParam != "" {
			parsed, err := time.Parse(time.RFC3339, createdFromParam)
			if err != nil {
				http.Error(w, "invalid createdFrom", http.StatusBadRequest)
				return
			}
			createdFrom = &parsed
		}

		if createdToParam := r.URL.Query().Get("createdTo"); createdToParam != "" {
			parsed, err := time.Parse(time.RFC3339, createdToParam)
			if err != nil {
				http.Error(w, "invalid createdTo", http.StatusBadRequest)
				return
			}
			createdTo = &parsed
		}

		page := 1
		if pageParam := r.URL.Query().Get("page"); pageParam != "" {
			parsedPage, err := strconv.Atoi(pageParam)
			if err != nil || parsedPage <= 0 {
				http.Error(w, "invalid page", http.StatusBadRequest)
				return
			}
			page = parsedPage
		}

		pageSize := 20
		if sizeParam := r.URL.Query().Get("pageSize"); sizeParam != "" {
			parsedSize, err := strconv.Atoi(sizeParam)
			if err != nil || parsedSize <= 0 {
				http.Error(w, "invalid pageSize", http.StatusBadRequest)
				return
			}
			pageSize = parsedSize
		}

		offset := (page - 1) * pageSize

		orders, err := repo.Search(r.Context(), repository.OrderSearchOptions{
			UserID:        userID,
			Venue:         venue,
			Symbol:        symbol,
			Status:        status,
			CreatedAfter:  createdFrom,
			CreatedBefore: createdTo,
			Limit:         pageSize,
			Offset:        offset,
		})
		if err != nil {
			logger.WithError(err).Error("failed to search orders")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(orders); err != nil {
			logger.WithError(err).Error("failed to encode order search response")
		}
	}
}

// CancelOrderHandler cancels a non-terminal order by id.
func CancelOrderHandler(eng orderCanceler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := userIDParam(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		orderID, err := strconv.ParseUint(chi.URLParam(r, "orderID"), 10, 64)
		if err != nil {
			http.Error(w, "invalid order id", http.StatusBadRequest)
			return
		}

		if err := eng.CancelOrder(r.Context(), userID, uint(orderID)); err != nil {
			switch {
			case errors.Is(err, engine.ErrOrderNotFound):
				http.Error(w, "order not found", http.StatusNotFound)
			case errors.Is(err, engine.ErrOrderNotCancelable):
				http.Error(w, "order already in a terminal state", http.StatusConflict)
			default:
				logger.WithError(err).Error("failed to cancel order")
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func userIDParam(r *http.Request) (uint, error) {
	raw := r.URL.Query().Get("userId")
	if raw == "" {
		return 0, errors.New("userId is required")
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, errors.New("invalid userId")
	}
	return uint(id), nil
}
