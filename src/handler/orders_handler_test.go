package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"tradepilot/src/engine"
	"tradepilot/src/model"
	"tradepilot/src/repository"
)

type stubOrderSearcher struct {
	orders  []model.Order
	err     error
	options repository.OrderSearchOptions
}

func (s *stubOrderSearcher) Search(_ context.Context, options repository.OrderSearchOptions) ([]model.Order, error) {
	s.options = options
	return s.orders, s.err
}

type stubOrderCanceler struct {
	err     error
	userID  uint
	orderID uint
}

func (s *stubOrderCanceler) CancelOrder(_ context.Context, userID, orderID uint) error {
	s.userID = userID
	s.orderID = orderID
	return s.err
}

func TestSearchOrdersHandler(t *testing.T) {
	repo := &stubOrderSearcher{
		orders: []model.Order{{ID: 3, UserID: 7, Venue: "paper", Symbol: "BTC/USDT", Status: model.OrderStatusFilled}},
	}

	url := "/api/v1/orders?userId=7&venue=paper&symbol=BTC/USDT&status=filled&page=2&pageSize=10"
	req := httptest.NewRequest(http.MethodGet, url, nil)
	rec := httptest.NewRecorder()

	SearchOrdersHandler(repo)(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	opts := repo.options
	if opts.UserID != 7 {
		t.Fatalf("expected userId 7, got %d", opts.UserID)
	}
	if opts.Venue == nil || *opts.Venue != "paper" {
		t.Fatalf("unexpected venue filter %v", opts.Venue)
	}
	if opts.Symbol == nil || *opts.Symbol != "BTC/USDT" {
		t.Fatalf("unexpected symbol filter %v", opts.Symbol)
	}
	if opts.Status == nil || *opts.Status != "filled" {
		t.Fatalf("unexpected status filter %v", opts.Status)
	}
	if opts.Limit != 10 || opts.Offset != 10 {
		t.Fatalf("expected limit 10 offset 10, got %d/%d", opts.Limit, opts.Offset)
	}

	var orders []model.Order
	if err := json.NewDecoder(rec.Body).Decode(&orders); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(orders) != 1 || orders[0].ID != 3 {
		t.Fatalf("unexpected response %+v", orders)
	}
}

func TestSearchOrdersHandlerValidation(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{"missing userId", "/api/v1/orders"},
		{"bad userId", "/api/v1/orders?userId=abc"},
		{"bad page", "/api/v1/orders?userId=7&page=0"},
		{"bad pageSize", "/api/v1/orders?userId=7&pageSize=-1"},
		{"bad createdFrom", "/api/v1/orders?userId=7&createdFrom=yesterday"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.url, nil)
			rec := httptest.NewRecorder()

			SearchOrdersHandler(&stubOrderSearcher{})(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
		})
	}
}

func cancelRequest(t *testing.T, url, orderID string) *http.Request {
	t.Helper()

	req := httptest.NewRequest(http.MethodDelete, url, nil)
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add("orderID", orderID)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
}

func TestCancelOrderHandler(t *testing.T) {
	eng := &stubOrderCanceler{}

	req := cancelRequest(t, "/api/v1/orders/3?userId=7", "3")
	rec := httptest.NewRecorder()

	CancelOrderHandler(eng)(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if eng.userID != 7 || eng.orderID != 3 {
		t.Fatalf("engine called with %d/%d", eng.userID, eng.orderID)
	}
}

func TestCancelOrderHandlerErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", engine.ErrOrderNotFound, http.StatusNotFound},
		{"terminal order", engine.ErrOrderNotCancelable, http.StatusConflict},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := cancelRequest(t, "/api/v1/orders/3?userId=7", "3")
			rec := httptest.NewRecorder()

			CancelOrderHandler(&stubOrderCanceler{err: tc.err})(rec, req)

			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rec.Code)
			}
		})
	}

	t.Run("bad order id", func(t *testing.T) {
		req := cancelRequest(t, "/api/v1/orders/abc?userId=7", "abc")
		rec := httptest.NewRecorder()

		CancelOrderHandler(&stubOrderCanceler{})(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}

func TestPortfolioHandler(t *testing.T) {
	ledger := stubPortfolioReader{
		portfolio: model.Portfolio{UserID: 7, CashBalance: 5499, TotalValue: 10099},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/portfolio?userId=7", nil)
	rec := httptest.NewRecorder()

	PortfolioHandler(ledger)(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var portfolio model.Portfolio
	if err := json.NewDecoder(rec.Body).Decode(&portfolio); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if portfolio.UserID != 7 || portfolio.TotalValue != 10099 {
		t.Fatalf("unexpected portfolio %+v", portfolio)
	}
}

type stubPortfolioReader struct {
	portfolio model.Portfolio
}

func (s stubPortfolioReader) Snapshot(uint) model.Portfolio {
	return s.portfolio
}
