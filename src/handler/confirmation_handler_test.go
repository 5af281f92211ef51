package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"tradepilot/src/model"
	"tradepilot/src/session"
)

type stubConfirmer struct {
	result    model.OrderResult
	err       error
	sessionID string
	decision  string
}

func (s *stubConfirmer) Confirm(_ context.Context, _ uint, sessionID, decision string) (model.OrderResult, error) {
	s.sessionID = sessionID
	s.decision = decision
	return s.result, s.err
}

func TestConfirmationHandler(t *testing.T) {
	eng := &stubConfirmer{
		result: model.OrderResult{Success: true, OrderID: 12, VenueUsed: "paper", ExecutedAmount: 0.1},
	}

	body := `{"user_id": 7, "session_id": "sess-1", "decision": "confirm"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/confirmations", strings.NewReader(body))
	rec := httptest.NewRecorder()

	ConfirmationHandler(eng)(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if eng.sessionID != "sess-1" || eng.decision != model.DecisionConfirm {
		t.Fatalf("engine called with %q %q", eng.sessionID, eng.decision)
	}

	var result model.OrderResult
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success || result.OrderID != 12 {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestConfirmationHandlerValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed body", `{not json`},
		{"missing session id", `{"user_id": 7, "decision": "confirm"}`},
		{"unknown decision", `{"user_id": 7, "session_id": "sess-1", "decision": "maybe"}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/confirmations", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()

			ConfirmationHandler(&stubConfirmer{})(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
		})
	}
}

func TestConfirmationHandlerErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"busy session", session.ErrSessionBusy, http.StatusConflict},
		{"expired session", session.ErrSessionExpired, http.StatusGone},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			body := `{"user_id": 7, "session_id": "sess-1", "decision": "cancel"}`
			req := httptest.NewRequest(http.MethodPost, "/api/v1/confirmations", strings.NewReader(body))
			rec := httptest.NewRecorder()

			ConfirmationHandler(&stubConfirmer{err: tc.err})(rec, req)

			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rec.Code)
			}
		})
	}
}
