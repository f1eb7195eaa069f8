package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pumpdesk/backend/internal/cache"
	"pumpdesk/backend/internal/checkpoint"
	"pumpdesk/backend/internal/domain"
	"pumpdesk/backend/internal/service"
	"pumpdesk/backend/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) (*API, *memory.Store) {
	t.Helper()

	repo := memory.NewSeeded()
	svc := service.New(repo, checkpoint.Default(), cache.NoopRateCache{}, 5*time.Second, nil)
	auth := NewAuthManager("test-secret-key", time.Hour, repo)

	return New(svc, auth, "*"), repo
}

func login(t *testing.T, handler http.Handler, username, password string) string {
	t.Helper()

	payload, _ := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login as %s failed: %d (%s)", username, rec.Code, rec.Body.String())
	}

	var resp domain.LoginResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return resp.AccessToken
}

func csrfToken(t *testing.T, handler http.Handler) string {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/csrf-token", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("csrf token fetch failed: %d", rec.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode csrf response: %v", err)
	}
	return body["csrf_token"]
}

func authedRequest(t *testing.T, handler http.Handler, method, path, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch {
		req.Header.Set("X-CSRF-Token", csrfToken(t, handler))
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()

	payload, _ := json.Marshal(map[string]string{
		"username": "cashier",
		"password": "wrong",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAuthRequiredOnAPIRoutes(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/rates", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/rates", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with garbage token, got %d", rec.Code)
	}
}

func TestCSRFRequiredForMutations(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()
	token := login(t, handler, "admin", "admin123")

	payload, _ := json.Marshal(domain.RateUpdateRequest{Rates: map[string]string{"MS": "96.00"}})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/rates", bytes.NewReader(payload))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without CSRF token, got %d", rec.Code)
	}
}

func TestRoleEnforcement(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()
	cashierToken := login(t, handler, "cashier", "cashier123")

	// Cashiers can read rates.
	rec := authedRequest(t, handler, http.MethodGet, "/api/v1/rates", cashierToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("cashier rate read: expected 200, got %d", rec.Code)
	}

	// But only admins may see users or audit logs.
	rec = authedRequest(t, handler, http.MethodGet, "/api/v1/users", cashierToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("cashier user list: expected 403, got %d", rec.Code)
	}
	rec = authedRequest(t, handler, http.MethodGet, "/api/v1/audit-logs", cashierToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("cashier audit list: expected 403, got %d", rec.Code)
	}
	rec = authedRequest(t, handler, http.MethodGet, "/api/v1/requests/all", cashierToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("cashier requests/all: expected 403, got %d", rec.Code)
	}
}

func TestReconciliationSummaryEndpoint(t *testing.T) {
	api, repo := newTestAPI(t)
	handler := api.Handler()
	token := login(t, handler, "cashier", "cashier123")

	if err := repo.SetPreviousReadings(context.Background(), map[string]int64{"HSD1": 12345}, "test"); err != nil {
		t.Fatalf("seed readings: %v", err)
	}

	rec := authedRequest(t, handler, http.MethodPost, "/api/v1/reconciliation/summary", token, domain.SalesSummaryRequest{
		Checkpoint: "Front",
		Readings:   []domain.ReadingEntry{{Nozzle: "HSD1", Current: 12395}},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}

	var summary domain.SalesSummary
	if err := json.NewDecoder(rec.Body).Decode(&summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if summary.TotalSalesPaise != 436500 {
		t.Fatalf("expected total 436500, got %d", summary.TotalSalesPaise)
	}

	// Bad meter input maps to 400.
	rec = authedRequest(t, handler, http.MethodPost, "/api/v1/reconciliation/summary", token, domain.SalesSummaryRequest{
		Checkpoint: "Front",
		Readings:   []domain.ReadingEntry{{Nozzle: "HSD1", Current: 1}},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for decreasing meter, got %d", rec.Code)
	}
}

func TestFinalizeAndExportEndpoints(t *testing.T) {
	api, repo := newTestAPI(t)
	handler := api.Handler()
	cashierToken := login(t, handler, "cashier", "cashier123")
	managerToken := login(t, handler, "manager", "manager123")

	if err := repo.SetPreviousReadings(context.Background(), map[string]int64{"MS": 1000}, "test"); err != nil {
		t.Fatalf("seed readings: %v", err)
	}

	rec := authedRequest(t, handler, http.MethodPost, "/api/v1/reconciliation/finalize", cashierToken, domain.FinalizeRequest{
		Checkpoint: "Central",
		Readings:   []domain.ReadingEntry{{Nozzle: "MS", Current: 1050}},
		Payments: domain.PaymentDeclaration{
			UPI: domain.PaymentMethodState{Enabled: true, Amount: "100"},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}

	var created struct {
		Record domain.SalesRecord `json:"record"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if created.Record.ID == "" {
		t.Fatal("expected a record id")
	}

	// Fetch it back.
	rec = authedRequest(t, handler, http.MethodGet, "/api/v1/sales-records/"+created.Record.ID, cashierToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("record fetch: expected 200, got %d", rec.Code)
	}

	// Manager exports it as XLSX.
	rec = authedRequest(t, handler, http.MethodGet,
		fmt.Sprintf("/api/v1/sales-records/%s/export.xlsx", created.Record.ID), managerToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("export: expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet" {
		t.Fatalf("unexpected export content type %q", ct)
	}
	if rec.Body.Len() == 0 {
		t.Fatal("expected non-empty workbook")
	}

	// Export is a back-office report, cashiers are shut out.
	rec = authedRequest(t, handler, http.MethodGet,
		fmt.Sprintf("/api/v1/sales-records/%s/export.xlsx", created.Record.ID), cashierToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("cashier export: expected 403, got %d", rec.Code)
	}
}

func TestRequestLifecycleOverHTTP(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()
	cashierToken := login(t, handler, "cashier", "cashier123")
	managerToken := login(t, handler, "manager", "manager123")

	rec := authedRequest(t, handler, http.MethodPost, "/api/v1/requests", cashierToken, domain.RequestCreateRequest{
		Type:        domain.RequestTypeExpense,
		Description: "nozzle gasket",
		Amount:      "120",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("submit: expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	var created struct {
		Request domain.Request `json:"request"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode request: %v", err)
	}

	rec = authedRequest(t, handler, http.MethodPatch,
		"/api/v1/requests/"+created.Request.ID+"/status", managerToken,
		domain.RequestStatusUpdateRequest{Status: domain.RequestStatusApproved})
	if rec.Code != http.StatusOK {
		t.Fatalf("approve: expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}

	rec = authedRequest(t, handler, http.MethodGet, "/api/v1/requests/pending-expenses", cashierToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("pending expenses: expected 200, got %d", rec.Code)
	}
	var pending struct {
		Expenses []domain.Request `json:"expenses"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&pending); err != nil {
		t.Fatalf("decode expenses: %v", err)
	}
	if len(pending.Expenses) != 1 {
		t.Fatalf("expected 1 pending expense, got %d", len(pending.Expenses))
	}
}

func TestUnknownFieldRejected(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()
	token := login(t, handler, "admin", "admin123")

	rec := authedRequest(t, handler, http.MethodPost, "/api/v1/rates", token, map[string]any{
		"rates":    map[string]string{"MS": "96.00"},
		"surprise": true,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", rec.Code)
	}
}
