// backend/src/handlers/accounting_handler_test.go
package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/wealthfolio/backend/src/logger"
	"github.com/username/wealthfolio/backend/src/models"
	"github.com/username/wealthfolio/backend/src/services"
	"github.com/username/wealthfolio/backend/src/storage/memory"
)

func TestMain(m *testing.M) {
	logger.InitLogger("error")
	m.Run()
}

const testJWTSecret = "test-secret-for-handler-tests-only!!"

func newTestRouter(t *testing.T, authDisabled bool) http.Handler {
	t.Helper()
	store := memory.New()
	accountingService := services.NewAccountingService(store, nil)
	accountingHandler := NewAccountingHandler(accountingService)
	reportHandler := NewReportHandler(accountingService)

	r := chi.NewRouter()
	r.Use(ContextualLoggerMiddleware)
	r.Route("/api/accounting", func(r chi.Router) {
		r.Use(AuthMiddleware(testJWTSecret, authDisabled))

		r.Post("/accounts", accountingHandler.HandleCreateAccount)
		r.Get("/accounts", accountingHandler.HandleListAccounts)
		r.Get("/accounts/{code}", accountingHandler.HandleGetAccount)
		r.Post("/accounts/{code}/deactivate", accountingHandler.HandleDeactivateAccount)
		r.Post("/accounts/{code}/reactivate", accountingHandler.HandleReactivateAccount)

		r.Post("/journal-entries", accountingHandler.HandleCreateJournalEntry)
		r.Get("/journal-entries", accountingHandler.HandleListJournalEntries)
		r.Get("/journal-entries/{id}", accountingHandler.HandleGetJournalEntry)
		r.Post("/journal-entries/{id}/reverse", accountingHandler.HandleReverseJournalEntry)

		r.Get("/reports/trial-balance", reportHandler.HandleTrialBalance)
		r.Get("/reports/profit-loss", reportHandler.HandleProfitLoss)
		r.Get("/reports/balance-sheet", reportHandler.HandleBalanceSheet)
		r.Get("/reports/ledger/{accountCode}", reportHandler.HandleAccountLedger)
	})
	return r
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var value T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &value))
	return value
}

func seedAccounts(t *testing.T, h http.Handler) {
	t.Helper()
	for _, account := range []map[string]string{
		{"code": "cash", "name": "Cash", "type": "asset"},
		{"code": "revenue", "name": "Revenue", "type": "revenue"},
	} {
		rec := doJSON(t, h, http.MethodPost, "/api/accounting/accounts", account)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}
}

func saleEntry(amount int64, clientRef string) map[string]any {
	entry := map[string]any{
		"description": "Sale",
		"lines": []map[string]any{
			{"account_code": "cash", "debit": amount},
			{"account_code": "revenue", "credit": amount},
		},
	}
	if clientRef != "" {
		entry["client_ref"] = clientRef
	}
	return entry
}

func TestAccountEndpoints(t *testing.T) {
	h := newTestRouter(t, true)

	rec := doJSON(t, h, http.MethodPost, "/api/accounting/accounts",
		map[string]string{"code": "cash", "name": "Cash", "type": "asset"})
	require.Equal(t, http.StatusCreated, rec.Code)
	account := decodeBody[models.Account](t, rec)
	assert.Equal(t, models.SideDebit, account.NormalBalance)
	assert.True(t, account.Active)

	// duplicate code
	rec = doJSON(t, h, http.MethodPost, "/api/accounting/accounts",
		map[string]string{"code": "cash", "name": "Cash", "type": "asset"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// unknown type
	rec = doJSON(t, h, http.MethodPost, "/api/accounting/accounts",
		map[string]string{"code": "x", "name": "X", "type": "goodwill"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/accounting/accounts/cash", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/accounting/accounts/ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/accounting/accounts/cash/deactivate", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	account = decodeBody[models.Account](t, rec)
	assert.False(t, account.Active)

	rec = doJSON(t, h, http.MethodPost, "/api/accounting/accounts/cash/reactivate", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/accounting/accounts?type=asset", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	accounts := decodeBody[[]models.Account](t, rec)
	assert.Len(t, accounts, 1)

	rec = doJSON(t, h, http.MethodGet, "/api/accounting/accounts?type=unheard-of", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestJournalEntryEndpoints(t *testing.T) {
	h := newTestRouter(t, true)
	seedAccounts(t, h)

	rec := doJSON(t, h, http.MethodPost, "/api/accounting/journal-entries", saleEntry(10000, "inv-1"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	entry := decodeBody[models.JournalEntry](t, rec)
	assert.Equal(t, int64(1), entry.ID)
	require.Len(t, entry.Lines, 2)
	assert.Equal(t, int64(10000), entry.Lines[0].Debit)

	// Idempotent replay answers 200 with the same entry.
	rec = doJSON(t, h, http.MethodPost, "/api/accounting/journal-entries", saleEntry(10000, "inv-1"))
	require.Equal(t, http.StatusOK, rec.Code)
	replayed := decodeBody[models.JournalEntry](t, rec)
	assert.Equal(t, entry.ID, replayed.ID)

	// Same clientRef with different content conflicts.
	rec = doJSON(t, h, http.MethodPost, "/api/accounting/journal-entries", saleEntry(99, "inv-1"))
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Unbalanced entry fails validation.
	rec = doJSON(t, h, http.MethodPost, "/api/accounting/journal-entries", map[string]any{
		"description": "Broken",
		"lines": []map[string]any{
			{"account_code": "cash", "debit": 10000},
			{"account_code": "revenue", "credit": 9000},
		},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	// Malformed body.
	req := httptest.NewRequest(http.MethodPost, "/api/accounting/journal-entries", bytes.NewReader([]byte("{not json")))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/accounting/journal-entries/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/accounting/journal-entries/999", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/accounting/journal-entries", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	entries := decodeBody[[]models.JournalEntry](t, rec)
	assert.Len(t, entries, 1)
}

func TestIdempotencyKeyHeaderFallback(t *testing.T) {
	h := newTestRouter(t, true)
	seedAccounts(t, h)

	raw, err := json.Marshal(saleEntry(5000, ""))
	require.NoError(t, err)

	post := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/accounting/journal-entries", bytes.NewReader(raw))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Idempotency-Key", "header-ref-1")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	rec := post()
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = post()
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReverseEndpoint(t *testing.T) {
	h := newTestRouter(t, true)
	seedAccounts(t, h)

	rec := doJSON(t, h, http.MethodPost, "/api/accounting/journal-entries", saleEntry(10000, ""))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/accounting/journal-entries/1/reverse", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	reversal := decodeBody[models.JournalEntry](t, rec)
	require.Len(t, reversal.Lines, 2)
	assert.Equal(t, int64(10000), reversal.Lines[0].Credit)

	// Reversing again replays the reversal.
	rec = doJSON(t, h, http.MethodPost, "/api/accounting/journal-entries/1/reverse", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/accounting/journal-entries/999/reverse", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Both balances are back to zero.
	rec = doJSON(t, h, http.MethodGet, "/api/accounting/reports/ledger/cash", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	ledger := decodeBody[[]models.LedgerLine](t, rec)
	require.Len(t, ledger, 2)
	assert.Equal(t, int64(0), ledger[1].Balance)
}

func TestReportEndpoints(t *testing.T) {
	h := newTestRouter(t, true)
	seedAccounts(t, h)

	rec := doJSON(t, h, http.MethodPost, "/api/accounting/journal-entries", saleEntry(10000, ""))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/accounting/reports/trial-balance", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	tb := decodeBody[models.TrialBalance](t, rec)
	assert.Equal(t, int64(10000), tb.TotalDebits)
	assert.Equal(t, int64(10000), tb.TotalCredits)
	require.Len(t, tb.Rows, 2)
	assert.Equal(t, "cash", tb.Rows[0].AccountCode)

	rec = doJSON(t, h, http.MethodGet, "/api/accounting/reports/profit-loss", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	pl := decodeBody[models.ProfitLoss](t, rec)
	assert.Equal(t, int64(10000), pl.NetIncome)

	rec = doJSON(t, h, http.MethodGet, "/api/accounting/reports/balance-sheet", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	bs := decodeBody[models.BalanceSheet](t, rec)
	assert.Equal(t, int64(10000), bs.TotalAssets)
	assert.Equal(t, int64(10000), bs.RetainedEarnings)

	rec = doJSON(t, h, http.MethodGet, "/api/accounting/reports/profit-loss?start=not-a-date", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/accounting/reports/ledger/ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAuthMiddleware(t *testing.T) {
	h := newTestRouter(t, false)

	rec := doJSON(t, h, http.MethodGet, "/api/accounting/accounts", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/accounting/accounts", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "billing-service",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(testJWTSecret))
	require.NoError(t, err)

	req = httptest.NewRequest(http.MethodGet, "/api/accounting/accounts", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Expired tokens are rejected.
	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "billing-service",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	})
	signedExpired, err := expired.SignedString([]byte(testJWTSecret))
	require.NoError(t, err)

	req = httptest.NewRequest(http.MethodGet, "/api/accounting/accounts", nil)
	req.Header.Set("Authorization", "Bearer "+signedExpired)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
