// backend/src/handlers/accounting_handler.go
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/username/wealthfolio/backend/src/logger"
	"github.com/username/wealthfolio/backend/src/models"
	"github.com/username/wealthfolio/backend/src/security/validation"
	"github.com/username/wealthfolio/backend/src/services"
	"github.com/username/wealthfolio/backend/src/utils"
)

// AccountingHandler exposes the chart of accounts and the journal over HTTP.
type AccountingHandler struct {
	accountingService services.AccountingService
}

func NewAccountingHandler(accountingService services.AccountingService) *AccountingHandler {
	return &AccountingHandler{
		accountingService: accountingService,
	}
}

type createAccountRequest struct {
	Code string             `json:"code"`
	Name string             `json:"name"`
	Type models.AccountType `json:"type"`
}

type journalLineRequest struct {
	AccountCode string `json:"account_code"`
	Debit       int64  `json:"debit"`
	Credit      int64  `json:"credit"`
}

type createJournalEntryRequest struct {
	Description string               `json:"description"`
	Lines       []journalLineRequest `json:"lines"`
	ClientRef   string               `json:"client_ref,omitempty"`
}

type reverseJournalEntryRequest struct {
	Description string `json:"description,omitempty"`
}

func (h *AccountingHandler) HandleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	account, err := h.accountingService.CreateAccount(r.Context(), req.Code, req.Name, req.Type)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrDuplicateAccount):
			utils.SendJSONError(w, err.Error(), http.StatusConflict)
		case errors.Is(err, validation.ErrValidationFailed):
			utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		default:
			logger.FromContext(r.Context()).Error("Failed to create account", "code", req.Code, "error", err)
			utils.SendJSONError(w, "Failed to create account", http.StatusInternalServerError)
		}
		return
	}
	utils.SendJSONResponse(w, account, http.StatusCreated)
}

func (h *AccountingHandler) HandleListAccounts(w http.ResponseWriter, r *http.Request) {
	accountType := models.AccountType(r.URL.Query().Get("type"))

	accounts, err := h.accountingService.ListAccounts(r.Context(), accountType)
	if err != nil {
		if errors.Is(err, validation.ErrValidationFailed) {
			utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		logger.FromContext(r.Context()).Error("Failed to list accounts", "error", err)
		utils.SendJSONError(w, "Failed to list accounts", http.StatusInternalServerError)
		return
	}
	utils.SendJSONResponse(w, accounts, http.StatusOK)
}

func (h *AccountingHandler) HandleGetAccount(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	account, err := h.accountingService.GetAccount(r.Context(), code)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			utils.SendJSONError(w, err.Error(), http.StatusNotFound)
			return
		}
		logger.FromContext(r.Context()).Error("Failed to get account", "code", code, "error", err)
		utils.SendJSONError(w, "Failed to get account", http.StatusInternalServerError)
		return
	}
	utils.SendJSONResponse(w, account, http.StatusOK)
}

func (h *AccountingHandler) HandleDeactivateAccount(w http.ResponseWriter, r *http.Request) {
	h.setAccountActive(w, r, false)
}

func (h *AccountingHandler) HandleReactivateAccount(w http.ResponseWriter, r *http.Request) {
	h.setAccountActive(w, r, true)
}

func (h *AccountingHandler) setAccountActive(w http.ResponseWriter, r *http.Request, active bool) {
	code := chi.URLParam(r, "code")

	var account models.Account
	var err error
	if active {
		account, err = h.accountingService.ReactivateAccount(r.Context(), code)
	} else {
		account, err = h.accountingService.DeactivateAccount(r.Context(), code)
	}
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			utils.SendJSONError(w, err.Error(), http.StatusNotFound)
			return
		}
		logger.FromContext(r.Context()).Error("Failed to update account active flag", "code", code, "error", err)
		utils.SendJSONError(w, "Failed to update account", http.StatusInternalServerError)
		return
	}
	utils.SendJSONResponse(w, account, http.StatusOK)
}

func (h *AccountingHandler) HandleCreateJournalEntry(w http.ResponseWriter, r *http.Request) {
	var req createJournalEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	// The body's client_ref wins; the Idempotency-Key header is accepted as
	// a fallback for callers that follow the header convention.
	clientRef := req.ClientRef
	if clientRef == "" {
		clientRef = r.Header.Get("Idempotency-Key")
	}

	lines := make([]models.JournalLine, len(req.Lines))
	for i, line := range req.Lines {
		lines[i] = models.JournalLine{
			AccountCode: line.AccountCode,
			Debit:       line.Debit,
			Credit:      line.Credit,
		}
	}

	entry, created, err := h.accountingService.CreateJournalEntry(r.Context(), req.Description, lines, clientRef)
	if err != nil {
		h.sendJournalError(w, r, err)
		return
	}

	// 201 on first commit, 200 on an idempotent replay so retrying callers
	// can tell the two apart.
	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	utils.SendJSONResponse(w, entry, status)
}

func (h *AccountingHandler) HandleGetJournalEntry(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		utils.SendJSONError(w, "Invalid journal entry id", http.StatusBadRequest)
		return
	}

	entry, err := h.accountingService.GetJournalEntry(r.Context(), id)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			utils.SendJSONError(w, err.Error(), http.StatusNotFound)
			return
		}
		logger.FromContext(r.Context()).Error("Failed to get journal entry", "entryID", id, "error", err)
		utils.SendJSONError(w, "Failed to get journal entry", http.StatusInternalServerError)
		return
	}
	utils.SendJSONResponse(w, entry, http.StatusOK)
}

func (h *AccountingHandler) HandleListJournalEntries(w http.ResponseWriter, r *http.Request) {
	from, err := parseTimeParam(r, "start")
	if err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	to, err := parseTimeParam(r, "end")
	if err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	entries, err := h.accountingService.ListJournalEntries(r.Context(), from, to)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to list journal entries", "error", err)
		utils.SendJSONError(w, "Failed to list journal entries", http.StatusInternalServerError)
		return
	}
	utils.SendJSONResponse(w, entries, http.StatusOK)
}

func (h *AccountingHandler) HandleReverseJournalEntry(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		utils.SendJSONError(w, "Invalid journal entry id", http.StatusBadRequest)
		return
	}

	var req reverseJournalEntryRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}

	entry, created, err := h.accountingService.ReverseJournalEntry(r.Context(), id, req.Description)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			utils.SendJSONError(w, err.Error(), http.StatusNotFound)
			return
		}
		h.sendJournalError(w, r, err)
		return
	}

	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	utils.SendJSONResponse(w, entry, status)
}

func (h *AccountingHandler) sendJournalError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, validation.ErrValidationFailed):
		utils.SendJSONError(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, services.ErrConflict):
		utils.SendJSONError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, services.ErrIntegrity):
		logger.FromContext(r.Context()).Error("Posting refused", "error", err)
		utils.SendJSONError(w, err.Error(), http.StatusInternalServerError)
	default:
		logger.FromContext(r.Context()).Error("Failed to create journal entry", "error", err)
		utils.SendJSONError(w, "Failed to create journal entry", http.StatusInternalServerError)
	}
}

// parseTimeParam reads an optional query parameter as RFC3339 or YYYY-MM-DD.
func parseTimeParam(r *http.Request, name string) (*time.Time, error) {
	value := r.URL.Query().Get(name)
	if value == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		t = t.UTC()
		return &t, nil
	}
	if t, err := time.Parse("2006-01-02", value); err == nil {
		t = t.UTC()
		return &t, nil
	}
	return nil, fmt.Errorf("invalid %s parameter: expected RFC3339 or YYYY-MM-DD", name)
}
