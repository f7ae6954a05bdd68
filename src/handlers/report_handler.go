// backend/src/handlers/report_handler.go
package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/username/wealthfolio/backend/src/logger"
	"github.com/username/wealthfolio/backend/src/services"
	"github.com/username/wealthfolio/backend/src/utils"
)

// ReportHandler exposes the derived financial statements. All endpoints are
// read-only and operate on committed entries only.
type ReportHandler struct {
	accountingService services.AccountingService
}

func NewReportHandler(accountingService services.AccountingService) *ReportHandler {
	return &ReportHandler{
		accountingService: accountingService,
	}
}

func (h *ReportHandler) HandleTrialBalance(w http.ResponseWriter, r *http.Request) {
	report, err := h.accountingService.GenerateTrialBalance(r.Context())
	if err != nil {
		h.sendReportError(w, r, "trial balance", err)
		return
	}
	utils.SendJSONResponse(w, report, http.StatusOK)
}

func (h *ReportHandler) HandleProfitLoss(w http.ResponseWriter, r *http.Request) {
	start, err := parseTimeParam(r, "start")
	if err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	end, err := parseTimeParam(r, "end")
	if err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	report, err := h.accountingService.GenerateProfitLoss(r.Context(), start, end)
	if err != nil {
		h.sendReportError(w, r, "profit and loss", err)
		return
	}
	utils.SendJSONResponse(w, report, http.StatusOK)
}

func (h *ReportHandler) HandleBalanceSheet(w http.ResponseWriter, r *http.Request) {
	asOf, err := parseTimeParam(r, "as_of")
	if err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	report, err := h.accountingService.GenerateBalanceSheet(r.Context(), asOf)
	if err != nil {
		h.sendReportError(w, r, "balance sheet", err)
		return
	}
	utils.SendJSONResponse(w, report, http.StatusOK)
}

// HandleAccountLedger is the audit drill-down: the account's full posting
// history in commit order with running balances.
func (h *ReportHandler) HandleAccountLedger(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "accountCode")

	ledger, err := h.accountingService.GetAccountLedger(r.Context(), code)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			utils.SendJSONError(w, err.Error(), http.StatusNotFound)
			return
		}
		logger.FromContext(r.Context()).Error("Failed to build account ledger", "code", code, "error", err)
		utils.SendJSONError(w, "Failed to build account ledger", http.StatusInternalServerError)
		return
	}
	utils.SendJSONResponse(w, ledger, http.StatusOK)
}

func (h *ReportHandler) sendReportError(w http.ResponseWriter, r *http.Request, report string, err error) {
	if errors.Is(err, services.ErrIntegrity) {
		// Already logged and latched by the service; surface it loudly.
		utils.SendJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	logger.FromContext(r.Context()).Error("Failed to generate report", "report", report, "error", err)
	utils.SendJSONError(w, "Failed to generate "+report, http.StatusInternalServerError)
}
