// backend/src/services/interfaces.go
package services

import (
	"context"
	"errors"
	"time"

	"github.com/username/wealthfolio/backend/src/models"
)

// Define common service errors. Validation failures are reported as errors
// wrapping validation.ErrValidationFailed instead.
var (
	// ErrDuplicateAccount reports an account code collision on creation.
	ErrDuplicateAccount = errors.New("account code already exists")
	// ErrNotFound reports an unknown account code or journal entry id.
	ErrNotFound = errors.New("not found")
	// ErrConflict reports a client_ref resubmitted with different entry
	// content than the committed original. Distinct from the idempotent
	// replay case, which succeeds and returns the original entry.
	ErrConflict = errors.New("client_ref already used with different entry content")
	// ErrIntegrity reports a violated ledger identity (trial balance or
	// balance sheet). It indicates a writer bug or an out-of-band mutation
	// of the store, never a business result; once observed, postings are
	// refused until an operator intervenes and the process restarts.
	ErrIntegrity = errors.New("ledger integrity violation")
)

// AccountingService is the double-entry accounting core: chart of accounts,
// atomic journal postings, per-account ledgers and derived financial
// statements. Committed journal entries are immutable; the only correction
// mechanism is ReverseJournalEntry.
type AccountingService interface {
	CreateAccount(ctx context.Context, code, name string, accountType models.AccountType) (models.Account, error)
	GetAccount(ctx context.Context, code string) (models.Account, error)
	ListAccounts(ctx context.Context, accountType models.AccountType) ([]models.Account, error)
	DeactivateAccount(ctx context.Context, code string) (models.Account, error)
	ReactivateAccount(ctx context.Context, code string) (models.Account, error)

	// CreateJournalEntry validates and atomically commits a balanced entry.
	// created is false when clientRef matched an existing entry and that
	// entry was returned unchanged (idempotent replay).
	CreateJournalEntry(ctx context.Context, description string, lines []models.JournalLine, clientRef string) (entry models.JournalEntry, created bool, err error)
	GetJournalEntry(ctx context.Context, id int64) (models.JournalEntry, error)
	ListJournalEntries(ctx context.Context, from, to *time.Time) ([]models.JournalEntry, error)
	// ReverseJournalEntry posts a new entry that exactly negates the
	// original's lines. Retried reversals are idempotent: the reversal
	// carries a deterministic client_ref derived from the original id.
	ReverseJournalEntry(ctx context.Context, id int64, description string) (entry models.JournalEntry, created bool, err error)

	GetAccountLedger(ctx context.Context, code string) ([]models.LedgerLine, error)
	GenerateTrialBalance(ctx context.Context) (models.TrialBalance, error)
	GenerateProfitLoss(ctx context.Context, start, end *time.Time) (models.ProfitLoss, error)
	GenerateBalanceSheet(ctx context.Context, asOf *time.Time) (models.BalanceSheet, error)
}
