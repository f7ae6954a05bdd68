package storage

import (
	"context"
	"errors"
	"time"

	"github.com/username/wealthfolio/backend/src/models"
)

// Define common storage errors. Services translate these into API-level
// error kinds; handlers never see them directly.
var (
	ErrDuplicateAccount = errors.New("account code already exists")
	ErrAccountNotFound  = errors.New("account not found")
	ErrAccountInactive  = errors.New("account is inactive")
	ErrEntryNotFound    = errors.New("journal entry not found")
)

// PostedLine is one committed journal line joined with its entry header,
// as returned by AccountLines in commit (entry id ascending) order.
type PostedLine struct {
	EntryID     int64
	Description string
	CreatedAt   time.Time
	Debit       int64
	Credit      int64
}

// Totals accumulates raw debit and credit sums for one account.
type Totals struct {
	Debit  int64
	Credit int64
}

// Store is the transactional boundary of the accounting core. Implementations
// must guarantee that CreateJournalEntry is all-or-nothing and that readers
// only ever observe fully committed entries.
//
// Two implementations exist: sqlite (production) and memory (tests).
type Store interface {
	// CreateAccount persists a new account. Returns ErrDuplicateAccount if
	// the code is taken.
	CreateAccount(ctx context.Context, account models.Account) error
	// GetAccount returns the account with the given code, active or not.
	// Returns ErrAccountNotFound if absent.
	GetAccount(ctx context.Context, code string) (models.Account, error)
	// ListAccounts returns accounts ordered by code, optionally filtered by
	// type. An empty accountType means no filter.
	ListAccounts(ctx context.Context, accountType models.AccountType) ([]models.Account, error)
	// SetAccountActive flips the active flag and returns the updated account.
	SetAccountActive(ctx context.Context, code string, active bool) (models.Account, error)

	// CreateJournalEntry commits a validated draft atomically: it assigns the
	// next entry id and a server timestamp, re-checks that every referenced
	// account exists and is active, and persists header and lines together.
	// If the draft carries a ClientRef that already exists, the previously
	// committed entry is returned with created=false and nothing is written;
	// this check-and-return is atomic with respect to concurrent retries.
	CreateJournalEntry(ctx context.Context, draft models.EntryDraft) (entry models.JournalEntry, created bool, err error)
	// GetJournalEntry returns one committed entry with its lines.
	GetJournalEntry(ctx context.Context, id int64) (models.JournalEntry, error)
	// GetJournalEntryByClientRef returns the committed entry carrying the
	// given ClientRef, or ErrEntryNotFound if no entry claimed it.
	GetJournalEntryByClientRef(ctx context.Context, clientRef string) (models.JournalEntry, error)
	// ListJournalEntries returns committed entries with id in ascending
	// order whose CreatedAt falls in [from, to). Nil bounds are open.
	ListJournalEntries(ctx context.Context, from, to *time.Time) ([]models.JournalEntry, error)

	// AccountLines returns every committed line touching the account, in
	// commit order. The account's existence is not checked here.
	AccountLines(ctx context.Context, code string) ([]PostedLine, error)
	// AccountTotals sums debits and credits per account over entries whose
	// CreatedAt falls in [from, to). Accounts without postings are absent.
	AccountTotals(ctx context.Context, from, to *time.Time) (map[string]Totals, error)
}
