package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/username/wealthfolio/backend/src/models"
	"github.com/username/wealthfolio/backend/src/storage"
)

// Store is an in-memory implementation of storage.Store, used by unit tests
// and local development. A single mutex serializes every operation, which
// makes CreateJournalEntry trivially atomic: the clientRef check, the account
// re-check and the append happen under one lock hold.
type Store struct {
	mu       sync.Mutex
	accounts map[string]models.Account
	entries  []models.JournalEntry
	byRef    map[string]int64 // clientRef -> entry id
	byID     map[int64]int    // entry id -> index into entries
	nextID   int64
	clock    func() time.Time
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		accounts: make(map[string]models.Account),
		byRef:    make(map[string]int64),
		byID:     make(map[int64]int),
		nextID:   1,
		clock:    time.Now,
	}
}

// SetClock overrides the commit timestamp source. Test hook.
func (s *Store) SetClock(clock func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = clock
}

func (s *Store) CreateAccount(ctx context.Context, account models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[account.Code]; exists {
		return fmt.Errorf("%w: %s", storage.ErrDuplicateAccount, account.Code)
	}
	s.accounts[account.Code] = account
	return nil
}

func (s *Store) GetAccount(ctx context.Context, code string) (models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, exists := s.accounts[code]
	if !exists {
		return models.Account{}, fmt.Errorf("%w: %s", storage.ErrAccountNotFound, code)
	}
	return account, nil
}

func (s *Store) ListAccounts(ctx context.Context, accountType models.AccountType) ([]models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	accounts := make([]models.Account, 0, len(s.accounts))
	for _, account := range s.accounts {
		if accountType != "" && account.Type != accountType {
			continue
		}
		accounts = append(accounts, account)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].Code < accounts[j].Code })
	return accounts, nil
}

func (s *Store) SetAccountActive(ctx context.Context, code string, active bool) (models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, exists := s.accounts[code]
	if !exists {
		return models.Account{}, fmt.Errorf("%w: %s", storage.ErrAccountNotFound, code)
	}
	account.Active = active
	s.accounts[code] = account
	return account, nil
}

func (s *Store) CreateJournalEntry(ctx context.Context, draft models.EntryDraft) (models.JournalEntry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if draft.ClientRef != "" {
		if id, exists := s.byRef[draft.ClientRef]; exists {
			return s.copyEntry(s.entries[s.byID[id]]), false, nil
		}
	}

	// Invariant: every line must reference an existing, active account at
	// commit time, checked under the same lock that commits the entry.
	for _, line := range draft.Lines {
		account, exists := s.accounts[line.AccountCode]
		if !exists {
			return models.JournalEntry{}, false, fmt.Errorf("%w: %s", storage.ErrAccountNotFound, line.AccountCode)
		}
		if !account.Active {
			return models.JournalEntry{}, false, fmt.Errorf("%w: %s", storage.ErrAccountInactive, line.AccountCode)
		}
	}

	entry := models.JournalEntry{
		ID:          s.nextID,
		Description: draft.Description,
		ClientRef:   draft.ClientRef,
		CreatedAt:   s.clock().UTC(),
		Lines:       make([]models.JournalLine, len(draft.Lines)),
	}
	for i, line := range draft.Lines {
		line.EntryID = entry.ID
		entry.Lines[i] = line
	}

	s.nextID++
	s.byID[entry.ID] = len(s.entries)
	s.entries = append(s.entries, entry)
	if entry.ClientRef != "" {
		s.byRef[entry.ClientRef] = entry.ID
	}
	return s.copyEntry(entry), true, nil
}

func (s *Store) GetJournalEntry(ctx context.Context, id int64) (models.JournalEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, exists := s.byID[id]
	if !exists {
		return models.JournalEntry{}, fmt.Errorf("%w: %d", storage.ErrEntryNotFound, id)
	}
	return s.copyEntry(s.entries[idx]), nil
}

func (s *Store) GetJournalEntryByClientRef(ctx context.Context, clientRef string) (models.JournalEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, exists := s.byRef[clientRef]
	if !exists {
		return models.JournalEntry{}, fmt.Errorf("%w: client_ref %s", storage.ErrEntryNotFound, clientRef)
	}
	return s.copyEntry(s.entries[s.byID[id]]), nil
}

func (s *Store) ListJournalEntries(ctx context.Context, from, to *time.Time) ([]models.JournalEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]models.JournalEntry, 0, len(s.entries))
	for _, entry := range s.entries {
		if !inRange(entry.CreatedAt, from, to) {
			continue
		}
		entries = append(entries, s.copyEntry(entry))
	}
	return entries, nil
}

func (s *Store) AccountLines(ctx context.Context, code string) ([]storage.PostedLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var lines []storage.PostedLine
	for _, entry := range s.entries {
		for _, line := range entry.Lines {
			if line.AccountCode != code {
				continue
			}
			lines = append(lines, storage.PostedLine{
				EntryID:     entry.ID,
				Description: entry.Description,
				CreatedAt:   entry.CreatedAt,
				Debit:       line.Debit,
				Credit:      line.Credit,
			})
		}
	}
	return lines, nil
}

func (s *Store) AccountTotals(ctx context.Context, from, to *time.Time) (map[string]storage.Totals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	totals := make(map[string]storage.Totals)
	for _, entry := range s.entries {
		if !inRange(entry.CreatedAt, from, to) {
			continue
		}
		for _, line := range entry.Lines {
			t := totals[line.AccountCode]
			t.Debit += line.Debit
			t.Credit += line.Credit
			totals[line.AccountCode] = t
		}
	}
	return totals, nil
}

// copyEntry returns a deep copy so callers can never mutate committed state.
func (s *Store) copyEntry(entry models.JournalEntry) models.JournalEntry {
	copied := entry
	copied.Lines = make([]models.JournalLine, len(entry.Lines))
	copy(copied.Lines, entry.Lines)
	return copied
}

func inRange(t time.Time, from, to *time.Time) bool {
	if from != nil && t.Before(*from) {
		return false
	}
	if to != nil && !t.Before(*to) {
		return false
	}
	return true
}

// Compile-time check: Store implements storage.Store.
var _ storage.Store = (*Store)(nil)
