package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/wealthfolio/backend/src/models"
	"github.com/username/wealthfolio/backend/src/storage"
)

func seedAccounts(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.CreateAccount(ctx, models.Account{Code: "cash", Name: "Cash", Type: models.AccountTypeAsset, NormalBalance: models.SideDebit, Active: true}))
	require.NoError(t, s.CreateAccount(ctx, models.Account{Code: "revenue", Name: "Revenue", Type: models.AccountTypeRevenue, NormalBalance: models.SideCredit, Active: true}))
}

func balancedDraft(clientRef string, amount int64) models.EntryDraft {
	return models.EntryDraft{
		Description: "sale",
		ClientRef:   clientRef,
		Lines: []models.JournalLine{
			{AccountCode: "cash", Debit: amount},
			{AccountCode: "revenue", Credit: amount},
		},
	}
}

func TestAccountLifecycle(t *testing.T) {
	s := New()
	ctx := context.Background()
	seedAccounts(t, s)

	err := s.CreateAccount(ctx, models.Account{Code: "cash"})
	assert.ErrorIs(t, err, storage.ErrDuplicateAccount)

	_, err = s.GetAccount(ctx, "nope")
	assert.ErrorIs(t, err, storage.ErrAccountNotFound)

	account, err := s.SetAccountActive(ctx, "cash", false)
	require.NoError(t, err)
	assert.False(t, account.Active)

	_, err = s.SetAccountActive(ctx, "nope", false)
	assert.ErrorIs(t, err, storage.ErrAccountNotFound)

	accounts, err := s.ListAccounts(ctx, "")
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "cash", accounts[0].Code, "accounts are ordered by code")
}

func TestCreateJournalEntryAssignsMonotonicIDs(t *testing.T) {
	s := New()
	ctx := context.Background()
	seedAccounts(t, s)

	var lastID int64
	for i := 0; i < 5; i++ {
		entry, created, err := s.CreateJournalEntry(ctx, balancedDraft("", 100))
		require.NoError(t, err)
		require.True(t, created)
		assert.Greater(t, entry.ID, lastID)
		lastID = entry.ID
		for _, line := range entry.Lines {
			assert.Equal(t, entry.ID, line.EntryID)
		}
	}
}

func TestCreateJournalEntryChecksAccountsAtomically(t *testing.T) {
	s := New()
	ctx := context.Background()
	seedAccounts(t, s)

	draft := balancedDraft("", 100)
	draft.Lines[1].AccountCode = "ghost"
	_, _, err := s.CreateJournalEntry(ctx, draft)
	assert.ErrorIs(t, err, storage.ErrAccountNotFound)

	_, err = s.SetAccountActive(ctx, "revenue", false)
	require.NoError(t, err)
	_, _, err = s.CreateJournalEntry(ctx, balancedDraft("", 100))
	assert.ErrorIs(t, err, storage.ErrAccountInactive)

	// Nothing was committed by the rejected drafts.
	entries, err := s.ListJournalEntries(ctx, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestClientRefCheckAndInsertIsAtomic(t *testing.T) {
	s := New()
	ctx := context.Background()
	seedAccounts(t, s)

	const callers = 32
	results := make([]models.JournalEntry, callers)
	created := make([]bool, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], created[i], errs[i] = s.CreateJournalEntry(ctx, balancedDraft("ref-1", 100))
		}(i)
	}
	wg.Wait()

	winners := 0
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		if created[i] {
			winners++
		}
		assert.Equal(t, results[0].ID, results[i].ID)
	}
	assert.Equal(t, 1, winners, "exactly one caller commits")

	entries, err := s.ListJournalEntries(ctx, nil, nil)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestGetJournalEntryByClientRef(t *testing.T) {
	s := New()
	ctx := context.Background()
	seedAccounts(t, s)

	entry, _, err := s.CreateJournalEntry(ctx, balancedDraft("ref-1", 100))
	require.NoError(t, err)

	byRef, err := s.GetJournalEntryByClientRef(ctx, "ref-1")
	require.NoError(t, err)
	assert.Equal(t, entry.ID, byRef.ID)

	_, err = s.GetJournalEntryByClientRef(ctx, "ref-2")
	assert.ErrorIs(t, err, storage.ErrEntryNotFound)
}

func TestReturnedEntriesAreCopies(t *testing.T) {
	s := New()
	ctx := context.Background()
	seedAccounts(t, s)

	entry, _, err := s.CreateJournalEntry(ctx, balancedDraft("", 100))
	require.NoError(t, err)

	// Mutating the returned value must not reach committed state.
	entry.Lines[0].Debit = 999999

	reloaded, err := s.GetJournalEntry(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), reloaded.Lines[0].Debit)
}

func TestListJournalEntriesRange(t *testing.T) {
	s := New()
	ctx := context.Background()
	seedAccounts(t, s)

	now := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return now })
	_, _, err := s.CreateJournalEntry(ctx, balancedDraft("", 100))
	require.NoError(t, err)

	now = now.AddDate(0, 1, 0)
	_, _, err = s.CreateJournalEntry(ctx, balancedDraft("", 200))
	require.NoError(t, err)

	cutoff := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	early, err := s.ListJournalEntries(ctx, nil, &cutoff)
	require.NoError(t, err)
	require.Len(t, early, 1)

	late, err := s.ListJournalEntries(ctx, &cutoff, nil)
	require.NoError(t, err)
	require.Len(t, late, 1)

	totals, err := s.AccountTotals(ctx, &cutoff, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(200), totals["cash"].Debit)

	all, err := s.AccountTotals(ctx, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(300), all["cash"].Debit)
	assert.Equal(t, int64(300), all["revenue"].Credit)
}

func TestAccountLinesInCommitOrder(t *testing.T) {
	s := New()
	ctx := context.Background()
	seedAccounts(t, s)

	for _, amount := range []int64{100, 200, 300} {
		_, _, err := s.CreateJournalEntry(ctx, balancedDraft("", amount))
		require.NoError(t, err)
	}

	lines, err := s.AccountLines(ctx, "cash")
	require.NoError(t, err)
	require.Len(t, lines, 3)
	for i := 1; i < len(lines); i++ {
		assert.Greater(t, lines[i].EntryID, lines[i-1].EntryID)
	}
}
