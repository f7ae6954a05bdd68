// backend/src/services/accounting_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/username/wealthfolio/backend/src/logger"
	"github.com/username/wealthfolio/backend/src/models"
	"github.com/username/wealthfolio/backend/src/security/validation"
	"github.com/username/wealthfolio/backend/src/storage"
)

// accountingService implements AccountingService over an injected store.
// Ledger balances are always derived by replaying committed lines; only whole
// report payloads are cached, and the cache is flushed on every successful
// posting, so a cached report can be stale but never partial.
type accountingService struct {
	store       storage.Store
	reportCache *cache.Cache
	halted      atomic.Bool
}

// NewAccountingService wires the accounting core to a store and a report
// cache. The cache may be nil, which disables report caching.
func NewAccountingService(store storage.Store, reportCache *cache.Cache) AccountingService {
	return &accountingService{store: store, reportCache: reportCache}
}

// --- Account Registry ---

func (s *accountingService) CreateAccount(ctx context.Context, code, name string, accountType models.AccountType) (models.Account, error) {
	if err := validation.ValidateAccountCode(code); err != nil {
		return models.Account{}, err
	}
	name = validation.CleanText(name)
	if err := validation.ValidateStringNotEmpty(name, "account name"); err != nil {
		return models.Account{}, err
	}
	if err := validation.ValidateStringMaxLength(name, validation.MaxAccountNameLength, "account name"); err != nil {
		return models.Account{}, err
	}
	if !models.ValidAccountType(accountType) {
		return models.Account{}, fmt.Errorf("%w: unrecognized account type '%s'", validation.ErrValidationFailed, accountType)
	}

	account := models.Account{
		Code:          code,
		Name:          name,
		Type:          accountType,
		NormalBalance: models.NormalBalanceFor(accountType),
		Active:        true,
	}
	if err := s.store.CreateAccount(ctx, account); err != nil {
		if errors.Is(err, storage.ErrDuplicateAccount) {
			return models.Account{}, fmt.Errorf("%w: %s", ErrDuplicateAccount, code)
		}
		return models.Account{}, err
	}
	logger.FromContext(ctx).Info("Account created", "code", code, "type", accountType)
	return account, nil
}

func (s *accountingService) GetAccount(ctx context.Context, code string) (models.Account, error) {
	account, err := s.store.GetAccount(ctx, code)
	if errors.Is(err, storage.ErrAccountNotFound) {
		return models.Account{}, fmt.Errorf("%w: account %s", ErrNotFound, code)
	}
	return account, err
}

func (s *accountingService) ListAccounts(ctx context.Context, accountType models.AccountType) ([]models.Account, error) {
	if accountType != "" && !models.ValidAccountType(accountType) {
		return nil, fmt.Errorf("%w: unrecognized account type '%s'", validation.ErrValidationFailed, accountType)
	}
	return s.store.ListAccounts(ctx, accountType)
}

func (s *accountingService) DeactivateAccount(ctx context.Context, code string) (models.Account, error) {
	return s.setAccountActive(ctx, code, false)
}

func (s *accountingService) ReactivateAccount(ctx context.Context, code string) (models.Account, error) {
	return s.setAccountActive(ctx, code, true)
}

func (s *accountingService) setAccountActive(ctx context.Context, code string, active bool) (models.Account, error) {
	account, err := s.store.SetAccountActive(ctx, code, active)
	if errors.Is(err, storage.ErrAccountNotFound) {
		return models.Account{}, fmt.Errorf("%w: account %s", ErrNotFound, code)
	}
	if err == nil {
		logger.FromContext(ctx).Info("Account active flag updated", "code", code, "active", active)
	}
	return account, err
}

// --- Journal Writer ---

func (s *accountingService) CreateJournalEntry(ctx context.Context, description string, lines []models.JournalLine, clientRef string) (models.JournalEntry, bool, error) {
	if s.halted.Load() {
		return models.JournalEntry{}, false, fmt.Errorf("%w: postings are halted pending operator intervention", ErrIntegrity)
	}

	description = validation.CleanText(description)
	if err := validation.ValidateClientRef(clientRef); err != nil {
		return models.JournalEntry{}, false, err
	}
	draft := models.EntryDraft{
		Description: description,
		ClientRef:   clientRef,
		Lines:       lines,
	}

	// A clientRef hit is resolved before any further validation: a retry of
	// an already committed entry returns the original even if an account it
	// touches was deactivated in the meantime.
	if clientRef != "" {
		existing, err := s.store.GetJournalEntryByClientRef(ctx, clientRef)
		if err == nil {
			return s.resolveReplay(ctx, draft, existing)
		}
		if !errors.Is(err, storage.ErrEntryNotFound) {
			return models.JournalEntry{}, false, err
		}
	}

	if err := validation.ValidateStringMaxLength(description, validation.MaxDescriptionLength, "description"); err != nil {
		return models.JournalEntry{}, false, err
	}
	if err := s.validateLines(ctx, lines); err != nil {
		return models.JournalEntry{}, false, err
	}

	return s.commit(ctx, draft)
}

// validateLines enforces the journal invariants in a fixed order: lines
// non-empty, each line single-sided and positive, every account known and
// active, and debits equal to credits. The account check here gives the
// caller a precise error; the store repeats it atomically at commit time.
func (s *accountingService) validateLines(ctx context.Context, lines []models.JournalLine) error {
	if len(lines) == 0 {
		return fmt.Errorf("%w: journal entry requires at least one line", validation.ErrValidationFailed)
	}
	for i, line := range lines {
		if line.Debit < 0 || line.Credit < 0 {
			return fmt.Errorf("%w: line %d has a negative amount", validation.ErrValidationFailed, i)
		}
		if (line.Debit > 0) == (line.Credit > 0) {
			return fmt.Errorf("%w: line %d must have exactly one of debit or credit set", validation.ErrValidationFailed, i)
		}
	}
	for i, line := range lines {
		account, err := s.store.GetAccount(ctx, line.AccountCode)
		if errors.Is(err, storage.ErrAccountNotFound) {
			return fmt.Errorf("%w: line %d references unknown account %s", validation.ErrValidationFailed, i, line.AccountCode)
		}
		if err != nil {
			return err
		}
		if !account.Active {
			return fmt.Errorf("%w: line %d references inactive account %s", validation.ErrValidationFailed, i, line.AccountCode)
		}
	}
	var debits, credits int64
	for _, line := range lines {
		debits += line.Debit
		credits += line.Credit
	}
	if debits != credits {
		return fmt.Errorf("%w: entry is unbalanced (debits=%d credits=%d)", validation.ErrValidationFailed, debits, credits)
	}
	return nil
}

// commit hands the validated draft to the store and resolves the idempotency
// outcome. A clientRef hit with identical content is a successful replay; a
// hit with different content is a conflict.
func (s *accountingService) commit(ctx context.Context, draft models.EntryDraft) (models.JournalEntry, bool, error) {
	entry, created, err := s.store.CreateJournalEntry(ctx, draft)
	if err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) || errors.Is(err, storage.ErrAccountInactive) {
			return models.JournalEntry{}, false, fmt.Errorf("%w: %v", validation.ErrValidationFailed, err)
		}
		return models.JournalEntry{}, false, err
	}
	if !created {
		return s.resolveReplay(ctx, draft, entry)
	}

	s.invalidateReportCache()
	logger.FromContext(ctx).Info("Journal entry committed", "entryID", entry.ID, "lines", len(entry.Lines))
	return entry, true, nil
}

// resolveReplay decides the outcome of a clientRef hit: identical content is
// a successful replay of the committed entry, different content is a conflict.
func (s *accountingService) resolveReplay(ctx context.Context, draft models.EntryDraft, entry models.JournalEntry) (models.JournalEntry, bool, error) {
	if !draft.SameContent(entry) {
		return models.JournalEntry{}, false, fmt.Errorf("%w: client_ref %s", ErrConflict, draft.ClientRef)
	}
	logger.FromContext(ctx).Info("Journal entry replayed", "entryID", entry.ID, "clientRef", draft.ClientRef)
	return entry, false, nil
}

func (s *accountingService) GetJournalEntry(ctx context.Context, id int64) (models.JournalEntry, error) {
	entry, err := s.store.GetJournalEntry(ctx, id)
	if errors.Is(err, storage.ErrEntryNotFound) {
		return models.JournalEntry{}, fmt.Errorf("%w: journal entry %d", ErrNotFound, id)
	}
	return entry, err
}

func (s *accountingService) ListJournalEntries(ctx context.Context, from, to *time.Time) ([]models.JournalEntry, error) {
	return s.store.ListJournalEntries(ctx, from, to)
}

func (s *accountingService) ReverseJournalEntry(ctx context.Context, id int64, description string) (models.JournalEntry, bool, error) {
	if s.halted.Load() {
		return models.JournalEntry{}, false, fmt.Errorf("%w: postings are halted pending operator intervention", ErrIntegrity)
	}

	original, err := s.GetJournalEntry(ctx, id)
	if err != nil {
		return models.JournalEntry{}, false, err
	}

	description = validation.CleanText(description)
	if description == "" {
		description = fmt.Sprintf("Reversal of entry %d: %s", original.ID, original.Description)
	}
	if err := validation.ValidateStringMaxLength(description, validation.MaxDescriptionLength, "description"); err != nil {
		return models.JournalEntry{}, false, err
	}

	lines := make([]models.JournalLine, len(original.Lines))
	for i, line := range original.Lines {
		lines[i] = models.JournalLine{
			AccountCode: line.AccountCode,
			Debit:       line.Credit,
			Credit:      line.Debit,
		}
	}

	// Deterministic clientRef: retrying a reversal can never double-post,
	// and reversing the same entry twice replays the first reversal.
	return s.commit(ctx, models.EntryDraft{
		Description: description,
		ClientRef:   fmt.Sprintf("reversal-of-%d", original.ID),
		Lines:       lines,
	})
}

// --- Ledger Query Engine ---

// GetAccountLedger returns the account's lines in commit order with a running
// balance signed by the account's normal side. This is a pure projection of
// the entry log; no balance is cached anywhere, so the result can never drift
// from the committed entries.
func (s *accountingService) GetAccountLedger(ctx context.Context, code string) ([]models.LedgerLine, error) {
	account, err := s.GetAccount(ctx, code)
	if err != nil {
		return nil, err
	}

	posted, err := s.store.AccountLines(ctx, code)
	if err != nil {
		return nil, err
	}

	ledger := make([]models.LedgerLine, 0, len(posted))
	var balance int64
	for _, line := range posted {
		balance += signedAmount(account.NormalBalance, line.Debit, line.Credit)
		ledger = append(ledger, models.LedgerLine{
			EntryID:     line.EntryID,
			Description: line.Description,
			CreatedAt:   line.CreatedAt,
			Debit:       line.Debit,
			Credit:      line.Credit,
			Balance:     balance,
		})
	}
	return ledger, nil
}

// signedAmount applies a movement to an account balance: debits add on
// debit-normal accounts and subtract on credit-normal ones, and vice versa.
func signedAmount(normal models.Side, debit, credit int64) int64 {
	if normal == models.SideDebit {
		return debit - credit
	}
	return credit - debit
}

// --- Report Generator ---

func (s *accountingService) GenerateTrialBalance(ctx context.Context) (models.TrialBalance, error) {
	const cacheKey = "report:trial-balance"
	if report, ok := cachedReport[models.TrialBalance](s.reportCache, cacheKey); ok {
		return report, nil
	}

	accounts, totals, err := s.accountsAndTotals(ctx, nil, nil)
	if err != nil {
		return models.TrialBalance{}, err
	}

	report := models.TrialBalance{Rows: []models.TrialBalanceRow{}}
	for _, account := range accounts {
		t, ok := totals[account.Code]
		if !ok {
			continue
		}
		report.Rows = append(report.Rows, models.TrialBalanceRow{
			AccountCode: account.Code,
			AccountName: account.Name,
			AccountType: account.Type,
			Debit:       t.Debit,
			Credit:      t.Credit,
		})
		report.TotalDebits += t.Debit
		report.TotalCredits += t.Credit
	}

	if report.TotalDebits != report.TotalCredits {
		return models.TrialBalance{}, s.integrityFailure(ctx, "trial balance",
			fmt.Sprintf("total debits %d != total credits %d", report.TotalDebits, report.TotalCredits))
	}

	s.cacheReport(cacheKey, report)
	return report, nil
}

func (s *accountingService) GenerateProfitLoss(ctx context.Context, start, end *time.Time) (models.ProfitLoss, error) {
	cacheKey := "report:profit-loss:" + rangeKey(start, end)
	if report, ok := cachedReport[models.ProfitLoss](s.reportCache, cacheKey); ok {
		return report, nil
	}

	accounts, totals, err := s.accountsAndTotals(ctx, start, end)
	if err != nil {
		return models.ProfitLoss{}, err
	}

	report := models.ProfitLoss{
		Start:    start,
		End:      end,
		Revenue:  []models.AccountAmount{},
		Expenses: []models.AccountAmount{},
	}
	for _, account := range accounts {
		t, ok := totals[account.Code]
		if !ok {
			continue
		}
		amount := signedAmount(account.NormalBalance, t.Debit, t.Credit)
		switch account.Type {
		case models.AccountTypeRevenue:
			report.Revenue = append(report.Revenue, models.AccountAmount{AccountCode: account.Code, AccountName: account.Name, Amount: amount})
			report.TotalRevenue += amount
		case models.AccountTypeExpense:
			report.Expenses = append(report.Expenses, models.AccountAmount{AccountCode: account.Code, AccountName: account.Name, Amount: amount})
			report.TotalExpenses += amount
		}
	}
	report.NetIncome = report.TotalRevenue - report.TotalExpenses

	s.cacheReport(cacheKey, report)
	return report, nil
}

func (s *accountingService) GenerateBalanceSheet(ctx context.Context, asOf *time.Time) (models.BalanceSheet, error) {
	cacheKey := "report:balance-sheet:" + rangeKey(nil, asOf)
	if report, ok := cachedReport[models.BalanceSheet](s.reportCache, cacheKey); ok {
		return report, nil
	}

	accounts, totals, err := s.accountsAndTotals(ctx, nil, asOf)
	if err != nil {
		return models.BalanceSheet{}, err
	}

	report := models.BalanceSheet{
		AsOf:        asOf,
		Assets:      []models.AccountAmount{},
		Liabilities: []models.AccountAmount{},
		Equity:      []models.AccountAmount{},
	}
	for _, account := range accounts {
		t, ok := totals[account.Code]
		if !ok {
			continue
		}
		amount := signedAmount(account.NormalBalance, t.Debit, t.Credit)
		row := models.AccountAmount{AccountCode: account.Code, AccountName: account.Name, Amount: amount}
		switch account.Type {
		case models.AccountTypeAsset:
			report.Assets = append(report.Assets, row)
			report.TotalAssets += amount
		case models.AccountTypeLiability:
			report.Liabilities = append(report.Liabilities, row)
			report.TotalLiabilities += amount
		case models.AccountTypeEquity:
			report.Equity = append(report.Equity, row)
			report.TotalEquity += amount
		case models.AccountTypeRevenue:
			// Accumulated net income through asOf stays in retained earnings.
			report.RetainedEarnings += amount
		case models.AccountTypeExpense:
			report.RetainedEarnings -= amount
		}
	}

	if report.TotalAssets != report.TotalLiabilities+report.TotalEquity+report.RetainedEarnings {
		return models.BalanceSheet{}, s.integrityFailure(ctx, "balance sheet",
			fmt.Sprintf("assets %d != liabilities %d + equity %d + retained earnings %d",
				report.TotalAssets, report.TotalLiabilities, report.TotalEquity, report.RetainedEarnings))
	}

	s.cacheReport(cacheKey, report)
	return report, nil
}

// accountsAndTotals loads the chart of accounts (code order) together with
// per-account debit/credit sums over [from, to).
func (s *accountingService) accountsAndTotals(ctx context.Context, from, to *time.Time) ([]models.Account, map[string]storage.Totals, error) {
	accounts, err := s.store.ListAccounts(ctx, "")
	if err != nil {
		return nil, nil, err
	}
	totals, err := s.store.AccountTotals(ctx, from, to)
	if err != nil {
		return nil, nil, err
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].Code < accounts[j].Code })
	return accounts, totals, nil
}

// integrityFailure latches the halt flag and surfaces the violation. It is
// never expected while the Journal Writer's invariants hold; seeing one means
// a writer bug or an out-of-band mutation of the store.
func (s *accountingService) integrityFailure(ctx context.Context, report, detail string) error {
	s.halted.Store(true)
	logger.FromContext(ctx).Error("LEDGER INTEGRITY VIOLATION: halting postings",
		"report", report, "detail", detail)
	return fmt.Errorf("%w: %s: %s", ErrIntegrity, report, detail)
}

// --- report cache plumbing ---

func (s *accountingService) invalidateReportCache() {
	if s.reportCache != nil {
		s.reportCache.Flush()
	}
}

func (s *accountingService) cacheReport(key string, report any) {
	if s.reportCache != nil {
		s.reportCache.Set(key, report, cache.DefaultExpiration)
	}
}

func cachedReport[T any](c *cache.Cache, key string) (T, bool) {
	var zero T
	if c == nil {
		return zero, false
	}
	value, ok := c.Get(key)
	if !ok {
		return zero, false
	}
	report, ok := value.(T)
	if !ok {
		return zero, false
	}
	return report, true
}

func rangeKey(from, to *time.Time) string {
	key := "all:"
	if from != nil {
		key = from.UTC().Format(time.RFC3339Nano) + ":"
	}
	if to != nil {
		key += to.UTC().Format(time.RFC3339Nano)
	} else {
		key += "all"
	}
	return key
}
