package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/username/wealthfolio/backend/src/models"
	"github.com/username/wealthfolio/backend/src/storage"
)

// Store is the sqlite implementation of storage.Store. The database handle is
// injected (see src/database for how it is opened); with WAL mode and a
// single connection every call below runs serially, so a BEGIN..COMMIT block
// is a serializable transaction.
type Store struct {
	db    *sql.DB
	clock func() time.Time
}

// New wraps an open database handle. The schema is managed by the migrations
// under db/migrations.
func New(db *sql.DB) *Store {
	return &Store{db: db, clock: time.Now}
}

// SetClock overrides the commit timestamp source. Test hook.
func (s *Store) SetClock(clock func() time.Time) {
	s.clock = clock
}

// timeLayout is RFC3339 with fixed-width nanoseconds so that stored UTC
// timestamps compare lexicographically in SQL.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (s *Store) CreateAccount(ctx context.Context, account models.Account) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (code, name, type, active) VALUES (?, ?, ?, ?)`,
		account.Code, account.Name, string(account.Type), account.Active)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", storage.ErrDuplicateAccount, account.Code)
	}
	if err != nil {
		return fmt.Errorf("inserting account %s: %w", account.Code, err)
	}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, code string) (models.Account, error) {
	return s.getAccount(ctx, s.db, code)
}

// querier lets getAccount run either on the pool or inside a transaction.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) getAccount(ctx context.Context, q querier, code string) (models.Account, error) {
	var account models.Account
	var accountType string
	err := q.QueryRowContext(ctx,
		`SELECT code, name, type, active FROM accounts WHERE code = ?`, code).
		Scan(&account.Code, &account.Name, &accountType, &account.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Account{}, fmt.Errorf("%w: %s", storage.ErrAccountNotFound, code)
	}
	if err != nil {
		return models.Account{}, fmt.Errorf("querying account %s: %w", code, err)
	}
	account.Type = models.AccountType(accountType)
	account.NormalBalance = models.NormalBalanceFor(account.Type)
	return account, nil
}

func (s *Store) ListAccounts(ctx context.Context, accountType models.AccountType) ([]models.Account, error) {
	query := `SELECT code, name, type, active FROM accounts ORDER BY code`
	args := []any{}
	if accountType != "" {
		query = `SELECT code, name, type, active FROM accounts WHERE type = ? ORDER BY code`
		args = append(args, string(accountType))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying accounts: %w", err)
	}
	defer rows.Close()

	accounts := []models.Account{}
	for rows.Next() {
		var account models.Account
		var typeStr string
		if err := rows.Scan(&account.Code, &account.Name, &typeStr, &account.Active); err != nil {
			return nil, fmt.Errorf("scanning account: %w", err)
		}
		account.Type = models.AccountType(typeStr)
		account.NormalBalance = models.NormalBalanceFor(account.Type)
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

func (s *Store) SetAccountActive(ctx context.Context, code string, active bool) (models.Account, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE accounts SET active = ? WHERE code = ?`, active, code)
	if err != nil {
		return models.Account{}, fmt.Errorf("updating account %s: %w", code, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return models.Account{}, err
	}
	if affected == 0 {
		return models.Account{}, fmt.Errorf("%w: %s", storage.ErrAccountNotFound, code)
	}
	return s.GetAccount(ctx, code)
}

func (s *Store) CreateJournalEntry(ctx context.Context, draft models.EntryDraft) (models.JournalEntry, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.JournalEntry{}, false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	// Idempotency: an existing entry with this clientRef wins, atomically
	// with the insert below (single transaction, single writer).
	if draft.ClientRef != "" {
		var existingID int64
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM journal_entries WHERE client_ref = ?`, draft.ClientRef).Scan(&existingID)
		if err == nil {
			entry, loadErr := s.loadEntry(ctx, tx, existingID)
			if loadErr != nil {
				return models.JournalEntry{}, false, loadErr
			}
			return entry, false, tx.Commit()
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return models.JournalEntry{}, false, fmt.Errorf("checking client_ref: %w", err)
		}
	}

	// Every line must reference an existing, active account at commit time.
	for _, line := range draft.Lines {
		account, err := s.getAccount(ctx, tx, line.AccountCode)
		if err != nil {
			return models.JournalEntry{}, false, err
		}
		if !account.Active {
			return models.JournalEntry{}, false, fmt.Errorf("%w: %s", storage.ErrAccountInactive, line.AccountCode)
		}
	}

	createdAt := s.clock().UTC()
	clientRef := sql.NullString{String: draft.ClientRef, Valid: draft.ClientRef != ""}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO journal_entries (description, client_ref, created_at) VALUES (?, ?, ?)`,
		draft.Description, clientRef, createdAt.Format(timeLayout))
	if isUniqueViolation(err) {
		// Lost the client_ref race to a concurrent retry; return the winner.
		tx.Rollback()
		entry, loadErr := s.GetJournalEntryByClientRef(ctx, draft.ClientRef)
		if loadErr != nil {
			return models.JournalEntry{}, false, loadErr
		}
		return entry, false, nil
	}
	if err != nil {
		return models.JournalEntry{}, false, fmt.Errorf("inserting journal entry: %w", err)
	}
	entryID, err := res.LastInsertId()
	if err != nil {
		return models.JournalEntry{}, false, err
	}

	for i, line := range draft.Lines {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO journal_lines (entry_id, line_no, account_code, debit, credit) VALUES (?, ?, ?, ?, ?)`,
			entryID, i, line.AccountCode, line.Debit, line.Credit); err != nil {
			return models.JournalEntry{}, false, fmt.Errorf("inserting journal line %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return models.JournalEntry{}, false, fmt.Errorf("committing journal entry: %w", err)
	}

	entry := models.JournalEntry{
		ID:          entryID,
		Description: draft.Description,
		ClientRef:   draft.ClientRef,
		CreatedAt:   createdAt,
		Lines:       make([]models.JournalLine, len(draft.Lines)),
	}
	for i, line := range draft.Lines {
		line.EntryID = entryID
		entry.Lines[i] = line
	}
	return entry, true, nil
}

func (s *Store) GetJournalEntryByClientRef(ctx context.Context, clientRef string) (models.JournalEntry, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM journal_entries WHERE client_ref = ?`, clientRef).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.JournalEntry{}, fmt.Errorf("%w: client_ref %s", storage.ErrEntryNotFound, clientRef)
	}
	if err != nil {
		return models.JournalEntry{}, err
	}
	return s.loadEntry(ctx, s.db, id)
}

func (s *Store) GetJournalEntry(ctx context.Context, id int64) (models.JournalEntry, error) {
	return s.loadEntry(ctx, s.db, id)
}

// rowQuerier covers both *sql.DB and *sql.Tx for multi-row reads.
type rowQuerier interface {
	querier
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Store) loadEntry(ctx context.Context, q rowQuerier, id int64) (models.JournalEntry, error) {
	var entry models.JournalEntry
	var clientRef sql.NullString
	var createdAt string
	err := q.QueryRowContext(ctx,
		`SELECT id, description, client_ref, created_at FROM journal_entries WHERE id = ?`, id).
		Scan(&entry.ID, &entry.Description, &clientRef, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.JournalEntry{}, fmt.Errorf("%w: %d", storage.ErrEntryNotFound, id)
	}
	if err != nil {
		return models.JournalEntry{}, fmt.Errorf("querying journal entry %d: %w", id, err)
	}
	entry.ClientRef = clientRef.String
	if entry.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return models.JournalEntry{}, fmt.Errorf("parsing created_at of entry %d: %w", id, err)
	}

	rows, err := q.QueryContext(ctx,
		`SELECT entry_id, account_code, debit, credit FROM journal_lines WHERE entry_id = ? ORDER BY line_no`, id)
	if err != nil {
		return models.JournalEntry{}, fmt.Errorf("querying journal lines of entry %d: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var line models.JournalLine
		if err := rows.Scan(&line.EntryID, &line.AccountCode, &line.Debit, &line.Credit); err != nil {
			return models.JournalEntry{}, fmt.Errorf("scanning journal line: %w", err)
		}
		entry.Lines = append(entry.Lines, line)
	}
	return entry, rows.Err()
}

func (s *Store) ListJournalEntries(ctx context.Context, from, to *time.Time) ([]models.JournalEntry, error) {
	query := `SELECT id FROM journal_entries`
	var conds []string
	var args []any
	if from != nil {
		conds = append(conds, `created_at >= ?`)
		args = append(args, from.UTC().Format(timeLayout))
	}
	if to != nil {
		conds = append(conds, `created_at < ?`)
		args = append(args, to.UTC().Format(timeLayout))
	}
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, ` AND `)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying journal entries: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	entries := make([]models.JournalEntry, 0, len(ids))
	for _, id := range ids {
		entry, err := s.loadEntry(ctx, s.db, id)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *Store) AccountLines(ctx context.Context, code string) ([]storage.PostedLine, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.id, e.description, e.created_at, l.debit, l.credit
		FROM journal_lines l
		JOIN journal_entries e ON e.id = l.entry_id
		WHERE l.account_code = ?
		ORDER BY e.id, l.line_no`, code)
	if err != nil {
		return nil, fmt.Errorf("querying ledger lines for %s: %w", code, err)
	}
	defer rows.Close()

	var lines []storage.PostedLine
	for rows.Next() {
		var line storage.PostedLine
		var createdAt string
		if err := rows.Scan(&line.EntryID, &line.Description, &createdAt, &line.Debit, &line.Credit); err != nil {
			return nil, fmt.Errorf("scanning ledger line: %w", err)
		}
		if line.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func (s *Store) AccountTotals(ctx context.Context, from, to *time.Time) (map[string]storage.Totals, error) {
	query := `
		SELECT l.account_code, COALESCE(SUM(l.debit), 0), COALESCE(SUM(l.credit), 0)
		FROM journal_lines l
		JOIN journal_entries e ON e.id = l.entry_id`
	var conds []string
	var args []any
	if from != nil {
		conds = append(conds, `e.created_at >= ?`)
		args = append(args, from.UTC().Format(timeLayout))
	}
	if to != nil {
		conds = append(conds, `e.created_at < ?`)
		args = append(args, to.UTC().Format(timeLayout))
	}
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, ` AND `)
	}
	query += ` GROUP BY l.account_code`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying account totals: %w", err)
	}
	defer rows.Close()

	totals := make(map[string]storage.Totals)
	for rows.Next() {
		var code string
		var t storage.Totals
		if err := rows.Scan(&code, &t.Debit, &t.Credit); err != nil {
			return nil, fmt.Errorf("scanning account totals: %w", err)
		}
		totals[code] = t
	}
	return totals, rows.Err()
}

// Compile-time check: Store implements storage.Store.
var _ storage.Store = (*Store)(nil)
