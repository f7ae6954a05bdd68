package models

import "time"

// Side represents the accounting position of a journal line.
type Side string

const (
	// SideDebit records a value on the debit side of an account.
	SideDebit Side = "debit"
	// SideCredit records a value on the credit side of an account.
	SideCredit Side = "credit"
)

// AccountType enumerates the broad classification of an account in the chart of accounts.
type AccountType string

const (
	// AccountTypeAsset increases on the debit side and holds resources owned by the business.
	AccountTypeAsset AccountType = "asset"
	// AccountTypeLiability increases on the credit side and tracks obligations.
	AccountTypeLiability AccountType = "liability"
	// AccountTypeEquity captures the owner's residual interest.
	AccountTypeEquity AccountType = "equity"
	// AccountTypeRevenue represents inflows that increase equity.
	AccountTypeRevenue AccountType = "revenue"
	// AccountTypeExpense represents outflows that decrease equity.
	AccountTypeExpense AccountType = "expense"
)

// ValidAccountType reports whether t is one of the five recognized kinds.
func ValidAccountType(t AccountType) bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeRevenue, AccountTypeExpense:
		return true
	}
	return false
}

// NormalBalanceFor returns the side on which an account of the given type
// naturally increases: asset and expense accounts are debit-normal, the rest
// are credit-normal.
func NormalBalanceFor(t AccountType) Side {
	if t == AccountTypeAsset || t == AccountTypeExpense {
		return SideDebit
	}
	return SideCredit
}

// Account is one row in the chart of accounts. Accounts are never deleted;
// retirement is modeled by Active=false, which blocks new postings but not
// historical reads.
type Account struct {
	Code          string      `json:"code"`
	Name          string      `json:"name"`
	Type          AccountType `json:"type"`
	NormalBalance Side        `json:"normal_balance"`
	Active        bool        `json:"active"`
}

// JournalLine is one side of a double-entry posting. Amounts are integer
// minor currency units (cents); exactly one of Debit/Credit is positive and
// the other is zero.
type JournalLine struct {
	EntryID     int64  `json:"entry_id,omitempty"`
	AccountCode string `json:"account_code"`
	Debit       int64  `json:"debit"`
	Credit      int64  `json:"credit"`
}

// JournalEntry is an atomic, immutable group of balanced journal lines.
// ID is assigned by the store at commit time and is strictly increasing, so
// entry order is the system's source of truth for ledger replay. There is no
// update or delete; corrections are new entries that negate the original.
type JournalEntry struct {
	ID          int64         `json:"id"`
	Description string        `json:"description"`
	ClientRef   string        `json:"client_ref,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	Lines       []JournalLine `json:"lines"`
}

// EntryDraft is the validated input handed to the store for an atomic commit.
// The store assigns ID and CreatedAt.
type EntryDraft struct {
	Description string
	ClientRef   string
	Lines       []JournalLine
}

// SameContent reports whether the draft describes the same posting as an
// already committed entry. Used to tell an idempotent replay apart from a
// clientRef collision with different content.
func (d EntryDraft) SameContent(e JournalEntry) bool {
	if d.Description != e.Description || len(d.Lines) != len(e.Lines) {
		return false
	}
	for i, l := range d.Lines {
		if l.AccountCode != e.Lines[i].AccountCode || l.Debit != e.Lines[i].Debit || l.Credit != e.Lines[i].Credit {
			return false
		}
	}
	return true
}
