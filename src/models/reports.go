package models

import "time"

// LedgerLine is one row of an account's ledger: the posted line together with
// its owning entry's metadata and the running balance after applying it.
// The balance is signed by the account's normal side, so the final row's
// Balance is the account's current balance.
type LedgerLine struct {
	EntryID     int64     `json:"entry_id"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	Debit       int64     `json:"debit"`
	Credit      int64     `json:"credit"`
	Balance     int64     `json:"balance"`
}

// TrialBalanceRow aggregates one account's total debits and credits.
type TrialBalanceRow struct {
	AccountCode string      `json:"account_code"`
	AccountName string      `json:"account_name"`
	AccountType AccountType `json:"account_type"`
	Debit       int64       `json:"debit"`
	Credit      int64       `json:"credit"`
}

// TrialBalance lists every account with postings plus grand totals. The
// generator guarantees TotalDebits == TotalCredits before returning one.
type TrialBalance struct {
	Rows         []TrialBalanceRow `json:"rows"`
	TotalDebits  int64             `json:"total_debits"`
	TotalCredits int64             `json:"total_credits"`
}

// AccountAmount is an account with its net movement or balance, signed by the
// account's normal side.
type AccountAmount struct {
	AccountCode string `json:"account_code"`
	AccountName string `json:"account_name"`
	Amount      int64  `json:"amount"`
}

// ProfitLoss sums revenue and expense movements over [Start, End).
// Nil bounds mean all time.
type ProfitLoss struct {
	Start         *time.Time      `json:"start,omitempty"`
	End           *time.Time      `json:"end,omitempty"`
	Revenue       []AccountAmount `json:"revenue"`
	Expenses      []AccountAmount `json:"expenses"`
	TotalRevenue  int64           `json:"total_revenue"`
	TotalExpenses int64           `json:"total_expenses"`
	NetIncome     int64           `json:"net_income"`
}

// BalanceSheet reports asset, liability and equity balances as of a point in
// time, with accumulated net income carried as RetainedEarnings. The
// generator guarantees TotalAssets == TotalLiabilities + TotalEquity +
// RetainedEarnings before returning one.
type BalanceSheet struct {
	AsOf             *time.Time      `json:"as_of,omitempty"`
	Assets           []AccountAmount `json:"assets"`
	Liabilities      []AccountAmount `json:"liabilities"`
	Equity           []AccountAmount `json:"equity"`
	TotalAssets      int64           `json:"total_assets"`
	TotalLiabilities int64           `json:"total_liabilities"`
	TotalEquity      int64           `json:"total_equity"`
	RetainedEarnings int64           `json:"retained_earnings"`
}
