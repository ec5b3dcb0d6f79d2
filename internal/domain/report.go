package domain

import "time"

// SummaryRow aggregates one (transaction_type, category) bucket of ledger
// entries over a reporting window. Repair snapshots get their own bucket with
// Reconciliation set.
type SummaryRow struct {
	TransactionType TransactionType `json:"transaction_type"`
	Category        Category        `json:"category"`
	Reconciliation  bool            `json:"reconciliation"`
	CreditsIn       int64           `json:"credits_in"`
	CreditsOut      int64           `json:"credits_out"`
	Net             int64           `json:"net"`
	Entries         int64           `json:"entries"`
}

// DailyReport totals the credits moved in one UTC day. Repairs are reported
// apart from the totals: they correct stored balances and move no credits.
type DailyReport struct {
	Day           time.Time    `json:"day"`
	Rows          []SummaryRow `json:"rows"`
	TotalIn       int64        `json:"total_in"`
	TotalOut      int64        `json:"total_out"`
	TotalEntries  int64        `json:"total_entries"`
	RepairEntries int64        `json:"repair_entries"`
	RepairNet     int64        `json:"repair_net"`
}
