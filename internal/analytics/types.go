package analytics

import (
	"time"

	"github.com/vitroscience/vitro-bi/pkg/db/models"
)

// Filter narrows live invoices the way the collections dashboard does.
type Filter struct {
	Salesperson string `validate:"omitempty,max=200"`
	// Query matches a substring of the debtor name or id, case-insensitively.
	Query   string `validate:"omitempty,max=200"`
	DueFrom string `validate:"omitempty,datetime=2006-01-02"`
	DueTo   string `validate:"omitempty,datetime=2006-01-02"`
}

const (
	StateOverdue = "overdue"
	StateDueSoon = "due_soon"
	StateOK      = "ok"

	dueSoonDays = 7
)

// InvoiceRow is a live invoice as shown to collections staff.
type InvoiceRow struct {
	DebtorID        string    `json:"debtor_id"`
	DebtorName      string    `json:"debtor_name"`
	DocumentFolio   string    `json:"document_folio"`
	DocumentType    string    `json:"document_type"`
	SalespersonName string    `json:"salesperson_name"`
	IssueDate       *string   `json:"issue_date"`
	DueDate         *string   `json:"due_date"`
	PaymentTerms    string    `json:"payment_terms"`
	TotalAmount     int64     `json:"total_amount"`
	AmountPaid      int64     `json:"amount_paid"`
	Balance         int64     `json:"balance"`
	FirstSeen       time.Time `json:"first_seen"`
	LastSeen        time.Time `json:"last_seen"`
	DaysRemaining   *int      `json:"days_remaining"`
	State           string    `json:"state"`
}

func newInvoiceRow(inv models.ReceivableInvoice) InvoiceRow {
	return InvoiceRow{
		DebtorID:        inv.DebtorID,
		DebtorName:      inv.DebtorName,
		DocumentFolio:   inv.DocumentFolio,
		DocumentType:    inv.DocumentType,
		SalespersonName: inv.SalespersonName,
		IssueDate:       inv.IssueDate,
		DueDate:         inv.DueDate,
		PaymentTerms:    inv.PaymentTerms,
		TotalAmount:     inv.TotalAmount,
		AmountPaid:      inv.AmountPaid,
		Balance:         inv.Balance,
		FirstSeen:       inv.FirstSeen,
		LastSeen:        inv.LastSeen,
		State:           StateOK,
	}
}

type InvoiceList struct {
	Available bool         `json:"available"`
	Rows      []InvoiceRow `json:"rows"`
}

type Summary struct {
	Available      bool       `json:"available"`
	Invoices       int        `json:"invoices"`
	TotalBalance   int64      `json:"total_balance"`
	Overdue        int        `json:"overdue"`
	AvgDaysPastDue *float64   `json:"avg_days_past_due"`
	LastSuccessAt  *time.Time `json:"last_success_at"`
}

var AgingLabels = []string{"current", "1-15", "16-30", "31-45", "46+"}

type AgingBucket struct {
	Label    string `json:"label"`
	Invoices int    `json:"invoices"`
	Balance  int64  `json:"balance"`
}

type DebtorAging struct {
	DebtorID   string           `json:"debtor_id"`
	DebtorName string           `json:"debtor_name"`
	Balances   map[string]int64 `json:"balances"`
	Total      int64            `json:"total"`
}

type Aging struct {
	Available bool          `json:"available"`
	Buckets   []AgingBucket `json:"buckets"`
	ByDebtor  []DebtorAging `json:"by_debtor"`
	// Undated counts invoices without a usable due date.
	Undated int `json:"undated"`
}

type RankingEntry struct {
	Rank       int     `json:"rank"`
	DebtorID   string  `json:"debtor_id"`
	DebtorName string  `json:"debtor_name"`
	AvgDays    float64 `json:"avg_days"`
	Paid       int     `json:"paid"`
}

type Ranking struct {
	Available bool           `json:"available"`
	Entries   []RankingEntry `json:"entries"`
}

type BehaviorPoint struct {
	Month       string   `json:"month"`
	Value       float64  `json:"value"`
	MovingRange *float64 `json:"moving_range,omitempty"`
	Signal      bool     `json:"signal"`
}

// ProcessBehavior is an XmR chart of monthly pending balance.
type ProcessBehavior struct {
	Available bool            `json:"available"`
	Points    []BehaviorPoint `json:"points"`
	Mean      float64         `json:"mean"`
	MRBar     float64         `json:"mr_bar"`
	UPL       float64         `json:"upl"`
	LPL       float64         `json:"lpl"`
	MRUCL     float64         `json:"mr_ucl"`
}

type Freshness struct {
	Available    bool       `json:"available"`
	RunID        string     `json:"run_id,omitempty"`
	SnapshotDate string     `json:"snapshot_date,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	Today        string     `json:"today"`
	Stale        bool       `json:"stale"`
}
