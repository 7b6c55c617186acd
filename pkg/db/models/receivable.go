package models

import (
	"time"

	"github.com/vitroscience/vitro-bi/pkg/enums"
)

// ReceivableInvoice is a row of the live snapshot: every invoice the ERP
// currently reports as open. Dates are kept as YYYY-MM-DD text.
type ReceivableInvoice struct {
	DebtorID        string `gorm:"primaryKey"`
	DocumentFolio   string `gorm:"primaryKey"`
	DebtorName      string
	SalespersonName string
	DocumentType    string
	IssueDate       *string
	DueDate         *string
	PaymentTerms    string
	TotalAmount     int64
	AmountPaid      int64
	Balance         int64
	Status          enums.InvoiceStatus
	FirstSeen       time.Time
	LastSeen        time.Time
	PaidDate        *time.Time
	LastUpdated     time.Time
}

func (ReceivableInvoice) TableName() string { return "receivables_live" }

// ReceivableHistory is an immutable ledger row appended once per invoice per run.
type ReceivableHistory struct {
	ID              uint64 `gorm:"primaryKey;autoIncrement"`
	RunID           string
	SnapshotDate    string
	InsertedAt      time.Time
	DebtorID        string
	DocumentFolio   string
	DebtorName      string
	SalespersonName string
	DocumentType    string
	IssueDate       *string
	DueDate         *string
	PaymentTerms    string
	TotalAmount     int64
	AmountPaid      int64
	Balance         int64
	Status          enums.InvoiceStatus
	FirstSeen       time.Time
	LastSeen        time.Time
	PaidDate        *time.Time
	LastUpdated     time.Time
}

func (ReceivableHistory) TableName() string { return "receivables_history" }

// NewReceivableHistory snapshots inv into a ledger row for the given run.
func NewReceivableHistory(inv ReceivableInvoice, runID, snapshotDate string) ReceivableHistory {
	return ReceivableHistory{
		RunID:           runID,
		SnapshotDate:    snapshotDate,
		DebtorID:        inv.DebtorID,
		DocumentFolio:   inv.DocumentFolio,
		DebtorName:      inv.DebtorName,
		SalespersonName: inv.SalespersonName,
		DocumentType:    inv.DocumentType,
		IssueDate:       inv.IssueDate,
		DueDate:         inv.DueDate,
		PaymentTerms:    inv.PaymentTerms,
		TotalAmount:     inv.TotalAmount,
		AmountPaid:      inv.AmountPaid,
		Balance:         inv.Balance,
		Status:          inv.Status,
		FirstSeen:       inv.FirstSeen,
		LastSeen:        inv.LastSeen,
		PaidDate:        inv.PaidDate,
		LastUpdated:     inv.LastUpdated,
	}
}
