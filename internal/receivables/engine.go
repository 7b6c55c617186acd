package receivables

import (
	"errors"
	"fmt"
	"time"

	"github.com/vitroscience/vitro-bi/pkg/db/models"
	"github.com/vitroscience/vitro-bi/pkg/enums"
)

// ErrInvariantViolation marks a reconciliation result that must not be persisted.
var ErrInvariantViolation = errors.New("reconciliation invariant violated")

// Input is everything one reconciliation needs; the engine reads nothing else.
type Input struct {
	RunID        string
	Now          time.Time
	SnapshotDate string

	// Current is the normalized feed of open invoices.
	Current []models.ReceivableInvoice
	// Prior is the live snapshot before this run.
	Prior map[Key]models.ReceivableInvoice
	// PreviouslyPaid holds the latest paid ledger row for feed keys that
	// are absent from Prior.
	PreviouslyPaid map[Key]models.ReceivableHistory
	ReopenAction   enums.AnomalyAction
}

// Result is the new live snapshot plus the ledger delta for this run.
type Result struct {
	Live       []models.ReceivableInvoice
	History    []models.ReceivableHistory
	Anomalies  []models.ReceivableAnomaly
	New        []Key
	Stayed     []Key
	Paid       []Key
	Duplicates int
}

// Reconcile classifies every invoice as new, stayed or paid. Invoices that
// vanish from the feed are inferred paid; their last known fields are kept.
func Reconcile(in Input) (*Result, error) {
	if in.Now.IsZero() {
		return nil, fmt.Errorf("reconcile: run time required")
	}
	now := in.Now
	current, duplicates := dedupe(in.Current)
	res := &Result{Duplicates: duplicates}

	keys := make([]Key, 0, len(current))
	for k := range current {
		keys = append(keys, k)
	}
	SortKeys(keys)

	for _, k := range keys {
		row := current[k]
		if prior, ok := in.Prior[k]; ok {
			res.Stayed = append(res.Stayed, k)
			res.Live = append(res.Live, pendingRow(row, prior.FirstSeen, now))
			continue
		}
		if settled, ok := in.PreviouslyPaid[k]; ok {
			res.Anomalies = append(res.Anomalies, models.ReceivableAnomaly{
				RunID:            in.RunID,
				Kind:             enums.AnomalyKindReopenedPaid,
				Action:           in.ReopenAction,
				DebtorID:         k.DebtorID,
				DocumentFolio:    k.DocumentFolio,
				Balance:          row.Balance,
				PreviousPaidDate: settled.PaidDate,
				DetectedAt:       now,
			})
			if in.ReopenAction != enums.AnomalyActionReadmitted {
				continue
			}
		}
		res.New = append(res.New, k)
		res.Live = append(res.Live, pendingRow(row, now, now))
	}

	priorKeys := make([]Key, 0, len(in.Prior))
	for k := range in.Prior {
		if _, ok := current[k]; !ok {
			priorKeys = append(priorKeys, k)
		}
	}
	SortKeys(priorKeys)

	paidRows := make([]models.ReceivableInvoice, 0, len(priorKeys))
	for _, k := range priorKeys {
		row := in.Prior[k]
		row.Status = enums.InvoiceStatusPaid
		if row.PaidDate == nil {
			paidAt := now
			row.PaidDate = &paidAt
		}
		row.LastUpdated = now
		res.Paid = append(res.Paid, k)
		paidRows = append(paidRows, row)
	}

	res.History = make([]models.ReceivableHistory, 0, len(res.Live)+len(paidRows))
	for _, row := range res.Live {
		res.History = append(res.History, models.NewReceivableHistory(row, in.RunID, in.SnapshotDate))
	}
	for _, row := range paidRows {
		res.History = append(res.History, models.NewReceivableHistory(row, in.RunID, in.SnapshotDate))
	}

	if err := checkInvariants(res, current); err != nil {
		return nil, err
	}
	return res, nil
}

func pendingRow(feed models.ReceivableInvoice, firstSeen, now time.Time) models.ReceivableInvoice {
	row := feed
	row.Status = enums.InvoiceStatusPending
	row.FirstSeen = firstSeen
	row.LastSeen = now
	row.LastUpdated = now
	row.PaidDate = nil
	return row
}

// dedupe keeps the last occurrence of each key.
func dedupe(rows []models.ReceivableInvoice) (map[Key]models.ReceivableInvoice, int) {
	out := make(map[Key]models.ReceivableInvoice, len(rows))
	duplicates := 0
	for _, row := range rows {
		k := KeyOf(row)
		if _, seen := out[k]; seen {
			duplicates++
		}
		out[k] = row
	}
	return out, duplicates
}

func checkInvariants(res *Result, current map[Key]models.ReceivableInvoice) error {
	seen := make(map[Key]struct{}, len(res.Live))
	for _, row := range res.Live {
		k := KeyOf(row)
		if _, dup := seen[k]; dup {
			return fmt.Errorf("%w: duplicate live key %s", ErrInvariantViolation, k)
		}
		seen[k] = struct{}{}
		if row.Status != enums.InvoiceStatusPending || row.PaidDate != nil {
			return fmt.Errorf("%w: live row %s is not pending", ErrInvariantViolation, k)
		}
	}
	for _, k := range res.Paid {
		if _, ok := current[k]; ok {
			return fmt.Errorf("%w: key %s is both paid and present in the feed", ErrInvariantViolation, k)
		}
		if _, ok := seen[k]; ok {
			return fmt.Errorf("%w: paid key %s still in live snapshot", ErrInvariantViolation, k)
		}
	}
	for _, row := range res.History {
		if row.Status == enums.InvoiceStatusPaid && row.PaidDate == nil {
			return fmt.Errorf("%w: paid row %s/%s has no paid date", ErrInvariantViolation, row.DebtorID, row.DocumentFolio)
		}
	}
	return nil
}
