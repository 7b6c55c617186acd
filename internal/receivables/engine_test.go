package receivables

import (
	"errors"
	"testing"
	"time"

	"github.com/vitroscience/vitro-bi/pkg/db/models"
	"github.com/vitroscience/vitro-bi/pkg/enums"
)

var (
	t0 = time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)
	t1 = t0.Add(24 * time.Hour)
)

func feedRow(debtor, folio string, balance int64) models.ReceivableInvoice {
	return models.ReceivableInvoice{DebtorID: debtor, DocumentFolio: folio, Balance: balance, TotalAmount: balance}
}

func liveMap(rows []models.ReceivableInvoice) map[Key]models.ReceivableInvoice {
	out := make(map[Key]models.ReceivableInvoice, len(rows))
	for _, row := range rows {
		out[KeyOf(row)] = row
	}
	return out
}

func TestReconcileBaselineSeedsPending(t *testing.T) {
	res, err := Reconcile(Input{
		RunID:        "run-1",
		Now:          t0,
		SnapshotDate: "2025-01-10",
		Current:      []models.ReceivableInvoice{feedRow("R1", "F1", 1000), feedRow("R1", "F2", 500)},
	})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if len(res.Live) != 2 || len(res.New) != 2 || len(res.Paid) != 0 || len(res.Stayed) != 0 {
		t.Fatalf("unexpected classification new=%d stayed=%d paid=%d", len(res.New), len(res.Stayed), len(res.Paid))
	}
	for _, row := range res.Live {
		if row.Status != enums.InvoiceStatusPending {
			t.Fatalf("expected pending, got %s", row.Status)
		}
		if !row.FirstSeen.Equal(t0) || !row.LastSeen.Equal(t0) || !row.LastUpdated.Equal(t0) {
			t.Fatalf("baseline row must have first_seen == last_seen == now: %+v", row)
		}
		if row.PaidDate != nil {
			t.Fatalf("pending row must not carry paid date")
		}
	}
	if len(res.History) != 2 {
		t.Fatalf("expected 2 history rows, got %d", len(res.History))
	}
	for _, h := range res.History {
		if h.SnapshotDate != "2025-01-10" || h.RunID != "run-1" {
			t.Fatalf("history row missing run stamp: %+v", h)
		}
	}
}

func TestReconcileStayedAndDisappeared(t *testing.T) {
	firstSeen := t0.Add(-72 * time.Hour)
	prior := []models.ReceivableInvoice{
		pendingRow(feedRow("R1", "F1", 1000), firstSeen, t0),
		pendingRow(feedRow("R1", "F2", 500), firstSeen, t0),
	}
	prior[1].DebtorName = "Hospital Norte"

	res, err := Reconcile(Input{
		RunID:        "run-2",
		Now:          t1,
		SnapshotDate: "2025-01-11",
		Current:      []models.ReceivableInvoice{feedRow("R1", "F1", 800)},
		Prior:        liveMap(prior),
	})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	if len(res.Live) != 1 {
		t.Fatalf("expected 1 live row, got %d", len(res.Live))
	}
	stayed := res.Live[0]
	if stayed.Balance != 800 {
		t.Fatalf("amounts must refresh from feed, got %d", stayed.Balance)
	}
	if !stayed.FirstSeen.Equal(firstSeen) || !stayed.LastSeen.Equal(t1) {
		t.Fatalf("stayed row must carry first_seen and refresh last_seen: %+v", stayed)
	}

	if len(res.Paid) != 1 || res.Paid[0] != (Key{"R1", "F2"}) {
		t.Fatalf("expected R1/F2 paid, got %v", res.Paid)
	}
	var paid *models.ReceivableHistory
	for i := range res.History {
		if res.History[i].Status == enums.InvoiceStatusPaid {
			paid = &res.History[i]
		}
	}
	if paid == nil {
		t.Fatal("paid row missing from history")
	}
	if paid.PaidDate == nil || !paid.PaidDate.Equal(t1) || !paid.LastUpdated.Equal(t1) {
		t.Fatalf("paid row must be stamped with run time: %+v", paid)
	}
	if paid.Balance != 500 || paid.DebtorName != "Hospital Norte" || !paid.LastSeen.Equal(t0) {
		t.Fatalf("paid row must keep last known fields: %+v", paid)
	}
	if len(res.History) != 2 {
		t.Fatalf("expected live+paid history rows, got %d", len(res.History))
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	feed := []models.ReceivableInvoice{feedRow("R1", "F1", 1000), feedRow("R2", "F7", 300)}
	first, err := Reconcile(Input{Now: t0, Current: feed})
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := Reconcile(Input{Now: t1, Current: feed, Prior: liveMap(first.Live)})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(second.Paid) != 0 || len(second.New) != 0 || len(second.Stayed) != 2 {
		t.Fatalf("identical feed must only produce stayed rows: %+v", second)
	}
	for i, row := range second.Live {
		if !row.FirstSeen.Equal(first.Live[i].FirstSeen) {
			t.Fatalf("first_seen changed on re-run")
		}
		if row.Status != enums.InvoiceStatusPending {
			t.Fatalf("status changed on re-run")
		}
	}
}

func TestReconcileKeepsExistingPaidDate(t *testing.T) {
	earlier := t0.Add(-time.Hour)
	row := pendingRow(feedRow("R1", "F1", 10), t0, t0)
	row.PaidDate = &earlier

	res, err := Reconcile(Input{Now: t1, Current: []models.ReceivableInvoice{feedRow("R9", "X", 1)}, Prior: liveMap([]models.ReceivableInvoice{row})})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	for _, h := range res.History {
		if h.Status == enums.InvoiceStatusPaid && !h.PaidDate.Equal(earlier) {
			t.Fatalf("paid_date must never be overwritten, got %v", h.PaidDate)
		}
	}
}

func TestReconcileDeduplicatesFeed(t *testing.T) {
	res, err := Reconcile(Input{Now: t0, Current: []models.ReceivableInvoice{
		feedRow("R1", "F1", 1000),
		feedRow("R1", "F1", 900),
	}})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if res.Duplicates != 1 || len(res.Live) != 1 {
		t.Fatalf("expected one live row and one duplicate, got %d/%d", len(res.Live), res.Duplicates)
	}
	if res.Live[0].Balance != 900 {
		t.Fatalf("last occurrence should win, got %d", res.Live[0].Balance)
	}
}

func TestReconcileReopenedPaidInvoice(t *testing.T) {
	paidAt := t0.Add(-48 * time.Hour)
	settled := map[Key]models.ReceivableHistory{
		{"R1", "F2"}: {DebtorID: "R1", DocumentFolio: "F2", Status: enums.InvoiceStatusPaid, PaidDate: &paidAt},
	}
	feed := []models.ReceivableInvoice{feedRow("R1", "F1", 10), feedRow("R1", "F2", 500)}

	quarantined, err := Reconcile(Input{RunID: "r", Now: t0, Current: feed, PreviouslyPaid: settled, ReopenAction: enums.AnomalyActionQuarantined})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if len(quarantined.Live) != 1 || len(quarantined.Anomalies) != 1 {
		t.Fatalf("quarantine must keep reopened key out of live: live=%d anomalies=%d", len(quarantined.Live), len(quarantined.Anomalies))
	}
	anomaly := quarantined.Anomalies[0]
	if anomaly.Kind != enums.AnomalyKindReopenedPaid || anomaly.Action != enums.AnomalyActionQuarantined || !anomaly.PreviousPaidDate.Equal(paidAt) {
		t.Fatalf("unexpected anomaly %+v", anomaly)
	}
	for _, h := range quarantined.History {
		if h.DocumentFolio == "F2" {
			t.Fatal("quarantined key must not reach history")
		}
	}

	readmitted, err := Reconcile(Input{Now: t0, Current: feed, PreviouslyPaid: settled, ReopenAction: enums.AnomalyActionReadmitted})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if len(readmitted.Live) != 2 || len(readmitted.Anomalies) != 1 || len(readmitted.New) != 2 {
		t.Fatalf("readmit must seed a fresh pending row and still flag it: %+v", readmitted)
	}
}

func TestCheckInvariantsRejectsPaidKeyInFeed(t *testing.T) {
	k := Key{"R1", "F1"}
	res := &Result{Paid: []Key{k}}
	err := checkInvariants(res, map[Key]models.ReceivableInvoice{k: feedRow("R1", "F1", 1)})
	if !errors.Is(err, ErrInvariantViolation) {
		t.Fatalf("expected invariant violation, got %v", err)
	}

	dup := pendingRow(feedRow("R1", "F1", 1), t0, t0)
	err = checkInvariants(&Result{Live: []models.ReceivableInvoice{dup, dup}}, nil)
	if !errors.Is(err, ErrInvariantViolation) {
		t.Fatalf("expected duplicate live key violation, got %v", err)
	}

	err = checkInvariants(&Result{History: []models.ReceivableHistory{{Status: enums.InvoiceStatusPaid}}}, nil)
	if !errors.Is(err, ErrInvariantViolation) {
		t.Fatalf("expected missing paid date violation, got %v", err)
	}
}

func TestReconcileRequiresRunTime(t *testing.T) {
	if _, err := Reconcile(Input{Current: []models.ReceivableInvoice{feedRow("R1", "F1", 1)}}); err == nil {
		t.Fatal("expected zero run time to be rejected")
	}
}
