package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/vitroscience/vitro-bi/pkg/db/models"
)

const (
	xmrNaturalLimit = 2.66
	xmrRangeLimit   = 3.268
	minBehaviorPts  = 3
)

func parseDay(s *string) (time.Time, bool) {
	if s == nil || *s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.DateOnly, *s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func daysBetween(from, to time.Time) int {
	return int(math.Round(truncateDay(to).Sub(truncateDay(from)).Hours() / 24))
}

// Summarize computes the headline KPIs of rows as of today.
func Summarize(rows []models.ReceivableInvoice, today time.Time) Summary {
	out := Summary{Available: len(rows) > 0, Invoices: len(rows)}
	var pastDueSum, dated int
	for _, row := range rows {
		out.TotalBalance += row.Balance
		due, ok := parseDay(row.DueDate)
		if !ok {
			continue
		}
		if truncateDay(due).Before(truncateDay(today)) {
			out.Overdue++
		}
		pastDueSum += daysBetween(due, today)
		dated++
	}
	if dated > 0 {
		avg := math.Round(float64(pastDueSum)/float64(dated)*10) / 10
		out.AvgDaysPastDue = &avg
	}
	return out
}

// Annotate adds days remaining and a traffic-light state to each row.
func Annotate(rows []models.ReceivableInvoice, today time.Time) []InvoiceRow {
	out := make([]InvoiceRow, 0, len(rows))
	for _, row := range rows {
		annotated := newInvoiceRow(row)
		if due, ok := parseDay(row.DueDate); ok {
			remaining := daysBetween(today, due)
			annotated.DaysRemaining = &remaining
			switch {
			case remaining < 0:
				annotated.State = StateOverdue
			case remaining <= dueSoonDays:
				annotated.State = StateDueSoon
			}
		}
		out = append(out, annotated)
	}
	return out
}

func agingLabel(daysPastDue int) string {
	switch {
	case daysPastDue <= 0:
		return "current"
	case daysPastDue <= 15:
		return "1-15"
	case daysPastDue <= 30:
		return "16-30"
	case daysPastDue <= 45:
		return "31-45"
	default:
		return "46+"
	}
}

// AgingOf buckets pending balance by days past due, in total and per debtor.
func AgingOf(rows []models.ReceivableInvoice, today time.Time) Aging {
	out := Aging{Available: len(rows) > 0}
	totals := make(map[string]*AgingBucket, len(AgingLabels))
	for _, label := range AgingLabels {
		out.Buckets = append(out.Buckets, AgingBucket{Label: label})
	}
	for i := range out.Buckets {
		totals[out.Buckets[i].Label] = &out.Buckets[i]
	}

	debtors := map[string]*DebtorAging{}
	for _, row := range rows {
		due, ok := parseDay(row.DueDate)
		if !ok {
			out.Undated++
			continue
		}
		label := agingLabel(daysBetween(due, today))
		totals[label].Invoices++
		totals[label].Balance += row.Balance

		d, ok := debtors[row.DebtorID]
		if !ok {
			d = &DebtorAging{DebtorID: row.DebtorID, DebtorName: row.DebtorName, Balances: map[string]int64{}}
			debtors[row.DebtorID] = d
		}
		d.Balances[label] += row.Balance
		d.Total += row.Balance
	}

	for _, d := range debtors {
		out.ByDebtor = append(out.ByDebtor, *d)
	}
	sort.Slice(out.ByDebtor, func(i, j int) bool {
		if out.ByDebtor[i].Total != out.ByDebtor[j].Total {
			return out.ByDebtor[i].Total > out.ByDebtor[j].Total
		}
		return out.ByDebtor[i].DebtorID < out.ByDebtor[j].DebtorID
	})
	return out
}

// RankPayments ranks debtors by their average days from issue to payment,
// fastest first. Ties on the rounded average share a rank.
func RankPayments(paid []models.ReceivableHistory) Ranking {
	type acc struct {
		name  string
		total int
		count int
	}
	latest := make(map[[2]string]models.ReceivableHistory, len(paid))
	for _, row := range paid {
		if row.PaidDate == nil {
			continue
		}
		latest[[2]string{row.DebtorID, row.DocumentFolio}] = row
	}

	byDebtor := map[string]*acc{}
	for _, row := range latest {
		issued, ok := parseDay(row.IssueDate)
		if !ok {
			continue
		}
		a, ok := byDebtor[row.DebtorID]
		if !ok {
			a = &acc{name: row.DebtorName}
			byDebtor[row.DebtorID] = a
		}
		a.total += daysBetween(issued, *row.PaidDate)
		a.count++
	}

	out := Ranking{Available: len(byDebtor) > 0}
	for id, a := range byDebtor {
		avg := math.Round(float64(a.total)/float64(a.count)*10) / 10
		out.Entries = append(out.Entries, RankingEntry{DebtorID: id, DebtorName: a.name, AvgDays: avg, Paid: a.count})
	}
	sort.Slice(out.Entries, func(i, j int) bool {
		if out.Entries[i].AvgDays != out.Entries[j].AvgDays {
			return out.Entries[i].AvgDays < out.Entries[j].AvgDays
		}
		return out.Entries[i].DebtorID < out.Entries[j].DebtorID
	})
	rank := 0
	for i := range out.Entries {
		if i == 0 || out.Entries[i].AvgDays != out.Entries[i-1].AvgDays {
			rank++
		}
		out.Entries[i].Rank = rank
	}
	return out
}

// MonthlyBalance sums pending balance by due month (YYYY-MM), oldest first.
func MonthlyBalance(rows []models.ReceivableInvoice) []BehaviorPoint {
	sums := map[string]float64{}
	for _, row := range rows {
		due, ok := parseDay(row.DueDate)
		if !ok {
			continue
		}
		sums[due.Format("2006-01")] += float64(row.Balance)
	}
	months := make([]string, 0, len(sums))
	for m := range sums {
		months = append(months, m)
	}
	sort.Strings(months)
	out := make([]BehaviorPoint, 0, len(months))
	for _, m := range months {
		out = append(out, BehaviorPoint{Month: m, Value: sums[m]})
	}
	return out
}

// XmR computes natural process limits for an individuals chart.
func XmR(points []BehaviorPoint) ProcessBehavior {
	if len(points) < minBehaviorPts {
		return ProcessBehavior{Points: points}
	}
	out := ProcessBehavior{Available: true, Points: append([]BehaviorPoint(nil), points...)}

	var sum, mrSum float64
	for i, p := range out.Points {
		sum += p.Value
		if i > 0 {
			mr := math.Abs(p.Value - out.Points[i-1].Value)
			out.Points[i].MovingRange = &mr
			mrSum += mr
		}
	}
	out.Mean = sum / float64(len(out.Points))
	out.MRBar = mrSum / float64(len(out.Points)-1)
	out.UPL = out.Mean + xmrNaturalLimit*out.MRBar
	out.LPL = out.Mean - xmrNaturalLimit*out.MRBar
	out.MRUCL = xmrRangeLimit * out.MRBar

	for i, p := range out.Points {
		signal := p.Value > out.UPL || p.Value < out.LPL
		if p.MovingRange != nil && *p.MovingRange > out.MRUCL {
			signal = true
		}
		out.Points[i].Signal = signal
	}
	return out
}

// FreshnessOf reports whether the last successful run is from today.
func FreshnessOf(run *models.ReconciliationRun, today string) Freshness {
	if run == nil {
		return Freshness{Today: today, Stale: true}
	}
	return Freshness{
		Available:    true,
		RunID:        run.ID,
		SnapshotDate: run.SnapshotDate,
		FinishedAt:   run.FinishedAt,
		Today:        today,
		Stale:        run.SnapshotDate != today,
	}
}
