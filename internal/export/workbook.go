// Package export renders receivables reports as XLSX workbooks.
package export

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/vitroscience/vitro-bi/internal/analytics"
)

const (
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	SheetPending = "Pendientes"
	SheetAging   = "Aging"
	SheetRanking = "Ranking"
)

type reportSource interface {
	List(ctx context.Context, f analytics.Filter) (*analytics.InvoiceList, error)
	Aging(ctx context.Context, f analytics.Filter) (*analytics.Aging, error)
	Ranking(ctx context.Context) (*analytics.Ranking, error)
}

// Build queries the reports for f and renders them into one workbook.
func Build(ctx context.Context, src reportSource, f analytics.Filter) (*excelize.File, error) {
	list, err := src.List(ctx, f)
	if err != nil {
		return nil, err
	}
	aging, err := src.Aging(ctx, f)
	if err != nil {
		return nil, err
	}
	ranking, err := src.Ranking(ctx)
	if err != nil {
		return nil, err
	}
	return Workbook(list, aging, ranking)
}

// Workbook renders already computed reports. Callers must Close the file.
func Workbook(list *analytics.InvoiceList, aging *analytics.Aging, ranking *analytics.Ranking) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(0), SheetPending); err != nil {
		_ = f.Close()
		return nil, err
	}
	for _, name := range []string{SheetAging, SheetRanking} {
		if _, err := f.NewSheet(name); err != nil {
			_ = f.Close()
			return nil, err
		}
	}

	writers := []func(*excelize.File) error{
		func(f *excelize.File) error { return writePending(f, list) },
		func(f *excelize.File) error { return writeAging(f, aging) },
		func(f *excelize.File) error { return writeRanking(f, ranking) },
	}
	for _, write := range writers {
		if err := write(f); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	return f, nil
}

func writeRow(f *excelize.File, sheet string, row int, values ...any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func writePending(f *excelize.File, list *analytics.InvoiceList) error {
	if err := writeRow(f, SheetPending, 1,
		"Estado", "Rut", "RznSocial", "FolioDocumento", "Fecha", "FechaVencimiento",
		"CondicionVenta", "Saldo", "NombreVendedor", "DiasRestantes"); err != nil {
		return err
	}
	if list == nil {
		return nil
	}
	for i, row := range list.Rows {
		var remaining any
		if row.DaysRemaining != nil {
			remaining = *row.DaysRemaining
		}
		if err := writeRow(f, SheetPending, i+2,
			row.State, row.DebtorID, row.DebtorName, row.DocumentFolio, deref(row.IssueDate),
			deref(row.DueDate), row.PaymentTerms, row.Balance, row.SalespersonName, remaining); err != nil {
			return err
		}
	}
	return nil
}

func writeAging(f *excelize.File, aging *analytics.Aging) error {
	header := []any{"Rut", "RznSocial"}
	for _, label := range analytics.AgingLabels {
		header = append(header, label)
	}
	header = append(header, "Total")
	if err := writeRow(f, SheetAging, 1, header...); err != nil {
		return err
	}
	if aging == nil {
		return nil
	}
	row := 2
	for _, d := range aging.ByDebtor {
		values := []any{d.DebtorID, d.DebtorName}
		for _, label := range analytics.AgingLabels {
			values = append(values, d.Balances[label])
		}
		values = append(values, d.Total)
		if err := writeRow(f, SheetAging, row, values...); err != nil {
			return err
		}
		row++
	}

	totals := []any{"TOTAL", ""}
	var grand int64
	for _, bucket := range aging.Buckets {
		totals = append(totals, bucket.Balance)
		grand += bucket.Balance
	}
	totals = append(totals, grand)
	return writeRow(f, SheetAging, row, totals...)
}

func writeRanking(f *excelize.File, ranking *analytics.Ranking) error {
	if err := writeRow(f, SheetRanking, 1, "Rank", "Rut", "RznSocial", "PromedioDiasPago", "FacturasPagadas"); err != nil {
		return err
	}
	if ranking == nil {
		return nil
	}
	for i, e := range ranking.Entries {
		if err := writeRow(f, SheetRanking, i+2, e.Rank, e.DebtorID, e.DebtorName, e.AvgDays, e.Paid); err != nil {
			return err
		}
	}
	return nil
}
