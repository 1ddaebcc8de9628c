package reports

import (
	"bytes"
	"fmt"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/xuri/excelize/v2"
)

func renderExcel(t table) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	if err := f.SetSheetName("Sheet1", t.Sheet); err != nil {
		return nil, err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}

	row := 1
	put := func(values []any, style int) error {
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(t.Sheet, cell, &values); err != nil {
			return err
		}
		if style != 0 {
			last, err := excelize.CoordinatesToCellName(len(values), row)
			if err != nil {
				return err
			}
			if err := f.SetCellStyle(t.Sheet, cell, last, style); err != nil {
				return err
			}
		}
		row++
		return nil
	}

	if err := put([]any{t.Title}, bold); err != nil {
		return nil, err
	}
	for _, kv := range t.Meta {
		if err := put([]any{kv[0], kv[1]}, 0); err != nil {
			return nil, err
		}
	}
	row++
	header := make([]any, len(t.Header))
	for i, h := range t.Header {
		header[i] = h
	}
	if err := put(header, bold); err != nil {
		return nil, err
	}
	for _, r := range t.Rows {
		if err := put(r, 0); err != nil {
			return nil, err
		}
	}
	if last, err := excelize.ColumnNumberToName(len(t.Header)); err == nil {
		_ = f.SetColWidth(t.Sheet, "A", last, 22)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func renderPDF(t table, at time.Time) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCreationDate(at)
	pdf.SetModificationDate(at)
	pdf.SetTitle(t.Title, true)
	pdf.SetCreator("capresearch", true)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 10, tr(t.Title), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	for _, kv := range t.Meta {
		pdf.CellFormat(40, 6, tr(kv[0]), "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 6, tr(kv[1]), "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	pageW, _ := pdf.GetPageSize()
	left, _, right, _ := pdf.GetMargins()
	widths := columnWidths(pageW-left-right, len(t.Header))

	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(230, 230, 230)
	for i, h := range t.Header {
		pdf.CellFormat(widths[i], 7, tr(h), "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Helvetica", "", 10)
	for _, r := range t.Rows {
		for i, v := range r {
			align := "C"
			if i == 0 {
				align = "L"
			}
			pdf.CellFormat(widths[i], 7, tr(fmt.Sprint(v)), "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// columnWidths gives the first column a third of the width and splits the rest.
func columnWidths(total float64, n int) []float64 {
	widths := make([]float64, n)
	if n == 0 {
		return widths
	}
	if n == 1 {
		widths[0] = total
		return widths
	}
	widths[0] = total / 3
	for i := 1; i < n; i++ {
		widths[i] = (total - widths[0]) / float64(n-1)
	}
	return widths
}
