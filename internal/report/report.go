package report

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"mypharma/backend/internal/domain"
)

type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatPDF  Format = "pdf"
)

type Kind string

const (
	KindSales     Kind = "sales"
	KindInventory Kind = "inventory"
	KindCustomers Kind = "customers"
)

func ParseFormat(raw string) (Format, bool) {
	switch f := Format(strings.ToLower(strings.TrimSpace(raw))); f {
	case FormatCSV, FormatXLSX, FormatPDF:
		return f, true
	case "":
		return FormatCSV, true
	default:
		return "", false
	}
}

func ParseKind(raw string) (Kind, bool) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(raw))); k {
	case KindSales, KindInventory, KindCustomers:
		return k, true
	default:
		return "", false
	}
}

// Document is one tabular export. Records holds the gocsv-tagged rows; Rows
// holds the same data as cells for the spreadsheet and PDF renderers.
type Document struct {
	Kind        Kind
	Title       string
	GeneratedAt time.Time
	Headers     []string
	Widths      []float64
	Rows        [][]any
	Records     any
}

// File is a rendered export ready to be sent as a download.
type File struct {
	Name        string
	ContentType string
	Body        []byte
}

func Render(doc Document, format Format) (File, error) {
	stamp := doc.GeneratedAt.UTC().Format("20060102")
	name := fmt.Sprintf("%s-%s.%s", doc.Kind, stamp, format)

	var (
		body []byte
		err  error
		ct   string
	)
	switch format {
	case FormatCSV:
		body, err = gocsv.MarshalBytes(doc.Records)
		ct = "text/csv; charset=utf-8"
	case FormatXLSX:
		body, err = renderXLSX(doc)
		ct = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatPDF:
		body, err = renderPDF(doc)
		ct = "application/pdf"
	default:
		return File{}, fmt.Errorf("unsupported export format %q", format)
	}
	if err != nil {
		return File{}, fmt.Errorf("render %s %s: %w", doc.Kind, format, err)
	}
	return File{Name: name, ContentType: ct, Body: body}, nil
}

func renderXLSX(doc Document) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := sheetName(doc.Title)
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	header := make([]any, 0, len(doc.Headers))
	for _, h := range doc.Headers {
		header = append(header, h)
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	if err := f.SetRowStyle(sheet, 1, 1, bold); err != nil {
		return nil, err
	}

	for i, row := range doc.Rows {
		cells := make([]any, 0, len(row))
		for _, cell := range row {
			cells = append(cells, spreadsheetValue(cell))
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func renderPDF(doc Document) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, tr(doc.Title), "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 8, "Generated: "+doc.GeneratedAt.UTC().Format("2006-01-02 15:04 MST"), "", 1, "L", false, 0, "")
	pdf.Ln(3)

	widths := columnWidths(doc)
	pdf.SetFont("Arial", "B", 10)
	for i, h := range doc.Headers {
		pdf.CellFormat(widths[i], 8, tr(h), "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	for _, row := range doc.Rows {
		for i, cell := range row {
			align := "L"
			if isNumeric(cell) {
				align = "R"
			}
			pdf.CellFormat(widths[i], 7, tr(textValue(cell)), "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func columnWidths(doc Document) []float64 {
	if len(doc.Widths) == len(doc.Headers) {
		return doc.Widths
	}
	widths := make([]float64, len(doc.Headers))
	for i := range widths {
		widths[i] = 277.0 / float64(len(doc.Headers))
	}
	return widths
}

func sheetName(title string) string {
	name := strings.NewReplacer(":", " ", "/", " ", "\\", " ", "?", "", "*", "", "[", "(", "]", ")").Replace(title)
	if len(name) > 31 {
		name = name[:31]
	}
	if name == "" {
		name = "Report"
	}
	return name
}

func spreadsheetValue(cell any) any {
	switch v := cell.(type) {
	case decimal.Decimal:
		return v.InexactFloat64()
	case domain.Date:
		return v.String()
	default:
		return v
	}
}

func textValue(cell any) string {
	switch v := cell.(type) {
	case decimal.Decimal:
		return v.StringFixed(2)
	case domain.Date:
		return v.String()
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

func isNumeric(cell any) bool {
	switch cell.(type) {
	case decimal.Decimal, int, int64, float64:
		return true
	default:
		return false
	}
}
