package pdfingest

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/farmassist/harvester/internal/catalog"
)

// Extraction method names recorded on the document row.
const (
	MethodTextLayer = "text_layer"
	MethodTableOnly = "table_only"
	MethodFailed    = "failed"
)

// cellGap is the horizontal whitespace, in PDF points, that separates two
// cells when rebuilding rows from positioned text.
const cellGap = 12.0

// minTableRows is the number of consecutive multi-cell rows required before
// a run is emitted as a table.
const minTableRows = 2

// Extraction is the output of one extraction attempt over a whole file.
type Extraction struct {
	PageCount int
	Text      string
	Tables    []catalog.DocumentTable
}

// Extractor reads a PDF file from disk. Primary pulls the embedded text
// layer; Fallback rebuilds content from positioned rows for files whose text
// layer is missing or broken.
type Extractor interface {
	Primary(path string) (Extraction, error)
	Fallback(path string) (Extraction, error)
}

// ReaderExtractor implements Extractor on top of the pdf reader library.
type ReaderExtractor struct{}

// NewReaderExtractor returns the file-based extractor.
func NewReaderExtractor() *ReaderExtractor {
	return &ReaderExtractor{}
}

// Primary extracts the text layer page by page, inserting page markers, and
// lifts tables from positioned rows on each page.
func (e *ReaderExtractor) Primary(path string) (result Extraction, err error) {
	// The reader panics on some malformed files.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf parse panic: %v", r)
		}
	}()

	f, reader, err := pdf.Open(path)
	if err != nil {
		return Extraction{}, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	result.PageCount = reader.NumPage()
	var text strings.Builder
	for num := 1; num <= result.PageCount; num++ {
		page := reader.Page(num)
		if page.V.IsNull() {
			continue
		}
		content, perr := page.GetPlainText(nil)
		if perr != nil {
			return Extraction{}, fmt.Errorf("page %d text: %w", num, perr)
		}
		fmt.Fprintf(&text, "--- Page %d ---\n", num)
		text.WriteString(strings.TrimSpace(content))
		text.WriteString("\n")

		result.Tables = append(result.Tables, pageTables(page, num, len(result.Tables))...)
	}
	result.Text = strings.TrimSpace(text.String())
	return result, nil
}

// Fallback rebuilds the page text purely from positioned rows. It is used
// when the text layer is empty or unreadable; documents recovered this way
// are marked tables-only.
func (e *ReaderExtractor) Fallback(path string) (result Extraction, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf parse panic: %v", r)
		}
	}()

	f, reader, err := pdf.Open(path)
	if err != nil {
		return Extraction{}, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	result.PageCount = reader.NumPage()
	var text strings.Builder
	for num := 1; num <= result.PageCount; num++ {
		page := reader.Page(num)
		if page.V.IsNull() {
			continue
		}
		rows, rerr := page.GetTextByRow()
		if rerr != nil {
			continue
		}
		fmt.Fprintf(&text, "--- Page %d ---\n", num)
		for _, row := range rows {
			cells := splitCells(row)
			text.WriteString(strings.Join(cells, "  "))
			text.WriteString("\n")
		}
		result.Tables = append(result.Tables, tablesFromRows(rows, num, len(result.Tables))...)
	}
	result.Text = strings.TrimSpace(text.String())
	return result, nil
}

func pageTables(page pdf.Page, num, tableOffset int) []catalog.DocumentTable {
	rows, err := page.GetTextByRow()
	if err != nil {
		return nil
	}
	return tablesFromRows(rows, num, tableOffset)
}

// tablesFromRows scans the positioned rows of one page for runs of
// consecutive multi-cell rows. Each qualifying run becomes one table with its
// first row as the header.
func tablesFromRows(rows pdf.Rows, pageNum, tableOffset int) []catalog.DocumentTable {
	var tables []catalog.DocumentTable
	var run [][]string

	flush := func() {
		if len(run) >= minTableRows {
			tables = append(tables, catalog.DocumentTable{
				Page:   pageNum,
				Index:  tableOffset + len(tables),
				Header: run[0],
				Rows:   run[1:],
			})
		}
		run = nil
	}

	for _, row := range rows {
		cells := splitCells(row)
		if len(cells) >= 2 {
			run = append(run, cells)
			continue
		}
		flush()
	}
	flush()
	return tables
}

// splitCells groups a row's text fragments into cells, starting a new cell
// whenever the horizontal gap to the previous fragment exceeds cellGap.
func splitCells(row *pdf.Row) []string {
	frags := append([]pdf.Text(nil), row.Content...)
	sort.Slice(frags, func(i, j int) bool { return frags[i].X < frags[j].X })

	var (
		cells   []string
		current strings.Builder
		prevEnd float64
	)
	for i, frag := range frags {
		if i > 0 && frag.X-prevEnd > cellGap {
			cells = append(cells, strings.TrimSpace(current.String()))
			current.Reset()
		}
		current.WriteString(frag.S)
		prevEnd = frag.X + frag.W
	}
	if current.Len() > 0 {
		cells = append(cells, strings.TrimSpace(current.String()))
	}
	var out []string
	for _, cell := range cells {
		if cell != "" {
			out = append(out, cell)
		}
	}
	return out
}
