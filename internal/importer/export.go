// Package importer turns accounting exports into expense and revenue records.
package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/normalize"
)

// ErrNoHeader is returned when no row of the file looks like a column header.
var ErrNoHeader = errors.New("no header row found in export")

// Export is a parsed accounting export.
type Export struct {
	Transactions []model.Transaction
	// Errors are rows that looked like data but were missing a date or amount.
	Errors []RowError
	// HeaderLine is the 1-based line of the detected header row.
	HeaderLine int
	// Skipped counts metadata, section and total rows ignored after the header.
	Skipped int
}

// Rows is the number of data rows seen, parsed or not.
func (e *Export) Rows() int {
	return len(e.Transactions) + len(e.Errors)
}

type column int

const (
	colDate column = iota
	colType
	colProject
	colAmount
	colAccount
	colMemo
	colName
	numColumns
)

// columnMatchers are checked in order against each header cell; a cell binds to the first
// unbound column it matches.
var columnMatchers = []struct {
	col     column
	matches func(string) bool
}{
	{colDate, containsAny("date")},
	{colType, containsAny("type", "transaction")},
	{colProject, func(s string) bool {
		return containsAny("project", "job", "work order")(s) || s == "wo" || strings.HasPrefix(s, "wo ") ||
			strings.HasPrefix(s, "wo#")
	}},
	{colAmount, containsAny("amount", "total")},
	{colAccount, containsAny("account")},
	{colMemo, containsAny("memo", "description")},
	{colName, containsAny("name", "payee", "vendor", "customer")},
}

var markerText = []string{"cash basis", "accrual basis"}

func containsAny(subs ...string) func(string) bool {
	return func(s string) bool {
		for _, sub := range subs {
			if strings.Contains(s, sub) {
				return true
			}
		}
		return false
	}
}

// ExportParser reads delimited accounting exports.
type ExportParser struct {
	now func() time.Time
}

// NewExportParser creates a parser that stamps unparseable dates with the current time.
func NewExportParser() *ExportParser {
	return &ExportParser{now: time.Now}
}

// ParseExport parses r with a default ExportParser.
func ParseExport(r io.Reader) (*Export, error) {
	return NewExportParser().Parse(r)
}

// Parse skips the provider's report-header rows, detects the column header, and converts
// every data row after it into a Transaction.
func (p *ExportParser) Parse(r io.Reader) (*Export, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	var (
		exp     Export
		columns []int
	)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read export: %w", err)
		}
		line, _ := reader.FieldPos(0)

		if columns == nil {
			if cols, ok := detectHeader(record); ok {
				columns = cols
				exp.HeaderLine = line
			}
			continue
		}

		if skipRow(record) {
			exp.Skipped++
			continue
		}

		txn, ok, rowErr := p.parseRow(record, columns, line)
		switch {
		case rowErr != nil:
			exp.Errors = append(exp.Errors, *rowErr)
		case ok:
			exp.Transactions = append(exp.Transactions, txn)
		default:
			exp.Skipped++
		}
	}

	if columns == nil {
		return nil, ErrNoHeader
	}

	slog.Debug("Parsed export",
		"header_line", exp.HeaderLine,
		"transactions", len(exp.Transactions),
		"errors", len(exp.Errors),
		"skipped", exp.Skipped)
	return &exp, nil
}

// detectHeader maps header cells to columns. A row counts as the header when it names at
// least a date and an amount column plus a name or type column.
func detectHeader(record []string) ([]int, bool) {
	cols := make([]int, numColumns)
	for i := range cols {
		cols[i] = -1
	}

	for idx, cell := range record {
		s := strings.ToLower(strings.TrimSpace(cell))
		if s == "" {
			continue
		}
		for _, m := range columnMatchers {
			if cols[m.col] == -1 && m.matches(s) {
				cols[m.col] = idx
				break
			}
		}
	}

	if cols[colDate] == -1 || cols[colAmount] == -1 {
		return nil, false
	}
	if cols[colName] == -1 && cols[colType] == -1 {
		return nil, false
	}
	return cols, true
}

// skipRow reports rows with no usable data: blanks, totals and report footer markers.
func skipRow(record []string) bool {
	first := ""
	for _, cell := range record {
		s := strings.ToLower(strings.TrimSpace(cell))
		if s == "" {
			continue
		}
		if first == "" {
			first = s
		}
		for _, marker := range markerText {
			if strings.Contains(s, marker) {
				return true
			}
		}
	}
	return first == "" || strings.HasPrefix(first, "total")
}

func (p *ExportParser) parseRow(record []string, cols []int, line int) (model.Transaction, bool, *RowError) {
	get := func(c column) string {
		idx := cols[c]
		if idx < 0 || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	rawDate, rawAmount := get(colDate), get(colAmount)
	if rawDate == "" && rawAmount == "" {
		// Section headings inside the report body.
		return model.Transaction{}, false, nil
	}
	if rawDate == "" {
		return model.Transaction{}, false, &RowError{Row: line, Stage: StageParse,
			Err: fmt.Errorf("%w: missing date", common.ErrMalformedRow)}
	}
	if rawAmount == "" {
		return model.Transaction{}, false, &RowError{Row: line, Stage: StageParse,
			Err: fmt.Errorf("%w: missing amount", common.ErrMalformedRow)}
	}
	if _, ok := normalize.ParseDecimal(rawAmount); !ok {
		return model.Transaction{}, false, &RowError{Row: line, Stage: StageParse,
			Err: fmt.Errorf("%w: unparseable amount %q", common.ErrMalformedRow, rawAmount)}
	}

	date, flagged := normalize.Date(rawDate, p.now)
	return model.Transaction{
		Row:              line,
		Date:             date,
		DateFlagged:      flagged,
		RawDate:          rawDate,
		RawAmount:        rawAmount,
		Amount:           normalize.Amount(rawAmount),
		Type:             get(colType),
		CounterpartyName: get(colName),
		ProjectReference: get(colProject),
		AccountPath:      get(colAccount),
		Description:      get(colMemo),
	}, true, nil
}
