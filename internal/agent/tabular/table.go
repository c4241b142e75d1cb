// Package tabular answers questions about CSV and spreadsheet files by
// loading them into an in-memory table and letting the model inspect it
// through a small set of tools.
package tabular

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/xuri/excelize/v2"

	"github.com/docqa/backend/internal/extract"
	"github.com/docqa/backend/pkg/apperr"
)

type ColumnType string

const (
	TypeText   ColumnType = "text"
	TypeNumber ColumnType = "number"
	TypeDate   ColumnType = "date"
)

// maxHeaderOffset bounds how far down the sheet the header may sit.
const maxHeaderOffset = 4

var unnamedPattern = regexp.MustCompile(`^Unnamed(:.*)?$`)

type Table struct {
	Columns      []string
	Types        []ColumnType
	Rows         [][]string
	HeaderOffset int
}

// Load reads the file into a Table: header row located by scoring the
// first few offsets, blank column names replaced, date columns
// normalized, and missing cells filled with zero.
func Load(path string) (*Table, error) {
	records, err := readRecords(path)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, apperr.Validation("table %q is empty", filepath.Base(path))
	}
	return buildTable(records), nil
}

func readRecords(path string) ([][]string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindNotFound, err, "file %q could not be read", path)
		}
		defer f.Close()

		reader := csv.NewReader(f)
		reader.FieldsPerRecord = -1

		var records [][]string
		for {
			record, err := reader.Read()
			if err == io.EOF {
				break
			}
			if err != nil {
				return nil, apperr.Wrap(apperr.KindValidation, err, "failed to parse CSV %q", filepath.Base(path))
			}
			records = append(records, record)
		}
		return records, nil

	case ".xls", ".xlsx":
		f, err := excelize.OpenFile(path)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindValidation, err, "failed to open workbook %q", filepath.Base(path))
		}
		defer f.Close()

		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, apperr.Validation("workbook %q has no sheets", filepath.Base(path))
		}
		rows, err := f.GetRows(sheets[0])
		if err != nil {
			return nil, apperr.Wrap(apperr.KindValidation, err, "failed to read sheet %q", sheets[0])
		}
		return rows, nil

	default:
		return nil, apperr.Validation("file %q is not tabular", filepath.Base(path))
	}
}

// detectHeaderOffset scores each of the first few rows as a header
// candidate: one point per cell that is non-blank and not a filler
// name. The highest score wins; ties keep the earliest row.
func detectHeaderOffset(records [][]string) int {
	best, bestScore := 0, -1

	limit := maxHeaderOffset
	if limit > len(records)-1 {
		limit = len(records) - 1
	}

	for offset := 0; offset <= limit; offset++ {
		score := 0
		for _, cell := range records[offset] {
			cell = strings.TrimSpace(cell)
			if cell == "" || unnamedPattern.MatchString(cell) {
				continue
			}
			score++
		}
		if score > bestScore {
			best, bestScore = offset, score
		}
	}
	return best
}

func buildTable(records [][]string) *Table {
	offset := detectHeaderOffset(records)
	header := records[offset]
	data := records[offset+1:]

	width := len(header)
	for _, row := range data {
		if len(row) > width {
			width = len(row)
		}
	}

	columns := make([]string, width)
	for i := 0; i < width; i++ {
		name := ""
		if i < len(header) {
			name = strings.TrimSpace(header[i])
		}
		if name == "" || unnamedPattern.MatchString(name) {
			name = fmt.Sprintf("Column_%d", i+1)
		}
		columns[i] = name
	}

	rows := make([][]string, len(data))
	for r, row := range data {
		cells := make([]string, width)
		for c := 0; c < width; c++ {
			if c < len(row) {
				cells[c] = strings.TrimSpace(row[c])
			}
		}
		rows[r] = cells
	}

	t := &Table{
		Columns:      columns,
		Rows:         rows,
		HeaderOffset: offset,
	}
	t.inferTypes()
	t.fillMissing()
	return t
}

// inferTypes classifies each column, promoting to date only when more
// than 90% of its non-empty values parse as one. Numeric wins over
// date so year-like integers stay numbers.
func (t *Table) inferTypes() {
	t.Types = make([]ColumnType, len(t.Columns))

	for c := range t.Columns {
		numeric, dates, total := 0, 0, 0
		for _, row := range t.Rows {
			v := row[c]
			if v == "" {
				continue
			}
			total++
			if _, err := strconv.ParseFloat(strings.ReplaceAll(v, ",", ""), 64); err == nil {
				numeric++
				continue
			}
			if _, err := dateparse.ParseAny(v); err == nil {
				dates++
			}
		}

		switch {
		case total == 0:
			t.Types[c] = TypeText
		case numeric == total:
			t.Types[c] = TypeNumber
		case float64(dates)/float64(total) > 0.9:
			t.Types[c] = TypeDate
			t.normalizeDates(c)
		default:
			t.Types[c] = TypeText
		}
	}
}

func (t *Table) normalizeDates(c int) {
	for _, row := range t.Rows {
		if row[c] == "" {
			continue
		}
		if parsed, err := dateparse.ParseAny(row[c]); err == nil {
			row[c] = parsed.Format(time.DateOnly)
		}
	}
}

// fillMissing replaces empty cells with zero, matching how the data is
// presented to the model. Prompts carry a caveat about it.
func (t *Table) fillMissing() {
	for _, row := range t.Rows {
		for c, v := range row {
			if v == "" {
				row[c] = "0"
			}
		}
	}
}

func (t *Table) columnIndex(name string) (int, error) {
	name = strings.TrimSpace(name)
	for i, col := range t.Columns {
		if strings.EqualFold(col, name) {
			return i, nil
		}
	}
	return 0, apperr.Validation("no column named %q; columns: %s", name, strings.Join(t.Columns, ", "))
}

// Describe renders the schema and row count for the model.
func (t *Table) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d rows, %d columns\n", len(t.Rows), len(t.Columns))
	for i, col := range t.Columns {
		fmt.Fprintf(&b, "- %s (%s)\n", col, t.Types[i])
	}
	return strings.TrimRight(b.String(), "\n")
}

// Head renders the first n data rows as a markdown table.
func (t *Table) Head(n int) string {
	if n <= 0 || n > len(t.Rows) {
		n = len(t.Rows)
	}
	rows := make([][]string, 0, n+1)
	rows = append(rows, t.Columns)
	rows = append(rows, t.Rows[:n]...)
	return extract.RowsToMarkdown(rows)
}

// ColumnStats summarizes one column: numeric aggregates for number
// columns, distinct counts otherwise.
func (t *Table) ColumnStats(name string) (string, error) {
	c, err := t.columnIndex(name)
	if err != nil {
		return "", err
	}

	if t.Types[c] == TypeNumber {
		var sum, min, max float64
		count := 0
		for _, row := range t.Rows {
			v, err := strconv.ParseFloat(strings.ReplaceAll(row[c], ",", ""), 64)
			if err != nil {
				continue
			}
			if count == 0 || v < min {
				min = v
			}
			if count == 0 || v > max {
				max = v
			}
			sum += v
			count++
		}
		if count == 0 {
			return fmt.Sprintf("%s: no numeric values", t.Columns[c]), nil
		}
		return fmt.Sprintf("%s: count=%d sum=%g mean=%g min=%g max=%g",
			t.Columns[c], count, sum, sum/float64(count), min, max), nil
	}

	distinct := make(map[string]int)
	for _, row := range t.Rows {
		distinct[row[c]]++
	}
	return fmt.Sprintf("%s: %d rows, %d distinct values", t.Columns[c], len(t.Rows), len(distinct)), nil
}

// ValueCounts lists the most frequent values in a column.
func (t *Table) ValueCounts(name string, top int) (string, error) {
	c, err := t.columnIndex(name)
	if err != nil {
		return "", err
	}

	counts := make(map[string]int)
	for _, row := range t.Rows {
		counts[row[c]]++
	}

	type pair struct {
		value string
		count int
	}
	pairs := make([]pair, 0, len(counts))
	for v, n := range counts {
		pairs = append(pairs, pair{v, n})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].count != pairs[j].count {
			return pairs[i].count > pairs[j].count
		}
		return pairs[i].value < pairs[j].value
	})

	if top > 0 && top < len(pairs) {
		pairs = pairs[:top]
	}

	var b strings.Builder
	for _, p := range pairs {
		fmt.Fprintf(&b, "%s: %d\n", p.value, p.count)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}
