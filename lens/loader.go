package lens

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// requiredColumns must be present in every dataset
var requiredColumns = []string{ColSector, ColCustomer}

// LoadTable reads a customer table from a CSV file
func LoadTable(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("data file not found: %s", path)
		}
		return nil, fmt.Errorf("opening data file: %w", err)
	}
	defer f.Close()

	t, err := ReadTable(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	t.Source = path
	return t, nil
}

// ReadTable parses CSV from r. The first row is the header; header cells are
// trimmed and a UTF-8 byte order mark is dropped. The delimiter is ',' unless the
// header contains more ';' than ','.
func ReadTable(r io.Reader) (*Table, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading data: %w", err)
	}
	text := strings.TrimPrefix(string(raw), "\ufeff")

	cr := csv.NewReader(strings.NewReader(text))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	if header, _, _ := strings.Cut(text, "\n"); strings.Count(header, ";") > strings.Count(header, ",") {
		cr.Comma = ';'
	}

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty data file")
		}
		return nil, fmt.Errorf("reading header: %w", err)
	}
	columns := make([]string, len(header))
	for i, h := range header {
		columns[i] = strings.TrimSpace(h)
	}

	t := NewTable("", columns, nil)
	for _, col := range requiredColumns {
		if !t.HasColumn(col) {
			return nil, fmt.Errorf("missing required column %q", col)
		}
	}

	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if blankRow(row) {
			continue
		}
		cells := make(map[string]string, len(columns))
		for i, col := range columns {
			if i < len(row) && col != "" {
				cells[col] = row[i]
			}
		}
		t.Records = append(t.Records, NewRecord(len(t.Records), cells))
	}
	return t, nil
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// Export column names appended to the dataset columns
const (
	ExportEffectiveMRR = "Effective MRR"
	ExportGrowthPct    = "MRR Growth (%)"
)

// WriteRows writes the rows of the visible customers as CSV: the dataset columns
// followed by the effective MRR and growth percent. With onlySelected set, only
// selected rows are written. Sector means are not rows and are skipped.
func WriteRows(w io.Writer, t *Table, v *View, selected KeySet, onlySelected bool) (int, error) {
	if t == nil {
		return 0, fmt.Errorf("no data loaded")
	}
	cw := csv.NewWriter(w)
	header := append(append([]string{}, t.Columns...), ExportEffectiveMRR, ExportGrowthPct)
	if err := cw.Write(header); err != nil {
		return 0, fmt.Errorf("writing header: %w", err)
	}

	n := 0
	for _, p := range v.Points {
		if p.Row < 0 || p.Row >= len(t.Records) {
			continue
		}
		if onlySelected && !selected.Has(p.Key) {
			continue
		}
		rec := t.Records[p.Row]
		row := make([]string, 0, len(header))
		for _, col := range t.Columns {
			row = append(row, rec.Text(col))
		}
		row = append(row, formatFloat(p.MRR), formatFloat(p.Growth))
		if err := cw.Write(row); err != nil {
			return n, fmt.Errorf("writing row %d: %w", p.Row, err)
		}
		n++
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return n, fmt.Errorf("flushing csv: %w", err)
	}
	return n, nil
}
