package parser

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// csvBatch is the number of data rows rendered per paragraph.
const csvBatch = 20

// CSVParser handles CSV files. The first row names the columns; data rows are
// rendered as "column: value" pairs in batches.
type CSVParser struct{}

func (p *CSVParser) Parse(r io.Reader, filename string) (*Extracted, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}

	var pg page
	if len(records) == 0 {
		return single(stem(filename), &pg), nil
	}

	headers := records[0]
	rows := records[1:]
	pg.add("Columns: " + strings.Join(headers, ", "))

	for i := 0; i < len(rows); i += csvBatch {
		end := min(i+csvBatch, len(rows))

		var b strings.Builder
		// Spreadsheet row numbers: the header is row 1.
		fmt.Fprintf(&b, "Rows %d-%d\n", i+2, end+1)
		for _, row := range rows[i:end] {
			cells := make([]string, len(row))
			for j, cell := range row {
				if j < len(headers) && headers[j] != "" {
					cells[j] = headers[j] + ": " + cell
				} else {
					cells[j] = cell
				}
			}
			b.WriteString(strings.Join(cells, ", "))
			b.WriteByte('\n')
		}
		pg.add(b.String())
	}
	return single(stem(filename), &pg), nil
}
