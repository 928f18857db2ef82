// Package output renders listings as plain-text tables or indented JSON.
//
// Tables compute their column widths from the data (never narrower than
// the header) so listings line up without a fixed layout baked in.
package output

import (
	"io"
	"strings"
)

// Table is a fixed set of columns plus rows of cells. Rows shorter than
// the header are padded with empty cells; longer rows are truncated.
type Table struct {
	header []string
	rows   [][]string
}

// NewTable creates a table with the given column headers.
func NewTable(header []string) *Table {
	h := make([]string, len(header))
	copy(h, header)
	return &Table{header: h}
}

// AddRow appends one row of cells.
func (t *Table) AddRow(cells []string) {
	row := make([]string, len(t.header))
	copy(row, cells)
	t.rows = append(t.rows, row)
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// Render writes the table: a header line, a dashed underline and one line
// per row. Columns are left-justified, separated by two spaces, and each
// column is as wide as its widest cell (header included). Trailing
// whitespace is trimmed from every line.
func (t *Table) Render(w io.Writer) error {
	if len(t.header) == 0 {
		return nil
	}

	widths := make([]int, len(t.header))
	for i, col := range t.header {
		widths[i] = len(col)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	dashes := make([]string, len(t.header))
	for i, width := range widths {
		dashes[i] = strings.Repeat("-", width)
	}

	if err := t.renderLine(w, t.header, widths); err != nil {
		return err
	}
	if err := t.renderLine(w, dashes, widths); err != nil {
		return err
	}
	for _, row := range t.rows {
		if err := t.renderLine(w, row, widths); err != nil {
			return err
		}
	}
	return nil
}

func (t *Table) renderLine(w io.Writer, cells []string, widths []int) error {
	var sb strings.Builder
	for i, cell := range cells {
		sb.WriteString(cell)
		if i < len(cells)-1 {
			sb.WriteString(strings.Repeat(" ", widths[i]-len(cell)+2))
		}
	}
	line := strings.TrimRight(sb.String(), " ")
	if err := writeAll(w, []byte(line+"\n")); err != nil {
		return &WriteError{Op: "write", Err: err}
	}
	return nil
}

// writeAll writes all bytes to w, handling short writes.
//
// io.Writer.Write may return n < len(p) with a nil error (short write).
// This function loops until all bytes are written or an error occurs.
func writeAll(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if err != nil {
			return err
		}
		if n == 0 {
			// No progress made - avoid infinite loop
			return io.ErrShortWrite
		}
		p = p[n:]
	}
	return nil
}
