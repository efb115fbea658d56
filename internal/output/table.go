package output

import (
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

const columnGap = "  "

// Table renders rows under aligned column headers. Cell widths are measured
// in printed cells, so styled values line up with plain ones.
type Table struct {
	headers []string
	rows    [][]string
	widths  []int
	right   map[int]bool
}

// NewTable creates a table with the given column headers.
func NewTable(headers ...string) *Table {
	t := &Table{headers: headers, widths: make([]int, len(headers)), right: map[int]bool{}}
	for i, h := range headers {
		t.widths[i] = lipgloss.Width(h)
	}
	return t
}

// AlignRight right-aligns the given column indexes, typically numeric ones.
func (t *Table) AlignRight(cols ...int) *Table {
	for _, c := range cols {
		t.right[c] = true
	}
	return t
}

// AddRow appends a row. Missing values render empty and extra values are
// dropped.
func (t *Table) AddRow(values ...string) {
	row := make([]string, len(t.headers))
	for i := range row {
		if i < len(values) {
			row[i] = values[i]
		}
		t.widths[i] = max(t.widths[i], lipgloss.Width(row[i]))
	}
	t.rows = append(t.rows, row)
}

// Len returns the number of data rows.
func (t *Table) Len() int {
	return len(t.rows)
}

// Render returns the header, a separator and every row, one per line.
func (t *Table) Render() string {
	if len(t.headers) == 0 {
		return ""
	}

	var sb strings.Builder
	t.line(&sb, t.headers, func(s string) string { return StyleHeader.Render(s) })

	sep := make([]string, len(t.widths))
	for i, w := range t.widths {
		sep[i] = strings.Repeat("─", w)
	}
	t.line(&sb, sep, func(s string) string { return StyleMuted.Render(s) })

	for _, row := range t.rows {
		t.line(&sb, row, nil)
	}
	return sb.String()
}

func (t *Table) line(sb *strings.Builder, cells []string, style func(string) string) {
	for i, cell := range cells {
		if i > 0 {
			sb.WriteString(columnGap)
		}
		cell = t.pad(i, cell)
		if style != nil {
			cell = style(cell)
		}
		sb.WriteString(cell)
	}
	sb.WriteString("\n")
}

func (t *Table) pad(col int, s string) string {
	fill := t.widths[col] - lipgloss.Width(s)
	if fill <= 0 {
		return s
	}
	if t.right[col] {
		return strings.Repeat(" ", fill) + s
	}
	return s + strings.Repeat(" ", fill)
}

// String implements fmt.Stringer.
func (t *Table) String() string {
	return t.Render()
}

// WriteTo implements io.WriterTo.
func (t *Table) WriteTo(w io.Writer) (int64, error) {
	n, err := io.WriteString(w, t.Render())
	return int64(n), err
}
