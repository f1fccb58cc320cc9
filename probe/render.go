package probe

import (
	"fmt"
	"io"
	"strconv"

	"github.com/mattn/go-runewidth"
	"github.com/olekukonko/tablewriter"
)

// MaxTextWidth begrenzt die Breite der Text-Spalte
const MaxTextWidth = 80

// Render schreibt table als Text-Tabelle. With plain set the table is printed
// without borders, as for non-terminal output.
func Render(w io.Writer, table *Table, plain bool) error {
	var header []string
	var rows [][]string
	switch table.Kind {
	case KindInterpolate:
		header = []string{"INTERPOLATION RATIO", "TEXT"}
		for _, row := range table.Rows {
			rows = append(rows, []string{strconv.FormatFloat(row.Ratio, 'f', -1, 64), runewidth.Truncate(row.Text, MaxTextWidth, "...")})
		}
	case KindRandom:
		header = []string{"TEXT"}
		for _, row := range table.Rows {
			rows = append(rows, []string{runewidth.Truncate(row.Text, MaxTextWidth, "...")})
		}
	default:
		return fmt.Errorf("probe: unknown table kind %q", table.Kind)
	}

	if _, err := fmt.Fprintf(w, "%s\n", table.Kind); err != nil {
		return err
	}

	tw := tablewriter.NewWriter(w)
	tw.SetHeader(header)
	tw.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAutoWrapText(false)
	if plain {
		tw.SetHeaderLine(false)
		tw.SetBorder(false)
		tw.SetNoWhiteSpace(true)
		tw.SetTablePadding("    ")
	}
	tw.AppendBulk(rows)
	tw.Render()
	return nil
}
