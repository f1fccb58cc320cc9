// cmd_display.go - Tabellen-Ausgabe fuer Runs und Metriken
// Hauptfunktionen: renderRuns, renderResult, renderMetrics, newTable
package cmd

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/7blacky7/transformer-vae/store"
	"github.com/7blacky7/transformer-vae/trainer"
	"github.com/7blacky7/transformer-vae/vae"
)

// newTable - Tabelle im Stil von "list"; plain ohne Rahmen
func newTable(w io.Writer, header []string, plain bool) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoWrapText(false)
	if plain {
		table.SetHeaderLine(false)
		table.SetBorder(false)
		table.SetNoWhiteSpace(true)
		table.SetTablePadding("    ")
	}
	return table
}

func formatValue(v float64) string {
	if math.IsNaN(v) {
		return "-"
	}
	return strconv.FormatFloat(v, 'g', 6, 64)
}

func renderRuns(w io.Writer, runs []store.Run, plain bool) {
	var data [][]string
	for _, r := range runs {
		finished := "running"
		if r.FinishedAt != nil {
			finished = r.FinishedAt.Local().Format(time.DateTime)
		}
		data = append(data, []string{r.ID, r.Name, r.CreatedAt.Local().Format(time.DateTime), finished})
	}

	table := newTable(w, []string{"ID", "NAME", "CREATED", "FINISHED"}, plain)
	table.AppendBulk(data)
	table.Render()
}

func renderMetrics(w io.Writer, metrics *vae.Metrics, plain bool) {
	var data [][]string
	for pair := metrics.Oldest(); pair != nil; pair = pair.Next() {
		data = append(data, []string{pair.Key, formatValue(pair.Value)})
	}

	table := newTable(w, []string{"METRIC", "VALUE"}, plain)
	table.AppendBulk(data)
	table.Render()
}

// renderResult - Druckt Trainings-Ergebnis und finale Eval-Metriken
func renderResult(w io.Writer, result *trainer.Result, metrics *vae.Metrics, plain bool) error {
	all := vae.NewMetrics()
	all.Set("global_step", float64(result.GlobalStep))
	all.Set("epoch", result.Epoch)
	all.Set("training_loss", result.TrainingLoss)
	for pair := metrics.Oldest(); pair != nil; pair = pair.Next() {
		all.Set(pair.Key, pair.Value)
	}

	if _, err := fmt.Fprintln(w); err != nil {
		return err
	}
	renderMetrics(w, all, plain)
	return nil
}

// lastMetrics - Letzter Wert jeder Metrik in Reihenfolge des ersten Auftretens
func lastMetrics(metrics []store.Metric) *vae.Metrics {
	last := vae.NewMetrics()
	for _, m := range metrics {
		last.Set(m.Name, m.Value)
	}
	return last
}
