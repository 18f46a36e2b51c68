// MODUL: results
// ZWECK: Formatierung und Export von Benchmark-Ergebnissen
// INPUT: Result Slices
// OUTPUT: Tabelle (Terminal), CSV
// ABHAENGIGKEITEN: tablewriter, x/text/message, format
// HINWEISE: CSV-Export verwendet Semikolon als Trennzeichen fuer DE-Kompatibilitaet

package benchmark

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/easydeploy/infercore/format"
)

// ============================================================================
// Terminal-Ausgabe
// ============================================================================

// PrintResults writes results as an aligned table.
func PrintResults(w io.Writer, results []Result) {
	if len(results) == 0 {
		fmt.Fprintln(w, "Keine Ergebnisse vorhanden.")
		return
	}

	p := message.NewPrinter(language.English)
	data := make([][]string, 0, len(results))
	for _, r := range results {
		data = append(data, []string{
			r.Core,
			strconv.Itoa(r.Lanes),
			p.Sprintf("%d", r.Iterations),
			formatDuration(r.Avg),
			formatDuration(r.P50),
			formatDuration(r.P95),
			formatDuration(r.StdDev),
			p.Sprintf("%.1f/s", r.Throughput),
			formatHeap(r.HeapGrowth),
		})
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"CORE", "LANES", "ITER", "AVG", "P50", "P95", "STDDEV", "THROUGHPUT", "HEAP"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()
}

// ============================================================================
// CSV-Export
// ============================================================================

var csvHeader = []string{
	"core", "backend", "lanes", "iterations", "total_ms",
	"avg_ms", "min_ms", "max_ms", "p50_ms", "p95_ms", "stddev_ms",
	"throughput_per_s", "heap_growth_bytes",
}

// WriteCSV writes one header row and one row per result.
func WriteCSV(w io.Writer, results []Result) error {
	cw := csv.NewWriter(w)
	cw.Comma = ';'

	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range results {
		if err := cw.Write(csvRow(r)); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func csvRow(r Result) []string {
	return []string{
		r.Core,
		string(r.Backend),
		strconv.Itoa(r.Lanes),
		strconv.Itoa(r.Iterations),
		millis(r.Total),
		millis(r.Avg),
		millis(r.Min),
		millis(r.Max),
		millis(r.P50),
		millis(r.P95),
		millis(r.StdDev),
		strconv.FormatFloat(r.Throughput, 'f', 2, 64),
		strconv.FormatInt(r.HeapGrowth, 10),
	}
}

// ============================================================================
// Formatierungs-Hilfsfunktionen
// ============================================================================

func millis(d time.Duration) string {
	return strconv.FormatFloat(float64(d.Microseconds())/1000, 'f', 3, 64)
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return fmt.Sprintf("%.2fus", float64(d.Nanoseconds())/1000)
	case d < time.Second:
		return fmt.Sprintf("%.2fms", float64(d.Microseconds())/1000)
	}
	return fmt.Sprintf("%.2fs", d.Seconds())
}

func formatHeap(n int64) string {
	if n < 0 {
		return "-" + format.HumanBytes2(uint64(-n))
	}
	return format.HumanBytes2(uint64(n))
}
