package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/mind-engage/certsync/internal/monitoring"
	"github.com/mind-engage/certsync/internal/scoresync"
)

// stdout is where command results go; progress and diagnostics use stderr.
var stdout io.Writer = os.Stdout

func jsonOutput() bool { return v.GetBool("json") }

func printJSON(x any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(x)
}

func score(p *float64) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *p)
}

func printResults(results []scoresync.SyncResult) {
	tw := table.NewWriter()
	tw.SetOutputMirror(stdout)
	tw.AppendHeader(table.Row{"Request", "Email", "Practical", "Written", "Total", "Status", "Error"})
	for _, r := range results {
		if r.SyncedData == nil {
			tw.AppendRow(table.Row{r.CertificateRequestID, r.Email, "-", "-", "-", "sync-error", r.Error})
			continue
		}
		d := r.SyncedData
		tw.AppendRow(table.Row{r.CertificateRequestID, r.Email, score(d.PracticalScore), score(d.WrittenScore), score(d.TotalScore), d.CalculatedStatus, ""})
	}
	tw.Render()
}

func printBatch(res scoresync.BatchResult) error {
	if jsonOutput() {
		return printJSON(res)
	}
	printResults(res.Results)
	tw := table.NewWriter()
	tw.SetOutputMirror(stdout)
	tw.AppendHeader(table.Row{"Processed", "Successful", "Failed"})
	tw.AppendRow(table.Row{res.TotalProcessed, res.Successful, res.Failed})
	tw.Render()
	if len(res.Errors) > 0 {
		fmt.Fprintln(os.Stderr, strings.Join(res.Errors, "\n"))
	}
	return nil
}

func printHealth(rep monitoring.Report) error {
	if jsonOutput() {
		return printJSON(rep)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(stdout)
	tw.AppendHeader(table.Row{"Component", "Status", "Latency", "Message"})
	for _, c := range rep.Components {
		tw.AppendRow(table.Row{c.Name, c.Status, c.Latency.String(), c.Message})
	}
	tw.AppendFooter(table.Row{"overall", rep.Status, "", ""})
	tw.Render()
	return nil
}
