package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/andrewh/attest/pkg/validate"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// renderTables prints one report table per trace file.
func renderTables(w io.Writer, paths []string, reports []*validate.Report) {
	for i, rep := range reports {
		verdict := "PASS"
		if !rep.Passed {
			verdict = "FAIL"
		}
		_, _ = fmt.Fprintf(w, "%s  %s  (run %s)\n", verdict, paths[i], rep.RunID)

		t := table.NewWriter()
		t.SetOutputMirror(w)
		t.SetStyle(table.StyleLight)
		t.AppendHeader(table.Row{"Family", "Status", "Detail"})
		t.SetColumnConfigs([]table.ColumnConfig{
			{Name: "Detail", WidthMax: 100, WidthMaxEnforcer: text.WrapSoft},
		})
		for _, r := range rep.Results {
			t.AppendRow(table.Row{r.Family, resultStatus(r), r.Message})
		}
		t.Render()

		_, _ = fmt.Fprintf(w, "digest: %s\n\n", rep.Digest)
	}
}

func resultStatus(r validate.Result) string {
	switch {
	case r.Skipped:
		return "SKIP"
	case r.Passed:
		return "PASS"
	default:
		return "FAIL"
	}
}

type fileReport struct {
	File    string            `json:"file"`
	RunID   string            `json:"run_id"`
	Passed  bool              `json:"passed"`
	Digest  string            `json:"digest"`
	Results []validate.Result `json:"results"`
}

func renderJSON(w io.Writer, paths []string, reports []*validate.Report) error {
	out := make([]fileReport, len(reports))
	for i, rep := range reports {
		out[i] = fileReport{
			File:    paths[i],
			RunID:   rep.RunID,
			Passed:  rep.Passed,
			Digest:  rep.Digest,
			Results: rep.Results,
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
